package generator

import "strings"

// hallucinationPhrases are English markers of answers drawn from outside the context.
var hallucinationPhrases = []string{
	"I don't have access to the provided content",
	"I can't find this information in the provided content",
	"Based on my general knowledge",
	"From external sources",
}

// CheckGrounding reports false when answer contains a known hallucination
// marker. The check is advisory: a true result proves nothing.
func CheckGrounding(answer string) bool {
	lower := strings.ToLower(answer)
	for _, p := range hallucinationPhrases {
		if strings.Contains(lower, strings.ToLower(p)) {
			return false
		}
	}
	return true
}
