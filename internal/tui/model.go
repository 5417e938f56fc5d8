package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"ragchat/internal/service"
)

// ChatPort is the TUI-facing subset of the RAG service.
type ChatPort interface {
	Chat(ctx context.Context, req service.ChatRequest) (service.ChatResponse, error)
}

// answerMsg carries a finished chat call back into Update.
type answerMsg struct {
	query string
	resp  service.ChatResponse
	err   error
}

// Model is the Bubble Tea model for the chat TUI. Typing "/select <text>"
// pins a passage so following questions are answered from it alone, and
// "/clear" returns to whole-book mode.
type Model struct {
	ctx       context.Context
	service   ChatPort
	input     textinput.Model
	viewport  viewport.Model
	answer    service.ChatResponse
	history   []service.Message
	selected  string
	summary   string
	status    string
	cursor    int
	ready     bool
	waiting   bool
	lastQuery string
}

// New creates a new TUI model instance.
func New(ctx context.Context, svc ChatPort, summary string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about the book and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{ctx: ctx, service: svc, input: ti, viewport: vp, summary: summary, status: "Ready. Ask a question."}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header+summary, status, spacer
		vh := max(3, msg.Height-reserved)
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.viewport.SetContent(m.render())
		return m, nil
	case answerMsg:
		m.waiting = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			m.viewport.SetContent(m.render())
			return m, nil
		}
		m.answer = msg.resp
		m.cursor = 0
		m.lastQuery = msg.query
		m.history = append(m.history,
			service.Message{Role: "user", Content: msg.query},
			service.Message{Role: "assistant", Content: msg.resp.Response})
		m.status = fmt.Sprintf("Answered %q (%s)", msg.query, msg.resp.Mode)
		if !msg.resp.Grounded {
			m.status += ", answer may not be grounded"
		}
		m.viewport.SetContent(m.render())
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			return m.submit()
		case "down":
			if n := len(m.answer.Passages); n > 0 {
				m.cursor = (m.cursor + 1) % n
				m.viewport.SetContent(m.render())
				return m, nil
			}
		case "up":
			if n := len(m.answer.Passages); n > 0 {
				m.cursor = (m.cursor - 1 + n) % n
				m.viewport.SetContent(m.render())
				return m, nil
			}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	q := strings.TrimSpace(m.input.Value())
	if q == "" || m.waiting {
		return m, nil
	}
	m.input.SetValue("")
	switch {
	case q == "/clear":
		m.selected = ""
		m.status = "Selection cleared. Answering from the whole book."
		return m, nil
	case strings.HasPrefix(q, "/select "):
		m.selected = strings.TrimSpace(strings.TrimPrefix(q, "/select "))
		m.status = fmt.Sprintf("Selection pinned (%d chars).", len([]rune(m.selected)))
		return m, nil
	}
	m.waiting = true
	m.status = "Thinking..."
	req := service.ChatRequest{Message: q, SelectedText: m.selected, History: m.history}
	svc, ctx := m.service, m.ctx
	return m, func() tea.Msg {
		resp, err := svc.Chat(ctx, req)
		return answerMsg{query: q, resp: resp, err: err}
	}
}

// View renders the TUI layout and current answer.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Book Assistant")
	summary := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.summary)
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	results := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + summary + "\n" + results + "\n" + input + "\n" + status
}

func (m Model) render() string {
	if m.answer.Response == "" {
		return "No answer yet."
	}
	var b strings.Builder
	b.WriteString(m.answer.Response)
	if len(m.answer.Sources) > 0 {
		b.WriteString("\n\nSources: " + strings.Join(m.answer.Sources, ", "))
	}
	if len(m.answer.Passages) == 0 {
		return b.String()
	}
	p := m.answer.Passages[m.cursor]
	fmt.Fprintf(&b, "\n\nPassage %d/%d  %s  score=%.3f\n\n", m.cursor+1, len(m.answer.Passages), p.Source, p.Score)
	b.WriteString(highlightBestSentence(p.Text, m.lastQuery))
	return b.String()
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	unicodeWordRe  = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe     = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
)

// highlightBestSentence marks the sentence sharing the most words with query.
func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		sentences = []string{strings.TrimSpace(text)}
	}
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return strings.Join(sentences, " ")
	}
	bestIdx, bestScore := 0, -1
	for i, s := range sentences {
		if score := tokenOverlapScore(qTokens, s); score > bestScore {
			bestScore, bestIdx = score, i
		}
	}
	for i := range sentences {
		sent := strings.TrimSpace(sentences[i])
		if i == bestIdx {
			sent = highlightStyle.Render(sent)
		}
		sentences[i] = sent
	}
	return strings.Join(sentences, " ")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	seen := make(map[string]struct{})
	for _, t := range unicodeWordRe.FindAllString(strings.ToLower(sentence), -1) {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
