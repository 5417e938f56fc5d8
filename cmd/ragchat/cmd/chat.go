package cmd

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"ragchat/internal/tui"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Ask questions about the book in the terminal",
	Long: `Open an interactive chat. Up and down browse the passages behind the last
answer. "/select <text>" answers from that text only; "/clear" goes back to
the whole book.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if logLevel == "" {
		// stderr output would tear the full-screen view
		logLevel = "error"
	}
	a, err := newApp(ctx, needs{embedder: true, generator: true})
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.store.PointsCount(ctx)
	if err != nil {
		return fmt.Errorf("read collection %s: %w", a.store.CollectionName(), err)
	}
	summary := fmt.Sprintf("Collection %s, %d passages indexed.", a.store.CollectionName(), n)
	m := tui.New(ctx, a.svc, summary)
	_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}
