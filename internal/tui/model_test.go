package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"ragchat/internal/domain"
	"ragchat/internal/service"
)

type stubChat struct {
	reqs []service.ChatRequest
	resp service.ChatResponse
	err  error
}

func (s *stubChat) Chat(_ context.Context, req service.ChatRequest) (service.ChatResponse, error) {
	s.reqs = append(s.reqs, req)
	return s.resp, s.err
}

func typeAndEnter(t *testing.T, m Model, text string) (Model, tea.Cmd) {
	t.Helper()
	m.input.SetValue(text)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return next.(Model), cmd
}

func ready(m Model) Model {
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return next.(Model)
}

func TestSubmitRunsChatAndShowsAnswer(t *testing.T) {
	stub := &stubChat{resp: service.ChatResponse{
		Response: "Robots balance with feedback.",
		Sources:  []string{"ch1.md"},
		Mode:     domain.ModeFullBook,
		Grounded: true,
		Passages: []domain.SearchResult{
			{Text: "Balance uses feedback. Legs move.", Source: "ch1.md", Score: 0.9},
			{Text: "Other text.", Source: "ch2.md", Score: 0.5},
		},
	}}
	m := ready(New(context.Background(), stub, "2 documents"))

	m, cmd := typeAndEnter(t, m, "how do robots balance")
	if cmd == nil || !m.waiting {
		t.Fatalf("expected async chat command, waiting=%v", m.waiting)
	}
	next, _ := m.Update(cmd())
	m = next.(Model)

	if len(stub.reqs) != 1 || stub.reqs[0].Message != "how do robots balance" || stub.reqs[0].SelectedText != "" {
		t.Fatalf("requests = %+v", stub.reqs)
	}
	out := m.render()
	for _, want := range []string{"Robots balance with feedback.", "Sources: ch1.md", "Passage 1/2"} {
		if !strings.Contains(out, want) {
			t.Errorf("render missing %q:\n%s", want, out)
		}
	}
	if len(m.history) != 2 {
		t.Errorf("history = %+v", m.history)
	}

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m = next.(Model)
	if m.cursor != 1 || !strings.Contains(m.render(), "Passage 2/2") {
		t.Errorf("down did not advance, cursor=%d", m.cursor)
	}
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	if next.(Model).cursor != 0 {
		t.Errorf("cursor should wrap to 0")
	}
}

func TestSelectPinsSelectionForNextQuestion(t *testing.T) {
	stub := &stubChat{resp: service.ChatResponse{Response: "ok", Mode: domain.ModeSelectedText}}
	m := ready(New(context.Background(), stub, ""))

	m, cmd := typeAndEnter(t, m, "/select The robot arm has six joints.")
	if cmd != nil {
		t.Fatalf("/select should not call the service")
	}
	m, cmd = typeAndEnter(t, m, "how many joints?")
	next, _ := m.Update(cmd())
	m = next.(Model)
	if got := stub.reqs[0].SelectedText; got != "The robot arm has six joints." {
		t.Errorf("SelectedText = %q", got)
	}

	m, _ = typeAndEnter(t, m, "/clear")
	if m.selected != "" {
		t.Errorf("selection not cleared")
	}
}

func TestChatErrorShowsInStatus(t *testing.T) {
	stub := &stubChat{err: errors.New("collection missing")}
	m := ready(New(context.Background(), stub, ""))
	m, cmd := typeAndEnter(t, m, "anything")
	next, _ := m.Update(cmd())
	m = next.(Model)
	if !strings.Contains(m.status, "collection missing") || m.waiting {
		t.Errorf("status = %q waiting=%v", m.status, m.waiting)
	}
}

func TestHighlightBestSentence(t *testing.T) {
	text := "Motors drive joints. Sensors measure balance and posture. Batteries store energy."
	out := highlightBestSentence(text, "balance posture")
	want := highlightStyle.Render("Sensors measure balance and posture.")
	if !strings.Contains(out, want) {
		t.Errorf("highlight missing best sentence:\n%s", out)
	}
	if highlightBestSentence("   ", "q") != "   " {
		t.Errorf("blank text should pass through")
	}
}

func TestTokenOverlapScore(t *testing.T) {
	q := toTokenSet("robot's arm")
	if got := tokenOverlapScore(q, "The robot's arm, the arm again."); got != 2 {
		t.Errorf("score = %d, want 2", got)
	}
}
