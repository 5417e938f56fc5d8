package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-logr/logr"

	"ragchat/internal/domain"
	"ragchat/internal/generator"
	"ragchat/internal/ingest"
	"ragchat/internal/retrieval"
)

var (
	ErrEmptyMessage      = errors.New("message is required")
	ErrSelectionRequired = errors.New("selected_text is required for this endpoint")
)

// Message is one prior turn of a conversation. It is accepted for API
// compatibility; answers are grounded in the retrieved context only.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Message      string    `json:"message"`
	SelectedText string    `json:"selected_text,omitempty"`
	History      []Message `json:"history,omitempty"`
}

type ChatResponse struct {
	Response string      `json:"response"`
	Sources  []string    `json:"sources"`
	Mode     domain.Mode `json:"mode"`
	// Grounded is the advisory hallucination-phrase check.
	Grounded bool `json:"grounded"`
	// Passages are the retrieved chunks behind the answer, best first.
	Passages []domain.SearchResult `json:"-"`
}

// Status compares the collection with the corpus on disk.
type Status struct {
	CollectionName string `json:"collection_name"`
	PointsCount    int    `json:"points_count"`
	Documents      int    `json:"documents"`
	ExpectedChunks int    `json:"expected_chunks"`
}

// RAGService wires retrieval, generation and ingestion behind one handle.
// It is created once per process and shared by the HTTP server and the TUI.
type RAGService struct {
	assembler    *retrieval.Assembler
	generator    domain.Generator
	orchestrator *ingest.Orchestrator
	store        domain.VectorStore
	docsPath     string
	log          logr.Logger
}

func NewRAGService(assembler *retrieval.Assembler, gen domain.Generator, orchestrator *ingest.Orchestrator, store domain.VectorStore, docsPath string, log logr.Logger) *RAGService {
	return &RAGService{
		assembler:    assembler,
		generator:    gen,
		orchestrator: orchestrator,
		store:        store,
		docsPath:     docsPath,
		log:          log,
	}
}

// Chat answers from the selected text when one is given, otherwise from the
// retrieved book context.
func (s *RAGService) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	if strings.TrimSpace(req.Message) == "" {
		return ChatResponse{}, ErrEmptyMessage
	}
	var (
		c   retrieval.Context
		err error
	)
	if req.SelectedText != "" {
		c = s.assembler.Selected(req.SelectedText)
	} else if c, err = s.assembler.Retrieve(ctx, req.Message, 0); err != nil {
		return ChatResponse{}, err
	}
	return s.answer(ctx, req.Message, c)
}

// ChatWithSelection is Chat restricted to selected-text mode.
func (s *RAGService) ChatWithSelection(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	if req.SelectedText == "" {
		return ChatResponse{}, ErrSelectionRequired
	}
	return s.Chat(ctx, req)
}

func (s *RAGService) answer(ctx context.Context, query string, c retrieval.Context) (ChatResponse, error) {
	sources := c.Sources
	if sources == nil {
		sources = []string{}
	}
	text, err := s.generator.Generate(ctx, query, c.Text, c.Mode)
	if err != nil {
		if ctx.Err() != nil {
			return ChatResponse{}, ctx.Err()
		}
		s.log.Error(err, "answer generation failed, replying with fallback", "mode", c.Mode)
		return ChatResponse{Response: generator.Fallback, Sources: sources, Mode: c.Mode, Passages: c.Results}, nil
	}
	grounded := generator.CheckGrounding(text)
	if !grounded {
		s.log.Info("answer contains a hallucination marker", "mode", c.Mode)
	}
	return ChatResponse{Response: text, Sources: sources, Mode: c.Mode, Grounded: grounded, Passages: c.Results}, nil
}

// Ingest runs an ingestion over path, or over the configured documents path
// when path is empty.
func (s *RAGService) Ingest(ctx context.Context, path string) (*ingest.Report, error) {
	if path == "" {
		path = s.docsPath
	}
	return s.orchestrator.Run(ctx, path)
}

func (s *RAGService) Status(ctx context.Context) (Status, error) {
	n, err := s.store.PointsCount(ctx)
	if err != nil {
		return Status{}, err
	}
	st := Status{CollectionName: s.store.CollectionName(), PointsCount: n}
	corpus, err := s.orchestrator.Prepare(s.docsPath)
	if err != nil {
		return st, fmt.Errorf("scan %s: %w", s.docsPath, err)
	}
	st.Documents = len(corpus.Documents)
	st.ExpectedChunks = len(corpus.Chunks)
	return st, nil
}

// Reset deletes the collection so the next ingestion starts from zero.
func (s *RAGService) Reset(ctx context.Context) error {
	return s.store.DeleteCollection(ctx)
}
