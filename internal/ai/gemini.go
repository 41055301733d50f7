// Package ai wraps the Gemini API behind five fixed writing operations:
// improve, summarize, outline, convert-to-markdown and suggestions.
package ai

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync"
	"time"

	"markdraft/internal/settings"
	"markdraft/pkg/logger"

	"google.golang.org/genai"
)

// ErrNotInitialized distinguishes "no API key supplied yet" from a network
// or quota failure; the frontend points the user at their profile instead
// of retrying.
var ErrNotInitialized = errors.New("gemini service not initialized: provide an API key")

// Operation names a writing operation.
type Operation string

const (
	OpImprove   Operation = "improve"
	OpSummarize Operation = "summarize"
	OpOutline   Operation = "outline"
	OpConvert   Operation = "convert"
	OpSuggest   Operation = "suggestions"
)

const historyLimit = 20

// HistoryEntry records one completed or failed operation.
type HistoryEntry struct {
	Type         Operation `json:"type"`
	OriginalText string    `json:"original_text"`
	Result       string    `json:"result,omitempty"`
	Error        string    `json:"error,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	Status       string    `json:"status"`
}

// Service holds one configured Gemini client. Zero value is usable but
// uninitialized: every operation fails with ErrNotInitialized until
// Initialize is called with a key.
type Service struct {
	mu             sync.Mutex
	client         *genai.Client
	model          string
	temperature    float32
	maxTokens      int32
	thinkingBudget int32
	history        []HistoryEntry
}

func NewService() *Service {
	return &Service{}
}

// Initialize builds the underlying client from the owner's API key and the
// persisted generation settings. Replaces any previous client.
func (s *Service) Initialize(ctx context.Context, apiKey string, cfg settings.AISettings) error {
	if strings.TrimSpace(apiKey) == "" {
		return fmt.Errorf("%w: empty key", ErrNotInitialized)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return fmt.Errorf("creating gemini client: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.client = client
	s.model = cfg.Model
	if s.model == "" {
		s.model = settings.DefaultModel
	}
	s.temperature = float32(cfg.Temperature)
	s.maxTokens = int32(cfg.MaxTokens)
	s.thinkingBudget = int32(cfg.ThinkingBudget)
	return nil
}

// Initialized reports whether an API key has been supplied.
func (s *Service) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client != nil
}

// PromptFor builds the fixed template + input text for an operation.
func PromptFor(op Operation, text string) (string, error) {
	switch op {
	case OpImprove:
		return fmt.Sprintf(ImprovePrompt, text), nil
	case OpSummarize:
		return fmt.Sprintf(SummarizePrompt, text), nil
	case OpOutline:
		return fmt.Sprintf(OutlinePrompt, text), nil
	case OpConvert:
		return fmt.Sprintf(ConvertPrompt, text), nil
	case OpSuggest:
		return fmt.Sprintf(SuggestPrompt, text), nil
	default:
		return "", fmt.Errorf("unknown operation: %s", op)
	}
}

// generationConfig maps the thinking budget onto the request: 0 omits the
// thinking config entirely, -1 requests unbounded thinking, and a positive
// value caps it.
func generationConfig(temperature float32, maxTokens, thinkingBudget int32) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(temperature),
		MaxOutputTokens: maxTokens,
	}
	if thinkingBudget != 0 {
		cfg.ThinkingConfig = &genai.ThinkingConfig{
			ThinkingBudget: genai.Ptr(thinkingBudget),
		}
	}
	return cfg
}

// Stream runs an operation and yields text chunks as the model produces
// them. The sequence is finite and non-restartable; iterate it once.
// Errors, including ErrNotInitialized, are yielded in-band as the final
// element.
func (s *Service) Stream(ctx context.Context, op Operation, text string) iter.Seq2[string, error] {
	s.mu.Lock()
	client := s.client
	model := s.model
	cfg := generationConfig(s.temperature, s.maxTokens, s.thinkingBudget)
	s.mu.Unlock()

	if client == nil {
		return errSeq(ErrNotInitialized)
	}
	prompt, err := PromptFor(op, text)
	if err != nil {
		return errSeq(err)
	}

	return func(yield func(string, error) bool) {
		for resp, err := range client.Models.GenerateContentStream(ctx, model, genai.Text(prompt), cfg) {
			if err != nil {
				yield("", fmt.Errorf("%s: %w", op, err))
				return
			}
			if chunk := resp.Text(); chunk != "" {
				if !yield(chunk, nil) {
					return
				}
			}
		}
	}
}

// Collect buffers a chunk sequence into one string, stopping at the first
// error.
func Collect(seq iter.Seq2[string, error]) (string, error) {
	var b strings.Builder
	for chunk, err := range seq {
		if err != nil {
			return "", err
		}
		b.WriteString(chunk)
	}
	return b.String(), nil
}

// Generate is the buffered convenience over Stream. It also records the
// operation in the history.
func (s *Service) Generate(ctx context.Context, op Operation, text string) (string, error) {
	result, err := Collect(s.Stream(ctx, op, text))

	entry := HistoryEntry{
		Type:         op,
		OriginalText: text,
		Timestamp:    time.Now(),
		Status:       "completed",
		Result:       result,
	}
	if err != nil {
		entry.Status = "failed"
		entry.Error = err.Error()
		entry.Result = ""
	}
	s.record(entry)

	if err != nil {
		logger.Sugar.Warnf("AI operation %s failed: %v", op, err)
		return "", err
	}
	return result, nil
}

// Buffered wrappers, one per operation.

func (s *Service) ImproveWriting(ctx context.Context, text string) (string, error) {
	return s.Generate(ctx, OpImprove, text)
}

func (s *Service) SummarizeContent(ctx context.Context, text string) (string, error) {
	return s.Generate(ctx, OpSummarize, text)
}

func (s *Service) GenerateOutline(ctx context.Context, text string) (string, error) {
	return s.Generate(ctx, OpOutline, text)
}

func (s *Service) ConvertToMarkdown(ctx context.Context, text string) (string, error) {
	return s.Generate(ctx, OpConvert, text)
}

func (s *Service) WritingSuggestions(ctx context.Context, text string) (string, error) {
	return s.Generate(ctx, OpSuggest, text)
}

// ValidateAPIKey probes the API with a throwaway client and a one-word
// prompt. The returned message is empty when the key works.
func (s *Service) ValidateAPIKey(ctx context.Context, apiKey string) (bool, string) {
	if strings.TrimSpace(apiKey) == "" {
		return false, "API key is empty"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return false, err.Error()
	}
	if _, err := client.Models.GenerateContent(ctx, settings.DefaultModel, genai.Text("Test"), nil); err != nil {
		return false, err.Error()
	}
	return true, ""
}

// History returns the most recent operations, newest first.
func (s *Service) History() []HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]HistoryEntry, len(s.history))
	copy(out, s.history)
	return out
}

// ClearHistory drops all recorded operations.
func (s *Service) ClearHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
}

func (s *Service) record(entry HistoryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append([]HistoryEntry{entry}, s.history...)
	if len(s.history) > historyLimit {
		s.history = s.history[:historyLimit]
	}
}

func errSeq(err error) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		yield("", err)
	}
}
