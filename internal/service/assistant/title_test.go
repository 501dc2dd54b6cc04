package assistant

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"docuexplore/internal/apperr"
	"docuexplore/internal/config"
)

type stubModel struct {
	reply  string
	err    error
	inputs [][]*schema.Message
}

func (s *stubModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	s.inputs = append(s.inputs, input)
	if s.err != nil {
		return nil, s.err
	}
	return &schema.Message{Role: schema.Assistant, Content: s.reply}, nil
}

func TestTitleFromSummaryUsesPromptTemplate(t *testing.T) {
	stub := &stubModel{reply: "  Renewable Energy Report\n"}
	ts := NewTitleSynthesizer(stub, nil)

	res := ts.TitleFromSummary(context.Background(), "A report on renewable energy")
	if res.Title != "Renewable Energy Report" || res.Fallback || res.Err != nil {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(stub.inputs) != 1 || len(stub.inputs[0]) != 1 {
		t.Fatalf("expected one call with one message, got %+v", stub.inputs)
	}
	prompt := stub.inputs[0][0].Content
	want := "Given the following summary of a document, generate a concise and descriptive title (maximum 5 words):\n\nA report on renewable energy\n\nTitle:"
	if prompt != want {
		t.Fatalf("unexpected prompt:\n%s", prompt)
	}
}

func TestTitleFromSummaryFallsBackOnError(t *testing.T) {
	for _, summary := range []string{"", "short", strings.Repeat("long summary ", 500)} {
		stub := &stubModel{err: errors.New("model unavailable")}
		res := NewTitleSynthesizer(stub, nil).TitleFromSummary(context.Background(), summary)
		if res.Title != FallbackTitle || !res.Fallback {
			t.Fatalf("expected fallback title, got %+v", res)
		}
		if !apperr.IsKind(res.Err, apperr.KindTitleGeneration) {
			t.Fatalf("expected title generation error, got %v", res.Err)
		}
	}
}

func TestTitleFromSummaryFallsBackOnEmptyOutput(t *testing.T) {
	res := NewTitleSynthesizer(&stubModel{reply: "  \n"}, nil).TitleFromSummary(context.Background(), "x")
	if res.Title != FallbackTitle || !res.Fallback || res.Err == nil {
		t.Fatalf("expected fallback for empty output, got %+v", res)
	}
}

func TestCleanTitleStripsDecoration(t *testing.T) {
	if got := cleanTitle(`Title: "Solar Grid Futures"`); got != "Solar Grid Futures" {
		t.Fatalf("unexpected cleaned title %q", got)
	}
}

func TestNewTitleModelRejectsUnknownProvider(t *testing.T) {
	cfg := config.Default()
	cfg.Title.Provider = "mystery"
	if _, err := NewTitleModel(context.Background(), cfg, nil); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
	cfg.Title.Provider = "gemini"
	if _, err := NewTitleModel(context.Background(), cfg, nil); err == nil {
		t.Fatalf("expected error without a genai client")
	}
}

func TestNewTitleModelOpenAI(t *testing.T) {
	cfg := config.Default()
	cfg.Title.Provider = "openai"
	cfg.Providers["openai"] = config.ProviderConfig{BaseURL: "http://127.0.0.1:1/v1", Model: "gpt-4o-mini", APIKey: "sk-test"}
	m, err := NewTitleModel(context.Background(), cfg, nil)
	if err != nil || m == nil {
		t.Fatalf("expected openai model, got %v, %v", m, err)
	}
}
