package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"docuexplore/internal/apperr"
	"docuexplore/internal/config"
	"docuexplore/internal/logger"
)

// FallbackTitle is used whenever title generation fails or returns nothing.
const FallbackTitle = "Untitled Document"

const titlePrompt = "Given the following summary of a document, generate a concise and descriptive title (maximum 5 words):\n\n%s\n\nTitle:"

type generator interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// TitleResult carries the title and, when the fallback was used, the reason.
type TitleResult struct {
	Title    string
	Fallback bool
	Err      error
}

type TitleSynthesizer struct {
	chatModel generator
	log       *logger.Logger
}

func NewTitleSynthesizer(chatModel generator, log *logger.Logger) *TitleSynthesizer {
	return &TitleSynthesizer{chatModel: chatModel, log: logger.OrNop(log).With("component", "title")}
}

// NewTitleModel builds the chat model configured for title generation.
// The gemini provider reuses the document client.
func NewTitleModel(ctx context.Context, cfg *config.Config, client *genai.Client) (model.BaseChatModel, error) {
	provider := cfg.Title.Provider
	provCfg := cfg.Providers[provider]
	modelName := cfg.Title.Model
	if modelName == "" {
		modelName = provCfg.Model
	}

	switch provider {
	case "gemini":
		if client == nil {
			return nil, errors.New("gemini title model requires a genai client")
		}
		if modelName == "" {
			modelName = cfg.Gemini.Model
		}
		return gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  modelName,
		})
	case "openai":
		return openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: provCfg.BaseURL,
			Model:   modelName,
			APIKey:  provCfg.APIKey,
		})
	case "claude":
		var baseURLPtr *string
		if provCfg.BaseURL != "" {
			baseURLPtr = &provCfg.BaseURL
		}
		return claude.NewChatModel(ctx, &claude.Config{
			APIKey:    provCfg.APIKey,
			Model:     modelName,
			BaseURL:   baseURLPtr,
			MaxTokens: 64,
		})
	default:
		return nil, fmt.Errorf("invalid title provider: %s", provider)
	}
}

// TitleFromSummary makes one generation call. It never fails: errors and
// empty output yield FallbackTitle with the cause recorded in the result.
func (ts *TitleSynthesizer) TitleFromSummary(ctx context.Context, summary string) TitleResult {
	messages := []*schema.Message{
		{
			Role:    schema.User,
			Content: fmt.Sprintf(titlePrompt, summary),
		},
	}
	resp, err := ts.chatModel.Generate(ctx, messages)
	if err != nil {
		ts.log.Warn("generate title failed", "error", err)
		return TitleResult{
			Title:    FallbackTitle,
			Fallback: true,
			Err:      apperr.New(apperr.KindTitleGeneration, "could not generate a title", err),
		}
	}
	title := cleanTitle(resp.Content)
	if title == "" {
		return TitleResult{
			Title:    FallbackTitle,
			Fallback: true,
			Err:      apperr.New(apperr.KindTitleGeneration, "the model returned an empty title", nil),
		}
	}
	return TitleResult{Title: title}
}

func cleanTitle(raw string) string {
	title := strings.TrimSpace(raw)
	title = strings.TrimPrefix(title, "Title:")
	return strings.Trim(strings.TrimSpace(title), `"*`)
}
