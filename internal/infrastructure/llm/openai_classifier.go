package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"

	"NewsHarvester/internal/config"
	"NewsHarvester/internal/domain"
	"NewsHarvester/internal/ports"
)

const (
	defaultModel           = "gpt-4"
	defaultMaxContentChars = 1000
	defaultMaxTokens       = 10
)

// OpenAIClassifier implements ports.RelevanceClassifier on the chat completions API.
type OpenAIClassifier struct {
	client          openai.Client
	model           string
	maxContentChars int
	maxTokens       int64
	timeout         time.Duration
}

var _ ports.RelevanceClassifier = (*OpenAIClassifier)(nil)

// NewOpenAIClassifier builds a client holding its own credential. Extra
// request options are appended last, so tests can point it elsewhere.
func NewOpenAIClassifier(cfg config.ClassifierConfig, opts ...option.RequestOption) (*OpenAIClassifier, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, &domain.ConfigurationError{Key: "OPENAI_API_KEY", Reason: "is not set"}
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	reqOpts = append(reqOpts, opts...)

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	maxChars := cfg.MaxContentChars
	if maxChars <= 0 {
		maxChars = defaultMaxContentChars
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	return &OpenAIClassifier{
		client:          openai.NewClient(reqOpts...),
		model:           model,
		maxContentChars: maxChars,
		maxTokens:       int64(maxTokens),
		timeout:         cfg.Timeout,
	}, nil
}

// Classify asks whether article relates to theme. Any failure is returned
// as *domain.ClassifierError; the caller decides how to degrade.
func (c *OpenAIClassifier) Classify(ctx context.Context, theme string, article domain.Article) (bool, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(SystemPrompt(theme)),
			openai.UserMessage(UserPrompt(article, c.maxContentChars)),
		},
		MaxTokens: openai.Int(c.maxTokens),
	})
	if err != nil {
		return false, &domain.ClassifierError{URL: article.URL, Err: fmt.Errorf("chat completion: %w", err)}
	}

	if len(resp.Choices) == 0 {
		return false, &domain.ClassifierError{URL: article.URL, Err: errors.New("no choices in response")}
	}

	return ParseVerdict(resp.Choices[0].Message.Content), nil
}

// SystemPrompt is the instruction pairing the article with the theme.
func SystemPrompt(theme string) string {
	return fmt.Sprintf("You are a content analyzer. Determine if the following article is related to %s. Respond with 'yes' or 'no' only.", theme)
}

// UserPrompt carries the title and at most limit runes of content.
func UserPrompt(article domain.Article, limit int) string {
	return fmt.Sprintf("Title: %s\nContent: %s", article.Title, truncateRunes(article.Content, limit))
}

// ParseVerdict accepts only a reply that is "yes" after trimming and lower-casing.
func ParseVerdict(reply string) bool {
	return strings.ToLower(strings.TrimSpace(reply)) == "yes"
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
