package gemini

import (
	"context"
	"errors"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"sciencefeed/internal/apperr"
)

type Completer struct {
	*keyedClient
	model string
}

func NewCompleter(svc SettingsSource, o Options, opts ...option.ClientOption) *Completer {
	if o.Model == "" {
		o.Model = DefaultCompletionModel
	}
	return &Completer{
		keyedClient: &keyedClient{settings: svc, fallbackKey: o.FallbackKey, clientOpts: opts},
		model:       o.Model,
	}
}

// Complete returns the text of the first candidate, capped at maxTokens output tokens.
func (c *Completer) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	client, err := c.get(ctx)
	if err != nil {
		if errors.Is(err, ErrNoAPIKey) {
			return "", apperr.E(apperr.KindNotConfigured, "gemini.Complete", err)
		}
		return "", apperr.E(apperr.KindTransientNetwork, "gemini.Complete", err)
	}

	model := client.GenerativeModel(c.model)
	if maxTokens > 0 {
		model.SetMaxOutputTokens(int32(maxTokens))
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", classify("gemini.Complete", apperr.KindTransientNetwork, err)
	}

	text := strings.TrimSpace(candidateText(resp))
	if text == "" {
		return "", apperr.E(apperr.KindValidation, "gemini.Complete", errors.New("empty completion"))
	}
	return text, nil
}

func candidateText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	return sb.String()
}
