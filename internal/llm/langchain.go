package llm

import (
	"context"
	"errors"
	"net/http"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
)

// langChainModel sends prompt requests through langchaingo's googleai model.
type langChainModel struct {
	model llms.Model
}

func newLangChainModel(ctx context.Context, apiKey, model string, httpClient *http.Client) (*langChainModel, error) {
	opts := []googleai.Option{googleai.WithAPIKey(apiKey), googleai.WithDefaultModel(model)}
	if httpClient != nil {
		opts = append(opts, googleai.WithHTTPClient(httpClient))
	}
	llm, err := googleai.New(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &langChainModel{model: llm}, nil
}

func (l *langChainModel) generateText(ctx context.Context, systemInstruction, userContent string, temperature float64) (string, error) {
	resp, err := l.model.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemInstruction),
		llms.TextParts(llms.ChatMessageTypeHuman, userContent),
	}, llms.WithTemperature(temperature))
	if errors.Is(err, googleai.ErrNoContentInResponse) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Content, nil
}
