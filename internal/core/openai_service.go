package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"gwi.com/shot-suggestor/internal/config"
)

// OpenAIService is the OpenAI Chat Completions TextGenerator, selected with LLM_PROVIDER=openai.
type OpenAIService struct {
	client    openai.Client
	modelName string
}

func NewOpenAIService() *OpenAIService {
	modelName := config.AppConfig.LLMModel
	if modelName == "" {
		modelName = string(openai.ChatModelGPT4oMini)
	}
	return &OpenAIService{
		client:    openai.NewClient(option.WithAPIKey(config.AppConfig.OpenAIAPIKey)),
		modelName: modelName,
	}
}

func (s *OpenAIService) Generate(ctx context.Context, prompt string) (string, error) {
	chatCompletion, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(shotSystemInstruction),
			openai.UserMessage(prompt),
		},
		Model:       openai.ChatModel(s.modelName),
		Temperature: openai.Float(0.7),
	})
	if err != nil {
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}

	if len(chatCompletion.Choices) == 0 {
		return "", fmt.Errorf("no response from OpenAI")
	}

	content := strings.TrimSpace(chatCompletion.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("OpenAI returned empty response. Finish reason: %s", chatCompletion.Choices[0].FinishReason)
	}
	return content, nil
}
