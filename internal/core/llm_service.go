package core

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
	"gwi.com/shot-suggestor/internal/config"
)

const (
	defaultGeminiModelName = "gemini-2.0-flash"

	shotSystemInstruction = "You are an experienced cinematographer and storyboard artist. " +
		"Answer in plain text only, without headings or commentary."
)

// TextGenerator sends a single prompt to a hosted language model and returns its text reply.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// LLMService is the Gemini-backed TextGenerator.
type LLMService struct {
	client    *genai.Client
	modelName string
}

func NewLLMService() *LLMService {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(config.AppConfig.GeminiAPIKey))
	if err != nil {
		log.Fatalf("Failed to create GenAI client: %v", err)
	}

	modelName := config.AppConfig.LLMModel
	if modelName == "" {
		modelName = defaultGeminiModelName
	}

	return &LLMService{
		client:    client,
		modelName: modelName,
	}
}

func (s *LLMService) Close() {
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			log.Printf("Error closing GenAI client: %v", err)
		} else {
			log.Println("GenAI client closed.")
		}
	}
}

func (s *LLMService) Generate(ctx context.Context, prompt string) (string, error) {
	model := s.client.GenerativeModel(s.modelName)

	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(shotSystemInstruction)},
	}

	temp := float32(0.7)
	model.GenerationConfig = genai.GenerationConfig{
		Temperature: &temp,
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini generate request failed: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini returned an empty response")
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			responseText.WriteString(string(txt))
		} else {
			log.Printf("Gemini response part was not text: %T", part)
		}
	}

	if responseText.Len() == 0 {
		return "", fmt.Errorf("gemini returned no text parts")
	}

	return strings.TrimSpace(responseText.String()), nil
}
