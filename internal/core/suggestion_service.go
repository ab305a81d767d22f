package core

import (
	"context"
	"fmt"
	"log"
	"strings"

	"gwi.com/shot-suggestor/internal/store"
)

const (
	DefaultGenre    = "Drama"
	DefaultMood     = "Tense"
	DefaultLanguage = "English"
	DefaultNumShots = 5
	MaxNumShots     = 10
)

type SuggestRequest struct {
	Scene    string
	Genre    string
	Mood     string
	Language string
	NumShots int
}

// SuggestionService asks the language model for a shot list and parses its reply.
type SuggestionService struct {
	llm TextGenerator
}

func NewSuggestionService(llm TextGenerator) *SuggestionService {
	return &SuggestionService{llm: llm}
}

func isEnglish(language string) bool {
	return language == "" || strings.EqualFold(language, DefaultLanguage)
}

// Normalize applies defaults and validates the request in place.
func (r *SuggestRequest) Normalize() error {
	r.Scene = strings.TrimSpace(r.Scene)
	if r.Scene == "" {
		return invalid("Please enter a scene description")
	}
	if r.Genre = strings.TrimSpace(r.Genre); r.Genre == "" {
		r.Genre = DefaultGenre
	}
	if r.Mood = strings.TrimSpace(r.Mood); r.Mood == "" {
		r.Mood = DefaultMood
	}
	if r.Language = strings.TrimSpace(r.Language); r.Language == "" {
		r.Language = DefaultLanguage
	}
	if r.NumShots == 0 {
		r.NumShots = DefaultNumShots
	}
	if r.NumShots < 1 || r.NumShots > MaxNumShots {
		return invalid(fmt.Sprintf("Number of shots must be between 1 and %d", MaxNumShots))
	}
	return nil
}

func buildShotPrompt(scene, genre, mood string, numShots int) string {
	return fmt.Sprintf("Scene Description:\n%s\n\n"+
		"Genre: %s\n"+
		"Mood: %s\n"+
		"Suggest %d cinematic shot descriptions in 1–2 lines each. "+
		"Include the shot type and a brief visual/emotional detail. No explanation, no options.",
		scene, genre, mood, numShots)
}

// Suggest returns up to req.NumShots shots for the scene. Non-English scenes are
// translated to English for the model and every description is translated back.
func (s *SuggestionService) Suggest(ctx context.Context, req SuggestRequest) ([]store.Shot, error) {
	if err := req.Normalize(); err != nil {
		return nil, err
	}

	scene := req.Scene
	if !isEnglish(req.Language) {
		translated, err := s.TranslateToEnglish(ctx, scene, req.Language)
		if err != nil {
			return nil, err
		}
		scene = translated
	}

	reply, err := s.llm.Generate(ctx, buildShotPrompt(scene, req.Genre, req.Mood, req.NumShots))
	if err != nil {
		return nil, fmt.Errorf("failed to get shot suggestions: %w", err)
	}

	shots := ParseShots(reply, req.NumShots)
	if len(shots) == 0 {
		log.Printf("Model reply contained no usable shots: %.200q", reply)
		return nil, fmt.Errorf("model reply contained no shot suggestions")
	}

	if !isEnglish(req.Language) {
		for i := range shots {
			translated, err := s.TranslateFromEnglish(ctx, shots[i].Description, req.Language)
			if err != nil {
				return nil, err
			}
			shots[i].DescriptionTranslated = translated
		}
	}
	return shots, nil
}

func (s *SuggestionService) TranslateToEnglish(ctx context.Context, text, srcLanguage string) (string, error) {
	if isEnglish(srcLanguage) {
		return text, nil
	}
	prompt := fmt.Sprintf("Translate this %s cinematic description to English in one sentence only:\n\n%s", srcLanguage, text)
	out, err := s.llm.Generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("failed to translate %s text to English: %w", srcLanguage, err)
	}
	return strings.TrimSpace(out), nil
}

func (s *SuggestionService) TranslateFromEnglish(ctx context.Context, text, dstLanguage string) (string, error) {
	if isEnglish(dstLanguage) {
		return text, nil
	}
	prompt := fmt.Sprintf("Translate the following short English cinematic shot description to concise %s:\n\n%s", dstLanguage, text)
	out, err := s.llm.Generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("failed to translate shot description to %s: %w", dstLanguage, err)
	}
	return strings.TrimSpace(out), nil
}
