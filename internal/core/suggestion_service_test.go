package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
)

// fakeGenerator answers prompts with reply and records every prompt it sees.
type fakeGenerator struct {
	mu      sync.Mutex
	prompts []string
	reply   func(prompt string) (string, error)
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	return f.reply(prompt)
}

func staticReply(text string) *fakeGenerator {
	return &fakeGenerator{reply: func(string) (string, error) { return text, nil }}
}

// translatingGenerator fakes a model that understands the three prompt shapes.
func translatingGenerator() *fakeGenerator {
	return &fakeGenerator{reply: func(prompt string) (string, error) {
		switch {
		case strings.HasPrefix(prompt, "Translate this"):
			return "  A man waits alone at the station.  ", nil
		case strings.HasPrefix(prompt, "Translate the following"):
			lines := strings.Split(prompt, "\n")
			return "TE: " + lines[len(lines)-1], nil
		default:
			return "1. Wide shot: The platform is empty.\n2. Close-up shot: His hands tremble.", nil
		}
	}}
}

func TestSuggestEnglish(t *testing.T) {
	gen := staticReply("1. Wide shot: A quiet street at dawn.\n2. Tracking shot: A cyclist passes.\n3. Insert shot: A bell rings.")
	svc := NewSuggestionService(gen)

	shots, err := svc.Suggest(context.Background(), SuggestRequest{Scene: "  A town wakes up  ", NumShots: 3})
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if len(shots) != 3 {
		t.Fatalf("got %d shots, want 3", len(shots))
	}
	if shots[1].Name != "Tracking shot" || shots[1].DescriptionTranslated != "" {
		t.Errorf("unexpected shot: %+v", shots[1])
	}

	if len(gen.prompts) != 1 {
		t.Fatalf("English scenes need a single model call, got %d", len(gen.prompts))
	}
	prompt := gen.prompts[0]
	for _, want := range []string{"Scene Description:\nA town wakes up\n", "Genre: Drama", "Mood: Tense", "Suggest 3 cinematic shot descriptions"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestSuggestTranslatesBothWays(t *testing.T) {
	gen := translatingGenerator()
	svc := NewSuggestionService(gen)

	shots, err := svc.Suggest(context.Background(), SuggestRequest{
		Scene:    "ఒక వ్యక్తి స్టేషన్లో ఒంటరిగా ఎదురుచూస్తున్నాడు",
		Genre:    "Drama",
		Mood:     "Melancholy",
		Language: "Telugu",
		NumShots: 2,
	})
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}

	if len(gen.prompts) != 4 {
		t.Fatalf("want 1 scene translation, 1 suggestion and 2 back-translations, got %d calls", len(gen.prompts))
	}
	if !strings.Contains(gen.prompts[1], "A man waits alone at the station.\n") {
		t.Errorf("shot prompt should use the English scene:\n%s", gen.prompts[1])
	}
	if !strings.Contains(gen.prompts[2], "to concise Telugu") {
		t.Errorf("unexpected back-translation prompt:\n%s", gen.prompts[2])
	}
	if shots[0].Description != "The platform is empty." {
		t.Errorf("description should stay English, got %q", shots[0].Description)
	}
	if shots[1].DescriptionTranslated != "TE: His hands tremble." {
		t.Errorf("DescriptionTranslated = %q", shots[1].DescriptionTranslated)
	}
}

func TestSuggestValidation(t *testing.T) {
	tests := []struct {
		name string
		req  SuggestRequest
	}{
		{"empty scene", SuggestRequest{Scene: "   "}},
		{"too many shots", SuggestRequest{Scene: "x", NumShots: MaxNumShots + 1}},
		{"negative shots", SuggestRequest{Scene: "x", NumShots: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := staticReply("unused")
			_, err := NewSuggestionService(gen).Suggest(context.Background(), tt.req)
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
			if len(gen.prompts) != 0 {
				t.Error("model must not be called for invalid input")
			}
		})
	}
}

func TestSuggestFailures(t *testing.T) {
	boom := errors.New("quota exceeded")
	tests := []struct {
		name string
		gen  *fakeGenerator
	}{
		{"model error", &fakeGenerator{reply: func(string) (string, error) { return "", boom }}},
		{"no shots in reply", staticReply("Sure! Here is what I came up with:")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shots, err := NewSuggestionService(tt.gen).Suggest(context.Background(), SuggestRequest{Scene: "x"})
			if err == nil {
				t.Fatalf("expected error, got %+v", shots)
			}
		})
	}

	_, err := NewSuggestionService(&fakeGenerator{reply: func(string) (string, error) { return "", boom }}).
		Suggest(context.Background(), SuggestRequest{Scene: "x"})
	if !errors.Is(err, boom) {
		t.Errorf("model errors should be wrapped, got %v", err)
	}
}

func TestTranslateEnglishIsNoop(t *testing.T) {
	gen := staticReply("should not be used")
	svc := NewSuggestionService(gen)

	out, err := svc.TranslateToEnglish(context.Background(), "hello", "english")
	if err != nil || out != "hello" {
		t.Fatalf("TranslateToEnglish = %q, %v", out, err)
	}
	out, err = svc.TranslateFromEnglish(context.Background(), "hello", "")
	if err != nil || out != "hello" {
		t.Fatalf("TranslateFromEnglish = %q, %v", out, err)
	}
	if len(gen.prompts) != 0 {
		t.Errorf("no model calls expected, got %d", len(gen.prompts))
	}
}
