package core

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"gwi.com/shot-suggestor/internal/auth"
	"gwi.com/shot-suggestor/internal/config"
	"gwi.com/shot-suggestor/internal/events"
	"gwi.com/shot-suggestor/internal/store"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

type projectFixture struct {
	svc       *ProjectService
	db        *store.SQLiteStore
	gen       *fakeGenerator
	renderer  *fakeRenderer
	publisher *recordingPublisher
}

func newProjectFixture(t *testing.T) *projectFixture {
	t.Helper()

	prev := config.AppConfig
	config.AppConfig.JWTSecret = "project-test-secret"
	config.AppConfig.JWTTTLHours = 1
	config.AppConfig.BcryptCost = 4
	t.Cleanup(func() { config.AppConfig = prev })

	db, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	gen := translatingGenerator()
	suggestions := NewSuggestionService(gen)
	renderer := &fakeRenderer{}
	publisher := &recordingPublisher{}
	svc := NewProjectService(db, suggestions, NewImageService(renderer, suggestions), publisher, config.DefaultCatalog())
	return &projectFixture{svc: svc, db: db, gen: gen, renderer: renderer, publisher: publisher}
}

func (f *projectFixture) signup(t *testing.T, name string) *store.User {
	t.Helper()
	u, err := f.svc.Signup(SignupRequest{Username: name, Email: name + "@example.com", Password: "secret1", ConfirmPassword: "secret1"})
	if err != nil {
		t.Fatalf("Signup(%s): %v", name, err)
	}
	return u
}

func TestSignupValidation(t *testing.T) {
	f := newProjectFixture(t)
	valid := SignupRequest{Username: "alice", Email: "alice@example.com", Password: "secret1", ConfirmPassword: "secret1"}

	tests := []struct {
		name   string
		mutate func(*SignupRequest)
	}{
		{"missing username", func(r *SignupRequest) { r.Username = " " }},
		{"missing confirmation", func(r *SignupRequest) { r.ConfirmPassword = "" }},
		{"bad email", func(r *SignupRequest) { r.Email = "alice@localhost" }},
		{"mismatch", func(r *SignupRequest) { r.ConfirmPassword = "secret2" }},
		{"short password", func(r *SignupRequest) { r.Password, r.ConfirmPassword = "abc", "abc" }},
		{"password too long for bcrypt", func(r *SignupRequest) {
			long := strings.Repeat("a", 80)
			r.Password, r.ConfirmPassword = long, long
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			_, err := f.svc.Signup(req)
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
		})
	}

	if _, err := f.svc.Signup(valid); err != nil {
		t.Fatalf("valid signup: %v", err)
	}
	if _, err := f.svc.Signup(valid); !errors.Is(err, ErrUserExists) {
		t.Fatalf("duplicate signup err = %v, want ErrUserExists", err)
	}
}

func TestLogin(t *testing.T) {
	f := newProjectFixture(t)
	alice := f.signup(t, "alice")

	token, user, err := f.svc.Login("alice", "secret1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if user.ID != alice.ID {
		t.Errorf("logged in as %s, want %s", user.ID, alice.ID)
	}
	sub, err := auth.ValidateJWT(token)
	if err != nil || sub != alice.ID {
		t.Errorf("token subject = %q, %v", sub, err)
	}

	for _, creds := range [][2]string{{"alice", "wrong-pass"}, {"nobody", "secret1"}} {
		if _, _, err := f.svc.Login(creds[0], creds[1]); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("Login(%s) err = %v, want ErrInvalidCredentials", creds[0], err)
		}
	}
}

func TestGenerateShotSetFlow(t *testing.T) {
	f := newProjectFixture(t)
	alice := f.signup(t, "alice")
	bob := f.signup(t, "bob")
	ctx := context.Background()

	project, err := f.svc.CreateProject(alice.ID, "  Short film ", "")
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if project.Name != "Short film" {
		t.Errorf("project name not trimmed: %q", project.Name)
	}

	set, err := f.svc.GenerateShotSet(ctx, alice.ID, project.ID, GenerateShotSetRequest{
		SceneDescription: "A man waits at the station",
		NumShots:         2,
	})
	if err != nil {
		t.Fatalf("GenerateShotSet: %v", err)
	}
	if set.Genre != DefaultGenre || set.Mood != DefaultMood || set.ModelName != DefaultDiffusionModel || len(set.Shots) != 2 {
		t.Errorf("unexpected shot set: %+v", set)
	}
	if len(f.publisher.events) != 1 || f.publisher.events[0].Type != events.TypeShotSetGenerated || f.publisher.events[0].ShotSetID != set.ID {
		t.Errorf("unexpected events: %+v", f.publisher.events)
	}

	if _, err := f.svc.GenerateShotSet(ctx, bob.ID, project.ID, GenerateShotSetRequest{SceneDescription: "x"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("bob generating in alice's project: err = %v, want ErrNotFound", err)
	}

	sets, err := f.svc.ListShotSets(alice.ID, project.ID)
	if err != nil || len(sets) != 1 {
		t.Fatalf("ListShotSets = %d, %v", len(sets), err)
	}
	projects, _ := f.svc.ListProjects(alice.ID)
	if len(projects) != 1 || projects[0].ShotSetCount != 1 {
		t.Errorf("project list should count the shot set: %+v", projects)
	}
}

func TestGenerateShotSetRejectsUnknownChoices(t *testing.T) {
	f := newProjectFixture(t)
	alice := f.signup(t, "alice")
	project, _ := f.svc.CreateProject(alice.ID, "Film", "")

	tests := []struct {
		name string
		req  GenerateShotSetRequest
	}{
		{"unknown model", GenerateShotSetRequest{SceneDescription: "x", ModelName: "acme/unknown"}},
		{"unknown language", GenerateShotSetRequest{SceneDescription: "x", Language: "Klingon"}},
		{"empty scene", GenerateShotSetRequest{SceneDescription: ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.GenerateShotSet(context.Background(), alice.ID, project.ID, tt.req)
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
		})
	}
	if len(f.gen.prompts) != 0 {
		t.Errorf("model should not be called for rejected input, got %d calls", len(f.gen.prompts))
	}
}

func TestGenerateShotSetModelFailureStoresNothing(t *testing.T) {
	f := newProjectFixture(t)
	alice := f.signup(t, "alice")
	project, _ := f.svc.CreateProject(alice.ID, "Film", "")
	f.gen.reply = func(string) (string, error) { return "", errors.New("model unavailable") }

	if _, err := f.svc.GenerateShotSet(context.Background(), alice.ID, project.ID, GenerateShotSetRequest{SceneDescription: "x"}); err == nil {
		t.Fatal("expected error")
	}
	sets, _ := f.svc.ListShotSets(alice.ID, project.ID)
	if len(sets) != 0 {
		t.Errorf("no shot set should be stored, got %d", len(sets))
	}
	if len(f.publisher.events) != 0 {
		t.Errorf("no event should be published, got %+v", f.publisher.events)
	}
}

func TestUpdateShot(t *testing.T) {
	f := newProjectFixture(t)
	alice := f.signup(t, "alice")
	project, _ := f.svc.CreateProject(alice.ID, "Film", "")
	set, err := f.svc.GenerateShotSet(context.Background(), alice.ID, project.ID, GenerateShotSetRequest{SceneDescription: "x", NumShots: 2})
	if err != nil {
		t.Fatal(err)
	}

	name := "Dolly zoom"
	updated, err := f.svc.UpdateShot(alice.ID, set.ID, 2, ShotUpdate{Name: &name})
	if err != nil {
		t.Fatalf("UpdateShot: %v", err)
	}
	if updated.Shots[1].Name != "Dolly zoom" || updated.Shots[1].Description != "His hands tremble." || updated.Shots[1].Num != 2 {
		t.Errorf("unexpected shot after edit: %+v", updated.Shots[1])
	}

	detail, _ := f.svc.GetShotSet(alice.ID, set.ID)
	if detail.Shots[1].Name != "Dolly zoom" {
		t.Errorf("edit not persisted: %+v", detail.Shots[1])
	}

	empty := "  "
	if _, err := f.svc.UpdateShot(alice.ID, set.ID, 1, ShotUpdate{Description: &empty}); err == nil {
		t.Error("empty description should be rejected")
	}
	if _, err := f.svc.UpdateShot(alice.ID, set.ID, 9, ShotUpdate{Name: &name}); !errors.Is(err, ErrShotNotFound) {
		t.Errorf("err = %v, want ErrShotNotFound", err)
	}
}

func TestGenerateImagesFlow(t *testing.T) {
	f := newProjectFixture(t)
	alice := f.signup(t, "alice")
	bob := f.signup(t, "bob")
	ctx := context.Background()
	project, _ := f.svc.CreateProject(alice.ID, "Film", "")
	set, err := f.svc.GenerateShotSet(ctx, alice.ID, project.ID, GenerateShotSetRequest{
		SceneDescription: "A rainy platform", NumShots: 2, ModelName: "runwayml/stable-diffusion-v1-5",
	})
	if err != nil {
		t.Fatal(err)
	}

	images, err := f.svc.GenerateImages(ctx, alice.ID, set.ID, 2, ImageOptions{NumImages: 2})
	if err != nil {
		t.Fatalf("GenerateImages: %v", err)
	}
	if len(images) != 2 {
		t.Fatalf("got %d images, want 2", len(images))
	}
	if images[0].Prompt != "A rainy platform, His hands tremble." || images[0].ModelName != "runwayml/stable-diffusion-v1-5" {
		t.Errorf("unexpected image: %+v", images[0])
	}
	if images[0].ImageData != "" {
		t.Error("returned images should not carry payloads")
	}

	data, err := f.svc.GetImagePNG(alice.ID, images[0].ID)
	if err != nil || !bytes.Equal(data, []byte("png")) {
		t.Fatalf("GetImagePNG = %q, %v", data, err)
	}
	if _, err := f.svc.GetImagePNG(bob.ID, images[0].ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("bob fetching alice's image: err = %v, want ErrNotFound", err)
	}

	listed, err := f.svc.ListShotImages(alice.ID, set.ID, 2)
	if err != nil || len(listed) != 2 {
		t.Fatalf("ListShotImages = %d, %v", len(listed), err)
	}

	detail, err := f.svc.GetShotSet(alice.ID, set.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(detail.Images[2]) != 2 || len(detail.Images[1]) != 0 {
		t.Errorf("images not grouped by shot: %+v", detail.Images)
	}

	last := f.publisher.events[len(f.publisher.events)-1]
	if last.Type != events.TypeImageRendered || last.ShotNum != 2 || len(last.ImageIDs) != 2 {
		t.Errorf("unexpected image event: %+v", last)
	}
}

func TestGenerateImagesErrors(t *testing.T) {
	f := newProjectFixture(t)
	alice := f.signup(t, "alice")
	ctx := context.Background()
	project, _ := f.svc.CreateProject(alice.ID, "Film", "")
	set, err := f.svc.GenerateShotSet(ctx, alice.ID, project.ID, GenerateShotSetRequest{SceneDescription: "x", NumShots: 2})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.svc.GenerateImages(ctx, alice.ID, set.ID, 3, ImageOptions{}); !errors.Is(err, ErrShotNotFound) {
		t.Errorf("err = %v, want ErrShotNotFound", err)
	}
	if _, err := f.svc.GenerateImages(ctx, alice.ID, set.ID, 1, ImageOptions{UseConditioning: true}); !errors.Is(err, ErrMissingReference) {
		t.Errorf("err = %v, want ErrMissingReference", err)
	}
	if _, err := f.svc.GenerateImages(ctx, alice.ID, "missing", 1, ImageOptions{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if len(f.renderer.calls) != 0 {
		t.Errorf("renderer should not be called, got %d calls", len(f.renderer.calls))
	}

	// A broker outage does not fail a render that was already stored.
	f.publisher.err = errors.New("broker down")
	if _, err := f.svc.GenerateImages(ctx, alice.ID, set.ID, 1, ImageOptions{}); err != nil {
		t.Fatalf("publish errors must not fail the request: %v", err)
	}
}

func TestDeleteProjectRemovesShotSets(t *testing.T) {
	f := newProjectFixture(t)
	alice := f.signup(t, "alice")
	bob := f.signup(t, "bob")
	project, _ := f.svc.CreateProject(alice.ID, "Film", "")
	set, err := f.svc.GenerateShotSet(context.Background(), alice.ID, project.ID, GenerateShotSetRequest{SceneDescription: "x"})
	if err != nil {
		t.Fatal(err)
	}

	if err := f.svc.DeleteProject(bob.ID, project.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("bob delete err = %v, want ErrNotFound", err)
	}
	if err := f.svc.DeleteProject(alice.ID, project.ID); err != nil {
		t.Fatalf("DeleteProject: %v", err)
	}
	if _, err := f.svc.GetShotSet(alice.ID, set.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("shot set should be gone, err = %v", err)
	}
}
