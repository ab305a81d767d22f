package core

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"gwi.com/shot-suggestor/internal/auth"
	"gwi.com/shot-suggestor/internal/config"
	"gwi.com/shot-suggestor/internal/events"
	"gwi.com/shot-suggestor/internal/store"
)

const (
	minPasswordLength = 6
	// bcrypt only accepts passwords up to this many bytes.
	maxPasswordBytes = 72
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// ProjectService is what the API talks to. It checks ownership and input,
// drives the suggestion and image services and persists their results.
type ProjectService struct {
	dbStore     *store.SQLiteStore
	suggestions *SuggestionService
	images      *ImageService
	publisher   events.Publisher
	catalog     config.Catalog
}

func NewProjectService(db *store.SQLiteStore, suggestions *SuggestionService, images *ImageService, publisher events.Publisher, catalog config.Catalog) *ProjectService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &ProjectService{
		dbStore:     db,
		suggestions: suggestions,
		images:      images,
		publisher:   publisher,
		catalog:     catalog,
	}
}

func (s *ProjectService) Catalog() config.Catalog {
	return s.catalog
}

type SignupRequest struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

func (r SignupRequest) validate() error {
	if strings.TrimSpace(r.Username) == "" || strings.TrimSpace(r.Email) == "" || r.Password == "" || r.ConfirmPassword == "" {
		return invalid("All fields are required")
	}
	if !emailPattern.MatchString(strings.TrimSpace(r.Email)) {
		return invalid("Please enter a valid email address")
	}
	if r.Password != r.ConfirmPassword {
		return invalid("Passwords do not match")
	}
	if len(r.Password) < minPasswordLength {
		return invalid(fmt.Sprintf("Password must be at least %d characters long", minPasswordLength))
	}
	if len(r.Password) > maxPasswordBytes {
		return invalid(fmt.Sprintf("Password must be at most %d bytes", maxPasswordBytes))
	}
	return nil
}

func (s *ProjectService) Signup(req SignupRequest) (*store.User, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := s.dbStore.CreateUser(strings.TrimSpace(req.Username), strings.TrimSpace(req.Email), hash)
	if err != nil {
		return nil, err
	}
	log.Printf("Created user %s (%s)", user.Username, user.ID)
	return user, nil
}

// Login checks the credentials and returns a signed token for the user.
// Unknown users and wrong passwords produce the same error.
func (s *ProjectService) Login(username, password string) (string, *store.User, error) {
	user, err := s.dbStore.GetUserByUsername(strings.TrimSpace(username))
	if err != nil {
		return "", nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil || !auth.CheckPasswordHash(password, user.PasswordHash) {
		return "", nil, ErrInvalidCredentials
	}

	token, err := auth.GenerateJWT(user.ID)
	if err != nil {
		return "", nil, fmt.Errorf("failed to issue token: %w", err)
	}
	return token, user, nil
}

func (s *ProjectService) GetUser(userID string) (*store.User, error) {
	user, err := s.dbStore.GetUserByID(userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNotFound
	}
	return user, nil
}

func (s *ProjectService) CreateProject(userID, name, description string) (*store.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalid("Project name is required")
	}
	return s.dbStore.CreateProject(userID, name, strings.TrimSpace(description))
}

func (s *ProjectService) ListProjects(userID string) ([]store.Project, error) {
	return s.dbStore.GetProjectsByUserID(userID)
}

func (s *ProjectService) GetProject(userID, projectID string) (*store.Project, error) {
	project, err := s.dbStore.GetProjectByID(projectID, userID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, ErrNotFound
	}
	return project, nil
}

func (s *ProjectService) DeleteProject(userID, projectID string) error {
	return s.dbStore.DeleteProject(projectID, userID)
}

type GenerateShotSetRequest struct {
	SceneDescription string `json:"scene_description"`
	Genre            string `json:"genre"`
	Mood             string `json:"mood"`
	Language         string `json:"language"`
	ModelName        string `json:"model_name"`
	NumShots         int    `json:"num_shots"`
}

func contains(options []string, v string) bool {
	for _, o := range options {
		if strings.EqualFold(o, v) {
			return true
		}
	}
	return false
}

// GenerateShotSet asks the model for shots and stores them as a new shot set
// in the project. Nothing is stored when the model call fails.
func (s *ProjectService) GenerateShotSet(ctx context.Context, userID, projectID string, req GenerateShotSetRequest) (*store.ShotSet, error) {
	project, err := s.GetProject(userID, projectID)
	if err != nil {
		return nil, err
	}

	if req.ModelName == "" {
		req.ModelName = DefaultDiffusionModel
	}
	if !s.catalog.HasModel(req.ModelName) {
		return nil, invalid(fmt.Sprintf("Unknown diffusion model %q", req.ModelName))
	}
	if req.Language != "" && !contains(s.catalog.Languages, req.Language) {
		return nil, invalid(fmt.Sprintf("Unsupported language %q", req.Language))
	}

	suggest := SuggestRequest{
		Scene:    req.SceneDescription,
		Genre:    req.Genre,
		Mood:     req.Mood,
		Language: req.Language,
		NumShots: req.NumShots,
	}
	if err := suggest.Normalize(); err != nil {
		return nil, err
	}

	shots, err := s.suggestions.Suggest(ctx, suggest)
	if err != nil {
		return nil, err
	}

	set := &store.ShotSet{
		ProjectID:        project.ID,
		SceneDescription: suggest.Scene,
		Genre:            suggest.Genre,
		Mood:             suggest.Mood,
		Language:         suggest.Language,
		ModelName:        req.ModelName,
		NumShots:         suggest.NumShots,
		Shots:            shots,
	}
	if err := s.dbStore.CreateShotSet(set); err != nil {
		return nil, fmt.Errorf("failed to save shot set: %w", err)
	}
	log.Printf("Saved shot set %s with %d shots in project %s", set.ID, len(set.Shots), project.ID)

	s.publish(ctx, events.Event{
		Type:      events.TypeShotSetGenerated,
		UserID:    userID,
		ProjectID: project.ID,
		ShotSetID: set.ID,
		NumShots:  len(set.Shots),
		ModelName: set.ModelName,
	})
	return set, nil
}

func (s *ProjectService) ListShotSets(userID, projectID string) ([]store.ShotSet, error) {
	if _, err := s.GetProject(userID, projectID); err != nil {
		return nil, err
	}
	return s.dbStore.GetShotSetsByProjectID(projectID)
}

// ShotSetDetail is a shot set with its images grouped by shot number.
// Image payloads are left out; clients fetch them one by one.
type ShotSetDetail struct {
	*store.ShotSet
	Images map[int][]store.ShotImage `json:"images"`
}

func (s *ProjectService) getShotSet(userID, shotSetID string) (*store.ShotSet, error) {
	set, err := s.dbStore.GetShotSetByID(shotSetID, userID)
	if err != nil {
		return nil, err
	}
	if set == nil {
		return nil, ErrNotFound
	}
	return set, nil
}

func (s *ProjectService) GetShotSet(userID, shotSetID string) (*ShotSetDetail, error) {
	set, err := s.getShotSet(userID, shotSetID)
	if err != nil {
		return nil, err
	}
	images, err := s.dbStore.GetShotImages(set.ID, 0)
	if err != nil {
		return nil, err
	}

	detail := &ShotSetDetail{ShotSet: set, Images: make(map[int][]store.ShotImage)}
	for _, img := range images {
		img.ImageData = ""
		detail.Images[img.ShotNum] = append(detail.Images[img.ShotNum], img)
	}
	return detail, nil
}

// ShotUpdate edits a shot in place. Nil fields are left unchanged.
type ShotUpdate struct {
	Name                  *string `json:"name"`
	Description           *string `json:"description"`
	DescriptionTranslated *string `json:"description_translated"`
}

func (s *ProjectService) UpdateShot(userID, shotSetID string, shotNum int, upd ShotUpdate) (*store.ShotSet, error) {
	set, err := s.getShotSet(userID, shotSetID)
	if err != nil {
		return nil, err
	}
	shot := set.ShotByNum(shotNum)
	if shot == nil {
		return nil, ErrShotNotFound
	}

	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, invalid("Shot name cannot be empty")
		}
		shot.Name = name
	}
	if upd.Description != nil {
		desc := strings.TrimSpace(*upd.Description)
		if desc == "" {
			return nil, invalid("Shot description cannot be empty")
		}
		shot.Description = desc
	}
	if upd.DescriptionTranslated != nil {
		shot.DescriptionTranslated = strings.TrimSpace(*upd.DescriptionTranslated)
	}

	if err := s.dbStore.UpdateShotSetShots(set.ID, set.Shots); err != nil {
		return nil, fmt.Errorf("failed to save shot edit: %w", err)
	}
	return set, nil
}

func (s *ProjectService) DeleteShotSet(userID, shotSetID string) error {
	return s.dbStore.DeleteShotSet(shotSetID, userID)
}

// ImageOptions are the user-tunable rendering parameters for one shot.
// ModelName overrides the shot set's model when set.
type ImageOptions struct {
	ModelName            string  `json:"model_name"`
	Width                int     `json:"width"`
	Height               int     `json:"height"`
	Steps                int     `json:"steps"`
	GuidanceScale        float64 `json:"guidance_scale"`
	NumImages            int     `json:"num_images"`
	UseConditioning      bool    `json:"use_conditioning"`
	ReferenceImage       []byte  `json:"reference_image"` // base64 in JSON
	ConditioningStrength float64 `json:"conditioning_strength"`
}

// GenerateImages renders the shot and stores every resulting image.
func (s *ProjectService) GenerateImages(ctx context.Context, userID, shotSetID string, shotNum int, opts ImageOptions) ([]store.ShotImage, error) {
	set, err := s.getShotSet(userID, shotSetID)
	if err != nil {
		return nil, err
	}
	shot := set.ShotByNum(shotNum)
	if shot == nil {
		return nil, ErrShotNotFound
	}

	model := set.ModelName
	if opts.ModelName != "" {
		if !s.catalog.HasModel(opts.ModelName) {
			return nil, invalid(fmt.Sprintf("Unknown diffusion model %q", opts.ModelName))
		}
		model = opts.ModelName
	}

	result, err := s.images.Generate(ctx, ImageRequest{
		Scene:                set.SceneDescription,
		SceneLanguage:        set.Language,
		ShotDescription:      shot.Description,
		Model:                model,
		Width:                opts.Width,
		Height:               opts.Height,
		Steps:                opts.Steps,
		GuidanceScale:        opts.GuidanceScale,
		NumImages:            opts.NumImages,
		UseConditioning:      opts.UseConditioning,
		ReferenceImage:       opts.ReferenceImage,
		ConditioningStrength: opts.ConditioningStrength,
	})
	if err != nil {
		return nil, err
	}

	saved := make([]store.ShotImage, 0, len(result.Images))
	ids := make([]string, 0, len(result.Images))
	for _, data := range result.Images {
		img := &store.ShotImage{
			ShotSetID:   set.ID,
			ShotNum:     shotNum,
			Prompt:      result.Prompt,
			ModelName:   result.Model,
			Width:       result.Width,
			Height:      result.Height,
			Conditioned: result.Conditioned,
			ImageData:   base64.StdEncoding.EncodeToString(data),
		}
		if err := s.dbStore.CreateShotImage(img); err != nil {
			return nil, fmt.Errorf("failed to save image for shot %d: %w", shotNum, err)
		}
		img.ImageData = ""
		saved = append(saved, *img)
		ids = append(ids, img.ID)
	}

	s.publish(ctx, events.Event{
		Type:      events.TypeImageRendered,
		UserID:    userID,
		ProjectID: set.ProjectID,
		ShotSetID: set.ID,
		ShotNum:   shotNum,
		ImageIDs:  ids,
		ModelName: result.Model,
	})
	return saved, nil
}

func (s *ProjectService) ListShotImages(userID, shotSetID string, shotNum int) ([]store.ShotImage, error) {
	set, err := s.getShotSet(userID, shotSetID)
	if err != nil {
		return nil, err
	}
	if !set.HasShot(shotNum) {
		return nil, ErrShotNotFound
	}
	images, err := s.dbStore.GetShotImages(set.ID, shotNum)
	if err != nil {
		return nil, err
	}
	for i := range images {
		images[i].ImageData = ""
	}
	return images, nil
}

// GetImagePNG returns the decoded image bytes for an image the user owns.
func (s *ProjectService) GetImagePNG(userID, imageID string) ([]byte, error) {
	img, err := s.dbStore.GetShotImageByID(imageID, userID)
	if err != nil {
		return nil, err
	}
	if img == nil {
		return nil, ErrNotFound
	}
	data, err := base64.StdEncoding.DecodeString(img.ImageData)
	if err != nil {
		return nil, fmt.Errorf("stored image %s is corrupt: %w", img.ID, err)
	}
	return data, nil
}

// publish never fails the caller; the data is already stored.
func (s *ProjectService) publish(ctx context.Context, event events.Event) {
	event.OccurredAt = time.Now().UTC()
	if err := s.publisher.Publish(ctx, event); err != nil {
		log.Printf("Failed to publish %s event: %v", event.Type, err)
	}
}
