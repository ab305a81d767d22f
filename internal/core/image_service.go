package core

import (
	"context"
	"fmt"
	"log"
	"strings"
)

const (
	DefaultDiffusionModel       = "CompVis/stable-diffusion-v1-4"
	DefaultImageSize            = 320
	DefaultSteps                = 25
	DefaultGuidanceScale        = 7.5
	DefaultNumImages            = 1
	DefaultConditioningStrength = 1.0

	minImageSize            = 64
	maxImageSize            = 1024
	maxSteps                = 150
	maxGuidanceScale        = 30.0
	maxNumImages            = 4
	maxConditioningStrength = 2.0
)

// ImageRequest describes one image generation for a single shot.
// Zero values are replaced by the defaults above.
type ImageRequest struct {
	Scene           string
	SceneLanguage   string
	ShotDescription string // always English
	Model           string

	Width         int
	Height        int
	Steps         int
	GuidanceScale float64
	NumImages     int

	UseConditioning      bool
	ReferenceImage       []byte
	ConditioningStrength float64
}

// RenderedImages is the outcome of a generation call.
type RenderedImages struct {
	Prompt      string
	Model       string
	Width       int
	Height      int
	Conditioned bool
	Images      [][]byte
}

// ImageService turns a scene and a shot description into rendered stills.
type ImageService struct {
	renderer   Renderer
	translator *SuggestionService
}

func NewImageService(renderer Renderer, translator *SuggestionService) *ImageService {
	return &ImageService{renderer: renderer, translator: translator}
}

func (r *ImageRequest) Normalize() error {
	r.Scene = strings.TrimSpace(r.Scene)
	r.ShotDescription = strings.TrimSpace(r.ShotDescription)
	if r.Scene == "" && r.ShotDescription == "" {
		return invalid("Nothing to render: scene and shot description are empty")
	}
	if r.Model == "" {
		r.Model = DefaultDiffusionModel
	}
	if r.Width == 0 {
		r.Width = DefaultImageSize
	}
	if r.Height == 0 {
		r.Height = DefaultImageSize
	}
	if r.Steps == 0 {
		r.Steps = DefaultSteps
	}
	if r.GuidanceScale == 0 {
		r.GuidanceScale = DefaultGuidanceScale
	}
	if r.NumImages == 0 {
		r.NumImages = DefaultNumImages
	}
	if r.ConditioningStrength == 0 {
		r.ConditioningStrength = DefaultConditioningStrength
	}

	for _, dim := range []struct {
		name  string
		value int
	}{{"Width", r.Width}, {"Height", r.Height}} {
		if dim.value < minImageSize || dim.value > maxImageSize || dim.value%8 != 0 {
			return invalid(fmt.Sprintf("%s must be a multiple of 8 between %d and %d", dim.name, minImageSize, maxImageSize))
		}
	}
	if r.Steps < 1 || r.Steps > maxSteps {
		return invalid(fmt.Sprintf("Steps must be between 1 and %d", maxSteps))
	}
	if r.GuidanceScale < 0 || r.GuidanceScale > maxGuidanceScale {
		return invalid(fmt.Sprintf("Guidance scale must be between 0 and %.0f", maxGuidanceScale))
	}
	if r.NumImages < 1 || r.NumImages > maxNumImages {
		return invalid(fmt.Sprintf("Number of images must be between 1 and %d", maxNumImages))
	}
	if r.ConditioningStrength < 0 || r.ConditioningStrength > maxConditioningStrength {
		return invalid(fmt.Sprintf("Conditioning strength must be between 0 and %.0f", maxConditioningStrength))
	}
	if r.UseConditioning && len(r.ReferenceImage) == 0 {
		return ErrMissingReference
	}
	return nil
}

func joinPrompt(scene, shot string) string {
	switch {
	case scene == "":
		return shot
	case shot == "":
		return scene
	}
	return scene + ", " + shot
}

// Generate renders the shot. With UseConditioning set, the reference image is
// reduced to an edge map that constrains the composition.
func (s *ImageService) Generate(ctx context.Context, req ImageRequest) (*RenderedImages, error) {
	if err := req.Normalize(); err != nil {
		return nil, err
	}

	scene := req.Scene
	if scene != "" && !isEnglish(req.SceneLanguage) && s.translator != nil {
		translated, err := s.translator.TranslateToEnglish(ctx, scene, req.SceneLanguage)
		if err != nil {
			return nil, err
		}
		scene = translated
	}
	prompt := joinPrompt(scene, req.ShotDescription)

	render := RenderRequest{
		Model:         req.Model,
		Prompt:        prompt,
		Width:         req.Width,
		Height:        req.Height,
		Steps:         req.Steps,
		GuidanceScale: req.GuidanceScale,
		NumImages:     req.NumImages,
	}
	if req.UseConditioning {
		edgeMap, err := BuildEdgeMap(req.ReferenceImage, req.Width, req.Height)
		if err != nil {
			return nil, err
		}
		render.ConditioningImage = edgeMap
		render.ConditioningStrength = req.ConditioningStrength
	}

	log.Printf("Rendering %d image(s) with %s (%dx%d, conditioned=%t)", req.NumImages, req.Model, req.Width, req.Height, req.UseConditioning)
	images, err := s.renderer.Render(ctx, render)
	if err != nil {
		return nil, fmt.Errorf("image generation failed: %w", err)
	}

	return &RenderedImages{
		Prompt:      prompt,
		Model:       req.Model,
		Width:       req.Width,
		Height:      req.Height,
		Conditioned: req.UseConditioning,
		Images:      images,
	}, nil
}
