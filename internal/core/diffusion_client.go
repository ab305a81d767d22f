package core

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"gwi.com/shot-suggestor/internal/config"
)

// RenderRequest is a fully resolved diffusion call.
type RenderRequest struct {
	Model                string
	Prompt               string
	NegativePrompt       string
	Width                int
	Height               int
	Steps                int
	GuidanceScale        float64
	NumImages            int
	ConditioningImage    []byte // PNG edge map, nil for plain text-to-image
	ConditioningStrength float64
}

// Renderer produces encoded images for a render request.
type Renderer interface {
	Render(ctx context.Context, req RenderRequest) ([][]byte, error)
}

// DiffusionClient talks to an AUTOMATIC1111-compatible Stable Diffusion web API.
// The backend keeps one checkpoint loaded; the client only asks it to switch
// when a request names a different model than the last one it loaded.
type DiffusionClient struct {
	baseURL         string
	controlNetModel string
	httpClient      *http.Client

	mu          sync.Mutex
	loadedModel string
}

func NewDiffusionClient() *DiffusionClient {
	timeout := config.AppConfig.DiffusionTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &DiffusionClient{
		baseURL:         strings.TrimRight(config.AppConfig.DiffusionURL, "/"),
		controlNetModel: config.AppConfig.ControlNetModel,
		httpClient:      &http.Client{Timeout: timeout},
	}
}

type txt2imgRequest struct {
	Prompt          string                  `json:"prompt"`
	NegativePrompt  string                  `json:"negative_prompt,omitempty"`
	Steps           int                     `json:"steps"`
	CFGScale        float64                 `json:"cfg_scale"`
	Width           int                     `json:"width"`
	Height          int                     `json:"height"`
	BatchSize       int                     `json:"batch_size"`
	NIter           int                     `json:"n_iter"`
	AlwaysOnScripts map[string]scriptParams `json:"alwayson_scripts,omitempty"`
}

type scriptParams struct {
	Args []controlNetUnit `json:"args"`
}

type controlNetUnit struct {
	Enabled     bool    `json:"enabled"`
	Image       string  `json:"image"`
	Module      string  `json:"module"`
	Model       string  `json:"model"`
	Weight      float64 `json:"weight"`
	ResizeMode  string  `json:"resize_mode"`
	ControlMode string  `json:"control_mode"`
}

type txt2imgResponse struct {
	Images []string `json:"images"`
}

func (c *DiffusionClient) Render(ctx context.Context, req RenderRequest) ([][]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureModel(ctx, req.Model); err != nil {
		return nil, err
	}

	payload := txt2imgRequest{
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Steps:          req.Steps,
		CFGScale:       req.GuidanceScale,
		Width:          req.Width,
		Height:         req.Height,
		BatchSize:      req.NumImages,
		NIter:          1,
	}
	if req.ConditioningImage != nil {
		// The edge map is already preprocessed, so the extension must not run its own detector.
		payload.AlwaysOnScripts = map[string]scriptParams{
			"controlnet": {Args: []controlNetUnit{{
				Enabled:     true,
				Image:       base64.StdEncoding.EncodeToString(req.ConditioningImage),
				Module:      "none",
				Model:       c.controlNetModel,
				Weight:      req.ConditioningStrength,
				ResizeMode:  "Just Resize",
				ControlMode: "Balanced",
			}}},
		}
	}

	var resp txt2imgResponse
	if err := c.postJSON(ctx, "/sdapi/v1/txt2img", payload, &resp); err != nil {
		return nil, fmt.Errorf("txt2img request failed: %w", err)
	}
	if len(resp.Images) == 0 {
		return nil, fmt.Errorf("diffusion backend returned no images")
	}

	// ControlNet may append its detect maps after the generated batch.
	encoded := resp.Images
	if len(encoded) > req.NumImages {
		encoded = encoded[:req.NumImages]
	}

	images := make([][]byte, 0, len(encoded))
	for i, b64 := range encoded {
		data, err := base64.StdEncoding.DecodeString(stripDataURL(b64))
		if err != nil {
			return nil, fmt.Errorf("failed to decode image %d from diffusion backend: %w", i+1, err)
		}
		images = append(images, data)
	}
	return images, nil
}

// ensureModel must be called with c.mu held.
func (c *DiffusionClient) ensureModel(ctx context.Context, model string) error {
	if model == "" || model == c.loadedModel {
		return nil
	}
	log.Printf("Loading diffusion checkpoint %s", model)
	if err := c.postJSON(ctx, "/sdapi/v1/options", map[string]string{"sd_model_checkpoint": model}, nil); err != nil {
		return fmt.Errorf("failed to load diffusion model %s: %w", model, err)
	}
	c.loadedModel = model
	return nil
}

func (c *DiffusionClient) postJSON(ctx context.Context, path string, body any, out any) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("diffusion backend status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode failed: %w", err)
	}
	return nil
}

func stripDataURL(s string) string {
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ","); i >= 0 {
			return s[i+1:]
		}
	}
	return s
}
