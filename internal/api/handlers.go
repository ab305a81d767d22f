package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"gwi.com/shot-suggestor/internal/auth"
	"gwi.com/shot-suggestor/internal/core"
)

// Reference images travel base64-encoded inside JSON bodies.
const maxRequestBody = 20 << 20

type contextKey string

const userIDKey contextKey = "userID"

func userIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok
}

type APIHandler struct {
	projectService *core.ProjectService
}

func NewAPIHandler(ps *core.ProjectService) *APIHandler {
	return &APIHandler{projectService: ps}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

// writeServiceError maps service errors to status codes. Anything unexpected
// is logged and reported as a generic failure.
func writeServiceError(w http.ResponseWriter, err error, action string) {
	var vErr *core.ValidationError
	switch {
	case errors.As(err, &vErr):
		http.Error(w, vErr.Message, http.StatusBadRequest)
	case errors.Is(err, core.ErrMissingReference):
		http.Error(w, "A reference image is required when conditioning is enabled", http.StatusBadRequest)
	case errors.Is(err, core.ErrUserExists):
		http.Error(w, "Username or email already exists", http.StatusConflict)
	case errors.Is(err, core.ErrInvalidCredentials):
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
	case errors.Is(err, core.ErrShotNotFound):
		http.Error(w, "Shot not found", http.StatusNotFound)
	case errors.Is(err, core.ErrNotFound):
		http.Error(w, "Not found", http.StatusNotFound)
	default:
		log.Printf("Error trying to %s: %v", action, err)
		http.Error(w, "Failed to "+action, http.StatusInternalServerError)
	}
}

func (h *APIHandler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header is required", http.StatusUnauthorized)
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		userID, err := auth.ValidateJWT(tokenString)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		if _, err := h.projectService.GetUser(userID); err != nil {
			if errors.Is(err, core.ErrNotFound) {
				http.Error(w, "User not found", http.StatusUnauthorized)
				return
			}
			log.Printf("Error in JWTAuthMiddleware for user %s: %v", userID, err)
			http.Error(w, "Failed to process user identity", http.StatusInternalServerError)
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *APIHandler) SignupHandler(w http.ResponseWriter, r *http.Request) {
	var req core.SignupRequest
	if !decodeBody(w, r, &req) {
		return
	}

	user, err := h.projectService.Signup(req)
	if err != nil {
		writeServiceError(w, err, "create user")
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		http.Error(w, "Username and password are required", http.StatusBadRequest)
		return
	}

	token, user, err := h.projectService.Login(req.Username, req.Password)
	if err != nil {
		writeServiceError(w, err, "log in")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": token, "user": user})
}

func (h *APIHandler) CatalogHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.projectService.Catalog())
}

func (h *APIHandler) MeHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())
	user, err := h.projectService.GetUser(userID)
	if err != nil {
		writeServiceError(w, err, "load user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type CreateProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h *APIHandler) CreateProjectHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())

	var req CreateProjectRequest
	if !decodeBody(w, r, &req) {
		return
	}

	project, err := h.projectService.CreateProject(userID, req.Name, req.Description)
	if err != nil {
		writeServiceError(w, err, "create project")
		return
	}
	writeJSON(w, http.StatusCreated, project)
}

func (h *APIHandler) ListProjectsHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())

	projects, err := h.projectService.ListProjects(userID)
	if err != nil {
		writeServiceError(w, err, "list projects")
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

func (h *APIHandler) GetProjectHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())
	projectID := chi.URLParam(r, "projectID")

	project, err := h.projectService.GetProject(userID, projectID)
	if err != nil {
		writeServiceError(w, err, "get project")
		return
	}
	writeJSON(w, http.StatusOK, project)
}

func (h *APIHandler) DeleteProjectHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())
	projectID := chi.URLParam(r, "projectID")

	if err := h.projectService.DeleteProject(userID, projectID); err != nil {
		writeServiceError(w, err, "delete project")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) GenerateShotSetHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())
	projectID := chi.URLParam(r, "projectID")

	var req core.GenerateShotSetRequest
	if !decodeBody(w, r, &req) {
		return
	}

	set, err := h.projectService.GenerateShotSet(r.Context(), userID, projectID, req)
	if err != nil {
		writeServiceError(w, err, "generate shots")
		return
	}
	writeJSON(w, http.StatusCreated, set)
}

func (h *APIHandler) ListShotSetsHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())
	projectID := chi.URLParam(r, "projectID")

	sets, err := h.projectService.ListShotSets(userID, projectID)
	if err != nil {
		writeServiceError(w, err, "list shot sets")
		return
	}
	writeJSON(w, http.StatusOK, sets)
}

func (h *APIHandler) GetShotSetHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())
	shotSetID := chi.URLParam(r, "shotSetID")

	detail, err := h.projectService.GetShotSet(userID, shotSetID)
	if err != nil {
		writeServiceError(w, err, "get shot set")
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *APIHandler) DeleteShotSetHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())
	shotSetID := chi.URLParam(r, "shotSetID")

	if err := h.projectService.DeleteShotSet(userID, shotSetID); err != nil {
		writeServiceError(w, err, "delete shot set")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func shotNumParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	num, err := strconv.Atoi(chi.URLParam(r, "shotNum"))
	if err != nil || num < 1 {
		http.Error(w, "Shot number must be a positive integer", http.StatusBadRequest)
		return 0, false
	}
	return num, true
}

func (h *APIHandler) UpdateShotHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())
	shotSetID := chi.URLParam(r, "shotSetID")
	shotNum, ok := shotNumParam(w, r)
	if !ok {
		return
	}

	var req core.ShotUpdate
	if !decodeBody(w, r, &req) {
		return
	}

	set, err := h.projectService.UpdateShot(userID, shotSetID, shotNum, req)
	if err != nil {
		writeServiceError(w, err, "update shot")
		return
	}
	writeJSON(w, http.StatusOK, set)
}

func (h *APIHandler) GenerateImagesHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())
	shotSetID := chi.URLParam(r, "shotSetID")
	shotNum, ok := shotNumParam(w, r)
	if !ok {
		return
	}

	var req core.ImageOptions
	if r.Body != http.NoBody {
		if !decodeBody(w, r, &req) {
			return
		}
	}

	images, err := h.projectService.GenerateImages(r.Context(), userID, shotSetID, shotNum, req)
	if err != nil {
		writeServiceError(w, err, "generate images")
		return
	}
	writeJSON(w, http.StatusCreated, images)
}

func (h *APIHandler) ListShotImagesHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())
	shotSetID := chi.URLParam(r, "shotSetID")
	shotNum, ok := shotNumParam(w, r)
	if !ok {
		return
	}

	images, err := h.projectService.ListShotImages(userID, shotSetID, shotNum)
	if err != nil {
		writeServiceError(w, err, "list images")
		return
	}
	writeJSON(w, http.StatusOK, images)
}

func (h *APIHandler) GetImageHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())
	imageID := chi.URLParam(r, "imageID")

	data, err := h.projectService.GetImagePNG(userID, imageID)
	if err != nil {
		writeServiceError(w, err, "get image")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}
