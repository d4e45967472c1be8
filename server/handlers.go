package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"Tunehub/core/auth"
	"Tunehub/core/relay"
	"Tunehub/logger"
	"Tunehub/model"
	"Tunehub/repository"
)

// Broadcaster publishes events to every relay connection.
type Broadcaster interface {
	Broadcast(event relay.Event, payload interface{})
	Online() int
}

// AssetUploader stores uploaded files and returns their public URL.
type AssetUploader interface {
	Put(ctx context.Context, prefix, filename string, r io.Reader, size int64, contentType string) (string, error)
}

// Deps are the collaborators of APIHandler.
type Deps struct {
	Users      repository.UserRepository
	Messages   repository.MessageRepository
	Songs      repository.SongRepository
	Albums     repository.AlbumRepository
	Activities repository.ActivityRepository
	Assets     AssetUploader
	Relay      Broadcaster

	AdminExternalID string
	AdminEmail      string
}

// APIHandler serves the REST API.
type APIHandler struct {
	users      repository.UserRepository
	messages   repository.MessageRepository
	songs      repository.SongRepository
	albums     repository.AlbumRepository
	activities repository.ActivityRepository
	assets     AssetUploader
	relay      Broadcaster

	adminExternalID string
	adminEmail      string
}

// NewAPIHandler 创建 API 处理器
func NewAPIHandler(d Deps) *APIHandler {
	return &APIHandler{
		users:           d.Users,
		messages:        d.Messages,
		songs:           d.Songs,
		albums:          d.Albums,
		activities:      d.Activities,
		assets:          d.Assets,
		relay:           d.Relay,
		adminExternalID: d.AdminExternalID,
		adminEmail:      d.AdminEmail,
	}
}

func (h *APIHandler) isAdmin(r *http.Request) bool {
	id, _ := auth.IdentityFromContext(r.Context())
	return auth.IsAdmin(id, h.adminExternalID, h.adminEmail)
}

// currentUser loads the stored user for the caller's identity.
func (h *APIHandler) currentUser(r *http.Request) (*model.User, error) {
	return h.users.FindByExternalID(r.Context(), auth.ExternalIDFromContext(r.Context()))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", logger.ErrorField(err))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"success": false,
		"message": message,
	})
}

// fail maps repository sentinels onto HTTP statuses. subject names the
// resource, e.g. "Song". Anything unrecognised is logged and reported as a 500.
func fail(w http.ResponseWriter, r *http.Request, err error, subject string) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, subject+" not found")
	case errors.Is(err, repository.ErrSelfFollow):
		writeError(w, http.StatusBadRequest, "You cannot follow yourself")
	case errors.Is(err, repository.ErrForbidden):
		writeError(w, http.StatusForbidden, "You are not allowed to do that")
	default:
		logger.Error("request failed",
			logger.ErrorField(err),
			logger.String("subject", subject),
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path))
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v)
}

// HealthHandler 健康检查
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	online := 0
	if h.relay != nil {
		online = h.relay.Online()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"online": online,
	})
}
