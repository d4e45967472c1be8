package server

import (
	"net/http"
	"strings"

	"Tunehub/core/auth"
	"Tunehub/model"
	"Tunehub/repository"

	"github.com/gorilla/mux"
)

// AuthCallbackHandler creates or refreshes the caller's user record after
// sign-in with the identity provider.
func (h *APIHandler) AuthCallbackHandler(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())

	var req struct {
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
		FullName  string `json:"fullName"`
		ImageURL  string `json:"imageUrl"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	fullName := strings.TrimSpace(req.FullName)
	if fullName == "" {
		fullName = strings.TrimSpace(req.FirstName + " " + req.LastName)
	}
	if fullName == "" {
		fullName = id.Name
	}
	if fullName == "" {
		writeError(w, http.StatusBadRequest, "fullName is required")
		return
	}

	user, err := h.users.Upsert(r.Context(), &model.User{
		ExternalID: id.ExternalID,
		FullName:   fullName,
		ImageURL:   strings.TrimSpace(req.ImageURL),
	})
	if err != nil {
		fail(w, r, err, "User")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "user": user})
}

// CurrentUserHandler 获取当前用户资料
func (h *APIHandler) CurrentUserHandler(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.Profile(r.Context(), auth.ExternalIDFromContext(r.Context()))
	if err != nil {
		fail(w, r, err, "User")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// ListUsersHandler lists everyone except the caller.
func (h *APIHandler) ListUsersHandler(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.ListExcept(r.Context(), auth.ExternalIDFromContext(r.Context()))
	if err != nil {
		fail(w, r, err, "Users")
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// MessagesHandler returns the conversation between the caller and the user
// whose external id is in the path.
func (h *APIHandler) MessagesHandler(w http.ResponseWriter, r *http.Request) {
	me, err := h.currentUser(r)
	if err != nil {
		fail(w, r, err, "User")
		return
	}
	other, err := h.users.FindByExternalID(r.Context(), mux.Vars(r)["userId"])
	if err != nil {
		fail(w, r, err, "User")
		return
	}

	messages, err := h.messages.Conversation(r.Context(), me.ID, other.ID)
	if err != nil {
		fail(w, r, err, "Messages")
		return
	}
	if messages == nil {
		messages = []*model.Message{}
	}
	writeJSON(w, http.StatusOK, messages)
}

// ToggleFollowHandler 关注/取消关注
func (h *APIHandler) ToggleFollowHandler(w http.ResponseWriter, r *http.Request) {
	target := mux.Vars(r)["targetUserExternalId"]
	action, err := h.users.ToggleFollow(r.Context(), auth.ExternalIDFromContext(r.Context()), target)
	if err != nil {
		fail(w, r, err, "User")
		return
	}

	message := "User followed"
	if action == repository.FollowActionUnfollowed {
		message = "User unfollowed"
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"action":  action,
		"message": message,
	})
}
