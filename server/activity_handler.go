package server

import (
	"net/http"
	"strings"

	"Tunehub/core/relay"
	"Tunehub/logger"
	"Tunehub/model"
)

// LogListenHandler records that the caller listened to a song and tells
// every connected client about it.
func (h *APIHandler) LogListenHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SongID string `json:"songId"`
	}
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.SongID) == "" {
		writeError(w, http.StatusBadRequest, "songId is required")
		return
	}

	user, err := h.currentUser(r)
	if err != nil {
		fail(w, r, err, "User")
		return
	}
	if _, err := h.songs.Get(r.Context(), req.SongID); err != nil {
		fail(w, r, err, "Song")
		return
	}

	activity, err := h.activities.LogListen(r.Context(), user.ID, req.SongID)
	if err != nil {
		fail(w, r, err, "Activity")
		return
	}

	if h.relay != nil {
		h.relay.Broadcast(relay.EventNewActivity, activity)
	}
	logger.Debug("listen logged",
		logger.String("user", user.ExternalID),
		logger.String("song", req.SongID))
	writeJSON(w, http.StatusCreated, activity)
}

// FeedHandler returns recent activity of the users the caller follows.
func (h *APIHandler) FeedHandler(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r)
	if err != nil {
		fail(w, r, err, "User")
		return
	}
	following, err := h.users.FollowingIDs(r.Context(), user.ID)
	if err != nil {
		fail(w, r, err, "Feed")
		return
	}

	feed := []*model.Activity{}
	if len(following) > 0 {
		if feed, err = h.activities.Feed(r.Context(), user.ID, following); err != nil {
			fail(w, r, err, "Feed")
			return
		}
	}
	writeJSON(w, http.StatusOK, feed)
}
