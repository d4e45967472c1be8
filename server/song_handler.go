package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"Tunehub/core/auth"
	"Tunehub/model"

	"github.com/gorilla/mux"
)

// songLister is one of the catalogue listing queries.
type songLister func(ctx context.Context) ([]*model.Song, error)

func (h *APIHandler) listSongs(list songLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		songs, err := list(r.Context())
		if err != nil {
			fail(w, r, err, "Songs")
			return
		}
		if songs == nil {
			songs = []*model.Song{}
		}
		writeJSON(w, http.StatusOK, songs)
	}
}

// AllSongsHandler 获取全部歌曲（最新在前）
func (h *APIHandler) AllSongsHandler(w http.ResponseWriter, r *http.Request) {
	h.listSongs(h.songs.All)(w, r)
}

// FeaturedSongsHandler 精选歌曲
func (h *APIHandler) FeaturedSongsHandler(w http.ResponseWriter, r *http.Request) {
	h.listSongs(h.songs.Featured)(w, r)
}

// MadeForYouHandler 为你推荐
func (h *APIHandler) MadeForYouHandler(w http.ResponseWriter, r *http.Request) {
	h.listSongs(h.songs.MadeForYou)(w, r)
}

// TrendingSongsHandler 热门歌曲
func (h *APIHandler) TrendingSongsHandler(w http.ResponseWriter, r *http.Request) {
	h.listSongs(h.songs.Trending)(w, r)
}

// ToggleLikeHandler likes the song, or unlikes it when already liked.
func (h *APIHandler) ToggleLikeHandler(w http.ResponseWriter, r *http.Request) {
	res, err := h.songs.ToggleLike(r.Context(), mux.Vars(r)["id"], auth.ExternalIDFromContext(r.Context()))
	if err != nil {
		fail(w, r, err, "Song")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListCommentsHandler 获取歌曲评论（分页）
func (h *APIHandler) ListCommentsHandler(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	result, err := h.songs.ListComments(r.Context(), mux.Vars(r)["id"], page, limit)
	if err != nil {
		fail(w, r, err, "Song")
		return
	}
	if result.Comments == nil {
		result.Comments = []*model.SongComment{}
	}
	writeJSON(w, http.StatusOK, result)
}

// AddCommentHandler 发表评论
func (h *APIHandler) AddCommentHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "Comment text is required")
		return
	}

	user, err := h.currentUser(r)
	if err != nil {
		fail(w, r, err, "User")
		return
	}

	comment, total, err := h.songs.AddComment(r.Context(), mux.Vars(r)["id"], user.ID, req.Text)
	if err != nil {
		fail(w, r, err, "Song")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"comment":       comment,
		"commentsCount": total,
	})
}

// DeleteCommentHandler removes a comment. Only its author or an admin may.
func (h *APIHandler) DeleteCommentHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	user, err := h.currentUser(r)
	if err != nil {
		fail(w, r, err, "User")
		return
	}

	remaining, err := h.songs.DeleteComment(r.Context(), vars["id"], vars["commentId"], user.ID, h.isAdmin(r))
	if err != nil {
		fail(w, r, err, "Comment")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":       true,
		"commentsCount": remaining,
	})
}
