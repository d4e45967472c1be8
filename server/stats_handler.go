package server

import (
	"net/http"

	"Tunehub/model"
)

// StatsHandler 获取曲库统计
func (h *APIHandler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var stats model.Stats
	var err error

	if stats.TotalSongs, err = h.songs.Count(ctx); err != nil {
		fail(w, r, err, "Stats")
		return
	}
	if stats.TotalAlbums, err = h.albums.Count(ctx); err != nil {
		fail(w, r, err, "Stats")
		return
	}
	if stats.TotalUsers, err = h.users.Count(ctx); err != nil {
		fail(w, r, err, "Stats")
		return
	}
	if stats.TotalArtists, err = h.songs.CountArtists(ctx); err != nil {
		fail(w, r, err, "Stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
