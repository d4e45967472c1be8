package server

import (
	"net/http"

	"Tunehub/model"

	"github.com/gorilla/mux"
)

// ListAlbumsHandler 获取全部专辑
func (h *APIHandler) ListAlbumsHandler(w http.ResponseWriter, r *http.Request) {
	albums, err := h.albums.All(r.Context())
	if err != nil {
		fail(w, r, err, "Albums")
		return
	}
	if albums == nil {
		albums = []*model.Album{}
	}
	writeJSON(w, http.StatusOK, albums)
}

// GetAlbumHandler 获取专辑及其歌曲
func (h *APIHandler) GetAlbumHandler(w http.ResponseWriter, r *http.Request) {
	album, err := h.albums.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		fail(w, r, err, "Album")
		return
	}
	writeJSON(w, http.StatusOK, album)
}
