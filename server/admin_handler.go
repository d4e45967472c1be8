package server

import (
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"Tunehub/model"
	"Tunehub/repository"
	"Tunehub/storage"

	"github.com/gorilla/mux"
)

const maxUploadMemory = 32 << 20 // 32MB

// IsAdminHandler reports whether the caller is the admin. The answer must
// never be cached, since it changes with the signed-in account.
func (h *APIHandler) IsAdminHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	writeJSON(w, http.StatusOK, map[string]interface{}{"admin": h.isAdmin(r)})
}

// CheckAdminHandler only answers for admins; RequireAdmin does the work.
func (h *APIHandler) CheckAdminHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"admin": true})
}

// upload stores one multipart file and returns its URL.
func (h *APIHandler) upload(r *http.Request, prefix string, fh *multipart.FileHeader) (string, error) {
	file, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer file.Close()
	return h.assets.Put(r.Context(), prefix, fh.Filename, file, fh.Size, fh.Header.Get("Content-Type"))
}

func formFile(r *http.Request, name string) *multipart.FileHeader {
	if r.MultipartForm == nil {
		return nil
	}
	files := r.MultipartForm.File[name]
	if len(files) == 0 {
		return nil
	}
	return files[0]
}

// CreateSongHandler uploads a song's audio and cover, then stores the song.
func (h *APIHandler) CreateSongHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, http.StatusBadRequest, "Failed to parse form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	audio, image := formFile(r, "audioFile"), formFile(r, "imageFile")
	if audio == nil || image == nil {
		writeError(w, http.StatusBadRequest, "Please upload all files")
		return
	}

	song := &model.Song{
		Title:  strings.TrimSpace(r.FormValue("title")),
		Artist: strings.TrimSpace(r.FormValue("artist")),
		Lyrics: r.FormValue("lyrics"),
	}
	if song.Title == "" || song.Artist == "" {
		writeError(w, http.StatusBadRequest, "title and artist are required")
		return
	}
	if d := r.FormValue("duration"); d != "" {
		duration, err := strconv.Atoi(d)
		if err != nil || duration < 0 {
			writeError(w, http.StatusBadRequest, "Invalid duration")
			return
		}
		song.Duration = duration
	}
	if albumID := strings.TrimSpace(r.FormValue("albumId")); albumID != "" && albumID != "none" {
		if _, err := h.albums.Get(r.Context(), albumID); err != nil {
			fail(w, r, err, "Album")
			return
		}
		song.AlbumID = &albumID
	}

	var err error
	if song.AudioURL, err = h.upload(r, storage.PrefixAudio, audio); err != nil {
		fail(w, r, err, "Upload")
		return
	}
	if song.ImageURL, err = h.upload(r, storage.PrefixImage, image); err != nil {
		fail(w, r, err, "Upload")
		return
	}

	if err := h.songs.Create(r.Context(), song); err != nil {
		fail(w, r, err, "Song")
		return
	}
	writeJSON(w, http.StatusCreated, song)
}

// UpdateSongHandler 更新歌曲标题/歌手
func (h *APIHandler) UpdateSongHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title  string `json:"title"`
		Artist string `json:"artist"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	upd := repository.SongUpdate{Title: strings.TrimSpace(req.Title), Artist: strings.TrimSpace(req.Artist)}
	if upd.Title == "" && upd.Artist == "" {
		writeError(w, http.StatusBadRequest, "title or artist is required")
		return
	}

	song, err := h.songs.Update(r.Context(), mux.Vars(r)["id"], upd)
	if err != nil {
		fail(w, r, err, "Song")
		return
	}
	writeJSON(w, http.StatusOK, song)
}

// DeleteSongHandler 删除歌曲
func (h *APIHandler) DeleteSongHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.songs.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		fail(w, r, err, "Song")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "message": "Song deleted successfully"})
}

// CreateAlbumHandler uploads the cover and stores the album.
func (h *APIHandler) CreateAlbumHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, http.StatusBadRequest, "Failed to parse form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	image := formFile(r, "imageFile")
	if image == nil {
		writeError(w, http.StatusBadRequest, "Please upload an image")
		return
	}

	album := &model.Album{
		Title:  strings.TrimSpace(r.FormValue("title")),
		Artist: strings.TrimSpace(r.FormValue("artist")),
	}
	if album.Title == "" || album.Artist == "" {
		writeError(w, http.StatusBadRequest, "title and artist are required")
		return
	}
	if y := r.FormValue("releaseYear"); y != "" {
		year, err := strconv.Atoi(y)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid releaseYear")
			return
		}
		album.ReleaseYear = year
	}

	var err error
	if album.ImageURL, err = h.upload(r, storage.PrefixImage, image); err != nil {
		fail(w, r, err, "Upload")
		return
	}
	if err := h.albums.Create(r.Context(), album); err != nil {
		fail(w, r, err, "Album")
		return
	}
	writeJSON(w, http.StatusCreated, album)
}

// UpdateAlbumHandler 更新专辑
func (h *APIHandler) UpdateAlbumHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title       string `json:"title"`
		Artist      string `json:"artist"`
		ReleaseYear int    `json:"releaseYear"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	upd := repository.AlbumUpdate{
		Title:       strings.TrimSpace(req.Title),
		Artist:      strings.TrimSpace(req.Artist),
		ReleaseYear: req.ReleaseYear,
	}
	if upd.Title == "" && upd.Artist == "" && upd.ReleaseYear == 0 {
		writeError(w, http.StatusBadRequest, "Nothing to update")
		return
	}

	album, err := h.albums.Update(r.Context(), mux.Vars(r)["id"], upd)
	if err != nil {
		fail(w, r, err, "Album")
		return
	}
	writeJSON(w, http.StatusOK, album)
}

// DeleteAlbumHandler deletes the album together with its songs.
func (h *APIHandler) DeleteAlbumHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.albums.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		fail(w, r, err, "Album")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "message": "Album deleted successfully"})
}
