package httpadapter

import (
	"io"
	"mime"
	"net/http"
	"path"

	"github.com/go-chi/chi/v5"
)

func (rt *Router) serveFile(w http.ResponseWriter, r *http.Request) {
	if rt.storage == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "file storage is not configured"})
		return
	}
	key := chi.URLParam(r, "key")
	rc, err := rt.storage.Open(r.Context(), key)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	defer rc.Close()

	contentType := mime.TypeByExtension(path.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		rt.logger.Warn("serve file interrupted", "key", key, "error", err)
	}
}
