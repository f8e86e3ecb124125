// internal/api/http/assets.go
package http

import (
	"errors"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-quiz/internal/storage"
)

func MountAssets(r chi.Router, bs storage.BlobStore) {
	// GET /assets/*   -> returns the blob at whatever follows /assets/
	r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
		rc, err := bs.Get(key)
		if errors.Is(err, storage.ErrBadKey) || errors.Is(err, fs.ErrNotExist) {
			writeJSON(w, http.StatusNotFound, message{"asset not found"})
			return
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
		defer rc.Close()
		// only images render inline; anything else downloads
		ct := mime.TypeByExtension(path.Ext(key))
		if !strings.HasPrefix(ct, "image/") || strings.HasPrefix(ct, "image/svg") {
			ct = "application/octet-stream"
			w.Header().Set("Content-Disposition", "attachment")
		}
		w.Header().Set("Content-Type", ct)
		w.Header().Set("X-Content-Type-Options", "nosniff")
		_, _ = io.Copy(w, rc)
	})
}
