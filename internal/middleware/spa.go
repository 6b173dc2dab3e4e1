package middleware

import (
	"encoding/json"
	"io/fs"
	"net/http"
	"path"
	"strings"
)

// assetPrefix is where the UI build writes content-hashed bundles.
const assetPrefix = "assets/"

// SPAHandler serves the built panel UI. Unknown paths get index.html so
// client-side routes survive a reload; unknown API paths get a JSON 404.
type SPAHandler struct {
	fsys      fs.FS
	files     http.Handler
	indexHTML []byte
}

func NewSPAHandler(fsys fs.FS) *SPAHandler {
	index, _ := fs.ReadFile(fsys, "index.html")
	return &SPAHandler{
		fsys:      fsys,
		files:     http.FileServer(http.FS(fsys)),
		indexHTML: index,
	}
}

func (h *SPAHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "Not found"})
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.NotFound(w, r)
		return
	}

	name := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
	if name != "" && name != "index.html" {
		if stat, err := fs.Stat(h.fsys, name); err == nil && !stat.IsDir() {
			if strings.HasPrefix(name, assetPrefix) {
				w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
			}
			h.files.ServeHTTP(w, r)
			return
		}
	}

	if h.indexHTML == nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(h.indexHTML)
}
