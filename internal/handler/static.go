package handler

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
)

// SPAHandler serves the admin login UI build, falling back to index.html
// for client-side routes.
type SPAHandler struct {
	staticDir string
	indexFile string
}

func NewSPAHandler(staticDir string) *SPAHandler {
	return &SPAHandler{
		staticDir: staticDir,
		indexFile: "index.html",
	}
}

func (h *SPAHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := chi.URLParam(r, "*")
	if path == "" {
		path = strings.TrimPrefix(r.URL.Path, "/")
	}

	if path == "api" || strings.HasPrefix(path, "api/") {
		http.NotFound(w, r)
		return
	}

	// Clean against a rooted path so ".." cannot climb out of staticDir.
	filePath := filepath.Join(h.staticDir, filepath.FromSlash(filepath.Clean("/"+path)))

	info, err := os.Stat(filePath)
	if err == nil && !info.IsDir() {
		http.ServeFile(w, r, filePath)
		return
	}

	indexPath := filepath.Join(h.staticDir, h.indexFile)
	if _, err := os.Stat(indexPath); err != nil {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFile(w, r, indexPath)
}
