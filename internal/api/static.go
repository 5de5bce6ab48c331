package api

import (
	"net/http"
	"os"
	"path"
	"path/filepath"

	"github.com/yegors/co-atis/pkg/logger"
)

// StaticFileHandler serves files from a directory without directory
// listings. With indexFallback, unknown paths get index.html so the
// front-end can own its routes.
type StaticFileHandler struct {
	root          string
	indexFallback bool
	fileServer    http.Handler
	logger        *logger.Logger
}

// NewStaticFileHandler creates a new static file handler
func NewStaticFileHandler(root string, indexFallback bool, logger *logger.Logger) *StaticFileHandler {
	return &StaticFileHandler{
		root:          root,
		indexFallback: indexFallback,
		fileServer:    http.FileServer(http.Dir(root)),
		logger:        logger.Named("static"),
	}
}

// ServeHTTP implements http.Handler
func (h *StaticFileHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	name := path.Clean("/" + r.URL.Path)
	info, err := os.Stat(filepath.Join(h.root, filepath.FromSlash(name)))

	switch {
	case err == nil && !info.IsDir():
		h.fileServer.ServeHTTP(w, r)
	case err == nil && info.IsDir() && h.hasIndex(name):
		// FileServer serves index.html for directories itself
		h.fileServer.ServeHTTP(w, r)
	case h.indexFallback && h.hasIndex("/"):
		http.ServeFile(w, r, filepath.Join(h.root, "index.html"))
	default:
		h.logger.Debug("Static file not found", logger.String("path", name))
		http.NotFound(w, r)
	}
}

func (h *StaticFileHandler) hasIndex(dir string) bool {
	info, err := os.Stat(filepath.Join(h.root, filepath.FromSlash(dir), "index.html"))
	return err == nil && !info.IsDir()
}
