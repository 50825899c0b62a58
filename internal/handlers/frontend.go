package handlers

import (
	"errors"
	"io/fs"
	"net/http"
	"os"

	"github.com/rs/zerolog/log"
)

const frontendFallback = "API OK - Frontend not found"

// Home serves the frontend page verbatim, or a plain-text fallback when the
// page is absent.
func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	page, err := os.ReadFile(h.opts.FrontendPath)
	if errors.Is(err, fs.ErrNotExist) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(frontendFallback))
		return
	}
	if err != nil {
		log.Error().Err(err).Str("path", h.opts.FrontendPath).Msg("failed to read frontend")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(page)
}

// Static serves files under the static directory. Directories are reported
// as missing instead of being listed, and no path is redirected.
func (h *Handler) Static() http.Handler {
	root := http.Dir(h.opts.StaticDir)

	return http.StripPrefix("/static/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		file, err := root.Open(r.URL.Path)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		defer file.Close()

		stat, err := file.Stat()
		if err != nil || stat.IsDir() {
			http.NotFound(w, r)
			return
		}

		http.ServeContent(w, r, stat.Name(), stat.ModTime(), file)
	}))
}
