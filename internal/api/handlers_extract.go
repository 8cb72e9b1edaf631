package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/dgallion1/docmux/internal/engine"
	"github.com/dgallion1/docmux/internal/pipeline"
)

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	// Limit total request size.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024) // extra 1MB for form overhead

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	var category engine.Category
	if v := r.FormValue("category"); v != "" {
		if category, err = engine.ParseCategory(v); err != nil {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	// Engines read from disk, so the upload lives in a private temp dir
	// for the duration of the request.
	dir, err := os.MkdirTemp(s.cfg.UploadDir, "docmux-*")
	if err != nil {
		s.log.Error("create upload dir", "error", err)
		jsonError(w, "failed to store upload", http.StatusInternalServerError)
		return
	}
	defer os.RemoveAll(dir)

	filename := sanitizeFilename(header.Filename)
	path := filepath.Join(dir, filename)
	n, err := saveUpload(path, file, s.cfg.MaxUploadBytes)
	if err != nil {
		s.log.Error("store upload", "file", filename, "error", err)
		jsonError(w, "failed to read file", http.StatusInternalServerError)
		return
	}
	if n > s.cfg.MaxUploadBytes {
		jsonError(w, fmt.Sprintf("file exceeds max size (%d bytes)", s.cfg.MaxUploadBytes), http.StatusRequestEntityTooLarge)
		return
	}

	if category == "" {
		if category, err = engine.DetectCategory(path); err != nil {
			jsonError(w, fmt.Sprintf("cannot determine category for %s; pass category", filename), http.StatusBadRequest)
			return
		}
	}

	out, err := s.controller.ExtractDetailed(r.Context(), path, category)
	if err != nil {
		var cfgErr *engine.ConfigError
		if errors.As(err, &cfgErr) {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if errors.Is(err, pipeline.ErrPoolStopped) {
			s.log.Warn("extraction aborted by shutdown", "file", filename)
			jsonError(w, "service shutting down", http.StatusServiceUnavailable)
			return
		}
		// Client went away mid-extraction.
		s.log.Info("extraction abandoned", "file", filename, "error", err)
		jsonError(w, "request cancelled", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if out.Engine != "" {
		w.Header().Set("X-Docmux-Engine", out.Engine)
	}
	if r.FormValue("detail") == "true" {
		json.NewEncoder(w).Encode(out)
		return
	}
	json.NewEncoder(w).Encode(out.Document)
}

// saveUpload copies at most limit+1 bytes of src to path and reports how
// many were written.
func saveUpload(path string, src io.Reader, limit int64) (int64, error) {
	dst, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(dst, io.LimitReader(src, limit+1))
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	return n, err
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(name)
	// Remove any path separators that might have survived.
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." {
		name = "unnamed"
	}
	return name
}
