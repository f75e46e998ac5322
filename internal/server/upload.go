package server

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/quilldocs/docqa-go/internal/logging"
)

// maxUploadBytes caps the total multipart request size at 100 MiB.
const maxUploadBytes = 100 << 20

// handleUpload handles POST /api/upload. Each part of the multipart form is
// written under the upload directory and ingested; files are isolated, so a
// rejected file shows up as an error entry without failing the batch.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, "invalid multipart request", http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	var paths []string
	resp := uploadResponse{Files: []uploadResult{}}
	for _, headers := range r.MultipartForm.File {
		for _, hdr := range headers {
			path, err := s.saveUpload(hdr)
			if err != nil {
				log.Warn("upload: saving file failed",
					slog.String("file", hdr.Filename),
					slog.Any("error", err),
				)
				resp.Files = append(resp.Files, uploadResult{
					Filename: filepath.Base(hdr.Filename),
					Status:   "error",
					Error:    err.Error(),
				})
				continue
			}
			paths = append(paths, path)
		}
	}

	if len(paths) > 0 {
		results, total := s.engine.Ingest(r.Context(), paths)
		for _, res := range results {
			out := uploadResult{
				Filename: res.Filename,
				Status:   string(res.Status),
				Chunks:   res.Chunks,
			}
			if res.Err != nil {
				out.Error = res.Err.Error()
			}
			s.metrics.ingestFilesTotal.WithLabelValues(out.Status).Inc()
			resp.Files = append(resp.Files, out)
		}
		resp.TotalChunks = total
		s.metrics.ingestChunksTotal.Add(float64(total))
	}

	if len(resp.Files) == 0 {
		http.Error(w, "no files in request", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error("upload: encode error", slog.Any("error", err))
	}
}

// saveUpload writes one uploaded part into the upload directory, rejecting
// names that would escape it.
func (s *Server) saveUpload(hdr *multipart.FileHeader) (string, error) {
	base := filepath.Base(hdr.Filename)
	if base == "." || base == ".." || strings.ContainsAny(base, `/\`) {
		return "", fmt.Errorf("invalid filename %q", hdr.Filename)
	}

	src, err := hdr.Open()
	if err != nil {
		return "", fmt.Errorf("opening upload: %w", err)
	}
	defer src.Close()

	path := filepath.Join(s.cfg.UploadDir, base)
	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", path, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}

// handleClear handles POST /api/clear: it deletes the entire index.
func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Clear(r.Context()); err != nil {
		logging.FromContext(r.Context()).Error("clear failed", slog.Any("error", err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "cleared"})
}
