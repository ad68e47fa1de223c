package api

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/personal-site-api/internal/paint"
	"github.com/JakeFAU/personal-site-api/internal/storage"
)

// multipartOverhead is the allowance for boundaries and part headers on form uploads.
const multipartOverhead = 64 << 10

func (s *Server) getPaint(w http.ResponseWriter, r *http.Request) {
	data, err := s.deps.Paint.Get(r.Context())
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no paint saved yet")
		return
	}
	if err != nil {
		s.logger.Error("load paint failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load paint")
		return
	}
	etag := s.hasher.ETag(data)
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")
	if etagMatches(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.logger.Debug("write paint failed", zap.Error(err))
	}
}

func (s *Server) setPaint(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Paint.MaxUploadBytes+multipartOverhead)
	body, closeBody, err := uploadBody(r)
	if err != nil {
		s.writePaintError(w, err)
		return
	}
	defer closeBody()

	if _, err := s.deps.Paint.Save(r.Context(), body); err != nil {
		s.writePaintError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// etagMatches reports whether an If-None-Match header lists etag.
func etagMatches(header, etag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}

// uploadBody returns the image stream: the first file part of a multipart form, or the raw body.
func uploadBody(r *http.Request) (io.Reader, func(), error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return r.Body, func() {}, nil
	}
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", paint.ErrInvalidImage, err)
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, nil, fmt.Errorf("%w: no file in form", paint.ErrInvalidImage)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read multipart: %w", err)
		}
		if part.FileName() != "" {
			return part, func() { _ = part.Close() }, nil
		}
		_ = part.Close()
	}
}

func (s *Server) writePaintError(w http.ResponseWriter, err error) {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr), errors.Is(err, paint.ErrTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "image too large")
	case errors.Is(err, paint.ErrInvalidImage), errors.Is(err, paint.ErrWrongDimensions):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("save paint failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to save paint")
	}
}
