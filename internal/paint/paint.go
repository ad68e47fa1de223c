// Package paint stores the shared canvas image drawn on the site.
package paint

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoding
	_ "image/jpeg" // register JPEG decoding
	"image/png"
	"io"

	"go.uber.org/zap"

	"github.com/JakeFAU/personal-site-api/internal/logging"
	"github.com/JakeFAU/personal-site-api/internal/metrics"
	"github.com/JakeFAU/personal-site-api/internal/storage"
)

// Upload failures the HTTP layer maps to client errors.
var (
	ErrInvalidImage    = errors.New("invalid image")
	ErrWrongDimensions = errors.New("wrong image dimensions")
	ErrTooLarge        = errors.New("image too large")
)

// Config constrains uploads.
type Config struct {
	ObjectName     string
	Width          int
	Height         int
	MaxUploadBytes int64
}

// Service validates uploads and keeps the canvas in a blob store as PNG.
type Service struct {
	cfg    Config
	store  storage.BlobStore
	logger *zap.Logger
}

// NewService wires a Service.
func NewService(cfg Config, store storage.BlobStore, logger *zap.Logger) *Service {
	return &Service{cfg: cfg, store: store, logger: logging.OrNop(logger)}
}

// Get returns the stored PNG, or an error wrapping storage.ErrNotFound.
func (s *Service) Get(ctx context.Context) ([]byte, error) {
	data, err := s.store.GetObject(ctx, s.cfg.ObjectName)
	if err != nil {
		return nil, fmt.Errorf("load paint: %w", err)
	}
	return data, nil
}

// Save decodes a PNG, JPEG or GIF, checks its size and stores it re-encoded as PNG.
func (s *Service) Save(ctx context.Context, r io.Reader) (string, error) {
	uri, result, err := s.save(ctx, r)
	metrics.ObservePaintUpload(result)
	return uri, err
}

func (s *Service) save(ctx context.Context, r io.Reader) (string, string, error) {
	raw, err := io.ReadAll(io.LimitReader(r, s.cfg.MaxUploadBytes+1))
	if err != nil {
		return "", "error", fmt.Errorf("read upload: %w", err)
	}
	if int64(len(raw)) > s.cfg.MaxUploadBytes {
		return "", "too_large", fmt.Errorf("%w: more than %d bytes", ErrTooLarge, s.cfg.MaxUploadBytes)
	}

	// Header first: the pixel buffer is only allocated for images of the expected size.
	header, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return "", "invalid", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if header.Width != s.cfg.Width || header.Height != s.cfg.Height {
		return "", "wrong_dimensions", fmt.Errorf("%w: got %dx%d, want %dx%d",
			ErrWrongDimensions, header.Width, header.Height, s.cfg.Width, s.cfg.Height)
	}
	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return "", "invalid", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", "error", fmt.Errorf("encode png: %w", err)
	}
	uri, err := s.store.PutObject(ctx, s.cfg.ObjectName, "image/png", &buf)
	if err != nil {
		return "", "error", fmt.Errorf("store paint: %w", err)
	}
	s.logger.Info("paint saved", zap.String("uri", uri), zap.String("source_format", format))
	return uri, "ok", nil
}
