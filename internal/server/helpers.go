package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/cwbudde/goldenspiral/internal/analysis"
	"github.com/cwbudde/goldenspiral/internal/cluster"
	"github.com/cwbudde/goldenspiral/internal/fit"
	"github.com/cwbudde/goldenspiral/internal/imaging"
	"github.com/cwbudde/goldenspiral/internal/store"
)

// maxUploadBytes caps multipart uploads.
const maxUploadBytes = 32 << 20

// statusFor maps pipeline errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, analysis.ErrTooFewObjects),
		errors.Is(err, fit.ErrInvalidInput),
		errors.Is(err, cluster.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, fit.ErrNoViableFit):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

// writeBytes sends a rendered artifact.
func writeBytes(w http.ResponseWriter, contentType string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-cache")
	if _, err := w.Write(data); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}

// pngDataURI wraps PNG bytes the way browsers accept them in an img src.
func pngDataURI(data []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)
}

// upload is a decoded multipart image request.
type upload struct {
	Image   image.Image
	K       int
	BWeight float64
}

// parseUpload reads the "file", "k" and "b_weight" fields of a multipart form.
// Missing numeric fields keep their defaults.
func parseUpload(r *http.Request, defaultBWeight float64) (*upload, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, fmt.Errorf("%w: invalid multipart form: %w", fit.ErrInvalidInput, err)
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, fmt.Errorf("%w: file is required", fit.ErrInvalidInput)
	}
	defer file.Close()

	img, _, err := imaging.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", fit.ErrInvalidInput, err)
	}

	up := &upload{Image: img, BWeight: defaultBWeight}
	if v := r.FormValue("k"); v != "" {
		up.K, err = strconv.Atoi(v)
		if err != nil || up.K < 0 {
			return nil, fmt.Errorf("%w: k must be a non-negative integer, got %q", fit.ErrInvalidInput, v)
		}
	}
	if v := r.FormValue("b_weight"); v != "" {
		up.BWeight, err = strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: b_weight must be a number, got %q", fit.ErrInvalidInput, v)
		}
	}
	return up, nil
}
