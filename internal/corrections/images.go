package corrections

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"digitflow/internal/fileutil"
)

// Recorder persists correction rows. *Store satisfies it.
type Recorder interface {
	Record(ctx context.Context, imageRef string, trueLabel, predictedLabel int) (int64, error)
}

// ImageStore writes correction images under Dir and records rows that point at
// them.
type ImageStore struct {
	Dir      string
	Recorder Recorder
}

// Submission describes a persisted correction.
type Submission struct {
	ID       int64
	ImageRef string
}

// Submit stores the image bytes and records the correction. The image file is
// removed again when the row cannot be recorded, so a returned error always
// means nothing was saved.
func (s *ImageStore) Submit(ctx context.Context, data []byte, trueLabel, predictedLabel int) (Submission, error) {
	if s == nil || s.Recorder == nil {
		return Submission{}, errors.New("image store is not configured")
	}
	if len(data) == 0 {
		return Submission{}, errors.New("submit correction: image payload is empty")
	}
	if err := ValidateLabel("true_label", trueLabel); err != nil {
		return Submission{}, err
	}
	if err := ValidateLabel("predicted_label", predictedLabel); err != nil {
		return Submission{}, err
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return Submission{}, fmt.Errorf("ensure corrections dir: %w", err)
	}

	name := fmt.Sprintf("correction_%d_%d_%s%s", trueLabel, predictedLabel,
		strings.ReplaceAll(uuid.NewString(), "-", "")[:12], imageExtension(data))
	path := filepath.Join(s.Dir, name)
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return Submission{}, fmt.Errorf("write correction image: %w", err)
	}

	id, err := s.Recorder.Record(ctx, path, trueLabel, predictedLabel)
	if err != nil {
		_ = os.Remove(path)
		return Submission{}, err
	}
	return Submission{ID: id, ImageRef: path}, nil
}

func imageExtension(data []byte) string {
	switch http.DetectContentType(data) {
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	default:
		return ".png"
	}
}
