package port

import (
	"context"

	"github.com/uiextract/uiextract-processing-service/internal/domain/entity"
)

// Archiver bundles a selection of keyframes into a single zip. The
// selection is a list of Keyframe filenames; implementations must refuse
// to produce an empty archive.
type Archiver interface {
	CreateArchive(ctx context.Context, items []entity.Keyframe, selection []string, outputPath string) error
}
