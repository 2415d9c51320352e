package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/sdstation/middleware/internal/db/models"
	"github.com/sdstation/middleware/internal/services/objectstore"
	"github.com/sdstation/middleware/internal/types"
	"github.com/sdstation/middleware/pkg/logger"
)

func (s *Service) GetCheckpoint(ctx context.Context, id string) (*models.Checkpoint, error) {
	return s.checkpoints.GetByID(ctx, id)
}

func (s *Service) ListCheckpoints(ctx context.Context, checkpointType string, status types.CheckpointStatus) ([]models.Checkpoint, error) {
	return s.checkpoints.List(ctx, checkpointType, status)
}

// DeleteCheckpoints removes rows and their backing objects. Ids are
// deduplicated; unknown ids are skipped, the rest still get deleted. Objects
// go first so a crash leaves a row pointing at nothing rather than orphaned
// weights with no row.
func (s *Service) DeleteCheckpoints(ctx context.Context, checkpointIDs []string) error {
	seen := make(map[string]bool, len(checkpointIDs))
	for _, id := range checkpointIDs {
		if seen[id] {
			continue
		}
		seen[id] = true

		checkpoint, err := s.checkpoints.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, types.ErrNotFound) {
				continue
			}
			return err
		}

		if _, key, err := objectstore.SplitLocation(checkpoint.S3Location); err == nil {
			if err := s.store.DeletePrefix(ctx, key); err != nil {
				return fmt.Errorf("deleting objects of checkpoint %s: %w: %v", id, types.ErrTransientIO, err)
			}
		} else {
			logger.Warn("checkpoint has unparseable location, removing row only", "id", id, "location", checkpoint.S3Location)
		}

		if err := s.checkpoints.DeleteByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// Bucket folders the GUI dropdowns enumerate.
var categoryPrefixes = map[string]string{
	"checkpoint":       "Stable-diffusion",
	"lora":             "lora",
	"hypernetwork":     "hypernetwork",
	"controlnet":       "controlnet",
	"texual_inversion": "texual_inversion",
}

// ListCategoryObjects lists the object names stored under a GUI model
// category folder.
func (s *Service) ListCategoryObjects(ctx context.Context, category string) ([]string, error) {
	prefix, ok := categoryPrefixes[category]
	if !ok {
		return nil, fmt.Errorf("%w: unknown model category %q", types.ErrValidation, category)
	}

	names, err := s.store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w: %v", prefix, types.ErrTransientIO, err)
	}
	return names, nil
}

func (s *Service) GetModel(ctx context.Context, id string) (*models.Model, error) {
	return s.models.GetByID(ctx, id)
}

func (s *Service) ListModels(ctx context.Context, modelTypes, statuses []string) ([]models.Model, error) {
	return s.models.List(ctx, modelTypes, statuses)
}
