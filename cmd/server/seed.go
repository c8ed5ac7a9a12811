package main

import (
	"context"
	"fmt"

	"github.com/ZanzyTHEbar/corrosion-rating/internal/database"
	"github.com/ZanzyTHEbar/corrosion-rating/internal/monitoring"
	"github.com/ZanzyTHEbar/corrosion-rating/internal/normfile"
)

// seedNorms upserts every bundle found under dir. Bundles that fail to load
// are skipped; the returned error lists them.
func seedNorms(ctx context.Context, service *database.AssessmentService, dir string, logger *monitoring.Logger) error {
	loader, err := normfile.NewLoader()
	if err != nil {
		return err
	}

	bundles, loadErr := loader.LoadDir(dir)
	for _, b := range bundles {
		for _, p := range b.Parameters {
			if err := service.SaveParameter(ctx, p); err != nil {
				return fmt.Errorf("%s: parameter %s: %w", b.Source, p.ID, err)
			}
		}
		if err := service.SaveNorm(ctx, b.Norm); err != nil {
			return fmt.Errorf("%s: %w", b.Source, err)
		}
		logger.Info("Seeded norm", "norm", b.Norm.ID, "parameters", len(b.Parameters), "source", b.Source)
	}
	return loadErr
}
