package reco

import (
	"context"
	"fmt"
)

// Trainer assembles a training table from raw examples, fits the classifier
// and appends the resulting artifact for the tenant.
type Trainer struct {
	Classifier Classifier
	Artifacts  ArtifactStore
}

// Train fits a model over the batch and persists a new artifact. The history
// vocabulary is the union of every example's normalized keys plus the
// defaults, so all rows in the batch share one column set. The artifact is
// written only after a successful fit; a failed fit persists nothing.
func (t *Trainer) Train(ctx context.Context, tenantID string, examples []Example) (*ModelArtifact, error) {
	if len(examples) == 0 {
		return nil, ErrEmptyDataset
	}

	hists := make([]map[string]int, len(examples))
	for i, ex := range examples {
		hists[i] = ex.HistoryCounts
	}
	histKeys := BuildHistKeys(hists...)
	cols := FeatureColumns(histKeys)

	rows := make([]FeatureRow, len(examples))
	labels := make([]string, len(examples))
	for i, ex := range examples {
		rows[i] = Featurize(ex.Client, ex.Vehicle, ex.HistoryCounts, histKeys)
		labels[i] = NormalizeKey(ex.TargetService)
	}

	model, err := t.Classifier.Fit(rows, cols, labels)
	if err != nil {
		return nil, fmt.Errorf("fit classifier: %w", err)
	}
	blob, err := model.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("serialize model: %w", err)
	}

	artifact := &ModelArtifact{
		TenantID:    tenantID,
		Classes:     model.Classes(),
		FeatureCols: cols,
		Blob:        blob,
	}
	id, err := t.Artifacts.Put(ctx, tenantID, artifact)
	if err != nil {
		return nil, fmt.Errorf("persist artifact: %w", err)
	}
	artifact.ID = id
	return artifact, nil
}
