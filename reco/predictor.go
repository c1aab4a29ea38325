package reco

import (
	"context"
	"fmt"
	"math"
	"sort"
)

// Predictor scores requests against a tenant's current artifact, degrading
// to a history-frequency heuristic when the tenant has no trained model.
// Artifacts are reloaded on every call; there is no in-process model cache,
// so a freshly trained model is visible immediately.
type Predictor struct {
	Classifier Classifier
	Artifacts  ArtifactStore
}

// Predict scores a single request. The second return value reports whether a
// trained model backed the result.
func (p *Predictor) Predict(ctx context.Context, tenantID string, in PredictInput) (Prediction, bool, error) {
	artifact, err := p.Artifacts.Latest(ctx, tenantID)
	if err != nil {
		return Prediction{}, false, err
	}
	if artifact == nil {
		return fallbackPrediction(in.HistoryCounts), false, nil
	}

	model, err := p.Classifier.Load(artifact.Blob)
	if err != nil {
		return Prediction{}, true, fmt.Errorf("load model %d: %w", artifact.ID, err)
	}
	pred, err := predictWithModel(model, artifact, in)
	return pred, true, err
}

// PredictBatch scores items independently in input order, sharing a single
// artifact lookup and model load across the batch. Output order mirrors
// input order.
func (p *Predictor) PredictBatch(ctx context.Context, tenantID string, items []PredictInput) ([]Prediction, bool, error) {
	artifact, err := p.Artifacts.Latest(ctx, tenantID)
	if err != nil {
		return nil, false, err
	}

	out := make([]Prediction, len(items))
	if artifact == nil {
		for i, item := range items {
			out[i] = fallbackPrediction(item.HistoryCounts)
		}
		return out, false, nil
	}

	model, err := p.Classifier.Load(artifact.Blob)
	if err != nil {
		return nil, true, fmt.Errorf("load model %d: %w", artifact.ID, err)
	}
	for i, item := range items {
		out[i], err = predictWithModel(model, artifact, item)
		if err != nil {
			return nil, true, err
		}
	}
	return out, true, nil
}

// predictWithModel aligns the request to the artifact's column order, runs
// the classifier, forces the default services into the distribution and
// renormalizes before rounding.
func predictWithModel(model TrainedModel, artifact *ModelArtifact, in PredictInput) (Prediction, error) {
	histKeys := BuildHistKeys(in.HistoryCounts)
	row := Featurize(in.Client, in.Vehicle, in.HistoryCounts, histKeys)
	row = Reindex(row, artifact.FeatureCols)

	probs, err := model.PredictProba(row)
	if err != nil {
		return Prediction{}, fmt.Errorf("predict with model %d: %w", artifact.ID, err)
	}

	for _, k := range DefaultServices {
		if _, ok := probs[k]; !ok {
			probs[k] = 0
		}
	}
	sum := 0.0
	for _, v := range probs {
		sum += v
	}
	if sum == 0 {
		sum = 1.0
	}
	for k, v := range probs {
		probs[k] = round4(v / sum)
	}

	top, conf := topService(probs)
	return Prediction{Probabilities: probs, TopService: top, Confidence: conf}, nil
}

// fallbackPrediction derives a distribution over the default services
// straight from history counts: each default key's share of the total
// normalized history, or uniform when there is no history at all.
func fallbackPrediction(hist map[string]int) Prediction {
	hn := normalizeHistory(hist)
	for _, k := range DefaultServices {
		if _, ok := hn[k]; !ok {
			hn[k] = 0
		}
	}
	total := 0
	for _, v := range hn {
		total += v
	}

	probs := make(map[string]float64, len(DefaultServices))
	if total <= 0 {
		uniform := round4(1 / float64(len(DefaultServices)))
		for _, k := range DefaultServices {
			probs[k] = uniform
		}
	} else {
		for _, k := range DefaultServices {
			probs[k] = round4(float64(hn[k]) / float64(total))
		}
	}

	top, conf := topService(probs)
	return Prediction{Probabilities: probs, TopService: top, Confidence: conf}
}

// topService picks the highest-probability label. Ties resolve by a fixed
// priority: the default services in their canonical order first, then any
// remaining labels alphabetically.
func topService(probs map[string]float64) (string, float64) {
	inDefaults := make(map[string]bool, len(DefaultServices))
	order := make([]string, 0, len(probs))
	for _, k := range DefaultServices {
		if _, ok := probs[k]; ok {
			order = append(order, k)
			inDefaults[k] = true
		}
	}
	rest := make([]string, 0, len(probs))
	for k := range probs {
		if !inDefaults[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	order = append(order, rest...)

	top := ""
	best := math.Inf(-1)
	for _, k := range order {
		if probs[k] > best {
			top, best = k, probs[k]
		}
	}
	return top, best
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
