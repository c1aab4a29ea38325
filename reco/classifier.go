package reco

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
)

// TrainedModel scores a single feature row into a probability distribution
// over service labels.
type TrainedModel interface {
	PredictProba(row FeatureRow) (map[string]float64, error)
	Classes() []string
	MarshalBinary() ([]byte, error)
}

// Classifier is the pluggable learning algorithm. cols is the exact column
// order of the assembled training table; every row must carry the same
// columns. Load deserializes a blob previously produced by MarshalBinary.
type Classifier interface {
	Fit(rows []FeatureRow, cols []string, labels []string) (TrainedModel, error)
	Load(blob []byte) (TrainedModel, error)
}

// SoftmaxClassifier trains a multinomial logistic regression by batch
// gradient descent. tipo_cliente is one-hot encoded against the categories
// seen at fit time (an unknown category at predict time encodes to all
// zeros); numeric columns pass through standardized with the training mean
// and deviation.
type SoftmaxClassifier struct {
	LearningRate float64
	Iterations   int
	L2           float64
}

// NewSoftmaxClassifier returns a classifier with defaults that converge on
// the small tabular batches this service trains on.
func NewSoftmaxClassifier() *SoftmaxClassifier {
	return &SoftmaxClassifier{
		LearningRate: 0.1,
		Iterations:   500,
		L2:           1e-4,
	}
}

// softmaxModel is the serialized fitted state. Weights is classes x
// (features+1); the last weight per class is the bias.
type softmaxModel struct {
	ClassLabels []string    `json:"classes"`
	Categories  []string    `json:"categories"`
	NumericCols []string    `json:"numeric_cols"`
	Means       []float64   `json:"means"`
	Scales      []float64   `json:"scales"`
	Weights     [][]float64 `json:"weights"`
}

// Fit learns class weights over the encoded feature matrix.
func (c *SoftmaxClassifier) Fit(rows []FeatureRow, cols []string, labels []string) (TrainedModel, error) {
	if len(rows) == 0 || len(labels) == 0 {
		return nil, errors.New("rows or labels empty")
	}
	if len(rows) != len(labels) {
		return nil, errors.New("rows and labels size mismatch")
	}

	m := &softmaxModel{
		ClassLabels: distinctSorted(labels),
		Categories:  distinctCategories(rows),
		NumericCols: numericColumns(cols),
	}

	classIdx := make(map[string]int, len(m.ClassLabels))
	for i, cl := range m.ClassLabels {
		classIdx[cl] = i
	}

	// Raw numeric matrix first, to derive the standardization constants.
	raw := make([][]float64, len(rows))
	for i, row := range rows {
		raw[i] = make([]float64, len(m.NumericCols))
		for j, col := range m.NumericCols {
			v, ok := row.Numeric[col]
			if !ok {
				return nil, fmt.Errorf("row %d missing column %q", i, col)
			}
			raw[i][j] = v
		}
	}
	m.Means, m.Scales = standardization(raw)

	x := make([][]float64, len(rows))
	for i, row := range rows {
		x[i] = m.encode(row.TipoCliente, raw[i])
	}
	y := make([]int, len(labels))
	for i, l := range labels {
		y[i] = classIdx[l]
	}

	nFeatures := len(m.Categories) + len(m.NumericCols)
	m.Weights = make([][]float64, len(m.ClassLabels))
	for k := range m.Weights {
		m.Weights[k] = make([]float64, nFeatures+1)
	}

	lr := c.LearningRate
	if lr <= 0 {
		lr = 0.1
	}
	iters := c.Iterations
	if iters <= 0 {
		iters = 500
	}

	n := float64(len(x))
	grad := make([][]float64, len(m.Weights))
	for k := range grad {
		grad[k] = make([]float64, nFeatures+1)
	}

	for iter := 0; iter < iters; iter++ {
		for k := range grad {
			for j := range grad[k] {
				grad[k][j] = 0
			}
		}
		for i, xi := range x {
			p := m.softmax(xi)
			for k := range m.Weights {
				d := p[k]
				if y[i] == k {
					d -= 1
				}
				for j, v := range xi {
					grad[k][j] += d * v
				}
				grad[k][nFeatures] += d
			}
		}
		for k := range m.Weights {
			for j := range m.Weights[k] {
				g := grad[k][j]/n + c.L2*m.Weights[k][j]
				m.Weights[k][j] -= lr * g
			}
		}
	}

	return m, nil
}

// Load restores a model serialized by MarshalBinary.
func (c *SoftmaxClassifier) Load(blob []byte) (TrainedModel, error) {
	var m softmaxModel
	if err := json.Unmarshal(blob, &m); err != nil {
		return nil, fmt.Errorf("decode model blob: %w", err)
	}
	if len(m.ClassLabels) == 0 || len(m.Weights) != len(m.ClassLabels) {
		return nil, errors.New("model blob is inconsistent")
	}
	return &m, nil
}

func (m *softmaxModel) Classes() []string {
	return append([]string(nil), m.ClassLabels...)
}

func (m *softmaxModel) MarshalBinary() ([]byte, error) {
	return json.Marshal(m)
}

// PredictProba encodes the row and returns per-class probabilities. The row
// must already be reindexed to the model's column order.
func (m *softmaxModel) PredictProba(row FeatureRow) (map[string]float64, error) {
	raw := make([]float64, len(m.NumericCols))
	for j, col := range m.NumericCols {
		raw[j] = row.Numeric[col]
	}
	p := m.softmax(m.encode(row.TipoCliente, raw))
	out := make(map[string]float64, len(m.ClassLabels))
	for k, cl := range m.ClassLabels {
		out[cl] = p[k]
	}
	return out, nil
}

// encode builds the model input vector: one-hot category then standardized
// numeric values.
func (m *softmaxModel) encode(category string, raw []float64) []float64 {
	x := make([]float64, len(m.Categories)+len(raw))
	for i, c := range m.Categories {
		if c == category {
			x[i] = 1
			break
		}
	}
	for j, v := range raw {
		x[len(m.Categories)+j] = (v - m.Means[j]) / m.Scales[j]
	}
	return x
}

// softmax computes class probabilities for an encoded vector, shifting by
// the max logit for numerical stability.
func (m *softmaxModel) softmax(x []float64) []float64 {
	logits := make([]float64, len(m.Weights))
	maxLogit := math.Inf(-1)
	for k, w := range m.Weights {
		z := w[len(w)-1]
		for j, v := range x {
			z += w[j] * v
		}
		logits[k] = z
		if z > maxLogit {
			maxLogit = z
		}
	}
	sum := 0.0
	for k, z := range logits {
		logits[k] = math.Exp(z - maxLogit)
		sum += logits[k]
	}
	for k := range logits {
		logits[k] /= sum
	}
	return logits
}

// standardization returns per-column mean and scale; a constant column gets
// scale 1 so it encodes to zero instead of NaN.
func standardization(raw [][]float64) (means, scales []float64) {
	if len(raw) == 0 {
		return nil, nil
	}
	nCols := len(raw[0])
	means = make([]float64, nCols)
	scales = make([]float64, nCols)
	n := float64(len(raw))
	for j := 0; j < nCols; j++ {
		for i := range raw {
			means[j] += raw[i][j]
		}
		means[j] /= n
		variance := 0.0
		for i := range raw {
			d := raw[i][j] - means[j]
			variance += d * d
		}
		scales[j] = math.Sqrt(variance / n)
		if scales[j] == 0 {
			scales[j] = 1
		}
	}
	return means, scales
}

func distinctSorted(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

func distinctCategories(rows []FeatureRow) []string {
	seen := make(map[string]bool, 4)
	out := make([]string, 0, 4)
	for _, r := range rows {
		if !seen[r.TipoCliente] {
			seen[r.TipoCliente] = true
			out = append(out, r.TipoCliente)
		}
	}
	sort.Strings(out)
	return out
}

// numericColumns strips the categorical column from an ordered column list.
func numericColumns(cols []string) []string {
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		if c != ColTipoCliente {
			out = append(out, c)
		}
	}
	return out
}
