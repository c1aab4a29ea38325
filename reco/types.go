package reco

import "time"

// DefaultServices is the fixed service vocabulary every tenant starts from.
// The order is significant: it is the tie-break priority when two services
// end up with equal probability.
var DefaultServices = []string{"LICENCIAMENTO", "VISTORIA", "TRANSFERENCIA", "DESBLOQUEIOS"}

// Tenant is the isolation boundary for models and predictions. Domain is the
// human-readable slug clients send in the X-Tenant header.
type Tenant struct {
	ID        string
	Domain    string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ClientInfo carries the per-client scalar features.
type ClientInfo struct {
	TipoCliente              string  `json:"tipo_cliente"`
	TotalServicosCliente     int     `json:"total_servicos_cliente"`
	ValorTotalGasto          float64 `json:"valor_total_gasto"`
	DiasDesdeUltimoServico   int     `json:"dias_desde_ultimo_servico"`
	ServicosUnicosUtilizados int     `json:"servicos_unicos_utilizados"`
}

// VehicleInfo carries the vehicle scalar features.
type VehicleInfo struct {
	IdadeVeiculo int `json:"idade_veiculo"`
}

// Example is one training observation: raw client/vehicle attributes, raw
// history counts (arbitrary key casing and accents) and a raw target label.
type Example struct {
	Client        ClientInfo     `json:"client_info"`
	Vehicle       VehicleInfo    `json:"vehicle_info"`
	HistoryCounts map[string]int `json:"history_counts"`
	TargetService string         `json:"target_service"`
}

// PredictInput is one scoring request.
type PredictInput struct {
	Client        ClientInfo
	Vehicle       VehicleInfo
	HistoryCounts map[string]int
}

// Prediction is the outcome of scoring one request. Probabilities are
// rounded to four decimal places and sum to 1 within rounding tolerance.
type Prediction struct {
	Probabilities map[string]float64
	TopService    string
	Confidence    float64
}

// ModelArtifact is an immutable trained model together with the metadata
// required to reuse it: the class labels and the exact feature column order
// the classifier was fit on. The metadata describes the blob and is never
// regenerated independently of it. Retraining appends a new artifact; the
// artifact with the highest ID is the tenant's current model.
type ModelArtifact struct {
	ID          int64
	TenantID    string
	Classes     []string
	FeatureCols []string
	Blob        []byte
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
