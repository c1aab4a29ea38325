package main

import (
	"time"

	"github.com/lazulihq/reco-api/reco"
)

// API request and response models.

type ensureTenantRequest struct {
	Domain string `json:"domain"`
	Name   string `json:"name"`
}

type ensureTenantResponse struct {
	Status   string `json:"status"` // "exists" or "created"
	TenantID string `json:"tenant_id"`
}

type trainRequest struct {
	Examples []reco.Example `json:"examples"`
}

type trainResponse struct {
	OK       bool     `json:"ok"`
	TenantID string   `json:"tenant_id"`
	ModelID  int64    `json:"model_id"`
	Classes  []string `json:"classes"`
}

type predictRequest struct {
	ClientInfo    reco.ClientInfo  `json:"client_info"`
	VehicleInfo   reco.VehicleInfo `json:"vehicle_info"`
	HistoryCounts map[string]int   `json:"history_counts"`
}

type predictResponse struct {
	Probabilities  map[string]float64 `json:"probabilities"`
	TopService     string             `json:"top_service"`
	Confidence     float64            `json:"confidence"`
	ModelAvailable bool               `json:"model_available"`
}

type batchPredictRequest struct {
	Items []predictRequest `json:"items"`
}

type batchPredictItem struct {
	Probabilities map[string]float64 `json:"probabilities"`
	TopService    string             `json:"top_service"`
	Confidence    float64            `json:"confidence"`
}

type batchPredictResponse struct {
	ModelAvailable bool               `json:"model_available"`
	Results        []batchPredictItem `json:"results"`
}

type modelInfoResponse struct {
	ModelAvailable bool       `json:"model_available"`
	ModelID        int64      `json:"model_id,omitempty"`
	Classes        []string   `json:"classes,omitempty"`
	FeatureCols    []string   `json:"feature_cols,omitempty"`
	UpdatedAt      *time.Time `json:"updated_at,omitempty"`
}

type healthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

func (r predictRequest) input() reco.PredictInput {
	return reco.PredictInput{
		Client:        r.ClientInfo,
		Vehicle:       r.VehicleInfo,
		HistoryCounts: r.HistoryCounts,
	}
}
