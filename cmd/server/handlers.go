package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/lazulihq/reco-api/internal/logger"
	"github.com/lazulihq/reco-api/reco"
)

const maxImportSize = 32 << 20 // 32 MiB upload cap

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, healthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleEnsureTenant(w http.ResponseWriter, r *http.Request) {
	var req ensureTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if len(req.Domain) < 2 || len(req.Name) < 2 {
		respondError(w, http.StatusBadRequest, "domain and name are required", nil)
		return
	}

	tenant, created, err := s.tenants.Ensure(r.Context(), req.Domain, req.Name)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to ensure tenant", err)
		return
	}

	status := "exists"
	if created {
		status = "created"
		logger.Info("tenant created", "domain", tenant.Domain, "tenant_id", tenant.ID)
	}
	respondJSON(w, http.StatusOK, ensureTenantResponse{Status: status, TenantID: tenant.ID})
}

func (s *Server) handleTrain(w http.ResponseWriter, r *http.Request) {
	var req trainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	s.train(w, r, req.Examples)
}

func (s *Server) handleTrainImport(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxImportSize); err != nil {
		respondError(w, http.StatusBadRequest, "invalid multipart upload", err)
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "file field is required", err)
		return
	}
	defer file.Close()

	format := r.URL.Query().Get("fmt")
	if format == "" {
		format = r.FormValue("fmt")
	}
	if format == "" {
		format = reco.FormatCSV
	}

	examples, err := reco.ParseImport(file, format)
	if err != nil {
		if errors.Is(err, reco.ErrBadFormat) {
			respondError(w, http.StatusBadRequest, "unsupported import format", err)
			return
		}
		respondError(w, http.StatusUnprocessableEntity, "failed to parse import file", err)
		return
	}
	s.train(w, r, examples)
}

// train runs the shared training path for both the JSON and the import
// endpoints.
func (s *Server) train(w http.ResponseWriter, r *http.Request, examples []reco.Example) {
	tenant := tenantFrom(r.Context())

	artifact, err := s.trainer.Train(r.Context(), tenant.ID, examples)
	if err != nil {
		if errors.Is(err, reco.ErrEmptyDataset) {
			respondError(w, http.StatusBadRequest, "no training examples provided", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "training failed", err)
		return
	}

	logger.Info("model trained",
		"tenant_id", tenant.ID,
		"model_id", artifact.ID,
		"examples", len(examples),
		"classes", len(artifact.Classes),
	)
	respondJSON(w, http.StatusOK, trainResponse{
		OK:       true,
		TenantID: tenant.ID,
		ModelID:  artifact.ID,
		Classes:  artifact.Classes,
	})
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	tenant := tenantFrom(r.Context())

	pred, available, err := s.predictor.Predict(r.Context(), tenant.ID, req.input())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "prediction failed", err)
		return
	}

	respondJSON(w, http.StatusOK, predictResponse{
		Probabilities:  pred.Probabilities,
		TopService:     pred.TopService,
		Confidence:     pred.Confidence,
		ModelAvailable: available,
	})
}

func (s *Server) handlePredictBatch(w http.ResponseWriter, r *http.Request) {
	var req batchPredictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	tenant := tenantFrom(r.Context())

	items := make([]reco.PredictInput, len(req.Items))
	for i, item := range req.Items {
		items[i] = item.input()
	}

	preds, available, err := s.predictor.PredictBatch(r.Context(), tenant.ID, items)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "batch prediction failed", err)
		return
	}

	results := make([]batchPredictItem, len(preds))
	for i, pred := range preds {
		results[i] = batchPredictItem{
			Probabilities: pred.Probabilities,
			TopService:    pred.TopService,
			Confidence:    pred.Confidence,
		}
	}
	respondJSON(w, http.StatusOK, batchPredictResponse{ModelAvailable: available, Results: results})
}

func (s *Server) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r.Context())

	artifact, err := s.artifacts.Latest(r.Context(), tenant.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load model info", err)
		return
	}
	if artifact == nil {
		respondJSON(w, http.StatusOK, modelInfoResponse{ModelAvailable: false})
		return
	}

	updatedAt := artifact.UpdatedAt
	respondJSON(w, http.StatusOK, modelInfoResponse{
		ModelAvailable: true,
		ModelID:        artifact.ID,
		Classes:        artifact.Classes,
		FeatureCols:    artifact.FeatureCols,
		UpdatedAt:      &updatedAt,
	})
}
