package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"

	"github.com/lazulihq/reco-api/reco"
)

var testSecret = []byte("test-secret")

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return NewServerWithStores(reco.NewInMemoryTenantStore(), reco.NewInMemoryArtifactStore(), testSecret)
}

func signToken(t *testing.T, secret []byte) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "tester"}).SignedString(secret)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

func doJSON(t *testing.T, s *Server, method, path, token, tenant string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if tenant != "" {
		req.Header.Set("X-Tenant", tenant)
	}
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
	return out
}

func ensureTenant(t *testing.T, s *Server, domain string) {
	t.Helper()
	w := doJSON(t, s, http.MethodPost, "/dev/ensure-tenant", "", "",
		ensureTenantRequest{Domain: domain, Name: "Test Tenant"})
	if w.Code != http.StatusOK {
		t.Fatalf("ensure-tenant returned %d: %s", w.Code, w.Body.String())
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(t, s, http.MethodGet, "/healthz", "", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	resp := decode[healthResponse](t, w)
	if resp.Status != "ok" || resp.Time == "" {
		t.Errorf("response = %+v", resp)
	}
}

func TestEnsureTenant(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/dev/ensure-tenant", "", "",
		ensureTenantRequest{Domain: "acme", Name: "Acme"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	first := decode[ensureTenantResponse](t, w)
	if first.Status != "created" || first.TenantID == "" {
		t.Errorf("first response = %+v", first)
	}

	w = doJSON(t, s, http.MethodPost, "/dev/ensure-tenant", "", "",
		ensureTenantRequest{Domain: "acme", Name: "Acme"})
	second := decode[ensureTenantResponse](t, w)
	if second.Status != "exists" || second.TenantID != first.TenantID {
		t.Errorf("second response = %+v, first ID %q", second, first.TenantID)
	}

	w = doJSON(t, s, http.MethodPost, "/dev/ensure-tenant", "", "",
		ensureTenantRequest{Domain: "x", Name: ""})
	if w.Code != http.StatusBadRequest {
		t.Errorf("short domain/name: status = %d, want 400", w.Code)
	}
}

func TestAuth(t *testing.T) {
	s := newTestServer(t)
	ensureTenant(t, s, "acme")

	tests := []struct {
		name   string
		token  string
		status int
	}{
		{"missing token", "", http.StatusUnauthorized},
		{"garbage token", "not.a.jwt", http.StatusUnauthorized},
		{"wrong secret", signToken(t, []byte("other-secret")), http.StatusUnauthorized},
		{"valid token", signToken(t, testSecret), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, s, http.MethodPost, "/ml/predict", tt.token, "acme", predictRequest{})
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.status, w.Body.String())
			}
		})
	}
}

func TestTenantResolution(t *testing.T) {
	s := newTestServer(t)
	ensureTenant(t, s, "acme")
	token := signToken(t, testSecret)

	w := doJSON(t, s, http.MethodPost, "/ml/predict", token, "", predictRequest{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing tenant: status = %d, want 400", w.Code)
	}

	w = doJSON(t, s, http.MethodPost, "/ml/predict", token, "nonexistent", predictRequest{})
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown tenant: status = %d, want 404", w.Code)
	}

	// ?tenant= works in place of the header.
	w = doJSON(t, s, http.MethodPost, "/ml/predict?tenant=acme", token, "", predictRequest{})
	if w.Code != http.StatusOK {
		t.Errorf("query tenant: status = %d: %s", w.Code, w.Body.String())
	}
}

func TestPredict_FallbackResponse(t *testing.T) {
	s := newTestServer(t)
	ensureTenant(t, s, "acme")
	token := signToken(t, testSecret)

	w := doJSON(t, s, http.MethodPost, "/ml/predict", token, "acme", predictRequest{
		HistoryCounts: map[string]int{"Licenciamento": 3, "vistoria": 1},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	resp := decode[predictResponse](t, w)
	if resp.ModelAvailable {
		t.Error("model_available should be false before training")
	}
	if resp.Probabilities["LICENCIAMENTO"] != 0.75 || resp.Probabilities["VISTORIA"] != 0.25 {
		t.Errorf("probabilities = %v", resp.Probabilities)
	}
	if resp.TopService != "LICENCIAMENTO" || resp.Confidence != 0.75 {
		t.Errorf("top = %q/%v", resp.TopService, resp.Confidence)
	}
}

func trainBody() trainRequest {
	return trainRequest{Examples: []reco.Example{
		{
			Client:        reco.ClientInfo{TipoCliente: "Cliente Final", TotalServicosCliente: 2, ValorTotalGasto: 150},
			HistoryCounts: map[string]int{"Licenciamento": 2},
			TargetService: "Licenciamento",
		},
		{
			Client:        reco.ClientInfo{TipoCliente: "Cliente Final", TotalServicosCliente: 3, ValorTotalGasto: 180},
			HistoryCounts: map[string]int{"Licenciamento": 3},
			TargetService: "Licenciamento",
		},
		{
			Client:        reco.ClientInfo{TipoCliente: "Oficina", TotalServicosCliente: 9, ValorTotalGasto: 4200},
			HistoryCounts: map[string]int{"Vistoria": 5},
			TargetService: "Vistoria",
		},
		{
			Client:        reco.ClientInfo{TipoCliente: "Oficina", TotalServicosCliente: 12, ValorTotalGasto: 5100},
			HistoryCounts: map[string]int{"Vistoria": 7},
			TargetService: "Vistoria",
		},
	}}
}

func TestTrainThenPredict(t *testing.T) {
	s := newTestServer(t)
	ensureTenant(t, s, "acme")
	token := signToken(t, testSecret)

	w := doJSON(t, s, http.MethodPost, "/ml/train", token, "acme", trainBody())
	if w.Code != http.StatusOK {
		t.Fatalf("train status = %d: %s", w.Code, w.Body.String())
	}
	trained := decode[trainResponse](t, w)
	if !trained.OK || trained.ModelID == 0 {
		t.Errorf("train response = %+v", trained)
	}
	if len(trained.Classes) != 2 {
		t.Errorf("classes = %v, want 2 normalized labels", trained.Classes)
	}

	w = doJSON(t, s, http.MethodPost, "/ml/predict", token, "acme", predictRequest{
		ClientInfo:    reco.ClientInfo{TipoCliente: "Oficina", TotalServicosCliente: 10, ValorTotalGasto: 4800},
		HistoryCounts: map[string]int{"Vistoria": 6},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("predict status = %d: %s", w.Code, w.Body.String())
	}
	resp := decode[predictResponse](t, w)
	if !resp.ModelAvailable {
		t.Error("model_available should be true after training")
	}
	if resp.TopService != "VISTORIA" {
		t.Errorf("top = %q, want VISTORIA", resp.TopService)
	}
	for _, k := range reco.DefaultServices {
		if _, ok := resp.Probabilities[k]; !ok {
			t.Errorf("default service %s missing from distribution", k)
		}
	}
}

func TestTrain_EmptyDataset(t *testing.T) {
	s := newTestServer(t)
	ensureTenant(t, s, "acme")
	token := signToken(t, testSecret)

	w := doJSON(t, s, http.MethodPost, "/ml/train", token, "acme", trainRequest{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, s, http.MethodGet, "/ml/model", token, "acme", nil)
	info := decode[modelInfoResponse](t, w)
	if info.ModelAvailable {
		t.Error("failed training must not leave a model behind")
	}
}

func TestPredictBatchEndpoint(t *testing.T) {
	s := newTestServer(t)
	ensureTenant(t, s, "acme")
	token := signToken(t, testSecret)

	w := doJSON(t, s, http.MethodPost, "/ml/predict/batch", token, "acme", batchPredictRequest{
		Items: []predictRequest{
			{HistoryCounts: map[string]int{"Licenciamento": 1}},
			{},
		},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	resp := decode[batchPredictResponse](t, w)
	if resp.ModelAvailable {
		t.Error("model_available should be false")
	}
	if len(resp.Results) != 2 {
		t.Fatalf("got %d results, want 2", len(resp.Results))
	}
	if resp.Results[0].Probabilities["LICENCIAMENTO"] != 1.0 {
		t.Errorf("item 0 = %v", resp.Results[0].Probabilities)
	}
	if resp.Results[1].Probabilities["LICENCIAMENTO"] != 0.25 {
		t.Errorf("item 1 = %v", resp.Results[1].Probabilities)
	}
}

func TestModelInfo(t *testing.T) {
	s := newTestServer(t)
	ensureTenant(t, s, "acme")
	token := signToken(t, testSecret)

	w := doJSON(t, s, http.MethodGet, "/ml/model", token, "acme", nil)
	info := decode[modelInfoResponse](t, w)
	if info.ModelAvailable {
		t.Error("model_available should be false before training")
	}

	doJSON(t, s, http.MethodPost, "/ml/train", token, "acme", trainBody())

	w = doJSON(t, s, http.MethodGet, "/ml/model", token, "acme", nil)
	info = decode[modelInfoResponse](t, w)
	if !info.ModelAvailable || info.ModelID == 0 {
		t.Errorf("model info = %+v", info)
	}
	if len(info.FeatureCols) == 0 || info.FeatureCols[0] != "tipo_cliente" {
		t.Errorf("feature_cols = %v", info.FeatureCols)
	}
	if info.UpdatedAt == nil {
		t.Error("updated_at missing")
	}
}

func doImport(t *testing.T, s *Server, token, tenant, format, filename, content string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := fmt.Fprint(fw, content); err != nil {
		t.Fatalf("failed to write form file: %v", err)
	}
	mw.Close()

	path := "/ml/train/import"
	if format != "" {
		path += "?fmt=" + format
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Tenant", tenant)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	return w
}

func TestTrainImport_CSV(t *testing.T) {
	s := newTestServer(t)
	ensureTenant(t, s, "acme")
	token := signToken(t, testSecret)

	csvData := strings.Join([]string{
		"tipo_cliente,valor_total_gasto,hist_Licenciamento,hist_Vistoria,target_service",
		"Cliente Final,100,2,0,Licenciamento",
		"Cliente Final,150,3,0,Licenciamento",
		"Oficina,4000,0,5,Vistoria",
		"Oficina,5200,0,6,Vistoria",
	}, "\n")

	w := doImport(t, s, token, "acme", "", "training.csv", csvData)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	resp := decode[trainResponse](t, w)
	if !resp.OK || len(resp.Classes) != 2 {
		t.Errorf("response = %+v", resp)
	}
}

func TestTrainImport_JSONL(t *testing.T) {
	s := newTestServer(t)
	ensureTenant(t, s, "acme")
	token := signToken(t, testSecret)

	jsonl := strings.Join([]string{
		`{"client_info":{"tipo_cliente":"Cliente Final"},"history_counts":{"Licenciamento":2},"target_service":"Licenciamento"}`,
		`{"client_info":{"tipo_cliente":"Oficina","valor_total_gasto":4000},"history_counts":{"Vistoria":5},"target_service":"Vistoria"}`,
	}, "\n")

	w := doImport(t, s, token, "acme", "jsonl", "training.jsonl", jsonl)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
}

func TestTrainImport_Errors(t *testing.T) {
	s := newTestServer(t)
	ensureTenant(t, s, "acme")
	token := signToken(t, testSecret)

	w := doImport(t, s, token, "acme", "xml", "training.xml", "<data/>")
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad format: status = %d, want 400", w.Code)
	}

	w = doImport(t, s, token, "acme", "csv", "training.csv", "tipo_cliente,hist_Vistoria\nOficina,2\n")
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("missing target: status = %d, want 422: %s", w.Code, w.Body.String())
	}

	w = doImport(t, s, token, "acme", "csv", "training.csv", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty file: status = %d, want 400: %s", w.Code, w.Body.String())
	}
}

func TestTenantsAreIsolated(t *testing.T) {
	s := newTestServer(t)
	ensureTenant(t, s, "acme")
	ensureTenant(t, s, "globex")
	token := signToken(t, testSecret)

	w := doJSON(t, s, http.MethodPost, "/ml/train", token, "acme", trainBody())
	if w.Code != http.StatusOK {
		t.Fatalf("train status = %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, s, http.MethodGet, "/ml/model", token, "globex", nil)
	info := decode[modelInfoResponse](t, w)
	if info.ModelAvailable {
		t.Error("globex should not see acme's model")
	}
}
