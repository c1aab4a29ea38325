package reco

import (
	"reflect"
	"sort"
	"testing"
)

func TestBuildHistKeys_AlwaysContainsDefaults(t *testing.T) {
	tests := []struct {
		name  string
		hists []map[string]int
	}{
		{"no history", nil},
		{"empty map", []map[string]int{{}}},
		{"unrelated keys", []map[string]int{{"Revisão": 1}}},
		{"defaults already present", []map[string]int{{"LICENCIAMENTO": 4}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keys := BuildHistKeys(tt.hists...)
			if !sort.StringsAreSorted(keys) {
				t.Errorf("vocabulary is not sorted: %v", keys)
			}
			for _, want := range DefaultServices {
				found := false
				for _, k := range keys {
					if k == want {
						found = true
						break
					}
				}
				if !found {
					t.Errorf("vocabulary %v missing default service %q", keys, want)
				}
			}
		})
	}
}

func TestBuildHistKeys_UnionAcrossBatch(t *testing.T) {
	keys := BuildHistKeys(
		map[string]int{"Revisão": 1},
		map[string]int{"emplacamento": 2},
	)
	want := []string{"DESBLOQUEIOS", "EMPLACAMENTO", "LICENCIAMENTO", "REVISAO", "TRANSFERENCIA", "VISTORIA"}
	if !reflect.DeepEqual(keys, want) {
		t.Errorf("BuildHistKeys = %v, want %v", keys, want)
	}
}

func TestFeatureColumns_Order(t *testing.T) {
	cols := FeatureColumns([]string{"DESBLOQUEIOS", "LICENCIAMENTO", "TRANSFERENCIA", "VISTORIA"})
	want := []string{
		"tipo_cliente",
		"total_servicos_cliente",
		"valor_total_gasto",
		"dias_desde_ultimo_servico",
		"servicos_unicos_utilizados",
		"idade_veiculo",
		"hist_DESBLOQUEIOS",
		"hist_LICENCIAMENTO",
		"hist_TRANSFERENCIA",
		"hist_VISTORIA",
		"hist_total",
	}
	if !reflect.DeepEqual(cols, want) {
		t.Errorf("FeatureColumns = %v, want %v", cols, want)
	}
}

func TestFeaturize(t *testing.T) {
	client := ClientInfo{
		TipoCliente:              "Cliente Final",
		TotalServicosCliente:     7,
		ValorTotalGasto:          1234.5,
		DiasDesdeUltimoServico:   30,
		ServicosUnicosUtilizados: 3,
	}
	vehicle := VehicleInfo{IdadeVeiculo: 5}
	hist := map[string]int{"Licenciamento": 2, "Revisão": 3}

	// Vocabulary deliberately excludes REVISAO to check that hist_total
	// still counts it.
	keys := []string{"DESBLOQUEIOS", "LICENCIAMENTO", "TRANSFERENCIA", "VISTORIA"}
	row := Featurize(client, vehicle, hist, keys)

	if row.TipoCliente != "Cliente Final" {
		t.Errorf("TipoCliente = %q", row.TipoCliente)
	}
	if got := row.Numeric["hist_LICENCIAMENTO"]; got != 2 {
		t.Errorf("hist_LICENCIAMENTO = %v, want 2", got)
	}
	if got := row.Numeric["hist_VISTORIA"]; got != 0 {
		t.Errorf("hist_VISTORIA = %v, want 0", got)
	}
	if _, ok := row.Numeric["hist_REVISAO"]; ok {
		t.Error("hist_REVISAO should not be present outside the vocabulary")
	}
	if got := row.Numeric["hist_total"]; got != 5 {
		t.Errorf("hist_total = %v, want 5 (raw normalized sum)", got)
	}
	if got := row.Numeric["valor_total_gasto"]; got != 1234.5 {
		t.Errorf("valor_total_gasto = %v", got)
	}
	if got := row.Numeric["idade_veiculo"]; got != 5 {
		t.Errorf("idade_veiculo = %v", got)
	}
}

func TestReindex(t *testing.T) {
	row := FeatureRow{
		TipoCliente: "Oficina",
		Numeric: map[string]float64{
			"hist_LICENCIAMENTO": 4,
			"hist_REVISAO":       9,
			"hist_total":         13,
		},
	}
	cols := []string{"tipo_cliente", "hist_LICENCIAMENTO", "hist_VISTORIA", "hist_total"}

	got := Reindex(row, cols)

	if got.TipoCliente != "Oficina" {
		t.Errorf("TipoCliente = %q", got.TipoCliente)
	}
	if got.Numeric["hist_LICENCIAMENTO"] != 4 {
		t.Errorf("hist_LICENCIAMENTO = %v, want 4", got.Numeric["hist_LICENCIAMENTO"])
	}
	if v, ok := got.Numeric["hist_VISTORIA"]; !ok || v != 0 {
		t.Errorf("hist_VISTORIA should be zero-filled, got %v (present=%v)", v, ok)
	}
	if _, ok := got.Numeric["hist_REVISAO"]; ok {
		t.Error("hist_REVISAO should have been dropped")
	}
	if len(got.Numeric) != 3 {
		t.Errorf("expected 3 numeric columns, got %d: %v", len(got.Numeric), got.Numeric)
	}
}
