package reco

import "sort"

const (
	// ColTipoCliente is the single categorical feature column.
	ColTipoCliente = "tipo_cliente"

	// ColHistTotal holds the sum of all normalized history counts.
	ColHistTotal = "hist_total"

	// HistPrefix marks the per-service history count columns.
	HistPrefix = "hist_"
)

// scalarCols is the fixed leading portion of every feature row, in the exact
// order the classifier is fit on.
var scalarCols = []string{
	ColTipoCliente,
	"total_servicos_cliente",
	"valor_total_gasto",
	"dias_desde_ultimo_servico",
	"servicos_unicos_utilizados",
	"idade_veiculo",
}

// FeatureRow is one flat observation: the categorical tipo_cliente column
// plus numeric columns addressed by name. Column order lives alongside the
// row (see FeatureColumns), not inside it, so reindexing stays a pure lookup.
type FeatureRow struct {
	TipoCliente string
	Numeric     map[string]float64
}

// BuildHistKeys returns the history vocabulary for a set of history-count
// maps: the default services plus every normalized key observed, sorted.
// For training, pass every example's map so the whole batch shares one
// column set.
func BuildHistKeys(hists ...map[string]int) []string {
	seen := make(map[string]bool, len(DefaultServices))
	for _, s := range DefaultServices {
		seen[s] = true
	}
	for _, h := range hists {
		for k := range h {
			seen[NormalizeKey(k)] = true
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FeatureColumns is the exact column order for a history vocabulary: the
// fixed scalar columns, one hist_<KEY> column per vocabulary entry, then
// hist_total.
func FeatureColumns(histKeys []string) []string {
	cols := make([]string, 0, len(scalarCols)+len(histKeys)+1)
	cols = append(cols, scalarCols...)
	for _, k := range histKeys {
		cols = append(cols, HistPrefix+k)
	}
	return append(cols, ColHistTotal)
}

// Featurize flattens one (client, vehicle, history) triple against a
// vocabulary. Vocabulary entries absent from the history default to 0.
// hist_total sums the raw normalized counts, not just the ones the
// vocabulary retains.
func Featurize(client ClientInfo, vehicle VehicleInfo, hist map[string]int, histKeys []string) FeatureRow {
	hn := normalizeHistory(hist)

	num := map[string]float64{
		"total_servicos_cliente":     float64(client.TotalServicosCliente),
		"valor_total_gasto":          client.ValorTotalGasto,
		"dias_desde_ultimo_servico":  float64(client.DiasDesdeUltimoServico),
		"servicos_unicos_utilizados": float64(client.ServicosUnicosUtilizados),
		"idade_veiculo":              float64(vehicle.IdadeVeiculo),
	}
	for _, k := range histKeys {
		num[HistPrefix+k] = float64(hn[k])
	}
	total := 0
	for _, v := range hn {
		total += v
	}
	num[ColHistTotal] = float64(total)

	return FeatureRow{TipoCliente: client.TipoCliente, Numeric: num}
}

// Reindex aligns a row to a target column order: columns the row lacks are
// zero-filled, columns the target lacks are dropped. tipo_cliente passes
// through untouched. A row produced at prediction time must be reindexed to
// the artifact's stored column order before it reaches the classifier.
func Reindex(row FeatureRow, cols []string) FeatureRow {
	num := make(map[string]float64, len(cols))
	for _, c := range cols {
		if c == ColTipoCliente {
			continue
		}
		num[c] = row.Numeric[c]
	}
	return FeatureRow{TipoCliente: row.TipoCliente, Numeric: num}
}
