package reco

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Import formats accepted by ParseImport.
const (
	FormatCSV   = "csv"
	FormatJSONL = "jsonl"
)

// DefaultTipoCliente is assumed for imported rows without a customer type.
const DefaultTipoCliente = "Cliente Final"

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ParseImport decodes an uploaded training file into examples. The format
// flag is matched case-insensitively; anything but csv or jsonl returns
// ErrBadFormat. A malformed row aborts the whole import.
func ParseImport(r io.Reader, format string) ([]Example, error) {
	switch strings.ToLower(format) {
	case FormatCSV:
		return parseCSV(r)
	case FormatJSONL:
		return parseJSONL(r)
	default:
		return nil, ErrBadFormat
	}
}

// parseCSV reads rows with the fixed client/vehicle columns, a required
// target_service (or target) column and any number of hist_<key> columns.
// Blank or "NaN" history cells are treated as absent, not zero. Spreadsheet
// exports often lead with a UTF-8 byte order mark; it is stripped.
func parseCSV(r io.Reader) ([]Example, error) {
	br := bufio.NewReader(r)
	if lead, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(lead, utf8BOM) {
		if _, err := br.Discard(len(utf8BOM)); err != nil {
			return nil, fmt.Errorf("strip byte order mark: %w", err)
		}
	}

	cr := csv.NewReader(br)
	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	colIdx := make(map[string]int, len(header))
	for i, name := range header {
		colIdx[strings.TrimSpace(name)] = i
	}

	var examples []Example
	line := 1
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read csv row %d: %w", line, err)
		}

		field := func(name string) string {
			i, ok := colIdx[name]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		target := field("target_service")
		if target == "" {
			target = field("target")
		}
		if target == "" {
			return nil, fmt.Errorf("row %d: %w", line, ErrMissingTarget)
		}

		hist := make(map[string]int)
		for name, i := range colIdx {
			if !strings.HasPrefix(name, HistPrefix) || i >= len(record) {
				continue
			}
			cell := strings.TrimSpace(record[i])
			if cell == "" || cell == "NaN" {
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("row %d: column %q: %w", line, name, err)
			}
			hist[strings.TrimPrefix(name, HistPrefix)] = int(v)
		}

		tipo := field(ColTipoCliente)
		if tipo == "" {
			tipo = DefaultTipoCliente
		}
		totalServicos, err := numericCell(field("total_servicos_cliente"), line, "total_servicos_cliente")
		if err != nil {
			return nil, err
		}
		valorGasto, err := numericCell(field("valor_total_gasto"), line, "valor_total_gasto")
		if err != nil {
			return nil, err
		}
		diasUltimo, err := numericCell(field("dias_desde_ultimo_servico"), line, "dias_desde_ultimo_servico")
		if err != nil {
			return nil, err
		}
		servicosUnicos, err := numericCell(field("servicos_unicos_utilizados"), line, "servicos_unicos_utilizados")
		if err != nil {
			return nil, err
		}
		idadeVeiculo, err := numericCell(field("idade_veiculo"), line, "idade_veiculo")
		if err != nil {
			return nil, err
		}

		examples = append(examples, Example{
			Client: ClientInfo{
				TipoCliente:              tipo,
				TotalServicosCliente:     int(totalServicos),
				ValorTotalGasto:          valorGasto,
				DiasDesdeUltimoServico:   int(diasUltimo),
				ServicosUnicosUtilizados: int(servicosUnicos),
			},
			Vehicle:       VehicleInfo{IdadeVeiculo: int(idadeVeiculo)},
			HistoryCounts: hist,
			TargetService: target,
		})
	}
	return examples, nil
}

// parseJSONL reads one training example object per line; blank lines are
// skipped.
func parseJSONL(r io.Reader) ([]Example, error) {
	var examples []Example
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var ex Example
		if err := json.Unmarshal([]byte(text), &ex); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		examples = append(examples, ex)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read jsonl: %w", err)
	}
	return examples, nil
}

// numericCell parses a possibly-empty numeric cell; empty means zero.
func numericCell(cell string, line int, col string) (float64, error) {
	if cell == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return 0, fmt.Errorf("row %d: column %q: %w", line, col, err)
	}
	return v, nil
}
