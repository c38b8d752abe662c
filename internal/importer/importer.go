// internal/importer/importer.go
package importer

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/depomat/stockbi/internal/bi"
	"github.com/depomat/stockbi/internal/domain"
	"github.com/depomat/stockbi/internal/repository"
	"github.com/rs/zerolog/log"
)

// Importer reads a WinMentor stock export and feeds it to the snapshot
// recorder. The export format is loose: column order varies between
// configurations and numbers arrive in Romanian formatting, so parsing is
// permissive rather than strict.
type Importer struct {
	recorder *bi.SnapshotRecorder
	products repository.ProductRepository
}

func NewImporter(recorder *bi.SnapshotRecorder, products repository.ProductRepository) *Importer {
	return &Importer{recorder: recorder, products: products}
}

// Result summarizes one processed export.
type Result struct {
	RowsRead   int
	Products   int
	ObservedAt time.Time
}

// ImportFile parses the CSV at path and records it as one snapshot batch
// observed at observedAt. Rows without a SKU are skipped; malformed numbers
// degrade to zero quantity or a missing price, never abort the file.
func (i *Importer) ImportFile(ctx context.Context, path string, observedAt time.Time) (*Result, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open export: %w", err)
	}
	defer file.Close()

	snapshots, names, rowsRead, err := readExport(file)
	if err != nil {
		return nil, err
	}

	if len(names) > 0 {
		if err := i.products.UpsertNames(ctx, names); err != nil {
			return nil, fmt.Errorf("failed to upsert product names: %w", err)
		}
	}

	processed, err := i.recorder.RecordSnapshots(ctx, observedAt, snapshots)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("file", path).
		Time("observed_at", observedAt).
		Int("rows_read", rowsRead).
		Int("products", processed).
		Msg("stock export imported")

	return &Result{RowsRead: rowsRead, Products: processed, ObservedAt: observedAt}, nil
}

// readExport parses the CSV stream into snapshots plus the catalog names it
// carried. The returned row count includes skipped rows.
func readExport(r io.Reader) ([]domain.StockSnapshot, []domain.Product, int, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, nil, 0, fmt.Errorf("failed to read export header: %w", err)
	}

	colIndex := func(names ...string) int {
		targets := make(map[string]struct{}, len(names))
		for _, name := range names {
			targets[normalizeColumnName(name)] = struct{}{}
		}
		for i, h := range header {
			if _, ok := targets[normalizeColumnName(h)]; ok {
				return i
			}
		}
		return -1
	}

	idxSKU := colIndex("cod", "sku", "reference", "cod produs")
	idxName := colIndex("denumire", "name", "product name", "denumire produs")
	idxQty := colIndex("stoc", "stock", "quantity", "qty", "cantitate")
	idxPrice := colIndex("pret", "price", "sell price", "pret vanzare")

	if idxSKU < 0 || idxQty < 0 {
		return nil, nil, 0, fmt.Errorf("export header is missing sku or quantity column: %v", header)
	}

	var (
		snapshots []domain.StockSnapshot
		names     []domain.Product
		seenNames = make(map[string]struct{})
		rowsRead  int
	)

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, rowsRead, fmt.Errorf("failed to read export row: %w", err)
		}
		rowsRead++

		get := func(idx int) string {
			if idx < 0 || idx >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[idx])
		}

		sku := get(idxSKU)
		if sku == "" {
			continue
		}

		snapshots = append(snapshots, domain.StockSnapshot{
			ReferenceProductID: sku,
			Quantity:           parseQuantity(get(idxQty)),
			SellPrice:          parsePrice(get(idxPrice)),
		})

		if name := get(idxName); name != "" {
			if _, dup := seenNames[sku]; !dup {
				seenNames[sku] = struct{}{}
				names = append(names, domain.Product{ReferenceProductID: sku, Name: name})
			}
		}
	}

	return snapshots, names, rowsRead, nil
}

// parseQuantity coerces a loose numeric string to a float, falling back to
// zero. A product present in the export with an unreadable quantity still
// counts as observed at zero stock.
func parseQuantity(s string) float64 {
	f, ok := parseNumeric(s)
	if !ok {
		return 0
	}
	return f
}

// parsePrice coerces a loose numeric string to a price, or nil when the field
// is empty or unreadable. Unlike quantity, a missing price stays missing so
// the recorder can carry the last known one forward.
func parsePrice(s string) *float64 {
	f, ok := parseNumeric(s)
	if !ok {
		return nil
	}
	return &f
}

// parseNumeric handles both 1,234.56 and the Romanian 1.234,56 convention.
func parseNumeric(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	s = strings.ReplaceAll(s, " ", "")

	switch {
	case strings.Contains(s, ",") && strings.Contains(s, "."):
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			// 1.234,56
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			// 1,234.56
			s = strings.ReplaceAll(s, ",", "")
		}
	case strings.Contains(s, ","):
		s = strings.Replace(s, ",", ".", 1)
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// normalizeColumnName lowercases and strips everything but letters and
// digits, so "Pret Vanzare", "pret_vanzare" and "PretVanzare" all match.
func normalizeColumnName(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
