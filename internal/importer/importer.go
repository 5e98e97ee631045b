// Package importer loads HTS tariff code exports into the state store so
// international tax quotes can classify lines without a product lookup.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"halo-bridge/internal/state"
)

// CSVImporter reads a sku,hts_code export and writes one lookup entry
// per SKU. Rows missing either column are skipped, not fatal.
type CSVImporter struct {
	reader *csv.Reader
	store  state.Store
}

func NewCSVImporter(r io.Reader, store state.Store) *CSVImporter {
	csvr := csv.NewReader(r)
	csvr.FieldsPerRecord = -1 // rows may have trailing commas
	return &CSVImporter{
		reader: csvr,
		store:  store,
	}
}

// Run parses CSV rows and stores HTS codes keyed by SKU. It returns the
// number of entries written.
func (i *CSVImporter) Run(ctx context.Context) (int, error) {
	headers, err := i.reader.Read()
	if err != nil {
		return 0, fmt.Errorf("read headers: %w", err)
	}
	index := headerIndex(headers)
	if _, ok := index["sku"]; !ok {
		return 0, errors.New("missing sku column")
	}
	if _, ok := index["hts_code"]; !ok {
		return 0, errors.New("missing hts_code column")
	}

	imported := 0
	for {
		record, err := i.reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return imported, fmt.Errorf("read row: %w", err)
		}

		sku := pick(record, index, "sku")
		code := pick(record, index, "hts_code")
		if sku == "" || code == "" {
			continue
		}

		if err := i.store.Put(ctx, state.KeyHTSCode+sku, code, state.TTLLookup); err != nil {
			return imported, fmt.Errorf("store hts code for %q: %w", sku, err)
		}
		imported++
	}

	return imported, nil
}

func headerIndex(headers []string) map[string]int {
	idx := make(map[string]int, len(headers))
	for i, h := range headers {
		idx[strings.TrimSpace(h)] = i
	}
	return idx
}

func pick(record []string, index map[string]int, key string) string {
	pos, ok := index[key]
	if !ok || pos >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[pos])
}
