package importer

import (
	"context"
	"strings"
	"testing"

	"halo-bridge/internal/state"
)

func TestCSVImporter_Run(t *testing.T) {
	csvData := `sku,hts_code,description
HL-MUG-01,6912.00,Ceramic mug
HL-TEE-02,6109.10,Cotton tee
,9999.99,orphan row
HL-NOCODE,,missing code`

	store := state.NewMemory()
	imp := NewCSVImporter(strings.NewReader(csvData), store)

	count, err := imp.Run(context.Background())
	if err != nil {
		t.Fatalf("import run: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 entries imported, got %d", count)
	}

	value, ok, err := store.Get(context.Background(), state.KeyHTSCode+"HL-MUG-01")
	if err != nil || !ok {
		t.Fatalf("expected stored code, ok=%v err=%v", ok, err)
	}
	if value != "6912.00" {
		t.Fatalf("unexpected code: %s", value)
	}

	if _, ok, _ := store.Get(context.Background(), state.KeyHTSCode+"HL-NOCODE"); ok {
		t.Fatalf("row without code must be skipped")
	}
}

func TestCSVImporter_MissingColumns(t *testing.T) {
	store := state.NewMemory()
	imp := NewCSVImporter(strings.NewReader("sku,weight\nHL-1,2.5"), store)

	if _, err := imp.Run(context.Background()); err == nil {
		t.Fatal("expected error for missing hts_code column")
	}
}
