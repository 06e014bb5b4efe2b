package handlers

import (
	"strings"
	"testing"
)

func TestDecodeCSVKeysRowsByHeader(t *testing.T) {
	t.Parallel()

	in := "Level1,Level2,Profession\nMedicine,Cardiology,Cardiologist\nMedicine,,Internist\n"
	headers, rows, err := decodeCSV(strings.NewReader(in))
	if err != nil {
		t.Fatalf("decodeCSV: %v", err)
	}
	if want := []string{"Level1", "Level2", "Profession"}; len(headers) != len(want) {
		t.Fatalf("headers: got %v want %v", headers, want)
	}
	if len(rows) != 2 {
		t.Fatalf("rows: got %d want 2", len(rows))
	}
	if rows[0]["Level2"] != "Cardiology" {
		t.Fatalf("row 0 Level2: got %q", rows[0]["Level2"])
	}
	if rows[1]["Level2"] != "" {
		t.Fatalf("row 1 Level2: got %q want empty", rows[1]["Level2"])
	}
}

func TestDecodeCSVStripsBOMAndBlankLines(t *testing.T) {
	t.Parallel()

	in := "\uFEFFLevel1,Profession\nMedicine,Internist\n,\n"
	headers, rows, err := decodeCSV(strings.NewReader(in))
	if err != nil {
		t.Fatalf("decodeCSV: %v", err)
	}
	if headers[0] != "Level1" {
		t.Fatalf("BOM not stripped: got %q", headers[0])
	}
	if len(rows) != 1 {
		t.Fatalf("blank line kept: got %d rows", len(rows))
	}
}

func TestDecodeCSVToleratesRaggedRows(t *testing.T) {
	t.Parallel()

	in := "Level1,Level2\nMedicine\nMedicine,Cardiology,extra\n"
	_, rows, err := decodeCSV(strings.NewReader(in))
	if err != nil {
		t.Fatalf("decodeCSV: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows: got %d want 2", len(rows))
	}
	if _, ok := rows[0]["Level2"]; ok {
		t.Fatalf("short row should leave Level2 unset")
	}
	if rows[1]["Level2"] != "Cardiology" {
		t.Fatalf("row 1 Level2: got %q", rows[1]["Level2"])
	}
}

func TestDecodeCSVEmptyFile(t *testing.T) {
	t.Parallel()

	if _, _, err := decodeCSV(strings.NewReader("")); err == nil {
		t.Fatal("expected error for empty file")
	}
}
