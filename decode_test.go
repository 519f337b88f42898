package uabean

import (
	"testing"

	"golang.org/x/text/encoding/charmap"
)

func win1251(t *testing.T, s string) []byte {
	t.Helper()
	out, err := charmap.Windows1251.NewEncoder().Bytes([]byte(s))
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func TestDecodeWin1251(t *testing.T) {
	got, err := DecodeWin1251(win1251(t, "Призначення платежу"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "Призначення платежу" {
		t.Errorf("decoded %q", got)
	}
}

func TestCSVRows(t *testing.T) {
	data := []byte("\ufeffДата;Сума;Опис\n01.02.2023;100;\"a;b\"\n;;\n02.02.2023;-50\n")
	rows, err := CSVRows(data, ';')
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2 (empty row skipped)", len(rows))
	}
	if rows[0]["Дата"] != "01.02.2023" {
		t.Errorf("BOM not stripped from the first header: %v", rows[0])
	}
	if rows[0]["Сума"] != "100" || rows[0]["Опис"] != "a;b" {
		t.Errorf("row 0 = %v", rows[0])
	}
	// short row keeps the missing field empty
	if v, ok := rows[1]["Опис"]; !ok || v != "" {
		t.Errorf("short row field = %q, %v", v, ok)
	}
}

func TestCSVRecords(t *testing.T) {
	data := []byte("\ufeffa,b\n1,2\n,\n3,4\n")
	records, err := CSVRecords(data, ',')
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want header + 2 rows", len(records))
	}
	if records[0][0] != "a" {
		t.Errorf("BOM not stripped: %q", records[0][0])
	}
	if records[2][1] != "4" {
		t.Errorf("records = %v", records)
	}
}

func TestWin1251CSVRows(t *testing.T) {
	f := NewFileFromBytes("statement.csv", win1251(t, "Дата;Сума\n01.02.2023;100\n"))
	rows, err := Win1251CSVRows(f, ';')
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0]["Сума"] != "100" {
		t.Errorf("rows = %v", rows)
	}
}
