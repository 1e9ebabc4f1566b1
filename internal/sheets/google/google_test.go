package google

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	gsheet "google.golang.org/api/sheets/v4"

	ports "misgastos/internal/sheets"
)

func TestNew_MissingSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), Config{ServiceAccountJSON: "{}"}, nil)
	if err == nil || err.Error() != "missing spreadsheet id" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCredentials(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	dir := t.TempDir()
	file := filepath.Join(dir, "sa.json")
	if err := os.WriteFile(file, []byte(`{"from":"file"}`), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		cfg     Config
		want    string
		wantErr string
	}{
		{name: "inline wins", cfg: Config{ServiceAccountJSON: `{"from":"inline"}`, ServiceAccountFile: file}, want: `{"from":"inline"}`},
		{name: "file", cfg: Config{ServiceAccountFile: file}, want: `{"from":"file"}`},
		{name: "missing file", cfg: Config{ServiceAccountFile: filepath.Join(dir, "nope.json")}, wantErr: "read service account file"},
		{name: "nothing set", cfg: Config{}, wantErr: "missing service account credentials"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := credentials(tt.cfg)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("credentials: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("credentials = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCredentials_ApplicationDefaultFallback(t *testing.T) {
	file := filepath.Join(t.TempDir(), "adc.json")
	if err := os.WriteFile(file, []byte(`{"from":"adc"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", file)

	got, err := credentials(Config{})
	if err != nil || string(got) != `{"from":"adc"}` {
		t.Fatalf("credentials = %s, %v", got, err)
	}
}

func TestQuoteSheetName(t *testing.T) {
	tests := map[string]string{
		"Movements":         "'Movements'",
		"Breakdown 2025-02": "'Breakdown 2025-02'",
		"Bob's":             "'Bob''s'",
	}
	for in, want := range tests {
		if got := quoteSheetName(in); got != want {
			t.Errorf("quoteSheetName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestToValues(t *testing.T) {
	sheet := ports.Sheet{
		Name:   "Monthly",
		Header: []string{"Period", "Total"},
		Rows:   [][]string{{"2025-02", "40.00"}, {"2025-01", "22.00"}},
	}
	got := toValues(sheet)
	if len(got) != 3 {
		t.Fatalf("rows = %d, want 3", len(got))
	}
	if got[0][0] != "Period" || got[2][1] != "22.00" {
		t.Errorf("unexpected values: %v", got)
	}

	if got := toValues(ports.Sheet{Rows: [][]string{{"x"}}}); len(got) != 1 {
		t.Errorf("no header should add no row, got %v", got)
	}
}

func TestToValues_FormulaText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"=HYPERLINK(\"http://x\")", "'=HYPERLINK(\"http://x\")"},
		{"+1+2", "'+1+2"},
		{"@SUM(A1)", "'@SUM(A1)"},
		{"-A1", "'-A1"},
		{"-12.50", "-12.50"},
		{"12.50", "12.50"},
		{"75.0%", "75.0%"},
		{"lunch", "lunch"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := toValues(ports.Sheet{Rows: [][]string{{tt.in}}})
			if got[0][0] != tt.want {
				t.Errorf("cell = %v, want %q", got[0][0], tt.want)
			}
		})
	}
}

func TestHasSheet(t *testing.T) {
	ss := &gsheet.Spreadsheet{Sheets: []*gsheet.Sheet{
		{Properties: &gsheet.SheetProperties{Title: "Movements"}},
		{Properties: nil},
	}}
	if !hasSheet(ss, "Movements") {
		t.Error("expected Movements to be found")
	}
	if hasSheet(ss, "Monthly") || hasSheet(nil, "Movements") {
		t.Error("unexpected match")
	}
}

func TestWriteSheet_Uninitialized(t *testing.T) {
	c := &Client{spreadsheetID: "test"}
	err := c.WriteSheet(context.Background(), ports.Sheet{Name: "Movements"})
	if err == nil || !strings.Contains(err.Error(), "not initialized") {
		t.Fatalf("WriteSheet error = %v", err)
	}
}
