package config

import (
	"testing"
	"time"

	"github.com/AAK-MBU/MBU-Formulardata-ATS/internal/model"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()

	if cfg.Queue.MaxConcurrency != 10 {
		t.Fatalf("max concurrency = %d", cfg.Queue.MaxConcurrency)
	}
	if cfg.Queue.MaxRetries != 3 {
		t.Fatalf("max retries = %d", cfg.Queue.MaxRetries)
	}
	if cfg.Queue.BaseDelay() != 500*time.Millisecond {
		t.Fatalf("base delay = %s", cfg.Queue.BaseDelay())
	}
	if cfg.Source.Driver != "sqlserver" {
		t.Fatalf("driver = %q", cfg.Source.Driver)
	}
	if cfg.SharePoint.DocumentLibrary != "Delte dokumenter" {
		t.Fatalf("document library = %q", cfg.SharePoint.DocumentLibrary)
	}
}

func TestWebformLookup(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Webforms = []WebformConfig{
		{ID: "F1", SiteName: "MBU"},
		{ID: "F2", SiteName: "Andet"},
	}

	w, ok := cfg.Webform("F2")
	if !ok || w.SiteName != "Andet" {
		t.Fatalf("lookup F2 = %+v (found=%v)", w, ok)
	}

	if _, ok := cfg.Webform("findes-ikke"); ok {
		t.Fatalf("unknown id must not resolve")
	}
}

func TestWebformMapping_PreservesColumnOrder(t *testing.T) {
	t.Parallel()

	w := WebformConfig{
		Columns: []model.ColumnRule{
			{Name: "Serial number", Path: "@serial"},
			{Name: "Navn", Path: "data.navn"},
			{Name: "Dato", Path: "data.dato"},
		},
	}

	cols := w.Mapping().Columns()
	want := []string{"Serial number", "Navn", "Dato"}
	if len(cols) != len(want) {
		t.Fatalf("got %d columns", len(cols))
	}
	for i := range want {
		if cols[i] != want[i] {
			t.Fatalf("column %d = %q, want %q", i, cols[i], want[i])
		}
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("ATS_URL", "https://ats.example")
	t.Setenv("ATS_TOKEN", "hemmelig-token")
	t.Setenv("DB_CONNECTION_STRING", "sqlserver://test")
	t.Setenv("OS2_API_KEY", "api-key")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Queue.URL != "https://ats.example" {
		t.Fatalf("queue url = %q", cfg.Queue.URL)
	}
	if cfg.Queue.Token != "hemmelig-token" {
		t.Fatalf("queue token = %q", cfg.Queue.Token)
	}
	if cfg.Source.ConnString != "sqlserver://test" {
		t.Fatalf("conn string = %q", cfg.Source.ConnString)
	}
	if cfg.Attachment.APIKey != "api-key" {
		t.Fatalf("api key = %q", cfg.Attachment.APIKey)
	}
}
