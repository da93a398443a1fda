package builder

import (
	"strings"
	"testing"
	"time"

	"github.com/AAK-MBU/MBU-Formulardata-ATS/internal/config"
	"github.com/AAK-MBU/MBU-Formulardata-ATS/internal/model"
	"github.com/AAK-MBU/MBU-Formulardata-ATS/internal/reconcile"
)

func testWebform() config.WebformConfig {
	return config.WebformConfig{
		ID:            "F1",
		SiteName:      "MBU",
		FolderName:    "Besvarelser/F1",
		ExcelFileName: "F1.xlsx",
		Columns: []model.ColumnRule{
			{Name: "Serial number", Path: "@serial"},
			{Name: "Navn", Path: "data.navn"},
		},
	}
}

func submission(serial, navn string) *model.Submission {
	return &model.Submission{
		Serial: serial,
		Payload: map[string]any{
			"data": map[string]any{"navn": navn},
		},
	}
}

func TestBuild_SkipsKnownSerials(t *testing.T) {
	t.Parallel()

	state := reconcile.State{
		Exists: true,
		KnownSerials: map[string]struct{}{
			"100": {},
			"101": {},
		},
	}
	subs := []*model.Submission{
		submission("100", "a"),
		submission("102", "b"),
		submission("103", "c"),
	}

	item, err := Build("F1", state, subs, testWebform(), time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item == nil {
		t.Fatalf("expected a work item")
	}

	if len(item.Rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(item.Rows))
	}
	if item.Rows[0]["Serial number"] != "102" || item.Rows[1]["Serial number"] != "103" {
		t.Fatalf("rows out of order: %v", item.Rows)
	}
	if item.Config.SiteName != "MBU" || item.Config.FileName != "F1.xlsx" {
		t.Fatalf("unexpected item config: %+v", item.Config)
	}
	if !item.Config.SheetExists {
		t.Fatalf("SheetExists must mirror reconciled state")
	}
}

func TestBuild_AllKnownMeansNoItem(t *testing.T) {
	t.Parallel()

	state := reconcile.State{
		Exists:       true,
		KnownSerials: map[string]struct{}{"1": {}, "2": {}},
	}
	subs := []*model.Submission{submission("1", "a"), submission("2", "b")}

	item, err := Build("F1", state, subs, testWebform(), time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item != nil {
		t.Fatalf("expected nil item when nothing is new, got %+v", item)
	}
}

func TestBuild_ReferenceFormat(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	state := reconcile.State{KnownSerials: map[string]struct{}{}}
	subs := []*model.Submission{submission("5", "x")}

	item, err := Build("F1", state, subs, testWebform(), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.HasPrefix(item.Reference, "F1_2026-03-01_") {
		t.Fatalf("reference = %q", item.Reference)
	}
	suffix := strings.TrimPrefix(item.Reference, "F1_2026-03-01_")
	if len(suffix) != 8 {
		t.Fatalf("hash suffix = %q, want 8 hex chars", suffix)
	}
}

func TestBuild_ReferenceDistinguishesContent(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	state := reconcile.State{KnownSerials: map[string]struct{}{}}

	a, err := Build("F1", state, []*model.Submission{submission("5", "x")}, testWebform(), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := Build("F1", state, []*model.Submission{submission("6", "y")}, testWebform(), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	same, err := Build("F1", state, []*model.Submission{submission("5", "x")}, testWebform(), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if a.Reference == b.Reference {
		t.Fatalf("different content produced same reference %q", a.Reference)
	}
	if a.Reference != same.Reference {
		t.Fatalf("same content produced different references: %q vs %q", a.Reference, same.Reference)
	}
}

func TestBuild_AttachmentRouting(t *testing.T) {
	t.Parallel()

	webform := testWebform()
	webform.AttachmentFolder = "Bilag"
	webform.AttachmentField = "dokument"

	withAttachment := &model.Submission{
		Serial: "9",
		Payload: map[string]any{
			"data": map[string]any{
				"navn": "d",
				"attachments": map[string]any{
					"dokument": map[string]any{"url": "https://os2.example/file/9"},
				},
			},
		},
	}

	state := reconcile.State{KnownSerials: map[string]struct{}{}}
	item, err := Build("F1", state, []*model.Submission{withAttachment}, webform, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if item.Config.AttachmentFolder != "Bilag" {
		t.Fatalf("attachment folder = %q", item.Config.AttachmentFolder)
	}
	if item.Config.AttachmentURL != "https://os2.example/file/9" {
		t.Fatalf("attachment url = %q", item.Config.AttachmentURL)
	}
}

func TestBuild_NoAttachmentWhenFieldAbsent(t *testing.T) {
	t.Parallel()

	webform := testWebform()
	webform.AttachmentFolder = "Bilag"
	webform.AttachmentField = "dokument"

	state := reconcile.State{KnownSerials: map[string]struct{}{}}
	item, err := Build("F1", state, []*model.Submission{submission("9", "d")}, webform, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if item.Config.AttachmentFolder != "" || item.Config.AttachmentURL != "" {
		t.Fatalf("attachment routing must stay empty without a carried attachment: %+v", item.Config)
	}
}
