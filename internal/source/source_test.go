package source

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/AAK-MBU/MBU-Formulardata-ATS/internal/procerr"
)

// openTestDB 建一个带提交表的内存库
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE forms (
			form_id INTEGER PRIMARY KEY,
			form_type TEXT NOT NULL,
			form_data TEXT,
			form_submitted_date DATETIME
		)
	`)
	if err != nil {
		t.Fatalf("failed to create table: %v", err)
	}
	return db
}

func insertForm(t *testing.T, db *sql.DB, formType, formData string, submitted any) {
	t.Helper()
	if _, err := db.Exec(
		`INSERT INTO forms (form_type, form_data, form_submitted_date) VALUES (?, ?, ?)`,
		formType, formData, submitted,
	); err != nil {
		t.Fatalf("failed to insert row: %v", err)
	}
}

func payload(serial string) string {
	return `{"entity":{"serial":[{"value":"` + serial + `"}]},"data":{}}`
}

func TestFetch_FiltersAndOrders(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)

	older := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 2, 20, 9, 0, 0, 0, time.UTC)

	insertForm(t, db, "F1", payload("100"), older)
	insertForm(t, db, "F1", payload("101"), newer)
	// 其他表单类型不参与
	insertForm(t, db, "F2", payload("900"), newer)
	// payload 为空与时间为空的记录被 SQL 层过滤
	insertForm(t, db, "F1", "", nil)

	src := New(db, "forms")
	subs, err := src.Fetch(context.Background(), "F1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(subs) != 2 {
		t.Fatalf("got %d submissions, want 2", len(subs))
	}
	if subs[0].Serial != "101" || subs[1].Serial != "100" {
		t.Fatalf("expected newest first, got %s then %s", subs[0].Serial, subs[1].Serial)
	}
}

func TestFetch_SkipsStructurallyInvalid(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	now := time.Now().UTC()

	insertForm(t, db, "F1", "not json", now)
	insertForm(t, db, "F1", `{"entity":{}}`, now)
	insertForm(t, db, "F1", `{"purged":true,"entity":{"serial":[{"value":"8"}]}}`, now)
	insertForm(t, db, "F1", payload("9"), now)

	src := New(db, "forms")
	subs, err := src.Fetch(context.Background(), "F1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(subs) != 1 {
		t.Fatalf("got %d submissions, want only the valid one", len(subs))
	}
	if subs[0].Serial != "9" {
		t.Fatalf("serial = %q, want 9", subs[0].Serial)
	}
}

func TestFetch_NoMatchesIsNotAnError(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)

	src := New(db, "forms")
	subs, err := src.Fetch(context.Background(), "F1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(subs) != 0 {
		t.Fatalf("expected empty result, got %d", len(subs))
	}
}

func TestFetch_QueryFailureIsDataSourceError(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)

	src := New(db, "no_such_table")
	_, err := src.Fetch(context.Background(), "F1")
	if err == nil {
		t.Fatalf("expected error")
	}
	var dsErr *procerr.DataSourceError
	if !errors.As(err, &dsErr) {
		t.Fatalf("error is %T, want *procerr.DataSourceError", err)
	}
}

func TestParseSubmission_NumericSerial(t *testing.T) {
	t.Parallel()

	sub, ok := parseSubmission(`{"entity":{"serial":[{"value":1042}]}}`, time.Now())
	if !ok {
		t.Fatalf("expected valid submission")
	}
	if sub.Serial != "1042" {
		t.Fatalf("serial = %q, want 1042", sub.Serial)
	}
}
