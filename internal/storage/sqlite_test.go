package storage

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}

	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

// TestMigrationsOrdered verifies migrations are applied in ascending numeric order.
func TestMigrationsOrdered(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(versions) == 0 {
		t.Fatal("expected at least one applied migration")
	}

	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("migrations not in ascending order: %v", versions)
			break
		}
	}
}

// TestIndexesExist verifies the migration creates the expected indexes.
func TestIndexesExist(t *testing.T) {
	s := openTestStore(t)

	indexes := []string{"idx_pdf_data_filename", "idx_analyses_created"}
	for _, idx := range indexes {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&count)
		if err != nil {
			t.Fatalf("querying sqlite_master for %q: %v", idx, err)
		}
		if count != 1 {
			t.Errorf("index %q not found in sqlite_master", idx)
		}
	}
}

func TestRecordPages_AssignsPageNumbersInOrder(t *testing.T) {
	s := openTestStore(t)

	if err := s.RecordPages("report.pdf", []string{"Alpha", "Beta"}, false); err != nil {
		t.Fatalf("RecordPages: %v", err)
	}

	rows, err := s.db.Query(`SELECT page_number, content FROM pdf_data WHERE filename = 'report.pdf' ORDER BY id ASC`)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer rows.Close()

	want := []struct {
		num     int
		content string
	}{{1, "Alpha"}, {2, "Beta"}}

	i := 0
	for rows.Next() {
		var num int
		var content string
		if err := rows.Scan(&num, &content); err != nil {
			t.Fatalf("scan: %v", err)
		}
		if i >= len(want) {
			t.Fatalf("more rows than expected")
		}
		if num != want[i].num || content != want[i].content {
			t.Errorf("row %d = (%d, %q), want (%d, %q)", i, num, content, want[i].num, want[i].content)
		}
		i++
	}
	if i != 2 {
		t.Errorf("stored %d rows, want 2", i)
	}
}

func TestReadAllContent_SpaceJoinedInsertionOrder(t *testing.T) {
	s := openTestStore(t)

	if err := s.RecordPages("a.pdf", []string{"Alpha", "Beta"}, false); err != nil {
		t.Fatalf("RecordPages a.pdf: %v", err)
	}
	if err := s.RecordPages("b.pdf", []string{"Gamma"}, false); err != nil {
		t.Fatalf("RecordPages b.pdf: %v", err)
	}

	content, err := s.ReadAllContent()
	if err != nil {
		t.Fatalf("ReadAllContent: %v", err)
	}
	if content != "Alpha Beta Gamma" {
		t.Errorf("content = %q, want %q", content, "Alpha Beta Gamma")
	}
}

func TestReadAllContent_Empty(t *testing.T) {
	s := openTestStore(t)

	content, err := s.ReadAllContent()
	if err != nil {
		t.Fatalf("ReadAllContent: %v", err)
	}
	if content != "" {
		t.Errorf("content = %q, want empty string", content)
	}
}

func TestReadAllContent_Idempotent(t *testing.T) {
	s := openTestStore(t)

	if err := s.RecordPages("a.pdf", []string{"one", "", "three"}, false); err != nil {
		t.Fatalf("RecordPages: %v", err)
	}

	first, err := s.ReadAllContent()
	if err != nil {
		t.Fatalf("first ReadAllContent: %v", err)
	}
	second, err := s.ReadAllContent()
	if err != nil {
		t.Fatalf("second ReadAllContent: %v", err)
	}
	if first != second {
		t.Errorf("repeated reads differ: %q vs %q", first, second)
	}
}

func TestRecordPages_PreservesEmptyPages(t *testing.T) {
	s := openTestStore(t)

	if err := s.RecordPages("gaps.pdf", []string{"start", "", "end"}, false); err != nil {
		t.Fatalf("RecordPages: %v", err)
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM pdf_data WHERE filename = 'gaps.pdf'`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 3 {
		t.Errorf("stored %d rows, want 3 (empty page must keep its slot)", count)
	}

	content, err := s.ReadAllContent()
	if err != nil {
		t.Fatalf("ReadAllContent: %v", err)
	}
	if content != "start  end" {
		t.Errorf("content = %q, want %q", content, "start  end")
	}
}

func TestRecordPages_AppendAccumulatesDuplicates(t *testing.T) {
	s := openTestStore(t)

	for range 2 {
		if err := s.RecordPages("dup.pdf", []string{"same"}, false); err != nil {
			t.Fatalf("RecordPages: %v", err)
		}
	}

	docs, err := s.ListDocuments(10, 0)
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("got %d documents, want 1", len(docs))
	}
	if docs[0].Pages != 2 {
		t.Errorf("pages = %d, want 2 (append policy accumulates)", docs[0].Pages)
	}
}

func TestRecordPages_ReplaceSwapsDocument(t *testing.T) {
	s := openTestStore(t)

	if err := s.RecordPages("v.pdf", []string{"old one", "old two"}, false); err != nil {
		t.Fatalf("initial RecordPages: %v", err)
	}
	if err := s.RecordPages("v.pdf", []string{"new"}, true); err != nil {
		t.Fatalf("replace RecordPages: %v", err)
	}

	content, err := s.ReadDocumentContent("v.pdf")
	if err != nil {
		t.Fatalf("ReadDocumentContent: %v", err)
	}
	if content != "new" {
		t.Errorf("content = %q, want %q", content, "new")
	}
}

func TestReadDocumentContent_AppendAccumulates(t *testing.T) {
	s := openTestStore(t)

	if err := s.RecordPages("dup.pdf", []string{"first"}, false); err != nil {
		t.Fatalf("initial RecordPages: %v", err)
	}
	if err := s.RecordPages("dup.pdf", []string{"second"}, false); err != nil {
		t.Fatalf("append RecordPages: %v", err)
	}

	content, err := s.ReadDocumentContent("dup.pdf")
	if err != nil {
		t.Fatalf("ReadDocumentContent: %v", err)
	}
	if content != "first second" {
		t.Errorf("content = %q, want %q (append keeps every upload)", content, "first second")
	}
}

func TestReadDocumentContent_NotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.ReadDocumentContent("nope.pdf")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestDeleteDocument(t *testing.T) {
	s := openTestStore(t)

	if err := s.RecordPages("gone.pdf", []string{"x"}, false); err != nil {
		t.Fatalf("RecordPages: %v", err)
	}
	if err := s.DeleteDocument("gone.pdf"); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	if err := s.DeleteDocument("gone.pdf"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete error = %v, want ErrNotFound", err)
	}
}

func TestListDocuments_GroupsAndOrders(t *testing.T) {
	s := openTestStore(t)

	for i := range 3 {
		name := fmt.Sprintf("doc%d.pdf", i)
		if err := s.RecordPages(name, []string{"p1", "p2"}, false); err != nil {
			t.Fatalf("RecordPages %s: %v", name, err)
		}
	}

	docs, err := s.ListDocuments(10, 0)
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("got %d documents, want 3", len(docs))
	}
	// Most recently inserted first.
	if docs[0].Filename != "doc2.pdf" || docs[2].Filename != "doc0.pdf" {
		t.Errorf("unexpected order: %v, %v, %v", docs[0].Filename, docs[1].Filename, docs[2].Filename)
	}
	for _, d := range docs {
		if d.Pages != 2 {
			t.Errorf("%s pages = %d, want 2", d.Filename, d.Pages)
		}
		if d.ExtractedAt.IsZero() {
			t.Errorf("%s has zero extracted_at", d.Filename)
		}
	}
}

func TestSaveAndGetAnalysis(t *testing.T) {
	s := openTestStore(t)

	now := time.Now().UTC().Truncate(time.Second)
	want := Analysis{
		ID:          "an-001",
		CreatedAt:   now,
		Filename:    "report.pdf",
		Intent:      "summarize",
		Instruction: "Provide a clear, concise summary.",
		Prompt:      "PDF Document Context:\n...",
		Result:      "The document describes...",
		Status:      StatusCompleted,
		Attempts:    1,
	}

	if err := s.SaveAnalysis(want); err != nil {
		t.Fatalf("SaveAnalysis: %v", err)
	}

	got, err := s.GetAnalysis("an-001")
	if err != nil {
		t.Fatalf("GetAnalysis: %v", err)
	}
	if got != want {
		t.Errorf("round-trip mismatch:\n got %+v\nwant %+v", got, want)
	}
}

func TestGetAnalysis_NotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetAnalysis("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestSaveAnalysis_DefaultsStatus(t *testing.T) {
	s := openTestStore(t)

	a := Analysis{ID: "an-002", CreatedAt: time.Now().UTC(), Instruction: "x", Result: "y"}
	if err := s.SaveAnalysis(a); err != nil {
		t.Fatalf("SaveAnalysis: %v", err)
	}

	got, err := s.GetAnalysis("an-002")
	if err != nil {
		t.Fatalf("GetAnalysis: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Errorf("status = %q, want %q", got.Status, StatusCompleted)
	}
}

func TestListAnalyses_NewestFirst(t *testing.T) {
	s := openTestStore(t)

	base := time.Now().UTC().Add(-time.Hour)
	for i := range 3 {
		a := Analysis{
			ID:          fmt.Sprintf("an-%d", i),
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
			Instruction: "inspect",
			Result:      strings.Repeat("r", i+1),
		}
		if err := s.SaveAnalysis(a); err != nil {
			t.Fatalf("SaveAnalysis %d: %v", i, err)
		}
	}

	list, err := s.ListAnalyses(2, 0)
	if err != nil {
		t.Fatalf("ListAnalyses: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("got %d analyses, want 2 (limit)", len(list))
	}
	if list[0].ID != "an-2" || list[1].ID != "an-1" {
		t.Errorf("unexpected order: %s, %s", list[0].ID, list[1].ID)
	}
}

func TestDeleteAnalysis(t *testing.T) {
	s := openTestStore(t)

	a := Analysis{ID: "an-del", CreatedAt: time.Now().UTC(), Instruction: "x", Result: "y"}
	if err := s.SaveAnalysis(a); err != nil {
		t.Fatalf("SaveAnalysis: %v", err)
	}
	if err := s.DeleteAnalysis("an-del"); err != nil {
		t.Fatalf("DeleteAnalysis: %v", err)
	}
	if err := s.DeleteAnalysis("an-del"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete error = %v, want ErrNotFound", err)
	}
}
