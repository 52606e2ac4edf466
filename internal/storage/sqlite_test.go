package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/hyperjump/codematch/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "codes.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStorage_PutGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	entries := []*models.CodeEntry{
		{Code: "K35", Description: "Akutní apendicitida", Category: "Nemoci trávicí soustavy", Chapter: "K"},
		{Code: "I10", Description: "Esenciální hypertenze", Chapter: "I"},
	}
	if err := store.PutEntries(ctx, entries); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetEntry(ctx, "K35")
	if err != nil {
		t.Fatal(err)
	}
	if got.Description != "Akutní apendicitida" || got.Chapter != "K" || got.Category == "" {
		t.Errorf("got %+v", got)
	}

	desc, ok, err := store.Description(ctx, "I10")
	if err != nil || !ok || desc != "Esenciální hypertenze" {
		t.Errorf("Description(I10) = %q, %v, %v", desc, ok, err)
	}

	_, err = store.GetEntry(ctx, "Z99")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	desc, ok, err = store.Description(ctx, "Z99")
	if err != nil || ok || desc != "" {
		t.Errorf("Description(Z99) = %q, %v, %v; want missing without error", desc, ok, err)
	}
}

func TestSQLiteStorage_UpsertKeepsOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	_ = store.PutEntries(ctx, []*models.CodeEntry{
		{Code: "A00", Description: "Cholera"},
		{Code: "B00", Description: "Herpes"},
	})
	if err := store.PutEntries(ctx, []*models.CodeEntry{{Code: "A00", Description: "Cholera, updated"}}); err != nil {
		t.Fatal(err)
	}
	all, err := store.AllEntries(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(all))
	}
	if all[0].Code != "A00" || all[0].Description != "Cholera, updated" {
		t.Errorf("first entry = %+v, want updated A00 in original position", all[0])
	}
}

func TestSQLiteStorage_BatchAcrossTransactions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	n := insertBatchSize + 250
	entries := make([]*models.CodeEntry, n)
	for i := range entries {
		entries[i] = &models.CodeEntry{Code: fmt.Sprintf("X%05d", i), Description: "desc"}
	}
	if err := store.PutEntries(ctx, entries); err != nil {
		t.Fatal(err)
	}
	count, err := store.CountEntries(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != int64(n) {
		t.Errorf("CountEntries = %d, want %d", count, n)
	}
	page, err := store.ListEntries(ctx, 10, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 5 || page[0].Code != "X00010" {
		t.Errorf("ListEntries page = %d entries starting %v", len(page), page[0])
	}
}

func TestSQLiteStorage_DeleteEntries(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	_ = store.PutEntries(ctx, []*models.CodeEntry{
		{Code: "A00", Description: "Cholera"},
		{Code: "B00", Description: "Herpes"},
	})
	if err := store.DeleteEntries(ctx, []string{"A00"}); err != nil {
		t.Fatal(err)
	}
	if n, _ := store.CountEntries(ctx); n != 1 {
		t.Errorf("expected 1 entry, got %d", n)
	}
	if err := store.DeleteEntries(ctx, nil); err != nil {
		t.Errorf("empty delete: %v", err)
	}
}

func TestSQLiteStorage_LoadRecords(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if _, err := store.LastLoad(ctx); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound before any load, got %v", err)
	}
	rec := &models.LoadRecord{ID: "load-1", Source: "/data/diagnozy.csv", Count: 42}
	if err := store.RecordLoad(ctx, rec); err != nil {
		t.Fatal(err)
	}
	if rec.LoadedAt.IsZero() {
		t.Error("LoadedAt should be set")
	}
	got, err := store.LastLoad(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "load-1" || got.Count != 42 || got.Source != rec.Source {
		t.Errorf("LastLoad = %+v", got)
	}
}
