package sqlite

import (
	"path/filepath"
	"testing"
)

func TestSQLiteStore_SetGet(t *testing.T) {
	// Use in-memory SQLite with shared cache for testing
	store, err := New("file:kvmem1?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer store.Close()

	if _, ok, err := store.Get("access_token"); err != nil || ok {
		t.Fatalf("Get() on empty store = ok %v, err %v", ok, err)
	}

	if err := store.Set("access_token", "tok-1"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := store.Set("access_token", "tok-2"); err != nil {
		t.Fatalf("Set() overwrite error = %v", err)
	}

	got, ok, err := store.Get("access_token")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok || got != "tok-2" {
		t.Errorf("Get() = %q, %v, want tok-2, true", got, ok)
	}
}

func TestSQLiteStore_Delete(t *testing.T) {
	store, err := New("file:kvmem2?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer store.Close()

	if err := store.Set("refresh_token", "r-1"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := store.Delete("refresh_token"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := store.Delete("refresh_token"); err != nil {
		t.Fatalf("Delete() of missing key error = %v", err)
	}
	if _, ok, _ := store.Get("refresh_token"); ok {
		t.Error("key should be gone after Delete()")
	}
}

func TestSQLiteStore_Persists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.db")

	store, err := New(path)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := store.Set("current_tenant_code", "acme"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	store.Close()

	reopened, err := New(path)
	if err != nil {
		t.Fatalf("New() reopen error = %v", err)
	}
	defer reopened.Close()

	got, ok, err := reopened.Get("current_tenant_code")
	if err != nil || !ok || got != "acme" {
		t.Errorf("Get() after reopen = %q, %v, %v", got, ok, err)
	}
}
