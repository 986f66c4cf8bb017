package memory

import (
	"bytes"
	"context"
	"testing"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	uri, err := store.PutObject(context.Background(), "run/dress/maxi.csv", "text/csv", bytes.NewReader([]byte("content")))
	if err != nil {
		t.Fatalf("PutObject() error = %v", err)
	}
	if uri != "memory://run/dress/maxi.csv" {
		t.Fatalf("unexpected uri %s", uri)
	}

	got, ok := store.Get("run/dress/maxi.csv")
	if !ok {
		t.Fatal("expected object to be stored")
	}
	got[0] = 'C'
	again, _ := store.Get("run/dress/maxi.csv")
	if string(again) != "content" {
		t.Fatalf("expected stored copy to be immutable, got %q", again)
	}
	if _, ok := store.Get("missing"); ok {
		t.Fatal("expected missing object")
	}
}

func TestBlobStorePathsSorted(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	for _, p := range []string{"b.csv", "a.csv", "c/d.csv"} {
		if _, err := store.PutObject(context.Background(), p, "", bytes.NewReader(nil)); err != nil {
			t.Fatal(err)
		}
	}
	paths := store.Paths()
	want := []string{"a.csv", "b.csv", "c/d.csv"}
	if len(paths) != len(want) {
		t.Fatalf("Paths() = %v", paths)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Fatalf("Paths() = %v, want %v", paths, want)
		}
	}
}
