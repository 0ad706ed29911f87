package cache

import (
	"testing"
	"time"
)

func newTestStore(t *testing.T, maxBytes int64) *Store {
	t.Helper()
	s, err := New(Config{MaxBytes: maxBytes, Encrypt: false})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestSetGetRoundTrip(t *testing.T) {
	s := newTestStore(t, 1<<20)
	if err := s.Set("ns", "k1", []byte("hello"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok := s.Get("ns", "k1")
	if !ok {
		t.Fatal("expected hit")
	}
	if string(v) != "hello" {
		t.Errorf("got %q, want hello", v)
	}
}

func TestGetMissingKey(t *testing.T) {
	s := newTestStore(t, 1<<20)
	if _, ok := s.Get("ns", "missing"); ok {
		t.Error("expected miss for unknown key")
	}
}

func TestGetExpiredEntry(t *testing.T) {
	s := newTestStore(t, 1<<20)
	if err := s.Set("ns", "k1", []byte("v"), 5*time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, ok := s.Get("ns", "k1"); ok {
		t.Error("expected expired entry to miss")
	}
	if s.Has("ns", "k1") {
		t.Error("expired entry should be deleted by Get")
	}
}

func TestDelete(t *testing.T) {
	s := newTestStore(t, 1<<20)
	_ = s.Set("ns", "k1", []byte("v"), 0)
	s.Delete("ns", "k1")
	if s.Has("ns", "k1") {
		t.Error("expected key to be gone after Delete")
	}
	if s.GlobalSize() != 0 {
		t.Errorf("expected globalSize 0 after delete, got %d", s.GlobalSize())
	}
}

func TestClearNamespace(t *testing.T) {
	s := newTestStore(t, 1<<20)
	_ = s.Set("A", "k1", []byte("v"), 0)
	_ = s.Set("B", "k2", []byte("v"), 0)
	s.Clear("A")
	if s.Has("A", "k1") {
		t.Error("namespace A should be empty")
	}
	if !s.Has("B", "k2") {
		t.Error("namespace B should survive clearing A")
	}
}

func TestClearAll(t *testing.T) {
	s := newTestStore(t, 1<<20)
	_ = s.Set("A", "k1", []byte("v"), 0)
	_ = s.Set("B", "k2", []byte("v"), 0)
	s.Clear("")
	if s.Has("A", "k1") || s.Has("B", "k2") {
		t.Error("expected every namespace to be empty")
	}
	if s.GlobalSize() != 0 {
		t.Errorf("expected globalSize 0, got %d", s.GlobalSize())
	}
}

// TestEvictionAcrossNamespaces matches spec.md §4.5's example: maxBytes
// bounds the store across namespaces, and the most-recently-used
// survivor wins once the budget is exceeded.
func TestEvictionAcrossNamespaces(t *testing.T) {
	entrySize := sizeOf("k1", []byte(repeat("x", 400)))
	maxBytes := entrySize*2 + 10 // room for ~2 entries, not 3
	s := newTestStore(t, maxBytes)

	_ = s.Set("A", "k1", []byte(repeat("x", 400)), 0)
	_ = s.Set("B", "k2", []byte(repeat("y", 400)), 0)
	_ = s.Set("A", "k3", []byte(repeat("z", 400)), 0)

	if s.GlobalSize() > maxBytes {
		t.Fatalf("globalSize %d exceeds maxBytes %d", s.GlobalSize(), maxBytes)
	}

	k1, k2 := s.Has("A", "k1"), s.Has("B", "k2")
	if k1 && k2 {
		t.Error("expected at least one of k1, k2 to be evicted")
	}
	if !s.Has("A", "k3") {
		t.Error("most recently inserted key k3 must survive")
	}
}

func TestGlobalSizeNeverNegative(t *testing.T) {
	s := newTestStore(t, 1<<20)
	_ = s.Set("ns", "k1", []byte("v"), 0)
	s.Delete("ns", "k1")
	s.Delete("ns", "k1") // double delete must not underflow
	if s.GlobalSize() != 0 {
		t.Errorf("expected 0, got %d", s.GlobalSize())
	}
}

func TestOnDeleteCallback(t *testing.T) {
	var deletedNS, deletedKey string
	var deletedVal []byte
	s, err := New(Config{
		MaxBytes: 1 << 20,
		OnDelete: func(ns, key string, value []byte) {
			deletedNS, deletedKey, deletedVal = ns, key, value
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_ = s.Set("ns", "k1", []byte("payload"), 0)
	s.Delete("ns", "k1")

	if deletedNS != "ns" || deletedKey != "k1" || string(deletedVal) != "payload" {
		t.Errorf("onDelete called with (%q, %q, %q)", deletedNS, deletedKey, deletedVal)
	}
}

func TestPaginatedKeys(t *testing.T) {
	s := newTestStore(t, 1<<20)
	_ = s.Set("ns", "a", []byte("1"), 0)
	_ = s.Set("ns", "b", []byte("2"), 0)
	_ = s.Set("ns", "c", []byte("3"), 0)

	// Most-recently-used first: c, b, a.
	page1 := s.PaginatedKeys("ns", 1, 2)
	if len(page1) != 2 || page1[0] != "c" || page1[1] != "b" {
		t.Errorf("page1 = %v", page1)
	}
	page2 := s.PaginatedKeys("ns", 2, 2)
	if len(page2) != 1 || page2[0] != "a" {
		t.Errorf("page2 = %v", page2)
	}
}

func TestNewRejectsNonPositiveMaxBytes(t *testing.T) {
	if _, err := New(Config{MaxBytes: 0}); err == nil {
		t.Error("expected an error for maxBytes=0")
	}
}

func TestEncryptedRoundTrip(t *testing.T) {
	s, err := New(Config{MaxBytes: 1 << 20, Encrypt: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_ = s.Set("ns", "k1", []byte("secret"), 0)

	// The stored representation must not equal the plaintext.
	l := s.namespaces["ns"]
	h := l.byKey["k1"]
	if string(l.at(h).value) == "secret" {
		t.Error("expected the stored value to be encrypted")
	}

	v, ok := s.Get("ns", "k1")
	if !ok || string(v) != "secret" {
		t.Errorf("expected decrypted round trip, got %q, ok=%v", v, ok)
	}
}

func repeat(s string, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = s[0]
	}
	return string(b)
}
