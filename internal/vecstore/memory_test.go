package vecstore

import (
	"context"
	"path/filepath"
	"testing"
)

// vec pads the given components to a fixed 4-dim test vector.
func vec(xs ...float32) []float32 {
	v := make([]float32, 4)
	copy(v, xs)
	return v
}

// entry builds a test entry with the given id, vector, and tier metadata.
func entry(id string, v []float32, meta map[string]any) Entry {
	return Entry{ID: id, Vector: v, Metadata: meta, Document: "doc " + id}
}

// seedStore fills a store with three entries of decreasing similarity to
// vec(1, 0): a (identical), b (close), c (orthogonal).
func seedStore(t *testing.T, s Store) {
	t.Helper()
	err := s.Upsert(context.Background(), []Entry{
		entry("a", vec(1, 0), map[string]any{"tier": "T0", "region": "USA"}),
		entry("b", vec(0.9, 0.1), map[string]any{"tier": "T1", "region": "UK"}),
		entry("c", vec(0, 1), map[string]any{"tier": "T2", "region": "UK"}),
	})
	if err != nil {
		t.Fatalf("seed upsert: %v", err)
	}
}

func Test_MemoryStore_RankingDescending(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	seedStore(t, s)

	got, err := s.Query(context.Background(), vec(1, 0), nil, 3)
	if err != nil {
		t.Fatalf("query: %v", err)
	}

	wantOrder := []string{"a", "b", "c"}
	if len(got) != len(wantOrder) {
		t.Fatalf("want %d results, got %d", len(wantOrder), len(got))
	}
	for i, id := range wantOrder {
		if got[i].Entry.ID != id {
			t.Errorf("rank %d: want %s, got %s", i, id, got[i].Entry.ID)
		}
	}
	for i := 1; i < len(got); i++ {
		if got[i].Score > got[i-1].Score {
			t.Errorf("scores not descending at rank %d", i)
		}
	}
}

func Test_MemoryStore_LargerKIsPrefixSuperset(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	seedStore(t, s)
	ctx := context.Background()

	top2, err := s.Query(ctx, vec(1, 0), nil, 2)
	if err != nil {
		t.Fatalf("query k=2: %v", err)
	}
	top3, err := s.Query(ctx, vec(1, 0), nil, 3)
	if err != nil {
		t.Fatalf("query k=3: %v", err)
	}

	for i := range top2 {
		if top3[i].Entry.ID != top2[i].Entry.ID {
			t.Errorf("k=2 result is not a prefix of k=3 at rank %d", i)
		}
	}
}

func Test_MemoryStore_TieBreakByID(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	// Identical vectors: identical scores, so order must fall back to id.
	err := s.Upsert(context.Background(), []Entry{
		entry("zz", vec(1, 0), nil),
		entry("aa", vec(1, 0), nil),
		entry("mm", vec(1, 0), nil),
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := s.Query(context.Background(), vec(1, 0), nil, 3)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	for i, want := range []string{"aa", "mm", "zz"} {
		if got[i].Entry.ID != want {
			t.Errorf("rank %d: want %s, got %s", i, want, got[i].Entry.ID)
		}
	}
}

func Test_MemoryStore_PreFilterYieldsKMatches(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	seedStore(t, s)

	// "UK" matches b and c. b ranks ahead of the global top entry a being
	// excluded — a pre-filter must still return both UK entries for k=2.
	got, err := s.Query(context.Background(), vec(1, 0), Eq("region", "UK"), 2)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 2 || got[0].Entry.ID != "b" || got[1].Entry.ID != "c" {
		t.Fatalf("want [b c], got %v", ids(got))
	}
}

func Test_MemoryStore_FewerMatchesThanK(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	seedStore(t, s)

	got, err := s.Query(context.Background(), vec(1, 0), Eq("tier", "T0"), 5)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 || got[0].Entry.ID != "a" {
		t.Fatalf("want exactly [a], got %v", ids(got))
	}
}

func Test_MemoryStore_EmptyMatchIsNotAnError(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	seedStore(t, s)

	got, err := s.Query(context.Background(), vec(1, 0), Eq("tier", "T9"), 5)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("want empty result, got %v", ids(got))
	}
}

func Test_MemoryStore_InvalidKRejected(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	seedStore(t, s)

	if _, err := s.Query(context.Background(), vec(1, 0), nil, 0); err == nil {
		t.Error("k=0 should fail")
	}
}

func Test_MemoryStore_UpsertOverwritesByID(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	ctx := context.Background()
	seedStore(t, s)

	// Re-ingest "a" with changed metadata and vector.
	err := s.Upsert(ctx, []Entry{
		entry("a", vec(0, 1), map[string]any{"tier": "T2", "region": "USA"}),
	})
	if err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	n, err := s.Count(ctx, nil)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Errorf("overwrite must not duplicate: want 3 entries, got %d", n)
	}

	got, err := s.Query(ctx, vec(0, 1), Eq("tier", "T2"), 5)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	found := false
	for _, r := range got {
		if r.Entry.ID == "a" {
			found = true
		}
	}
	if !found {
		t.Error("query should see the new version of a")
	}
	old, err := s.Query(ctx, vec(1, 0), Eq("tier", "T0"), 5)
	if err != nil {
		t.Fatalf("query old: %v", err)
	}
	if len(old) != 0 {
		t.Errorf("old version of a still visible: %v", ids(old))
	}
}

func Test_MemoryStore_DimensionMismatchRejected(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	seedStore(t, s)

	err := s.Upsert(context.Background(), []Entry{
		{ID: "d", Vector: []float32{1, 2}},
	})
	if err == nil {
		t.Error("mixing dimensionalities must fail")
	}
}

func Test_MemoryStore_PersistsAcrossReopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "programs.json")
	ctx := context.Background()

	s, err := OpenMemoryStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	seedStore(t, s)
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := OpenMemoryStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	n, err := reopened.Count(ctx, nil)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Fatalf("want 3 entries after reopen, got %d", n)
	}

	got, err := reopened.Query(ctx, vec(1, 0), Eq("region", "UK"), 5)
	if err != nil {
		t.Fatalf("query after reopen: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("want 2 UK entries after reopen, got %v", ids(got))
	}
	if got[0].Entry.Document != "doc b" {
		t.Errorf("document text lost across reopen: %q", got[0].Entry.Document)
	}
}

func Test_MemoryStore_Count(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	seedStore(t, s)
	ctx := context.Background()

	n, err := s.Count(ctx, In("tier", "T0", "T1"))
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Errorf("want 2, got %d", n)
	}
}

// ids extracts result ids for failure messages.
func ids(rs []Result) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.Entry.ID)
	}
	return out
}
