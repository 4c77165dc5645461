package imagemod

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/corona10/goimagehash"
)

func hashOf(t *testing.T, v uint64) *goimagehash.ImageHash {
	t.Helper()
	return goimagehash.NewImageHash(v, goimagehash.PHash)
}

func TestLoadHashStore(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "list.txt")
	content := strings.Join([]string{
		"# curated entries",
		"",
		"00000000000000ff,curated",
		"000000000000ff00",
		"not-a-hash,garbage",
		"  00000000000000FF,duplicate  ",
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := LoadHashStore(path)
	if err != nil {
		t.Fatalf("LoadHashStore: %v", err)
	}
	if s.Len() != 2 {
		t.Fatalf("Len() = %d, want 2 (comments, blanks, garbage and duplicates skipped)", s.Len())
	}

	e, dist, ok := s.Match(hashOf(t, 0xff), 0)
	if !ok || dist != 0 {
		t.Fatalf("Match(ff) = ok=%v dist=%d, want exact match", ok, dist)
	}
	if e.Label != "curated" {
		t.Errorf("Label = %q, want %q (first occurrence wins)", e.Label, "curated")
	}
}

func TestLoadHashStoreMissingFile(t *testing.T) {
	t.Parallel()

	s, err := LoadHashStore(filepath.Join(t.TempDir(), "absent.txt"))
	if err != nil {
		t.Fatalf("missing file should yield empty store, got %v", err)
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}
}

func TestHashStoreMatchDistance(t *testing.T) {
	t.Parallel()

	s := NewHashStore(filepath.Join(t.TempDir(), "list.txt"))
	if _, err := s.Append(hashOf(t, 0b1111), "near"); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		probe    uint64
		maxDist  int
		wantOK   bool
		wantDist int
	}{
		{name: "exact", probe: 0b1111, maxDist: 0, wantOK: true, wantDist: 0},
		{name: "distance 1 within tolerance", probe: 0b0111, maxDist: 2, wantOK: true, wantDist: 1},
		{name: "distance 1 without tolerance", probe: 0b0111, maxDist: 0, wantOK: false},
		{name: "distance 3 beyond tolerance", probe: 0b1000, maxDist: 2, wantOK: false},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, dist, ok := s.Match(hashOf(t, tc.probe), tc.maxDist)
			if ok != tc.wantOK {
				t.Fatalf("Match ok = %v, want %v", ok, tc.wantOK)
			}
			if ok && dist != tc.wantDist {
				t.Errorf("Match dist = %d, want %d", dist, tc.wantDist)
			}
		})
	}
}

func TestHashStoreAppendIdempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "list.txt")
	s := NewHashStore(path)

	added, err := s.Append(hashOf(t, 0xabcd), "first")
	if err != nil || !added {
		t.Fatalf("first Append = (%v, %v), want (true, nil)", added, err)
	}
	added, err = s.Append(hashOf(t, 0xabcd), "second")
	if err != nil || added {
		t.Fatalf("second Append = (%v, %v), want (false, nil)", added, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Count(string(data), "000000000000abcd"); got != 1 {
		t.Errorf("store holds %d occurrences, want exactly 1", got)
	}

	// Reloading sees exactly one entry.
	reloaded, err := LoadHashStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Len() != 1 {
		t.Errorf("reloaded Len() = %d, want 1", reloaded.Len())
	}
}
