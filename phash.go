package imagemod

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/corona10/goimagehash"
)

// PHashEntry is one stored perceptual hash with its provenance label
// (manually curated entries carry a curator label, auto-learned entries
// carry LabelAutoLearned).
type PHashEntry struct {
	Hex   string
	Label string
	hash  *goimagehash.ImageHash
}

// LabelAutoLearned marks entries appended by the auto-learn updater.
const LabelAutoLearned = "auto"

// ComputePHash computes the perceptual hash of a frame.
func ComputePHash(f *Frame) (*goimagehash.ImageHash, error) {
	return goimagehash.PerceptionHash(f.Image)
}

// HashHex formats a perceptual hash as the 16-char hex used in store files.
func HashHex(h *goimagehash.ImageHash) string {
	return fmt.Sprintf("%016x", h.GetHash())
}

// HashStore is an append-friendly set of perceptual hashes backed by a
// newline-delimited file: one `hex[,label]` per line, blank lines and lines
// starting with '#' ignored. Entries are snapshotted in memory at load time;
// appends are serialized through a single writer and update both the file
// and the snapshot.
type HashStore struct {
	path string

	mu      sync.Mutex
	entries []PHashEntry
	index   map[uint64]int // exact-match lookup: hash value -> entries offset
}

// LoadHashStore reads a hash list file into memory. A missing file yields an
// empty store (lists start empty); a malformed line is skipped. Read failures
// other than absence are returned so the gate can fall back to no-decision.
func LoadHashStore(path string) (*HashStore, error) {
	s := &HashStore{path: path, index: make(map[uint64]int)}

	f, err := os.Open(path) // #nosec G304 -- operator-provided list path.
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("open hash list %s: %w", path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		hex, label, _ := strings.Cut(line, ",")
		hex = strings.ToLower(strings.TrimSpace(hex))
		label = strings.TrimSpace(label)
		v, err := strconv.ParseUint(hex, 16, 64)
		if err != nil {
			continue
		}
		s.add(PHashEntry{
			Hex:   hex,
			Label: label,
			hash:  goimagehash.NewImageHash(v, goimagehash.PHash),
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read hash list %s: %w", path, err)
	}
	return s, nil
}

// NewHashStore returns an empty store that appends to path.
func NewHashStore(path string) *HashStore {
	return &HashStore{path: path, index: make(map[uint64]int)}
}

// add inserts an entry into the snapshot. Caller holds mu (or is still
// single-threaded during load).
func (s *HashStore) add(e PHashEntry) {
	v := e.hash.GetHash()
	if _, ok := s.index[v]; ok {
		return
	}
	s.index[v] = len(s.entries)
	s.entries = append(s.entries, e)
}

// Len returns the number of stored entries.
func (s *HashStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Match returns the closest entry within maxDistance of h, if any.
// Exact matches are resolved via the index; near-duplicate matching scans
// every entry for the minimum Hamming distance.
func (s *HashStore) Match(h *goimagehash.ImageHash, maxDistance int) (PHashEntry, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i, ok := s.index[h.GetHash()]; ok {
		return s.entries[i], 0, true
	}
	if maxDistance <= 0 {
		return PHashEntry{}, 0, false
	}

	best := -1
	bestDist := maxDistance + 1
	for i, e := range s.entries {
		d, err := h.Distance(e.hash)
		if err != nil {
			continue
		}
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		return PHashEntry{}, 0, false
	}
	return s.entries[best], bestDist, true
}

// Append records a hash in the store. Idempotent: appending an
// already-present hash is a no-op and never writes a duplicate line.
// Returns true when a new entry was written.
func (s *HashStore) Append(h *goimagehash.ImageHash, label string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := h.GetHash()
	if _, ok := s.index[v]; ok {
		return false, nil
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return false, fmt.Errorf("create list dir: %w", err)
		}
	}
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) // #nosec G304
	if err != nil {
		return false, fmt.Errorf("open hash list %s: %w", s.path, err)
	}
	defer f.Close()

	hex := fmt.Sprintf("%016x", v)
	line := hex
	if label != "" {
		line += "," + label
	}
	if _, err := f.WriteString(line + "\n"); err != nil {
		return false, fmt.Errorf("append hash list %s: %w", s.path, err)
	}

	s.add(PHashEntry{Hex: hex, Label: label, hash: goimagehash.NewImageHash(v, goimagehash.PHash)})
	return true, nil
}
