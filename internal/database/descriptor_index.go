package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/coder/hnsw"

	"github.com/kozaktomas/smart-library/internal/faceauth"
)

// DescriptorIndexMetadata is written next to a saved graph and used to detect staleness.
type DescriptorIndexMetadata struct {
	Count     int       `json:"count"`
	BuildTime time.Time `json:"build_time"`
	Version   int       `json:"version"`
}

const descriptorIndexVersion = 1

// Match is a candidate returned by the descriptor index, scored with faceauth.ComputeSimilarity.
type Match struct {
	UserID     int64
	Similarity float64
}

// DescriptorIndex is an in-memory HNSW graph of every enrolled descriptor keyed by user ID.
// It is used to stop one face from enrolling into two accounts and never authenticates
// anybody: the graph only proposes candidates, scores are computed from the exact vectors.
type DescriptorIndex struct {
	graph   *hnsw.Graph[int64]
	vectors map[int64]faceauth.Descriptor
	mu      sync.RWMutex
	path    string // Path to save/load index
}

// NewDescriptorIndex creates a new empty index.
func NewDescriptorIndex() *DescriptorIndex {
	return &DescriptorIndex{
		graph:   newDescriptorGraph(),
		vectors: make(map[int64]faceauth.Descriptor),
	}
}

func newDescriptorGraph() *hnsw.Graph[int64] {
	g := hnsw.NewGraph[int64]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.EfSearch = HNSWEfSearch
	g.Distance = hnsw.EuclideanDistance
	return g
}

// Build replaces the index contents. Entries that are not valid descriptors are skipped.
func (x *DescriptorIndex) Build(entries []EnrolledDescriptor) {
	g := newDescriptorGraph()
	vectors := make(map[int64]faceauth.Descriptor, len(entries))

	for _, e := range entries {
		d := faceauth.FromFloat32(e.Descriptor)
		if !d.Valid() {
			continue
		}
		g.Add(hnsw.MakeNode(e.UserID, e.Descriptor))
		vectors[e.UserID] = d
	}

	x.mu.Lock()
	x.graph = g
	x.vectors = vectors
	x.mu.Unlock()
}

// Upsert adds or replaces the descriptor of one user. The descriptor is kept at the
// float32 precision of the vector column, the same values Build and Warm index.
func (x *DescriptorIndex) Upsert(userID int64, d faceauth.Descriptor) {
	if !d.Valid() {
		x.Remove(userID)
		return
	}
	v := d.Float32()

	x.mu.Lock()
	defer x.mu.Unlock()

	if _, ok := x.vectors[userID]; ok {
		x.dropLocked(userID)
	}
	x.graph.Add(hnsw.MakeNode(userID, v))
	x.vectors[userID] = faceauth.FromFloat32(v)
}

// Remove drops a user from the index.
func (x *DescriptorIndex) Remove(userID int64) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if _, ok := x.vectors[userID]; !ok {
		return
	}
	x.dropLocked(userID)
}

// dropLocked removes userID from the graph. An emptied graph is replaced, since hnsw
// cannot pick an entry point from a graph whose last node was deleted.
func (x *DescriptorIndex) dropLocked(userID int64) {
	delete(x.vectors, userID)
	if len(x.vectors) == 0 {
		x.graph = newDescriptorGraph()
		return
	}
	x.graph.Delete(userID)
}

// Nearest returns up to k users closest to d, highest similarity first.
func (x *DescriptorIndex) Nearest(d faceauth.Descriptor, k int) []Match {
	if !d.Valid() || k <= 0 {
		return nil
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	if len(x.vectors) == 0 {
		return nil
	}

	neighbors := x.graph.Search(d.Float32(), k)
	matches := make([]Match, 0, len(neighbors))
	for _, n := range neighbors {
		stored, ok := x.vectors[n.Key]
		if !ok {
			continue
		}
		matches = append(matches, Match{UserID: n.Key, Similarity: faceauth.ComputeSimilarity(stored, d)})
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	return matches
}

// FindDuplicate reports another user whose enrolled descriptor scores strictly above
// threshold against d. excludeUserID is skipped so re-enrollment does not match itself.
func (x *DescriptorIndex) FindDuplicate(d faceauth.Descriptor, excludeUserID int64, threshold float64) (Match, bool) {
	for _, m := range x.Nearest(d, DuplicateSearchK) {
		if m.UserID == excludeUserID {
			continue
		}
		if m.Similarity > threshold {
			return m, true
		}
		break
	}
	return Match{}, false
}

// Len returns the number of indexed users.
func (x *DescriptorIndex) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.vectors)
}

// SetPath sets the path for saving/loading the index.
func (x *DescriptorIndex) SetPath(path string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.path = path
}

// Warm fills the index from storage. If a saved graph exists at the configured path and
// its metadata matches the number of enrolled users it is imported, otherwise the graph
// is rebuilt from the vectors.
func (x *DescriptorIndex) Warm(ctx context.Context, reader UserReader) error {
	entries, err := reader.ListEnrolledDescriptors(ctx)
	if err != nil {
		return fmt.Errorf("list enrolled descriptors: %w", err)
	}

	x.mu.RLock()
	path := x.path
	x.mu.RUnlock()

	if path != "" {
		loaded, err := x.load(path, entries)
		if err != nil {
			slog.Warn("descriptor index: saved graph unusable, rebuilding", "path", path, "error", err)
		}
		if loaded {
			slog.Info("descriptor index: loaded saved graph", "path", path, "count", len(entries))
			return nil
		}
	}

	x.Build(entries)
	slog.Info("descriptor index: built", "count", x.Len())
	return nil
}

// load imports the saved graph if it is still in sync with entries.
func (x *DescriptorIndex) load(path string, entries []EnrolledDescriptor) (bool, error) {
	meta, err := LoadDescriptorIndexMetadata(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	vectors := make(map[int64]faceauth.Descriptor, len(entries))
	for _, e := range entries {
		if d := faceauth.FromFloat32(e.Descriptor); d.Valid() {
			vectors[e.UserID] = d
		}
	}
	if meta.Version != descriptorIndexVersion || meta.Count != len(vectors) {
		return false, nil
	}

	f, err := os.Open(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return false, fmt.Errorf("open descriptor index: %w", err)
	}
	defer f.Close()

	g := newDescriptorGraph()
	if err := g.Import(f); err != nil {
		return false, fmt.Errorf("import descriptor index: %w", err)
	}
	if g.Len() != len(vectors) {
		return false, nil
	}

	x.mu.Lock()
	x.graph = g
	x.vectors = vectors
	x.mu.Unlock()
	return true, nil
}

// Save persists the graph and its metadata. It is a no-op without a path.
func (x *DescriptorIndex) Save() error {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.path == "" {
		return nil
	}

	if len(x.vectors) == 0 {
		// Remove existing files if index is empty (best-effort cleanup).
		_ = os.Remove(x.path)
		_ = os.Remove(x.path + ".meta")
		return nil
	}

	f, err := os.Create(x.path) //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to create descriptor index file: %w", err)
	}
	if err := x.graph.Export(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to export descriptor index: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing descriptor index file: %w", err)
	}

	metaData, err := json.Marshal(DescriptorIndexMetadata{
		Count:     len(x.vectors),
		BuildTime: time.Now().UTC(),
		Version:   descriptorIndexVersion,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(x.path+".meta", metaData, 0600); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}
	return nil
}

// LoadDescriptorIndexMetadata loads metadata from the .meta file next to path.
func LoadDescriptorIndexMetadata(path string) (DescriptorIndexMetadata, error) {
	var metadata DescriptorIndexMetadata

	data, err := os.ReadFile(path + ".meta") //nolint:gosec // path is from trusted config
	if err != nil {
		return metadata, fmt.Errorf("failed to read metadata file: %w", err)
	}
	if err := json.Unmarshal(data, &metadata); err != nil {
		return metadata, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return metadata, nil
}
