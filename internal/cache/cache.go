// Package cache decides whether an intermediate artifact from an earlier
// run can be reused.
//
// Every cached artifact has a validity sidecar, "<artifact>.ok.json",
// holding fingerprints of the inputs it was derived from, the parameters of
// the invocation that produced it and a digest of the artifact itself. The
// sidecar is written only after the artifact is complete, so an interrupted
// unit never leaves something that looks like a cache hit.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"time"

	"github.com/Iron-Ham/phyling/internal/errors"
	"github.com/Iron-Ham/phyling/internal/logging"
)

// SidecarSuffix is appended to an artifact path to name its validity record.
const SidecarSuffix = ".ok.json"

// recordVersion is bumped whenever the sidecar layout changes.
const recordVersion = 1

// Fingerprint identifies the content of a file at the time it was used.
type Fingerprint struct {
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
	SHA256  string    `json:"sha256"`
}

// Record is the validity sidecar of one artifact.
type Record struct {
	Version   int               `json:"version"`
	Artifact  string            `json:"artifact"`
	Size      int64             `json:"size"`
	SHA256    string            `json:"sha256"`
	Inputs    []Fingerprint     `json:"inputs"`
	Params    map[string]string `json:"params,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Store checks and records artifact validity. A disabled Store never
// reports a hit but still records sidecars, so a later run with caching
// enabled can reuse the output.
type Store struct {
	enabled bool
	logger  *logging.Logger
}

// NewStore creates a Store. A nil logger discards log output.
func NewStore(enabled bool, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Store{enabled: enabled, logger: logger}
}

// Enabled reports whether cache hits are allowed.
func (s *Store) Enabled() bool {
	return s.enabled
}

// SidecarPath returns the validity record path of artifact.
func SidecarPath(artifact string) string {
	return artifact + SidecarSuffix
}

// Valid reports whether artifact can be reused: caching is enabled, the
// sidecar parses, it was produced with the same params, every input still
// matches its fingerprint and the artifact still hashes to the recorded
// digest.
func (s *Store) Valid(artifact string, inputs []string, params map[string]string) bool {
	if !s.enabled {
		return false
	}

	rec, err := ReadRecord(artifact)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Debug("cache record unreadable", "artifact", artifact, "error", err)
		}
		return false
	}

	if rec.Version != recordVersion || !maps.Equal(rec.Params, normalizeParams(params)) {
		s.logger.Debug("cache record stale", "artifact", artifact, "reason", "params")
		return false
	}

	if len(rec.Inputs) != len(inputs) {
		return false
	}
	for i, path := range inputs {
		if rec.Inputs[i].Path != absPath(path) || !rec.Inputs[i].Matches(path) {
			s.logger.Debug("cache record stale", "artifact", artifact, "reason", "input", "input", path)
			return false
		}
	}

	size, sum, err := digest(artifact)
	if err != nil || size != rec.Size || sum != rec.SHA256 {
		s.logger.Debug("cache record stale", "artifact", artifact, "reason", "output")
		return false
	}
	return true
}

// Commit records that artifact is complete and was derived from inputs
// using params. It must be called only after artifact is fully written.
func (s *Store) Commit(artifact string, inputs []string, params map[string]string) error {
	size, sum, err := digest(artifact)
	if err != nil {
		return fmt.Errorf("cache commit %s: %w", artifact, err)
	}

	rec := Record{
		Version:   recordVersion,
		Artifact:  absPath(artifact),
		Size:      size,
		SHA256:    sum,
		Inputs:    make([]Fingerprint, 0, len(inputs)),
		Params:    normalizeParams(params),
		CreatedAt: time.Now().UTC(),
	}
	for _, path := range inputs {
		fp, err := Fingerprintf(path)
		if err != nil {
			return fmt.Errorf("cache commit %s: %w", artifact, err)
		}
		rec.Inputs = append(rec.Inputs, fp)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("cache commit %s: %w", artifact, err)
	}
	return WriteFile(SidecarPath(artifact), data)
}

// Invalidate removes the sidecar of artifact, if any.
func (s *Store) Invalidate(artifact string) error {
	if err := os.Remove(SidecarPath(artifact)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("cache invalidate %s: %w", artifact, err)
	}
	return nil
}

// ReadRecord loads the sidecar of artifact.
func ReadRecord(artifact string) (*Record, error) {
	data, err := os.ReadFile(SidecarPath(artifact))
	if err != nil {
		return nil, fmt.Errorf("read cache record: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse cache record: %w", err)
	}
	return &rec, nil
}

// Fingerprintf computes the fingerprint of the file at path.
func Fingerprintf(path string) (Fingerprint, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Fingerprint{}, err
	}
	_, sum, err := digest(path)
	if err != nil {
		return Fingerprint{}, err
	}
	return Fingerprint{
		Path:    absPath(path),
		Size:    info.Size(),
		ModTime: info.ModTime().UTC(),
		SHA256:  sum,
	}, nil
}

// Matches reports whether the file at path still has this fingerprint's
// content. The size is compared first and the content hash decides; the
// modification time is recorded for diagnostics only, since rewriting a
// file with identical bytes must not invalidate what was derived from it.
func (f Fingerprint) Matches(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.Size() != f.Size {
		return false
	}
	_, sum, err := digest(path)
	return err == nil && sum == f.SHA256
}

func digest(path string) (int64, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, "", err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return 0, "", err
	}
	return n, hex.EncodeToString(h.Sum(nil)), nil
}

func normalizeParams(params map[string]string) map[string]string {
	if len(params) == 0 {
		return nil
	}
	return maps.Clone(params)
}

func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}
