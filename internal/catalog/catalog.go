// Package catalog loads the marker catalog: the fixed set of marker
// profiles a run searches for.
//
// A catalog is either a directory of per-marker profile files ("*.hmm"),
// optionally with a catalog.yaml manifest and a BUSCO-style scores_cutoff
// file, or a single file holding all profiles. Marker identity comes from
// each profile's NAME line. The catalog is loaded once and is read-only for
// the rest of the run.
package catalog

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/phyling/internal/errors"
)

// MarkerID identifies a marker. Every MarkerID used downstream of the
// catalog exists in it.
type MarkerID string

// File names recognised inside a catalog directory.
const (
	ManifestFile     = "catalog.yaml"
	ScoresCutoffFile = "scores_cutoff"
	ProfileExt       = ".hmm"
)

// Marker describes one profile.
type Marker struct {
	ID        MarkerID
	Accession string
	Length    int     // Model length from the LENG line; 0 when absent
	Cutoff    float64 // Minimum bit score for a hit; 0 means no cutoff
	Source    string  // File the profile was read from
}

// Manifest is the optional catalog.yaml of a catalog directory.
type Manifest struct {
	Name    string   `yaml:"name"`
	Version string   `yaml:"version"`
	Markers []string `yaml:"markers"`
}

// Catalog is a loaded, immutable marker catalog.
type Catalog struct {
	Name    string
	Version string
	Path    string

	markers  map[MarkerID]*Marker
	ids      []MarkerID
	profiles map[MarkerID][]byte // raw profile text, one record per marker
}

// Load reads the catalog at path.
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.NewConfigError("no marker catalog configured", errors.ErrCatalogNotFound).
			WithKey("catalog.path")
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewConfigError("cannot load catalog", errors.ErrCatalogNotFound).WithPath(path)
		}
		return nil, errors.NewConfigError(err.Error(), errors.ErrCatalogUnreadable).WithPath(path)
	}

	c := &Catalog{
		Path:     path,
		markers:  make(map[MarkerID]*Marker),
		profiles: make(map[MarkerID][]byte),
	}

	if info.IsDir() {
		err = c.loadDir(path)
	} else {
		c.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		err = c.loadFile(path)
	}
	if err != nil {
		return nil, err
	}

	if len(c.ids) == 0 {
		return nil, errors.NewConfigError("no profiles found", errors.ErrCatalogEmpty).WithPath(path)
	}
	if err := c.checkFileNames(); err != nil {
		return nil, err
	}
	return c, nil
}

// checkFileNames requires every marker to own its working files. Names
// are compared case-insensitively since the work directory may live on a
// case-insensitive file system.
func (c *Catalog) checkFileNames() error {
	seen := make(map[string]MarkerID, len(c.ids))
	for _, id := range c.ids {
		key := strings.ToLower(id.FileName())
		if other, dup := seen[key]; dup {
			return errors.NewConfigError(
				fmt.Sprintf("markers %q and %q both use file name %q", other, id, id.FileName()),
				errors.ErrMarkerNameCollision).WithPath(c.Path)
		}
		seen[key] = id
	}
	return nil
}

func (c *Catalog) loadDir(dir string) error {
	c.Name = filepath.Base(filepath.Clean(dir))

	manifest, err := readManifest(filepath.Join(dir, ManifestFile))
	if err != nil {
		return errors.NewConfigError(err.Error(), errors.ErrCatalogUnreadable).
			WithPath(filepath.Join(dir, ManifestFile))
	}
	if manifest != nil {
		if manifest.Name != "" {
			c.Name = manifest.Name
		}
		c.Version = manifest.Version
	}

	files, err := filepath.Glob(filepath.Join(dir, "*"+ProfileExt))
	if err != nil {
		return errors.NewConfigError(err.Error(), errors.ErrCatalogUnreadable).WithPath(dir)
	}
	slices.Sort(files)
	for _, f := range files {
		if err := c.loadFile(f); err != nil {
			return err
		}
	}

	if manifest != nil && len(manifest.Markers) > 0 {
		if err := c.restrict(manifest.Markers); err != nil {
			return err
		}
	}

	cutoffs, err := readScoresCutoff(filepath.Join(dir, ScoresCutoffFile))
	if err != nil {
		return errors.NewConfigError(err.Error(), errors.ErrCatalogUnreadable).
			WithPath(filepath.Join(dir, ScoresCutoffFile))
	}
	for id, score := range cutoffs {
		if m, ok := c.markers[id]; ok {
			m.Cutoff = score
		}
	}
	return nil
}

// loadFile adds every profile record in path. A record without a NAME line
// is named after the file stem, which only works for single-record files.
func (c *Catalog) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.NewConfigError(err.Error(), errors.ErrCatalogUnreadable).WithPath(path)
	}

	records, err := splitRecords(data)
	if err != nil {
		return errors.NewConfigError(err.Error(), errors.ErrCatalogUnreadable).WithPath(path)
	}

	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	for _, rec := range records {
		m := parseHeader(rec)
		if m.ID == "" {
			if len(records) > 1 {
				return errors.NewConfigError("profile without NAME in multi-profile file", errors.ErrCatalogUnreadable).
					WithPath(path)
			}
			m.ID = MarkerID(stem)
		}
		if _, dup := c.markers[m.ID]; dup {
			return errors.NewConfigError(fmt.Sprintf("duplicate marker %q", m.ID), errors.ErrCatalogUnreadable).
				WithPath(path)
		}
		m.Source = path
		c.markers[m.ID] = m
		c.profiles[m.ID] = rec
		c.ids = append(c.ids, m.ID)
	}
	slices.Sort(c.ids)
	return nil
}

// restrict keeps only the markers named in allow.
func (c *Catalog) restrict(allow []string) error {
	keep := make(map[MarkerID]bool, len(allow))
	for _, name := range allow {
		id := MarkerID(name)
		if _, ok := c.markers[id]; !ok {
			return errors.NewConfigError("manifest lists a marker with no profile", errors.ErrUnknownMarker).
				WithPath(filepath.Join(c.Path, ManifestFile)).
				WithKey(name)
		}
		keep[id] = true
	}
	c.ids = slices.DeleteFunc(c.ids, func(id MarkerID) bool {
		if keep[id] {
			return false
		}
		delete(c.markers, id)
		delete(c.profiles, id)
		return true
	})
	return nil
}

// Len returns the number of markers.
func (c *Catalog) Len() int {
	return len(c.ids)
}

// IDs returns the marker IDs in sorted order.
func (c *Catalog) IDs() []MarkerID {
	return slices.Clone(c.ids)
}

// Contains reports whether id is a catalog marker.
func (c *Catalog) Contains(id MarkerID) bool {
	_, ok := c.markers[id]
	return ok
}

// Marker returns the description of id.
func (c *Catalog) Marker(id MarkerID) (Marker, bool) {
	m, ok := c.markers[id]
	if !ok {
		return Marker{}, false
	}
	return *m, true
}

// Cutoff returns the score cutoff of id and whether one is set.
func (c *Catalog) Cutoff(id MarkerID) (float64, bool) {
	m, ok := c.markers[id]
	if !ok || m.Cutoff == 0 {
		return 0, false
	}
	return m.Cutoff, true
}

// Profile returns the raw profile text of id.
func (c *Catalog) Profile(id MarkerID) ([]byte, bool) {
	p, ok := c.profiles[id]
	return p, ok
}

func readManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", ManifestFile, err)
	}
	return &m, nil
}

// readScoresCutoff parses "<marker> <score>" lines. Missing files yield no
// cutoffs.
func readScoresCutoff(path string) (map[MarkerID]float64, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	cutoffs := make(map[MarkerID]float64)
	sc := bufio.NewScanner(bytes.NewReader(data))
	for line := 1; sc.Scan(); line++ {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		if len(fields) < 2 {
			return nil, fmt.Errorf("%s line %d: expected marker and score", ScoresCutoffFile, line)
		}
		score, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", ScoresCutoffFile, line, err)
		}
		cutoffs[MarkerID(fields[0])] = score
	}
	return cutoffs, sc.Err()
}
