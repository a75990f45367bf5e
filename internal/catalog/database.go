package catalog

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Iron-Ham/phyling/internal/cache"
)

// FileName returns id in a form safe to use as a file name.
func (id MarkerID) FileName() string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', ' ', '\t':
			return '_'
		}
		return r
	}, string(id))
}

// DatabasePath returns where WriteDatabase places the combined profile file.
func (c *Catalog) DatabasePath(workDir string) string {
	return filepath.Join(workDir, "catalog", c.Name+ProfileExt)
}

// WriteDatabase writes every profile, in marker order, into one file under
// workDir so the search tool can scan all markers in a single pass per
// genome. An existing file with identical content is kept as is.
func (c *Catalog) WriteDatabase(workDir string) (string, error) {
	var buf bytes.Buffer
	for _, id := range c.ids {
		buf.Write(c.profiles[id])
	}

	path := c.DatabasePath(workDir)
	if cache.Unchanged(path, buf.Bytes()) {
		return path, nil
	}
	if err := cache.WriteFile(path, buf.Bytes()); err != nil {
		return "", fmt.Errorf("write profile database: %w", err)
	}
	return path, nil
}

// WriteProfile writes the single profile of id under workDir, for tools
// that align against one marker's model.
func (c *Catalog) WriteProfile(workDir string, id MarkerID) (string, error) {
	profile, ok := c.profiles[id]
	if !ok {
		return "", fmt.Errorf("write profile: unknown marker %q", id)
	}

	path := filepath.Join(workDir, "catalog", "profiles", id.FileName()+ProfileExt)
	if cache.Unchanged(path, profile) {
		return path, nil
	}
	if err := cache.WriteFile(path, profile); err != nil {
		return "", fmt.Errorf("write profile %s: %w", id, err)
	}
	return path, nil
}
