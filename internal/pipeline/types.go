package pipeline

import (
	"time"

	"github.com/Iron-Ham/phyling/internal/cache"
	"github.com/Iron-Ham/phyling/internal/catalog"
	"github.com/Iron-Ham/phyling/internal/errors"
	"github.com/Iron-Ham/phyling/internal/tool"
)

// Stage names one step of a unit.
type Stage string

const (
	// StageWrite writes the unaligned marker sequences.
	StageWrite Stage = "write"

	// StageAlign aligns the sequences.
	StageAlign Stage = "align"

	// StageTrim filters alignment columns.
	StageTrim Stage = "trim"

	// StageTree infers the gene tree.
	StageTree Stage = "tree"
)

// String returns the string representation of the stage.
func (s Stage) String() string {
	return string(s)
}

// File name suffixes inside a marker directory.
const (
	InputSuffix   = ".faa"
	AlignedSuffix = ".aln.faa"
	TrimmedSuffix = ".trim.faa"
	TreeSuffix    = ".nwk"
)

// Config holds required dependencies for creating a Pipeline.
type Config struct {
	WorkDir string           // Run work directory; marker directories live under <WorkDir>/markers
	Catalog *catalog.Catalog // Source of per-marker profiles for profile-guided aligners
	Align   tool.Stage       // Required
	Trim    tool.Stage       // Optional; nil passes the alignment through
	Tree    tool.Stage       // Optional; nil stops after the alignment
	Store   *cache.Store     // Optional; nil disables reuse
}

// Result is the outcome of one unit.
type Result struct {
	Marker    catalog.MarkerID
	Genomes   []string      // Genomes with a sequence in the unit, sorted
	Alignment string        // Final alignment (trimmed when trimming ran)
	Width     int           // Columns in the final alignment
	Tree      string        // Gene tree path; empty without a tree stage
	Cached    bool          // Every stage output was reused
	Duration  time.Duration // Wall time of the unit
	Err       *errors.StageError
}

// Success reports whether every stage completed.
func (r Result) Success() bool {
	return r.Err == nil
}

// FailedStage returns the stage that stopped the unit, or "".
func (r Result) FailedStage() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Stage
}
