package testutil

import (
	"context"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Iron-Ham/phyling/internal/errors"
	"github.com/Iron-Ham/phyling/internal/genome"
	"github.com/Iron-Ham/phyling/internal/newick"
	"github.com/Iron-Ham/phyling/internal/seqio"
	"github.com/Iron-Ham/phyling/internal/tool"
)

// FakeStage is an in-process tool.Stage. Fn produces inv.Output; every
// invocation is recorded.
type FakeStage struct {
	StageKind tool.Kind
	Name      string
	Fn        func(ctx context.Context, inv tool.Invocation) error

	mu    sync.Mutex
	calls []tool.Invocation
}

func (f *FakeStage) Kind() tool.Kind { return f.StageKind }

func (f *FakeStage) Tool() string { return f.Name }

func (f *FakeStage) Signature() map[string]string {
	return map[string]string{"kind": string(f.StageKind), "tool": f.Name}
}

func (f *FakeStage) Run(ctx context.Context, inv tool.Invocation) error {
	f.mu.Lock()
	f.calls = append(f.calls, inv)
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return errors.NewStageError(string(f.StageKind), errors.ErrCanceled).WithTool(f.Name)
	}
	return f.Fn(ctx, inv)
}

// Calls returns how many times Run was invoked.
func (f *FakeStage) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// Invocations returns a copy of the recorded invocations.
func (f *FakeStage) Invocations() []tool.Invocation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// StageFailure builds the error a failing external tool would return.
func StageFailure(kind tool.Kind, name string, exitCode int, stderr string) error {
	return errors.NewStageError(string(kind), errors.ErrToolFailed).
		WithTool(name).
		WithExitCode(exitCode).
		WithStderr(stderr)
}

// StageTimeout returns the error a CommandStage reports when a call
// exceeds its timeout.
func StageTimeout(kind tool.Kind, name string, timeout time.Duration) error {
	return errors.NewStageError(string(kind), errors.NewTimeoutError(name, timeout)).
		WithTool(name).
		WithTimedOut(true)
}

// FakeSearch returns a search stage that writes tables[genomeID] as the
// hit table of each genome. Genomes without an entry get an empty table.
func FakeSearch(tables map[string]string) *FakeStage {
	return &FakeStage{
		StageKind: tool.KindSearch,
		Name:      "fake-hmmsearch",
		Fn: func(ctx context.Context, inv tool.Invocation) error {
			content, ok := tables[genome.IDFromPath(inv.Input)]
			if !ok {
				content = Domtbl()
			}
			return os.WriteFile(inv.Output, []byte(content), 0644)
		},
	}
}

// FakeAligner returns an align stage that pads every input sequence with
// gaps to the longest one.
func FakeAligner() *FakeStage {
	return &FakeStage{
		StageKind: tool.KindAlign,
		Name:      "fake-aligner",
		Fn: func(ctx context.Context, inv tool.Invocation) error {
			records, err := seqio.ReadFile(inv.Input)
			if err != nil {
				return err
			}
			width := 0
			for _, r := range records {
				width = max(width, len(r.Seq))
			}
			for i := range records {
				records[i].Seq = append(records[i].Seq, seqio.GapRow(width-len(records[i].Seq))...)
			}
			return seqio.WriteFile(inv.Output, records)
		},
	}
}

// FakeTrimmer returns a trim stage that copies its input unchanged.
func FakeTrimmer() *FakeStage {
	return &FakeStage{
		StageKind: tool.KindTrim,
		Name:      "fake-trimmer",
		Fn: func(ctx context.Context, inv tool.Invocation) error {
			data, err := os.ReadFile(inv.Input)
			if err != nil {
				return err
			}
			return os.WriteFile(inv.Output, data, 0644)
		},
	}
}

// FakeTreeBuilder returns a tree stage that writes a caterpillar tree over
// the alignment rows in sorted order.
func FakeTreeBuilder() *FakeStage {
	return &FakeStage{
		StageKind: tool.KindTree,
		Name:      "fake-tree",
		Fn: func(ctx context.Context, inv tool.Invocation) error {
			aln, err := seqio.ReadAlignmentFile(inv.Input)
			if err != nil {
				return err
			}
			return os.WriteFile(inv.Output, []byte(Caterpillar(aln.IDs())+"\n"), 0644)
		},
	}
}

// FakeSummarizer returns a consensus stage that writes a caterpillar tree
// over the union of leaves of all input gene trees.
func FakeSummarizer() *FakeStage {
	return &FakeStage{
		StageKind: tool.KindConsensus,
		Name:      "fake-astral",
		Fn: func(ctx context.Context, inv tool.Invocation) error {
			data, err := os.ReadFile(inv.Input)
			if err != nil {
				return err
			}
			seen := make(map[string]bool)
			for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
				tree, err := newick.Parse(strings.TrimSpace(line))
				if err != nil {
					return err
				}
				for _, leaf := range tree.Leaves() {
					seen[leaf] = true
				}
			}
			leaves := make([]string, 0, len(seen))
			for leaf := range seen {
				leaves = append(leaves, leaf)
			}
			slices.Sort(leaves)
			return os.WriteFile(inv.Output, []byte(Caterpillar(leaves)+"\n"), 0644)
		},
	}
}

// Caterpillar renders the ladder tree (((a,b),c),d); over leaves.
func Caterpillar(leaves []string) string {
	if len(leaves) == 1 {
		return "(" + leaves[0] + ");"
	}
	tree := leaves[0]
	for _, leaf := range leaves[1:] {
		tree = "(" + tree + "," + leaf + ")"
	}
	return tree + ";"
}
