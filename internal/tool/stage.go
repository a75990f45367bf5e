package tool

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Iron-Ham/phyling/internal/cache"
	"github.com/Iron-Ham/phyling/internal/errors"
)

// Kind names the role a tool plays in a run.
type Kind string

const (
	KindSearch    Kind = "search"
	KindAlign     Kind = "align"
	KindTrim      Kind = "trim"
	KindTree      Kind = "tree"
	KindConsensus Kind = "consensus"
)

// Invocation is one request to a Stage: read Input, write Output.
type Invocation struct {
	Input   string
	Output  string
	Profile string // Profile database (search) or marker profile (hmmalign)
	Threads int
}

// Stage is the uniform capability over external tools. Run either leaves a
// complete file at inv.Output or returns a *errors.StageError and leaves
// nothing at inv.Output. Only search output may be empty.
type Stage interface {
	Kind() Kind
	Tool() string
	// Signature identifies everything besides the input files that affects
	// the output, for cache validity.
	Signature() map[string]string
	Run(ctx context.Context, inv Invocation) error
}

// Options carry per-tool parameters taken from configuration.
type Options struct {
	EValue       float64 // search inclusion threshold
	GapThreshold float64 // trimming gappyness cutoff
}

// template describes how to call one tool.
type template struct {
	kind         Kind
	name         string
	binary       string
	needsProfile bool
	// stdout reports whether the tool writes its result to stdout.
	stdout bool
	// args builds the argument list; out is where the result must appear.
	args func(o Options, inv Invocation, out string) []string
	// result maps the requested output path to where the tool actually
	// leaves its result, for tools that only accept an output prefix.
	result func(out string) string
}

// CommandStage runs an external tool through an Executor.
type CommandStage struct {
	tmpl template
	path string
	opts Options
	exec *Executor
}

func (s *CommandStage) Kind() Kind { return s.tmpl.kind }

func (s *CommandStage) Tool() string { return s.tmpl.name }

// Path returns the executable the stage runs.
func (s *CommandStage) Path() string { return s.path }

func (s *CommandStage) Signature() map[string]string {
	return map[string]string{
		"kind": string(s.tmpl.kind),
		"tool": s.tmpl.name,
		"path": s.path,
		"args": strings.Join(s.tmpl.args(s.opts, Invocation{Input: "IN", Profile: "PROFILE", Threads: 1}, "OUT"), " "),
	}
}

// Run executes the tool. Output is produced under a temporary name and
// moved into place only once the tool succeeded and wrote something. A
// search finding no hits may leave an empty table; its parser judges it.
func (s *CommandStage) Run(ctx context.Context, inv Invocation) error {
	if s.tmpl.needsProfile && inv.Profile == "" {
		return s.fail(errors.ErrInvalidInput, Result{ExitCode: -1}, "no profile given")
	}
	if inv.Threads < 1 {
		inv.Threads = 1
	}

	tmp := cache.TempPath(inv.Output)
	cmd := Command{
		Path: s.path,
		Args: s.tmpl.args(s.opts, inv, tmp),
		Dir:  filepath.Dir(inv.Output),
	}
	if s.tmpl.stdout {
		cmd.Stdout = tmp
	}

	produced := tmp
	if s.tmpl.result != nil {
		produced = s.tmpl.result(tmp)
	}
	defer s.cleanup(tmp, produced)

	res, err := s.exec.Exec(ctx, cmd)
	if err != nil {
		return s.fail(err, res, "")
	}

	info, err := os.Stat(produced)
	if err != nil || (info.Size() == 0 && s.tmpl.kind != KindSearch) {
		return s.fail(errors.ErrEmptyOutput, res, "")
	}
	if err := cache.Promote(produced, inv.Output); err != nil {
		return s.fail(err, res, "")
	}
	return nil
}

func (s *CommandStage) fail(cause error, res Result, msg string) error {
	if msg != "" {
		cause = errors.Wrap(cause, msg)
	}
	return errors.NewStageError(string(s.tmpl.kind), cause).
		WithTool(s.tmpl.name).
		WithExitCode(res.ExitCode).
		WithStderr(res.Stderr).
		WithTimedOut(res.TimedOut)
}

// cleanup removes in-flight files, including side files of tools that
// write several outputs under one prefix.
func (s *CommandStage) cleanup(tmp, produced string) {
	cache.Discard(tmp)
	if produced != tmp {
		cache.Discard(produced)
		if matches, err := filepath.Glob(tmp + ".*"); err == nil {
			for _, m := range matches {
				cache.Discard(m)
			}
		}
	}
}

func threads(n int) string {
	return strconv.Itoa(n)
}

func number(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// describe renders a stage for log lines.
func describe(s Stage) string {
	return fmt.Sprintf("%s:%s", s.Kind(), s.Tool())
}
