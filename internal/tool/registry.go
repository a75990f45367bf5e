package tool

import (
	"fmt"
	"os/exec"
	"slices"
	"strings"

	"github.com/Iron-Ham/phyling/internal/config"
	"github.com/Iron-Ham/phyling/internal/errors"
)

// templates lists every supported tool by kind and lowercase name.
var templates = map[Kind]map[string]template{
	KindSearch: {
		"hmmsearch": {
			kind: KindSearch, name: "hmmsearch", binary: "hmmsearch", needsProfile: true,
			args: func(o Options, inv Invocation, out string) []string {
				return []string{"--domtblout", out, "--noali", "--cpu", threads(inv.Threads),
					"-E", number(o.EValue), inv.Profile, inv.Input}
			},
		},
	},
	KindAlign: {
		"muscle": {
			kind: KindAlign, name: "muscle", binary: "muscle",
			args: func(o Options, inv Invocation, out string) []string {
				return []string{"-align", inv.Input, "-output", out, "-threads", threads(inv.Threads)}
			},
		},
		"mafft": {
			kind: KindAlign, name: "mafft", binary: "mafft", stdout: true,
			args: func(o Options, inv Invocation, out string) []string {
				return []string{"--auto", "--thread", threads(inv.Threads), inv.Input}
			},
		},
		"hmmalign": {
			kind: KindAlign, name: "hmmalign", binary: "hmmalign", needsProfile: true,
			args: func(o Options, inv Invocation, out string) []string {
				return []string{"--trim", "--outformat", "afa", "-o", out, inv.Profile, inv.Input}
			},
		},
	},
	KindTrim: {
		"clipkit": {
			kind: KindTrim, name: "clipkit", binary: "clipkit",
			args: func(o Options, inv Invocation, out string) []string {
				return []string{inv.Input, "-m", "gappy", "-g", number(o.GapThreshold), "-o", out}
			},
		},
		"trimal": {
			kind: KindTrim, name: "trimal", binary: "trimal",
			args: func(o Options, inv Invocation, out string) []string {
				return []string{"-in", inv.Input, "-out", out, "-gappyout"}
			},
		},
	},
	KindTree: {
		"veryfasttree": {
			kind: KindTree, name: "veryfasttree", binary: "VeryFastTree", stdout: true,
			args: func(o Options, inv Invocation, out string) []string {
				return []string{"-lg", "-gamma", "-threads", threads(inv.Threads), inv.Input}
			},
		},
		"fasttree": {
			kind: KindTree, name: "fasttree", binary: "FastTree", stdout: true,
			args: func(o Options, inv Invocation, out string) []string {
				return []string{"-lg", "-gamma", "-quiet", inv.Input}
			},
		},
		"iqtree": {
			kind: KindTree, name: "iqtree", binary: "iqtree2",
			args: func(o Options, inv Invocation, out string) []string {
				return []string{"-s", inv.Input, "-m", "LG+G", "-T", threads(inv.Threads),
					"--prefix", out, "--quiet", "-redo"}
			},
			result: func(out string) string { return out + ".treefile" },
		},
	},
	KindConsensus: {
		"astral": {
			kind: KindConsensus, name: "astral", binary: "astral",
			args: func(o Options, inv Invocation, out string) []string {
				return []string{"-i", inv.Input, "-o", out}
			},
		},
	},
}

// Names returns the supported tool names for kind, sorted.
func Names(kind Kind) []string {
	names := make([]string, 0, len(templates[kind]))
	for name := range templates[kind] {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// New builds the Stage for the named tool. paths overrides the executable
// per tool name.
func New(kind Kind, name string, paths map[string]string, opts Options, ex *Executor) (*CommandStage, error) {
	tmpl, ok := templates[kind][strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s tool %q (supported: %s)",
			errors.ErrUnknownTool, kind, name, strings.Join(Names(kind), ", "))
	}

	path := tmpl.binary
	if override := paths[tmpl.name]; override != "" {
		path = override
	}
	return &CommandStage{tmpl: tmpl, path: path, opts: opts, exec: ex}, nil
}

// Set holds the stages a run uses. Trim is nil when trimming is disabled;
// Consensus is nil when the species tree comes from concatenation.
type Set struct {
	Search    Stage
	Align     Stage
	Trim      Stage
	Tree      Stage
	Consensus Stage
}

// NewFromConfig builds the stage set selected by cfg.
func NewFromConfig(cfg *config.Config, ex *Executor) (*Set, error) {
	if cfg == nil {
		return nil, fmt.Errorf("missing config")
	}

	opts := Options{EValue: cfg.Search.EValue, GapThreshold: cfg.Trim.GapThreshold}
	paths := cfg.Tools.Paths

	build := func(kind Kind, name, key string) (Stage, error) {
		s, err := New(kind, name, paths, opts, ex)
		if err != nil {
			return nil, errors.NewConfigError(err.Error(), errors.ErrUnknownTool).WithKey(key)
		}
		return s, nil
	}

	var (
		set Set
		err error
	)
	if set.Search, err = build(KindSearch, cfg.Search.Tool, "search.tool"); err != nil {
		return nil, err
	}
	if set.Align, err = build(KindAlign, cfg.Align.Method, "align.method"); err != nil {
		return nil, err
	}
	if cfg.Trim.Enabled {
		if set.Trim, err = build(KindTrim, cfg.Trim.Method, "trim.method"); err != nil {
			return nil, err
		}
	}
	if set.Tree, err = build(KindTree, cfg.Tree.Method, "tree.method"); err != nil {
		return nil, err
	}
	if cfg.Consensus.Strategy != config.StrategyConcatenation {
		if set.Consensus, err = build(KindConsensus, cfg.Consensus.Method, "consensus.method"); err != nil {
			return nil, err
		}
	}
	return &set, nil
}

// Stages returns the configured stages in pipeline order.
func (s *Set) Stages() []Stage {
	var out []Stage
	for _, st := range []Stage{s.Search, s.Align, s.Trim, s.Tree, s.Consensus} {
		if st != nil {
			out = append(out, st)
		}
	}
	return out
}

// Preflight checks that every configured executable can be found, before
// any tool is run. All missing tools are reported together.
func (s *Set) Preflight() error {
	var missing []string
	for _, st := range s.Stages() {
		cs, ok := st.(*CommandStage)
		if !ok {
			continue
		}
		if _, err := exec.LookPath(cs.Path()); err != nil {
			missing = append(missing, fmt.Sprintf("%s (%s)", cs.Path(), describe(st)))
		}
	}
	if len(missing) > 0 {
		return errors.NewConfigError("missing executables: "+strings.Join(missing, ", "), errors.ErrToolNotFound).
			WithKey("tools.paths")
	}
	return nil
}
