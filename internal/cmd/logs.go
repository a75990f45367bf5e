package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/Iron-Ham/phyling/internal/config"
	"github.com/Iron-Ham/phyling/internal/logging"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View run logs",
	Long: `View and filter the log of runs in a work directory.

By default, shows the last 50 entries of the configured work directory.
Use flags to filter and format the output.

Examples:
  # Show every entry of one marker
  phyling logs --marker K00001 -n 0

  # Follow a running run
  phyling logs -f

  # Only warnings and errors of the last hour
  phyling logs --level warn --since 1h

  # Search for specific patterns
  phyling logs --grep "timed out|exit"`,
	RunE: runLogs,
}

var (
	logsWorkDir string
	logsRunID   string
	logsMarker  string
	logsGenome  string
	logsTail    int
	logsFollow  bool
	logsLevel   string
	logsSince   string
	logsGrep    string
)

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().StringVar(&logsWorkDir, "work-dir", "", "Work directory holding the log (default: configured work directory)")
	logsCmd.Flags().StringVar(&logsRunID, "run", "", "Only entries of this run ID")
	logsCmd.Flags().StringVar(&logsMarker, "marker", "", "Only entries of this marker")
	logsCmd.Flags().StringVar(&logsGenome, "genome", "", "Only entries of this genome")
	logsCmd.Flags().IntVarP(&logsTail, "tail", "n", 50, "Number of lines to show (0 for all)")
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Follow log output (like tail -f)")
	logsCmd.Flags().StringVar(&logsLevel, "level", "", "Filter by minimum level (debug/info/warn/error)")
	logsCmd.Flags().StringVar(&logsSince, "since", "", "Show logs since duration ago (e.g., 1h, 30m)")
	logsCmd.Flags().StringVar(&logsGrep, "grep", "", "Filter logs matching pattern (regex)")
}

// logEntry represents a parsed JSON log line
type logEntry struct {
	Time   time.Time      `json:"time"`
	Level  string         `json:"level"`
	Msg    string         `json:"msg"`
	RunID  string         `json:"run_id,omitempty"`
	Genome string         `json:"genome,omitempty"`
	Marker string         `json:"marker,omitempty"`
	Stage  string         `json:"stage,omitempty"`
	Extra  map[string]any `json:"-"` // Captures additional fields
}

// UnmarshalJSON implements custom unmarshaling to capture extra fields
func (e *logEntry) UnmarshalJSON(data []byte) error {
	// First, unmarshal known fields using a type alias to avoid recursion
	type Alias logEntry
	aux := &struct {
		*Alias
	}{
		Alias: (*Alias)(e),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	// Then unmarshal all fields to capture extras
	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}

	// Remove known fields, keep the rest as extra
	for _, key := range []string{"time", "level", "msg", "run_id", "genome", "marker", "stage"} {
		delete(all, key)
	}

	if len(all) > 0 {
		e.Extra = all
	}

	return nil
}

// logFilter selects the entries to display.
type logFilter struct {
	minLevel int
	since    time.Time
	grep     *regexp.Regexp
	runID    string
	marker   string
	genome   string
}

// levelPriority returns the priority of a log level for filtering
func levelPriority(level string) int {
	switch strings.ToUpper(level) {
	case logging.LevelDebug:
		return 0
	case logging.LevelInfo:
		return 1
	case logging.LevelWarn:
		return 2
	case logging.LevelError:
		return 3
	default:
		return -1
	}
}

// logStyles colors log output; the renderer drops colors when the output
// is not a terminal.
type logStyles struct {
	time  lipgloss.Style
	field lipgloss.Style
	level map[string]lipgloss.Style
}

func newLogStyles(w io.Writer) logStyles {
	r := lipgloss.NewRenderer(w)
	return logStyles{
		time:  r.NewStyle().Foreground(lipgloss.Color("#9CA3AF")),
		field: r.NewStyle().Foreground(lipgloss.Color("#06B6D4")),
		level: map[string]lipgloss.Style{
			logging.LevelDebug: r.NewStyle().Foreground(lipgloss.Color("#9CA3AF")),
			logging.LevelInfo:  r.NewStyle().Foreground(lipgloss.Color("#3B82F6")),
			logging.LevelWarn:  r.NewStyle().Foreground(lipgloss.Color("#F59E0B")),
			logging.LevelError: r.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true),
		},
	}
}

// formatLogEntry formats a log entry for terminal output
func (s logStyles) formatLogEntry(entry *logEntry) string {
	var sb strings.Builder

	sb.WriteString(s.time.Render("[" + entry.Time.Format("15:04:05.000") + "]"))
	level := strings.ToUpper(entry.Level)
	sb.WriteString(" ")
	sb.WriteString(s.level[level].Render("[" + level + "]"))
	sb.WriteString(" ")
	sb.WriteString(entry.Msg)

	for _, kv := range [][2]string{{"genome", entry.Genome}, {"marker", entry.Marker}, {"stage", entry.Stage}} {
		if kv[1] != "" {
			sb.WriteString(" ")
			sb.WriteString(s.field.Render(kv[0] + "="))
			sb.WriteString(kv[1])
		}
	}

	keys := make([]string, 0, len(entry.Extra))
	for key := range entry.Extra {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	for _, key := range keys {
		sb.WriteString(" ")
		sb.WriteString(s.field.Render(key + "="))
		sb.WriteString(fmt.Sprintf("%v", entry.Extra[key]))
	}

	return sb.String()
}

func runLogs(cmd *cobra.Command, args []string) error {
	workDir := logsWorkDir
	if workDir == "" {
		cfg := config.Get()
		workDir = cfg.Run.ResolveWorkDir()
	}
	logPath := filepath.Join(workDir, logging.LogFileName)

	out := cmd.OutOrStdout()
	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		fmt.Fprintf(out, "No log found at %s\n", logPath)
		return nil
	}

	filter := logFilter{minLevel: -1, runID: logsRunID, marker: logsMarker, genome: logsGenome}
	if logsLevel != "" {
		filter.minLevel = levelPriority(logging.ParseLevel(logsLevel))
	}
	if logsSince != "" {
		duration, err := time.ParseDuration(logsSince)
		if err != nil {
			return fmt.Errorf("invalid duration format: %w", err)
		}
		filter.since = time.Now().Add(-duration)
	}
	if logsGrep != "" {
		re, err := regexp.Compile(logsGrep)
		if err != nil {
			return fmt.Errorf("invalid grep pattern: %w", err)
		}
		filter.grep = re
	}

	if logsFollow {
		return followLogs(cmd.Context(), out, logPath, filter)
	}
	return displayLogs(out, logPath, logsTail, filter)
}

// displayLogs reads the log file and displays filtered entries
func displayLogs(w io.Writer, logPath string, tail int, filter logFilter) error {
	file, err := os.Open(logPath)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer file.Close()

	styles := newLogStyles(w)
	var entries []string
	scanner := bufio.NewScanner(file)

	// Tool stderr tails make for long lines
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		var entry logEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			// If we can't parse as JSON, display raw line
			entries = append(entries, line)
			continue
		}
		if !filter.passes(&entry) {
			continue
		}
		entries = append(entries, styles.formatLogEntry(&entry))
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading log file: %w", err)
	}

	if tail > 0 && len(entries) > tail {
		entries = entries[len(entries)-tail:]
	}
	for _, entry := range entries {
		fmt.Fprintln(w, entry)
	}
	if len(entries) == 0 {
		fmt.Fprintln(w, "No matching log entries found.")
	}
	return nil
}

// followLogs implements tail -f behavior for the log file until ctx ends
func followLogs(ctx context.Context, w io.Writer, logPath string, filter logFilter) error {
	file, err := os.Open(logPath)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer file.Close()

	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("failed to seek to end: %w", err)
	}

	fmt.Fprintf(w, "Following logs... (Ctrl+C to stop)\n\n")

	styles := newLogStyles(w)
	reader := bufio.NewReader(file)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err != io.EOF {
				return fmt.Errorf("error reading log file: %w", err)
			}
			// No new data, wait briefly and try again
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var entry logEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			fmt.Fprintln(w, line)
			continue
		}
		if filter.passes(&entry) {
			fmt.Fprintln(w, styles.formatLogEntry(&entry))
		}
	}
}

// passes checks if a log entry passes all filter criteria
func (f logFilter) passes(entry *logEntry) bool {
	if f.minLevel >= 0 && levelPriority(entry.Level) < f.minLevel {
		return false
	}
	if !f.since.IsZero() && entry.Time.Before(f.since) {
		return false
	}
	if f.runID != "" && entry.RunID != f.runID {
		return false
	}
	if f.marker != "" && entry.Marker != f.marker {
		return false
	}
	if f.genome != "" && entry.Genome != f.genome {
		return false
	}

	// Grep filter - search in message and extra fields
	if f.grep != nil {
		searchText := entry.Msg
		for _, v := range entry.Extra {
			searchText += " " + fmt.Sprintf("%v", v)
		}
		if !f.grep.MatchString(searchText) {
			return false
		}
	}

	return true
}
