package cmd

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Iron-Ham/phyling/internal/event"
)

// progressPrinter returns a handler writing one line per run event to w.
// Events arrive from worker goroutines, so writes are serialized.
func progressPrinter(w io.Writer) event.Handler {
	var mu sync.Mutex
	return func(e event.Event) {
		line := progressLine(e)
		if line == "" {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(w, "[%s] %s\n", e.Timestamp().Format("15:04:05"), line)
	}
}

func progressLine(e event.Event) string {
	switch ev := e.(type) {
	case event.StateChangedEvent:
		return "state " + ev.To
	case event.GenomeSearchedEvent:
		if !ev.Success {
			return fmt.Sprintf("genome %s excluded: %s", ev.Genome, ev.Reason)
		}
		return fmt.Sprintf("genome %s searched: %d markers%s", ev.Genome, ev.Hits, cachedNote(ev.Cached))
	case event.MarkerFinishedEvent:
		if !ev.Success {
			return fmt.Sprintf("marker %s failed at %s", ev.Marker, ev.Stage)
		}
		return fmt.Sprintf("marker %s done in %s", ev.Marker, ev.Duration.Round(time.Millisecond))
	case event.ConsensusBuiltEvent:
		return fmt.Sprintf("species tree from %d markers (%s): %s", ev.Markers, ev.Strategy, ev.Path)
	default:
		return ""
	}
}

func cachedNote(cached bool) string {
	if cached {
		return " (cached)"
	}
	return ""
}
