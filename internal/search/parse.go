package search

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Iron-Ham/phyling/internal/catalog"
	"github.com/Iron-Ham/phyling/internal/errors"
)

// Hit table formats.
const (
	FormatDomtblout = "domtblout"
	FormatTSV       = "tsv"
)

// Parser reads a hit table produced for one genome.
type Parser func(r io.Reader, genome string) ([]Hit, error)

// ParserFor returns the parser of a hit table format.
func ParserFor(format string) (Parser, error) {
	switch strings.ToLower(format) {
	case FormatDomtblout, "":
		return ParseDomtblout, nil
	case FormatTSV:
		return ParseTSV, nil
	default:
		return nil, fmt.Errorf("%w: hit table format %q", errors.ErrInvalidInput, format)
	}
}

// domtblout column indexes (0-based).
const (
	colTarget     = 0
	colQuery      = 3
	colFullEValue = 6
	colFullScore  = 7
	colEnvFrom    = 19
	colEnvTo      = 20
	domtblColumns = 22
)

// ParseDomtblout parses a HMMER per-domain hit table. Domains of the same
// (sequence, marker) pair are folded into one hit carrying the
// full-sequence score and E-value and spanning all envelopes.
func ParseDomtblout(r io.Reader, genome string) ([]Hit, error) {
	type key struct {
		seq    string
		marker catalog.MarkerID
	}
	var (
		order []key
		hits  = make(map[key]*Hit)
	)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) < domtblColumns {
			return nil, malformed(line, "expected at least %d columns, got %d", domtblColumns, len(fields))
		}

		evalue, err1 := strconv.ParseFloat(fields[colFullEValue], 64)
		score, err2 := strconv.ParseFloat(fields[colFullScore], 64)
		from, err3 := strconv.Atoi(fields[colEnvFrom])
		to, err4 := strconv.Atoi(fields[colEnvTo])
		if err := errors.Join(err1, err2, err3, err4); err != nil {
			return nil, malformed(line, "%v", err)
		}

		k := key{fields[colTarget], catalog.MarkerID(fields[colQuery])}
		h, ok := hits[k]
		if !ok {
			hits[k] = &Hit{
				Genome:     genome,
				Marker:     k.marker,
				SequenceID: k.seq,
				Score:      score,
				EValue:     evalue,
				Start:      from,
				End:        to,
			}
			order = append(order, k)
			continue
		}
		h.Start = min(h.Start, from)
		h.End = max(h.End, to)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read hit table: %w", err)
	}

	out := make([]Hit, 0, len(order))
	for _, k := range order {
		out = append(out, *hits[k])
	}
	return out, nil
}

// ParseTSV parses tab-separated rows of
// marker, sequence, score, evalue, start, end. Lines starting with '#' are
// comments.
func ParseTSV(r io.Reader, genome string) ([]Hit, error) {
	var out []Hit

	sc := bufio.NewScanner(r)
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(text) == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Split(text, "\t")
		if len(fields) < 6 {
			return nil, malformed(line, "expected 6 tab-separated columns, got %d", len(fields))
		}

		score, err1 := strconv.ParseFloat(fields[2], 64)
		evalue, err2 := strconv.ParseFloat(fields[3], 64)
		start, err3 := strconv.Atoi(fields[4])
		end, err4 := strconv.Atoi(fields[5])
		if err := errors.Join(err1, err2, err3, err4); err != nil {
			return nil, malformed(line, "%v", err)
		}
		out = append(out, Hit{
			Genome:     genome,
			Marker:     catalog.MarkerID(fields[0]),
			SequenceID: fields[1],
			Score:      score,
			EValue:     evalue,
			Start:      start,
			End:        end,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read hit table: %w", err)
	}
	return out, nil
}

func malformed(line int, format string, args ...any) error {
	return fmt.Errorf("%w: line %d: %s", errors.ErrMalformedOutput, line, fmt.Sprintf(format, args...))
}
