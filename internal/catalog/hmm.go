package catalog

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

const recordTerminator = "//"

// splitRecords splits HMMER3 text into records, each ending with its "//"
// line. Trailing blank lines are ignored; anything else after the last
// terminator is an error.
func splitRecords(data []byte) ([][]byte, error) {
	var (
		records [][]byte
		current bytes.Buffer
	)

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if current.Len() == 0 && strings.TrimSpace(line) == "" {
			continue
		}
		current.WriteString(line)
		current.WriteByte('\n')
		if strings.TrimSpace(line) == recordTerminator {
			records = append(records, bytes.Clone(current.Bytes()))
			current.Reset()
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if current.Len() > 0 {
		return nil, fmt.Errorf("truncated profile: missing %q terminator", recordTerminator)
	}
	if len(records) > 0 && !strings.HasPrefix(string(records[0]), "HMMER") {
		return nil, fmt.Errorf("not a HMMER profile file")
	}
	return records, nil
}

// parseHeader reads the NAME, ACC and LENG fields of one record.
func parseHeader(rec []byte) *Marker {
	m := &Marker{}
	sc := bufio.NewScanner(bytes.NewReader(rec))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 {
			continue
		}
		switch fields[0] {
		case "NAME":
			m.ID = MarkerID(fields[1])
		case "ACC":
			m.Accession = fields[1]
		case "LENG":
			m.Length, _ = strconv.Atoi(fields[1])
		case "HMM":
			return m
		}
	}
	return m
}
