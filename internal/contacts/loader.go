package contacts

import (
	"errors"
	"strings"
)

// ErrNoHeader marks bulk-load input whose first line does not contain both a
// name column and a phone column.
var ErrNoHeader = errors.New("bulk load: header must contain name and phone columns")

// delimiters tried against the header row, first match wins.
var delimiters = []string{",", ";", "\t"}

// LoadFromText parses delimited text (first line = header) and merges the
// rows into the store. Column positions are located by case-insensitive
// substring match on the header ("name", "phone"); extra columns are
// ignored. Rows that are short, fail phone validation, or duplicate an
// existing canonical phone are skipped. Returns the number of newly added
// contacts.
func (s *Store) LoadFromText(payload string) (int, error) {
	lines := splitLines(payload)
	if len(lines) == 0 {
		return 0, ErrNoHeader
	}

	delim, nameIdx, phoneIdx, ok := locateColumns(lines[0])
	if !ok {
		return 0, ErrNoHeader
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0
	for _, line := range lines[1:] {
		cols := strings.Split(line, delim)
		if len(cols) <= nameIdx || len(cols) <= phoneIdx {
			continue
		}
		c := Contact{
			Name:   strings.TrimSpace(cols[nameIdx]),
			Phone:  strings.TrimSpace(cols[phoneIdx]),
			Active: true,
		}
		if s.add(c) {
			added++
		}
	}
	return added, nil
}

func splitLines(payload string) []string {
	raw := strings.Split(strings.ReplaceAll(payload, "\r\n", "\n"), "\n")
	lines := raw[:0]
	for _, l := range raw {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

// locateColumns finds the delimiter and the name/phone column positions from
// the header row.
func locateColumns(header string) (delim string, nameIdx, phoneIdx int, ok bool) {
	for _, d := range delimiters {
		cols := strings.Split(header, d)
		nameIdx, phoneIdx = -1, -1
		for i, col := range cols {
			lc := strings.ToLower(strings.TrimSpace(col))
			if nameIdx < 0 && strings.Contains(lc, "name") {
				nameIdx = i
			}
			if phoneIdx < 0 && strings.Contains(lc, "phone") {
				phoneIdx = i
			}
		}
		if nameIdx >= 0 && phoneIdx >= 0 {
			return d, nameIdx, phoneIdx, true
		}
	}
	return "", -1, -1, false
}
