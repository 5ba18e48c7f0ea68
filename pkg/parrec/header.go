// Package parrec parses Philips PAR headers into a typed, unit-aware
// parameter model. Parsing is two-phase: ParseHeader performs an untyped
// line-oriented pass over the text, NewModel then validates and normalizes
// the raw result. Domain knowledge about field meaning lives only in the
// second phase.
package parrec

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// GeneralEntry is one scan-level `key : value` line from the general
// information section, kept verbatim. Unknown keys are retained so that
// headers written by newer export tools survive a round trip.
type GeneralEntry struct {
	Key   string
	Value string
}

// RawRow is one image-information row, already tokenized to numbers but not
// yet validated.
type RawRow struct {
	// Line is the 1-based line number of the row in the PAR file.
	Line int

	// Values holds the row's columns in declared order.
	Values []float64
}

// RawHeader is the untyped result of the first parse phase.
type RawHeader struct {
	// Version is the schema version declared in the header comments.
	Version Version

	// General holds the scan-level entries in file order.
	General []GeneralEntry

	// Rows holds the image-information rows that matched the version's
	// column count.
	Rows []RawRow
}

// Lookup returns the value of the first general entry whose normalized key
// matches key, and whether it was present. Keys are normalized by dropping
// unit/legend suffixes, so "Repetition time" matches the header line
// "Repetition time [ms]".
func (h *RawHeader) Lookup(key string) (string, bool) {
	want := normalizeKey(key)
	for _, e := range h.General {
		if normalizeKey(e.Key) == want {
			return e.Value, true
		}
	}
	return "", false
}

// ParseHeader reads a PAR header line by line and classifies each line as a
// comment, a general-information entry, or an image-information row.
//
// Rows whose column count does not match the declared version, or whose
// tokens are not numeric, are reported as MalformedRecordError values in the
// returned warning list; parsing continues with the next row. A header whose
// declared version is unknown is rejected with UnsupportedVersionError.
func ParseHeader(r io.Reader) (*RawHeader, []error, error) {
	hdr := &RawHeader{}
	var warnings []error

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		trimmed := strings.TrimSpace(text)

		switch {
		case trimmed == "":
			continue

		case strings.HasPrefix(trimmed, "#"):
			// Comments are ignored except for the export-tool stamp
			// that declares the schema version.
			if hdr.Version == "" {
				if v := detectVersion(trimmed); v != "" {
					hdr.Version = v
				}
			}

		case strings.HasPrefix(trimmed, "."):
			key, value, ok := splitGeneralEntry(trimmed)
			if !ok {
				warnings = append(warnings, &MalformedRecordError{
					Line:   line,
					Row:    text,
					Reason: "general information line without key/value separator",
				})
				continue
			}
			hdr.General = append(hdr.General, GeneralEntry{Key: key, Value: value})

		default:
			if hdr.Version == "" {
				return nil, warnings, &UnsupportedVersionError{}
			}
			if !hdr.Version.supported() {
				return nil, warnings, &UnsupportedVersionError{Version: string(hdr.Version)}
			}
			row, err := parseRow(text, line, hdr.Version.Columns())
			if err != nil {
				warnings = append(warnings, err)
				continue
			}
			hdr.Rows = append(hdr.Rows, row)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, warnings, fmt.Errorf("reading PAR header: %w", err)
	}

	if hdr.Version == "" {
		return nil, warnings, &UnsupportedVersionError{}
	}
	if !hdr.Version.supported() {
		return nil, warnings, &UnsupportedVersionError{Version: string(hdr.Version)}
	}

	return hdr, warnings, nil
}

// splitGeneralEntry splits a general information line of the form
//
//	.    Repetition time [ms]               :   8.24
//
// at the first colon. Values may themselves contain colons (date/time
// entries), so only the first separator counts.
func splitGeneralEntry(line string) (key, value string, ok bool) {
	body := strings.TrimSpace(strings.TrimPrefix(line, "."))
	k, v, found := strings.Cut(body, ":")
	if !found {
		return "", "", false
	}
	return strings.TrimSpace(k), strings.TrimSpace(v), true
}

// parseRow tokenizes one image-information row and checks it against the
// expected arity for the declared version.
func parseRow(text string, line, want int) (RawRow, error) {
	fields := strings.Fields(text)
	if len(fields) != want {
		return RawRow{}, &MalformedRecordError{
			Line:   line,
			Row:    text,
			Reason: fmt.Sprintf("expected %d columns, found %d", want, len(fields)),
		}
	}

	values := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return RawRow{}, &MalformedRecordError{
				Line:   line,
				Row:    text,
				Reason: fmt.Sprintf("column %d is not numeric: %q", i+1, f),
			}
		}
		values[i] = v
	}
	return RawRow{Line: line, Values: values}, nil
}

// normalizeKey reduces a general information key to a comparable form:
// unit and legend suffixes ("[ms]", "<0=no 1=yes> ?", "(x, y)") are dropped,
// whitespace is collapsed, case is folded.
func normalizeKey(key string) string {
	if i := strings.IndexAny(key, "[<("); i >= 0 {
		key = key[:i]
	}
	return strings.ToLower(strings.Join(strings.Fields(key), " "))
}
