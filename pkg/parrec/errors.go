package parrec

import "fmt"

// MalformedRecordError reports an image-information row that could not be
// parsed against the declared header version. The row is skipped; parsing
// continues with the remaining rows.
type MalformedRecordError struct {
	// Line is the 1-based line number of the offending row in the PAR file.
	Line int

	// Row is the raw text of the offending row.
	Row string

	// Reason describes why the row was rejected.
	Reason string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed image record at line %d: %s", e.Line, e.Reason)
}

// InvalidParameterError reports a record field whose value is outside the
// physically meaningful range. The record is excluded from reconstruction;
// the rest of the scan is unaffected.
type InvalidParameterError struct {
	// Field is the name of the offending field.
	Field string

	// Record is the zero-based index of the record in parse order.
	Record int

	// Value is the rejected value.
	Value float64
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid parameter %q in record %d: %v", e.Field, e.Record, e.Value)
}

// UnsupportedVersionError reports a PAR header whose declared format version
// is not one of the supported schemas. Fatal: the row layout of an unknown
// version cannot be guessed.
type UnsupportedVersionError struct {
	Version string
}

func (e *UnsupportedVersionError) Error() string {
	if e.Version == "" {
		return "PAR header does not declare a format version"
	}
	return fmt.Sprintf("unsupported PAR format version %q", e.Version)
}
