package parrec

import "strings"

// Version identifies the PAR header schema that fixes the column layout of
// the image-information rows.
type Version string

// Supported PAR header versions.
const (
	V4  Version = "V4"
	V41 Version = "V4.1"
	V42 Version = "V4.2"
)

// columnCounts maps each supported version to the arity of its
// image-information rows. V4.1 appends the diffusion columns to the V4
// layout; V4.2 appends the ASL label type on top of V4.1.
var columnCounts = map[Version]int{
	V4:  41,
	V41: 48,
	V42: 49,
}

// Columns returns the expected number of whitespace-separated values in one
// image-information row for this version.
func (v Version) Columns() int {
	return columnCounts[v]
}

func (v Version) supported() bool {
	_, ok := columnCounts[v]
	return ok
}

// detectVersion scans a comment line for the export-tool version stamp, e.g.
//
//	# CLINICAL TRYOUT             Research image export tool     V4.2
//
// It returns the empty version when the line carries no stamp.
func detectVersion(comment string) Version {
	fields := strings.Fields(comment)
	for _, f := range fields {
		if strings.HasPrefix(f, "V") && len(f) > 1 && f[1] >= '0' && f[1] <= '9' {
			return Version(f)
		}
	}
	return ""
}
