// Package container serializes a parsed parameter model and its assembled
// image arrays into a self-describing binary file, and reads such files
// back. The layout is a small group/attribute/dataset tree: root attributes
// hold the scan parameters, one child group per image type holds the array
// dataset plus its axis and unit metadata.
//
// All integers are little-endian. Strings are length-prefixed UTF-8.
// Float64 payloads are stored as raw IEEE 754 bits, so a write/read round
// trip is bit-identical, NaN sentinels included.
package container

import "fmt"

const (
	// magic identifies a container file; version gates the layout.
	magic   = "PRC1"
	version = uint16(1)
)

// Attribute value kind tags.
const (
	kindString uint8 = iota + 1
	kindInt
	kindFloat
	kindFloatVec
	kindStringList
)

// Dataset element type tags. Only float64 exists today; the tag is stored
// so a future sample type does not need a format version bump.
const dtypeFloat64 uint8 = 1

// Attr is one named attribute. Value holds string, int64, float64,
// []float64 or []string.
type Attr struct {
	Name  string
	Value any
}

// Group is one image-type group read back from a container: the dataset
// with its dimensions plus the axis-name and unit attributes.
type Group struct {
	Name  string
	Attrs []Attr

	Dims []int64
	Axes []string
	Unit string
	Data []float64
}

// Container is the in-memory form of a read container file.
type Container struct {
	Attrs  []Attr
	Groups []Group
}

// Attr returns the value of the named attribute and whether it exists.
func lookupAttr(attrs []Attr, name string) (any, bool) {
	for _, a := range attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return nil, false
}

// Attr returns the value of the named root attribute.
func (c *Container) Attr(name string) (any, bool) { return lookupAttr(c.Attrs, name) }

// Attr returns the value of the named group attribute.
func (g *Group) Attr(name string) (any, bool) { return lookupAttr(g.Attrs, name) }

// Group returns the named group.
func (c *Container) Group(name string) (*Group, bool) {
	for i := range c.Groups {
		if c.Groups[i].Name == name {
			return &c.Groups[i], true
		}
	}
	return nil, false
}

// ExportError wraps any failure while writing a container. The in-memory
// model and arrays stay valid; the export can be retried.
type ExportError struct {
	Path string
	Err  error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("exporting container %s: %v", e.Path, e.Err)
}

func (e *ExportError) Unwrap() error { return e.Err }
