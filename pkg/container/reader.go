package container

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
)

// Read parses a container file written by Write.
func Read(path string) (*Container, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening container: %w", err)
	}
	defer f.Close()

	c, err := decode(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("reading container %s: %w", path, err)
	}
	return c, nil
}

func decode(r io.Reader) (*Container, error) {
	head := make([]byte, len(magic)+2)
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, err
	}
	if string(head[:len(magic)]) != magic {
		return nil, fmt.Errorf("bad magic %q", head[:len(magic)])
	}
	if v := binary.LittleEndian.Uint16(head[len(magic):]); v != version {
		return nil, fmt.Errorf("unsupported container version %d", v)
	}

	c := &Container{}
	var err error
	if c.Attrs, err = readAttrs(r); err != nil {
		return nil, err
	}

	ngroups, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	c.Groups = make([]Group, 0, ngroups)
	for i := uint32(0); i < ngroups; i++ {
		g, err := readGroup(r)
		if err != nil {
			return nil, fmt.Errorf("group %d: %w", i, err)
		}
		c.Groups = append(c.Groups, g)
	}
	return c, nil
}

func readGroup(r io.Reader) (Group, error) {
	var g Group
	var err error
	if g.Name, err = readString(r); err != nil {
		return g, err
	}
	if g.Attrs, err = readAttrs(r); err != nil {
		return g, err
	}
	if v, ok := g.Attr("axes"); ok {
		if axes, ok := v.([]string); ok {
			g.Axes = axes
		}
	}
	if v, ok := g.Attr("unit"); ok {
		if unit, ok := v.(string); ok {
			g.Unit = unit
		}
	}

	rank, err := readUint8(r)
	if err != nil {
		return g, err
	}
	g.Dims = make([]int64, rank)
	elems := int64(1)
	for i := range g.Dims {
		v, err := readUint64(r)
		if err != nil {
			return g, err
		}
		g.Dims[i] = int64(v)
		elems *= g.Dims[i]
	}

	dtype, err := readUint8(r)
	if err != nil {
		return g, err
	}
	if dtype != dtypeFloat64 {
		return g, fmt.Errorf("unsupported dataset element type %d", dtype)
	}

	g.Data = make([]float64, elems)
	buf := make([]byte, 8)
	for i := range g.Data {
		if _, err := io.ReadFull(r, buf); err != nil {
			return g, fmt.Errorf("dataset payload: %w", err)
		}
		g.Data[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf))
	}
	return g, nil
}

func readAttrs(r io.Reader) ([]Attr, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	attrs := make([]Attr, 0, n)
	for i := uint32(0); i < n; i++ {
		a, err := readAttr(r)
		if err != nil {
			return nil, fmt.Errorf("attribute %d: %w", i, err)
		}
		attrs = append(attrs, a)
	}
	return attrs, nil
}

func readAttr(r io.Reader) (Attr, error) {
	var a Attr
	var err error
	if a.Name, err = readString(r); err != nil {
		return a, err
	}
	kind, err := readUint8(r)
	if err != nil {
		return a, err
	}
	switch kind {
	case kindString:
		a.Value, err = readString(r)
	case kindInt:
		var v uint64
		if v, err = readUint64(r); err == nil {
			a.Value = int64(v)
		}
	case kindFloat:
		var v uint64
		if v, err = readUint64(r); err == nil {
			a.Value = math.Float64frombits(v)
		}
	case kindFloatVec:
		var n uint32
		if n, err = readUint32(r); err != nil {
			return a, err
		}
		vec := make([]float64, n)
		for i := range vec {
			var v uint64
			if v, err = readUint64(r); err != nil {
				return a, err
			}
			vec[i] = math.Float64frombits(v)
		}
		a.Value = vec
	case kindStringList:
		var n uint32
		if n, err = readUint32(r); err != nil {
			return a, err
		}
		list := make([]string, n)
		for i := range list {
			if list[i], err = readString(r); err != nil {
				return a, err
			}
		}
		a.Value = list
	default:
		return a, fmt.Errorf("unknown attribute kind %d", kind)
	}
	return a, err
}

func readString(r io.Reader) (string, error) {
	n, err := readUint32(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func readUint8(r io.Reader) (uint8, error) {
	buf := make([]byte, 1)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func readUint32(r io.Reader) (uint32, error) {
	buf := make([]byte, 4)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf), nil
}

func readUint64(r io.Reader) (uint64, error) {
	buf := make([]byte, 8)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf), nil
}
