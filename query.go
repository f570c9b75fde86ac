package fdt

import (
	"bytes"
	"errors"
	"strings"
)

// MaxPathLen is the size of the buffer a reconstructed path must fit in,
// terminator included.
const MaxPathLen = 256

const (
	aliasesPath = "/aliases"
	propCompat  = "compatible"
	propPhandle = "phandle"
	// Pre-v0.1 name for phandle, still emitted by some tools.
	propLinuxPhandle = "linux,phandle"
)

// OffsetForPath resolves a slash-separated node path such as
// "/soc/uart@1000". Segments are matched byte for byte against stored node
// names, unit address included. A path that does not start with "/" has
// its first segment looked up in /aliases.
//
// Every failure to resolve, including a malformed path, is ErrNotFound.
func (img *Image) OffsetForPath(path string) (int, error) {
	if path == "" {
		return -1, errf(ErrNotFound, -1, "empty path")
	}

	off := 0
	rest := path
	if path[0] != '/' {
		alias, tail, _ := strings.Cut(path, "/")
		target, ok := img.AliasTarget(alias)
		if !ok || !strings.HasPrefix(target, "/") {
			return -1, errf(ErrNotFound, -1, "path %q does not start with / and %q is not an alias", path, alias)
		}
		var err error
		if off, err = img.OffsetForPath(target); err != nil {
			return -1, err
		}
		rest = tail
	}

	for {
		rest = strings.TrimLeft(rest, "/")
		if rest == "" {
			if _, err := img.checkNodeOffset(off); err != nil {
				return -1, err
			}
			return off, nil
		}
		var seg string
		seg, rest, _ = strings.Cut(rest, "/")
		var err error
		off, err = img.SubnodeOffset(off, seg)
		if err != nil {
			if KindOf(err) == ErrNotFound {
				return -1, errf(ErrNotFound, -1, "no node %q in path %q", seg, path)
			}
			return -1, err
		}
	}
}

// SubnodeOffset returns the direct child of parent whose name is exactly
// name.
func (img *Image) SubnodeOffset(parent int, name string) (int, error) {
	off, err := img.FirstSubnode(parent)
	for err == nil {
		var n []byte
		if n, err = img.nodeName(off); err != nil {
			return -1, err
		}
		if string(n) == name {
			return off, nil
		}
		off, err = img.NextSubnode(off)
	}
	return -1, err
}

// FirstSubnode returns the first child of parent, or ErrNotFound.
func (img *Image) FirstSubnode(parent int) (int, error) {
	depth := 0
	off, err := img.nextNode(parent, &depth)
	if err != nil {
		return -1, err
	}
	if depth != 1 {
		return -1, errf(ErrNotFound, parent, "node has no children")
	}
	return off, nil
}

// NextSubnode returns the next sibling of off, or ErrNotFound.
func (img *Image) NextSubnode(off int) (int, error) {
	depth := 1
	for {
		var err error
		off, err = img.nextNode(off, &depth)
		if err != nil {
			return -1, err
		}
		if depth < 1 {
			return -1, errf(ErrNotFound, off, "no more siblings")
		}
		if depth == 1 {
			return off, nil
		}
	}
}

// Subnodes lists the offsets of the direct children of parent.
func (img *Image) Subnodes(parent int) ([]int, error) {
	var result []int
	off, err := img.FirstSubnode(parent)
	for err == nil {
		result = append(result, off)
		off, err = img.NextSubnode(off)
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return result, nil
}

// NextNode returns the node following off in document order and its depth,
// given the depth of off. Pass off = -1 and depth = -1 to start at the
// root. At the end of the tree it returns ErrNotFound.
func (img *Image) NextNode(off, depth int) (int, int, error) {
	next, err := img.nextNode(off, &depth)
	if err != nil {
		return -1, depth, err
	}
	if depth < 0 {
		return -1, depth, errf(ErrNotFound, next, "no more nodes")
	}
	return next, depth, nil
}

// Walk calls fn for every node in document order with its depth (the root
// has depth 0). A non-nil error from fn stops the walk and is returned.
func (img *Image) Walk(fn func(off, depth int) error) error {
	off, depth := -1, -1
	for {
		var err error
		off, depth, err = img.NextNode(off, depth)
		if errors.Is(err, ErrNotFound) {
			return nil
		} else if err != nil {
			return err
		}
		if err := fn(off, depth); err != nil {
			return err
		}
	}
}

// NameForOffset returns the name of the node at off, unit address
// included. The root node's name is empty.
func (img *Image) NameForOffset(off int) (string, error) {
	n, err := img.nodeName(off)
	if err != nil {
		return "", err
	}
	return string(n), nil
}

// PathForOffset reconstructs the full path of the node at off. Paths that
// would not fit in MaxPathLen bytes (terminator included) are reported as
// ErrBadOffset instead of being truncated.
func (img *Image) PathForOffset(off int) (string, error) {
	if _, err := img.checkNodeOffset(off); err != nil {
		return "", err
	}

	var names [][]byte
	cur, depth := -1, -1
	for {
		var err error
		cur, depth, err = img.NextNode(cur, depth)
		if errors.Is(err, ErrNotFound) || (err == nil && cur > off) {
			return "", errf(ErrBadOffset, off, "offset is not reachable from the root")
		} else if err != nil {
			return "", err
		}
		name, err := img.nodeName(cur)
		if err != nil {
			return "", err
		}
		names = append(names[:depth], name)
		if cur == off {
			break
		}
	}

	if len(names) == 1 {
		return "/", nil
	}
	var buf strings.Builder
	for _, n := range names[1:] {
		buf.WriteByte('/')
		buf.Write(n)
		if buf.Len()+1 > MaxPathLen {
			return "", errf(ErrBadOffset, off, "path too long: exceeds %d bytes", MaxPathLen)
		}
	}
	return buf.String(), nil
}

// ParentOffset returns the parent of the node at off. The root has no
// parent and yields ErrNotFound.
func (img *Image) ParentOffset(off int) (int, error) {
	depth, err := img.NodeDepth(off)
	if err != nil {
		return -1, err
	}
	parent, _, err := img.supernodeAtDepth(off, depth-1)
	return parent, err
}

// NodeDepth returns the depth of the node at off; the root is at depth 0.
func (img *Image) NodeDepth(off int) (int, error) {
	_, depth, err := img.supernodeAtDepth(off, 0)
	return depth, err
}

// Property returns a copy of the raw value of the named property.
func (img *Image) Property(off int, name string) ([]byte, error) {
	p, err := img.getProp(off, name)
	if err != nil {
		return nil, err
	}
	return bytes.Clone(p.data), nil
}

// PropertiesAt decodes every property of the node at off. A node without
// properties yields an empty map.
func (img *Image) PropertiesAt(off int) (*Properties, error) {
	props := newProperties()
	err := img.eachProperty(off, func(p propRecord) (bool, error) {
		name, err := img.StringAt(p.nameOff)
		if err != nil {
			return false, err
		}
		props.set(name, Decode(name, p.data))
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return props, nil
}

// PropertiesByPath is OffsetForPath followed by PropertiesAt.
func (img *Image) PropertiesByPath(path string) (*Properties, error) {
	off, err := img.OffsetForPath(path)
	if err != nil {
		return nil, err
	}
	return img.PropertiesAt(off)
}

// PropertiesByCompatible is OffsetByCompatible followed by PropertiesAt.
func (img *Image) PropertiesByCompatible(compatible string) (*Properties, error) {
	off, err := img.OffsetByCompatible(compatible)
	if err != nil {
		return nil, err
	}
	return img.PropertiesAt(off)
}

// OffsetByCompatible returns the first node in document order, root
// included, whose compatible list contains compatible exactly. Use
// NextByCompatible or OffsetsByCompatible to find further matches.
func (img *Image) OffsetByCompatible(compatible string) (int, error) {
	return img.NextByCompatible(-1, compatible)
}

// NextByCompatible continues a compatible search after the node at start;
// pass -1 to start at the root.
func (img *Image) NextByCompatible(start int, compatible string) (int, error) {
	off := start
	for {
		var err error
		off, err = img.nextNode(off, nil)
		if err != nil {
			if KindOf(err) == ErrNotFound {
				return -1, errf(ErrNotFound, -1, "no node compatible with %q", compatible)
			}
			return -1, err
		}
		ok, err := img.isCompatible(off, compatible)
		if err != nil {
			return -1, err
		}
		if ok {
			return off, nil
		}
	}
}

// OffsetsByCompatible returns every node compatible with compatible, in
// document order. No match is an empty result, not an error.
func (img *Image) OffsetsByCompatible(compatible string) ([]int, error) {
	var result []int
	off, err := img.OffsetByCompatible(compatible)
	for err == nil {
		result = append(result, off)
		off, err = img.NextByCompatible(off, compatible)
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return result, nil
}

func (img *Image) isCompatible(off int, compatible string) (bool, error) {
	p, err := img.getProp(off, propCompat)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return stringListContains(p.data, compatible), nil
}

// stringListContains reports whether the NUL-separated list contains s as
// a complete, terminated entry.
func stringListContains(list []byte, s string) bool {
	for len(list) > 0 {
		i := bytes.IndexByte(list, 0)
		if i < 0 {
			return false
		}
		if string(list[:i]) == s {
			return true
		}
		list = list[i+1:]
	}
	return false
}

// Compatibles returns every entry of the node's compatible property. A
// node without one yields an empty list.
func (img *Image) Compatibles(off int) ([]string, error) {
	p, err := img.getProp(off, propCompat)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return splitStringList(p.data), nil
}

// PhandleAt returns the node's phandle. Absence is not an error: ok is
// false when the node has no (or a zero, or malformed) phandle, and also
// when off does not address a node.
func (img *Image) PhandleAt(off int) (phandle uint32, ok bool) {
	for _, name := range [...]string{propPhandle, propLinuxPhandle} {
		p, err := img.getProp(off, name)
		if err != nil {
			continue
		}
		if v, ok := DecodePhandle(p.data); ok && v > 0 {
			return v, true
		}
	}
	return 0, false
}

// MaxPhandle returns the highest phandle in the tree, or 0 if there are
// none.
func (img *Image) MaxPhandle() (uint32, error) {
	var highest uint32
	err := img.Walk(func(off, _ int) error {
		v, ok := img.PhandleAt(off)
		if !ok {
			return nil
		}
		if v == invalidPhandle {
			return errf(ErrBadPhandle, off, "phandle 0x%x is reserved", v)
		}
		highest = max(highest, v)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return highest, nil
}

const invalidPhandle = 0xffffffff

var errStopWalk = errors.New("stop walk")

// OffsetByPhandle finds the node carrying the given phandle.
func (img *Image) OffsetByPhandle(phandle uint32) (int, error) {
	if phandle == 0 || phandle == invalidPhandle {
		return -1, errf(ErrBadPhandle, -1, "0x%x is never a valid phandle", phandle)
	}
	found := -1
	err := img.Walk(func(off, _ int) error {
		if v, ok := img.PhandleAt(off); ok && v == phandle {
			found = off
			return errStopWalk
		}
		return nil
	})
	if err != nil && err != errStopWalk {
		return -1, err
	}
	if found < 0 {
		return -1, errf(ErrNotFound, -1, "no node with phandle 0x%x", phandle)
	}
	return found, nil
}

// AliasTarget returns the path stored under name in /aliases. A missing
// /aliases node or alias is reported as ok == false, never as an error.
func (img *Image) AliasTarget(name string) (target string, ok bool) {
	if name == "" {
		return "", false
	}
	off, err := img.OffsetForPath(aliasesPath)
	if err != nil {
		return "", false
	}
	p, err := img.getProp(off, name)
	if err != nil {
		return "", false
	}
	v := p.data
	if i := bytes.IndexByte(v, 0); i >= 0 {
		v = v[:i]
	}
	return string(v), true
}
