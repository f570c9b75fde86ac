package fdt

import "errors"

// Structure block tokens.
const (
	tokenBeginNode uint32 = 0x1 // followed by NUL-terminated node name, padded
	tokenEndNode   uint32 = 0x2
	tokenProp      uint32 = 0x3 // followed by len:32 nameoff:32 value, padded
	tokenNop       uint32 = 0x4
	tokenEnd       uint32 = 0x9
)

// nextTag decodes the token at off and returns it with the offset of the
// token that follows. Every byte the token covers is bounds-checked.
func (img *Image) nextTag(off int) (tag uint32, next int, err error) {
	b := img.strc
	tag, err = b.u32(off)
	if err != nil {
		return 0, 0, err
	}
	next = off + tagSize
	switch tag {
	case tokenBeginNode:
		name, err := b.cstring(next)
		if err != nil {
			return 0, 0, err
		}
		next += len(name) + 1
	case tokenProp:
		n, err := b.u32(next)
		if err != nil {
			return 0, 0, err
		}
		if _, err := b.u32(next + 4); err != nil {
			return 0, 0, err
		}
		if _, err := b.slice(next+8, int(n)); err != nil {
			return 0, 0, err
		}
		next += 8 + int(n)
	case tokenEndNode, tokenNop, tokenEnd:
	default:
		return 0, 0, b.errf(ErrBadStructure, off, "unknown token 0x%x", tag)
	}
	return tag, align(next, tagSize), nil
}

func (img *Image) checkTokenOffset(off int, want uint32, what string) (int, error) {
	if off < 0 || off%tagSize != 0 {
		return 0, errf(ErrBadOffset, off, "%s offset must be a non-negative multiple of 4", what)
	}
	tag, next, err := img.nextTag(off)
	if err != nil {
		return 0, dataErrf(ErrBadOffset, nil, off, err, "no %s here", what)
	}
	if tag != want {
		return 0, errf(ErrBadOffset, off, "token 0x%x is not a %s", tag, what)
	}
	return next, nil
}

// checkNodeOffset verifies that off addresses a begin-node token and
// returns the offset just past it.
func (img *Image) checkNodeOffset(off int) (int, error) {
	return img.checkTokenOffset(off, tokenBeginNode, "node")
}

// nextNode returns the next begin-node token after the node at off, or the
// root when off is negative. When depth is non-nil it is adjusted for each
// node entered and left; if it drops below zero the offset just past the
// end-node token is returned and the caller is expected to stop.
func (img *Image) nextNode(off int, depth *int) (int, error) {
	next := 0
	if off >= 0 {
		var err error
		if next, err = img.checkNodeOffset(off); err != nil {
			return -1, err
		}
	}
	for {
		off = next
		tag, n, err := img.nextTag(off)
		if err != nil {
			if depth == nil && off == img.strc.size() && KindOf(err) == ErrTruncated {
				return -1, errf(ErrNotFound, off, "no more nodes")
			}
			return -1, err
		}
		next = n
		switch tag {
		case tokenBeginNode:
			if depth != nil {
				*depth++
			}
			return off, nil
		case tokenEndNode:
			if depth != nil {
				*depth--
				if *depth < 0 {
					return next, nil
				}
			}
		case tokenEnd:
			return -1, errf(ErrNotFound, off, "no more nodes")
		}
	}
}

func (img *Image) nodeName(off int) ([]byte, error) {
	if _, err := img.checkNodeOffset(off); err != nil {
		return nil, err
	}
	return img.strc.cstring(off + tagSize)
}

// propRecord is a property header plus a view of its value. data aliases
// the image and must not leave the package.
type propRecord struct {
	off     int
	nameOff uint32
	data    []byte
}

func (img *Image) propAt(off int) (propRecord, error) {
	b := img.strc
	n, err := b.u32(off + 4)
	if err != nil {
		return propRecord{}, err
	}
	nameOff, err := b.u32(off + 8)
	if err != nil {
		return propRecord{}, err
	}
	data, err := b.slice(off+12, int(n))
	if err != nil {
		return propRecord{}, err
	}
	return propRecord{off, nameOff, data}, nil
}

// nextProp skips NOPs from off and returns the offset of the next property
// token of the same node, or ErrNotFound once a child node or the node end
// is reached.
func (img *Image) nextProp(off int) (int, error) {
	for {
		tag, next, err := img.nextTag(off)
		if err != nil {
			return -1, err
		}
		switch tag {
		case tokenProp:
			return off, nil
		case tokenNop:
			off = next
		case tokenEnd:
			return -1, errf(ErrBadStructure, off, "structure ends inside a node")
		default:
			return -1, errf(ErrNotFound, off, "no more properties")
		}
	}
}

// eachProperty calls f for every property of the node at node, in on-disk
// order, stopping early if f returns false.
func (img *Image) eachProperty(node int, f func(p propRecord) (bool, error)) error {
	next, err := img.checkNodeOffset(node)
	if err != nil {
		return err
	}
	for {
		off, err := img.nextProp(next)
		if errors.Is(err, ErrNotFound) {
			return nil
		} else if err != nil {
			return err
		}
		p, err := img.propAt(off)
		if err != nil {
			return err
		}
		if cont, err := f(p); err != nil || !cont {
			return err
		}
		_, next, err = img.nextTag(off)
		if err != nil {
			return err
		}
	}
}

// getProp finds the first property called name on the node at node.
func (img *Image) getProp(node int, name string) (propRecord, error) {
	var found propRecord
	var ok bool
	err := img.eachProperty(node, func(p propRecord) (bool, error) {
		eq, err := img.stringEquals(p.nameOff, name)
		if err != nil {
			return false, err
		}
		if eq {
			found, ok = p, true
			return false, nil
		}
		return true, nil
	})
	if err != nil {
		return propRecord{}, err
	}
	if !ok {
		return propRecord{}, errf(ErrNotFound, node, "node has no property %q", name)
	}
	return found, nil
}

// supernodeAtDepth walks from the root to node and returns the ancestor
// of node at the given depth together with node's own depth.
func (img *Image) supernodeAtDepth(node, superDepth int) (super, nodeDepth int, err error) {
	if superDepth < 0 {
		return -1, 0, errf(ErrNotFound, node, "negative depth %d", superDepth)
	}
	if _, err := img.checkNodeOffset(node); err != nil {
		return -1, 0, err
	}
	super = -1
	depth := 0
	for off := 0; off >= 0 && off <= node; {
		if depth == superDepth {
			super = off
		}
		if off == node {
			if superDepth > depth {
				return -1, depth, errf(ErrNotFound, node, "node depth %d is above %d", depth, superDepth)
			}
			return super, depth, nil
		}
		off, err = img.nextNode(off, &depth)
		if err != nil {
			if KindOf(err) == ErrBadOffset {
				return -1, 0, dataErrf(ErrBadStructure, nil, off, err, "walk from root lost track")
			}
			return -1, 0, err
		}
		if depth < 0 {
			break
		}
	}
	return -1, 0, errf(ErrBadOffset, node, "offset is not reachable from the root")
}
