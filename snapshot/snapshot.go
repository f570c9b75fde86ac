// Package snapshot flattens a devicetree image into plain records that can
// be handed to other languages or stored as a document.
package snapshot

import (
	"fmt"

	"github.com/andreyvit/fdt"
)

type Tree struct {
	Version      uint32        `json:"version" yaml:"version" msgpack:"version" cbor:"version"`
	BootCPU      uint32        `json:"boot_cpu" yaml:"boot_cpu" msgpack:"boot_cpu" cbor:"boot_cpu"`
	Reservations []Reservation `json:"reservations,omitempty" yaml:"reservations,omitempty" msgpack:"reservations,omitempty" cbor:"reservations,omitempty"`
	Nodes        []Node        `json:"nodes" yaml:"nodes" msgpack:"nodes" cbor:"nodes"`
}

type Reservation struct {
	Address uint64 `json:"address" yaml:"address" msgpack:"address" cbor:"address"`
	Size    uint64 `json:"size" yaml:"size" msgpack:"size" cbor:"size"`
}

// Node is one devicetree node. Nodes are listed in document order, so a
// node's parent is the closest preceding node with a smaller Depth.
type Node struct {
	Offset     int        `json:"offset" yaml:"offset" msgpack:"offset" cbor:"offset"`
	Path       string     `json:"path" yaml:"path" msgpack:"path" cbor:"path"`
	Depth      int        `json:"depth" yaml:"depth" msgpack:"depth" cbor:"depth"`
	Phandle    uint32     `json:"phandle,omitempty" yaml:"phandle,omitempty" msgpack:"phandle,omitempty" cbor:"phandle,omitempty"`
	Properties []Property `json:"properties,omitempty" yaml:"properties,omitempty" msgpack:"properties,omitempty" cbor:"properties,omitempty"`
}

// Property mirrors fdt.Value: exactly one of Text, Cells or Bytes is set
// according to Kind, and none for a boolean.
type Property struct {
	Name  string   `json:"name" yaml:"name" msgpack:"name" cbor:"name"`
	Kind  string   `json:"kind" yaml:"kind" msgpack:"kind" cbor:"kind"`
	Text  string   `json:"text,omitempty" yaml:"text,omitempty" msgpack:"text,omitempty" cbor:"text,omitempty"`
	Cells []string `json:"cells,omitempty" yaml:"cells,omitempty" msgpack:"cells,omitempty" cbor:"cells,omitempty"`
	Bytes []byte   `json:"bytes,omitempty" yaml:"bytes,omitempty" msgpack:"bytes,omitempty" cbor:"bytes,omitempty"`
}

// Build walks the whole image.
func Build(img *fdt.Image) (*Tree, error) {
	rsv, err := img.ReservedMemory()
	if err != nil {
		return nil, err
	}
	t := &Tree{
		Version: img.Version(),
		BootCPU: img.BootCPUID(),
		Nodes:   []Node{},
	}
	for _, r := range rsv {
		t.Reservations = append(t.Reservations, Reservation{r.Address, r.Size})
	}

	// paths[d] is the path of the most recent node at depth d.
	var paths []string
	err = img.Walk(func(off, depth int) error {
		name, err := img.NameForOffset(off)
		if err != nil {
			return err
		}
		paths = append(paths[:depth], childPath(paths, depth, name))
		path := paths[depth]
		props, err := img.PropertiesAt(off)
		if err != nil {
			return err
		}
		n := Node{Offset: off, Path: path, Depth: depth}
		n.Phandle, _ = img.PhandleAt(off)
		for name, v := range props.All() {
			n.Properties = append(n.Properties, makeProperty(name, v))
		}
		t.Nodes = append(t.Nodes, n)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func childPath(paths []string, depth int, name string) string {
	switch {
	case depth == 0:
		return "/"
	case depth == 1:
		return "/" + name
	default:
		return paths[depth-1] + "/" + name
	}
}

// BuildSubtree is Build restricted to the node at path and its
// descendants.
func BuildSubtree(img *fdt.Image, path string) (*Tree, error) {
	root, err := img.OffsetForPath(path)
	if err != nil {
		return nil, err
	}
	full, err := Build(img)
	if err != nil {
		return nil, err
	}
	for i, n := range full.Nodes {
		if n.Offset != root {
			continue
		}
		end := i + 1
		for end < len(full.Nodes) && full.Nodes[end].Depth > n.Depth {
			end++
		}
		full.Nodes = full.Nodes[i:end]
		return full, nil
	}
	return nil, fmt.Errorf("snapshot: node at 0x%x not visited", root)
}

func makeProperty(name string, v fdt.Value) Property {
	p := Property{Name: name, Kind: v.Kind().String()}
	switch v.Kind() {
	case fdt.StringValue:
		p.Text, _ = v.Text()
	case fdt.CellsValue:
		p.Cells, _ = v.Cells()
	case fdt.BytesValue:
		p.Bytes, _ = v.Bytes()
	}
	return p
}

// Find returns the node with the given path.
func (t *Tree) Find(path string) (*Node, bool) {
	for i := range t.Nodes {
		if t.Nodes[i].Path == path {
			return &t.Nodes[i], true
		}
	}
	return nil, false
}

// Property returns the named property of n.
func (n *Node) Property(name string) (*Property, bool) {
	for i := range n.Properties {
		if n.Properties[i].Name == name {
			return &n.Properties[i], true
		}
	}
	return nil, false
}
