package fdt

import (
	"bytes"
	"testing"

	"github.com/u-root/u-root/pkg/dt"

	"github.com/andreyvit/fdt/internal/fdttest"
)

// u-root's dt package is an independent FDT reader/writer; both directions
// are cross-checked against it.

func TestCrossCheck_URootWriter(t *testing.T) {
	tree := &dt.FDT{
		RootNode: &dt.Node{
			Name: "",
			Properties: []dt.Property{
				{Name: "compatible", Value: []byte("acme,board\x00")},
				{Name: "#address-cells", Value: []byte{0, 0, 0, 1}},
			},
			Children: []*dt.Node{
				{
					Name: "chosen",
					Properties: []dt.Property{
						{Name: "bootargs", Value: []byte("console=ttyS0\x00")},
					},
				},
				{
					Name: "serial@1000",
					Properties: []dt.Property{
						{Name: "compatible", Value: []byte("acme,uart\x00")},
						{Name: "reg", Value: []byte{0, 0, 0x10, 0, 0, 0, 0, 0x20}},
						{Name: "phandle", Value: []byte{0, 0, 0, 7}},
						{Name: "wakeup-source", Value: []byte{}},
					},
				},
			},
		},
	}
	tree.Header.Magic = Magic
	tree.Header.Version = 17

	var buf bytes.Buffer
	if _, err := tree.Write(&buf); err != nil {
		t.Fatal(err)
	}
	img, err := Validate(buf.Bytes())
	if err != nil {
		t.Fatalf("Validate(u-root output): %v", err)
	}

	off := must(img.OffsetByCompatible("acme,uart"))
	eq(t, must(img.PathForOffset(off)), "/serial@1000")
	ph, ok := img.PhandleAt(off)
	eq(t, ok, true)
	eq(t, ph, uint32(7))
	props := must(img.PropertiesAt(off))
	eq(t, props.String(), `{compatible: "acme,uart", reg: <0x1000 0x20>, phandle: <0x7>, wakeup-source: true}`)

	chosen := must(img.PropertiesByPath("/chosen"))
	v, _ := chosen.Get("bootargs")
	eq(t, v.Kind(), BytesValue)
	eq(t, v.StringList()[0], "console=ttyS0")
}

func TestCrossCheck_URootReader(t *testing.T) {
	blob := fdttest.Virt()
	tree, err := dt.ReadFDT(bytes.NewReader(blob.Data))
	if err != nil {
		t.Fatalf("u-root rejects built blob: %v", err)
	}
	_, img := virt(t)

	var check func(n *dt.Node, path string)
	check = func(n *dt.Node, path string) {
		off, err := img.OffsetForPath(path)
		if err != nil {
			t.Errorf("%s: %v", path, err)
			return
		}
		props := must(img.PropertiesAt(off))
		eq(t, props.Len(), len(n.Properties))
		for _, p := range n.Properties {
			v, ok := props.Get(p.Name)
			if !ok {
				t.Errorf("%s: missing %s", path, p.Name)
				continue
			}
			deepEqual(t, v.Raw(), append([]byte{}, p.Value...))
		}
		for _, c := range n.Children {
			if path == "/" {
				check(c, "/"+c.Name)
			} else {
				check(c, path+"/"+c.Name)
			}
		}
	}
	check(tree.RootNode, "/")
}
