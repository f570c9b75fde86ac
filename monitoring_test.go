package fdt

import (
	"testing"
)

func TestStats(t *testing.T) {
	blob, img := virt(t)
	s := must(img.Stats())
	eq(t, s.Nodes, len(blob.Offsets))
	eq(t, s.MaxDepth, 3)
	eq(t, s.Phandles, 4)
	eq(t, s.Reservations, 2)
	eq(t, s.TotalSize, len(blob.Data))
	eq(t, s.StructSize, blob.StringsOff-blob.StructOff)

	var props, valueBytes int
	for _, off := range blob.Offsets {
		for _, v := range must(img.PropertiesAt(off)).All() {
			props++
			valueBytes += len(v.Raw())
		}
	}
	eq(t, s.Properties, props)
	eq(t, s.ValueBytes, valueBytes)
	eq(t, s.Overhead(), len(blob.Data)-valueBytes)
}
