package fdt

import (
	"fmt"
	"strings"
)

type DumpFlags uint64

const (
	DumpHeader = DumpFlags(1 << iota)
	DumpReservations
	DumpProperties
	DumpOffsets

	DumpAll = DumpFlags(0xFFFFFFFFFFFFFFFF)

	indentStep = "\t"
)

var dumpSep = rpad("// ", 64, '-')

func (f DumpFlags) Contains(v DumpFlags) bool {
	return (f & v) == v
}

// Dump renders the tree in a DTS-like text form for debugging. Values are
// shown as Decode types them, so the output is not meant to be fed back
// to a compiler.
func (img *Image) Dump(f DumpFlags) (string, error) {
	var buf strings.Builder
	buf.WriteString("/dts-v1/;\n")
	if f.Contains(DumpHeader) {
		fmt.Fprintf(&buf, "// %s\n// boot cpuid 0x%x, struct 0x%x bytes, strings 0x%x bytes\n%s\n", &img.hdr, img.BootCPUID(), img.StructSize(), img.StringsSize(), dumpSep)
	}
	if f.Contains(DumpReservations) {
		rsv, err := img.ReservedMemory()
		if err != nil {
			return "", err
		}
		for _, r := range rsv {
			fmt.Fprintf(&buf, "/memreserve/ 0x%x 0x%x;\n", r.Address, r.Size)
		}
	}

	prevDepth := -1
	closeTo := func(depth int) {
		for ; prevDepth >= depth; prevDepth-- {
			buf.WriteString(strings.Repeat(indentStep, prevDepth))
			buf.WriteString("};\n")
		}
	}
	err := img.Walk(func(off, depth int) error {
		closeTo(depth)
		prevDepth = depth
		indent := strings.Repeat(indentStep, depth)

		name := must(img.NameForOffset(off))
		if depth == 0 {
			name = "/"
		}
		buf.WriteString(indent)
		buf.WriteString(name)
		buf.WriteString(" {")
		if f.Contains(DumpOffsets) {
			fmt.Fprintf(&buf, " // @0x%x", off)
		}
		buf.WriteByte('\n')

		if f.Contains(DumpProperties) {
			props, err := img.PropertiesAt(off)
			if err != nil {
				return err
			}
			for name, v := range props.All() {
				buf.WriteString(indent + indentStep)
				buf.WriteString(name)
				if !v.IsBool() {
					buf.WriteString(" = ")
					buf.WriteString(dumpValue(v))
				}
				buf.WriteString(";\n")
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	closeTo(0)
	return buf.String(), nil
}

func dumpValue(v Value) string {
	if v.Kind() == BytesValue {
		return "[" + hexstr(v.Raw()) + "]"
	}
	return v.String()
}
