package fdt

import (
	"strconv"
	"strings"
	"testing"

	"github.com/andreyvit/fdt/internal/fdttest"
)

func TestDump(t *testing.T) {
	root := fdttest.N("",
		fdttest.P("model", "m"),
		fdttest.N("a",
			fdttest.P("reg", 1, 2),
			fdttest.P("ranges"),
			fdttest.N("b", fdttest.P("mac", []byte{1, 2, 3})),
		),
		fdttest.N("c"),
	)
	blob, img := build(t, root, fdttest.Options{Reservations: []fdttest.Reservation{{Address: 0x1000, Size: 0x10}}})

	a := must(img.Dump(DumpReservations | DumpProperties))
	e := strings.Join([]string{
		"/dts-v1/;",
		"/memreserve/ 0x1000 0x10;",
		"/ {",
		"\tmodel = [6d00];",
		"\ta {",
		"\t\treg = <0x1 0x2>;",
		"\t\tranges;",
		"\t\tb {",
		"\t\t\tmac = [010203];",
		"\t\t};",
		"\t};",
		"\tc {",
		"\t};",
		"};",
		"",
	}, "\n")
	if a != e {
		t.Errorf("** got:\n%s\nwanted:\n%s", a, e)
	}

	a = must(img.Dump(DumpOffsets))
	if !strings.Contains(a, "\tc { // @0x"+strconv.FormatInt(int64(blob.Off("/c")), 16)+"\n") {
		t.Errorf("offsets missing from dump:\n%s", a)
	}
	if strings.Contains(a, "model") {
		t.Errorf("properties leaked into dump:\n%s", a)
	}

	a = must(img.Dump(DumpAll))
	if !strings.Contains(a, "version 17 16") {
		t.Errorf("header missing from dump:\n%s", a)
	}
}
