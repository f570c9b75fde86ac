package dtbfile

import (
	"bytes"
	"errors"
	"slices"
	"testing"

	"github.com/andreyvit/fdt"
	"github.com/andreyvit/fdt/internal/fdttest"
)

func TestLocate(t *testing.T) {
	a := fdttest.Virt().Data
	b := fdttest.Build(fdttest.N("", fdttest.P("model", "tiny")), fdttest.Options{}).Data

	var image []byte
	image = append(image, bytes.Repeat([]byte{0x90}, 100)...)
	// A stray magic with a bogus header must be skipped.
	image = append(image, 0xd0, 0x0d, 0xfe, 0xed, 0, 0, 0, 1)
	offA := len(image)
	image = append(image, a...)
	image = append(image, 0, 0, 0)
	offB := len(image)
	image = append(image, b...)
	image = append(image, bytes.Repeat([]byte{0xff}, 33)...)

	if a, e := Locate(image), []int{offA, offB}; !slices.Equal(a, e) {
		t.Fatalf("Locate = %v, wanted %v", a, e)
	}

	img, off, err := Extract(image)
	if err != nil {
		t.Fatal(err)
	}
	if off != offA {
		t.Errorf("Extract offset = %d, wanted %d", off, offA)
	}
	if _, err := img.OffsetForPath("/soc"); err != nil {
		t.Errorf("OffsetForPath(/soc) on extracted image: %v", err)
	}
}

func TestLocate_None(t *testing.T) {
	if a := Locate(bytes.Repeat([]byte{0xd0, 0x0d}, 50)); len(a) != 0 {
		t.Fatalf("Locate = %v, wanted none", a)
	}
	_, _, err := Extract([]byte("nothing here"))
	if !errors.Is(err, fdt.ErrNotADevicetreeFile) {
		t.Fatalf("Extract = %v, wanted %v", err, fdt.ErrNotADevicetreeFile)
	}
}
