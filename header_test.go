package fdt

import (
	"errors"
	"testing"

	"github.com/andreyvit/fdt/internal/fdttest"
)

func TestValidate_Header(t *testing.T) {
	blob, img := virt(t)
	eq(t, img.Magic(), uint32(0xd00dfeed))
	eq(t, img.Version(), uint32(17))
	eq(t, img.LastCompatibleVersion(), uint32(16))
	eq(t, img.HeaderSize(), 40)
	eq(t, img.TotalSize(), uint32(len(blob.Data)))
	eq(t, img.StructSize(), blob.StringsOff-blob.StructOff)
	fdttest.BytesEq(t, img.Bytes(), blob.Data)
}

func TestValidate_V16(t *testing.T) {
	_, img := build(t, fdttest.VirtTree(), fdttest.Options{Version: 16, BootCPU: 3})
	eq(t, img.Version(), uint32(16))
	eq(t, img.HeaderSize(), 36)
	eq(t, img.BootCPUID(), uint32(3))
	if _, err := img.OffsetForPath("/soc/uart@10000000"); err != nil {
		t.Fatal(err)
	}
}

func TestValidate_NewerVersionBackwardsCompatible(t *testing.T) {
	_, img := build(t, fdttest.VirtTree(), fdttest.Options{Version: 18, LastCompVersion: 16})
	eq(t, img.Version(), uint32(18))
}

func TestValidate_TrailingBytes(t *testing.T) {
	blob := fdttest.Virt()
	data := append(blob.Bytes(), 0xff, 0xff, 0xff, 0xff)
	img := must(Validate(data))
	eq(t, len(img.Bytes()), len(blob.Data))
}

func TestValidate_Failures(t *testing.T) {
	blob := fdttest.Virt()
	total := uint32(len(blob.Data))

	tests := []struct {
		name string
		data []byte
		kind ErrorKind
	}{
		{"empty", nil, ErrTruncated},
		{"3 bytes", x("d00dfe"), ErrTruncated},
		{"bad magic short", x("deadbeef"), ErrBadMagic},
		{"bad magic", blob.WithHeader(fdttest.HdrMagic, 0xedfe0dd0), ErrBadMagic},
		{"magic only", x("d00dfeed"), ErrTruncated},
		{"short v17 header", blob.Truncated(38), ErrTruncated},
		{"truncated file", blob.Truncated(len(blob.Data) - 1), ErrTruncated},
		{"total size too big", blob.WithHeader(fdttest.HdrTotalSize, total+4), ErrTruncated},
		{"version 15", blob.WithHeader(fdttest.HdrVersion, 15), ErrBadVersion},
		{"version 1", blob.WithHeader(fdttest.HdrVersion, 1), ErrBadVersion},
		{"last comp 18", blob.WithHeader(fdttest.HdrLastComp, 18), ErrBadVersion},
		{"total below header", blob.WithHeader(fdttest.HdrTotalSize, 20), ErrTruncated},
		{"rsvmap inside header", blob.WithHeader(fdttest.HdrOffRsvmap, 8), ErrBadStructure},
		{"struct past end", blob.WithHeader(fdttest.HdrOffStruct, total+8), ErrBadStructure},
		{"struct size past end", blob.WithHeader(fdttest.HdrSizeStruct, total), ErrBadStructure},
		{"strings past end", blob.WithHeader(fdttest.HdrSizeStrings, total), ErrBadStructure},
		{"misaligned struct", blob.WithHeader(fdttest.HdrOffStruct, uint32(blob.StructOff+2)), ErrMisaligned},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := Validate(tt.data)
			if img != nil {
				t.Errorf("Validate returned an image alongside %v", err)
			}
			isKind(t, err, tt.kind)
			if !errors.Is(err, tt.kind) {
				t.Errorf("errors.Is(%v, %v) = false", err, tt.kind)
			}
		})
	}
}

func TestClose_ReleasesOnce(t *testing.T) {
	var calls int
	img := must(New(fdttest.Virt().Data, Options{Release: func() error {
		calls++
		return ErrInternal
	}}))
	for range 3 {
		if err := img.Close(); err != ErrInternal {
			t.Errorf("Close = %v, wanted %v", err, ErrInternal)
		}
	}
	eq(t, calls, 1)

	_, plain := virt(t)
	eq(t, plain.Close(), nil)
}

func TestReservedMemory(t *testing.T) {
	_, img := virt(t)
	deepEqual(t, must(img.ReservedMemory()), []Reservation{
		{0x80000000, 0x200000},
		{0x87e00000, 0x1000},
	})

	_, empty := build(t, fdttest.N(""), fdttest.Options{})
	eq(t, len(must(empty.ReservedMemory())), 0)
}

func TestFingerprint(t *testing.T) {
	_, a := virt(t)
	_, b := virt(t)
	eq(t, a.Fingerprint(), b.Fingerprint())

	_, c := build(t, fdttest.N("", fdttest.P("model", "other")), fdttest.Options{})
	if a.Fingerprint() == c.Fingerprint() {
		t.Errorf("different blobs share fingerprint %x", a.Fingerprint())
	}
}
