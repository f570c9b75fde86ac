package fdt

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorKinds_Table(t *testing.T) {
	seen := make(map[string]ErrorKind)
	for i := 1; i <= MaxCode; i++ {
		k := KindForCode(i)
		eq(t, int(k), i)
		eq(t, k.Code(), -i)
		eq(t, KindForCode(-i), k)
		if k.Error() == "" || strings.HasPrefix(k.Error(), "unknown") {
			t.Errorf("kind %d has no message", i)
		}
		if prev, ok := seen[k.String()]; ok {
			t.Errorf("kinds %d and %d share name %q", prev, k, k.String())
		}
		seen[k.String()] = k
	}
	eq(t, len(Kinds()), MaxCode+2)
	eq(t, ErrMisaligned.Code(), -19)
	eq(t, ErrNotFound.Code(), -1)
	eq(t, ErrBadOffset.Code(), -4)
}

func TestKindForCode_Unknown(t *testing.T) {
	for _, c := range []int{0, 20, -20, 99, 1000} {
		eq(t, KindForCode(c), ErrInternal)
	}
	eq(t, KindForCode(100), ErrIOFailure)
	eq(t, KindForCode(-101), ErrNotADevicetreeFile)
}

func TestErrorKind_Strings(t *testing.T) {
	eq(t, ErrNotFound.String(), "NotFound")
	eq(t, ErrNotFound.Error(), "node or property not found")
	eq(t, ErrBadNcells.Error(), "invalid #xxx-cells")
	eq(t, ErrorKind(55).String(), "ErrorKind(55)")
	eq(t, ErrInternal.IsDefect(), true)
	eq(t, ErrTruncated.IsDefect(), false)
}

func TestError_IsAndUnwrap(t *testing.T) {
	inner := errors.New("inner")
	err := dataErrf(ErrTruncated, x("00 01 02 03 04 05"), 2, inner, "oops %d", 42)

	var fe *Error
	if !errors.As(err, &fe) {
		t.Fatalf("err = %T, wanted *Error", err)
	}
	if !errors.Is(err, ErrTruncated) || errors.Is(err, ErrNotFound) {
		t.Errorf("errors.Is mismatch for %v", err)
	}
	if !errors.Is(err, inner) {
		t.Errorf("errors.Is(err, inner) = false, wanted true")
	}
	eq(t, err.Error(), "devicetree is truncated: oops 42 at 0x2: inner [02030405]")

	wrapped := fmt.Errorf("loading: %w", err)
	eq(t, KindOf(wrapped), ErrTruncated)
	eq(t, KindOf(fmt.Errorf("x: %w", ErrBadMagic)), ErrBadMagic)
	eq(t, KindOf(inner), ErrorKind(0))
	eq(t, KindOf(nil), ErrorKind(0))
}

func TestError_NoOffset(t *testing.T) {
	err := Wrap(ErrIOFailure, errors.New("permission denied"), "failed to open file %q", "x.dtb")
	eq(t, err.Error(), `failed to read devicetree file: failed to open file "x.dtb": permission denied`)
	eq(t, errf(ErrNotFound, -1, "").Error(), "node or property not found")
}
