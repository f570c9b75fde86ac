package fdt

import (
	"encoding/hex"
	"reflect"
	"strings"
	"testing"

	"github.com/andreyvit/fdt/internal/fdttest"
)

func TestRpad(t *testing.T) {
	if got := rpad("abc", 5, '.'); got != "abc.." {
		t.Fatalf("rpad = %q, wanted %q", got, "abc..")
	}
	if got := rpad("abc", 1, '.'); got != "abc" {
		t.Fatalf("rpad = %q, wanted %q", got, "abc")
	}
}

func TestHexstr(t *testing.T) {
	eq(t, hexstr(nil), "<nil>")
	eq(t, hexstr([]byte{}), "<empty>")
	eq(t, hexstr([]byte{0xde, 0xad}), "dead")
}

func TestMust_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("must did not panic")
		}
	}()
	must(0, ErrInternal)
}

func virt(t testing.TB) (*fdttest.Blob, *Image) {
	t.Helper()
	blob := fdttest.Virt()
	img, err := Validate(blob.Data)
	if err != nil {
		t.Fatal(err)
	}
	return blob, img
}

func build(t testing.TB, root *fdttest.Node, o fdttest.Options) (*fdttest.Blob, *Image) {
	t.Helper()
	blob := fdttest.Build(root, o)
	img, err := Validate(blob.Data)
	if err != nil {
		t.Fatal(err)
	}
	return blob, img
}

func eq[T comparable](t testing.TB, a, e T) {
	if a != e {
		t.Helper()
		t.Errorf("** got %v, wanted %v", a, e)
	}
}

func deepEqual[T any](t testing.TB, a, e T) {
	if !reflect.DeepEqual(a, e) {
		t.Helper()
		t.Errorf("** got %v, wanted %v", a, e)
	}
}

func isKind(t testing.TB, err error, e ErrorKind) {
	if KindOf(err) != e {
		t.Helper()
		t.Errorf("** got error %v (kind %v), wanted kind %v", err, KindOf(err), e)
	}
}

func x(data string) []byte {
	data = strings.ReplaceAll(data, " ", "")
	return must(hex.DecodeString(data))
}
