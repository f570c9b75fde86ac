package catalog

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.etcd.io/bbolt"

	"github.com/andreyvit/fdt"
	"github.com/andreyvit/fdt/internal/fdttest"
)

var start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func setup(t testing.TB) (*Catalog, string) {
	t.Helper()
	fn := filepath.Join(t.TempDir(), "catalog.db")
	c, err := Open(fn, Options{
		Logger:    fdttest.Logger(t),
		Now:       func() time.Time { return start },
		IsTesting: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c, fn
}

func tiny(model string) *fdt.Image {
	blob := fdttest.Build(fdttest.N("", fdttest.P("model", model)), fdttest.Options{})
	return must(fdt.Validate(blob.Data))
}

func TestPutLoad(t *testing.T) {
	c, _ := setup(t)
	img := must(fdt.Validate(fdttest.Virt().Data))

	e, err := c.Put("virt", img, "qemu.dtb")
	if err != nil {
		t.Fatal(err)
	}
	if e.Size != int(img.TotalSize()) || e.Version != 17 || e.Source != "qemu.dtb" || len(e.Digest) != 32 {
		t.Errorf("Put returned %+v", e)
	}

	loaded, le, err := c.Load("virt")
	if err != nil {
		t.Fatal(err)
	}
	if a, e := loaded.Fingerprint(), img.Fingerprint(); a != e {
		t.Errorf("Fingerprint = %x, wanted %x", a, e)
	}
	if le.Name != "virt" || le.DigestHex() != e.DigestHex() || !le.Added.Equal(start) {
		t.Errorf("Load entry = %+v, wanted %+v", le, e)
	}
	path, err := loaded.PathForOffset(must(loaded.OffsetByCompatible("ns16550a")))
	if err != nil || path != "/soc/uart@10000000" {
		t.Errorf("PathForOffset on loaded image = %q, %v", path, err)
	}
}

func TestGet_Missing(t *testing.T) {
	c, _ := setup(t)
	if _, err := c.Get("nope"); !errors.Is(err, fdt.ErrNotFound) {
		t.Errorf("Get = %v, wanted %v", err, fdt.ErrNotFound)
	}
	if _, _, err := c.Load("nope"); !errors.Is(err, fdt.ErrNotFound) {
		t.Errorf("Load = %v, wanted %v", err, fdt.ErrNotFound)
	}
	if found, err := c.Delete("nope"); found || err != nil {
		t.Errorf("Delete = %v, %v; wanted false, nil", found, err)
	}
}

func TestDedupAndCollect(t *testing.T) {
	c, _ := setup(t)
	a, b := tiny("a"), tiny("b")

	must(c.Put("one", a, ""))
	must(c.Put("two", a, ""))
	eq(t, must(c.BlobCount()), 1)

	must(c.Put("three", b, ""))
	eq(t, must(c.BlobCount()), 2)

	// Repointing "three" at a drops b.
	must(c.Put("three", a, ""))
	eq(t, must(c.BlobCount()), 1)

	list := must(c.List())
	var names []string
	for _, e := range list {
		names = append(names, e.Name)
	}
	if diff := cmp.Diff([]string{"one", "three", "two"}, names); diff != "" {
		t.Errorf("List names mismatch (-want +got):\n%s", diff)
	}

	eq(t, must(c.Delete("one")), true)
	eq(t, must(c.BlobCount()), 1)
	eq(t, must(c.Delete("two")), true)
	eq(t, must(c.Delete("three")), true)
	eq(t, must(c.BlobCount()), 0)
	eq(t, len(must(c.List())), 0)
}

func TestReopen(t *testing.T) {
	c, fn := setup(t)
	img := tiny("persist")
	must(c.Put("p", img, ""))
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}

	c2, err := Open(fn, Options{Logger: fdttest.Logger(t), IsTesting: true})
	if err != nil {
		t.Fatal(err)
	}
	defer c2.Close()
	loaded, _, err := c2.Load("p")
	if err != nil {
		t.Fatal(err)
	}
	fdttest.BytesEq(t, loaded.Bytes(), img.Bytes())
}

func TestLoad_Corrupt(t *testing.T) {
	c, _ := setup(t)
	e := must(c.Put("x", tiny("x"), ""))

	err := c.bdb.Update(func(tx *bbolt.Tx) error {
		data := append([]byte(nil), tx.Bucket(blobsBucket).Get(e.Digest)...)
		data[len(data)-2] ^= 0xff
		return tx.Bucket(blobsBucket).Put(e.Digest, data)
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := c.Load("x"); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("Load = %v, wanted %v", err, ErrCorrupt)
	}
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func eq[T comparable](t testing.TB, a, e T) {
	if a != e {
		t.Helper()
		t.Errorf("** got %v, wanted %v", a, e)
	}
}
