// Package dtbfile loads devicetree blobs from files, unwrapping common
// compression containers and locating blobs embedded in larger images.
package dtbfile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/andreyvit/fdt"
	"github.com/andreyvit/fdt/mmap"
)

const DefaultMaxDecompressedSize = 64 << 20

type Options struct {
	// RequireDTBName rejects files whose name does not end in "dtb" with
	// fdt.ErrNotADevicetreeFile before touching the file system.
	RequireDTBName bool

	// Mmap maps the file instead of reading it. The returned image must
	// then be closed. Compressed files are always decompressed to the heap.
	Mmap        bool
	MmapOptions mmap.Options

	// MaxDecompressedSize caps the output of decompression.
	MaxDecompressedSize int

	Logger *slog.Logger
}

func (o *Options) setDefaults() {
	if o.MaxDecompressedSize == 0 {
		o.MaxDecompressedSize = DefaultMaxDecompressedSize
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// LooksLikeDTBName reports whether name ends in "dtb". It's a weak
// convenience check: a ".dtb" file may still be garbage, and a blob may be
// stored under any name.
func LooksLikeDTBName(name string) bool {
	return strings.HasSuffix(name, "dtb")
}

// Load reads and validates the blob at path. File system failures are
// fdt.ErrIOFailure, a rejected name is fdt.ErrNotADevicetreeFile, and a
// blob that fails validation carries the validation error's kind.
func Load(path string, opt Options) (*fdt.Image, error) {
	opt.setDefaults()
	if opt.RequireDTBName && !LooksLikeDTBName(path) {
		return nil, fdt.Wrap(fdt.ErrNotADevicetreeFile, nil, "%q is not a valid DTB file name", path)
	}

	if opt.Mmap {
		img, err := loadMapped(path, opt)
		if err == nil || !errors.Is(err, errMapFailed) {
			return img, err
		}
		opt.Logger.LogAttrs(context.Background(), slog.LevelWarn, "dtbfile: mmap failed, reading instead",
			slog.String("path", path),
			slog.String("err", err.Error()))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ioFailure(path, err)
	}
	return parse(data, path, opt)
}

var errMapFailed = errors.New("mmap failed")

func loadMapped(path string, opt Options) (*fdt.Image, error) {
	data, release, err := mmap.MapFile(path, opt.MmapOptions)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return nil, ioFailure(path, err)
		}
		return nil, fmt.Errorf("%w: %w", errMapFailed, err)
	}

	if c := DetectCompression(data); c != CompressionNone {
		img, err := parse(data, path, opt)
		if rerr := release(); rerr != nil && err == nil {
			err = ioFailure(path, rerr)
		}
		return img, err
	}

	img, err := fdt.New(data, fdt.Options{Release: release})
	if err != nil {
		_ = release()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	opt.Logger.LogAttrs(context.Background(), slog.LevelDebug, "dtbfile: mapped",
		slog.String("path", path),
		slog.Int("size", len(data)),
		slog.Uint64("version", uint64(img.Version())))
	return img, nil
}

// Parse decompresses data if needed and validates it. The image may alias
// data.
func Parse(data []byte, opt Options) (*fdt.Image, error) {
	opt.setDefaults()
	return parse(data, "", opt)
}

func parse(data []byte, path string, opt Options) (*fdt.Image, error) {
	if c := DetectCompression(data); c != CompressionNone {
		out, err := Decompress(data, c, opt.MaxDecompressedSize)
		if err != nil {
			return nil, fdt.Wrap(fdt.ErrNotADevicetreeFile, err, "%s: cannot decompress", describe(path))
		}
		opt.Logger.LogAttrs(context.Background(), slog.LevelDebug, "dtbfile: decompressed",
			slog.String("path", path),
			slog.String("compression", c.String()),
			slog.Int("compressed", len(data)),
			slog.Int("size", len(out)))
		data = out
	}

	img, err := fdt.Validate(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", describe(path), err)
	}
	return img, nil
}

func ioFailure(path string, err error) error {
	return fdt.Wrap(fdt.ErrIOFailure, err, "failed to open file %q", path)
}

func describe(path string) string {
	if path == "" {
		return "<memory>"
	}
	return path
}
