// Package mmap maps blob files into memory read-only.
package mmap

import (
	"fmt"
	"os"
)

type Options uint

const (
	// SequentialAccess is a hint requesting aggressive read-ahead.
	// Incompatible with RandomAccess. Maps to MADV_SEQUENTIAL on Unix.
	SequentialAccess Options = 1 << iota

	// RandomAccess is a hint that read ahead is less useful than normally.
	// Incompatible with SequentialAccess. Maps to MADV_RANDOM on Unix.
	RandomAccess

	// Prefault is a hint requesting the entire file to be loaded in memory
	// up front. Maps to MAP_POPULATE on Linux.
	Prefault
)

func (o Options) Has(v Options) bool {
	return o&v != 0
}

// Mmap maps the first size bytes of f. The mapping is read-only; writing to
// the returned slice faults.
func Mmap(f *os.File, offset, size int, opt Options) ([]byte, error) {
	if offset != 0 {
		panic("non-zero offset not yet supported")
	}
	if size <= 0 {
		return nil, fmt.Errorf("cannot map %d bytes", size)
	}
	if size > MaxSize {
		return nil, fmt.Errorf("cannot map %d bytes, max is %d", size, MaxSize)
	}
	return mmap(f, size, opt)
}

// Munmap unmaps the given slice from memory. The slice must have been returned
// by Mmap.
func Munmap(b []byte) error {
	return munmap(b)
}

// MapFile opens and maps a whole file. The file descriptor is closed before
// returning; release unmaps the data and must be called exactly once, after
// the last use of data.
func MapFile(path string, opt Options) (data []byte, release func() error, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, nil, err
	}
	if fi.Size() > MaxSize {
		return nil, nil, fmt.Errorf("%s: %d bytes is too large to map", path, fi.Size())
	}
	data, err = Mmap(f, 0, int(fi.Size()), opt)
	if err != nil {
		return nil, nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	return data, func() error { return Munmap(data) }, nil
}
