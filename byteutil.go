package fdt

import (
	"bytes"
	"encoding/binary"
)

const tagSize = 4

func align(x, a int) int {
	return (x + a - 1) &^ (a - 1)
}

// byteDecoder reads big-endian fields sequentially, reporting offsets
// relative to Orig.
type byteDecoder struct {
	Orig []byte
	Buf  []byte
}

func makeByteDecoder(buf []byte) byteDecoder {
	return byteDecoder{buf, buf}
}

func (d *byteDecoder) Off() int {
	return len(d.Orig) - len(d.Buf)
}

func (d *byteDecoder) Uint32() (uint32, error) {
	if len(d.Buf) < 4 {
		return 0, dataErrf(ErrTruncated, d.Orig, d.Off(), nil, "not enough data: %d bytes remaining, 4 wanted", len(d.Buf))
	}
	v := binary.BigEndian.Uint32(d.Buf)
	d.Buf = d.Buf[4:]
	return v, nil
}

func (d *byteDecoder) Uint64() (uint64, error) {
	if len(d.Buf) < 8 {
		return 0, dataErrf(ErrTruncated, d.Orig, d.Off(), nil, "not enough data: %d bytes remaining, 8 wanted", len(d.Buf))
	}
	v := binary.BigEndian.Uint64(d.Buf)
	d.Buf = d.Buf[8:]
	return v, nil
}

func (d *byteDecoder) Raw(n int) ([]byte, error) {
	if n < 0 || len(d.Buf) < n {
		return nil, dataErrf(ErrTruncated, d.Orig, d.Off(), nil, "not enough data: %d bytes remaining, %d wanted", len(d.Buf), n)
	}
	v := d.Buf[:n]
	d.Buf = d.Buf[n:]
	return v, nil
}

// block is a bounds-checked window of an image, such as the structure or
// strings block. Offsets passed to its methods are relative to the window.
type block struct {
	data []byte
	base int
}

func (b block) size() int {
	return len(b.data)
}

func (b block) errf(kind ErrorKind, off int, format string, args ...any) error {
	return dataErrf(kind, b.data, off, nil, format, args...)
}

func (b block) u32(off int) (uint32, error) {
	if off < 0 || off > len(b.data)-4 {
		return 0, b.errf(ErrTruncated, off, "4-byte read past end of block (size 0x%x)", len(b.data))
	}
	return binary.BigEndian.Uint32(b.data[off:]), nil
}

func (b block) slice(off, n int) ([]byte, error) {
	if off < 0 || n < 0 || off > len(b.data) || n > len(b.data)-off {
		return nil, b.errf(ErrTruncated, off, "%d-byte read past end of block (size 0x%x)", n, len(b.data))
	}
	return b.data[off : off+n : off+n], nil
}

// cstring returns the bytes of the NUL-terminated string at off, without
// the terminator.
func (b block) cstring(off int) ([]byte, error) {
	if off < 0 || off >= len(b.data) {
		return nil, b.errf(ErrTruncated, off, "string starts past end of block (size 0x%x)", len(b.data))
	}
	n := bytes.IndexByte(b.data[off:], 0)
	if n < 0 {
		return nil, b.errf(ErrTruncated, off, "unterminated string")
	}
	return b.data[off : off+n : off+n], nil
}
