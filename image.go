package fdt

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Options configure New.
type Options struct {
	// Release, when set, is called once by Image.Close to hand the buffer
	// back to whoever produced it (e.g. to unmap a file mapping).
	Release func() error
}

// Image is a validated, immutable devicetree blob. All query methods are
// pure reads over the buffer, so an Image is safe for concurrent use as
// long as nobody mutates or frees the buffer behind its back.
type Image struct {
	data []byte
	hdr  header
	strc block
	strs block

	release   func() error
	closeOnce sync.Once
	closeErr  error
}

// Validate checks the header of data and returns an Image backed by it.
// The image keeps a reference to data; the caller must not modify it
// afterwards.
func Validate(data []byte) (*Image, error) {
	return New(data, Options{})
}

func New(data []byte, opt Options) (*Image, error) {
	h, err := parseHeader(data)
	if err != nil {
		return nil, err
	}
	data = data[:h.TotalSize:h.TotalSize]
	soff, ssize := int(h.OffDtStruct), int(h.structSize())
	toff, tsize := int(h.OffDtStrings), int(h.SizeDtStrings)
	return &Image{
		data:    data,
		hdr:     h,
		strc:    block{data[soff : soff+ssize : soff+ssize], soff},
		strs:    block{data[toff : toff+tsize : toff+tsize], toff},
		release: opt.Release,
	}, nil
}

// Close releases the backing buffer if the image was created with a
// release hook. The image must not be used afterwards. Close is safe to
// call more than once.
func (img *Image) Close() error {
	img.closeOnce.Do(func() {
		if img.release != nil {
			img.closeErr = img.release()
		}
	})
	return img.closeErr
}

func (img *Image) Magic() uint32                 { return img.hdr.Magic }
func (img *Image) Version() uint32               { return img.hdr.Version }
func (img *Image) LastCompatibleVersion() uint32 { return img.hdr.LastCompVersion }
func (img *Image) TotalSize() uint32             { return img.hdr.TotalSize }
func (img *Image) HeaderSize() int               { return img.hdr.headerSize() }
func (img *Image) BootCPUID() uint32             { return img.hdr.BootCPUIDPhys }
func (img *Image) StructSize() int               { return img.strc.size() }
func (img *Image) StringsSize() int              { return img.strs.size() }

// Bytes returns the validated blob (exactly TotalSize bytes). The slice
// aliases the image and must be treated as read-only.
func (img *Image) Bytes() []byte {
	return img.data
}

// Fingerprint is a fast non-cryptographic hash of the blob, handy for
// telling loaded images apart.
func (img *Image) Fingerprint() uint64 {
	return xxhash.Sum64(img.data)
}

func (img *Image) String() string {
	return img.hdr.String()
}

// Reservation is one entry of the memory reservation block.
type Reservation struct {
	Address uint64
	Size    uint64
}

// ReservedMemory decodes the memory reservation block, up to (not
// including) the terminating entry with a zero size.
func (img *Image) ReservedMemory() ([]Reservation, error) {
	off := int(img.hdr.OffMemRsvmap)
	d := makeByteDecoder(img.data[off:])
	var result []Reservation
	for {
		addr, err := d.Uint64()
		if err != nil {
			return nil, err
		}
		size, err := d.Uint64()
		if err != nil {
			return nil, err
		}
		if size == 0 {
			return result, nil
		}
		result = append(result, Reservation{addr, size})
	}
}
