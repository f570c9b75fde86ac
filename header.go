package fdt

import "fmt"

const (
	// Magic is the first big-endian word of every devicetree blob.
	Magic uint32 = 0xd00dfeed

	// FirstSupportedVersion and LastSupportedVersion bound the format
	// versions this package decodes. A newer blob is accepted as long as
	// its last compatible version is within range.
	FirstSupportedVersion = 16
	LastSupportedVersion  = 17

	headerSizeV16 = 36
	headerSizeV17 = 40
)

type header struct {
	Magic           uint32
	TotalSize       uint32
	OffDtStruct     uint32
	OffDtStrings    uint32
	OffMemRsvmap    uint32
	Version         uint32
	LastCompVersion uint32
	BootCPUIDPhys   uint32
	SizeDtStrings   uint32
	SizeDtStruct    uint32 // version 17+
}

func (h *header) String() string {
	return fmt.Sprintf("magic: 0x%x, version %d %d, total size: 0x%x, offset struct 0x%x strings 0x%x mem-reserve-map 0x%x",
		h.Magic, h.Version, h.LastCompVersion,
		h.TotalSize, h.OffDtStruct, h.OffDtStrings, h.OffMemRsvmap)
}

func headerSizeFor(version uint32) int {
	if version >= 17 {
		return headerSizeV17
	}
	return headerSizeV16
}

// parseHeader runs the header checks in the documented order: enough bytes
// for the magic, the magic itself, enough bytes for the header, declared
// total size against the buffer, then the version range. Block layout is
// checked last.
func parseHeader(data []byte) (header, error) {
	var h header
	if len(data) < 4 {
		return h, dataErrf(ErrTruncated, data, 0, nil, "%d bytes is too short for a devicetree header", len(data))
	}

	d := makeByteDecoder(data)
	h.Magic = must(d.Uint32())
	if h.Magic != Magic {
		return h, dataErrf(ErrBadMagic, data, 0, nil, "got 0x%08x, wanted 0x%08x", h.Magic, Magic)
	}
	if len(data) < headerSizeV16 {
		return h, dataErrf(ErrTruncated, data, 0, nil, "%d bytes is too short for a devicetree header", len(data))
	}

	h.TotalSize = must(d.Uint32())
	h.OffDtStruct = must(d.Uint32())
	h.OffDtStrings = must(d.Uint32())
	h.OffMemRsvmap = must(d.Uint32())
	h.Version = must(d.Uint32())
	h.LastCompVersion = must(d.Uint32())
	h.BootCPUIDPhys = must(d.Uint32())
	h.SizeDtStrings = must(d.Uint32())

	hdrSize := headerSizeFor(h.Version)
	if len(data) < hdrSize {
		return h, dataErrf(ErrTruncated, data, 0, nil, "%d bytes is too short for a version %d header", len(data), h.Version)
	}
	if h.Version >= 17 {
		h.SizeDtStruct = must(d.Uint32())
	}

	if uint64(h.TotalSize) > uint64(len(data)) {
		return h, errf(ErrTruncated, 4, "total size 0x%x exceeds buffer size 0x%x", h.TotalSize, len(data))
	}
	if h.Version < FirstSupportedVersion || h.LastCompVersion > LastSupportedVersion {
		return h, errf(ErrBadVersion, 20, "version %d (last compatible %d) outside %d..%d", h.Version, h.LastCompVersion, FirstSupportedVersion, LastSupportedVersion)
	}

	return h, h.checkLayout()
}

func (h *header) headerSize() int {
	return headerSizeFor(h.Version)
}

func (h *header) structSize() uint32 {
	if h.Version >= 17 {
		return h.SizeDtStruct
	}
	return h.TotalSize - h.OffDtStruct
}

func (h *header) checkLayout() error {
	hdrSize := uint64(h.headerSize())
	total := uint64(h.TotalSize)
	if total < hdrSize {
		return errf(ErrTruncated, 4, "total size 0x%x is smaller than the header", h.TotalSize)
	}

	checkBlock := func(name string, off, size uint32) error {
		start, end := uint64(off), uint64(off)+uint64(size)
		if start < hdrSize || start > total {
			return errf(ErrBadStructure, -1, "%s block offset 0x%x outside 0x%x..0x%x", name, off, hdrSize, total)
		}
		if end > total {
			return errf(ErrBadStructure, -1, "%s block 0x%x+0x%x extends past total size 0x%x", name, off, size, total)
		}
		return nil
	}

	if err := checkBlock("memory reservation", h.OffMemRsvmap, 0); err != nil {
		return err
	}
	if err := checkBlock("structure", h.OffDtStruct, 0); err != nil {
		return err
	}
	if err := checkBlock("structure", h.OffDtStruct, h.structSize()); err != nil {
		return err
	}
	if err := checkBlock("strings", h.OffDtStrings, h.SizeDtStrings); err != nil {
		return err
	}
	if h.OffDtStruct%tagSize != 0 {
		return errf(ErrMisaligned, 8, "structure block offset 0x%x is not 4-byte aligned", h.OffDtStruct)
	}
	return nil
}
