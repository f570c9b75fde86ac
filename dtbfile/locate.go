package dtbfile

import (
	"bytes"
	"encoding/binary"

	"github.com/andreyvit/fdt"
)

var fdtMagic = binary.BigEndian.AppendUint32(nil, fdt.Magic)

// Locate scans data (typically a kernel or boot image) for embedded blobs
// and returns the offsets of every candidate whose header validates and
// whose structure block starts with a begin-node token. Candidates never
// overlap: the scan resumes after each accepted blob.
func Locate(data []byte) []int {
	var result []int
	for pos := 0; pos < len(data); {
		i := bytes.Index(data[pos:], fdtMagic)
		if i < 0 {
			break
		}
		start := pos + i
		if img, err := fdt.Validate(data[start:]); err == nil && startsWithNode(img) {
			result = append(result, start)
			pos = start + int(img.TotalSize())
		} else {
			pos = start + 4
		}
	}
	return result
}

func startsWithNode(img *fdt.Image) bool {
	_, err := img.NameForOffset(0)
	return err == nil
}

// Extract returns the validated image at the first offset Locate finds.
func Extract(data []byte) (*fdt.Image, int, error) {
	offs := Locate(data)
	if len(offs) == 0 {
		return nil, -1, fdt.Wrap(fdt.ErrNotADevicetreeFile, nil, "no embedded devicetree found in %d bytes", len(data))
	}
	img, err := fdt.Validate(data[offs[0]:])
	return img, offs[0], err
}
