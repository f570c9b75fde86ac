package fdt

// Stats summarises the contents of an image.
type Stats struct {
	Nodes        int
	Properties   int
	MaxDepth     int
	ValueBytes   int
	Phandles     int
	Reservations int

	StructSize  int
	StringsSize int
	TotalSize   int
}

// Overhead is the part of the blob not taken by property payloads.
func (s *Stats) Overhead() int {
	return s.TotalSize - s.ValueBytes
}

// Stats walks the whole tree once.
func (img *Image) Stats() (Stats, error) {
	s := Stats{
		StructSize:  img.StructSize(),
		StringsSize: img.StringsSize(),
		TotalSize:   int(img.TotalSize()),
	}
	rsv, err := img.ReservedMemory()
	if err != nil {
		return s, err
	}
	s.Reservations = len(rsv)

	err = img.Walk(func(off, depth int) error {
		s.Nodes++
		s.MaxDepth = max(s.MaxDepth, depth)
		if _, ok := img.PhandleAt(off); ok {
			s.Phandles++
		}
		return img.eachProperty(off, func(p propRecord) (bool, error) {
			s.Properties++
			s.ValueBytes += len(p.data)
			return true, nil
		})
	})
	return s, err
}
