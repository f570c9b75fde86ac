package fdt

// StringAt returns the NUL-terminated string starting nameOff bytes into
// the strings block. Property headers refer to their names this way.
func (img *Image) StringAt(nameOff uint32) (string, error) {
	s, err := img.stringBytes(nameOff)
	if err != nil {
		return "", err
	}
	return string(s), nil
}

func (img *Image) stringBytes(nameOff uint32) ([]byte, error) {
	if uint64(nameOff) >= uint64(img.strs.size()) {
		return nil, img.strs.errf(ErrBadStructure, int(nameOff), "string offset outside strings block (size 0x%x)", img.strs.size())
	}
	return img.strs.cstring(int(nameOff))
}

// stringEquals compares the string at nameOff with name without
// allocating.
func (img *Image) stringEquals(nameOff uint32, name string) (bool, error) {
	s, err := img.stringBytes(nameOff)
	if err != nil {
		return false, err
	}
	return string(s) == name, nil
}
