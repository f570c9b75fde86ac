package fdt

import (
	"bytes"
	"encoding/binary"
	"strconv"
	"strings"
)

// ValueKind tags the variant held by a Value.
type ValueKind uint8

const (
	// StringValue holds text (used for compatible).
	StringValue ValueKind = iota + 1
	// CellsValue holds big-endian 32-bit cells formatted as "0x%x".
	CellsValue
	// BoolValue marks a property present with an empty payload.
	BoolValue
	// BytesValue holds any payload the other variants don't describe.
	BytesValue
)

func (k ValueKind) String() string {
	switch k {
	case StringValue:
		return "string"
	case CellsValue:
		return "cells"
	case BoolValue:
		return "bool"
	case BytesValue:
		return "bytes"
	default:
		return "invalid"
	}
}

// Value is a decoded property value. The zero Value has no kind.
//
// Every Value owns its memory; nothing aliases the image.
type Value struct {
	kind  ValueKind
	text  string
	cells []string
	raw   []byte
}

// Decode infers the type of a raw property payload. Rules, in order:
//
//  1. a non-empty property named "compatible" becomes a StringValue of
//     all but the last byte (the terminator);
//  2. a payload whose length is a positive multiple of 4 becomes a
//     CellsValue;
//  3. an empty payload becomes a BoolValue;
//  4. anything else becomes a BytesValue.
//
// Rule 1 deliberately keeps the NULs that separate multiple compatible
// entries; use StringList to split them.
func Decode(name string, raw []byte) Value {
	n := len(raw)
	v := Value{raw: bytes.Clone(raw)}
	if v.raw == nil {
		v.raw = []byte{}
	}
	switch {
	case name == propCompat && n > 0:
		v.kind = StringValue
		v.text = strings.ToValidUTF8(string(raw[:n-1]), "\uFFFD")
	case n > 0 && n%4 == 0:
		v.kind = CellsValue
		v.cells = make([]string, n/4)
		for i := range v.cells {
			v.cells[i] = formatCell(binary.BigEndian.Uint32(raw[i*4:]))
		}
	case n == 0:
		v.kind = BoolValue
	default:
		v.kind = BytesValue
	}
	return v
}

func formatCell(c uint32) string {
	return "0x" + strconv.FormatUint(uint64(c), 16)
}

// DecodePhandle decodes a phandle payload, which must be exactly one cell.
func DecodePhandle(raw []byte) (uint32, bool) {
	if len(raw) != 4 {
		return 0, false
	}
	return binary.BigEndian.Uint32(raw), true
}

func (v Value) Kind() ValueKind { return v.kind }
func (v Value) IsBool() bool    { return v.kind == BoolValue }

// Text returns the text of a StringValue.
func (v Value) Text() (string, bool) {
	return v.text, v.kind == StringValue
}

// Cells returns the formatted cells of a CellsValue. The slice is a copy.
func (v Value) Cells() ([]string, bool) {
	if v.kind != CellsValue {
		return nil, false
	}
	return append([]string(nil), v.cells...), true
}

// Uint32s returns the numeric cells of a CellsValue.
func (v Value) Uint32s() ([]uint32, bool) {
	if v.kind != CellsValue {
		return nil, false
	}
	result := make([]uint32, len(v.raw)/4)
	for i := range result {
		result[i] = binary.BigEndian.Uint32(v.raw[i*4:])
	}
	return result, true
}

// Bytes returns the payload of a BytesValue.
func (v Value) Bytes() ([]byte, bool) {
	if v.kind != BytesValue {
		return nil, false
	}
	return bytes.Clone(v.raw), true
}

// Raw returns a copy of the undecoded payload, whatever the kind.
func (v Value) Raw() []byte {
	return bytes.Clone(v.raw)
}

// StringList splits the raw payload into its NUL-terminated entries. This
// is the "all compatible strings" view of a compatible property, and works
// for any string-list property.
func (v Value) StringList() []string {
	return splitStringList(v.raw)
}

func splitStringList(raw []byte) []string {
	var result []string
	for len(raw) > 0 {
		i := bytes.IndexByte(raw, 0)
		if i < 0 {
			result = append(result, string(raw))
			break
		}
		result = append(result, string(raw[:i]))
		raw = raw[i+1:]
	}
	return result
}

// Equal reports whether two values have the same kind and payload.
func (v Value) Equal(o Value) bool {
	return v.kind == o.kind && bytes.Equal(v.raw, o.raw)
}

func (v Value) String() string {
	switch v.kind {
	case StringValue:
		return strconv.Quote(v.text)
	case CellsValue:
		return "<" + strings.Join(v.cells, " ") + ">"
	case BoolValue:
		return "true"
	case BytesValue:
		var buf strings.Builder
		buf.WriteByte('[')
		for i, b := range v.raw {
			if i > 0 {
				buf.WriteByte(' ')
			}
			buf.WriteString(strconv.FormatUint(uint64(b)|0x100, 16)[1:])
		}
		buf.WriteByte(']')
		return buf.String()
	default:
		return "<invalid>"
	}
}
