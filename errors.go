package fdt

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrorKind classifies every failure reported by this module. Kinds 1..19
// share their numbering with libfdt's FDT_ERR_* codes, so a host binding
// can hand out the same integers a C caller would see.
//
// ErrorKind implements error, so errors.Is(err, fdt.ErrNotFound) works for
// any *Error of that kind.
type ErrorKind int

const (
	ErrNotFound ErrorKind = iota + 1
	ErrAlreadyExists
	ErrNoSpace
	ErrBadOffset
	ErrBadPath
	ErrBadPhandle
	ErrBadState
	ErrTruncated
	ErrBadMagic
	ErrBadVersion
	ErrBadStructure
	ErrBadLayout
	ErrInternal
	ErrBadNcells
	ErrBadValue
	ErrBadOverlay
	ErrNoPhandles
	ErrBadFlags
	ErrMisaligned
)

// Kinds raised by the loading collaborator, outside the libfdt range.
const (
	ErrIOFailure ErrorKind = iota + 100
	ErrNotADevicetreeFile
)

// MaxCode is the largest libfdt-compatible code.
const MaxCode = int(ErrMisaligned)

type kindInfo struct {
	name   string
	msg    string
	defect bool
}

var kindTable = map[ErrorKind]kindInfo{
	ErrNotFound:           {"NotFound", "node or property not found", false},
	ErrAlreadyExists:      {"AlreadyExists", "node or property already exists", false},
	ErrNoSpace:            {"NoSpace", "not enough space to expand", false},
	ErrBadOffset:          {"BadOffset", "invalid offset", false},
	ErrBadPath:            {"BadPath", "bad path format", false},
	ErrBadPhandle:         {"BadPhandle", "invalid phandle", false},
	ErrBadState:           {"BadState", "incomplete devicetree", false},
	ErrTruncated:          {"Truncated", "devicetree is truncated", false},
	ErrBadMagic:           {"BadMagic", "invalid magic number", false},
	ErrBadVersion:         {"BadVersion", "unsupported devicetree version", false},
	ErrBadStructure:       {"BadStructure", "corrupt devicetree structure", false},
	ErrBadLayout:          {"BadLayout", "incorrect devicetree layout", false},
	ErrInternal:           {"Internal", "internal error", true},
	ErrBadNcells:          {"BadNcells", "invalid #xxx-cells", false},
	ErrBadValue:           {"BadValue", "unexpected property value", false},
	ErrBadOverlay:         {"BadOverlay", "invalid devicetree overlay", false},
	ErrNoPhandles:         {"NoPhandles", "no phandles available", false},
	ErrBadFlags:           {"BadFlags", "invalid flags", false},
	ErrMisaligned:         {"Misaligned", "misaligned devicetree", false},
	ErrIOFailure:          {"IOFailure", "failed to read devicetree file", false},
	ErrNotADevicetreeFile: {"NotADevicetreeFile", "not a devicetree file", false},
}

func (k ErrorKind) Error() string {
	if info, ok := kindTable[k]; ok {
		return info.msg
	}
	return "unknown error " + strconv.Itoa(int(k))
}

// String returns the symbolic name, e.g. "BadOffset".
func (k ErrorKind) String() string {
	if info, ok := kindTable[k]; ok {
		return info.name
	}
	return "ErrorKind(" + strconv.Itoa(int(k)) + ")"
}

// Code returns the negative libfdt-style code of the kind.
func (k ErrorKind) Code() int {
	return -int(k)
}

// IsDefect reports whether the kind signals a bug in this package rather
// than a problem with the input.
func (k ErrorKind) IsDefect() bool {
	return kindTable[k].defect
}

// KindForCode maps a numeric code (either sign) onto the taxonomy. Unknown
// codes are reported as ErrInternal.
func KindForCode(code int) ErrorKind {
	if code < 0 {
		code = -code
	}
	k := ErrorKind(code)
	if _, ok := kindTable[k]; !ok {
		return ErrInternal
	}
	return k
}

// Kinds lists every kind in code order.
func Kinds() []ErrorKind {
	kinds := make([]ErrorKind, 0, len(kindTable))
	for k := ErrNotFound; k <= ErrMisaligned; k++ {
		kinds = append(kinds, k)
	}
	return append(kinds, ErrIOFailure, ErrNotADevicetreeFile)
}

// KindOf returns the kind carried by err, or 0 if err is not a decoding
// error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var k ErrorKind
	if errors.As(err, &k) {
		return k
	}
	return 0
}

// Error describes a failure at a particular offset of an image. Off is
// relative to the start of the blob for header problems and to the start
// of the structure block otherwise; it is -1 when no offset applies.
type Error struct {
	Kind ErrorKind
	Off  int
	Msg  string
	Err  error
	Data []byte
}

func errf(kind ErrorKind, off int, format string, args ...any) error {
	return &Error{Kind: kind, Off: off, Msg: fmt.Sprintf(format, args...)}
}

func dataErrf(kind ErrorKind, data []byte, off int, err error, format string, args ...any) error {
	return &Error{Kind: kind, Off: off, Msg: fmt.Sprintf(format, args...), Err: err, Data: data}
}

// Wrap returns an *Error of the given kind around err. Used by loaders that
// live outside this package.
func Wrap(kind ErrorKind, err error, format string, args ...any) error {
	return &Error{Kind: kind, Off: -1, Msg: fmt.Sprintf(format, args...), Err: err}
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	k, ok := target.(ErrorKind)
	return ok && k == e.Kind
}

func (e *Error) Error() string {
	const excerptLen = 16

	s := e.Kind.Error()
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Off >= 0 {
		s += " at 0x" + strconv.FormatInt(int64(e.Off), 16)
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	if e.Data != nil && e.Off >= 0 && e.Off < len(e.Data) {
		end := min(e.Off+excerptLen, len(e.Data))
		s += fmt.Sprintf(" [%x]", e.Data[e.Off:end])
	}
	return s
}
