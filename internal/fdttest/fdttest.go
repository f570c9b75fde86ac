// Package fdttest builds devicetree blobs for tests, with the offset of
// every node recorded, and produces deliberately broken variants of them.
package fdttest

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const (
	tokenBeginNode = 1
	tokenEndNode   = 2
	tokenProp      = 3
	tokenNop       = 4
	tokenEnd       = 9
)

// Header field offsets, for use with Blob.WithHeader.
const (
	HdrMagic       = 0
	HdrTotalSize   = 4
	HdrOffStruct   = 8
	HdrOffStrings  = 12
	HdrOffRsvmap   = 16
	HdrVersion     = 20
	HdrLastComp    = 24
	HdrBootCPU     = 28
	HdrSizeStrings = 32
	HdrSizeStruct  = 36
)

type Node struct {
	Name     string
	Props    []Prop
	Children []*Node
}

type Prop struct {
	Name  string
	Value []byte
}

// N makes a node out of Prop and *Node items, in order.
func N(name string, items ...any) *Node {
	n := &Node{Name: name}
	for _, item := range items {
		switch v := item.(type) {
		case Prop:
			n.Props = append(n.Props, v)
		case *Node:
			n.Children = append(n.Children, v)
		default:
			panic(fmt.Sprintf("fdttest.N: unsupported item %T", item))
		}
	}
	return n
}

// P makes a property. The value is the concatenation of the arguments:
// []byte is copied as is, string becomes a NUL-terminated string, uint32 a
// big-endian cell, uint64 two cells.
func P(name string, values ...any) Prop {
	var b []byte
	for _, v := range values {
		switch v := v.(type) {
		case []byte:
			b = append(b, v...)
		case string:
			b = append(b, v...)
			b = append(b, 0)
		case uint32:
			b = binary.BigEndian.AppendUint32(b, v)
		case int:
			b = binary.BigEndian.AppendUint32(b, uint32(v))
		case uint64:
			b = binary.BigEndian.AppendUint64(b, v)
		default:
			panic(fmt.Sprintf("fdttest.P: unsupported value %T", v))
		}
	}
	if b == nil {
		b = []byte{}
	}
	return Prop{Name: name, Value: b}
}

type Reservation struct {
	Address, Size uint64
}

type Options struct {
	Version         uint32 // default 17
	LastCompVersion uint32 // default 16
	BootCPU         uint32
	Reservations    []Reservation

	// Nops puts a NOP token before every property and child node.
	Nops bool

	// Slack is appended after the strings block, inside totalsize.
	Slack int
}

type Blob struct {
	Data []byte

	// Offsets maps node paths to structure-block offsets.
	Offsets map[string]int
	// PropOffsets maps "path:name" to the offset of the property token.
	PropOffsets map[string]int
	// Names maps property names to string-table offsets.
	Names map[string]uint32

	StructOff  int
	StringsOff int
	RsvOff     int
}

// Build serialises root. The layout is header, reservation block,
// structure block, strings block, like dtc produces.
func Build(root *Node, o Options) *Blob {
	if o.Version == 0 {
		o.Version = 17
	}
	if o.LastCompVersion == 0 {
		o.LastCompVersion = 16
	}

	b := &Blob{
		Offsets:     make(map[string]int),
		PropOffsets: make(map[string]int),
		Names:       make(map[string]uint32),
	}
	var strs []byte
	nameOff := func(name string) uint32 {
		if off, ok := b.Names[name]; ok {
			return off
		}
		off := uint32(len(strs))
		strs = append(strs, name...)
		strs = append(strs, 0)
		b.Names[name] = off
		return off
	}

	var st []byte
	u32 := func(v uint32) { st = binary.BigEndian.AppendUint32(st, v) }
	pad := func() {
		for len(st)%4 != 0 {
			st = append(st, 0)
		}
	}
	var emit func(n *Node, path string)
	emit = func(n *Node, path string) {
		b.Offsets[path] = len(st)
		u32(tokenBeginNode)
		st = append(st, n.Name...)
		st = append(st, 0)
		pad()
		for _, p := range n.Props {
			if o.Nops {
				u32(tokenNop)
			}
			b.PropOffsets[path+":"+p.Name] = len(st)
			u32(tokenProp)
			u32(uint32(len(p.Value)))
			u32(nameOff(p.Name))
			st = append(st, p.Value...)
			pad()
		}
		for _, c := range n.Children {
			if o.Nops {
				u32(tokenNop)
			}
			emit(c, joinPath(path, c.Name))
		}
		u32(tokenEndNode)
	}
	emit(root, "/")
	u32(tokenEnd)

	hdrSize := 40
	if o.Version < 17 {
		hdrSize = 36
	}
	b.RsvOff = align(hdrSize, 8)
	b.StructOff = b.RsvOff + 16*(len(o.Reservations)+1)
	b.StringsOff = b.StructOff + len(st)
	total := b.StringsOff + len(strs) + o.Slack

	data := make([]byte, total)
	put := func(off int, v uint32) { binary.BigEndian.PutUint32(data[off:], v) }
	put(HdrMagic, 0xd00dfeed)
	put(HdrTotalSize, uint32(total))
	put(HdrOffStruct, uint32(b.StructOff))
	put(HdrOffStrings, uint32(b.StringsOff))
	put(HdrOffRsvmap, uint32(b.RsvOff))
	put(HdrVersion, o.Version)
	put(HdrLastComp, o.LastCompVersion)
	put(HdrBootCPU, o.BootCPU)
	put(HdrSizeStrings, uint32(len(strs)))
	if hdrSize == 40 {
		put(HdrSizeStruct, uint32(len(st)))
	}
	for i, r := range o.Reservations {
		off := b.RsvOff + 16*i
		binary.BigEndian.PutUint64(data[off:], r.Address)
		binary.BigEndian.PutUint64(data[off+8:], r.Size)
	}
	copy(data[b.StructOff:], st)
	copy(data[b.StringsOff:], strs)
	b.Data = data
	return b
}

func joinPath(parent, name string) string {
	if parent == "/" {
		return "/" + name
	}
	return parent + "/" + name
}

func align(x, a int) int {
	return (x + a - 1) &^ (a - 1)
}

// Off returns the offset of the node at path, failing loudly if the blob
// has no such node.
func (b *Blob) Off(path string) int {
	off, ok := b.Offsets[path]
	if !ok {
		panic(fmt.Sprintf("fdttest: no node %q in blob", path))
	}
	return off
}

// PropOff returns the offset of the property token for name in the node at
// path.
func (b *Blob) PropOff(path, name string) int {
	off, ok := b.PropOffsets[path+":"+name]
	if !ok {
		panic(fmt.Sprintf("fdttest: no property %q in node %q", name, path))
	}
	return off
}

// Bytes returns a copy of the blob.
func (b *Blob) Bytes() []byte {
	return bytes.Clone(b.Data)
}

// WithHeader returns a copy with one header field replaced.
func (b *Blob) WithHeader(field int, v uint32) []byte {
	data := b.Bytes()
	binary.BigEndian.PutUint32(data[field:], v)
	return data
}

// WithStruct32 returns a copy with the u32 at off (relative to the
// structure block) replaced.
func (b *Blob) WithStruct32(off int, v uint32) []byte {
	data := b.Bytes()
	binary.BigEndian.PutUint32(data[b.StructOff+off:], v)
	return data
}

// Truncated returns a copy of the first n bytes.
func (b *Blob) Truncated(n int) []byte {
	return bytes.Clone(b.Data[:n])
}

// WriteFile stores data under dir/name and returns the full path.
func WriteFile(t testing.TB, dir, name string, data []byte) string {
	t.Helper()
	fn := filepath.Join(dir, name)
	if err := os.WriteFile(fn, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return fn
}

// Logger returns a debug-level logger that writes to t.Log.
func Logger(t testing.TB) *slog.Logger {
	return slog.New(slog.NewTextHandler(&logWriter{t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

type logWriter struct{ t testing.TB }

func (c *logWriter) Write(buf []byte) (int, error) {
	c.t.Log(strings.TrimSuffix(string(buf), "\n"))
	return len(buf), nil
}

func HexDump(b []byte, highlightOff int) string {
	var buf strings.Builder
	for off := 0; off < len(b); off += 16 {
		fmt.Fprintf(&buf, "%08x ", off)
		for i := off; i < off+16; i++ {
			switch {
			case i >= len(b):
				buf.WriteString("   ")
			case i == highlightOff:
				fmt.Fprintf(&buf, ">%02x", b[i])
			default:
				fmt.Fprintf(&buf, " %02x", b[i])
			}
		}
		buf.WriteString("  |")
		for i := off; i < min(off+16, len(b)); i++ {
			if b[i] >= 32 && b[i] <= 126 {
				buf.WriteByte(b[i])
			} else {
				buf.WriteByte('.')
			}
		}
		buf.WriteString("|\n")
	}
	return buf.String()
}

func BytesEq(t testing.TB, a, e []byte) bool {
	if bytes.Equal(a, e) {
		return true
	}
	off := min(len(a), len(e))
	for i := range off {
		if a[i] != e[i] {
			off = i
			break
		}
	}
	t.Helper()
	t.Errorf("** got:\n%v\nwanted:\n%v\nfirst difference offset: 0x%x (%d)", HexDump(a, off), HexDump(e, off), off, off)
	return false
}
