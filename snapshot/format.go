package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"
)

type Format int

const (
	MsgPack Format = iota
	JSON
	CBOR
	YAML
)

var formatNames = [...]string{
	MsgPack: "msgpack",
	JSON:    "json",
	CBOR:    "cbor",
	YAML:    "yaml",
}

func (f Format) String() string {
	if f >= 0 && int(f) < len(formatNames) {
		return formatNames[f]
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

func Formats() []Format {
	return []Format{MsgPack, JSON, CBOR, YAML}
}

func ParseFormat(s string) (Format, error) {
	for i, name := range formatNames {
		if name == s {
			return Format(i), nil
		}
	}
	return 0, fmt.Errorf("unknown snapshot format %q", s)
}

// Output of the CBOR encoder is deterministic: the same tree always
// produces the same bytes.
var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error
	cborEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("snapshot: CBOR encoder initialization failed: " + err.Error())
	}
	cborDec, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("snapshot: CBOR decoder initialization failed: " + err.Error())
	}
}

func (f Format) Encode(w io.Writer, t *Tree) error {
	switch f {
	case MsgPack:
		enc := msgpack.GetEncoder()
		defer msgpack.PutEncoder(enc)
		enc.Reset(w)
		enc.SetSortMapKeys(true)
		enc.SetOmitEmpty(true)
		return enc.Encode(t)
	case JSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(t)
	case CBOR:
		return cborEnc.NewEncoder(w).Encode(t)
	case YAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(t); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported snapshot format %v", f)
	}
}

func (f Format) Marshal(t *Tree) ([]byte, error) {
	var buf bytes.Buffer
	if err := f.Encode(&buf, t); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (f Format) Unmarshal(data []byte) (*Tree, error) {
	t := new(Tree)
	var err error
	switch f {
	case MsgPack:
		dec := msgpack.GetDecoder()
		dec.Reset(bytes.NewReader(data))
		err = dec.Decode(t)
		msgpack.PutDecoder(dec)
	case JSON:
		err = json.Unmarshal(data, t)
	case CBOR:
		err = cborDec.Unmarshal(data, t)
	case YAML:
		err = yaml.Unmarshal(data, t)
	default:
		return nil, fmt.Errorf("unsupported snapshot format %v", f)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %v snapshot: %w", f, err)
	}
	return t, nil
}
