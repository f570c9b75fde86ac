// Package catalog keeps validated devicetree blobs in a bbolt file under
// human-chosen names. Blob bytes are stored once per BLAKE3 digest, so many
// names may share one blob.
package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/zeebo/blake3"
	"go.etcd.io/bbolt"

	"github.com/andreyvit/fdt"
)

var (
	blobsBucket = []byte("blobs")
	namesBucket = []byte("names")
)

// ErrCorrupt is returned when a stored blob no longer matches its digest.
var ErrCorrupt = errors.New("catalog: stored blob does not match its digest")

type Options struct {
	Logger *slog.Logger
	Now    func() time.Time

	// IsTesting trades durability for speed.
	IsTesting bool
	Timeout   time.Duration
}

type Catalog struct {
	bdb    *bbolt.DB
	logger *slog.Logger
	now    func() time.Time
}

// Entry describes a named blob.
type Entry struct {
	Name        string    `msgpack:"-"`
	Digest      []byte    `msgpack:"d"`
	Fingerprint uint64    `msgpack:"f"`
	Version     uint32    `msgpack:"v"`
	Size        int       `msgpack:"sz"`
	Source      string    `msgpack:"src,omitempty"`
	Added       time.Time `msgpack:"t"`
}

func (e *Entry) DigestHex() string {
	return fmt.Sprintf("%x", e.Digest)
}

func Open(path string, opt Options) (*Catalog, error) {
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	if opt.Timeout == 0 {
		opt.Timeout = 10 * time.Second
	}

	bopt := *bbolt.DefaultOptions
	bopt.Timeout = opt.Timeout
	if opt.IsTesting {
		bopt.NoSync = true
		bopt.NoFreelistSync = true
	}
	bdb, err := bbolt.Open(path, 0666, &bopt)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	err = bdb.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{blobsBucket, namesBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		bdb.Close()
		return nil, fmt.Errorf("catalog: %w", err)
	}
	return &Catalog{bdb: bdb, logger: opt.Logger, now: opt.Now}, nil
}

func (c *Catalog) Close() error {
	return c.bdb.Close()
}

// Put stores the image under name, replacing whatever name pointed to.
func (c *Catalog) Put(name string, img *fdt.Image, source string) (*Entry, error) {
	if name == "" {
		return nil, fmt.Errorf("catalog: empty name")
	}
	data := img.Bytes()
	digest := blake3.Sum256(data)
	e := &Entry{
		Name:        name,
		Digest:      digest[:],
		Fingerprint: img.Fingerprint(),
		Version:     img.Version(),
		Size:        len(data),
		Source:      source,
		Added:       c.now().UTC(),
	}
	raw, err := msgpack.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("catalog: encoding %q: %w", name, err)
	}

	var replaced []byte
	err = c.bdb.Update(func(tx *bbolt.Tx) error {
		blobs, names := tx.Bucket(blobsBucket), tx.Bucket(namesBucket)
		if old := names.Get([]byte(name)); old != nil {
			var prev Entry
			if err := decodeEntry(old, &prev); err != nil {
				return err
			}
			replaced = prev.Digest
		}
		if blobs.Get(digest[:]) == nil {
			if err := blobs.Put(digest[:], data); err != nil {
				return err
			}
		}
		if err := names.Put([]byte(name), raw); err != nil {
			return err
		}
		if replaced != nil && !bytes.Equal(replaced, digest[:]) {
			return collect(tx, replaced)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: put %q: %w", name, err)
	}
	c.logger.LogAttrs(context.Background(), slog.LevelInfo, "catalog: put",
		slog.String("name", name),
		slog.String("digest", e.DigestHex()),
		slog.Int("size", e.Size),
		slog.Bool("replaced", replaced != nil))
	return e, nil
}

// Get returns the entry for name, or an fdt.ErrNotFound error.
func (c *Catalog) Get(name string) (*Entry, error) {
	var e Entry
	err := c.bdb.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(namesBucket).Get([]byte(name))
		if raw == nil {
			return notFound(name)
		}
		return decodeEntry(raw, &e)
	})
	if err != nil {
		return nil, err
	}
	e.Name = name
	return &e, nil
}

// Load returns a validated image for name. The image owns a private copy
// of the bytes and does not need the catalog to stay open.
func (c *Catalog) Load(name string) (*fdt.Image, *Entry, error) {
	var e Entry
	var data []byte
	err := c.bdb.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(namesBucket).Get([]byte(name))
		if raw == nil {
			return notFound(name)
		}
		if err := decodeEntry(raw, &e); err != nil {
			return err
		}
		// bbolt memory is only valid inside the transaction.
		data = bytes.Clone(tx.Bucket(blobsBucket).Get(e.Digest))
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	e.Name = name

	if data == nil {
		return nil, nil, fmt.Errorf("%w: %q refers to missing blob %s", ErrCorrupt, name, e.DigestHex())
	}
	if sum := blake3.Sum256(data); !bytes.Equal(sum[:], e.Digest) {
		return nil, nil, fmt.Errorf("%w: %q, blob %s", ErrCorrupt, name, e.DigestHex())
	}
	img, err := fdt.Validate(data)
	if err != nil {
		return nil, nil, fmt.Errorf("catalog: %q: %w", name, err)
	}
	return img, &e, nil
}

// List returns all entries sorted by name.
func (c *Catalog) List() ([]*Entry, error) {
	var result []*Entry
	err := c.bdb.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(namesBucket).ForEach(func(k, v []byte) error {
			e := &Entry{Name: string(k)}
			if err := decodeEntry(v, e); err != nil {
				return err
			}
			result = append(result, e)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Delete removes name, and its blob once no other name refers to it.
// Deleting a missing name reports false without error.
func (c *Catalog) Delete(name string) (bool, error) {
	var found bool
	err := c.bdb.Update(func(tx *bbolt.Tx) error {
		names := tx.Bucket(namesBucket)
		raw := names.Get([]byte(name))
		if raw == nil {
			return nil
		}
		found = true
		var e Entry
		if err := decodeEntry(raw, &e); err != nil {
			return err
		}
		if err := names.Delete([]byte(name)); err != nil {
			return err
		}
		return collect(tx, e.Digest)
	})
	if err != nil {
		return false, fmt.Errorf("catalog: delete %q: %w", name, err)
	}
	if found {
		c.logger.LogAttrs(context.Background(), slog.LevelInfo, "catalog: deleted",
			slog.String("name", name))
	}
	return found, nil
}

// BlobCount is the number of distinct blobs stored.
func (c *Catalog) BlobCount() (int, error) {
	var n int
	err := c.bdb.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(blobsBucket).Stats().KeyN
		return nil
	})
	return n, err
}

// collect deletes the blob under digest unless a name still refers to it.
func collect(tx *bbolt.Tx, digest []byte) error {
	var used bool
	err := tx.Bucket(namesBucket).ForEach(func(_, v []byte) error {
		var e Entry
		if err := decodeEntry(v, &e); err != nil {
			return err
		}
		if bytes.Equal(e.Digest, digest) {
			used = true
		}
		return nil
	})
	if err != nil || used {
		return err
	}
	return tx.Bucket(blobsBucket).Delete(digest)
}

func decodeEntry(raw []byte, e *Entry) error {
	if err := msgpack.Unmarshal(raw, e); err != nil {
		return fmt.Errorf("catalog: decoding entry: %w", err)
	}
	return nil
}

func notFound(name string) error {
	return fdt.Wrap(fdt.ErrNotFound, nil, "no catalog entry %q", name)
}
