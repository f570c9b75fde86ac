// fdtq queries devicetree blobs from the command line.
//
// The blob comes from --file (plain or gzip/zstd/lz4 compressed) or from a
// catalog entry (--catalog DB --name NAME). Every query prints one result
// per line, so the output composes with the usual shell tools.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/andreyvit/fdt"
	"github.com/andreyvit/fdt/catalog"
	"github.com/andreyvit/fdt/dtbfile"
	"github.com/andreyvit/fdt/snapshot"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		var ue usageError
		if errors.As(err, &ue) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return usageError{fmt.Sprintf(format, args...)}
}

type config struct {
	file        string
	catalogPath string
	name        string
	useMmap     bool
	requireName bool
	verbose     bool

	all     bool
	max     bool
	format  string
	subtree string
	flags   string
	source  string

	stdout io.Writer
	logger *slog.Logger
}

func run(args []string, stdout, stderr io.Writer) error {
	var cfg config
	flagSet := pflag.NewFlagSet("fdtq", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVarP(&cfg.file, "file", "f", "", "devicetree blob to query")
	flagSet.StringVar(&cfg.catalogPath, "catalog", "", "catalog database")
	flagSet.StringVarP(&cfg.name, "name", "n", "", "catalog entry to query instead of --file")
	flagSet.BoolVar(&cfg.useMmap, "mmap", false, "map the file instead of reading it")
	flagSet.BoolVar(&cfg.requireName, "require-dtb-name", false, "reject files whose name does not end in dtb")
	flagSet.BoolVarP(&cfg.verbose, "verbose", "v", false, "log loader and catalog activity")
	flagSet.BoolVar(&cfg.all, "all", false, "compat: print every match instead of the first")
	flagSet.BoolVar(&cfg.max, "max", false, "phandle: print the highest phandle in the tree")
	flagSet.StringVar(&cfg.format, "format", "json", "export: msgpack, json, cbor or yaml")
	flagSet.StringVar(&cfg.subtree, "subtree", "", "export: only the subtree at this path")
	flagSet.StringVar(&cfg.flags, "dump", "header,reservations,properties", "dump: sections to include (header, reservations, properties, offsets, all)")
	flagSet.StringVar(&cfg.source, "source", "", "catalog put: free-form note on where the blob came from")
	flagSet.Usage = func() { printHelp(stderr, flagSet) }

	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return usageError{err.Error()}
	}

	level := slog.LevelWarn
	if cfg.verbose {
		level = slog.LevelDebug
	}
	cfg.logger = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	cfg.stdout = stdout

	rest := flagSet.Args()
	if len(rest) == 0 {
		printHelp(stderr, flagSet)
		return usagef("missing command")
	}
	cmd, cmdArgs := rest[0], rest[1:]
	if cmd == "catalog" {
		return runCatalog(&cfg, cmdArgs)
	}

	img, err := cfg.open()
	if err != nil {
		return err
	}
	defer img.Close()
	return runQuery(&cfg, img, cmd, cmdArgs)
}

func (cfg *config) open() (*fdt.Image, error) {
	switch {
	case cfg.name != "":
		c, err := cfg.openCatalog()
		if err != nil {
			return nil, err
		}
		defer c.Close()
		img, _, err := c.Load(cfg.name)
		return img, err
	case cfg.file != "":
		return dtbfile.Load(cfg.file, dtbfile.Options{
			RequireDTBName: cfg.requireName,
			Mmap:           cfg.useMmap,
			Logger:         cfg.logger,
		})
	default:
		return nil, usagef("specify --file or --name")
	}
}

func (cfg *config) openCatalog() (*catalog.Catalog, error) {
	if cfg.catalogPath == "" {
		return nil, usagef("--catalog is required")
	}
	return catalog.Open(cfg.catalogPath, catalog.Options{Logger: cfg.logger})
}

func (cfg *config) println(args ...any) {
	fmt.Fprintln(cfg.stdout, args...)
}

func runQuery(cfg *config, img *fdt.Image, cmd string, args []string) error {
	arg := func() (string, error) {
		if len(args) != 1 {
			return "", usagef("%s takes exactly one argument", cmd)
		}
		return args[0], nil
	}

	switch cmd {
	case "info":
		return printInfo(cfg, img)

	case "props":
		a, err := arg()
		if err != nil {
			return err
		}
		off, err := nodeRef(img, a)
		if err != nil {
			return err
		}
		props, err := img.PropertiesAt(off)
		if err != nil {
			return err
		}
		for name, v := range props.All() {
			cfg.println(name, "=", v.String())
		}
		return nil

	case "offset":
		a, err := arg()
		if err != nil {
			return err
		}
		off, err := img.OffsetForPath(a)
		if err != nil {
			return err
		}
		cfg.println(off)
		return nil

	case "path", "name":
		a, err := arg()
		if err != nil {
			return err
		}
		off, err := parseOffset(a)
		if err != nil {
			return err
		}
		var s string
		if cmd == "path" {
			s, err = img.PathForOffset(off)
		} else {
			s, err = img.NameForOffset(off)
		}
		if err != nil {
			return err
		}
		cfg.println(s)
		return nil

	case "compat":
		a, err := arg()
		if err != nil {
			return err
		}
		if !cfg.all {
			off, err := img.OffsetByCompatible(a)
			if err != nil {
				return err
			}
			cfg.println(off)
			return nil
		}
		offs, err := img.OffsetsByCompatible(a)
		if err != nil {
			return err
		}
		for _, off := range offs {
			if path, err := img.PathForOffset(off); err == nil {
				cfg.println(off, path)
			} else {
				cfg.println(off)
			}
		}
		return nil

	case "phandle":
		if cfg.max {
			ph, err := img.MaxPhandle()
			if err != nil {
				return err
			}
			cfg.println(fmt.Sprintf("0x%x", ph))
			return nil
		}
		a, err := arg()
		if err != nil {
			return err
		}
		off, err := nodeRef(img, a)
		if err != nil {
			return err
		}
		ph, ok := img.PhandleAt(off)
		if !ok {
			return fdt.Wrap(fdt.ErrNotFound, nil, "node at %d has no phandle", off)
		}
		cfg.println(fmt.Sprintf("0x%x", ph))
		return nil

	case "alias":
		a, err := arg()
		if err != nil {
			return err
		}
		target, ok := img.AliasTarget(a)
		if !ok {
			return fdt.Wrap(fdt.ErrNotFound, nil, "no alias %q", a)
		}
		cfg.println(target)
		return nil

	case "dump":
		flags, err := parseDumpFlags(cfg.flags)
		if err != nil {
			return err
		}
		s, err := img.Dump(flags)
		if err != nil {
			return err
		}
		fmt.Fprint(cfg.stdout, s)
		return nil

	case "export":
		f, err := snapshot.ParseFormat(cfg.format)
		if err != nil {
			return usageError{err.Error()}
		}
		var tree *snapshot.Tree
		if cfg.subtree != "" {
			tree, err = snapshot.BuildSubtree(img, cfg.subtree)
		} else {
			tree, err = snapshot.Build(img)
		}
		if err != nil {
			return err
		}
		return f.Encode(cfg.stdout, tree)

	default:
		return usagef("unknown command %q", cmd)
	}
}

// nodeRef accepts a numeric offset, a path or an alias.
func nodeRef(img *fdt.Image, s string) (int, error) {
	if v, err := strconv.ParseInt(s, 0, 0); err == nil {
		return int(v), nil
	}
	return img.OffsetForPath(s)
}

func parseOffset(s string) (int, error) {
	v, err := strconv.ParseInt(s, 0, 0)
	if err != nil {
		return 0, usagef("invalid offset %q", s)
	}
	return int(v), nil
}

func parseDumpFlags(s string) (fdt.DumpFlags, error) {
	var f fdt.DumpFlags
	for _, item := range strings.Split(s, ",") {
		switch strings.TrimSpace(item) {
		case "":
		case "header":
			f |= fdt.DumpHeader
		case "reservations":
			f |= fdt.DumpReservations
		case "properties":
			f |= fdt.DumpProperties
		case "offsets":
			f |= fdt.DumpOffsets
		case "all":
			f |= fdt.DumpAll
		default:
			return 0, usagef("unknown dump section %q", item)
		}
	}
	return f, nil
}

func printInfo(cfg *config, img *fdt.Image) error {
	st, err := img.Stats()
	if err != nil {
		return err
	}
	w := cfg.stdout
	fmt.Fprintf(w, "magic:        0x%x\n", img.Magic())
	fmt.Fprintf(w, "version:      %d (last compatible %d)\n", img.Version(), img.LastCompatibleVersion())
	fmt.Fprintf(w, "header size:  %d\n", img.HeaderSize())
	fmt.Fprintf(w, "total size:   %d\n", img.TotalSize())
	fmt.Fprintf(w, "boot cpu:     %d\n", img.BootCPUID())
	fmt.Fprintf(w, "fingerprint:  %016x\n", img.Fingerprint())
	fmt.Fprintf(w, "nodes:        %d (max depth %d)\n", st.Nodes, st.MaxDepth)
	fmt.Fprintf(w, "properties:   %d (%d value bytes)\n", st.Properties, st.ValueBytes)
	fmt.Fprintf(w, "phandles:     %d\n", st.Phandles)
	fmt.Fprintf(w, "reservations: %d\n", st.Reservations)
	return nil
}

func runCatalog(cfg *config, args []string) error {
	if len(args) == 0 {
		return usagef("catalog needs a subcommand: put, get, list or rm")
	}
	c, err := cfg.openCatalog()
	if err != nil {
		return err
	}
	defer c.Close()

	sub, args := args[0], args[1:]
	name := func() (string, error) {
		if len(args) != 1 {
			return "", usagef("catalog %s takes exactly one name", sub)
		}
		return args[0], nil
	}
	switch sub {
	case "put":
		n, err := name()
		if err != nil {
			return err
		}
		if cfg.file == "" {
			return usagef("catalog put needs --file")
		}
		img, err := dtbfile.Load(cfg.file, dtbfile.Options{RequireDTBName: cfg.requireName, Logger: cfg.logger})
		if err != nil {
			return err
		}
		defer img.Close()
		source := cfg.source
		if source == "" {
			source = cfg.file
		}
		e, err := c.Put(n, img, source)
		if err != nil {
			return err
		}
		printEntry(cfg, e)
		return nil
	case "get":
		n, err := name()
		if err != nil {
			return err
		}
		e, err := c.Get(n)
		if err != nil {
			return err
		}
		printEntry(cfg, e)
		return nil
	case "list":
		entries, err := c.List()
		if err != nil {
			return err
		}
		for _, e := range entries {
			printEntry(cfg, e)
		}
		return nil
	case "rm":
		n, err := name()
		if err != nil {
			return err
		}
		found, err := c.Delete(n)
		if err != nil {
			return err
		}
		if !found {
			return fdt.Wrap(fdt.ErrNotFound, nil, "no catalog entry %q", n)
		}
		return nil
	default:
		return usagef("unknown catalog subcommand %q", sub)
	}
}

func printEntry(cfg *config, e *catalog.Entry) {
	fmt.Fprintf(cfg.stdout, "%s\t%s\tv%d\t%d\t%s\n", e.Name, e.DigestHex()[:16], e.Version, e.Size, e.Source)
}

func printHelp(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(w, `fdtq queries devicetree blobs.

Usage:
  fdtq -f FILE COMMAND [ARG]
  fdtq --catalog DB -n NAME COMMAND [ARG]
  fdtq --catalog DB catalog put|get|list|rm [NAME]

Commands:
  info              header fields and tree statistics
  props PATH|OFF    properties of a node
  offset PATH       node offset for a path or alias
  path OFF          full path of the node at an offset
  name OFF          name of the node at an offset
  compat STRING     first (or --all) node compatible with STRING
  phandle PATH|OFF  phandle of a node (--max for the highest one)
  alias NAME        target path of an alias
  dump              DTS-like listing
  export            decoded tree as msgpack, json, cbor or yaml

Flags:
%s`, flagSet.FlagUsages())
}
