package main

import (
	"fmt"
	"io"
	"iter"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/meigma/databin"
	"github.com/meigma/databin/internal/namehash"
	"github.com/meigma/databin/manifest"
)

// newFlags returns a flag set for a subcommand that reports errors as
// usage errors.
func newFlags(e *env, name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(e.stderr)
	return fs
}

func parse(fs *pflag.FlagSet, args []string, want int) ([]string, error) {
	if err := fs.Parse(args); err != nil {
		return nil, usagef("%s: %v", fs.Name(), err)
	}
	rest := fs.Args()
	if want >= 0 && len(rest) != want {
		return nil, usagef("%s: expected %d arguments, got %d", fs.Name(), want, len(rest))
	}
	return rest, nil
}

func runList(e *env, args []string) error {
	fs := newFlags(e, "list")
	digest := fs.Bool("digest", false, "print the blake3 digest of each payload")
	fileList := fs.Bool("file-list", false, "print the legacy file list format")
	rest, err := parse(fs, args, 1)
	if err != nil {
		return err
	}

	a, err := e.open(rest[0])
	if err != nil {
		return err
	}
	if *fileList {
		return a.WriteFileList(e.stdout)
	}
	return writeEntries(e.stdout, a.Entries(), *digest)
}

func writeEntries(w io.Writer, entries iter.Seq[*databin.Entry], digest bool) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	header := "ID\tHASH\tKIND\tSIZE\tFLAGS\tNAME"
	if digest {
		header += "\tDIGEST"
	}
	fmt.Fprintln(tw, header)

	for entry := range entries {
		var flags []string
		if entry.Compressed() {
			flags = append(flags, "z")
		}
		if entry.Collision() {
			flags = append(flags, "c")
		}
		flagText := strings.Join(flags, "")
		if flagText == "" {
			flagText = "-"
		}
		fmt.Fprintf(tw, "%d\t%08x\t%s\t%d\t%s\t%s",
			entry.ID(), entry.NameHash(), entry.Kind(), len(entry.RawBytes()), flagText, entry.DisplayName())
		if digest {
			data, err := entry.Bytes()
			if err != nil {
				return fmt.Errorf("entry %d: %w", entry.ID(), err)
			}
			fmt.Fprintf(tw, "\t%s", manifest.Sum(data))
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}

func runLookup(e *env, args []string) error {
	fs := newFlags(e, "lookup")
	rest, err := parse(fs, args, -1)
	if err != nil {
		return err
	}
	if len(rest) < 2 {
		return usagef("lookup: expected ARCHIVE and at least one key")
	}

	a, err := e.open(rest[0])
	if err != nil {
		return err
	}

	var found []*databin.Entry
	missing := 0
	for _, key := range rest[1:] {
		matches, err := lookup(a, key)
		if err != nil {
			return err
		}
		if len(matches) == 0 {
			fmt.Fprintf(e.stderr, "%s: not found\n", key)
			missing++
			continue
		}
		found = append(found, matches...)
	}

	if len(found) > 0 {
		if err := writeEntries(e.stdout, slices.Values(found), false); err != nil {
			return err
		}
	}
	if missing > 0 {
		return fmt.Errorf("%d of %d keys not found", missing, len(rest)-1)
	}
	return nil
}

// lookup resolves a key of the form 0xHASH to every entry with that hash,
// and any other key to the entry at that path.
func lookup(a *databin.Archive, key string) ([]*databin.Entry, error) {
	if hex, ok := strings.CutPrefix(strings.ToLower(key), "0x"); ok {
		hash, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return nil, usagef("lookup: invalid hash %q", key)
		}
		return a.FindByHash(uint32(hash)), nil
	}
	if entry, ok := a.FindByPath(key); ok {
		return []*databin.Entry{entry}, nil
	}
	return nil, nil
}

func runHash(e *env, args []string) error {
	fs := newFlags(e, "hash")
	rest, err := parse(fs, args, -1)
	if err != nil {
		return err
	}
	if len(rest) == 0 {
		return usagef("hash: expected at least one path")
	}

	tw := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
	for _, path := range rest {
		id := namehash.FileID(path)
		fmt.Fprintf(tw, "%08x\t%s\t%s\n", namehash.Hash(id), id, path)
	}
	return tw.Flush()
}

func runExtract(e *env, args []string) error {
	fs := newFlags(e, "extract")
	overwrite := fs.Bool("overwrite", false, "replace files that already exist")
	workers := fs.Int("workers", e.cfg.Workers(), "concurrent file writes")
	rest, err := parse(fs, args, 2)
	if err != nil {
		return err
	}

	a, err := e.open(rest[0])
	if err != nil {
		return err
	}
	res, err := manifest.Extract(e.ctx, a, rest[1],
		manifest.WithWorkers(*workers),
		manifest.WithOverwrite(*overwrite),
		manifest.WithLogger(e.logger),
	)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "extracted %d entries to %s (%d written, %d skipped, %d bytes)\n",
		len(res.Manifest.Entries), rest[1], res.Stats.Files, res.Stats.Skipped, res.Stats.Bytes)
	return nil
}

func runPack(e *env, args []string) error {
	fs := newFlags(e, "pack")
	strict := fs.Bool("strict", false, "fail when a file differs from its extracted digest")
	rest, err := parse(fs, args, 2)
	if err != nil {
		return err
	}

	opts, err := e.archiveOptions()
	if err != nil {
		return err
	}
	res, err := manifest.Pack(rest[0],
		manifest.WithStrict(*strict),
		manifest.WithLogger(e.logger),
		manifest.WithArchiveOptions(opts...),
	)
	if err != nil {
		return err
	}
	if err := res.Archive.SaveFile(rest[1]); err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "packed %d entries into %s (%d changed)\n",
		res.Archive.Len(), rest[1], len(res.Changed))
	return nil
}

func runRepack(e *env, args []string) error {
	fs := newFlags(e, "repack")
	level := fs.Int("level", e.cfg.CompressionLevel, "zlib compression level (-2 to 9)")
	rest, err := parse(fs, args, 2)
	if err != nil {
		return err
	}
	if *level < -2 || *level > 9 {
		return usagef("repack: --level must be between -2 and 9")
	}

	a, err := e.open(rest[0], databin.WithCompressionLevel(*level))
	if err != nil {
		return err
	}
	e.logger.Debug("repacking", "entries", a.Len(), "level", *level)
	if err := a.SaveFile(rest[1]); err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "wrote %d entries to %s\n", a.Len(), rest[1])
	return nil
}
