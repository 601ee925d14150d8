// Command segbuild builds immutable tern index segments from sorted
// posting dumps.
//
// Each input file is a gob stream of postings.Posting values sorted by
// (index, field, term, value). By default all inputs are merged into a
// single segment; with -split each input becomes its own segment and
// builds run concurrently.
package main

import (
	"bufio"
	"encoding/gob"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/TernDB/tern/pkg/common/log"
	"github.com/TernDB/tern/pkg/postings"
	"github.com/TernDB/tern/pkg/segment"
)

var (
	outDir   = flag.String("out", ".", "directory segments are created in")
	baseName = flag.String("name", "segment", "base name for segment artifacts")
	split    = flag.Bool("split", false, "build one segment per input instead of merging")
	parallel = flag.Int("parallel", 4, "concurrent builds in split mode")
	noSync   = flag.Bool("no-sync", false, "skip fsync before finalizing artifacts")
	verbose  = flag.Bool("v", false, "enable debug logging")
)

func main() {
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}
	if *verbose {
		log.SetLevel(log.LevelDebug)
	}

	if err := run(flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "segbuild: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: segbuild [flags] dump-file...\n\n")
	fmt.Fprintf(os.Stderr, "Each dump file is a gob stream of postings sorted by\n")
	fmt.Fprintf(os.Stderr, "(index, field, term, value).\n\n")
	flag.PrintDefaults()
}

func run(inputs []string) error {
	opts := segment.DefaultWriterOptions()
	opts.SyncOnFinalize = !*noSync

	if *split {
		return buildSplit(inputs, opts)
	}
	return buildMerged(inputs, opts)
}

// buildMerged merges every input into one segment.
func buildMerged(inputs []string, opts segment.WriterOptions) error {
	dumps := make([]*dumpIterator, 0, len(inputs))
	sources := make([]postings.Iterator, 0, len(inputs))
	for _, path := range inputs {
		d, err := openDump(path)
		if err != nil {
			return err
		}
		defer d.Close()
		dumps = append(dumps, d)
		sources = append(sources, d)
	}

	root := filepath.Join(*outDir, *baseName)
	if err := buildOne(root, postings.NewMergeIterator(sources), opts); err != nil {
		return err
	}
	for _, d := range dumps {
		if err := d.Err(); err != nil {
			// The segment was finalized from a truncated stream; drop it.
			removeSegment(root)
			return fmt.Errorf("input %s ended early: %w", d.path, err)
		}
	}
	return nil
}

// buildSplit builds one segment per input, a few at a time.
func buildSplit(inputs []string, opts segment.WriterOptions) error {
	var g errgroup.Group
	g.SetLimit(*parallel)
	for i, path := range inputs {
		root := filepath.Join(*outDir, fmt.Sprintf("%s-%06d", *baseName, i))
		g.Go(func() error {
			d, err := openDump(path)
			if err != nil {
				return err
			}
			defer d.Close()
			if err := buildOne(root, d, opts); err != nil {
				return err
			}
			if err := d.Err(); err != nil {
				removeSegment(root)
				return fmt.Errorf("input %s ended early: %w", path, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// buildOne drives one writer pass over itr and logs the result.
func buildOne(root string, itr postings.Iterator, opts segment.WriterOptions) error {
	seg := segment.NewSegment(root)
	w, err := segment.NewWriter(seg, opts)
	if err != nil {
		return err
	}
	if err := w.WriteFrom(itr); err != nil {
		return fmt.Errorf("failed to build %s: %w", root, err)
	}
	stats := w.Stats()
	log.Info("built %s: %d postings in, %d keys across %d blocks, %d data bytes",
		root, stats.Postings, stats.Keys, stats.Blocks, stats.DataBytes)
	if stats.Duplicates > 0 {
		log.Debug("dropped %d consecutive duplicates for %s", stats.Duplicates, root)
	}
	return nil
}

func removeSegment(root string) {
	seg := segment.NewSegment(root)
	os.Remove(seg.DataPath())
	os.Remove(seg.OffsetsPath())
}

// dumpIterator streams postings out of one gob dump file.
type dumpIterator struct {
	path string
	file *os.File
	dec  *gob.Decoder
	err  error
}

func openDump(path string) (*dumpIterator, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	return &dumpIterator{
		path: path,
		file: file,
		dec:  gob.NewDecoder(bufio.NewReader(file)),
	}, nil
}

// Next implements postings.Iterator. A decode failure ends the stream; the
// failure itself is reported by Err.
func (d *dumpIterator) Next() (postings.Posting, bool) {
	if d.err != nil {
		return postings.Posting{}, false
	}
	var p postings.Posting
	if err := d.dec.Decode(&p); err != nil {
		if err != io.EOF {
			d.err = err
		}
		return postings.Posting{}, false
	}
	return p, true
}

// Err returns the first decode failure, or nil after a clean end of
// stream.
func (d *dumpIterator) Err() error {
	return d.err
}

func (d *dumpIterator) Close() error {
	return d.file.Close()
}
