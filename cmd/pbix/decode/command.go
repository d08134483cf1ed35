// Package decode implements "pbix decode", which decodes one table's
// columns and writes them to stdout as JSON, showing a live per-column
// progress line on stderr while it works.
package decode

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/pbixdm/pbixdm/cmd/pbix/root"
	"github.com/pbixdm/pbixdm/pkg/charm"
	"github.com/pbixdm/pbixdm/pkg/display"
)

var Decode = &charm.Spec{
	Name:  "decode",
	Usage: "decode -codec <plugin.so> -table <name> <file.pbix | s3://bucket/key>",
	Short: "decode one table's columns and print them as JSON",
	New:   New,
}

func init() {
	root.Pbix.Add(Decode)
}

type Command struct {
	*root.Command
	source root.SourceFlags
	table  string
	quiet  bool
}

func New(parent charm.Command, f *flag.FlagSet) (charm.Command, error) {
	c := &Command{Command: parent.(*root.Command)}
	f.StringVar(&c.source.CodecPath, "codec", "", "path to the XPress9 codec plugin (.so)")
	f.StringVar(&c.table, "table", "", "table to decode")
	f.BoolVar(&c.quiet, "q", false, "suppress the progress display")
	return c, nil
}

func (c *Command) Run(args []string) error {
	ctx, cancel, err := c.Init()
	if err != nil {
		return err
	}
	defer cancel()
	if len(args) != 1 {
		return errors.New("pbix decode takes a single file argument")
	}
	if c.table == "" {
		return errors.New("pbix decode requires -table")
	}
	c.source.Path = args[0]

	logger, err := c.Logger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	result, err := root.Load(ctx, c.source, logger, nil)
	if err != nil {
		return err
	}
	if !contains(result.Extractor.TableNames(), c.table) {
		if hint := root.SuggestTable(c.table, result.Extractor.TableNames()); hint != "" {
			return fmt.Errorf("pbix decode: no table %q, did you mean %q?", c.table, hint)
		}
		return fmt.Errorf("pbix decode: no table %q", c.table)
	}

	p := &progress{}
	var disp *display.Display
	if !c.quiet {
		disp = display.New(p, 100*time.Millisecond)
		go disp.Run()
	}

	td, outcome, err := result.Extractor.GetTableStreaming(ctx, c.table, p.update)
	if disp != nil {
		disp.Close()
	}
	if err != nil {
		return err
	}
	if outcome != 0 {
		return fmt.Errorf("pbix decode: %s: cancelled", c.table)
	}

	enc := json.NewEncoder(os.Stdout)
	return enc.Encode(td)
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

// progress renders the column currently being decoded as a Displayer the
// uilive-backed display package refreshes in place.
type progress struct {
	mu     sync.Mutex
	index  int
	total  int
	column string
	done   bool
}

func (p *progress) update(colIndex, total int, columnName string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.index, p.total, p.column = colIndex, total, columnName
}

func (p *progress) Display(w io.Writer) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(w, "decoding column %d/%d: %s\n", p.index+1, p.total, p.column)
	return !p.done
}
