// Package list implements "pbix list", which prints a .pbix file's table
// names without decoding any column data.
package list

import (
	"errors"
	"flag"
	"fmt"

	"github.com/pbixdm/pbixdm/cmd/pbix/root"
	"github.com/pbixdm/pbixdm/pkg/charm"
)

var List = &charm.Spec{
	Name:  "list",
	Usage: "list -codec <plugin.so> <file.pbix | s3://bucket/key>",
	Short: "print table names found in a DataModel",
	New:   New,
}

func init() {
	root.Pbix.Add(List)
}

type Command struct {
	*root.Command
	source root.SourceFlags
}

func New(parent charm.Command, f *flag.FlagSet) (charm.Command, error) {
	c := &Command{Command: parent.(*root.Command)}
	f.StringVar(&c.source.CodecPath, "codec", "", "path to the XPress9 codec plugin (.so)")
	return c, nil
}

func (c *Command) Run(args []string) error {
	ctx, cancel, err := c.Init()
	if err != nil {
		return err
	}
	defer cancel()
	if len(args) != 1 {
		return errors.New("pbix list takes a single file argument")
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
	for _, name := range result.Extractor.TableNames() {
		fmt.Println(name)
	}
	return nil
}
