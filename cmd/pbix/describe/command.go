// Package describe implements "pbix describe", which prints the parsed
// semantic model (tables, columns, relationships, roles) as JSON. With
// -cardinality it also decodes every table and reports each column's
// approximate distinct-value count via a HyperLogLog sketch, a cheap way
// to get a cardinality sense without keeping every decoded value around.
package describe

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/axiomhq/hyperloglog"

	"github.com/pbixdm/pbixdm/cmd/pbix/root"
	"github.com/pbixdm/pbixdm/pkg/charm"
)

var Describe = &charm.Spec{
	Name:  "describe",
	Usage: "describe [-cardinality] -codec <plugin.so> <file.pbix | s3://bucket/key>",
	Short: "print the semantic model as JSON",
	New:   New,
}

func init() {
	root.Pbix.Add(Describe)
}

type Command struct {
	*root.Command
	source      root.SourceFlags
	cardinality bool
}

func New(parent charm.Command, f *flag.FlagSet) (charm.Command, error) {
	c := &Command{Command: parent.(*root.Command)}
	f.StringVar(&c.source.CodecPath, "codec", "", "path to the XPress9 codec plugin (.so)")
	f.BoolVar(&c.cardinality, "cardinality", false, "decode every table and report approximate per-column distinct-value counts")
	return c, nil
}

func (c *Command) Run(args []string) error {
	ctx, cancel, err := c.Init()
	if err != nil {
		return err
	}
	defer cancel()
	if len(args) != 1 {
		return errors.New("pbix describe takes a single file argument")
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
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result.Model); err != nil {
		return err
	}
	if !c.cardinality {
		return nil
	}

	for _, name := range result.Extractor.TableNames() {
		td, err := result.Extractor.GetTable(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "\n%s (%d rows):\n", name, td.RowCount)
		for i, col := range td.Columns {
			sk := hyperloglog.New()
			for _, v := range td.ColumnData[i] {
				sk.Insert([]byte(fmt.Sprintf("%v", v)))
			}
			fmt.Fprintf(os.Stdout, "  %-32s ~%d distinct\n", col, sk.Estimate())
		}
		if td.Skipped != "" {
			fmt.Fprintf(os.Stdout, "  skipped: %s\n", td.Skipped)
		}
	}
	return nil
}
