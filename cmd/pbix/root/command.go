// Package root holds the pbix command's top-level Spec and the flags shared
// by every subcommand.
package root

import (
	"context"
	"flag"

	"github.com/pbixdm/pbixdm/cli"
	"github.com/pbixdm/pbixdm/cli/logflags"
	"github.com/pbixdm/pbixdm/pkg/charm"
	"go.uber.org/zap"
)

var Pbix = &charm.Spec{
	Name:  "pbix",
	Usage: "pbix [global options] command [options] [arguments...]",
	Short: "pbix decodes Power BI DataModel streams",
	Long: `
The pbix command decompresses and decodes the DataModel stream embedded in a
.pbix file: XPress9 decompression, ABF container parsing, the embedded
SQLite metadata database, and VertiPaq column decode. Use "pbix decode" to
dump a table's rows, "pbix list" to print table names, and "pbix describe"
to print the semantic model without decoding any column data.
`,
	New: New,
}

type Command struct {
	charm.Command
	cli      cli.Flags
	logflags logflags.Flags
}

func New(parent charm.Command, f *flag.FlagSet) (charm.Command, error) {
	c := &Command{}
	c.cli.SetFlags(f)
	c.logflags.SetFlags(f)
	return c, nil
}

// Init applies the global cli flags (version, profiling) and returns a
// context that is cancelled on SIGINT/SIGPIPE/SIGTERM. It does not open
// the logger; Logger does that.
func (c *Command) Init() (context.Context, context.CancelFunc, error) {
	return c.cli.Init()
}

// Logger opens the logger described by the global -log.* flags.
func (c *Command) Logger() (*zap.Logger, error) {
	return c.logflags.Open()
}

func (c *Command) Run(args []string) error {
	return Pbix.Exec(c, []string{"help"})
}
