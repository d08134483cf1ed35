package main

import (
	"fmt"
	"os"

	_ "github.com/pbixdm/pbixdm/cmd/pbix/decode"
	_ "github.com/pbixdm/pbixdm/cmd/pbix/describe"
	_ "github.com/pbixdm/pbixdm/cmd/pbix/list"
	"github.com/pbixdm/pbixdm/cmd/pbix/root"
)

func main() {
	if err := root.Pbix.ExecRoot(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}
