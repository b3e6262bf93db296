// Command genepoolctl is an example driver program over pkg/genepool,
// grounded on cmd/protogonosctl's flag.NewFlagSet subcommand-dispatch
// shape. It is not the library; it demonstrates wiring one concrete
// scenario end to end.
package main

import (
	"context"
	"fmt"
	"os"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "sentence":
		return runSentence(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: genepoolctl sentence [flags]", msg)
}
