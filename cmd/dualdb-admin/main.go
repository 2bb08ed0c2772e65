// Command dualdb-admin runs one-off consistency checks and repairs against
// the configured replicas and mints admin API tokens.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// errOutOfSync makes verify exit non-zero without printing a second message.
var errOutOfSync = errors.New("tables out of sync")

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(1)
	}

	err := dispatch(os.Args[1], os.Args[2:], os.Stdout)
	switch {
	case err == nil:
	case errors.Is(err, errOutOfSync):
		os.Exit(2)
	default:
		fmt.Fprintf(os.Stderr, "dualdb-admin: %v\n", err)
		os.Exit(1)
	}
}

func dispatch(command string, args []string, out io.Writer) error {
	switch command {
	case "verify":
		return runVerify(args, out)
	case "repair":
		return runRepair(args, out)
	case "stats":
		return runStats(args, out)
	case "token":
		return runToken(args, out)
	case "help", "--help", "-h":
		printUsage(out)
		return nil
	default:
		printUsage(out)
		return fmt.Errorf("unknown command: %s", command)
	}
}

func printUsage(w io.Writer) {
	usage := `dualdb-admin - administrative tools for the dual-database load balancer

Usage:
  dualdb-admin <command> [options]

Available Commands:
  verify [table...]   Compare tables across primary and secondary (default: sync tables)
  repair <table>      Rebuild a table on the secondary from the primary
  stats               Probe both replicas and print health and load split
  token               Mint an admin token for the HTTP API
  help                Show this help message

Configuration is read from DUALDB_CONFIG and the environment.
`
	fmt.Fprint(w, usage)
}
