// Command seqsweep compiles multi-axis sweep definitions into sequencer
// programs, plots their setpoints, stores plans and serves the compiler over
// gRPC.
package main

import (
	"fmt"
	"io"
	"log"
	"os"
)

const (
	defaultDB     = "seqsweep.db"
	defaultListen = ":50051"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		log.Fatalf("seqsweep: %v", err)
	}
}

func run(args []string, stdout io.Writer) error {
	if len(args) < 1 {
		printUsage(stdout)
		return fmt.Errorf("missing command")
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "compile":
		return runCompile(rest, stdout)
	case "plot":
		return runPlot(rest, stdout)
	case "plans":
		return runPlans(rest, stdout)
	case "migrate":
		return runMigrate(rest, stdout)
	case "serve":
		return runServe(rest, stdout)
	case "feed":
		return runFeed(rest, stdout)
	case "version":
		return runVersion(stdout)
	case "help", "-h", "--help":
		printUsage(stdout)
		return nil
	default:
		printUsage(stdout)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: seqsweep <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  compile   Compile a sweep definition and print its plan")
	fmt.Fprintln(w, "  plot      Plot the setpoints of every axis")
	fmt.Fprintln(w, "  plans     List, show or delete stored plans")
	fmt.Fprintln(w, "  migrate   Manage the plan database schema")
	fmt.Fprintln(w, "  serve     Serve the compiler over gRPC")
	fmt.Fprintln(w, "  feed      Feed input streams over a serial link")
	fmt.Fprintln(w, "  version   Print build information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run 'seqsweep <command> -h' for command flags.")
}
