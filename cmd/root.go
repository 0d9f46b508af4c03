// Package cmd implements the ordo command line.
package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/nibzard/ordo/internal/config"
)

// Version is set at build time.
var Version = "dev"

// Run is the main entry point for the CLI.
func Run(ctx context.Context, args []string) error {
	return run(ctx, args, os.Stdout)
}

func run(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("ordo", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Usage = func() {
		printUsage(fs, out)
	}

	var showHelp, showVersion bool
	fs.BoolVar(&showHelp, "help", false, "Show help")
	fs.BoolVar(&showHelp, "h", false, "Show help (shorthand)")
	fs.BoolVar(&showVersion, "version", false, "Show version")
	fs.BoolVar(&showVersion, "v", false, "Show version (shorthand)")

	cws, err := config.LoadWithSources(fs, args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			printUsage(fs, out)
			return nil
		}
		return err
	}

	if showHelp {
		printUsage(fs, out)
		return nil
	}
	if showVersion {
		return versionCommand(out)
	}

	command := "ls"
	rest := fs.Args()
	if len(rest) > 0 {
		command = rest[0]
		rest = rest[1:]
	}

	a := newApp(cws, out)
	defer a.close()

	switch command {
	case "add":
		return a.addCommand(ctx, rest)
	case "ls", "list":
		return a.lsCommand(ctx, rest)
	case "mv", "move":
		return a.mvCommand(ctx, rest)
	case "done":
		return a.doneCommand(ctx, rest)
	case "edit":
		return a.editCommand(ctx, rest)
	case "rm", "delete":
		return a.rmCommand(ctx, rest)
	case "admin":
		return a.adminCommand(ctx, rest)
	case "tui":
		return a.tuiCommand(ctx, rest)
	case "serve":
		return a.serveCommand(ctx, rest)
	case "doctor":
		return a.doctorCommand(ctx, rest)
	case "config":
		return a.configCommand(rest)
	case "tail":
		return a.tailCommand(ctx, rest)
	case "version":
		return versionCommand(out)
	case "help":
		printUsage(fs, out)
		return nil
	default:
		printUsage(fs, out)
		return fmt.Errorf("unknown command: %s", command)
	}
}

// versionCommand prints the version.
func versionCommand(w io.Writer) error {
	fmt.Fprintf(w, "ordo version %s\n", Version)
	return nil
}

func printUsage(fs *flag.FlagSet, w io.Writer) {
	fmt.Fprintln(w, "Ordo - a personal task list you can reorder")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  ordo [global options] [command] [options]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  add <title>            Add a task (last by default)")
	fmt.Fprintln(w, "  ls                     List tasks (default command)")
	fmt.Fprintln(w, "  mv <id> <position>     Move a task to a 1-based position")
	fmt.Fprintln(w, "  done <id>              Toggle a task done")
	fmt.Fprintln(w, "  edit <id>              Change task fields")
	fmt.Fprintln(w, "  rm <id>[,<id>...]      Delete tasks")
	fmt.Fprintln(w, "  admin users            List users with task counts")
	fmt.Fprintln(w, "  admin rebalance        Respace a user's order indexes")
	fmt.Fprintln(w, "  tui                    Launch the terminal board")
	fmt.Fprintln(w, "  serve                  Serve the HTTP API")
	fmt.Fprintln(w, "  doctor                 Check store, task file and config")
	fmt.Fprintln(w, "  config [example]       Show the resolved configuration")
	fmt.Fprintln(w, "  tail                   Tail the latest server log")
	fmt.Fprintln(w, "  version                Show version information")
	fmt.Fprintln(w, "  help                   Show this help message")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Global Options:")
	fs.SetOutput(w)
	fs.PrintDefaults()
	fs.SetOutput(io.Discard)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Add Options:")
	fmt.Fprintln(w, "  -first                 Put the task at the top")
	fmt.Fprintln(w, "  -after <id>            Put the task right after <id>")
	fmt.Fprintln(w, "  -before <id>           Put the task right before <id>")
	fmt.Fprintln(w, "  -priority <p>          low, normal, high or urgent")
	fmt.Fprintln(w, "  -due <date>            Due date (YYYY-MM-DD)")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Ls Options:")
	fmt.Fprintln(w, "  -filter <f>            all, active or completed")
	fmt.Fprintln(w, "  -desc                  List bottom to top")
	fmt.Fprintln(w, "  -limit <n>, -offset <n>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Mv Options:")
	fmt.Fprintln(w, "  -window <ids>          Comma-separated ids as displayed (default: whole list)")
	fmt.Fprintln(w, "  -desc                  The window is in descending order")
}
