package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/sanity-io/litter"

	"github.com/nibzard/ordo/internal/config"
	"github.com/nibzard/ordo/internal/logging"
	"github.com/nibzard/ordo/internal/store/filestore"
	"github.com/nibzard/ordo/internal/todo"
)

// storeProbeTimeout bounds the reachability checks of doctor.
const storeProbeTimeout = 10 * time.Second

// doctorCommand checks the config, the store and the task file.
func (a *app) doctorCommand(ctx context.Context, args []string) error {
	fs := newFlagSet("doctor")
	verbose := fs.Bool("v", false, "Verbose output")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if len(fs.Args()) > 0 {
		return fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	w := a.out
	cfg := a.cfg
	fmt.Fprintln(w, "Ordo Doctor")
	fmt.Fprintln(w, "===========")
	fmt.Fprintln(w)

	allOK := true

	// Config
	fmt.Fprintln(w, "Config:")
	if file := a.sources.GetConfigFile(); file != "" {
		fmt.Fprintf(w, "  ✅ File: %s\n", file)
	} else {
		fmt.Fprintln(w, "  ⚠️  No config file (using defaults)")
	}
	if err := cfg.Validate(); err != nil {
		for _, line := range strings.Split(err.Error(), "\n") {
			fmt.Fprintf(w, "  ❌ %s\n", line)
		}
		allOK = false
	} else {
		space := cfg.Space()
		fmt.Fprintf(w, "  ✅ User: %s\n", cfg.User)
		fmt.Fprintf(w, "  ✅ Order: gap=%d min_gap=%d window=%d leading=%d/%d max_window=%d\n",
			space.Gap, space.MinGap, space.Window, space.LeadingWindow, space.LeadingSpan, space.MaxWindow)
	}
	fmt.Fprintln(w)

	// Store
	fmt.Fprintf(w, "Store: %s (%s)\n", cfg.Store, a.storeLocation())
	if !a.checkStore(ctx, *verbose) {
		allOK = false
	}
	fmt.Fprintln(w)

	// Schema file
	if cfg.SchemaFile != "" {
		fmt.Fprintf(w, "Schema file: %s\n", cfg.SchemaFile)
		if info, err := os.Stat(cfg.SchemaFile); err != nil {
			fmt.Fprintf(w, "  ❌ Error: %v\n", err)
			allOK = false
		} else if info.IsDir() {
			fmt.Fprintln(w, "  ❌ Error: path is a directory")
			allOK = false
		} else {
			fmt.Fprintln(w, "  ✅ OK")
		}
		fmt.Fprintln(w)
	}

	// Log directory
	fmt.Fprintf(w, "Log directory: %s\n", cfg.LogDir)
	if _, err := os.Stat(cfg.LogDir); err != nil {
		if os.IsNotExist(err) {
			fmt.Fprintln(w, "  ⚠️  Not found (will be created by serve)")
		} else {
			fmt.Fprintf(w, "  ❌ Error: %v\n", err)
			allOK = false
		}
	} else {
		fmt.Fprintln(w, "  ✅ OK")
	}
	fmt.Fprintln(w)

	if allOK {
		fmt.Fprintln(w, "✅ All checks passed!")
		return nil
	}
	fmt.Fprintln(w, "⚠️  Some checks failed. Ordo may not function correctly.")
	return errors.New("doctor checks failed")
}

// checkStore reports whether the configured store is usable. Task files are
// loaded and validated; other stores are probed by listing users.
func (a *app) checkStore(ctx context.Context, verbose bool) bool {
	w := a.out
	ctx, cancel := context.WithTimeout(ctx, storeProbeTimeout)
	defer cancel()

	if a.cfg.Store == config.StoreFile {
		backend, err := filestore.Open(a.cfg.TodoFile, a.remote())
		if err != nil {
			fmt.Fprintf(w, "  ❌ Error: %v\n", err)
			return false
		}
		if filestore.Missing(backend) {
			fmt.Fprintln(w, "  ⚠️  Not found (created by the first add)")
			return true
		}
		f, err := backend.Load(ctx)
		if err != nil {
			fmt.Fprintf(w, "  ❌ Load error: %v\n", err)
			return false
		}
		result := f.Validate(todo.ValidationOptions{SchemaPath: a.cfg.SchemaFile})
		for _, warning := range result.Warnings {
			fmt.Fprintf(w, "  ⚠️  %s\n", warning)
		}
		if !result.Valid {
			fmt.Fprintln(w, "  ❌ Validation failed:")
			for _, e := range result.Errors {
				fmt.Fprintf(w, "     - %v\n", e)
			}
			return false
		}
		fmt.Fprintf(w, "  ✅ Valid (%d tasks)\n", len(f.Tasks))
	}

	if a.cfg.Store == config.StoreMemory {
		fmt.Fprintln(w, "  ⚠️  In memory: changes are not saved")
	}
	svc, err := a.service(ctx)
	if err != nil {
		fmt.Fprintf(w, "  ❌ Error: %v\n", err)
		return false
	}
	users, err := svc.Users(ctx)
	if err != nil {
		fmt.Fprintf(w, "  ❌ Unreachable: %v\n", err)
		return false
	}
	fmt.Fprintf(w, "  ✅ Reachable (%d users)\n", len(users))
	if verbose {
		for _, u := range users {
			fmt.Fprintf(w, "    - %s: %d tasks, %d done\n", u.User, u.Total, u.Completed)
		}
	}
	return true
}

// configCommand prints the resolved configuration and where each value
// came from. "config example" prints a commented example file instead.
func (a *app) configCommand(args []string) error {
	if len(args) > 0 {
		if args[0] == "example" && len(args) == 1 {
			fmt.Fprint(a.out, config.ExampleConfig())
			return nil
		}
		return fmt.Errorf("unexpected arguments: %v", args)
	}

	w := a.out
	if len(a.sources.Files) == 0 {
		fmt.Fprintln(w, "Config files: none")
	} else {
		fmt.Fprintln(w, "Config files:")
		for _, f := range a.sources.Files {
			fmt.Fprintf(w, "  %s\n", f)
		}
	}
	fmt.Fprintln(w)

	shown := *a.cfg
	if shown.Remote.SecretKey != "" {
		shown.Remote.SecretKey = "********"
	}
	dump := litter.Options{StripPackageNames: true, HidePrivateFields: true}
	fmt.Fprintln(w, dump.Sdump(shown))
	fmt.Fprintln(w)

	keys := make([]string, 0, len(a.sources.Sources))
	for k, src := range a.sources.Sources {
		if src != config.SourceDefault {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		fmt.Fprintln(w, "All values are defaults.")
		return nil
	}
	sort.Strings(keys)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tSOURCE")
	for _, k := range keys {
		fmt.Fprintf(tw, "%s\t%s\n", k, a.sources.Sources[k])
	}
	return tw.Flush()
}

// tailCommand prints the latest server log for the configured store.
func (a *app) tailCommand(ctx context.Context, args []string) error {
	fs := newFlagSet("tail")
	follow := fs.Bool("f", false, "Follow the log (like tail -f)")
	fs.BoolVar(follow, "follow", false, "Follow the log (like tail -f)")
	n := fs.Int("n", 0, "Number of lines to show (0 = all)")
	list := fs.Bool("list", false, "List the runs instead")
	if err := fs.Parse(args); err != nil {
		return err
	}

	logDir, err := logging.FindLogDir(a.cfg.LogDir, a.storeLocation())
	if err != nil {
		return fmt.Errorf("finding log directory: %w", err)
	}

	if *list {
		runs, err := logging.FindLogRuns(logDir)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Fprintln(a.out, "No log files found.")
			return nil
		}
		tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "RUN\tMODIFIED\tBYTES")
		for _, r := range runs {
			fmt.Fprintf(tw, "%s\t%s\t%d\n", r.RunID, r.ModTime.Format(time.RFC3339), r.Size)
		}
		return tw.Flush()
	}

	logPath, err := logging.FindLatestLog(logDir)
	if err != nil {
		return fmt.Errorf("finding latest log: %w", err)
	}
	if logPath == "" {
		fmt.Fprintln(a.out, "No log files found.")
		return nil
	}

	fmt.Fprintf(a.out, "Tailing: %s\n", logPath)
	if *follow {
		fmt.Fprintln(a.out, "(Ctrl+C to stop)")
	}
	fmt.Fprintln(a.out)
	return logging.TailLog(ctx, a.out, logPath, *n, *follow)
}
