package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/nibzard/ordo/internal/orderindex"
	"github.com/nibzard/ordo/internal/tasks"
	"github.com/nibzard/ordo/internal/todo"
	"github.com/nibzard/ordo/internal/utils"
)

// shortIDLen is how much of a task id the listings print.
const shortIDLen = 8

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet("ordo "+name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

// addCommand creates a task.
func (a *app) addCommand(ctx context.Context, args []string) error {
	fs := newFlagSet("add")
	first := fs.Bool("first", false, "Put the task at the top")
	after := fs.String("after", "", "Put the task right after this task")
	before := fs.String("before", "", "Put the task right before this task")
	priority := fs.String("priority", "", "Priority (low|normal|high|urgent)")
	status := fs.String("status", "", "Status (planned|in_progress|done|on_hold|cancelled)")
	start := fs.String("start", "", "Start date (YYYY-MM-DD)")
	due := fs.String("due", "", "Due date (YYYY-MM-DD)")

	if err := fs.Parse(args); err != nil {
		return err
	}
	title := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if title == "" {
		return errors.New("add: title is required")
	}

	set := 0
	for _, on := range []bool{*first, *after != "", *before != ""} {
		if on {
			set++
		}
	}
	if set > 1 {
		return errors.New("add: use only one of -first, -after and -before")
	}

	svc, err := a.service(ctx)
	if err != nil {
		return err
	}
	user := a.cfg.User

	placement := tasks.Last()
	switch {
	case *first:
		placement = tasks.First()
	case *after != "":
		id, err := resolveID(ctx, svc, user, *after)
		if err != nil {
			return err
		}
		placement = tasks.After(id)
	case *before != "":
		id, err := resolveID(ctx, svc, user, *before)
		if err != nil {
			return err
		}
		placement = tasks.Before(id)
	}

	p, err := todo.ParsePriority(*priority)
	if err != nil {
		return err
	}
	st, err := todo.ParseStatus(*status)
	if err != nil {
		return err
	}

	task, err := svc.Create(ctx, user, tasks.Draft{
		Title:     title,
		Priority:  p,
		Status:    st,
		StartDate: *start,
		DueDate:   *due,
	}, placement)
	if err != nil {
		return reorderFailed(err)
	}
	fmt.Fprintf(a.out, "Added %s %s\n", shortID(task.ID), task.Title)
	return nil
}

// lsCommand prints one page of the user's tasks.
func (a *app) lsCommand(ctx context.Context, args []string) error {
	fs := newFlagSet("ls")
	filterFlag := fs.String("filter", "", "Filter (all|active|completed)")
	active := fs.Bool("active", false, "Only open tasks")
	doneOnly := fs.Bool("done", false, "Only completed tasks")
	desc := fs.Bool("desc", false, "List bottom to top")
	limit := fs.Int("limit", 0, "Maximum tasks to show (0 = all)")
	offset := fs.Int("offset", 0, "Tasks to skip")
	verbose := fs.Bool("v", false, "Show ids and order indexes")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if len(fs.Args()) > 0 {
		return fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	filter, err := tasks.ParseFilter(*filterFlag)
	if err != nil {
		return err
	}
	switch {
	case *active && *doneOnly:
		return errors.New("ls: use only one of -active and -done")
	case *active:
		filter = tasks.FilterActive
	case *doneOnly:
		filter = tasks.FilterCompleted
	}
	dir := orderindex.Ascending
	if *desc {
		dir = orderindex.Descending
	}

	svc, err := a.service(ctx)
	if err != nil {
		return err
	}
	listing, err := svc.List(ctx, a.cfg.User, tasks.Page{
		Offset:    *offset,
		Limit:     *limit,
		Direction: dir,
		Filter:    filter,
	})
	if err != nil {
		return err
	}

	if len(listing.Tasks) == 0 {
		fmt.Fprintln(a.out, "No tasks found.")
	}
	for i, t := range listing.Tasks {
		printTask(a.out, *offset+i+1, t, *verbose)
	}
	fmt.Fprintf(a.out, "\n%d open, %d done", listing.Stats.Active(), listing.Stats.Completed)
	if shown := *offset + len(listing.Tasks); shown < listing.Total {
		fmt.Fprintf(a.out, " (%d more)", listing.Total-shown)
	}
	fmt.Fprintln(a.out)
	return nil
}

// mvCommand moves a task to a 1-based position of the displayed window.
func (a *app) mvCommand(ctx context.Context, args []string) error {
	fs := newFlagSet("mv")
	window := fs.String("window", "", "Comma-separated task ids as displayed (default: whole list)")
	desc := fs.Bool("desc", false, "The window is listed bottom to top")

	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) != 2 {
		return errors.New("usage: ordo mv [-window ids] [-desc] <id> <position>")
	}
	pos, err := strconv.Atoi(rest[1])
	if err != nil || pos < 1 {
		return fmt.Errorf("mv: position must be a positive number, got %q", rest[1])
	}

	svc, err := a.service(ctx)
	if err != nil {
		return err
	}
	user := a.cfg.User
	id, err := resolveID(ctx, svc, user, rest[0])
	if err != nil {
		return err
	}

	var ids []string
	for _, ref := range utils.SplitAndTrim(*window, ",") {
		wid, err := resolveID(ctx, svc, user, ref)
		if err != nil {
			return err
		}
		ids = append(ids, wid)
	}
	dir := orderindex.Ascending
	if *desc {
		dir = orderindex.Descending
	}

	plan, err := svc.Move(ctx, user, tasks.MoveRequest{
		Window:    ids,
		ItemID:    id,
		Target:    pos - 1,
		Direction: dir,
	})
	if err != nil {
		return reorderFailed(err)
	}
	fmt.Fprintf(a.out, "Moved %s to position %d (%d updated)\n", shortID(id), pos, len(plan))
	return nil
}

// doneCommand toggles completion.
func (a *app) doneCommand(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: ordo done <id>")
	}
	svc, err := a.service(ctx)
	if err != nil {
		return err
	}
	id, err := resolveID(ctx, svc, a.cfg.User, args[0])
	if err != nil {
		return err
	}
	task, err := svc.Toggle(ctx, a.cfg.User, id)
	if err != nil {
		return err
	}
	state := "open"
	if task.Completed {
		state = "done"
	}
	fmt.Fprintf(a.out, "%s %s is %s\n", shortID(task.ID), task.Title, state)
	return nil
}

// editCommand patches task fields. Only flags given on the command line
// change the task.
func (a *app) editCommand(ctx context.Context, args []string) error {
	fs := newFlagSet("edit")
	title := fs.String("title", "", "New title")
	priority := fs.String("priority", "", "Priority (low|normal|high|urgent)")
	status := fs.String("status", "", "Status (planned|in_progress|done|on_hold|cancelled)")
	start := fs.String("start", "", "Start date (YYYY-MM-DD, empty clears)")
	due := fs.String("due", "", "Due date (YYYY-MM-DD, empty clears)")

	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return errors.New("usage: ordo edit <id> [-title t] [-priority p] [-status s] [-start d] [-due d]")
	}
	ref := args[0]
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	if len(fs.Args()) > 0 {
		return fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	var patch tasks.Patch
	var perr error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "title":
			patch.Title = title
		case "priority":
			p, err := todo.ParsePriority(*priority)
			perr = errors.Join(perr, err)
			patch.Priority = &p
		case "status":
			s, err := todo.ParseStatus(*status)
			perr = errors.Join(perr, err)
			patch.Status = &s
		case "start":
			patch.StartDate = start
		case "due":
			patch.DueDate = due
		}
	})
	if perr != nil {
		return perr
	}
	if patch.IsEmpty() {
		return errors.New("edit: nothing to change")
	}

	svc, err := a.service(ctx)
	if err != nil {
		return err
	}
	id, err := resolveID(ctx, svc, a.cfg.User, ref)
	if err != nil {
		return err
	}
	task, err := svc.Update(ctx, a.cfg.User, id, patch)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Updated %s %s\n", shortID(task.ID), task.Title)
	return nil
}

// rmCommand deletes one or more tasks.
func (a *app) rmCommand(ctx context.Context, args []string) error {
	var refs []string
	for _, arg := range args {
		refs = append(refs, utils.SplitAndTrim(arg, ",")...)
	}
	if len(refs) == 0 {
		return errors.New("usage: ordo rm <id>[,<id>...]")
	}
	svc, err := a.service(ctx)
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		id, err := resolveID(ctx, svc, a.cfg.User, ref)
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}
	for _, id := range ids {
		if err := svc.Delete(ctx, a.cfg.User, id); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Deleted %s\n", shortID(id))
	}
	return nil
}

// resolveID accepts a full task id or a unique prefix of one.
func resolveID(ctx context.Context, svc *tasks.Service, user, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", errors.New("task id is empty")
	}
	listing, err := svc.List(ctx, user, tasks.Page{})
	if err != nil {
		return "", err
	}
	var matches []string
	for _, t := range listing.Tasks {
		if t.ID == ref {
			return t.ID, nil
		}
		if strings.HasPrefix(t.ID, ref) {
			matches = append(matches, t.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %s", todo.ErrNotFound, ref)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("task id %q is ambiguous (%d matches)", ref, len(matches))
	}
}

// reorderFailed prefixes failures of key allocation with a retry hint.
func reorderFailed(err error) error {
	switch {
	case errors.Is(err, orderindex.ErrRebalanceExhausted),
		errors.Is(err, orderindex.ErrUnknownItem),
		orderindex.IsRetryable(err):
		return fmt.Errorf("reorder failed, try again: %w", err)
	default:
		return err
	}
}

func shortID(id string) string {
	if len(id) > shortIDLen {
		return id[:shortIDLen]
	}
	return id
}

// printTask prints a single task.
func printTask(w io.Writer, n int, t todo.Task, verbose bool) {
	check := "[ ]"
	if t.Completed {
		check = "[x]"
	}
	fmt.Fprintf(w, "%3d. %s %s  %-6s %s", n, check, shortID(t.ID), t.Priority, t.Title)
	if t.DueDate != "" {
		fmt.Fprintf(w, "  (due %s)", t.DueDate)
	}
	fmt.Fprintln(w)
	if verbose {
		fmt.Fprintf(w, "       id=%s order_index=%d status=%s\n", t.ID, t.OrderIndex, t.Status)
	}
}
