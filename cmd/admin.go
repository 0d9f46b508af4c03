package cmd

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"text/tabwriter"

	"github.com/nibzard/ordo/internal/utils"
)

// adminCommand dispatches the admin subcommands.
func (a *app) adminCommand(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: ordo admin users | ordo admin rebalance [-all] [-workers n] [user...]")
	}
	switch args[0] {
	case "users":
		return a.adminUsers(ctx, args[1:])
	case "rebalance":
		return a.adminRebalance(ctx, args[1:])
	default:
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func (a *app) adminUsers(ctx context.Context, args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("unexpected arguments: %v", args)
	}
	svc, err := a.service(ctx)
	if err != nil {
		return err
	}
	users, err := svc.Users(ctx)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		fmt.Fprintln(a.out, "No users found.")
		return nil
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "USER\tTASKS\tOPEN\tDONE")
	for _, u := range users {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", u.User, u.Total, u.Active(), u.Completed)
	}
	return tw.Flush()
}

// adminRebalance respaces the keys of the configured user, the users named
// on the command line (comma or space separated), or every user with -all.
func (a *app) adminRebalance(ctx context.Context, args []string) error {
	fs := newFlagSet("admin rebalance")
	all := fs.Bool("all", false, "Rebalance every user")
	workers := fs.Int("workers", runtime.NumCPU(), "Users rebalanced concurrently")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var users []string
	for _, arg := range fs.Args() {
		users = append(users, utils.SplitAndTrim(arg, ",")...)
	}
	if *all && len(users) > 0 {
		return errors.New("admin rebalance: -all does not take user names")
	}
	if !*all && len(users) == 0 {
		users = []string{a.cfg.User}
	}

	svc, err := a.service(ctx)
	if err != nil {
		return err
	}
	reports, err := svc.RebalanceAll(ctx, users, *workers)
	for _, r := range reports {
		if r.Err != nil {
			fmt.Fprintf(a.out, "❌ %s: %v\n", r.User, r.Err)
			continue
		}
		fmt.Fprintf(a.out, "✅ %s: %d tasks respaced\n", r.User, r.Tasks)
	}
	if err != nil {
		return fmt.Errorf("rebalance failed: %w", err)
	}
	if len(reports) == 0 {
		fmt.Fprintln(a.out, "No users found.")
	}
	return nil
}
