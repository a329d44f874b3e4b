// Command studydash is the terminal client for a studydash server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(newApp(os.Stdout, os.Stdin)).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", explain(err))
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "studydash",
		Short: "Research study dashboard client",
		Long: `studydash reads study responses, adherence, sleep and variable
views from a studydash server.

Settings live in $STUDYDASH_HOME (default ~/.studydash):
  config.yaml   server, default study, timezone, sleep roles, variables
  session.json  login token, calendar notes, saved sleep roles`,
		SilenceUsage:       true,
		SilenceErrors:      true,
		PersistentPreRunE:  a.setup,
		PersistentPostRunE: a.teardown,
	}
	root.SetOut(a.out)

	flags := root.PersistentFlags()
	flags.StringVar(&a.server, "server", "", "server URL (default from session or config.yaml)")
	flags.Int64VarP(&a.study, "study", "s", 0, "study ID (default from config.yaml)")
	flags.StringVar(&a.dir, "home", "", "state directory (default $STUDYDASH_HOME or ~/.studydash)")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")
	flags.DurationVar(&a.timeout, "timeout", 2*time.Minute, "overall request timeout")

	root.AddCommand(
		newLoginCmd(a),
		newLogoutCmd(a),
		newWhoamiCmd(a),
		newPasswordCmd(a),
		newUsersCmd(a),
		newStudiesCmd(a),
		newMembershipCmd(a),
		newResponsesCmd(a),
		newIngestCmd(a),
		newAdherenceCmd(a),
		newCalendarCmd(a),
		newNoteCmd(a),
		newSleepCmd(a),
		newVariablesCmd(a),
		newHealthCmd(a),
	)
	return root
}
