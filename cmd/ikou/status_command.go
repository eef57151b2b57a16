package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"code.cloudfoundry.org/lager/v3"

	"github.com/root-talis/ikou"
)

type StatusCommand struct {
	app *app
}

func (cmd *StatusCommand) Execute([]string) error {
	logger := cmd.app.logger()
	logger.Debug(starting, lager.Data{"command": "status"})
	defer logger.Debug(finished, lager.Data{"command": "status"})

	runner, closeRunner, err := cmd.app.runner(logger)
	if err != nil {
		return err
	}
	defer closeRunner()

	result, err := runner.Status(cmd.app.ctx)
	if err != nil {
		return err
	}

	return printStatus(cmd.app.stdout, result)
}

func printStatus(w io.Writer, result *ikou.StatusResult) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tAPPLIED AT")
	for _, state := range result.States {
		appliedAt := "-"
		if !state.AppliedAt.IsZero() {
			appliedAt = state.AppliedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", state.ID, state.Name, state.Status, appliedAt)
	}

	if err := tw.Flush(); err != nil {
		return fmt.Errorf("failed to print status: %w", err)
	}

	_, err := fmt.Fprintf(w, "\n%d applied, %d pending, %d missing\n",
		result.AppliedCount, result.PendingCount, result.MissingCount)

	return err
}
