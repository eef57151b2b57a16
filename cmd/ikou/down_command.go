package main

import (
	"fmt"

	"code.cloudfoundry.org/lager/v3"
)

type DownCommand struct {
	Steps int `long:"steps" short:"n" default:"1" description:"Number of migrations to revert"`

	app *app
}

func (cmd *DownCommand) Execute([]string) error {
	logger := cmd.app.logger()
	logger.Debug(starting, lager.Data{"command": "down", "steps": cmd.Steps})
	defer logger.Debug(finished, lager.Data{"command": "down"})

	runner, closeRunner, err := cmd.app.runner(logger)
	if err != nil {
		return err
	}
	defer closeRunner()

	count, err := runner.Down(cmd.app.ctx, cmd.Steps)
	fmt.Fprintf(cmd.app.stdout, "reverted %d migration(s)\n", count)

	return err
}
