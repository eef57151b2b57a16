package main

import (
	"fmt"

	"code.cloudfoundry.org/lager/v3"

	"github.com/root-talis/ikou/migration"
)

type UpCommand struct {
	To string `long:"to" value-name:"ID" description:"Apply migrations up to and including this one"`

	app *app
}

func (cmd *UpCommand) Execute([]string) error {
	logger := cmd.app.logger()
	logger.Debug(starting, lager.Data{"command": "up", "to": cmd.To})
	defer logger.Debug(finished, lager.Data{"command": "up"})

	runner, closeRunner, err := cmd.app.runner(logger)
	if err != nil {
		return err
	}
	defer closeRunner()

	count, err := runner.Up(cmd.app.ctx, migration.ID(cmd.To))
	fmt.Fprintf(cmd.app.stdout, "applied %d migration(s)\n", count)

	return err
}
