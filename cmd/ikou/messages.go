package main

const (
	starting = "starting"
	finished = "finished"

	failedToLoadConfig        = "failed-to-load-config"
	failedToOpenDatabase      = "failed-to-open-database"
	failedToReadMigrationsDir = "failed-to-read-migrations-directory"
	failedToCloseDatabase     = "failed-to-close-database"
	createdMigrationFile      = "created-migration-file"
)
