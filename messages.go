package ikou

const (
	starting = "starting"
	finished = "finished"

	committed                = "committed"
	failedToStartTransaction = "failed-to-start-transaction"
	failedToCommit           = "failed-to-commit"
	failedToRollback         = "failed-to-rollback"

	lockAcquired        = "lock-acquired"
	lockReleased        = "lock-released"
	failedToAcquireLock = "failed-to-acquire-lock"

	discoveredMigrations       = "discovered-migrations"
	failedToDiscoverMigrations = "failed-to-discover-migrations"
	retrievedAppliedMigrations = "retrieved-applied-migrations"
	failedToQueryMigrations    = "failed-to-query-migrations"
	failedToCreateTable        = "failed-to-create-table"
	migrationsOutOfOrder       = "migrations-out-of-order"
	nothingToApply             = "nothing-to-apply"

	failedToApplyMigration  = "failed-to-apply-migration"
	failedToRevertMigration = "failed-to-revert-migration"
	recoveredPanic          = "recovered-panic"
)
