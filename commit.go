package ikou

import (
	"database/sql"
	"errors"

	"code.cloudfoundry.org/lager/v3"
)

// commit rolls tx back when err is set and commits it otherwise.
func commit(logger lager.Logger, tx *sql.Tx, err error) error {
	if err != nil {
		rollbackErr := tx.Rollback()
		if rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
			logger.Error(failedToRollback, rollbackErr)
		}
		return err
	}

	err = tx.Commit()
	if err != nil {
		logger.Error(failedToCommit, err)
		return err
	}

	logger.Debug(committed)
	return nil
}
