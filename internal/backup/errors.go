package backup

import (
	"errors"
	"fmt"
)

// State is a step of the restore state machine.
type State string

const (
	StateIdle         State = "idle"
	StateValidating   State = "validating"
	StateSafetyBackup State = "safety_backup"
	StateSwapping     State = "swapping"
	StateReconnecting State = "reconnecting"
	StateReconciling  State = "reconciling"
	StateCommitted    State = "committed"
	StateAborting     State = "aborting"
	StateRolledBack   State = "rolled_back"
)

var (
	ErrInvalidBackup      = errors.New("invalid backup file")
	ErrBackupIntegrity    = errors.New("backup integrity check failed")
	ErrRestoreFailed      = errors.New("restore failed")
	ErrSafetyBackupFailed = errors.New("safety backup failed")
	ErrSwapFailed         = errors.New("replacing the live database failed")
	ErrReconnectFailed    = errors.New("reconnecting to the restored database failed")
	ErrIdentityLost       = errors.New("acting user not found in restored database")
)

// RestoreError reports a restore that got past validation and then failed.
// It matches ErrRestoreFailed and the sentinel of the failing stage.
type RestoreError struct {
	Stage       State
	Err         error
	RolledBack  bool
	RollbackErr error
}

func (e *RestoreError) Error() string {
	msg := fmt.Sprintf("restore failed during %s: %v", e.Stage, e.Err)
	switch {
	case e.RollbackErr != nil:
		msg += fmt.Sprintf(" (rollback failed: %v)", e.RollbackErr)
	case e.RolledBack:
		msg += " (previous database reinstated)"
	}
	return msg
}

func (e *RestoreError) Unwrap() []error {
	return []error{ErrRestoreFailed, e.Err}
}

func stageErr(sentinel, cause error) error {
	if cause == nil {
		return sentinel
	}
	return fmt.Errorf("%w: %v", sentinel, cause)
}
