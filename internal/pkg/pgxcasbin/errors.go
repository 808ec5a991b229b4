package pgxcasbin

import "errors"

var (
	// ErrSelectRules indicates the policy table could not be read.
	ErrSelectRules = errors.New("pgxcasbin: failed to select rules")
	// ErrInsertRow indicates a row insert failure.
	ErrInsertRow = errors.New("pgxcasbin: failed to insert row")
	// ErrDeleteRow indicates a row delete failure.
	ErrDeleteRow = errors.New("pgxcasbin: failed to delete row")
	// ErrBeginTx indicates a transaction begin failure.
	ErrBeginTx = errors.New("pgxcasbin: failed to begin transaction")
	// ErrCommitTx indicates a transaction commit failure.
	ErrCommitTx = errors.New("pgxcasbin: failed to commit transaction")
	// ErrRuleTooLong indicates a rule exceeds the six value columns.
	ErrRuleTooLong = errors.New("pgxcasbin: rule length exceeds field count")
	// ErrRuleEmpty indicates an empty rule payload.
	ErrRuleEmpty = errors.New("pgxcasbin: rule is empty")
	// ErrPingPool indicates a pool ping failure.
	ErrPingPool = errors.New("pgxcasbin: failed to ping pool")
	// ErrNotifyMessage indicates a notify failure.
	ErrNotifyMessage = errors.New("pgxcasbin: failed to notify")
	// ErrAcquireConn indicates a connection acquisition failure.
	ErrAcquireConn = errors.New("pgxcasbin: failed to acquire connection")
	// ErrListenChannel indicates a listen channel failure.
	ErrListenChannel = errors.New("pgxcasbin: failed to listen channel")
	// ErrInvalidChannel indicates a channel name that is not a plain identifier.
	ErrInvalidChannel = errors.New("pgxcasbin: invalid channel name")
)
