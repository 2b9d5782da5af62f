package ledger

import "fmt"

// ErrorKind is the numeric code surfaced to callers of the ledger.
type ErrorKind int

const (
	KindNotAdmin              ErrorKind = 100
	KindScoreNotFound         ErrorKind = 101
	KindScoreAlreadySubmitted ErrorKind = 102
	KindScoreOutOfRange       ErrorKind = 103
	KindTierRateNotConfigured ErrorKind = 104
)

var kindNames = map[ErrorKind]string{
	KindNotAdmin:              "NOT_ADMIN",
	KindScoreNotFound:         "SCORE_NOT_FOUND",
	KindScoreAlreadySubmitted: "SCORE_ALREADY_SUBMITTED",
	KindScoreOutOfRange:       "SCORE_OUT_OF_RANGE",
	KindTierRateNotConfigured: "TIER_RATE_NOT_CONFIGURED",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN_%d", int(k))
}

// Error is a rule violation. Every value returned by the ledger is one of the
// sentinels below, never a wrapped copy, so errors.Is works across composed
// operations.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Kind, int(e.Kind), e.Message)
}

// Code returns the kind name, e.g. "NOT_ADMIN".
func (e *Error) Code() string {
	return e.Kind.String()
}

var (
	ErrNotAdmin              = &Error{Kind: KindNotAdmin, Message: "caller is not the administrator"}
	ErrScoreNotFound         = &Error{Kind: KindScoreNotFound, Message: "no risk score recorded for farmer, crop and season"}
	ErrScoreAlreadySubmitted = &Error{Kind: KindScoreAlreadySubmitted, Message: "risk score already submitted for farmer, crop and season"}
	ErrScoreOutOfRange       = &Error{Kind: KindScoreOutOfRange, Message: "risk score must not exceed 100"}
	ErrTierRateNotConfigured = &Error{Kind: KindTierRateNotConfigured, Message: "premium rate for tier is not configured"}
)
