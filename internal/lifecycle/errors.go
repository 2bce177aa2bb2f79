package lifecycle

import (
	"errors"
	"fmt"
)

// Lifecycle errors. Validation and pre-trade errors fail the request before
// any broker call; fill-wait and exit-placement errors fail it before the
// caller ever sees a success that hides a missing hedge.
var (
	ErrInvalidInstruction = errors.New("invalid instruction")
	ErrMarketClosed       = errors.New("market currently closed")
	ErrFillTimeout        = errors.New("entry order not filled within retry budget")
	ErrEntryTerminal      = errors.New("entry order reached terminal state without filling")
)

// PartialExitError reports that one exit leg was submitted and the other was
// not, leaving the position partially protected. SurvivingOrderID names the
// leg that is live at the broker; RolledBack reports whether the automatic
// cancel of that leg succeeded.
type PartialExitError struct {
	SurvivingLeg     string // "target" or "stop"
	SurvivingOrderID string
	RolledBack       bool
	Err              error
}

func (e *PartialExitError) Error() string {
	if e.RolledBack {
		return fmt.Sprintf("exit placement failed after %s leg %s was submitted (rolled back): %v",
			e.SurvivingLeg, e.SurvivingOrderID, e.Err)
	}
	return fmt.Sprintf("exit placement failed after %s leg %s was submitted (still live, manual remediation required): %v",
		e.SurvivingLeg, e.SurvivingOrderID, e.Err)
}

func (e *PartialExitError) Unwrap() error { return e.Err }
