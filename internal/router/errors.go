package router

import (
	"fmt"
	"time"
)

// BlockReason is why a route failed an eligibility gate or a switch.
type BlockReason string

const (
	BlockCooldown           BlockReason = "cooldown"
	BlockModelUnavailable   BlockReason = "model_unavailable"
	BlockCredentialsMissing BlockReason = "credentials_missing"
	BlockContextTooLarge    BlockReason = "context_too_large"
	BlockCompactionFailed   BlockReason = "compaction_failed"
)

// SwitchBlocked reports a switch attempt stopped by a hard gate.
type SwitchBlocked struct {
	RouteID string
	Reason  BlockReason
	RetryAt time.Time // earliest retry, set for cooldown blocks
}

func (e *SwitchBlocked) Error() string {
	if !e.RetryAt.IsZero() {
		return fmt.Sprintf("switch to %s blocked: %s (retry at %s)",
			e.RouteID, e.Reason, e.RetryAt.Format("15:04:05"))
	}
	return fmt.Sprintf("switch to %s blocked: %s", e.RouteID, e.Reason)
}

// Eligibility is the outcome of evaluating one route.
type Eligibility struct {
	Eligible bool
	Reason   BlockReason
	RetryAt  time.Time // set when Reason is BlockCooldown
}

// Blocked constructs an ineligible outcome.
func Blocked(reason BlockReason) Eligibility {
	return Eligibility{Reason: reason}
}
