package pool

import (
	"time"

	"github.com/getpup/keypool-orchestrator"
)

// Inventory counts an owner's credentials for one provider by status.
type Inventory struct {
	Total int

	Active int

	// RateLimited counts every RateLimited credential; RateLimitedEligible those past their cooldown.
	RateLimited         int
	RateLimitedEligible int

	// Failed counts every Failed credential; FailedEligible those past their cooldown.
	Failed         int
	FailedEligible int
}

func newInventory(creds []keypool.Credential, now time.Time, cooldown time.Duration) Inventory {
	inv := Inventory{Total: len(creds)}

	for _, cred := range creds {
		switch cred.Status {
		case keypool.StatusActive:
			inv.Active++
		case keypool.StatusRateLimited:
			inv.RateLimited++
			if cred.CooledDown(now, cooldown) {
				inv.RateLimitedEligible++
			}
		default:
			inv.Failed++
			if cred.CooledDown(now, cooldown) {
				inv.FailedEligible++
			}
		}
	}

	return inv
}

// Empty reports whether the owner has no credentials for the provider at all.
func (i Inventory) Empty() bool {
	return i.Total == 0
}

// Throttled reports whether any credential is RateLimited. An exhausted pool with
// throttled credentials is expected to recover after the cooldown.
func (i Inventory) Throttled() bool {
	return i.RateLimited > 0
}

// Counts returns the per-status counts keyed by status name.
func (i Inventory) Counts() map[string]int {
	return map[string]int{
		string(keypool.StatusActive):      i.Active,
		string(keypool.StatusRateLimited): i.RateLimited,
		string(keypool.StatusFailed):      i.Failed,
	}
}
