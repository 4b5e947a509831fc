package pool

import (
	"sort"
	"time"

	"github.com/getpup/keypool-orchestrator"
)

// partition is an owner's pool split by usability at one instant.
// Every slice is ordered least-recently-used first.
type partition struct {
	active []keypool.Credential

	// rateLimited and failed hold only credentials whose cooldown has expired.
	rateLimited []keypool.Credential
	failed      []keypool.Credential

	// coolingDown counts credentials skipped because their cooldown has not expired.
	coolingDown int

	// excluded counts credentials skipped because they already failed in this run.
	excluded int
}

// split partitions creds, dropping ids that already failed in rc (rc may be nil).
// Credentials with an unknown status are treated as Failed.
func split(creds []keypool.Credential, rc *keypool.RequestContext, now time.Time, cooldown time.Duration) partition {
	var p partition

	for _, cred := range creds {
		if rc != nil && rc.HasFailed(cred.ID) {
			p.excluded++
			continue
		}

		switch cred.Status {
		case keypool.StatusActive:
			p.active = append(p.active, cred)
		case keypool.StatusRateLimited:
			if cred.CooledDown(now, cooldown) {
				p.rateLimited = append(p.rateLimited, cred)
			} else {
				p.coolingDown++
			}
		default:
			if cred.CooledDown(now, cooldown) {
				p.failed = append(p.failed, cred)
			} else {
				p.coolingDown++
			}
		}
	}

	sortLeastRecentlyUsed(p.active)
	sortLongestCooled(p.rateLimited)
	sortLongestCooled(p.failed)

	return p
}

// eligible returns the cooldown-expired RateLimited credentials followed by the Failed ones.
func (p partition) eligible() []keypool.Credential {
	out := make([]keypool.Credential, 0, len(p.rateLimited)+len(p.failed))
	out = append(out, p.rateLimited...)
	return append(out, p.failed...)
}

// sortLeastRecentlyUsed orders by LastUsed ascending. Never-used credentials come first; ties by ID.
func sortLeastRecentlyUsed(creds []keypool.Credential) {
	sort.SliceStable(creds, func(i, j int) bool {
		return before(creds[i].LastUsed, creds[j].LastUsed, creds[i].ID, creds[j].ID)
	})
}

// sortLongestCooled orders by LastFailed ascending. Never-failed credentials come first; ties by ID.
func sortLongestCooled(creds []keypool.Credential) {
	sort.SliceStable(creds, func(i, j int) bool {
		return before(creds[i].LastFailed, creds[j].LastFailed, creds[i].ID, creds[j].ID)
	})
}

func before(a, b *time.Time, idA, idB string) bool {
	switch {
	case a == nil && b == nil:
		return idA < idB
	case a == nil:
		return true
	case b == nil:
		return false
	case a.Equal(*b):
		return idA < idB
	default:
		return a.Before(*b)
	}
}
