// Package dedup suppresses repeated records within one run.
package dedup

import (
	"fmt"
	"strconv"
	"strings"

	"sjsage522/orbscreener/internal/model"
	"sjsage522/orbscreener/logger"
	apperrors "sjsage522/orbscreener/pkg/errors"
)

// Policy selects the identity key of a record within a run
type Policy string

const (
	// PolicyGlobal keys on the symbol alone: the first tab to show a symbol wins
	PolicyGlobal Policy = "global"
	// PolicyPerCategory keys on the symbol within its duration and indicator flag
	PolicyPerCategory Policy = "per-category"
)

// ParsePolicy validates a configured policy name
func ParsePolicy(name string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(name))); p {
	case PolicyGlobal, PolicyPerCategory:
		return p, nil
	default:
		return "", apperrors.NewConfiguration(fmt.Sprintf("unknown dedup policy %q", name), nil)
	}
}

// Key returns the identity key of rec under the policy
func (p Policy) Key(rec model.NormalizedRecord) string {
	if p == PolicyPerCategory {
		return strconv.Itoa(rec.Category.Duration) + "|" +
			strconv.FormatBool(rec.Category.SecondaryIndicator) + "|" +
			rec.Symbol
	}
	return rec.Symbol
}

// Deduplicator accepts the first record per identity key of one run.
// Create a new one for every run.
type Deduplicator struct {
	policy Policy
	local  *MemorySet
	shared KeySet
	log    *logger.Logger

	accepted int
	dropped  int
}

// New creates a deduplicator. shared may be nil; when set it is consulted
// after the local set so executions sharing a run id see each other's keys.
func New(policy Policy, shared KeySet) *Deduplicator {
	return &Deduplicator{
		policy: policy,
		local:  NewMemorySet(),
		shared: shared,
		log:    logger.ForDedup(),
	}
}

// Accept reports whether rec is the first of its key in this run, and the key
func (d *Deduplicator) Accept(rec model.NormalizedRecord) (string, bool) {
	key := d.policy.Key(rec)

	if added, _ := d.local.Add(key); !added {
		d.dropped++
		return key, false
	}

	if d.shared != nil {
		added, err := d.shared.Add(key)
		switch {
		case err != nil:
			d.log.Warn().Err(err).Str("key", key).Msg("Shared key set unavailable, using local set only")
			d.shared = nil
		case !added:
			d.log.Debug().Str("key", key).Msg("Key already recorded for this run")
			d.dropped++
			return key, false
		}
	}

	d.accepted++
	return key, true
}

// Forget releases a key whose record could not be persisted, so a later
// execution of the same run can store it.
func (d *Deduplicator) Forget(key string) {
	if d.shared == nil {
		return
	}
	if err := d.shared.Forget(key); err != nil {
		d.log.Warn().Err(err).Str("key", key).Msg("Could not release key")
	}
}

// Accepted returns how many records were accepted
func (d *Deduplicator) Accepted() int {
	return d.accepted
}

// Dropped returns how many records were suppressed as duplicates
func (d *Deduplicator) Dropped() int {
	return d.dropped
}
