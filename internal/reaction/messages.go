// Package reaction turns confirmed detections into user-facing output. A
// confirmed detection fans out into three tiers: immediate reactions fire
// unconditionally, followup reactions fire after a short delay, and the
// confirm-tier spoken alert runs only when the arbiter grants a lease.
package reaction

import (
	"math/rand/v2"
	"strconv"
	"strings"
)

// Severity buckets by on-screen threat count.
const (
	SeverityMany     = "many"     // 10 or more
	SeverityWarning  = "warning"  // 5 to 9
	SeverityFew      = "few"      // 1 to 4
	SeverityPresence = "presence" // none counted but the scene classifier is confident
	SeverityNone     = ""
)

// Reaction tiers.
const (
	TierImmediate = "immediate"
	TierFollowup  = "followup"
	TierConfirm   = "confirm"
)

// SeverityFor buckets a detection into a severity. A zero count with a
// confident scene verdict is presence; a zero count otherwise is no threat.
func SeverityFor(count int, sceneProbability, presenceThreshold float64) string {
	switch {
	case count >= 10:
		return SeverityMany
	case count >= 5:
		return SeverityWarning
	case count >= 1:
		return SeverityFew
	case sceneProbability > presenceThreshold:
		return SeverityPresence
	default:
		return SeverityNone
	}
}

// Message template pools per tier and severity. {count} and {distance} are
// substituted at dispatch time.
var messagePools = map[string]map[string][]string{
	TierImmediate: {
		SeverityMany: {
			"{count} threats on screen, get out now",
			"swarm incoming, {count} spotted",
		},
		SeverityWarning: {
			"{count} threats closing in",
			"careful, {count} of them nearby",
		},
		SeverityFew: {
			"{count} threat spotted {distance}",
			"heads up, {count} on screen",
		},
		SeverityPresence: {
			"something is moving out there",
			"I sense a threat close by",
		},
	},
	TierFollowup: {
		SeverityMany: {
			"still swarming, find cover",
			"they keep coming",
		},
		SeverityWarning: {
			"they are still around, stay sharp",
		},
		SeverityFew: {
			"keep an eye on that one",
		},
		SeverityPresence: {
			"stay alert, it has not shown itself yet",
		},
	},
	TierConfirm: {
		SeverityMany: {
			"confirmed, {count} threats, run",
			"it is a horde, {count} confirmed",
		},
		SeverityWarning: {
			"confirmed {count} threats {distance}",
		},
		SeverityFew: {
			"confirmed, {count} threat {distance}",
		},
		SeverityPresence: {
			"confirmed movement nearby",
		},
	},
}

// MessageFor picks a random template for the tier and severity and fills in
// the placeholders. Returns an empty string when no pool exists.
func MessageFor(tier, severity string, count int, distance string) string {
	pool := messagePools[tier][severity]
	if len(pool) == 0 {
		return ""
	}

	msg := pool[rand.IntN(len(pool))]
	msg = strings.ReplaceAll(msg, "{count}", strconv.Itoa(count))

	if distance == "" {
		msg = strings.TrimSpace(strings.ReplaceAll(msg, "{distance}", ""))
	} else {
		msg = strings.ReplaceAll(msg, "{distance}", distance)
	}
	return msg
}

// ArbiterCategory maps a severity to its cooldown bucket. Presence alerts
// share the few bucket.
func ArbiterCategory(severity string) string {
	if severity == SeverityPresence {
		return SeverityFew
	}
	return severity
}
