package ruleset

import killmodels "skirmish/internal/killmail/models"

// intersects64 reports whether a and b share any element.
func intersects64(a, b []int64) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[int64]struct{}, len(b))
	for _, v := range b {
		set[v] = struct{}{}
	}
	for _, v := range a {
		if _, ok := set[v]; ok {
			return true
		}
	}
	return false
}

func intersectsString(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(b))
	for _, v := range b {
		set[v] = struct{}{}
	}
	for _, v := range a {
		if _, ok := set[v]; ok {
			return true
		}
	}
	return false
}

// MatchesTracked reports whether an event intersects any of the ruleset's
// tracked dimensions (victim/attacker alliance or corp, system, or security
// class). Adopted semantics per DESIGN.md's Open Question decision: the
// event passes if ANY tracked list matches (an OR across dimensions), not
// an AND of all configured lists.
func MatchesTracked(r Ruleset, e killmodels.Event) bool {
	var eventAlliances []int64
	if e.VictimAllianceID != nil {
		eventAlliances = append(eventAlliances, *e.VictimAllianceID)
	}
	eventAlliances = append(eventAlliances, e.AttackerAllianceIDs...)

	var eventCorps []int64
	if e.VictimCorporationID != nil {
		eventCorps = append(eventCorps, *e.VictimCorporationID)
	}
	eventCorps = append(eventCorps, e.AttackerCorporationIDs...)

	if intersects64(eventAlliances, r.TrackedAllianceIDs) {
		return true
	}
	if intersects64(eventCorps, r.TrackedCorpIDs) {
		return true
	}
	if intersects64([]int64{e.SystemID}, r.TrackedSystemIDs) {
		return true
	}
	if intersectsString([]string{e.SecurityClass}, r.TrackedSecurityClasses) {
		return true
	}
	return false
}

// RejectedByIngestFilter implements C4's coarse pre-ingest predicate (spec
// §4.4): when ignore_unlisted is set, an event that matches nothing in any
// tracked list is dropped before persistence. If ignore_unlisted is false
// every event passes this stage (the feed applies its own, richer
// predicate downstream).
func RejectedByIngestFilter(r Ruleset, e killmodels.Event) bool {
	if !r.IgnoreUnlisted {
		return false
	}
	return !MatchesTracked(r, e)
}

// Keep implements the feed's shared predicate (spec §4.8). securityClasses
// is the request's optional security_type filter; trackedOnly is the
// request's optional trackedOnly flag.
func Keep(r Ruleset, e killmodels.Event, securityClasses []string, trackedOnly bool) bool {
	if e.ParticipantCount() < r.MinPilots {
		return false
	}

	if len(securityClasses) > 0 {
		found := false
		for _, sc := range securityClasses {
			if sc == e.SecurityClass {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if hasTrackedLists(r) && (trackedOnly || r.IgnoreUnlisted) {
		return MatchesTracked(r, e)
	}

	return true
}
