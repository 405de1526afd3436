package main

// Aggregation thresholds
const (
	ConsensusThreshold        = 0.75
	ContestedThreshold        = 0.25
	AmendmentSynthesisMinimum = 3
)

// Aggregate merges a motion's implicit support with its explicit responses.
//
//	implicit_endorsements = |contributing_members|
//	no_response           = |gap_members| - |responses|
//	engaged_count         = implicit_endorsements + |responses|
//	endorsement_ratio     = (implicit + explicit endorsements) / engaged_count
//	opposition_ratio      = oppositions / engaged_count
//
// Both ratios are 0 when engaged_count is 0. Responses must already be validated.
func Aggregate(roster *Roster, support ImplicitSupport, responses []ReviewResponse) ReviewAggregation {
	agg := ReviewAggregation{
		MotionID:             support.MotionID,
		ImplicitEndorsements: len(support.ContributingMembers),
		AmendmentTexts:       []string{},
		OppositionReasons:    []string{},
		SupportingArguments:  []string{},
		EndorsingMembers:     []string{},
		OpposingMembers:      []string{},
	}

	ordered := orderResponses(roster, responses)

	var explicitEndorsers, opposers []string
	for _, r := range ordered {
		switch r.Stance {
		case StanceEndorse:
			agg.ExplicitEndorsements++
			explicitEndorsers = append(explicitEndorsers, r.Member)
			if r.Reasoning != "" {
				agg.SupportingArguments = append(agg.SupportingArguments, r.Reasoning)
			}
		case StanceOppose:
			agg.Oppositions++
			opposers = append(opposers, r.Member)
			agg.OppositionReasons = append(agg.OppositionReasons, r.OppositionReason)
		case StanceAmend:
			agg.AmendmentsProposed++
			agg.AmendmentTexts = append(agg.AmendmentTexts, r.AmendmentText)
		case StanceAbstain:
			agg.Abstentions++
		}
	}

	received := len(ordered)
	agg.NoResponse = len(support.GapMembers) - received
	if agg.NoResponse < 0 {
		agg.NoResponse = 0
	}
	agg.EngagedCount = agg.ImplicitEndorsements + received
	agg.TotalEndorsements = agg.ImplicitEndorsements + agg.ExplicitEndorsements

	if agg.EngagedCount > 0 {
		agg.EndorsementRatio = float64(agg.TotalEndorsements) / float64(agg.EngagedCount)
		agg.OppositionRatio = float64(agg.Oppositions) / float64(agg.EngagedCount)
	}

	agg.ConsensusReached = agg.EndorsementRatio >= ConsensusThreshold
	agg.Contested = agg.OppositionRatio >= ContestedThreshold
	agg.NeedsAmendmentSynthesis = agg.AmendmentsProposed >= AmendmentSynthesisMinimum
	agg.Status = StatusFor(agg.ConsensusReached, agg.Contested)

	agg.EndorsingMembers = append(agg.EndorsingMembers, support.ContributingMembers...)
	agg.EndorsingMembers = append(agg.EndorsingMembers, explicitEndorsers...)
	agg.OpposingMembers = append(agg.OpposingMembers, opposers...)

	return agg
}

// StatusFor applies the status precedence: contested beats consensus
func StatusFor(consensus, contested bool) AggregationStatus {
	switch {
	case contested:
		return StatusContested
	case consensus:
		return StatusRatificationReady
	default:
		return StatusUnderReview
	}
}

// AggregateAll aggregates every triaged motion, in triage order
func AggregateAll(roster *Roster, supports []ImplicitSupport, byMotion map[string][]ReviewResponse) []ReviewAggregation {
	out := make([]ReviewAggregation, 0, len(supports))
	for _, s := range supports {
		out = append(out, Aggregate(roster, s, byMotion[s.MotionID]))
	}
	return out
}

// orderResponses keeps one response per member, ordered by roster position
func orderResponses(roster *Roster, responses []ReviewResponse) []ReviewResponse {
	byMember := make(map[string]ReviewResponse, len(responses))
	names := make([]string, 0, len(responses))
	for _, r := range responses {
		if _, dup := byMember[r.Member]; dup {
			continue
		}
		byMember[r.Member] = r
		names = append(names, r.Member)
	}

	out := make([]ReviewResponse, 0, len(byMember))
	for _, name := range roster.SortByRoster(names) {
		out = append(out, byMember[name])
	}
	return out
}
