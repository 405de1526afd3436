package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// MinOppositionReasonLength is the minimum length of a substantive opposition reason
const MinOppositionReasonLength = 50

// MissedReview records an assignment that produced no usable response
type MissedReview struct {
	Member   string `json:"member"`
	MotionID string `json:"motion_id"`
	Reason   string `json:"reason"`
}

// CollectionResult holds everything gathered during review collection
type CollectionResult struct {
	Responses   []ReviewResponse `json:"responses"`
	Malformed   []MissedReview   `json:"malformed"`
	NoResponses []MissedReview   `json:"no_responses"`
}

// ByMotion groups accepted responses by motion id
func (c CollectionResult) ByMotion() map[string][]ReviewResponse {
	grouped := make(map[string][]ReviewResponse)
	for _, r := range c.Responses {
		grouped[r.MotionID] = append(grouped[r.MotionID], r)
	}
	return grouped
}

// ReviewCollector invokes the Reviewer for every (member, assigned motion) pair
type ReviewCollector struct {
	reviewer Reviewer
	workers  int
	timeout  time.Duration
	batch    bool
}

// NewReviewCollector creates a collector with a bounded worker pool.
// Each member gets its own timeout; in batch mode one ReviewMany call covers
// all of a member's assignments.
func NewReviewCollector(reviewer Reviewer, workers int, timeout time.Duration, batch bool) *ReviewCollector {
	if workers < 1 {
		workers = 1
	}
	return &ReviewCollector{
		reviewer: reviewer,
		workers:  workers,
		timeout:  timeout,
		batch:    batch,
	}
}

// memberOutcome is one worker's private result slot
type memberOutcome struct {
	responses   []ReviewResponse
	malformed   []MissedReview
	noResponses []MissedReview
}

// Collect runs every packet through the reviewer and returns once every member
// has returned, failed or timed out. Failures never propagate.
func (c *ReviewCollector) Collect(ctx context.Context, packets []ReviewAssignment, contexts map[string]MotionContext, audit *AuditTrail) CollectionResult {
	outcomes := make([]memberOutcome, len(packets))

	var g errgroup.Group
	g.SetLimit(c.workers)

	for i, packet := range packets {
		if len(packet.AssignedMotions) == 0 {
			continue
		}
		g.Go(func() error {
			outcomes[i] = c.collectMember(ctx, packet, contexts, audit)
			return nil
		})
	}
	_ = g.Wait()

	result := CollectionResult{
		Responses:   []ReviewResponse{},
		Malformed:   []MissedReview{},
		NoResponses: []MissedReview{},
	}
	for _, o := range outcomes {
		result.Responses = append(result.Responses, o.responses...)
		result.Malformed = append(result.Malformed, o.malformed...)
		result.NoResponses = append(result.NoResponses, o.noResponses...)
	}
	return result
}

func (c *ReviewCollector) collectMember(ctx context.Context, packet ReviewAssignment, contexts map[string]MotionContext, audit *AuditTrail) memberOutcome {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	member := packet.Member
	motionContexts := make([]MotionContext, 0, len(packet.AssignedMotions))
	for _, id := range packet.AssignedMotions {
		mc, ok := contexts[id]
		if !ok {
			mc = MotionContext{Motion: MegaMotion{ID: id}}
		}
		mc.Reason = packet.AssignmentReasons[id]
		mc.Conflict = conflictFor(packet, id)
		motionContexts = append(motionContexts, mc)
	}

	var out memberOutcome
	if c.batch {
		c.reviewBatch(ctx, member, motionContexts, audit, &out)
	} else {
		for _, mc := range motionContexts {
			start := time.Now()
			decision, err := invoke(ctx, func(ctx context.Context) (ReviewDecision, error) {
				return c.reviewer.Review(ctx, member, mc)
			})
			if err != nil {
				c.recordNoResponse(member, mc.Motion.ID, &ReviewerInvocationError{Member: member.Name, MotionID: mc.Motion.ID, Err: err}, audit, &out)
				continue
			}
			decision.MotionID = mc.Motion.ID
			c.accept(member, decision, time.Since(start), audit, &out)
		}
	}
	return out
}

func (c *ReviewCollector) reviewBatch(ctx context.Context, member Member, motions []MotionContext, audit *AuditTrail, out *memberOutcome) {
	start := time.Now()
	decisions, err := invoke(ctx, func(ctx context.Context) ([]ReviewDecision, error) {
		return c.reviewer.ReviewMany(ctx, member, motions)
	})
	if err != nil {
		invErr := &ReviewerInvocationError{Member: member.Name, Err: err}
		for _, mc := range motions {
			c.recordNoResponse(member, mc.Motion.ID, invErr, audit, out)
		}
		return
	}
	perCall := time.Since(start)
	if len(motions) > 0 {
		perCall /= time.Duration(len(motions))
	}

	byID := make(map[string]ReviewDecision, len(decisions))
	for i, d := range decisions {
		if d.MotionID == "" && i < len(motions) {
			d.MotionID = motions[i].Motion.ID
		}
		if _, dup := byID[d.MotionID]; !dup {
			byID[d.MotionID] = d
		}
	}

	for _, mc := range motions {
		d, ok := byID[mc.Motion.ID]
		if !ok {
			c.recordNoResponse(member, mc.Motion.ID, &ReviewerInvocationError{
				Member: member.Name, MotionID: mc.Motion.ID, Err: errors.New("decision missing from batch"),
			}, audit, out)
			continue
		}
		c.accept(member, d, perCall, audit, out)
	}
}

func (c *ReviewCollector) accept(member Member, decision ReviewDecision, elapsed time.Duration, audit *AuditTrail, out *memberOutcome) {
	response, err := ValidateDecision(member.Name, decision, elapsed)
	if err != nil {
		out.malformed = append(out.malformed, MissedReview{Member: member.Name, MotionID: decision.MotionID, Reason: err.Error()})
		audit.Record(EventReviewMalformed, []string{member.Name}, map[string]any{
			"motion_id": decision.MotionID,
			"stance":    string(decision.Stance),
			"error":     err.Error(),
		})
		RecordReviewOutcome(reviewOutcomeMalformed)
		log.Warn().Str("member", member.Name).Str("motion", decision.MotionID).Err(err).Msg("malformed review excluded")
		return
	}

	out.responses = append(out.responses, response)
	audit.Record(EventReviewReceived, []string{member.Name}, map[string]any{
		"motion_id":  response.MotionID,
		"stance":     string(response.Stance),
		"confidence": response.Confidence,
	})
	RecordReviewOutcome(reviewOutcomeOK)
}

func (c *ReviewCollector) recordNoResponse(member Member, motionID string, err error, audit *AuditTrail, out *memberOutcome) {
	out.noResponses = append(out.noResponses, MissedReview{Member: member.Name, MotionID: motionID, Reason: err.Error()})
	audit.Record(EventReviewNoResponse, []string{member.Name}, map[string]any{
		"motion_id": motionID,
		"error":     err.Error(),
	})
	RecordReviewOutcome(reviewOutcomeNoResponse)
	log.Warn().Str("member", member.Name).Str("motion", motionID).Err(err).Msg("review recorded as no response")
}

// ValidateDecision converts a ReviewDecision into a ReviewResponse, or returns a
// *ValidationError explaining why it cannot be accepted.
func ValidateDecision(member string, decision ReviewDecision, elapsed time.Duration) (ReviewResponse, error) {
	invalid := func(field, reason string) error {
		return &ValidationError{Member: member, MotionID: decision.MotionID, Field: field, Reason: reason}
	}

	if !decision.Stance.Valid() {
		return ReviewResponse{}, invalid("stance", fmt.Sprintf("has unknown value %q", decision.Stance))
	}
	if c := decision.Confidence; math.IsNaN(c) || math.IsInf(c, 0) || c < 0 || c > 1 {
		return ReviewResponse{}, invalid("confidence", fmt.Sprintf("%v is outside [0,1]", c))
	}

	response := ReviewResponse{
		Member:     member,
		MotionID:   decision.MotionID,
		Stance:     decision.Stance,
		Reasoning:  strings.TrimSpace(decision.Reasoning),
		Confidence: decision.Confidence,
		Duration:   elapsed,
	}

	switch decision.Stance {
	case StanceOppose:
		reason := OppositionReason(decision)
		if utf8.RuneCountInString(reason) < MinOppositionReasonLength {
			return ReviewResponse{}, invalid("opposition_reason", fmt.Sprintf("must be at least %d characters", MinOppositionReasonLength))
		}
		response.OppositionReason = reason
	case StanceAmend:
		response.AmendmentType = strings.TrimSpace(decision.AmendmentType)
		response.AmendmentText = strings.TrimSpace(decision.AmendmentText)
		response.AmendmentRationale = strings.TrimSpace(decision.AmendmentRationale)
		switch {
		case response.AmendmentType == "":
			return ReviewResponse{}, invalid("amendment_type", "is required")
		case response.AmendmentText == "":
			return ReviewResponse{}, invalid("amendment_text", "is required")
		case response.AmendmentRationale == "":
			return ReviewResponse{}, invalid("amendment_rationale", "is required")
		}
	case StanceEndorse, StanceAbstain:
	}

	return response, nil
}

// OppositionReason joins the opposition concerns, falling back to the reasoning
func OppositionReason(decision ReviewDecision) string {
	concerns := make([]string, 0, len(decision.OppositionConcerns))
	for _, c := range decision.OppositionConcerns {
		if c = strings.TrimSpace(c); c != "" {
			concerns = append(concerns, c)
		}
	}
	if len(concerns) > 0 {
		return strings.Join(concerns, "; ")
	}
	return strings.TrimSpace(decision.Reasoning)
}

func conflictFor(packet ReviewAssignment, motionID string) string {
	for _, f := range packet.ConflictFlags {
		if f.MotionID == motionID {
			return f.Description
		}
	}
	return ""
}
