package main

import (
	"fmt"
	"time"
)

// Stance is a member's position on a motion after explicit review
type Stance string

const (
	StanceEndorse Stance = "endorse"
	StanceOppose  Stance = "oppose"
	StanceAmend   Stance = "amend"
	StanceAbstain Stance = "abstain"
)

// Valid reports whether the stance is one of the known values
func (s Stance) Valid() bool {
	switch s {
	case StanceEndorse, StanceOppose, StanceAmend, StanceAbstain:
		return true
	}
	return false
}

// ParseStance converts a wire value into a Stance
func ParseStance(value string) (Stance, error) {
	s := Stance(value)
	if !s.Valid() {
		return "", fmt.Errorf("unknown stance %q", value)
	}
	return s, nil
}

// RiskTier controls how much explicit review a motion receives
type RiskTier string

const (
	RiskLow    RiskTier = "LOW"
	RiskMedium RiskTier = "MEDIUM"
	RiskHigh   RiskTier = "HIGH"
)

// Valid reports whether the tier is one of the known values
func (t RiskTier) Valid() bool {
	switch t {
	case RiskLow, RiskMedium, RiskHigh:
		return true
	}
	return false
}

// NeedsReview reports whether motions in this tier generate review packets
func (t RiskTier) NeedsReview() bool {
	switch t {
	case RiskMedium, RiskHigh:
		return true
	default:
		return false
	}
}

// ParseRiskTier converts a wire value into a RiskTier
func ParseRiskTier(value string) (RiskTier, error) {
	t := RiskTier(value)
	if !t.Valid() {
		return "", fmt.Errorf("unknown risk tier %q", value)
	}
	return t, nil
}

// AssignmentReason explains why a member was asked to review a motion
type AssignmentReason string

const (
	ReasonGapArchon      AssignmentReason = "gap_archon"
	ReasonConflictReview AssignmentReason = "conflict_review"
)

// Valid reports whether the reason is one of the known values
func (r AssignmentReason) Valid() bool {
	switch r {
	case ReasonGapArchon, ReasonConflictReview:
		return true
	}
	return false
}

// AggregationStatus is the verdict derived from a motion's aggregated signals
type AggregationStatus string

const (
	StatusContested         AggregationStatus = "contested"
	StatusRatificationReady AggregationStatus = "ratification_ready"
	StatusUnderReview       AggregationStatus = "under_review"
)

// Valid reports whether the status is one of the known values
func (s AggregationStatus) Valid() bool {
	switch s {
	case StatusContested, StatusRatificationReady, StatusUnderReview:
		return true
	}
	return false
}

// Recommendation is a deliberation panel's verdict, also used for panel votes
type Recommendation string

const (
	RecommendPass  Recommendation = "pass"
	RecommendFail  Recommendation = "fail"
	RecommendAmend Recommendation = "amend"
	RecommendDefer Recommendation = "defer"
)

// Valid reports whether the recommendation is one of the known values
func (r Recommendation) Valid() bool {
	switch r {
	case RecommendPass, RecommendFail, RecommendAmend, RecommendDefer:
		return true
	}
	return false
}

// ParseRecommendation converts a wire value into a Recommendation
func ParseRecommendation(value string) (Recommendation, error) {
	r := Recommendation(value)
	if !r.Valid() {
		return "", fmt.Errorf("unknown recommendation %q", value)
	}
	return r, nil
}

// ThresholdType selects the ratification vote threshold
type ThresholdType string

const (
	ThresholdSimpleMajority ThresholdType = "simple_majority"
	ThresholdSupermajority  ThresholdType = "supermajority"
)

// Valid reports whether the threshold type is one of the known values
func (t ThresholdType) Valid() bool {
	switch t {
	case ThresholdSimpleMajority, ThresholdSupermajority:
		return true
	}
	return false
}

// RatificationOutcome is the final status of a motion
type RatificationOutcome string

const (
	OutcomeRatified RatificationOutcome = "ratified"
	OutcomeRejected RatificationOutcome = "rejected"
	OutcomeDeferred RatificationOutcome = "deferred"
)

// Valid reports whether the outcome is one of the known values
func (o RatificationOutcome) Valid() bool {
	switch o {
	case OutcomeRatified, OutcomeRejected, OutcomeDeferred:
		return true
	}
	return false
}

// BallotChoice is a single member's ratification ballot
type BallotChoice string

const (
	BallotYea     BallotChoice = "yea"
	BallotNay     BallotChoice = "nay"
	BallotAbstain BallotChoice = "abstain"
)

// Valid reports whether the ballot choice is one of the known values
func (b BallotChoice) Valid() bool {
	switch b {
	case BallotYea, BallotNay, BallotAbstain:
		return true
	}
	return false
}

// TallySource records where a ratification tally came from
type TallySource string

const (
	TallyFromProfile TallySource = "profile"
	TallyFromBallots TallySource = "ballots"
)

// Member represents one fixed participant of the deliberative body
type Member struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// MegaMotion represents a consolidated proposal under review
type MegaMotion struct {
	ID                   string   `json:"id"`
	Title                string   `json:"title"`
	Theme                string   `json:"theme"`
	Text                 string   `json:"text"`
	SourceMotionIDs      []string `json:"source_motion_ids"`
	SupportingMembers    []string `json:"supporting_members"`
	UniqueSupporterCount int      `json:"unique_supporter_count"`
	ConsensusTier        string   `json:"consensus_tier"`
	IsNovel              bool     `json:"is_novel"`
	Constitutional       bool     `json:"constitutional"`
}

// Conflict represents a potential conflict between a member and a motion
type Conflict struct {
	Member      string `json:"member"`
	Description string `json:"description"`
}

// ImplicitSupport represents the triage view of a single motion
type ImplicitSupport struct {
	MotionID            string     `json:"motion_id"`
	ContributingMembers []string   `json:"contributing_members"`
	GapMembers          []string   `json:"gap_members"`
	SupportRatio        float64    `json:"support_ratio"`
	PotentialConflicts  []Conflict `json:"potential_conflicts"`
	RiskTier            RiskTier   `json:"risk_tier"`
}

// TriageSummary represents the roll-up of a triage run
type TriageSummary struct {
	SessionID           string            `json:"session_id"`
	TotalMotions        int               `json:"total_motions"`
	NovelProposals      int               `json:"novel_proposals"`
	LowRisk             int               `json:"low_risk"`
	MediumRisk          int               `json:"medium_risk"`
	HighRisk            int               `json:"high_risk"`
	AverageSupportRatio float64           `json:"average_support_ratio"`
	TotalConflicts      int               `json:"total_conflicts"`
	Supports            []ImplicitSupport `json:"supports"`
	GeneratedAt         time.Time         `json:"generated_at"`
}

// ConflictFlag represents a conflict recorded on a member's review packet
type ConflictFlag struct {
	MotionID    string `json:"motion_id"`
	Description string `json:"description"`
}

// ReviewAssignment represents one member's review packet for a session
type ReviewAssignment struct {
	Member            Member                      `json:"member"`
	AssignedMotions   []string                    `json:"assigned_motions"`
	ConflictFlags     []ConflictFlag              `json:"conflict_flags"`
	AlreadyEndorsed   []string                    `json:"already_endorsed"`
	AssignmentReasons map[string]AssignmentReason `json:"assignment_reasons"`
	GeneratedAt       time.Time                   `json:"generated_at"`
}

// MotionContext is what a reviewer sees about a motion
type MotionContext struct {
	Motion       MegaMotion       `json:"motion"`
	RiskTier     RiskTier         `json:"risk_tier"`
	SupportRatio float64          `json:"support_ratio"`
	Reason       AssignmentReason `json:"reason"`
	Conflict     string           `json:"conflict,omitempty"`
}

// ReviewDecision is the raw output of a Reviewer for one motion
type ReviewDecision struct {
	MotionID           string   `json:"motion_id"`
	Stance             Stance   `json:"stance"`
	Reasoning          string   `json:"reasoning"`
	Confidence         float64  `json:"confidence"`
	AmendmentType      string   `json:"amendment_type,omitempty"`
	AmendmentText      string   `json:"amendment_text,omitempty"`
	AmendmentRationale string   `json:"amendment_rationale,omitempty"`
	OppositionConcerns []string `json:"opposition_concerns,omitempty"`
}

// ReviewResponse represents a validated explicit review
type ReviewResponse struct {
	Member             string        `json:"member"`
	MotionID           string        `json:"motion_id"`
	Stance             Stance        `json:"stance"`
	Reasoning          string        `json:"reasoning"`
	AmendmentType      string        `json:"amendment_type,omitempty"`
	AmendmentText      string        `json:"amendment_text,omitempty"`
	AmendmentRationale string        `json:"amendment_rationale,omitempty"`
	OppositionReason   string        `json:"opposition_reason,omitempty"`
	Confidence         float64       `json:"confidence"`
	Duration           time.Duration `json:"duration"`
}

// ReviewAggregation represents the merged implicit and explicit signals of a motion
type ReviewAggregation struct {
	MotionID                string            `json:"motion_id"`
	ImplicitEndorsements    int               `json:"implicit_endorsements"`
	ExplicitEndorsements    int               `json:"explicit_endorsements"`
	Oppositions             int               `json:"oppositions"`
	AmendmentsProposed      int               `json:"amendments_proposed"`
	Abstentions             int               `json:"abstentions"`
	NoResponse              int               `json:"no_response"`
	EngagedCount            int               `json:"engaged_count"`
	TotalEndorsements       int               `json:"total_endorsements"`
	EndorsementRatio        float64           `json:"endorsement_ratio"`
	OppositionRatio         float64           `json:"opposition_ratio"`
	ConsensusReached        bool              `json:"consensus_reached"`
	Contested               bool              `json:"contested"`
	NeedsAmendmentSynthesis bool              `json:"needs_amendment_synthesis"`
	Status                  AggregationStatus `json:"status"`
	AmendmentTexts          []string          `json:"amendment_texts"`
	OppositionReasons       []string          `json:"opposition_reasons"`
	SupportingArguments     []string          `json:"supporting_arguments"`
	EndorsingMembers        []string          `json:"endorsing_members"`
	OpposingMembers         []string          `json:"opposing_members"`
}

// PanelComposition is the membership of a deliberation panel
type PanelComposition struct {
	MotionID   string   `json:"motion_id"`
	Supporters []string `json:"supporters"`
	Critics    []string `json:"critics"`
	Neutrals   []string `json:"neutrals"`
}

// Size returns the number of seats on the panel
func (p PanelComposition) Size() int {
	return len(p.Supporters) + len(p.Critics) + len(p.Neutrals)
}

// Members returns every panel member, supporters first
func (p PanelComposition) Members() []string {
	members := make([]string, 0, p.Size())
	members = append(members, p.Supporters...)
	members = append(members, p.Critics...)
	members = append(members, p.Neutrals...)
	return members
}

// PanelRequest is what a Deliberator receives for one contested motion
type PanelRequest struct {
	Motion             MegaMotion       `json:"motion"`
	Composition        PanelComposition `json:"composition"`
	SupporterArguments []string         `json:"supporter_arguments"`
	CriticArguments    []string         `json:"critic_arguments"`
	ProposedAmendments []string         `json:"proposed_amendments"`
}

// PanelOutcome is the raw output of a Deliberator
type PanelOutcome struct {
	Recommendation     Recommendation            `json:"recommendation"`
	Votes              map[string]Recommendation `json:"votes"`
	RevisedText        string                    `json:"revised_text,omitempty"`
	DissentingOpinions []string                  `json:"dissenting_opinions"`
	Duration           time.Duration             `json:"duration"`
}

// DeliberationPanel represents a convened panel and its result
type DeliberationPanel struct {
	MotionID           string                    `json:"motion_id"`
	Supporters         []string                  `json:"supporters"`
	Critics            []string                  `json:"critics"`
	Neutrals           []string                  `json:"neutrals"`
	Votes              map[string]Recommendation `json:"votes"`
	VotesPass          int                       `json:"votes_pass"`
	VotesFail          int                       `json:"votes_fail"`
	VotesAmend         int                       `json:"votes_amend"`
	VotesDefer         int                       `json:"votes_defer"`
	Recommendation     Recommendation            `json:"recommendation"`
	RevisedText        string                    `json:"revised_text,omitempty"`
	DissentingOpinions []string                  `json:"dissenting_opinions"`
	Fallback           bool                      `json:"fallback"`
	FailureReason      string                    `json:"failure_reason,omitempty"`
	Duration           time.Duration             `json:"duration"`
}

// RatificationVote represents the final vote on a motion
type RatificationVote struct {
	MotionID          string              `json:"motion_id"`
	Yeas              int                 `json:"yeas"`
	Nays              int                 `json:"nays"`
	Abstentions       int                 `json:"abstentions"`
	ThresholdType     ThresholdType       `json:"threshold_type"`
	ThresholdRequired int                 `json:"threshold_required"`
	ThresholdMet      bool                `json:"threshold_met"`
	Outcome           RatificationOutcome `json:"outcome"`
	TallySource       TallySource         `json:"tally_source"`
}

// PipelineCounts combines the counts of every phase of a run
type PipelineCounts struct {
	Motions            int `json:"motions"`
	LowRisk            int `json:"low_risk"`
	MediumRisk         int `json:"medium_risk"`
	HighRisk           int `json:"high_risk"`
	Packets            int `json:"packets"`
	Assignments        int `json:"assignments"`
	ResponsesReceived  int `json:"responses_received"`
	MalformedResponses int `json:"malformed_responses"`
	NoResponses        int `json:"no_responses"`
	ConsensusReached   int `json:"consensus_reached"`
	Contested          int `json:"contested"`
	Panels             int `json:"panels"`
	FallbackPanels     int `json:"fallback_panels"`
	Ratified           int `json:"ratified"`
	Rejected           int `json:"rejected"`
	Deferred           int `json:"deferred"`
}

// PipelineResult represents the full record of one pipeline run
type PipelineResult struct {
	SessionID    string              `json:"session_id"`
	StartedAt    time.Time           `json:"started_at"`
	CompletedAt  time.Time           `json:"completed_at"`
	Triage       TriageSummary       `json:"triage"`
	Packets      []ReviewAssignment  `json:"packets"`
	Responses    []ReviewResponse    `json:"responses"`
	Aggregations []ReviewAggregation `json:"aggregations"`
	Panels       []DeliberationPanel `json:"panels"`
	Votes        []RatificationVote  `json:"votes"`
	Counts       PipelineCounts      `json:"counts"`
	AuditTrail   []AuditEvent        `json:"audit_trail"`
}

// SessionMetadata represents session list metadata
type SessionMetadata struct {
	SessionID   string    `json:"session_id"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	Motions     int       `json:"motions"`
	Ratified    int       `json:"ratified"`
	Rejected    int       `json:"rejected"`
	Deferred    int       `json:"deferred"`
}

// RunSessionRequest represents a request to run the pipeline.
// Export takes precedence over ExportURL.
type RunSessionRequest struct {
	SessionID string        `json:"session_id"`
	Export    *MotionExport `json:"export"`
	ExportURL string        `json:"export_url"`
}
