package main

import (
	"errors"
	"fmt"
)

// ErrRosterSize is returned when a roster does not hold exactly RosterSize members
var ErrRosterSize = errors.New("roster must contain exactly 72 members")

// ErrSessionExists is returned when a session id is already taken
var ErrSessionExists = errors.New("session already exists")

// ErrSessionSave wraps failures persisting a completed session
var ErrSessionSave = errors.New("failed to save session")

// InputMissingError reports a required upstream input that is absent.
// It is the only error that aborts a pipeline run.
type InputMissingError struct {
	Input string
	Err   error
}

func (e *InputMissingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("required input %s missing: %v", e.Input, e.Err)
	}
	return fmt.Sprintf("required input %s missing", e.Input)
}

func (e *InputMissingError) Unwrap() error { return e.Err }

// ReviewerInvocationError reports a failed or timed-out Reviewer call for one member
type ReviewerInvocationError struct {
	Member   string
	MotionID string
	Err      error
}

func (e *ReviewerInvocationError) Error() string {
	if e.MotionID == "" {
		return fmt.Sprintf("reviewer call for %s failed: %v", e.Member, e.Err)
	}
	return fmt.Sprintf("reviewer call for %s on %s failed: %v", e.Member, e.MotionID, e.Err)
}

func (e *ReviewerInvocationError) Unwrap() error { return e.Err }

// ValidationError reports a review decision that cannot be accepted
type ValidationError struct {
	Member   string
	MotionID string
	Field    string
	Reason   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid review from %s on %s: %s %s", e.Member, e.MotionID, e.Field, e.Reason)
}

// PanelDeliberationError reports a failed Deliberator call for a contested motion
type PanelDeliberationError struct {
	MotionID string
	Err      error
}

func (e *PanelDeliberationError) Error() string {
	return fmt.Sprintf("panel deliberation for %s failed: %v", e.MotionID, e.Err)
}

func (e *PanelDeliberationError) Unwrap() error { return e.Err }
