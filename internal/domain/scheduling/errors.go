package scheduling

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyDraft        = errors.New("no schedules added")
	ErrReasonRequired    = errors.New("a reason is required to change a saved time slot")
	ErrSaveInProgress    = errors.New("draft is being saved")
	ErrSlotNotFound      = errors.New("time slot not found")
	ErrEntryNotFound     = errors.New("no schedule entry for date")
	ErrScheduleNotFound  = errors.New("schedule not found")
	ErrSessionNotFound   = errors.New("draft session not found")
	ErrInvalidTransition = errors.New("status transition not allowed")
	ErrMultiDateUpdate   = errors.New("an existing schedule covers a single date")
)

// ValidationError reports a rejected field value.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// OverlapError names the existing slot a candidate collides with.
type OverlapError struct {
	Date     string
	Existing TimeSlot
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("time slot overlaps with existing slot %s - %s on %s",
		e.Existing.Start, e.Existing.End, e.Date)
}

// EntryFailure is the outcome of one failed per-date persistence request.
type EntryFailure struct {
	Date string `json:"date"`
	Err  error  `json:"-"`
}

// SubmitError aggregates the per-date failures of a multi-date submit.
// Dates not listed were committed.
type SubmitError struct {
	Failures []EntryFailure
}

func (e *SubmitError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", f.Date, f.Err))
	}
	return fmt.Sprintf("failed to save %d schedule(s): %s", len(e.Failures), strings.Join(parts, "; "))
}

// Dates returns the failed dates in submit order.
func (e *SubmitError) Dates() []string {
	out := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		out[i] = f.Date
	}
	return out
}

// RecordError rejects one inbound schedule record.
type RecordError struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record %d: %s", e.Index, e.Reason)
}
