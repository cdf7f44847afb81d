package statemachine

import (
	"errors"
	"testing"
)

func TestDocumentTransitions(t *testing.T) {
	sm := NewDocumentStateMachine()

	allowed := []struct{ from, to DocumentStatus }{
		{DocStatusInProgress, DocStatusCompleted},
		{DocStatusInProgress, DocStatusFailed},
		{DocStatusInProgress, DocStatusNeedsReview},
		{DocStatusInProgress, DocStatusPaused},
		{DocStatusNeedsReview, DocStatusInProgress},
		{DocStatusPaused, DocStatusInProgress},
	}
	for _, tr := range allowed {
		if !sm.CanTransition(tr.from, tr.to) {
			t.Fatalf("%s -> %s should be allowed", tr.from, tr.to)
		}
	}

	denied := []struct{ from, to DocumentStatus }{
		{DocStatusCompleted, DocStatusInProgress},
		{DocStatusFailed, DocStatusInProgress},
		{DocStatusCompleted, DocStatusFailed},
		{DocStatusPaused, DocStatusCompleted},
		{DocStatusNeedsReview, DocStatusFailed},
		{DocStatusInProgress, DocStatusInProgress},
	}
	for _, tr := range denied {
		if sm.CanTransition(tr.from, tr.to) {
			t.Fatalf("%s -> %s should be denied", tr.from, tr.to)
		}
	}
}

func TestValidateTransitionError(t *testing.T) {
	sm := NewDocumentStateMachine()
	err := sm.ValidateTransition(DocStatusCompleted, DocStatusInProgress)
	var transErr *InvalidStateTransitionError
	if !errors.As(err, &transErr) {
		t.Fatalf("expected InvalidStateTransitionError, got %v", err)
	}
}

func TestTerminalAndAdvance(t *testing.T) {
	if !IsTerminal(DocStatusCompleted) || !IsTerminal(DocStatusFailed) {
		t.Fatalf("completed/failed should be terminal")
	}
	if IsTerminal(DocStatusPaused) || IsTerminal(DocStatusNeedsReview) {
		t.Fatalf("paused/needs_review are not terminal")
	}
	if !CanAdvance(DocStatusInProgress) {
		t.Fatalf("in_progress should be advanceable")
	}
	for _, s := range []DocumentStatus{DocStatusPaused, DocStatusNeedsReview, DocStatusCompleted, DocStatusFailed} {
		if CanAdvance(s) {
			t.Fatalf("%s should not be advanceable", s)
		}
	}
	if !CanResume(DocStatusPaused) || !CanResume(DocStatusNeedsReview) {
		t.Fatalf("paused/needs_review should be resumable")
	}
	if CanResume(DocStatusCompleted) || CanResume(DocStatusInProgress) {
		t.Fatalf("completed/in_progress should not be resumable")
	}
}
