package entity

import (
	"testing"

	"lotledger/internal/core/apperror"
)

func docWithStatus(status DocumentStatus) *Document {
	d := NewDocument()
	d.Status = status
	return &d
}

func TestGuardTransition(t *testing.T) {
	tests := []struct {
		name         string
		status       DocumentStatus
		action       string
		postedStatus DocumentStatus
		wantOK       bool
	}{
		{"confirm from new", StatusNew, ActionConfirm, StatusReceived, true},
		{"confirm from confirmed", StatusConfirmed, ActionConfirm, StatusReceived, false},
		{"confirm from canceled", StatusCanceled, ActionConfirm, StatusReceived, false},

		{"post from confirmed", StatusConfirmed, ActionPost, StatusReceived, true},
		{"post from new", StatusNew, ActionPost, StatusReceived, false},
		{"post twice", StatusReceived, ActionPost, StatusReceived, false},

		{"complete posted receipt", StatusReceived, ActionComplete, StatusReceived, true},
		{"complete posted issue", StatusIssued, ActionComplete, StatusIssued, true},
		{"complete unposted", StatusConfirmed, ActionComplete, StatusReceived, false},
		{"complete completed", StatusCompleted, ActionComplete, StatusReceived, false},

		{"cancel new", StatusNew, ActionCancel, StatusReceived, true},
		{"cancel confirmed", StatusConfirmed, ActionCancel, StatusReceived, true},
		{"cancel posted", StatusIssued, ActionCancel, StatusIssued, true},
		{"cancel completed", StatusCompleted, ActionCancel, StatusReceived, false},
		{"cancel canceled", StatusCanceled, ActionCancel, StatusReceived, false},

		{"unknown action", StatusNew, "reopen", StatusReceived, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := docWithStatus(tt.status)
			err := doc.GuardTransition("stock_receipt", tt.action, tt.postedStatus)
			if tt.wantOK && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.wantOK {
				if !apperror.IsInvalidTransition(err) {
					t.Fatalf("got %v, want INVALID_TRANSITION", err)
				}
			}
		})
	}
}

func TestCanModify(t *testing.T) {
	if err := docWithStatus(StatusNew).CanModify(); err != nil {
		t.Errorf("new document must be modifiable: %v", err)
	}
	for _, status := range []DocumentStatus{StatusConfirmed, StatusReceived, StatusIssued, StatusCompleted, StatusCanceled} {
		if err := docWithStatus(status).CanModify(); !apperror.IsInvalidTransition(err) {
			t.Errorf("status %s: got %v, want INVALID_TRANSITION", status, err)
		}
	}
}

func TestMarkPosted(t *testing.T) {
	doc := docWithStatus(StatusConfirmed)
	v := doc.PostedVersion

	doc.MarkPosted(StatusReceived)

	if doc.Status != StatusReceived {
		t.Errorf("status: got %s, want received", doc.Status)
	}
	if doc.PostedVersion != v+1 {
		t.Errorf("posted version: got %d, want %d", doc.PostedVersion, v+1)
	}
	if !doc.IsPosted() {
		t.Error("IsPosted must be true after MarkPosted")
	}
}

func TestStatusTerminal(t *testing.T) {
	for _, status := range []DocumentStatus{StatusNew, StatusConfirmed, StatusReceived, StatusIssued} {
		if status.IsTerminal() {
			t.Errorf("%s must not be terminal", status)
		}
	}
	for _, status := range []DocumentStatus{StatusCompleted, StatusCanceled} {
		if !status.IsTerminal() {
			t.Errorf("%s must be terminal", status)
		}
	}
}
