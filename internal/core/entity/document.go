package entity

import (
	"context"
	"time"

	"lotledger/internal/core/apperror"
)

// DocumentStatus is the lifecycle state of a stock document.
// Stored as an integer so the ordering of the happy path is explicit.
type DocumentStatus int

const (
	StatusNew       DocumentStatus = 0
	StatusConfirmed DocumentStatus = 1
	StatusReceived  DocumentStatus = 2
	StatusIssued    DocumentStatus = 3
	StatusCompleted DocumentStatus = 4
	StatusCanceled  DocumentStatus = 9
)

// String returns a human-readable status name.
func (s DocumentStatus) String() string {
	switch s {
	case StatusNew:
		return "new"
	case StatusConfirmed:
		return "confirmed"
	case StatusReceived:
		return "received"
	case StatusIssued:
		return "issued"
	case StatusCompleted:
		return "completed"
	case StatusCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no further transitions are possible.
func (s DocumentStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCanceled
}

// Action names for document transitions.
const (
	ActionConfirm  = "confirm"
	ActionPost     = "post"
	ActionComplete = "complete"
	ActionCancel   = "cancel"
)

// Document is the base type for stock documents (receipt, issue, transfer).
type Document struct {
	BaseDocument

	// Number is the formatted document number (unique within type+year)
	Number string `db:"number" json:"number"`

	// Date is the business date of the document
	Date time.Time `db:"date" json:"date"`

	// Status is the lifecycle state
	Status DocumentStatus `db:"status" json:"status"`

	// PostedVersion tracks posting iterations for movement reconciliation
	PostedVersion int `db:"posted_version" json:"postedVersion"`

	// ApprovedBy is the actor who confirmed the document
	ApprovedBy string `db:"approved_by" json:"approvedBy,omitempty"`

	// Comment is an optional user comment
	Comment string `db:"comment" json:"comment,omitempty"`
}

// NewDocument creates a new Document in StatusNew.
func NewDocument() Document {
	return Document{
		BaseDocument: NewBaseDocument(),
		Date:         time.Now().UTC(),
		Status:       StatusNew,
	}
}

// Validate implements Validatable.
func (d *Document) Validate(ctx context.Context) error {
	if d.Date.IsZero() {
		return apperror.NewValidation("date is required").
			WithDetail("field", "date")
	}
	return nil
}

// CanModify checks if the document body may still change.
// Anything past StatusNew is gated through transitions only.
func (d *Document) CanModify() error {
	if d.Status != StatusNew {
		return apperror.NewInvalidTransition("Document", "modify", d.Status.String()).
			WithDetail("document_id", d.ID.String())
	}
	return nil
}

// GuardTransition verifies that action is legal from the current status for
// a document whose posting moves it to postedStatus (StatusReceived for
// receipts, StatusIssued for issues and transfers). A mismatched source
// status always fails; there is no silent no-op.
func (d *Document) GuardTransition(docType, action string, postedStatus DocumentStatus) error {
	ok := false
	switch action {
	case ActionConfirm:
		ok = d.Status == StatusNew
	case ActionPost:
		ok = d.Status == StatusConfirmed
	case ActionComplete:
		ok = d.Status == postedStatus
	case ActionCancel:
		ok = !d.Status.IsTerminal()
	}
	if !ok {
		return apperror.NewInvalidTransition(docType, action, d.Status.String())
	}
	return nil
}

// IsPosted reports whether stock mutations for this document are recorded.
func (d *Document) IsPosted() bool {
	return d.Status == StatusReceived || d.Status == StatusIssued || d.Status == StatusCompleted
}

// MarkPosted moves the document to its posted status and bumps the posting
// iteration counter.
func (d *Document) MarkPosted(postedStatus DocumentStatus) {
	d.Status = postedStatus
	d.PostedVersion++
	d.Touch()
}
