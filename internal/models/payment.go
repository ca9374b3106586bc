package models

import "time"

// PaymentStatus represents the reconciliation state of a payment.
type PaymentStatus string

// Possible payment statuses. All statuses other than PENDING are terminal.
const (
	PaymentStatusPending    PaymentStatus = "PENDING"
	PaymentStatusSuccessful PaymentStatus = "SUCCESSFUL"
	PaymentStatusFailed     PaymentStatus = "FAILED"
	PaymentStatusAbandoned  PaymentStatus = "ABANDONED"
)

// Terminal reports whether no further transition may leave this status.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusSuccessful || s == PaymentStatusFailed || s == PaymentStatusAbandoned
}

// Payment records a single gateway charge attempt by a student.
//
// Reference is generated locally before the gateway is contacted;
// GatewayReference is stored once the gateway acknowledges initialization
// and is unique from then on. Status only ever moves forward: a terminal
// status is never overwritten, and SUCCESSFUL in particular is sticky.
type Payment struct {
	ID               string        `db:"id" json:"id"`
	StudentID        string        `db:"student_id" json:"student_id"`
	Reference        string        `db:"reference" json:"reference"`
	GatewayReference *string       `db:"gateway_reference" json:"gateway_reference,omitempty"`
	AccessCode       *string       `db:"access_code" json:"access_code,omitempty"`
	Amount           int64         `db:"amount" json:"amount"`
	Currency         string        `db:"currency" json:"currency"`
	PaymentType      string        `db:"payment_type" json:"payment_type"`
	Department       string        `db:"department" json:"department"`
	Description      string        `db:"description" json:"description"`
	Status           PaymentStatus `db:"status" json:"status"`
	Channel          string        `db:"channel" json:"channel"`
	IPAddress        string        `db:"ip_address" json:"ip_address"`
	UserAgent        string        `db:"user_agent" json:"user_agent"`
	FailureReason    string        `db:"failure_reason" json:"failure_reason,omitempty"`
	PaidAt           *time.Time    `db:"paid_at" json:"paid_at,omitempty"`
	OutcomeAppliedAt *time.Time    `db:"outcome_applied_at" json:"outcome_applied_at,omitempty"`
	CreatedAt        time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time     `db:"updated_at" json:"updated_at"`
}

// PaymentOutcome is the authoritative result reported by the gateway for
// a payment, whether it arrived through a verify call or a webhook event.
type PaymentOutcome struct {
	Status        PaymentStatus
	PaidAt        *time.Time
	Channel       string
	IPAddress     string
	FailureReason string
	Source        string
}

// PaymentFilter provides filters for listing payments.
type PaymentFilter struct {
	StudentID   string
	Status      PaymentStatus
	PaymentType string
	Department  string
	Page        int
	PageSize    int
	SortBy      string
	SortOrder   string
}
