package models

import "time"

// RegistrationStatRow aggregates registrations for one grouping bucket.
type RegistrationStatRow struct {
	Department string `db:"department" json:"department"`
	Program    string `db:"program" json:"program"`
	Level      int    `db:"level" json:"level"`
	Semester   string `db:"semester" json:"semester"`
	Pending    int    `db:"pending" json:"pending"`
	Approved   int    `db:"approved" json:"approved"`
	Rejected   int    `db:"rejected" json:"rejected"`
	Dropped    int    `db:"dropped" json:"dropped"`
	Total      int    `db:"total" json:"total"`
}

// CourseFillRow reports how full a capacity-limited course is.
type CourseFillRow struct {
	CourseID          string  `db:"course_id" json:"course_id"`
	Code              string  `db:"code" json:"code"`
	Title             string  `db:"title" json:"title"`
	MaxStudents       *int    `db:"max_students" json:"max_students,omitempty"`
	CurrentEnrollment int     `db:"current_enrollment" json:"current_enrollment"`
	FillRate          float64 `db:"fill_rate" json:"fill_rate"`
}

// PaymentStatRow aggregates payments for one grouping bucket.
type PaymentStatRow struct {
	Department  string `db:"department" json:"department"`
	PaymentType string `db:"payment_type" json:"payment_type"`
	Status      string `db:"status" json:"status"`
	Count       int    `db:"count" json:"count"`
	TotalAmount int64  `db:"total_amount" json:"total_amount"`
}

// RegistrationDashboard is the cached admin dashboard payload for
// registration statistics.
type RegistrationDashboard struct {
	ByGroup     []RegistrationStatRow `json:"by_group"`
	CourseFill  []CourseFillRow       `json:"course_fill"`
	GeneratedAt time.Time             `json:"generated_at"`
}

// PaymentDashboard is the cached admin dashboard payload for payment
// statistics.
type PaymentDashboard struct {
	ByGroup     []PaymentStatRow `json:"by_group"`
	GeneratedAt time.Time        `json:"generated_at"`
}
