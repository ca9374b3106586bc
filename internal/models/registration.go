package models

import "time"

// RegistrationStatus represents the lifecycle of a course registration.
type RegistrationStatus string

// Possible registration statuses.
const (
	RegistrationStatusPending  RegistrationStatus = "PENDING"
	RegistrationStatusApproved RegistrationStatus = "APPROVED"
	RegistrationStatusRejected RegistrationStatus = "REJECTED"
	RegistrationStatusDropped  RegistrationStatus = "DROPPED"
)

// registrationTransitions is the single source of truth for legal status
// transitions and the seat delta each one applies to the course counter.
// Call sites must never re-derive these rules inline.
var registrationTransitions = map[RegistrationStatus]map[RegistrationStatus]int{
	RegistrationStatusPending: {
		RegistrationStatusApproved: +1,
		RegistrationStatusRejected: 0,
		RegistrationStatusDropped:  0,
	},
	RegistrationStatusApproved: {
		RegistrationStatusRejected: -1,
		RegistrationStatusDropped:  -1,
	},
}

// CanTransition reports whether moving from the current status to target
// is a legal registration transition.
func (s RegistrationStatus) CanTransition(target RegistrationStatus) bool {
	targets, ok := registrationTransitions[s]
	if !ok {
		return false
	}
	_, ok = targets[target]
	return ok
}

// SeatDelta returns the course enrollment adjustment for a transition.
// Zero is returned for illegal transitions; callers must check
// CanTransition first.
func (s RegistrationStatus) SeatDelta(target RegistrationStatus) int {
	targets, ok := registrationTransitions[s]
	if !ok {
		return 0
	}
	return targets[target]
}

// Terminal reports whether the status permits no further transitions.
func (s RegistrationStatus) Terminal() bool {
	_, ok := registrationTransitions[s]
	return !ok
}

// CourseRegistration captures a student's request to take a course in a
// given semester and academic year. The tuple (student, course, semester,
// academic year) is unique in any status.
type CourseRegistration struct {
	ID           string             `db:"id" json:"id"`
	StudentID    string             `db:"student_id" json:"student_id"`
	CourseID     string             `db:"course_id" json:"course_id"`
	Semester     Semester           `db:"semester" json:"semester"`
	AcademicYear string             `db:"academic_year" json:"academic_year"`
	Status       RegistrationStatus `db:"status" json:"status"`
	RegisteredAt time.Time          `db:"registered_at" json:"registered_at"`
	ApprovedAt   *time.Time         `db:"approved_at" json:"approved_at,omitempty"`
	ApprovedBy   *string            `db:"approved_by" json:"approved_by,omitempty"`
	Notes        string             `db:"notes" json:"notes"`
}

// RegistrationDetail enriches CourseRegistration with course and student info.
type RegistrationDetail struct {
	CourseRegistration
	CourseCode  string `db:"course_code" json:"course_code"`
	CourseTitle string `db:"course_title" json:"course_title"`
	StudentName string `db:"student_name" json:"student_name"`
}

// RegistrationFilter provides filters for listing registrations.
type RegistrationFilter struct {
	StudentID    string
	CourseID     string
	Semester     Semester
	AcademicYear string
	Status       RegistrationStatus
	Department   string
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}
