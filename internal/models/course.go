package models

import "time"

// Semester identifies the academic semester a course runs in.
type Semester string

// Supported semesters.
const (
	SemesterFirst  Semester = "FIRST"
	SemesterSecond Semester = "SECOND"
)

// Valid reports whether the semester is one of the supported values.
func (s Semester) Valid() bool {
	return s == SemesterFirst || s == SemesterSecond
}

// Course represents a registrable course offering.
//
// CurrentEnrollment counts APPROVED registrations only and is mutated
// exclusively through the seat reservation queries in the course
// repository, never through course CRUD.
type Course struct {
	ID                string    `db:"id" json:"id"`
	Code              string    `db:"code" json:"code"`
	Title             string    `db:"title" json:"title"`
	CreditUnits       int       `db:"credit_units" json:"credit_units"`
	Department        string    `db:"department" json:"department"`
	Program           string    `db:"program" json:"program"`
	Level             int       `db:"level" json:"level"`
	Semester          Semester  `db:"semester" json:"semester"`
	Active            bool      `db:"active" json:"active"`
	MaxStudents       *int      `db:"max_students" json:"max_students,omitempty"`
	CurrentEnrollment int       `db:"current_enrollment" json:"current_enrollment"`
	CreatedBy         string    `db:"created_by" json:"created_by"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// HasCapacity reports whether the course can accept one more approved
// registration based on the values currently loaded in memory. The
// authoritative check happens in the conditional seat reservation query.
func (c *Course) HasCapacity() bool {
	if c.MaxStudents == nil {
		return true
	}
	return c.CurrentEnrollment < *c.MaxStudents
}

// CourseFilter captures filtering criteria for listing courses.
type CourseFilter struct {
	Department string
	Program    string
	Level      int
	Semester   Semester
	Active     *bool
	Search     string
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}
