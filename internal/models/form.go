package models

import "time"

// FormType enumerates the clearance form categories.
type FormType string

const (
	FormTypeClearance  FormType = "clearance"
	FormTypeEnrollment FormType = "enrollment"
	FormTypeGraduation FormType = "graduation"
)

// FormStatus is the aggregate status of a form across its roster.
type FormStatus string

const (
	FormStatusPending     FormStatus = "pending"
	FormStatusInProgress  FormStatus = "in_progress"
	FormStatusApproved    FormStatus = "approved"
	FormStatusDisapproved FormStatus = "disapproved"
)

// Final reports whether the status is terminal for the current decision round.
// A disapproved form can re-enter the workflow through resubmission.
func (s FormStatus) Final() bool {
	return s == FormStatusApproved || s == FormStatusDisapproved
}

// TracksInProgress reports whether partially decided forms of this type are
// surfaced as in_progress. Enrollment and graduation stay pending until they
// finalize.
func (t FormType) TracksInProgress() bool {
	switch t {
	case FormTypeEnrollment, FormTypeGraduation:
		return false
	}
	return true
}

// Form is a student's clearance request routed across the signing roster.
type Form struct {
	ID           string     `db:"id" json:"id"`
	StudentID    string     `db:"student_id" json:"student_id"`
	Type         FormType   `db:"form_type" json:"form_type"`
	Semester     string     `db:"semester" json:"semester"`
	AcademicYear string     `db:"academic_year" json:"academic_year"`
	Section      *string    `db:"section" json:"section,omitempty"`
	Status       FormStatus `db:"status" json:"status"`
	SubmittedAt  time.Time  `db:"submitted_at" json:"submitted_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
	FinalizedAt  *time.Time `db:"finalized_at" json:"finalized_at,omitempty"`
}

// FormFilter constrains listing queries.
type FormFilter struct {
	StudentID    string
	Type         FormType
	Status       []FormStatus
	Semester     string
	AcademicYear string
	Limit        int
	Offset       int
}

// ValidFormType reports whether the form type is known.
func ValidFormType(t FormType) bool {
	switch t {
	case FormTypeClearance, FormTypeEnrollment, FormTypeGraduation:
		return true
	}
	return false
}
