package dto

import "github.com/campus-ops/clearance-api/internal/models"

// CreateReportRequest enqueues an asynchronous report job.
type CreateReportRequest struct {
	Type         models.ReportType   `json:"type" validate:"required"`
	Format       models.ReportFormat `json:"format" validate:"required"`
	Semester     string              `json:"semester"`
	AcademicYear string              `json:"academic_year"`
	FormType     models.FormType     `json:"form_type"`
	OfficeRole   models.OfficeRole   `json:"office_role"`
}

// ReportJobResponse describes job state to API clients.
type ReportJobResponse struct {
	Job         models.ReportJob `json:"job"`
	DownloadURL *string          `json:"download_url,omitempty"`
}

// MaintenanceReport summarises a repair sweep over slot records.
type MaintenanceReport struct {
	DuplicatesRemoved int `json:"duplicates_removed"`
	OrphansRemoved    int `json:"orphans_removed"`
	FormsRecomputed   int `json:"forms_recomputed"`
}
