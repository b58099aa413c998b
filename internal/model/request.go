package model

import (
	"io"
	"time"
)

type RegisterRequest struct {
	FullName string `json:"full_name" validate:"required,min=2,max=200"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=128"`
	GroupID  string `json:"group_id" validate:"max=40"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type UpdateRolesRequest struct {
	Roles []string `json:"roles" validate:"required,min=1,dive,oneof=Student Teacher DeanOffice Admin"`
}

type RejectRequest struct {
	Reason string `json:"reason" validate:"max=2000"`
}

// FileUpload is one incoming attachment before it reaches the blob store.
type FileUpload struct {
	FileName string
	MimeType string
	Content  io.Reader
}

// CreateAbsenceInput carries the parsed multipart form for submission.
type CreateAbsenceInput struct {
	Type              AbsenceType
	StartDate         *time.Time
	EndDate           *time.Time
	DeclarationToDean bool
	Documents         []FileUpload
}

// UpdateAbsenceInput describes the desired state of a pending absence.
// Documents is the full wanted set; anything attached but absent from it
// (by file name) gets removed during reconciliation.
type UpdateAbsenceInput struct {
	StartDate         *time.Time
	EndDate           *time.Time
	DeclarationToDean *bool
	Documents         []FileUpload
}

// ExtendAbsenceInput prolongs an absence: new evidence comes in Documents,
// stale evidence is dropped by explicit id.
type ExtendAbsenceInput struct {
	NewEndDate         *time.Time
	DeclarationToDean  *bool
	Documents          []FileUpload
	RemovedDocumentIDs []string
	// ApproveImmediately lets the dean office extend and approve an academic
	// absence in one step.
	ApproveImmediately bool
}
