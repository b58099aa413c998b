package model

import "time"

type AbsenceType string

const (
	AbsenceSick     AbsenceType = "Sick"
	AbsenceFamily   AbsenceType = "Family"
	AbsenceAcademic AbsenceType = "Academic"
)

func (t AbsenceType) Valid() bool {
	switch t {
	case AbsenceSick, AbsenceFamily, AbsenceAcademic:
		return true
	}
	return false
}

type AbsenceStatus string

const (
	StatusPending  AbsenceStatus = "Pending"
	StatusApproved AbsenceStatus = "Approved"
	StatusRejected AbsenceStatus = "Rejected"
)

func (s AbsenceStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Terminal reports whether the status ends the review workflow. A rejected
// absence stays rejected; an approved one can only be reopened by the dean
// office editing an academic record.
func (s AbsenceStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

type Absence struct {
	ID                string        `json:"id"`
	OwnerID           string        `json:"owner_id"`
	Type              AbsenceType   `json:"type"`
	Status            AbsenceStatus `json:"status"`
	StartDate         *time.Time    `json:"start_date,omitempty"`
	EndDate           *time.Time    `json:"end_date,omitempty"`
	DeclarationToDean bool          `json:"declaration_to_dean"`
	RejectionReason   *string       `json:"rejection_reason,omitempty"`
	Version           int           `json:"version"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// Document is one attachment row. The blob itself lives in the store under
// StorageRef; the row only carries enough to find and name it.
type Document struct {
	ID         string    `json:"id"`
	AbsenceID  string    `json:"absence_id"`
	FileName   string    `json:"file_name"`
	StorageRef string    `json:"-"`
	UploadedAt time.Time `json:"uploaded_at"`
}

type AbsenceDetails struct {
	Absence
	Documents []Document `json:"documents"`
}

// AbsenceRow is the listing projection, joined with the owner for display.
type AbsenceRow struct {
	ID          string        `json:"id"`
	OwnerID     string        `json:"owner_id"`
	StudentName string        `json:"student_name"`
	Group       string        `json:"group"`
	Type        AbsenceType   `json:"type"`
	Status      AbsenceStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// AbsenceExportRow is the flat tabular projection handed to export renderers.
type AbsenceExportRow struct {
	StudentName       string
	Group             string
	Type              AbsenceType
	Status            AbsenceStatus
	StartDate         *time.Time
	EndDate           *time.Time
	DeclarationToDean bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type AbsenceSort string

const (
	SortCreatedDesc AbsenceSort = "created_desc"
	SortCreatedAsc  AbsenceSort = "created_asc"
	SortUpdatedDesc AbsenceSort = "updated_desc"
	SortUpdatedAsc  AbsenceSort = "updated_asc"
)

// AbsenceScope is the visibility boundary a query runs inside. It is set by
// the access policy, never by request input.
type AbsenceScope struct {
	// Unrestricted sees every record regardless of owner or status.
	Unrestricted bool
	// OwnerID limits visibility to that owner's records.
	OwnerID string
	// IncludeApproved additionally exposes approved records of any owner.
	IncludeApproved bool
}

// Empty reports a scope that matches nothing.
func (s AbsenceScope) Empty() bool {
	return !s.Unrestricted && s.OwnerID == "" && !s.IncludeApproved
}

// Matches mirrors the SQL the scope renders to, for use on in-memory data.
func (s AbsenceScope) Matches(ownerID string, status AbsenceStatus) bool {
	if s.Unrestricted {
		return true
	}
	if s.OwnerID != "" && s.OwnerID == ownerID {
		return true
	}
	return s.IncludeApproved && status == StatusApproved
}

// AbsenceQuery combines the policy-set scope with caller-supplied filters,
// sorting and pagination.
type AbsenceQuery struct {
	Scope       AbsenceScope
	Status      *AbsenceStatus
	Type        *AbsenceType
	StudentName string
	Group       string
	From        *time.Time
	To          *time.Time
	OwnerIDs    []string
	Sort        AbsenceSort
	Page        int
	Limit       int
}

// RevokedToken is one ledger entry. Entries past ExpiresAt are dead weight
// and get purged lazily.
type RevokedToken struct {
	Token     string
	ExpiresAt time.Time
}
