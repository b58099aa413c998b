// Package access decides who may do what to an absence. Every predicate is
// a pure function over the actor and the record facts passed in; nothing
// here touches storage or the request context.
package access

import "absence-api/internal/model"

type Operation string

const (
	OpView    Operation = "view"
	OpEdit    Operation = "edit"
	OpApprove Operation = "approve"
	OpReject  Operation = "reject"
	OpExport  Operation = "export"
	OpList    Operation = "list"
)

// CanPerform is the authorization matrix. Workflow gates (pending-only
// edits, rejected immutability) are layered on top by the absence service;
// this answers only the role/ownership question.
func CanPerform(actor model.Actor, ownerID string, _ model.AbsenceType, status model.AbsenceStatus, op Operation) bool {
	if actor.Is(model.RoleDeanOffice) {
		return true
	}

	owner := actor.ID != "" && actor.ID == ownerID

	switch op {
	case OpView:
		if owner {
			return true
		}
		// Teachers (and admins, who carry no extra absence rights) see
		// approved records only.
		return (actor.Is(model.RoleTeacher) || actor.Is(model.RoleAdmin)) && status == model.StatusApproved
	case OpEdit:
		return owner
	case OpApprove, OpReject:
		return false
	case OpExport:
		return actor.Is(model.RoleTeacher) || actor.Is(model.RoleAdmin)
	case OpList:
		return true
	}

	return false
}

// CanManageUsers gates the user-directory endpoints, which sit outside the
// absence workflow.
func CanManageUsers(actor model.Actor) bool {
	return actor.Is(model.RoleAdmin) || actor.Is(model.RoleDeanOffice)
}

// CanListUsers allows reviewers to resolve student names for filtering.
func CanListUsers(actor model.Actor) bool {
	return actor.Is(model.RoleAdmin) || actor.Is(model.RoleDeanOffice) || actor.Is(model.RoleTeacher)
}

// ScopeQuery narrows a listing or export to the caller's visibility.
// onlyMine restricts teachers to their own submissions; it is a no-op for
// everyone else because their scope is already owner-bound or unrestricted.
func ScopeQuery(actor model.Actor, onlyMine bool) model.AbsenceScope {
	if actor.Is(model.RoleDeanOffice) {
		return model.AbsenceScope{Unrestricted: true}
	}

	if actor.Is(model.RoleTeacher) || actor.Is(model.RoleAdmin) {
		if onlyMine {
			return model.AbsenceScope{OwnerID: actor.ID}
		}
		return model.AbsenceScope{OwnerID: actor.ID, IncludeApproved: true}
	}

	if actor.Is(model.RoleStudent) {
		return model.AbsenceScope{OwnerID: actor.ID}
	}

	// No absence-facing role: the zero scope matches nothing.
	return model.AbsenceScope{}
}

// ExportScope is the export variant of ScopeQuery: teachers may export
// approved records only, never their own pending ones.
func ExportScope(actor model.Actor) (model.AbsenceScope, bool) {
	if actor.Is(model.RoleDeanOffice) {
		return model.AbsenceScope{Unrestricted: true}, true
	}
	if actor.Is(model.RoleTeacher) || actor.Is(model.RoleAdmin) {
		return model.AbsenceScope{IncludeApproved: true}, true
	}
	return model.AbsenceScope{}, false
}
