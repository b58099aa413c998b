package repository

import (
	"fmt"
	"strings"

	"absence-api/internal/model"
)

// buildAbsenceFilter renders an AbsenceQuery into a WHERE clause over the
// absences/users join (aliases a and u). Kept free of pool access so the
// translation of scopes and filters is testable without a database.
func buildAbsenceFilter(q model.AbsenceQuery) (string, []any) {
	where := make([]string, 0, 8)
	args := make([]any, 0, 8)
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	switch scope := q.Scope; {
	case scope.Unrestricted:
		// no clause
	case scope.OwnerID != "" && scope.IncludeApproved:
		where = append(where, fmt.Sprintf("(a.owner_id = %s OR a.status = %s)",
			next(scope.OwnerID), next(string(model.StatusApproved))))
	case scope.OwnerID != "":
		where = append(where, "a.owner_id = "+next(scope.OwnerID))
	case scope.IncludeApproved:
		where = append(where, "a.status = "+next(string(model.StatusApproved)))
	default:
		// An empty scope must match nothing rather than everything.
		where = append(where, "FALSE")
	}

	if q.Status != nil {
		where = append(where, "a.status = "+next(string(*q.Status)))
	}
	if q.Type != nil {
		where = append(where, "a.type = "+next(string(*q.Type)))
	}
	if name := strings.TrimSpace(q.StudentName); name != "" {
		where = append(where, fmt.Sprintf("lower(u.full_name) LIKE lower(%s)", next("%"+name+"%")))
	}
	if group := strings.TrimSpace(q.Group); group != "" {
		where = append(where, fmt.Sprintf("lower(u.group_id) LIKE lower(%s)", next("%"+group+"%")))
	}

	// Date window: keep absences whose [start,end] range overlaps [from,to].
	// Open-ended absence dates never exclude a record.
	if q.From != nil {
		where = append(where, fmt.Sprintf("(a.end_date IS NULL OR a.end_date >= %s)", next(*q.From)))
	}
	if q.To != nil {
		where = append(where, fmt.Sprintf("(a.start_date IS NULL OR a.start_date <= %s)", next(*q.To)))
	}

	if len(q.OwnerIDs) > 0 {
		where = append(where, "a.owner_id = ANY("+next(q.OwnerIDs)+")")
	}

	if len(where) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(where, " AND "), args
}

func orderClause(sort model.AbsenceSort) string {
	switch sort {
	case model.SortCreatedAsc:
		return "ORDER BY a.created_at ASC"
	case model.SortUpdatedAsc:
		return "ORDER BY a.updated_at ASC"
	case model.SortUpdatedDesc:
		return "ORDER BY a.updated_at DESC"
	default:
		return "ORDER BY a.created_at DESC"
	}
}

func normalizePage(q *model.AbsenceQuery) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit <= 0 {
		q.Limit = 20
	}
	if q.Limit > 200 {
		q.Limit = 200
	}
}
