package event

type Type string

const (
	TypeAbsenceCreated  Type = "absence.created"
	TypeAbsenceUpdated  Type = "absence.updated"
	TypeAbsenceExtended Type = "absence.extended"
	TypeAbsenceApproved Type = "absence.approved"
	TypeAbsenceRejected Type = "absence.rejected"
)

type Event struct {
	ID        string      `json:"id"`
	Type      Type        `json:"type"`
	Payload   interface{} `json:"payload"`
	Timestamp string      `json:"timestamp"`
	ActorID   string      `json:"actor_id,omitempty"`
}

// Bus is the notification sink: publish is fire-and-forget, delivery is
// best-effort.
type Bus interface {
	Publish(e Event)
	Subscribe() (<-chan Event, func())
}
