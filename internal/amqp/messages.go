package amqp

import (
	"encoding/json"
	"time"
)

// Activity actions carried on the queue.
const (
	ActionExpenseCreated = "expense_created"
	ActionExpenseUpdated = "expense_updated"
	ActionExpenseDeleted = "expense_deleted"
	ActionSettledUp      = "settled_up"
	ActionMemberInvited  = "member_invited"
	ActionMemberJoined   = "member_joined"
)

// ActivityMessage represents a lightweight group activity event. It carries
// only identifiers; the worker fetches whatever else it needs from the
// database. TargetID is set only on invitations, where the one user to
// notify is pending rather than joined.
type ActivityMessage struct {
	GroupID   int64     `json:"group_id"`
	ActorID   string    `json:"actor_id"`
	Action    string    `json:"action"`
	ExpenseID int64     `json:"expense_id,omitempty"`
	TargetID  string    `json:"target_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewActivityMessage creates a new activity message stamped with the current time
func NewActivityMessage(groupID int64, actorID, action string, expenseID int64) *ActivityMessage {
	return &ActivityMessage{
		GroupID:   groupID,
		ActorID:   actorID,
		Action:    action,
		ExpenseID: expenseID,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ActivityMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ActivityMessageFromJSON creates a message from JSON bytes
func ActivityMessageFromJSON(data []byte) (*ActivityMessage, error) {
	var msg ActivityMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
