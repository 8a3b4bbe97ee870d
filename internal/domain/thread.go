package domain

import "errors"

// ThreadKind discriminates the two kinds of message thread.
type ThreadKind int

const (
	ThreadDirect ThreadKind = iota + 1
	ThreadGroup
)

func (k ThreadKind) String() string {
	switch k {
	case ThreadDirect:
		return "direct"
	case ThreadGroup:
		return "group"
	default:
		return "unknown"
	}
}

// ErrThreadTarget is returned when a thread is addressed by both or neither
// of a conversation id and a group id.
var ErrThreadTarget = errors.New("exactly one of conversation id or group id is required")

// Thread identifies where a message lives. The zero value is invalid; build
// one with DirectThread, GroupThread or NewThread.
type Thread struct {
	kind ThreadKind
	id   string
}

// DirectThread addresses the 1:1 thread with the shared conversation key.
func DirectThread(conversationID string) Thread {
	return Thread{kind: ThreadDirect, id: conversationID}
}

// GroupThread addresses a group thread.
func GroupThread(groupID string) Thread {
	return Thread{kind: ThreadGroup, id: groupID}
}

// NewThread resolves an optional pair of ids into a Thread, rejecting the
// ambiguous and empty cases.
func NewThread(conversationID, groupID string) (Thread, error) {
	switch {
	case conversationID != "" && groupID == "":
		return DirectThread(conversationID), nil
	case groupID != "" && conversationID == "":
		return GroupThread(groupID), nil
	default:
		return Thread{}, ErrThreadTarget
	}
}

func (t Thread) Kind() ThreadKind { return t.kind }
func (t Thread) ID() string       { return t.id }
func (t Thread) IsZero() bool     { return t.kind == 0 || t.id == "" }

// Key is a stable string form used for realtime channel names.
func (t Thread) Key() string { return t.kind.String() + ":" + t.id }

// SetThread points m at t, clearing the other column.
func (m *Message) SetThread(t Thread) {
	id := t.id
	switch t.kind {
	case ThreadDirect:
		m.ConversationID, m.GroupID = &id, nil
	case ThreadGroup:
		m.ConversationID, m.GroupID = nil, &id
	}
}

// Thread returns the thread m belongs to.
func (m *Message) Thread() Thread {
	if m.ConversationID != nil && *m.ConversationID != "" {
		return DirectThread(*m.ConversationID)
	}
	if m.GroupID != nil && *m.GroupID != "" {
		return GroupThread(*m.GroupID)
	}
	return Thread{}
}
