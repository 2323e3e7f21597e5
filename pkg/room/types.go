package room

import (
	"encoding/json"
	"time"
)

// MemberID is the connection-scoped identity of a participant (the socket id).
// One user on several devices appears as several members.
type MemberID string

// Notifier delivers fire-and-forget events to a member's connection.
// Implementations must not block; the registry calls Notify while holding a room lock.
type Notifier interface {
	Notify(method string, params any)
}

type Member struct {
	ID          MemberID
	UserID      string
	DisplayName string
	JoinedAt    time.Time
}

type TransportState int

const (
	TransportCreated TransportState = iota
	TransportConnecting
	TransportConnected
	TransportFailed
	TransportClosed
)

func (s TransportState) String() string {
	switch s {
	case TransportCreated:
		return "created"
	case TransportConnecting:
		return "connecting"
	case TransportConnected:
		return "connected"
	case TransportFailed:
		return "failed"
	case TransportClosed:
		return "closed"
	default:
		return "unknown"
	}
}

type Transport struct {
	ID        string
	RoomID    string
	MemberID  MemberID
	Producing bool
	Consuming bool
	State     TransportState
	CreatedAt time.Time
}

type Producer struct {
	ID          string
	RoomID      string
	MemberID    MemberID
	UserID      string
	TransportID string
	Kind        string
	Screen      bool
	AppData     json.RawMessage
	CreatedAt   time.Time
}

type Consumer struct {
	ID          string
	RoomID      string
	MemberID    MemberID
	ProducerID  string
	TransportID string
	// Options is the media server's consumer description, replayed on idempotent retries.
	Options json.RawMessage
}

type JoinResult struct {
	// Created reports whether this join brought the room into existence.
	Created bool
	// Existing reports an idempotent re-join of a member already present.
	Existing bool
	// Producers lists the active producers of every other member.
	Producers []Producer
}

// LeaveResult describes everything the cascade removed.
type LeaveResult struct {
	Member     Member
	Removed    bool
	Transports []Transport
	Producers  []Producer
	Consumers  []Consumer
}

func (r LeaveResult) ProducerIDs() []string {
	ids := make([]string, 0, len(r.Producers))
	for _, p := range r.Producers {
		ids = append(ids, p.ID)
	}
	return ids
}
