package core

import (
	"github.com/dkeye/canvas-presence/internal/domain"
)

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []ConnectionID
	// Closed counts members already shutting down; they are not backpressure.
	Closed int
}

// RoomService is a single broadcast group.
// It owns the membership set but never touches transport resources.
type RoomService interface {
	ID() domain.RoomID
	MemberCount() int
	Members() []ConnectionID
	Has(cid ConnectionID) bool

	AddMember(cid ConnectionID, sig SignalConnection)
	RemoveMember(cid ConnectionID)
	Broadcast(except ConnectionID, data Frame) PublishResult
}

type RoomInfo struct {
	ID          domain.RoomID `json:"id"`
	MemberCount int           `json:"client_count"`
}
