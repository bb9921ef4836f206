package domain

import "time"

type Diagram struct {
	ID          string
	WorkspaceID string
}

type Thread struct {
	ID          string
	WorkspaceID string
	DiagramID   string
}

// NewMessage is a chat message before persistence.
type NewMessage struct {
	ThreadID        string
	UserID          UserID
	Content         string
	ClientMessageID string
}

type Message struct {
	ID              string
	ThreadID        string
	UserID          UserID
	Content         string
	ClientMessageID string
	CreatedAt       time.Time
}
