package protocol

// Payload is the closed set of validated inbound variants.
type Payload interface {
	isPayload()
}

type AuthInit struct {
	WorkspaceID string `json:"workspaceId" validate:"required,max=128,excludes=:"`
	DiagramID   string `json:"diagramId,omitempty" validate:"omitempty,max=128,excludes=:"`
	ThreadID    string `json:"threadId,omitempty" validate:"omitempty,max=128"`
}

type PresenceUpdate struct {
	WorkspaceID string `json:"workspaceId" validate:"required,max=128,excludes=:"`
	DiagramID   string `json:"diagramId,omitempty" validate:"omitempty,max=128,excludes=:"`
	State       string `json:"state" validate:"required,oneof=online viewing"`
}

// DiagramRef addresses one diagram room.
type DiagramRef struct {
	WorkspaceID string `json:"workspaceId" validate:"required,max=128,excludes=:"`
	DiagramID   string `json:"diagramId" validate:"required,max=128,excludes=:"`
}

type (
	DiagramJoin      DiagramRef
	DiagramLeave     DiagramRef
	DiagramHeartbeat DiagramRef
)

type Viewport struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Zoom float64 `json:"zoom,omitempty" validate:"omitempty,gt=0"`
}

type DiagramCursor struct {
	WorkspaceID string    `json:"workspaceId" validate:"required,max=128,excludes=:"`
	DiagramID   string    `json:"diagramId" validate:"required,max=128,excludes=:"`
	X           *float64  `json:"x" validate:"required"`
	Y           *float64  `json:"y" validate:"required"`
	Viewport    *Viewport `json:"viewport,omitempty"`
}

const MaxSelectedNodes = 500

type DiagramSelection struct {
	WorkspaceID     string   `json:"workspaceId" validate:"required,max=128,excludes=:"`
	DiagramID       string   `json:"diagramId" validate:"required,max=128,excludes=:"`
	SelectedNodeIDs []string `json:"selectedNodeIds" validate:"required,max=500,dive,required,max=256"`
}

type DocumentUpdated struct {
	WorkspaceID string `json:"workspaceId" validate:"required,max=128,excludes=:"`
	DiagramID   string `json:"diagramId" validate:"required,max=128,excludes=:"`
	UpdatedAt   string `json:"updatedAt,omitempty" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

const (
	MaxContentLen         = 1000
	MaxClientMessageIDLen = 128
)

type ChatSend struct {
	ThreadID        string `json:"threadId" validate:"required,max=128"`
	Content         string `json:"content" validate:"required,max=1000"`
	ClientMessageID string `json:"clientMessageId" validate:"required,max=128"`
}

// ThreadRef addresses one chat thread.
type ThreadRef struct {
	ThreadID string `json:"threadId" validate:"required,max=128"`
}

type (
	ChatTypingStart ThreadRef
	ChatTypingStop  ThreadRef
)

type Ping struct{}

func (*AuthInit) isPayload()         {}
func (*PresenceUpdate) isPayload()   {}
func (*DiagramJoin) isPayload()      {}
func (*DiagramLeave) isPayload()     {}
func (*DiagramHeartbeat) isPayload() {}
func (*DiagramCursor) isPayload()    {}
func (*DiagramSelection) isPayload() {}
func (*DocumentUpdated) isPayload()  {}
func (*ChatSend) isPayload()         {}
func (*ChatTypingStart) isPayload()  {}
func (*ChatTypingStop) isPayload()   {}
func (*Ping) isPayload()             {}
