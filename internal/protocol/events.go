// Package protocol defines the wire events exchanged with browser tabs:
// inbound payload variants, outbound event bodies and acknowledgements.
package protocol

import (
	"encoding/json"
	"errors"

	"github.com/dkeye/canvas-presence/internal/domain"
)

// Inbound event names.
const (
	EventAuthInit         = "auth:init"
	EventPresenceUpdate   = "presence:update"
	EventDiagramJoin      = "diagram:join"
	EventDiagramLeave     = "diagram:leave"
	EventDiagramCursor    = "diagram:cursor"
	EventDiagramSelection = "diagram:selection"
	EventDiagramHeartbeat = "diagram:heartbeat"
	EventDocumentUpdated  = "diagram:documentUpdated"
	EventChatSend         = "chat:send"
	EventChatTypingStart  = "chat:typingStart"
	EventChatTypingStop   = "chat:typingStop"
	EventPing             = "ping"

	// legacy aliases
	EventDiagramPresenceJoin  = "diagram:presenceJoin"
	EventDiagramPresenceLeave = "diagram:presenceLeave"
)

// Outbound event names.
const (
	EventPresenceSnapshot        = "presence:snapshot"
	EventDiagramPresenceSnapshot = "diagram:presenceSnapshot"
	EventDiagramUserLeft         = "diagram:userLeft"
	EventChatNewMessage          = "chat:newMessage"
	EventChatSentAck             = "chat:sentAck"
	EventChatTyping              = "chat:typing"
	EventPong                    = "pong"
	EventAck                     = "ack"
)

const (
	StateOnline  = "online"
	StateViewing = "viewing"
)

// Envelope is the frame shape in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	AckID *int64          `json:"ackId,omitempty"`
}

type outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
	AckID *int64 `json:"ackId,omitempty"`
}

// Encode marshals an outbound event.
func Encode(event string, data any) ([]byte, error) {
	return json.Marshal(outbound{Event: event, Data: data})
}

// EncodeAck marshals the acknowledgement for a client frame.
func EncodeAck(ackID int64, ack Ack) ([]byte, error) {
	return json.Marshal(outbound{Event: EventAck, Data: ack, AckID: &ackID})
}

// Ack is the per-event acknowledgement.
type Ack struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	Code  string `json:"code,omitempty"`
	Data  any    `json:"data,omitempty"`
}

func OK(data any) Ack { return Ack{OK: true, Data: data} }

// Fail converts err into a failed ack. Faults never leak their message.
func Fail(err error) Ack {
	code := domain.CodeOf(err)
	if code == domain.CodeInternal {
		return Ack{Error: "internal error", Code: string(code)}
	}
	msg := err.Error()
	var de *domain.Error
	if errors.As(err, &de) && de.Message != "" {
		msg = de.Message
	}
	return Ack{Error: msg, Code: string(code)}
}

// Outbound bodies.

type CursorEvent struct {
	UserID   domain.UserID `json:"userId"`
	Name     string        `json:"name"`
	Color    string        `json:"color"`
	X        float64       `json:"x"`
	Y        float64       `json:"y"`
	Viewport *Viewport     `json:"viewport,omitempty"`
	T        int64         `json:"t"`
}

type SelectionEvent struct {
	UserID          domain.UserID `json:"userId"`
	Name            string        `json:"name"`
	Color           string        `json:"color"`
	SelectedNodeIDs []string      `json:"selectedNodeIds"`
	T               int64         `json:"t"`
}

type UserLeftEvent struct {
	UserID domain.UserID `json:"userId"`
}

type DocumentUpdatedEvent struct {
	WorkspaceID string        `json:"workspaceId"`
	DiagramID   string        `json:"diagramId"`
	UpdatedAt   string        `json:"updatedAt"`
	ByUserID    domain.UserID `json:"byUserId"`
}

type TypingEvent struct {
	ThreadID string        `json:"threadId"`
	UserID   domain.UserID `json:"userId"`
	IsTyping bool          `json:"isTyping"`
}

type ChatAuthor struct {
	UserID domain.UserID `json:"userId"`
	Name   string        `json:"name"`
	Image  string        `json:"image,omitempty"`
}

type ChatMessage struct {
	ID              string     `json:"id"`
	ThreadID        string     `json:"threadId"`
	Content         string     `json:"content"`
	ClientMessageID string     `json:"clientMessageId"`
	CreatedAt       string     `json:"createdAt"`
	Author          ChatAuthor `json:"author"`
}

type NewMessageEvent struct {
	Message ChatMessage `json:"message"`
}

// SentAck is both the private chat:sentAck body and the chat:send ack data.
type SentAck struct {
	ThreadID        string `json:"threadId"`
	MessageID       string `json:"messageId"`
	ClientMessageID string `json:"clientMessageId"`
	WasDuplicate    bool   `json:"wasDuplicate"`
}
