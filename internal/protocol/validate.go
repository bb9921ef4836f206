package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/dkeye/canvas-presence/internal/domain"
)

// Aliases maps legacy event names to their canonical handler.
var aliases = map[string]string{
	EventDiagramPresenceJoin:  EventDiagramJoin,
	EventDiagramPresenceLeave: EventDiagramLeave,
}

var variants = map[string]func() Payload{
	EventAuthInit:         func() Payload { return &AuthInit{} },
	EventPresenceUpdate:   func() Payload { return &PresenceUpdate{} },
	EventDiagramJoin:      func() Payload { return &DiagramJoin{} },
	EventDiagramLeave:     func() Payload { return &DiagramLeave{} },
	EventDiagramHeartbeat: func() Payload { return &DiagramHeartbeat{} },
	EventDiagramCursor:    func() Payload { return &DiagramCursor{} },
	EventDiagramSelection: func() Payload { return &DiagramSelection{} },
	EventDocumentUpdated:  func() Payload { return &DocumentUpdated{} },
	EventChatSend:         func() Payload { return &ChatSend{} },
	EventChatTypingStart:  func() Payload { return &ChatTypingStart{} },
	EventChatTypingStop:   func() Payload { return &ChatTypingStop{} },
	EventPing:             func() Payload { return &Ping{} },
}

// Canonical resolves aliases. ok is false for unknown events.
func Canonical(event string) (string, bool) {
	if c, ok := aliases[event]; ok {
		return c, true
	}
	_, ok := variants[event]
	return event, ok
}

// Validator decodes and validates inbound payloads before they reach handlers.
type Validator struct {
	v *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{v: v}
}

// Decode returns the typed variant for event, or an INVALID_PAYLOAD error.
func (v *Validator) Decode(event string, raw json.RawMessage) (Payload, error) {
	canonical, ok := Canonical(event)
	if !ok {
		return nil, domain.NewError(domain.CodeInvalidPayload, fmt.Sprintf("unknown event %q", event))
	}
	p := variants[canonical]()
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
		if err := json.Unmarshal(raw, p); err != nil {
			return nil, domain.NewError(domain.CodeInvalidPayload, "malformed payload")
		}
	}
	if err := v.v.Struct(p); err != nil {
		return nil, domain.NewError(domain.CodeInvalidPayload, describe(err))
	}
	return p, nil
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid payload"
	}
	fe := verrs[0]
	field := fe.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}
	if fe.Param() != "" {
		return fmt.Sprintf("%s failed %s=%s", field, fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("%s failed %s", field, fe.Tag())
}
