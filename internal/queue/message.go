package queue

import (
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"nrrp.app/referrals/internal/platform"
)

// Message is one member event read from the stream.
type Message struct {
	ID      string
	EventID string
	Event   platform.MemberEvent
	Attempt int
	TraceID string
	Raw     redis.XMessage
}

func ParseMessage(msg redis.XMessage) (Message, error) {
	kind, err := parseString(msg.Values, "kind")
	if err != nil {
		return Message{}, err
	}
	inviteeID, err := parseString(msg.Values, "invitee_id")
	if err != nil {
		return Message{}, err
	}
	at, err := parseOptionalTime(msg.Values, "at")
	if err != nil {
		return Message{}, err
	}
	attempt, err := parseOptionalInt(msg.Values, "attempt")
	if err != nil {
		return Message{}, err
	}
	if attempt == 0 {
		attempt = 1
	}

	event := platform.MemberEvent{
		Kind:        platform.EventKind(kind),
		InviteeID:   inviteeID,
		InviterID:   parseOptionalStringPtr(msg.Values, "inviter_id"),
		InviteCode:  parseOptionalStringPtr(msg.Values, "invite_code"),
		InviterName: parseOptionalStringPtr(msg.Values, "inviter_name"),
		InviteeName: parseOptionalStringPtr(msg.Values, "invitee_name"),
		At:          at,
	}
	if err := event.Validate(); err != nil {
		return Message{}, err
	}

	return Message{
		ID:      msg.ID,
		EventID: parseOptionalString(msg.Values, "event_id"),
		Event:   event,
		Attempt: attempt,
		TraceID: parseOptionalString(msg.Values, "trace_id"),
		Raw:     msg,
	}, nil
}

func eventValues(eventID string, event platform.MemberEvent, attempt int, traceID string) map[string]any {
	values := map[string]any{
		"kind":       string(event.Kind),
		"invitee_id": event.InviteeID,
		"attempt":    attempt,
	}
	if eventID != "" {
		values["event_id"] = eventID
	}
	if !event.At.IsZero() {
		values["at"] = event.At.UTC().Format(time.RFC3339Nano)
	}
	setOptional(values, "inviter_id", event.InviterID)
	setOptional(values, "invite_code", event.InviteCode)
	setOptional(values, "inviter_name", event.InviterName)
	setOptional(values, "invitee_name", event.InviteeName)
	if traceID != "" {
		values["trace_id"] = traceID
	}
	return values
}

func messageValues(msg Message, attempt int) map[string]any {
	return eventValues(msg.EventID, msg.Event, attempt, msg.TraceID)
}

func setOptional(values map[string]any, key string, v *string) {
	if v != nil && *v != "" {
		values[key] = *v
	}
}

func parseString(values map[string]any, key string) (string, error) {
	raw, ok := values[key]
	if !ok {
		return "", fmt.Errorf("missing %s", key)
	}
	return fmt.Sprint(raw), nil
}

func parseOptionalString(values map[string]any, key string) string {
	raw, ok := values[key]
	if !ok {
		return ""
	}
	return fmt.Sprint(raw)
}

func parseOptionalStringPtr(values map[string]any, key string) *string {
	s := parseOptionalString(values, key)
	if s == "" {
		return nil
	}
	return &s
}

func parseOptionalInt(values map[string]any, key string) (int, error) {
	raw, ok := values[key]
	if !ok {
		return 0, nil
	}
	num, err := strconv.Atoi(fmt.Sprint(raw))
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return num, nil
}

func parseOptionalTime(values map[string]any, key string) (time.Time, error) {
	raw, ok := values[key]
	if !ok {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, fmt.Sprint(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing %s: %w", key, err)
	}
	return t, nil
}
