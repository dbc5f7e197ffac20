package queue

import (
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

type EntityType string

const (
	EntityTypeDeal        EntityType = "deal"
	EntityTypeContact     EntityType = "contact"
	EntityTypeObjection   EntityType = "objection"
	EntityTypeInteraction EntityType = "interaction"
)

type ChangeType string

const (
	ChangeTypeCreated ChangeType = "created"
	ChangeTypeUpdated ChangeType = "updated"
	ChangeTypeDeleted ChangeType = "deleted"
	ChangeTypeClosed  ChangeType = "closed"
)

// Message is one CRM entity change read off the stream.
type Message struct {
	ID         string
	EntityType EntityType
	EntityID   string
	ChangeType ChangeType
	Stage      string
	TraceID    string
	Attempt    int
	Raw        redis.XMessage
}

func ParseMessage(msg redis.XMessage) (Message, error) {
	entityType, err := parseString(msg.Values, "entity_type")
	if err != nil {
		return Message{}, err
	}
	entityID, err := parseString(msg.Values, "entity_id")
	if err != nil {
		return Message{}, err
	}
	changeType, err := parseString(msg.Values, "change_type")
	if err != nil {
		return Message{}, err
	}

	switch EntityType(entityType) {
	case EntityTypeDeal, EntityTypeContact, EntityTypeObjection, EntityTypeInteraction:
	default:
		return Message{}, fmt.Errorf("unknown entity_type %q", entityType)
	}
	switch ChangeType(changeType) {
	case ChangeTypeCreated, ChangeTypeUpdated, ChangeTypeDeleted, ChangeTypeClosed:
	default:
		return Message{}, fmt.Errorf("unknown change_type %q", changeType)
	}

	stage := parseOptionalString(msg.Values, "stage")
	traceID := parseOptionalString(msg.Values, "trace_id")

	attempt, err := parseOptionalInt(msg.Values, "attempt")
	if err != nil {
		return Message{}, err
	}
	if attempt == 0 {
		attempt = 1
	}

	return Message{
		ID:         msg.ID,
		EntityType: EntityType(entityType),
		EntityID:   entityID,
		ChangeType: ChangeType(changeType),
		Stage:      stage,
		TraceID:    traceID,
		Attempt:    attempt,
		Raw:        msg,
	}, nil
}

func parseString(values map[string]any, key string) (string, error) {
	raw, ok := values[key]
	if !ok {
		return "", fmt.Errorf("missing %s", key)
	}
	str := fmt.Sprint(raw)
	if str == "" {
		return "", fmt.Errorf("missing %s", key)
	}
	return str, nil
}

func parseOptionalString(values map[string]any, key string) string {
	raw, ok := values[key]
	if !ok {
		return ""
	}
	return fmt.Sprint(raw)
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

func messageValues(msg Message, attempt int) map[string]any {
	values := map[string]any{
		"entity_type": string(msg.EntityType),
		"entity_id":   msg.EntityID,
		"change_type": string(msg.ChangeType),
		"attempt":     attempt,
	}
	if msg.Stage != "" {
		values["stage"] = msg.Stage
	}
	if msg.TraceID != "" {
		values["trace_id"] = msg.TraceID
	}
	return values
}
