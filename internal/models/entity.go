package models

import (
	"encoding/json"
	"fmt"
)

// Entity is one record of a collection (expense, booking, cart item, ...).
// On the wire and in storage an entity is a single flat JSON object: the
// application payload fields plus the reserved "id", "updatedAt" and
// (for tombstones) "deleted" keys.
type Entity struct {
	Payload   map[string]json.RawMessage `json:"-"` // domain fields, opaque to the store
	ID        string                     `json:"-"` // unique within its kind
	UpdatedAt int64                      `json:"-"` // unix milliseconds, conflict-resolution key
	Deleted   bool                       `json:"-"` // soft-delete tombstone
}

// Reserved JSON keys that are lifted out of the payload.
const (
	keyID        = "id"
	keyUpdatedAt = "updatedAt"
	keyDeleted   = "deleted"
)

// NewEntity builds an entity from a plain payload map. Reserved keys in the
// payload are ignored; id and updatedAt always come from the arguments.
func NewEntity(id string, updatedAt int64, payload map[string]any) (*Entity, error) {
	e := &Entity{
		ID:        id,
		UpdatedAt: updatedAt,
		Payload:   make(map[string]json.RawMessage, len(payload)),
	}
	for k, v := range payload {
		if k == keyID || k == keyUpdatedAt || k == keyDeleted {
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload field %q: %w", k, err)
		}
		e.Payload[k] = raw
	}
	return e, nil
}

// MarshalJSON flattens the entity into one JSON object.
func (e *Entity) MarshalJSON() ([]byte, error) {
	obj := make(map[string]json.RawMessage, len(e.Payload)+3)
	for k, v := range e.Payload {
		obj[k] = v
	}
	idRaw, err := json.Marshal(e.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal entity id: %w", err)
	}
	obj[keyID] = idRaw
	tsRaw, err := json.Marshal(e.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal entity timestamp: %w", err)
	}
	obj[keyUpdatedAt] = tsRaw
	if e.Deleted {
		obj[keyDeleted] = json.RawMessage("true")
	} else {
		delete(obj, keyDeleted)
	}
	return json.Marshal(obj)
}

// UnmarshalJSON reverses MarshalJSON, lifting the reserved keys out of the
// payload. A missing updatedAt decodes as 0 so older blobs still load.
func (e *Entity) UnmarshalJSON(data []byte) error {
	obj := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("failed to unmarshal entity: %w", err)
	}

	if raw, ok := obj[keyID]; ok {
		if err := json.Unmarshal(raw, &e.ID); err != nil {
			return fmt.Errorf("invalid entity id: %w", err)
		}
		delete(obj, keyID)
	}
	if raw, ok := obj[keyUpdatedAt]; ok {
		if err := json.Unmarshal(raw, &e.UpdatedAt); err != nil {
			return fmt.Errorf("invalid entity updatedAt: %w", err)
		}
		delete(obj, keyUpdatedAt)
	}
	if raw, ok := obj[keyDeleted]; ok {
		if err := json.Unmarshal(raw, &e.Deleted); err != nil {
			return fmt.Errorf("invalid entity deleted flag: %w", err)
		}
		delete(obj, keyDeleted)
	}

	e.Payload = obj
	return nil
}

// NewerThan reports whether e wins over other under last-write-wins.
// Equal timestamps are NOT newer; the merge layer resolves ties in favor
// of the remote side.
func (e *Entity) NewerThan(other *Entity) bool {
	return e.UpdatedAt > other.UpdatedAt
}

// Clone returns a deep copy of the entity.
func (e *Entity) Clone() *Entity {
	payload := make(map[string]json.RawMessage, len(e.Payload))
	for k, v := range e.Payload {
		raw := make(json.RawMessage, len(v))
		copy(raw, v)
		payload[k] = raw
	}
	return &Entity{
		ID:        e.ID,
		UpdatedAt: e.UpdatedAt,
		Deleted:   e.Deleted,
		Payload:   payload,
	}
}

// Field decodes a single payload field into v.
func (e *Entity) Field(key string, v any) error {
	raw, ok := e.Payload[key]
	if !ok {
		return fmt.Errorf("payload field %q not present", key)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode payload field %q: %w", key, err)
	}
	return nil
}

// DecodePayload decodes the whole payload into a typed value.
func (e *Entity) DecodePayload(v any) error {
	raw, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode payload: %w", err)
	}
	return nil
}
