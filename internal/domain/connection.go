package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type ConnectionID string

// ConnectionRecord is the metadata of one live socket.
// Owned exclusively by the room actor that created it.
type ConnectionRecord struct {
	ID             ConnectionID
	Role           Role
	Room           RoomKey
	ClientToken    string
	ConnectedAt    time.Time
	LastActivityAt time.Time
	Attributes     Attributes
}

// NewConnectionRecord stamps a fresh id built from role, room, time and a
// random suffix.
func NewConnectionRecord(role Role, room RoomKey, now time.Time) *ConnectionRecord {
	suffix := uuid.NewString()[:8]
	id := ConnectionID(fmt.Sprintf("%s-%s-%s-%d-%s", role, room.Type, room.ID, now.UnixMilli(), suffix))
	return &ConnectionRecord{
		ID:             id,
		Role:           role,
		Room:           room,
		ConnectedAt:    now,
		LastActivityAt: now,
		Attributes:     NewAttributes(role),
	}
}

// TableID returns the customer's stored table id, if any.
func (c *ConnectionRecord) TableID() (json.RawMessage, bool) {
	ca, ok := c.Attributes.(*CustomerAttributes)
	if !ok || isNullToken(ca.TableID) {
		return nil, false
	}
	return ca.TableID, true
}

func (c *ConnectionRecord) Touch(now time.Time) { c.LastActivityAt = now }

func (c *ConnectionRecord) IdleSince(now time.Time) time.Duration {
	return now.Sub(c.LastActivityAt)
}
