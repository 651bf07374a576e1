package domain

import "errors"

var ErrEmptyRoomID = errors.New("room id empty")

// RoomType shares its value space with Role.
type RoomType string

type RoomID string

// RoomKey identifies a room. Exactly one actor serves a key at a time.
type RoomKey struct {
	Type RoomType `json:"roomType"`
	ID   RoomID   `json:"roomId"`
}

func NewRoomKey(roomType, roomID string) (RoomKey, error) {
	if _, err := ParseRole(roomType); err != nil {
		return RoomKey{}, err
	}
	if roomID == "" {
		return RoomKey{}, ErrEmptyRoomID
	}
	return RoomKey{Type: RoomType(roomType), ID: RoomID(roomID)}, nil
}

func (k RoomKey) IsZero() bool { return k.Type == "" && k.ID == "" }

func (k RoomKey) String() string { return string(k.Type) + ":" + string(k.ID) }
