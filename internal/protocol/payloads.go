package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var errEmptyData = errors.New("empty data")

// Connected is the acknowledgement sent once a socket is registered.
type Connected struct {
	ConnectionID string `json:"connectionId"`
	RoomType     string `json:"roomType"`
	RoomID       string `json:"roomId"`
	Timestamp    string `json:"timestamp"`
}

// JoinTable is sent by a customer sitting down at a table.
type JoinTable struct {
	TableID      json.RawMessage `json:"tableId"`
	CustomerName string          `json:"customerName"`
}

// CustomerJoined tells admins that a customer joined a table.
type CustomerJoined struct {
	ConnectionID string          `json:"connectionId"`
	TableID      json.RawMessage `json:"tableId,omitempty"`
	CustomerName string          `json:"customerName,omitempty"`
}

// OrderUpdate is the state change of one order. Ids are kept as raw JSON
// so they are forwarded exactly as the sender wrote them.
type OrderUpdate struct {
	OrderID       json.RawMessage `json:"orderId"`
	Status        string          `json:"status"`
	TableID       json.RawMessage `json:"tableId"`
	EstimatedTime json.RawMessage `json:"estimatedTime,omitempty"`
}

// CustomerOrderStatus is the reduced view of an OrderUpdate a customer gets.
type CustomerOrderStatus struct {
	OrderID       json.RawMessage `json:"orderId"`
	Status        string          `json:"status"`
	EstimatedTime json.RawMessage `json:"estimatedTime,omitempty"`
	Message       string          `json:"message"`
}

func ParseJoinTable(data json.RawMessage) (JoinTable, error) {
	var p JoinTable
	if err := decodeObject(data, &p); err != nil {
		return JoinTable{}, fmt.Errorf("bad join_table payload: %w", err)
	}
	return p, nil
}

func ParseOrderUpdate(data json.RawMessage) (OrderUpdate, error) {
	var u OrderUpdate
	if err := decodeObject(data, &u); err != nil {
		return OrderUpdate{}, fmt.Errorf("bad order_update payload: %w", err)
	}
	return u, nil
}

// ForCustomer shapes the update for customer sockets.
func (u OrderUpdate) ForCustomer() CustomerOrderStatus {
	out := CustomerOrderStatus{
		OrderID: u.OrderID,
		Status:  u.Status,
		Message: StatusMessage(u.Status),
	}
	if t := bytes.TrimSpace(u.EstimatedTime); len(t) > 0 && !bytes.Equal(t, []byte("null")) {
		out.EstimatedTime = u.EstimatedTime
	}
	if len(out.OrderID) == 0 {
		out.OrderID = json.RawMessage("null")
	}
	return out
}

func decodeObject(data json.RawMessage, v any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return errEmptyData
	}
	return json.Unmarshal(data, v)
}
