package domain

import (
	"bytes"
	"encoding/json"
)

// Attributes is the role-specific context of a connection. Only inbound
// message handlers set it; the transport never does.
type Attributes interface {
	isAttributes()
}

// CustomerAttributes is filled by join_table.
// TableID keeps the raw JSON token so "5" and 5 stay distinct.
type CustomerAttributes struct {
	TableID      json.RawMessage `json:"tableId,omitempty"`
	CustomerName string          `json:"customerName,omitempty"`
}

// StaffAttributes is held by admin and kitchen connections.
type StaffAttributes struct{}

func (*CustomerAttributes) isAttributes() {}
func (*StaffAttributes) isAttributes()    {}

// NewAttributes returns the empty attribute set for role.
func NewAttributes(role Role) Attributes {
	if role == RoleCustomer {
		return &CustomerAttributes{}
	}
	return &StaffAttributes{}
}

// SameTableID compares two raw JSON table ids strictly. A missing or null id
// never matches anything.
func SameTableID(a, b json.RawMessage) bool {
	if isNullToken(a) || isNullToken(b) {
		return false
	}
	var ca, cb bytes.Buffer
	if json.Compact(&ca, a) != nil || json.Compact(&cb, b) != nil {
		return false
	}
	return bytes.Equal(ca.Bytes(), cb.Bytes())
}

func isNullToken(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

// CloneAttributes returns a copy that shares nothing with a.
func CloneAttributes(a Attributes) Attributes {
	switch v := a.(type) {
	case *CustomerAttributes:
		c := *v
		c.TableID = append(json.RawMessage(nil), v.TableID...)
		return &c
	case *StaffAttributes:
		return &StaffAttributes{}
	}
	return nil
}
