package models

// Role is the caller's role as issued by the auth layer.
type Role string

const (
	RoleAdmin       Role = "admin"
	RoleDistributor Role = "distributor"
	RoleUser        Role = "user"
)

// Identity holds the authenticated caller's role and scoping ids.
// It is immutable for the lifetime of a request: handlers read it from the
// request context and never write it back.
type Identity struct {
	Role          Role   `json:"role"`
	ConsumerID    string `json:"consumer_id,omitempty"`
	DistributorID string `json:"distributor_id,omitempty"`
	Name          string `json:"name,omitempty"`
}

// Valid reports whether the identity carries the ids its role requires:
// a user must have a consumer_id, a distributor must have a distributor_id.
func (i Identity) Valid() bool {
	switch i.Role {
	case RoleUser:
		return i.ConsumerID != ""
	case RoleDistributor:
		return i.DistributorID != ""
	case RoleAdmin:
		return true
	default:
		return false
	}
}
