package domain

import (
	"github.com/google/uuid"
)

// Role is an already-resolved authorization role. Session handling lives
// upstream; the catalog only ever sees the (actor, role) pair.
type Role string

const (
	RolePlatformAdmin Role = "platform_admin"
	RoleSalonOwner    Role = "salon_owner"
	RoleStaff         Role = "staff"
	RoleCustomer      Role = "customer"
)

// Actor identifies who is performing a catalog operation. SalonID is the
// tenant the actor belongs to, used for cross-owner deletion decisions.
type Actor struct {
	ID      uuid.UUID
	SalonID uuid.UUID
	Role    Role
}
