package model

import "github.com/google/uuid"

// Principal is the authenticated caller; Role comes from the caller's profile row.
type Principal struct {
	UserID uuid.UUID
	Role   Role
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

func (p Principal) IsManager() bool {
	return p.Role == RoleManager
}

func (p Principal) IsSupervisor() bool {
	return p.Role == RoleSupervisor
}

func (p Principal) IsPrivileged() bool {
	return p.Role.Privileged()
}
