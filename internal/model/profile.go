package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Role string

const (
	RoleAdmin      Role = "admin"
	RoleManager    Role = "manager"
	RoleSupervisor Role = "supervisor"
	RoleTechnician Role = "technician"
	RoleContractor Role = "contractor"
)

// Rank orders roles: admin > manager > supervisor > technician > contractor.
// Unknown roles rank below every known role.
func (r Role) Rank() int {
	switch r {
	case RoleAdmin:
		return 5
	case RoleManager:
		return 4
	case RoleSupervisor:
		return 3
	case RoleTechnician:
		return 2
	case RoleContractor:
		return 1
	default:
		return 0
	}
}

func (r Role) Valid() bool {
	return r.Rank() > 0
}

func (r Role) Outranks(other Role) bool {
	return r.Rank() > other.Rank()
}

// Privileged roles may create tasks for others and assign them.
func (r Role) Privileged() bool {
	return r == RoleAdmin || r == RoleManager || r == RoleSupervisor
}

type Profile struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	FirstName string    `gorm:"type:varchar(100);not null" json:"first_name"`
	LastName  string    `gorm:"type:varchar(100);not null" json:"last_name"`
	AvatarURL *string   `gorm:"type:text" json:"avatar_url"`
	Role      Role      `gorm:"type:varchar(16);not null;default:technician" json:"role"`
	Phone     *string   `gorm:"type:varchar(32)" json:"phone"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Profile) TableName() string {
	return "profiles"
}

func (p *Profile) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

func (p *Profile) FullName() string {
	if p.LastName == "" {
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}
