package permissions

import (
	"github.com/mikepea/succession/pkg/succession/config"
	"github.com/mikepea/succession/pkg/succession/models"
)

// Capability is a single permission an actor may hold
type Capability string

const (
	// HRAccess covers succession data, audit trail and department user lists
	HRAccess Capability = "hr.access"
	// ManageRoles allows creating, editing and deleting organizational roles
	ManageRoles Capability = "roles.manage"
	// ManageUsers allows editing and deleting user accounts
	ManageUsers Capability = "users.manage"
	// GlobalScope lifts department scoping
	GlobalScope Capability = "scope.global"
)

// AllCapabilities lists every capability
var AllCapabilities = []Capability{HRAccess, ManageRoles, ManageUsers, GlobalScope}

// Policy is the one mapping from a user's role string to capabilities
type Policy struct {
	roles             map[string][]Capability
	globalDepartments map[string]bool
}

// NewPolicy builds the policy from the configured role lists
func NewPolicy(access config.Access) *Policy {
	p := &Policy{
		roles:             make(map[string][]Capability),
		globalDepartments: make(map[string]bool),
	}
	for _, r := range access.HRRoles {
		p.grant(r, HRAccess)
	}
	for _, r := range access.RoleManagerRoles {
		p.grant(r, HRAccess, ManageRoles)
	}
	for _, r := range access.AdminRoles {
		p.grant(r, AllCapabilities...)
	}
	for _, d := range access.GlobalScopeDepartments {
		p.globalDepartments[d] = true
	}
	return p
}

func (p *Policy) grant(role string, caps ...Capability) {
	for _, c := range caps {
		if !p.has(role, c) {
			p.roles[role] = append(p.roles[role], c)
		}
	}
}

func (p *Policy) has(role string, c Capability) bool {
	for _, held := range p.roles[role] {
		if held == c {
			return true
		}
	}
	return false
}

// Capabilities returns the capabilities granted to role
func (p *Policy) Capabilities(role string) []Capability {
	caps := make([]Capability, len(p.roles[role]))
	copy(caps, p.roles[role])
	return caps
}

// HasHRAccess reports whether role is in the HR allow-list
func (p *Policy) HasHRAccess(role string) bool {
	return p.has(role, HRAccess)
}

// ActorFor snapshots user into an Actor carrying its capabilities
func (p *Policy) ActorFor(user *models.User) *Actor {
	a := &Actor{
		ID:         user.ID,
		Name:       user.Name,
		Email:      user.Email,
		Role:       user.Role,
		Department: user.Department,
		Status:     user.Status,
		caps:       make(map[Capability]bool),
	}
	for _, c := range p.roles[user.Role] {
		a.caps[c] = true
	}
	if user.GlobalScope || p.globalDepartments[user.Department] {
		a.caps[GlobalScope] = true
	}
	return a
}

// Actor is the authenticated caller of a request
type Actor struct {
	ID         uint
	Name       string
	Email      string
	Role       string
	Department string
	Status     models.UserStatus
	caps       map[Capability]bool
}

// Can reports whether the actor holds c
func (a *Actor) Can(c Capability) bool {
	return a != nil && a.caps[c]
}

// HasGlobalScope reports whether department scoping is lifted for the actor
func (a *Actor) HasGlobalScope() bool {
	return a.Can(GlobalScope)
}

// CanSeeDepartment reports whether records of department are visible
func (a *Actor) CanSeeDepartment(department string) bool {
	return a.HasGlobalScope() || a.Department == department
}

// Capabilities returns the held capabilities in canonical order
func (a *Actor) Capabilities() []Capability {
	var caps []Capability
	for _, c := range AllCapabilities {
		if a.caps[c] {
			caps = append(caps, c)
		}
	}
	return caps
}
