package entity

import (
	"time"
)

// User is the aggregate root for the user domain.
// PasswordHash holds the bcrypt digest and must never leave the service layer;
// use Public to build anything returned to a caller.
type User struct {
	ID            string
	Name          string
	Email         string
	PasswordHash  string
	Age           *int
	Role          Role
	Active        bool
	EmailVerified bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PublicUser is the sanitized projection of User.
type PublicUser struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Age           *int      `json:"age"`
	Role          Role      `json:"role"`
	Active        bool      `json:"active"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Public is the only conversion from the internal record to the projection.
func (u *User) Public() *PublicUser {
	if u == nil {
		return nil
	}
	var age *int
	if u.Age != nil {
		a := *u.Age
		age = &a
	}
	return &PublicUser{
		ID:            u.ID,
		Name:          u.Name,
		Email:         u.Email,
		Age:           age,
		Role:          u.Role,
		Active:        u.Active,
		EmailVerified: u.EmailVerified,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}

// PublicUsers projects a slice of records.
func PublicUsers(us []User) []*PublicUser {
	out := make([]*PublicUser, 0, len(us))
	for i := range us {
		out = append(out, us[i].Public())
	}
	return out
}

// IsAdmin reports whether the user holds the admin role.
func (p *PublicUser) IsAdmin() bool { return p != nil && p.Role == RoleAdmin }
