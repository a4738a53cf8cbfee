package auth

import (
	"fmt"
	"time"

	"github.com/arkhan2/invoicing-system-sub001/internal/shared"
)

// ErrEmailTaken is returned when registering an address already in use.
var ErrEmailTaken = fmt.Errorf("%w: email already registered", shared.ErrConflict)

// User represents an authenticated user account.
type User struct {
	ID           int64     `json:"id"`
	CompanyID    int64     `json:"company_id"`
	Email        string    `json:"email"`
	FullName     string    `json:"full_name"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Company is the tenant every document belongs to.
type Company struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Profile is the signed-in user with their company.
type Profile struct {
	User    User    `json:"user"`
	Company Company `json:"company"`
}

// RegisterRequest creates a company and its first user.
type RegisterRequest struct {
	CompanyName string `json:"company_name" validate:"required,max=200"`
	FullName    string `json:"full_name" validate:"max=200"`
	Email       string `json:"email" validate:"required,email,max=200"`
	Password    string `json:"password" validate:"required,min=8,max=72"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}
