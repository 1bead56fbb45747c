package entity

import (
	"fmt"
	"time"
)

// Role is the closed set of account roles.
type Role uint8

const (
	RoleUser Role = iota
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleAdmin:
		return "admin"
	default:
		return fmt.Sprintf("role(%d)", uint8(r))
	}
}

// ParseRole accepts exactly "user" or "admin".
func ParseRole(s string) (Role, error) {
	switch s {
	case "user":
		return RoleUser, nil
	case "admin":
		return RoleAdmin, nil
	default:
		return 0, fmt.Errorf("unknown role %q", s)
	}
}

func (r Role) MarshalText() ([]byte, error) {
	switch r {
	case RoleUser, RoleAdmin:
		return []byte(r.String()), nil
	default:
		return nil, fmt.Errorf("invalid role %d", uint8(r))
	}
}

func (r *Role) UnmarshalText(b []byte) error {
	v, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// User is an account row. Phone-path accounts have Phone and no PasswordHash;
// password-path accounts have PasswordHash and no Phone.
type User struct {
	UID                string    `db:"uid"`
	Username           string    `db:"username"`
	Phone              *string   `db:"phone"`
	Email              *string   `db:"email"`
	PasswordHash       *string   `db:"password_hash"`
	Role               Role      `db:"-"`
	SecondFactorSecret *string   `db:"second_factor_secret"`
	Banned             bool      `db:"banned"`
	CreatedAt          time.Time `db:"created_at"`
}

// PhoneValue returns the phone or "" when the account has none.
func (u *User) PhoneValue() string {
	if u.Phone == nil {
		return ""
	}
	return *u.Phone
}

// EmailValue returns the email or "" when the account has none.
func (u *User) EmailValue() string {
	if u.Email == nil {
		return ""
	}
	return *u.Email
}

// View is the projection of a user safe to return to administrators.
type View struct {
	UID       string    `json:"uid"`
	Username  string    `json:"username"`
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email,omitempty"`
	Role      Role      `json:"role"`
	Banned    bool      `json:"banned"`
	CreatedAt time.Time `json:"created_at"`
}

// ToView drops credential material from u.
func (u *User) ToView() View {
	return View{
		UID:       u.UID,
		Username:  u.Username,
		Phone:     u.PhoneValue(),
		Email:     u.EmailValue(),
		Role:      u.Role,
		Banned:    u.Banned,
		CreatedAt: u.CreatedAt,
	}
}

// StrPtr returns nil for "" and a pointer to s otherwise.
func StrPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
