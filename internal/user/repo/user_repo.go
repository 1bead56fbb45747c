package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user/entity"
)

var (
	// ErrNotFound is returned when no row matches the lookup.
	ErrNotFound = errors.New("user not found")
	// ErrDuplicate is matched by every *DuplicateError.
	ErrDuplicate = errors.New("duplicate user")
)

// DuplicateError reports which unique column rejected a create.
type DuplicateError struct {
	Field string // username, phone, email or uid
}

func (e *DuplicateError) Error() string { return "duplicate " + e.Field }

func (e *DuplicateError) Is(target error) bool { return target == ErrDuplicate }

// uniqueViolation is the Postgres SQLSTATE for unique_violation.
const uniqueViolation = pq.ErrorCode("23505")

var constraintFields = map[string]string{
	"users_pkey":         "uid",
	"users_username_key": "username",
	"users_phone_key":    "phone",
	"users_email_key":    "email",
}

// UserRepo provides data access for the users table using sqlx.
// The schema lives in internal/migrations.
type UserRepo struct {
	db *sqlx.DB
}

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{db: db} }

type userRow struct {
	UID                string    `db:"uid"`
	Username           string    `db:"username"`
	Phone              *string   `db:"phone"`
	Email              *string   `db:"email"`
	PasswordHash       *string   `db:"password_hash"`
	Role               string    `db:"role"`
	SecondFactorSecret *string   `db:"second_factor_secret"`
	Banned             bool      `db:"banned"`
	CreatedAt          time.Time `db:"created_at"`
}

func (r userRow) toEntity() (*entity.User, error) {
	role, err := entity.ParseRole(r.Role)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", r.UID, err)
	}
	return &entity.User{
		UID:                r.UID,
		Username:           r.Username,
		Phone:              r.Phone,
		Email:              r.Email,
		PasswordHash:       r.PasswordHash,
		Role:               role,
		SecondFactorSecret: r.SecondFactorSecret,
		Banned:             r.Banned,
		CreatedAt:          r.CreatedAt,
	}, nil
}

const selectUser = `SELECT uid, username, phone, email, password_hash, role,
	second_factor_secret, banned, created_at FROM users`

// Create inserts a new user row. Uniqueness is enforced by the table
// constraints, so concurrent creates for the same username cannot both succeed.
func (r *UserRepo) Create(ctx context.Context, u *entity.User) error {
	const q = `INSERT INTO users (uid, username, phone, email, password_hash, role, second_factor_secret, banned, created_at)
		VALUES (:uid, :username, :phone, :email, :password_hash, :role, :second_factor_secret, :banned, :created_at)`
	params := map[string]any{
		"uid":                  u.UID,
		"username":             u.Username,
		"phone":                u.Phone,
		"email":                u.Email,
		"password_hash":        u.PasswordHash,
		"role":                 u.Role.String(),
		"second_factor_secret": u.SecondFactorSecret,
		"banned":               u.Banned,
		"created_at":           u.CreatedAt,
	}
	if _, err := r.db.NamedExecContext(ctx, q, params); err != nil {
		return mapWriteError(err)
	}
	return nil
}

func mapWriteError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		field, ok := constraintFields[pqErr.Constraint]
		if !ok {
			field = pqErr.Constraint
		}
		return &DuplicateError{Field: field}
	}
	return err
}

func (r *UserRepo) getOne(ctx context.Context, where string, arg any) (*entity.User, error) {
	var row userRow
	if err := r.db.GetContext(ctx, &row, selectUser+" WHERE "+where, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return row.toEntity()
}

// GetByUID fetches by uid.
func (r *UserRepo) GetByUID(ctx context.Context, uid string) (*entity.User, error) {
	return r.getOne(ctx, "uid=$1", uid)
}

// GetByUsername fetches by username (case-sensitive).
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*entity.User, error) {
	return r.getOne(ctx, "username=$1", username)
}

// GetByPhone fetches by normalized phone number.
func (r *UserRepo) GetByPhone(ctx context.Context, phone string) (*entity.User, error) {
	return r.getOne(ctx, "phone=$1", phone)
}

// List returns users ordered by creation time.
func (r *UserRepo) List(ctx context.Context, limit, offset int) ([]*entity.User, error) {
	var rows []userRow
	q := selectUser + " ORDER BY created_at, uid LIMIT $1 OFFSET $2"
	if err := r.db.SelectContext(ctx, &rows, q, limit, offset); err != nil {
		return nil, err
	}
	out := make([]*entity.User, 0, len(rows))
	for _, row := range rows {
		u, err := row.toEntity()
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

// SetBanned sets or clears the banned flag.
func (r *UserRepo) SetBanned(ctx context.Context, uid string, banned bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET banned=$2 WHERE uid=$1`, uid, banned)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the user row and records its uid in deleted_uids in one
// statement. The insert trigger on users rejects recorded uids.
func (r *UserRepo) Delete(ctx context.Context, uid string) error {
	const q = `WITH gone AS (DELETE FROM users WHERE uid=$1 RETURNING uid)
		INSERT INTO deleted_uids (uid) SELECT uid FROM gone`
	res, err := r.db.ExecContext(ctx, q, uid)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
