package repo

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user/entity"
)

func newRepoWithMock(t *testing.T) (*UserRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewUserRepo(sqlx.NewDb(db, "postgres")), mock
}

var userColumns = []string{"uid", "username", "phone", "email", "password_hash", "role", "second_factor_secret", "banned", "created_at"}

func TestCreateInsertsRow(t *testing.T) {
	r, mock := newRepoWithMock(t)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(`INSERT INTO users \(uid, username, phone, email, password_hash, role, second_factor_secret, banned, created_at\)`).
		WithArgs("u_1", "alice", nil, "a@example.com", "hash", "admin", "2006", false, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := r.Create(context.Background(), &entity.User{
		UID:                "u_1",
		Username:           "alice",
		Email:              entity.StrPtr("a@example.com"),
		PasswordHash:       entity.StrPtr("hash"),
		Role:               entity.RoleAdmin,
		SecondFactorSecret: entity.StrPtr("2006"),
		CreatedAt:          now,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateMapsUniqueViolation(t *testing.T) {
	cases := map[string]string{
		"users_username_key": "username",
		"users_phone_key":    "phone",
		"users_email_key":    "email",
		"users_pkey":         "uid",
	}
	for constraint, field := range cases {
		t.Run(constraint, func(t *testing.T) {
			r, mock := newRepoWithMock(t)
			mock.ExpectExec(`INSERT INTO users`).
				WillReturnError(&pq.Error{Code: "23505", Constraint: constraint})

			err := r.Create(context.Background(), &entity.User{UID: "u_1", Username: "alice"})
			var dup *DuplicateError
			require.ErrorAs(t, err, &dup)
			assert.Equal(t, field, dup.Field)
			assert.ErrorIs(t, err, ErrDuplicate)
		})
	}
}

func TestCreatePassesThroughOtherErrors(t *testing.T) {
	r, mock := newRepoWithMock(t)
	mock.ExpectExec(`INSERT INTO users`).WillReturnError(errors.New("db down"))

	err := r.Create(context.Background(), &entity.User{UID: "u_1", Username: "alice"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDuplicate)
}

func TestGetByUsername(t *testing.T) {
	r, mock := newRepoWithMock(t)
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows(userColumns).
		AddRow("u_1", "alice", nil, nil, "hash", "user", nil, true, created)
	mock.ExpectQuery(`SELECT uid, username, .* FROM users WHERE username=\$1`).
		WithArgs("alice").
		WillReturnRows(rows)

	u, err := r.GetByUsername(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "u_1", u.UID)
	assert.Equal(t, entity.RoleUser, u.Role)
	assert.True(t, u.Banned)
	assert.Nil(t, u.Phone)
	require.NotNil(t, u.PasswordHash)
	assert.Equal(t, "hash", *u.PasswordHash)
	assert.Equal(t, created, u.CreatedAt)
}

func TestGetByPhoneNotFound(t *testing.T) {
	r, mock := newRepoWithMock(t)
	mock.ExpectQuery(`FROM users WHERE phone=\$1`).
		WithArgs("+15551234567").
		WillReturnError(sql.ErrNoRows)

	_, err := r.GetByPhone(context.Background(), "+15551234567")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetByUIDRejectsUnknownRole(t *testing.T) {
	r, mock := newRepoWithMock(t)
	rows := sqlmock.NewRows(userColumns).
		AddRow("u_1", "alice", "+1555", nil, nil, "root", nil, false, time.Now())
	mock.ExpectQuery(`FROM users WHERE uid=\$1`).WithArgs("u_1").WillReturnRows(rows)

	_, err := r.GetByUID(context.Background(), "u_1")
	assert.Error(t, err)
}

func TestListOrdersAndPages(t *testing.T) {
	r, mock := newRepoWithMock(t)
	rows := sqlmock.NewRows(userColumns).
		AddRow("u_1", "alice", "+1555", nil, nil, "user", nil, false, time.Now()).
		AddRow("u_2", "admin", nil, nil, "hash", "admin", "2006", false, time.Now())
	mock.ExpectQuery(`ORDER BY created_at, uid LIMIT \$1 OFFSET \$2`).
		WithArgs(50, 0).
		WillReturnRows(rows)

	users, err := r.List(context.Background(), 50, 0)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, entity.RoleAdmin, users[1].Role)
}

func TestSetBanned(t *testing.T) {
	r, mock := newRepoWithMock(t)
	mock.ExpectExec(`UPDATE users SET banned=\$2 WHERE uid=\$1`).
		WithArgs("u_1", true).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, r.SetBanned(context.Background(), "u_1", true))

	mock.ExpectExec(`UPDATE users SET banned=\$2 WHERE uid=\$1`).
		WithArgs("u_missing", true).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, r.SetBanned(context.Background(), "u_missing", true), ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteRecordsUID(t *testing.T) {
	r, mock := newRepoWithMock(t)
	mock.ExpectExec(`DELETE FROM users WHERE uid=\$1 RETURNING uid\)\s+INSERT INTO deleted_uids`).
		WithArgs("u_1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, r.Delete(context.Background(), "u_1"))

	mock.ExpectExec(`DELETE FROM users WHERE uid=\$1`).
		WithArgs("u_missing").
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, r.Delete(context.Background(), "u_missing"), ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
