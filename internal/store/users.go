package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"clinicrx/m/domain"
)

const userColumns = `id, username, full_name, email, password, role, created_at`

// UserStore keeps accounts. Password is stored as given; hashing is the
// caller's job.
type UserStore struct {
	base
}

func (s *UserStore) Create(ctx context.Context, u domain.User) (*domain.User, error) {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.Username = strings.TrimSpace(u.Username)
	if u.Email == "" || u.Password == "" {
		return nil, domain.Validationf("email and password are required")
	}
	if u.Username == "" {
		u.Username = u.Email
	}
	switch u.Role {
	case domain.RoleAdmin, domain.RoleNurse:
	case "":
		u.Role = domain.RoleNurse
	default:
		return nil, domain.Validationf("unknown role %q", u.Role)
	}
	u.CreatedAt = s.now()

	err := s.db.QueryRowxContext(ctx, s.q(`INSERT INTO users (username, full_name, email, password, role, created_at)
                VALUES (?, ?, ?, ?, ?, ?) RETURNING id`),
		u.Username, u.FullName, u.Email, u.Password, u.Role, u.CreatedAt).Scan(&u.ID)
	if err != nil {
		err = classify("create user", err)
		if errors.Is(err, domain.ErrConflict) {
			return nil, domain.Conflictf("email %s is already registered", u.Email)
		}
		return nil, err
	}
	return &u, nil
}

func (s *UserStore) Get(ctx context.Context, id int64) (*domain.User, error) {
	return s.getBy(ctx, "id", id)
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.getBy(ctx, "email", strings.ToLower(strings.TrimSpace(email)))
}

func (s *UserStore) UpdatePassword(ctx context.Context, email, hashed string) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE users SET password = ? WHERE email = ?`),
		hashed, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return classify("update password", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classify("update password", err)
	}
	if n == 0 {
		return domain.NotFoundf("user %s", email)
	}
	return nil
}

func (s *UserStore) getBy(ctx context.Context, column string, value any) (*domain.User, error) {
	var u domain.User
	err := s.db.GetContext(ctx, &u, s.q(`SELECT `+userColumns+` FROM users WHERE `+column+` = ?`), value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundf("user %v", value)
	}
	if err != nil {
		return nil, classify("get user", err)
	}
	return &u, nil
}
