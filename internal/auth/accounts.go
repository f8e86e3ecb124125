package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/mindengage-quiz/internal/db"
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

// ErrBadCredentials is returned by Authenticate for an unknown email or a
// wrong password; callers cannot tell the two apart.
var ErrBadCredentials = errors.New("invalid email or password")

type User struct {
	ID         int64     `json:"id"`
	Email      string    `json:"email"`
	FirstName  string    `json:"firstName"`
	LastName   string    `json:"lastName"`
	Patronymic string    `json:"patronymic,omitempty"`
	Role       quiz.Role `json:"role"`
	CreatedAt  int64     `json:"createdAt"`
}

type Registration struct {
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required,min=6"`
	Confirm    string `json:"passwordConfirmation" validate:"eqfield=Password"`
	FirstName  string `json:"firstName" validate:"required"`
	LastName   string `json:"lastName" validate:"required"`
	Patronymic string `json:"patronymic"`
}

type Accounts struct {
	db   *sql.DB
	cost int
}

func NewAccounts(h *sql.DB, bcryptCost int) *Accounts {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Accounts{db: h, cost: bcryptCost}
}

// Register creates a STUDENT account. Teachers and admins are provisioned
// with SetRole.
func (a *Accounts) Register(ctx context.Context, in Registration) (User, error) {
	email := normalizeEmail(in.Email)
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), a.cost)
	if err != nil {
		return User{}, err
	}
	u := User{
		Email:      email,
		FirstName:  strings.TrimSpace(in.FirstName),
		LastName:   strings.TrimSpace(in.LastName),
		Patronymic: strings.TrimSpace(in.Patronymic),
		Role:       quiz.RoleStudent,
		CreatedAt:  time.Now().Unix(),
	}
	err = a.db.QueryRowContext(ctx, `INSERT INTO users (email,password_hash,first_name,last_name,patronymic,role,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
		u.Email, string(hash), u.FirstName, u.LastName, u.Patronymic, string(u.Role), u.CreatedAt).Scan(&u.ID)
	if db.IsUniqueViolation(err) {
		return User{}, fmt.Errorf("%w: email %s is already registered", quiz.ErrConflict, email)
	}
	if err != nil {
		return User{}, err
	}
	return u, nil
}

func (a *Accounts) Authenticate(ctx context.Context, email, password string) (User, error) {
	var (
		u    User
		hash string
		role string
	)
	err := a.db.QueryRowContext(ctx, `SELECT id,email,password_hash,first_name,last_name,patronymic,role,created_at
		FROM users WHERE email=$1`, normalizeEmail(email)).
		Scan(&u.ID, &u.Email, &hash, &u.FirstName, &u.LastName, &u.Patronymic, &role, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrBadCredentials
	}
	if err != nil {
		return User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return User{}, ErrBadCredentials
	}
	u.Role = quiz.Role(role)
	return u, nil
}

func (a *Accounts) Get(ctx context.Context, id int64) (User, error) {
	var (
		u    User
		role string
	)
	err := a.db.QueryRowContext(ctx, `SELECT id,email,first_name,last_name,patronymic,role,created_at FROM users WHERE id=$1`, id).
		Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.Patronymic, &role, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("%w: user %d", quiz.ErrNotFound, id)
	}
	if err != nil {
		return User{}, err
	}
	u.Role = quiz.Role(role)
	return u, nil
}

func (a *Accounts) List(ctx context.Context) ([]User, error) {
	rows, err := a.db.QueryContext(ctx, `SELECT id,email,first_name,last_name,patronymic,role,created_at FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []User{}
	for rows.Next() {
		var (
			u    User
			role string
		)
		if err := rows.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.Patronymic, &role, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.Role = quiz.Role(role)
		out = append(out, u)
	}
	return out, rows.Err()
}

// UserUpdate carries the fields an admin may change. Nil, or a blank email,
// name or password, keeps the stored value; patronymic may be cleared.
type UserUpdate struct {
	Email      *string    `json:"email" validate:"omitempty,email"`
	FirstName  *string    `json:"firstName"`
	LastName   *string    `json:"lastName"`
	Patronymic *string    `json:"patronymic"`
	Role       *quiz.Role `json:"role"`
	Password   *string    `json:"password" validate:"omitempty,min=6"`
}

// Update applies in to the user. Demoting the last ADMIN is refused with
// ErrInvalidState.
func (a *Accounts) Update(ctx context.Context, id int64, in UserUpdate) (User, error) {
	if in.Role != nil && !in.Role.Valid() {
		return User{}, fmt.Errorf("%w: unknown role %q", quiz.ErrValidation, *in.Role)
	}
	var hash, role *string
	email := present(in.Email)
	if email != nil {
		e := normalizeEmail(*email)
		email = &e
	}
	if in.Password != nil && *in.Password != "" {
		h, err := bcrypt.GenerateFromPassword([]byte(*in.Password), a.cost)
		if err != nil {
			return User{}, err
		}
		hs := string(h)
		hash = &hs
	}
	if in.Role != nil {
		r := string(*in.Role)
		role = &r
	}

	err := db.WithTx(ctx, a.db, func(tx *sql.Tx) error {
		var cur string
		err := tx.QueryRowContext(ctx, `SELECT role FROM users WHERE id=$1`, id).Scan(&cur)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: user %d", quiz.ErrNotFound, id)
		}
		if err != nil {
			return err
		}
		if cur == string(quiz.RoleAdmin) && role != nil && *role != cur {
			var admins int
			if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM users WHERE role=$1`, cur).Scan(&admins); err != nil {
				return err
			}
			if admins <= 1 {
				return fmt.Errorf("%w: cannot demote the last admin", quiz.ErrInvalidState)
			}
		}
		_, err = tx.ExecContext(ctx, `UPDATE users SET
			email=COALESCE($1,email),
			first_name=COALESCE($2,first_name),
			last_name=COALESCE($3,last_name),
			patronymic=COALESCE($4,patronymic),
			role=COALESCE($5,role),
			password_hash=COALESCE($6,password_hash)
			WHERE id=$7`,
			email, present(in.FirstName), present(in.LastName), in.Patronymic, role, hash, id)
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("%w: email is already registered", quiz.ErrConflict)
		}
		return err
	})
	if err != nil {
		return User{}, err
	}
	return a.Get(ctx, id)
}

func (a *Accounts) SetRole(ctx context.Context, id int64, role quiz.Role) error {
	_, err := a.Update(ctx, id, UserUpdate{Role: &role})
	return err
}

func normalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// present returns the trimmed value of s, or nil when s is nil or blank.
func present(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// EnsureAdmin makes sure an ADMIN account exists for email, creating it with
// password when the email is unknown. An existing account keeps its password.
func (a *Accounts) EnsureAdmin(ctx context.Context, email, password string) (User, error) {
	u, err := a.Register(ctx, Registration{Email: email, Password: password, FirstName: "Admin", LastName: "Admin"})
	if errors.Is(err, quiz.ErrConflict) {
		err = a.db.QueryRowContext(ctx, `SELECT id FROM users WHERE email=$1`, normalizeEmail(email)).Scan(&u.ID)
	}
	if err != nil {
		return User{}, err
	}
	if err := a.SetRole(ctx, u.ID, quiz.RoleAdmin); err != nil {
		return User{}, err
	}
	return a.Get(ctx, u.ID)
}
