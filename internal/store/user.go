package store

import (
	"crypto/rand"
	"database/sql"
	"fmt"
	"math/big"
	"strings"

	"github.com/atlasbahamas/atlas/internal/model"
)

type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

func scanUser(scanner interface{ Scan(...any) error }) (*model.User, error) {
	var u model.User
	err := scanner.Scan(
		&u.ID, &u.AccountNumber, &u.Username, &u.Email, &u.FullName, &u.Phone,
		&u.Role, &u.PasswordSalt, &u.PasswordHash, &u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

const userCols = `id, account_number, username, email, full_name, phone, role, password_salt, password_hash, created_at`

// NewUser carries the fields needed to insert an account.
type NewUser struct {
	Username     string
	Email        string
	FullName     string
	Phone        string
	Role         string
	PasswordSalt string
	PasswordHash string
}

// Create inserts a user with a freshly allocated account number.
func (s *UserStore) Create(nu NewUser) (*model.User, error) {
	existing, err := s.GetByUsername(nu.Username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrUsernameTaken
	}

	acct, err := s.newAccountNumber()
	if err != nil {
		return nil, err
	}

	result, err := s.db.Exec(
		`INSERT INTO users (account_number, username, email, full_name, phone, role, password_salt, password_hash)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		acct, nu.Username, strings.ToLower(strings.TrimSpace(nu.Email)), nu.FullName, nu.Phone,
		nu.Role, nu.PasswordSalt, nu.PasswordHash,
	)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

// newAccountNumber picks a random unused A00000-A99999 number.
func (s *UserStore) newAccountNumber() (string, error) {
	for range 50 {
		n, err := rand.Int(rand.Reader, big.NewInt(100000))
		if err != nil {
			return "", fmt.Errorf("generate account number: %w", err)
		}
		acct := fmt.Sprintf("A%05d", n.Int64())
		var one int
		err = s.db.QueryRow(`SELECT 1 FROM users WHERE account_number = ?`, acct).Scan(&one)
		if err == sql.ErrNoRows {
			return acct, nil
		}
		if err != nil {
			return "", fmt.Errorf("check account number: %w", err)
		}
	}
	return "", fmt.Errorf("generate account number: no free number found")
}

func (s *UserStore) get(query string, args ...any) (*model.User, error) {
	u, err := scanUser(s.db.QueryRow(`SELECT `+userCols+` FROM users WHERE `+query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *UserStore) GetByID(id int64) (*model.User, error) {
	return s.get(`id = ?`, id)
}

func (s *UserStore) GetByUsername(username string) (*model.User, error) {
	return s.get(`username = ?`, username)
}

func (s *UserStore) GetByAccount(account string) (*model.User, error) {
	return s.get(`account_number = ?`, strings.ToUpper(strings.TrimSpace(account)))
}

// GetByEmail returns the oldest account registered with email.
func (s *UserStore) GetByEmail(email string) (*model.User, error) {
	return s.get(`email = ? ORDER BY id LIMIT 1`, strings.ToLower(strings.TrimSpace(email)))
}

// FindForLogin tries an exact username match, then a case-insensitive one.
// A case-insensitive match that hits more than one account returns nil.
func (s *UserStore) FindForLogin(username string) (*model.User, error) {
	u, err := s.GetByUsername(username)
	if err != nil || u != nil {
		return u, err
	}

	rows, err := s.db.Query(`SELECT `+userCols+` FROM users WHERE lower(username) = lower(?) LIMIT 2`, username)
	if err != nil {
		return nil, fmt.Errorf("find user for login: %w", err)
	}
	defer rows.Close()

	var found []*model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		found = append(found, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	if len(found) != 1 {
		return nil, nil
	}
	return found[0], nil
}

// Lookup resolves an invite target given as account number, username or email.
func (s *UserStore) Lookup(ident string) (*model.User, error) {
	ident = strings.TrimSpace(ident)
	if ident == "" {
		return nil, nil
	}
	if u, err := s.GetByAccount(ident); err != nil || u != nil {
		return u, err
	}
	if strings.Contains(ident, "@") {
		return s.GetByEmail(ident)
	}
	return s.FindForLogin(ident)
}

func (s *UserStore) List() ([]model.User, error) {
	rows, err := s.db.Query(`SELECT ` + userCols + ` FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (s *UserStore) UpdateProfile(id int64, fullName, phone, email string) (*model.User, error) {
	_, err := s.db.Exec(
		`UPDATE users SET full_name = ?, phone = ?, email = ? WHERE id = ?`,
		fullName, phone, strings.ToLower(strings.TrimSpace(email)), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return s.GetByID(id)
}

func (s *UserStore) UpdatePassword(id int64, salt, hash string) error {
	_, err := s.db.Exec(`UPDATE users SET password_salt = ?, password_hash = ? WHERE id = ?`, salt, hash, id)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// UpdateRole changes a user's role. Demoting the last admin returns ErrLastAdmin.
func (s *UserStore) UpdateRole(id int64, role string) (oldRole string, err error) {
	err = withTx(s.db, func(tx *sql.Tx) error {
		if err := tx.QueryRow(`SELECT role FROM users WHERE id = ?`, id).Scan(&oldRole); err != nil {
			return fmt.Errorf("get role: %w", err)
		}
		if oldRole == model.RoleAdmin && role != model.RoleAdmin {
			var admins int
			if err := tx.QueryRow(`SELECT COUNT(*) FROM users WHERE role = 'admin'`).Scan(&admins); err != nil {
				return fmt.Errorf("count admins: %w", err)
			}
			if admins <= 1 {
				return ErrLastAdmin
			}
		}
		if _, err := tx.Exec(`UPDATE users SET role = ? WHERE id = ?`, role, id); err != nil {
			return fmt.Errorf("update role: %w", err)
		}
		return nil
	})
	return oldRole, err
}

func (s *UserStore) CountByRole(role string) (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM users WHERE role = ?`, role).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}
