package db

import (
	"time"

	"github.com/sublate/backend/internal/db/models"
)

const userColumns = "id, username, password, role, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	u := &models.User{}
	if err := row.Scan(&u.ID, &u.Username, &u.Password, &u.Role, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return u, nil
}

func (d *Database) GetUserByUsername(username string) (*models.User, error) {
	return scanUser(d.db.QueryRow(
		"SELECT "+userColumns+" FROM users WHERE username = ?", username))
}

func (d *Database) GetUserByID(id int64) (*models.User, error) {
	return scanUser(d.db.QueryRow(
		"SELECT "+userColumns+" FROM users WHERE id = ?", id))
}

// ListUsers returns all accounts ordered by creation time.
func (d *Database) ListUsers() ([]*models.User, error) {
	rows, err := d.db.Query("SELECT " + userColumns + " FROM users ORDER BY created_at ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// CreateUser inserts a new account with an already-hashed password.
func (d *Database) CreateUser(username, passwordHash, role string) (int64, error) {
	result, err := d.db.Exec(
		"INSERT INTO users (username, password, role) VALUES (?, ?, ?)",
		username, passwordHash, role,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// UpdateUser changes an account's username and role.
func (d *Database) UpdateUser(id int64, username, role string) error {
	_, err := d.db.Exec(
		"UPDATE users SET username = ?, role = ?, updated_at = ? WHERE id = ?",
		username, role, time.Now(), id,
	)
	return err
}

// UpdateUserPassword replaces an account's password hash.
func (d *Database) UpdateUserPassword(id int64, passwordHash string) error {
	_, err := d.db.Exec(
		"UPDATE users SET password = ?, updated_at = ? WHERE id = ?",
		passwordHash, time.Now(), id,
	)
	return err
}

// DeleteUser removes an account.
func (d *Database) DeleteUser(id int64) error {
	_, err := d.db.Exec("DELETE FROM users WHERE id = ?", id)
	return err
}

// CountAdmins reports how many admin accounts exist; deleting or demoting
// the last one is refused by the handlers.
func (d *Database) CountAdmins() (int, error) {
	var count int
	err := d.db.QueryRow("SELECT COUNT(*) FROM users WHERE role = ?", models.RoleAdmin).Scan(&count)
	return count, err
}
