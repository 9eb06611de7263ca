package db

// Settings stored here take precedence over the matching environment
// variables; a missing row falls back to the caller's default.

// GetSetting returns the stored value for key, or defaultVal when no row
// exists.
func (d *Database) GetSetting(key, defaultVal string) string {
	var val string
	if err := d.db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&val); err != nil {
		return defaultVal
	}
	return val
}

// SetSetting stores or replaces a setting.
func (d *Database) SetSetting(key, value string) error {
	_, err := d.db.Exec(`
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, value,
	)
	return err
}

// DeleteSetting removes a stored setting so the environment default applies
// again. Deleting an absent key is not an error.
func (d *Database) DeleteSetting(key string) error {
	_, err := d.db.Exec("DELETE FROM settings WHERE key = ?", key)
	return err
}

// GetAllSettings returns every stored setting keyed by name.
func (d *Database) GetAllSettings() (map[string]string, error) {
	rows, err := d.db.Query("SELECT key, value FROM settings")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		result[k] = v
	}
	return result, rows.Err()
}
