package db

// TranslationPreset is a user-saved system prompt selectable by name when
// starting a run, alongside the builtin styles.
type TranslationPreset struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Prompt    string `json:"prompt"`
	CreatedAt string `json:"created_at"`
}

const presetColumns = "id, name, prompt, created_at"

func scanPreset(row rowScanner) (*TranslationPreset, error) {
	p := &TranslationPreset{}
	if err := row.Scan(&p.ID, &p.Name, &p.Prompt, &p.CreatedAt); err != nil {
		return nil, err
	}
	return p, nil
}

// ListTranslationPresets returns all saved presets in dropdown order.
func (d *Database) ListTranslationPresets() ([]TranslationPreset, error) {
	rows, err := d.db.Query(
		"SELECT " + presetColumns + " FROM translation_presets ORDER BY name COLLATE NOCASE ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	presets := []TranslationPreset{}
	for rows.Next() {
		p, err := scanPreset(rows)
		if err != nil {
			return nil, err
		}
		presets = append(presets, *p)
	}
	return presets, rows.Err()
}

// GetTranslationPresetByName looks up a saved preset prompt by its name.
func (d *Database) GetTranslationPresetByName(name string) (*TranslationPreset, error) {
	return scanPreset(d.db.QueryRow(
		"SELECT "+presetColumns+" FROM translation_presets WHERE name = ?", name))
}

// CreateTranslationPreset saves a new preset. Names are unique.
func (d *Database) CreateTranslationPreset(name, prompt string) (int64, error) {
	result, err := d.db.Exec(
		"INSERT INTO translation_presets (name, prompt) VALUES (?, ?)", name, prompt)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// UpdateTranslationPreset replaces a saved preset's name and prompt.
func (d *Database) UpdateTranslationPreset(id int64, name, prompt string) error {
	_, err := d.db.Exec(
		"UPDATE translation_presets SET name = ?, prompt = ? WHERE id = ?", name, prompt, id)
	return err
}

// DeleteTranslationPreset removes a saved preset. Runs already queued keep
// the prompt text they captured at enqueue time.
func (d *Database) DeleteTranslationPreset(id int64) error {
	_, err := d.db.Exec("DELETE FROM translation_presets WHERE id = ?", id)
	return err
}
