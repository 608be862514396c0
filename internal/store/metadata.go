package store

import "database/sql"

const referenceHashPrefix = "reference_hash:"

// SetMetadata upserts a key-value pair in the metadata table.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = ?`,
		key, value, value,
	)
	return err
}

// GetMetadata returns the value for a metadata key.
// Returns empty string and nil error if the key is missing.
func (s *Store) GetMetadata(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetReferenceHash records the content hash of a reference file as last written by a run.
func (s *Store) SetReferenceHash(path, hash string) error {
	return s.SetMetadata(referenceHashPrefix+path, hash)
}

// GetReferenceHash returns the recorded hash of a reference file, or "" if none.
func (s *Store) GetReferenceHash(path string) (string, error) {
	return s.GetMetadata(referenceHashPrefix + path)
}
