package repository

import (
	"database/sql"
	"time"

	"github.com/liliang-cn/ragproxy/internal/domain"
)

// CapabilityRepository persists model capability rows
type CapabilityRepository struct {
	db *DB
}

// NewCapabilityRepository creates a new capability repository
func NewCapabilityRepository(db *DB) *CapabilityRepository {
	return &CapabilityRepository{db: db}
}

// Get retrieves one model's capabilities, nil when unknown
func (r *CapabilityRepository) Get(model string) (*domain.ModelCapabilities, error) {
	var vision int
	err := r.db.QueryRow(`
		SELECT vision FROM model_capabilities WHERE model = ?
	`, model).Scan(&vision)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &domain.ModelCapabilities{Vision: vision != 0}, nil
}

// Upsert stores one model's capabilities
func (r *CapabilityRepository) Upsert(model string, caps domain.ModelCapabilities) error {
	vision := 0
	if caps.Vision {
		vision = 1
	}
	_, err := r.db.Exec(`
		INSERT INTO model_capabilities (model, vision, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(model) DO UPDATE SET vision = excluded.vision, updated_at = excluded.updated_at
	`, model, vision, time.Now())
	return err
}

// List retrieves all known model capabilities
func (r *CapabilityRepository) List() (map[string]domain.ModelCapabilities, error) {
	rows, err := r.db.Query(`SELECT model, vision FROM model_capabilities`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	caps := make(map[string]domain.ModelCapabilities)
	for rows.Next() {
		var model string
		var vision int
		if err := rows.Scan(&model, &vision); err != nil {
			return nil, err
		}
		caps[model] = domain.ModelCapabilities{Vision: vision != 0}
	}
	return caps, rows.Err()
}
