package store

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/jsprague84/svrctlrs-sub002/internal/model"
	"github.com/jsprague84/svrctlrs-sub002/internal/orcherr"
)

// GetSetting fetches one tunable by key.
func (s *Store) GetSetting(ctx context.Context, key string) (*model.Setting, error) {
	var st model.Setting
	err := s.pool.QueryRow(ctx, `
		SELECT key, value, value_type, description, updated_at FROM settings WHERE key=$1`, key,
	).Scan(&st.Key, &st.Value, &st.ValueType, &st.Description, &st.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, orcherr.NotFound("setting", key)
		}
		return nil, orcherr.Storage(err)
	}
	return &st, nil
}

// ListSettings returns every tunable, ordered by key.
func (s *Store) ListSettings(ctx context.Context) ([]model.Setting, error) {
	rows, err := s.pool.Query(ctx, `SELECT key, value, value_type, description, updated_at FROM settings ORDER BY key`)
	if err != nil {
		return nil, orcherr.Storage(err)
	}
	defer rows.Close()

	var out []model.Setting
	for rows.Next() {
		var st model.Setting
		if err := rows.Scan(&st.Key, &st.Value, &st.ValueType, &st.Description, &st.UpdatedAt); err != nil {
			return nil, orcherr.Storage(err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// SetSetting upserts a tunable's value.
func (s *Store) SetSetting(ctx context.Context, key, value string, valueType model.SettingValueType) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO settings (key, value, value_type, updated_at) VALUES ($1,$2,$3,now())
		ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value, value_type=EXCLUDED.value_type, updated_at=now()`,
		key, value, valueType,
	)
	if err != nil {
		return orcherr.Storage(err)
	}
	return nil
}
