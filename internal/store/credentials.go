package store

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/jsprague84/svrctlrs-sub002/internal/model"
	"github.com/jsprague84/svrctlrs-sub002/internal/orcherr"
)

func scanCredential(row pgx.Row) (*model.Credential, error) {
	var c model.Credential
	var metadata []byte
	err := row.Scan(&c.ID, &c.Name, &c.Kind, &c.Value, &c.Username, &metadata, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, orcherr.NotFound("credential", "")
		}
		return nil, orcherr.Storage(err)
	}
	if err := fromJSON(metadata, &c.Metadata); err != nil {
		return nil, orcherr.Storage(err)
	}
	return &c, nil
}

const credentialColumns = `id, name, kind, value, username, metadata, created_at, updated_at`

// CreateCredential inserts a new secret bundle.
func (s *Store) CreateCredential(ctx context.Context, c *model.Credential) (*model.Credential, error) {
	metadata, err := toJSON(c.Metadata)
	if err != nil {
		return nil, orcherr.Invalid("metadata", err.Error())
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO credentials (name, kind, value, username, metadata)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING `+credentialColumns,
		c.Name, c.Kind, c.Value, c.Username, metadata,
	)
	return scanCredential(row)
}

// GetCredential fetches one credential by id.
func (s *Store) GetCredential(ctx context.Context, id int64) (*model.Credential, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+credentialColumns+` FROM credentials WHERE id=$1`, id)
	return scanCredential(row)
}

// ListCredentials returns every credential (Value is included; callers that
// expose this over HTTP must drop it, matching the json:"-" tag on the
// model field).
func (s *Store) ListCredentials(ctx context.Context) ([]model.Credential, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+credentialColumns+` FROM credentials ORDER BY name`)
	if err != nil {
		return nil, orcherr.Storage(err)
	}
	defer rows.Close()

	var out []model.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// DeleteCredential removes a credential. Returns InUse if a server references it.
func (s *Store) DeleteCredential(ctx context.Context, id int64) error {
	var count int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM servers WHERE credential_id=$1`, id).Scan(&count); err != nil {
		return orcherr.Storage(err)
	}
	if count > 0 {
		return orcherr.InUse("credential", "servers")
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM credentials WHERE id=$1`, id)
	if err != nil {
		return orcherr.Storage(err)
	}
	if tag.RowsAffected() == 0 {
		return orcherr.NotFound("credential", id)
	}
	return nil
}
