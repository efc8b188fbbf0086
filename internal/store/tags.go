package store

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/jsprague84/svrctlrs-sub002/internal/model"
	"github.com/jsprague84/svrctlrs-sub002/internal/orcherr"
)

func scanTag(row pgx.Row) (*model.Tag, error) {
	var t model.Tag
	if err := row.Scan(&t.ID, &t.Name, &t.Color, &t.Description); err != nil {
		if err == pgx.ErrNoRows {
			return nil, orcherr.NotFound("tag", "")
		}
		return nil, orcherr.Storage(err)
	}
	return &t, nil
}

// CreateTag inserts a new tag.
func (s *Store) CreateTag(ctx context.Context, t *model.Tag) (*model.Tag, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO tags (name, color, description) VALUES ($1,$2,$3)
		RETURNING id, name, color, description`,
		t.Name, t.Color, t.Description,
	)
	tag, err := scanTag(row)
	if err != nil && isUniqueViolation(err) {
		return nil, orcherr.Conflict("tag", "name")
	}
	return tag, err
}

// ListTags returns every tag.
func (s *Store) ListTags(ctx context.Context) ([]model.Tag, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, color, description FROM tags ORDER BY name`)
	if err != nil {
		return nil, orcherr.Storage(err)
	}
	defer rows.Close()

	var out []model.Tag
	for rows.Next() {
		t, err := scanTag(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// DeleteTag removes a tag and its server associations.
func (s *Store) DeleteTag(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tags WHERE id=$1`, id)
	if err != nil {
		return orcherr.Storage(err)
	}
	if tag.RowsAffected() == 0 {
		return orcherr.NotFound("tag", id)
	}
	return nil
}

// ServersByTagNames resolves a set of tag names to the distinct server IDs
// carrying any of them, used by the Notifier's PolicyFilters.TagNames match.
func (s *Store) ServersByTagNames(ctx context.Context, names []string) ([]int64, error) {
	if len(names) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT st.server_id FROM server_tags st
		JOIN tags t ON t.id = st.tag_id
		WHERE t.name = ANY($1)`, names)
	if err != nil {
		return nil, orcherr.Storage(err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, orcherr.Storage(err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
