package store

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/jsprague84/svrctlrs-sub002/internal/model"
	"github.com/jsprague84/svrctlrs-sub002/internal/orcherr"
)

func scanServer(row pgx.Row) (*model.Server, error) {
	var s model.Server
	err := row.Scan(
		&s.ID, &s.Name, &s.IsLocal, &s.Hostname, &s.Port, &s.SSHUsername, &s.CredentialID,
		&s.Enabled, &s.OSType, &s.OSDistro, &s.PackageManager, &s.DockerAvailable, &s.SystemdAvailable,
		&s.LastSeenAt, &s.LastError, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, orcherr.NotFound("server", "")
		}
		return nil, orcherr.Storage(err)
	}
	return &s, nil
}

const serverColumns = `id, name, is_local, hostname, port, ssh_username, credential_id,
	enabled, os_type, os_distro, package_manager, docker_available, systemd_available,
	last_seen_at, last_error, created_at, updated_at`

// CreateServer inserts a new server. Caller must have already run
// Server.Validate.
func (s *Store) CreateServer(ctx context.Context, srv *model.Server) (*model.Server, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO servers (name, is_local, hostname, port, ssh_username, credential_id,
			enabled, os_type, os_distro, package_manager, docker_available, systemd_available)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING `+serverColumns,
		srv.Name, srv.IsLocal, srv.Hostname, srv.Port, srv.SSHUsername, srv.CredentialID,
		srv.Enabled, srv.OSType, srv.OSDistro, srv.PackageManager, srv.DockerAvailable, srv.SystemdAvailable,
	)
	return scanServer(row)
}

// GetServer fetches one server by id.
func (s *Store) GetServer(ctx context.Context, id int64) (*model.Server, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+serverColumns+` FROM servers WHERE id = $1`, id)
	return scanServer(row)
}

// ListServers returns all servers, optionally filtered by enabled-only.
func (s *Store) ListServers(ctx context.Context, enabledOnly bool) ([]model.Server, error) {
	query := `SELECT ` + serverColumns + ` FROM servers`
	if enabledOnly {
		query += ` WHERE enabled = true`
	}
	query += ` ORDER BY name`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, orcherr.Storage(err)
	}
	defer rows.Close()

	var out []model.Server
	for rows.Next() {
		srv, err := scanServer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *srv)
	}
	return out, rows.Err()
}

// UpdateServer persists all mutable fields of srv.
func (s *Store) UpdateServer(ctx context.Context, srv *model.Server) (*model.Server, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE servers SET name=$2, is_local=$3, hostname=$4, port=$5, ssh_username=$6,
			credential_id=$7, enabled=$8, os_type=$9, os_distro=$10, package_manager=$11,
			docker_available=$12, systemd_available=$13, updated_at=now()
		WHERE id=$1
		RETURNING `+serverColumns,
		srv.ID, srv.Name, srv.IsLocal, srv.Hostname, srv.Port, srv.SSHUsername,
		srv.CredentialID, srv.Enabled, srv.OSType, srv.OSDistro, srv.PackageManager,
		srv.DockerAvailable, srv.SystemdAvailable,
	)
	return scanServer(row)
}

// RecordServerProbe updates the fields a connection test / capability
// detection pass discovers: last_seen_at, last_error, and the OS facts.
func (s *Store) RecordServerProbe(ctx context.Context, id int64, osType, osDistro, pkgManager string, docker, systemd bool, probeErr *string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE servers SET os_type=$2, os_distro=$3, package_manager=$4,
			docker_available=$5, systemd_available=$6, last_error=$7,
			last_seen_at = CASE WHEN $7::text IS NULL THEN now() ELSE last_seen_at END,
			updated_at=now()
		WHERE id=$1`,
		id, osType, osDistro, pkgManager, docker, systemd, probeErr,
	)
	if err != nil {
		return orcherr.Storage(err)
	}
	return nil
}

// DeleteServer removes a server. Returns InUse if referenced by a schedule.
func (s *Store) DeleteServer(ctx context.Context, id int64) error {
	var count int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM job_schedules WHERE server_id=$1`, id).Scan(&count); err != nil {
		return orcherr.Storage(err)
	}
	if count > 0 {
		return orcherr.InUse("server", "job_schedules")
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM servers WHERE id=$1`, id)
	if err != nil {
		return orcherr.Storage(err)
	}
	if tag.RowsAffected() == 0 {
		return orcherr.NotFound("server", id)
	}
	return nil
}

// UpsertServerCapability records or refreshes one detected capability row.
func (s *Store) UpsertServerCapability(ctx context.Context, c *model.ServerCapability) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO server_capabilities (server_id, capability, available, version, detected_at)
		VALUES ($1,$2,$3,$4,now())
		ON CONFLICT (server_id, capability) DO UPDATE SET
			available=EXCLUDED.available, version=EXCLUDED.version, detected_at=now()`,
		c.ServerID, c.Capability, c.Available, c.Version,
	)
	if err != nil {
		return orcherr.Storage(err)
	}
	return nil
}

// ListServerCapabilities returns every detected capability row for a server.
func (s *Store) ListServerCapabilities(ctx context.Context, serverID int64) ([]model.ServerCapability, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT server_id, capability, available, version, detected_at
		FROM server_capabilities WHERE server_id=$1`, serverID)
	if err != nil {
		return nil, orcherr.Storage(err)
	}
	defer rows.Close()

	var out []model.ServerCapability
	for rows.Next() {
		var c model.ServerCapability
		if err := rows.Scan(&c.ServerID, &c.Capability, &c.Available, &c.Version, &c.DetectedAt); err != nil {
			return nil, orcherr.Storage(err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListServerTags returns the tag names attached to a server.
func (s *Store) ListServerTags(ctx context.Context, serverID int64) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT t.name FROM tags t
		JOIN server_tags st ON st.tag_id = t.id
		WHERE st.server_id = $1 ORDER BY t.name`, serverID)
	if err != nil {
		return nil, orcherr.Storage(err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, orcherr.Storage(err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// SetServerTags replaces the full tag set for a server in one transaction.
func (s *Store) SetServerTags(ctx context.Context, serverID int64, tagIDs []int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return orcherr.Storage(err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM server_tags WHERE server_id=$1`, serverID); err != nil {
		return orcherr.Storage(err)
	}
	for _, tagID := range tagIDs {
		if _, err := tx.Exec(ctx, `INSERT INTO server_tags (server_id, tag_id) VALUES ($1,$2)`, serverID, tagID); err != nil {
			return orcherr.Storage(err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return orcherr.Storage(err)
	}
	return nil
}
