package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/org/assetwatch/pkg/models"
)

// PostgresBackend is a Backend backed by PostgreSQL.
type PostgresBackend struct {
	pool *pgxpool.Pool
}

// NewPostgresBackend opens a pgxpool connection and returns a ready backend.
func NewPostgresBackend(ctx context.Context, connStr string) (*PostgresBackend, error) {
	cfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &PostgresBackend{pool: pool}, nil
}

func (p *PostgresBackend) Close() {
	p.pool.Close()
}

// --- Users ---

func (p *PostgresBackend) CreateUser(ctx context.Context, user *models.User) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO users (id, username, password_hash, role, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		user.ID, user.Username, user.PasswordHash, user.Role, user.CreatedAt,
	)
	if err != nil && strings.Contains(err.Error(), "duplicate key") {
		return ErrAlreadyExists
	}
	return err
}

func (p *PostgresBackend) GetUser(ctx context.Context, username string) (*models.User, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT id, username, password_hash, role, created_at, last_login_at
		 FROM users WHERE username = $1`,
		username,
	)
	var u models.User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.LastLoginAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (p *PostgresBackend) ListUsers(ctx context.Context) ([]*models.User, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, username, password_hash, role, created_at, last_login_at
		 FROM users ORDER BY username`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []*models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.LastLoginAt); err != nil {
			return nil, err
		}
		users = append(users, &u)
	}
	return users, rows.Err()
}

func (p *PostgresBackend) DeleteUser(ctx context.Context, username string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM users WHERE username = $1`, username)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresBackend) TouchUserLogin(ctx context.Context, username string, at time.Time) error {
	_, err := p.pool.Exec(ctx,
		`UPDATE users SET last_login_at = $1 WHERE username = $2`,
		at, username,
	)
	return err
}

// --- Sessions ---

func (p *PostgresBackend) WriteSession(ctx context.Context, s *models.Session, tokenHash string) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO sessions (id, token_hash, username, role, durable, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ID, tokenHash, s.Username, s.Role, s.Durable, s.CreatedAt, nullableTime(s.ExpiresAt),
	)
	return err
}

func (p *PostgresBackend) GetSession(ctx context.Context, tokenHash string) (*models.Session, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT id, username, role, durable, created_at, expires_at, revoked_at
		 FROM sessions WHERE token_hash = $1`,
		tokenHash,
	)
	var s models.Session
	var expiresAt *time.Time
	err := row.Scan(&s.ID, &s.Username, &s.Role, &s.Durable, &s.CreatedAt, &expiresAt, &s.RevokedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if expiresAt != nil {
		s.ExpiresAt = *expiresAt
	}
	return &s, nil
}

func (p *PostgresBackend) RevokeSession(ctx context.Context, sessionID string) error {
	_, err := p.pool.Exec(ctx,
		`UPDATE sessions SET revoked_at = NOW() WHERE id = $1 AND revoked_at IS NULL`,
		sessionID,
	)
	return err
}

func (p *PostgresBackend) RevokeUserSessions(ctx context.Context, username string) error {
	_, err := p.pool.Exec(ctx,
		`UPDATE sessions SET revoked_at = NOW() WHERE username = $1 AND revoked_at IS NULL`,
		username,
	)
	return err
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// --- Devices ---

func (p *PostgresBackend) CreateDevice(ctx context.Context, d *models.Device) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO devices (id, name, type, ip_address, mac, latitude, longitude, status, last_seen, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		d.ID, d.Name, d.Type, d.IPAddress, d.MAC, d.Latitude, d.Longitude,
		d.Status, d.LastSeen, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil && strings.Contains(err.Error(), "duplicate key") {
		return ErrAlreadyExists
	}
	return err
}

func (p *PostgresBackend) GetDevice(ctx context.Context, id string) (*models.Device, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT id, name, type, ip_address, mac, latitude, longitude, status, last_seen, created_at, updated_at
		 FROM devices WHERE id = $1`,
		id,
	)
	return scanDevice(row)
}

func scanDevice(row pgx.Row) (*models.Device, error) {
	var d models.Device
	err := row.Scan(&d.ID, &d.Name, &d.Type, &d.IPAddress, &d.MAC,
		&d.Latitude, &d.Longitude, &d.Status, &d.LastSeen, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (p *PostgresBackend) ListDevices(ctx context.Context, filter models.DeviceFilter) ([]*models.Device, error) {
	query := strings.Builder{}
	query.WriteString(`SELECT id, name, type, ip_address, mac, latitude, longitude, status, last_seen, created_at, updated_at FROM devices WHERE 1=1`)
	args := []any{}
	n := 1
	if filter.Type != "" {
		fmt.Fprintf(&query, ` AND type = $%d`, n)
		args = append(args, filter.Type)
		n++
	}
	if filter.Status != "" {
		fmt.Fprintf(&query, ` AND status = $%d`, n)
		args = append(args, filter.Status)
		n++
	}
	if filter.Query != "" {
		fmt.Fprintf(&query, ` AND (name ILIKE $%d OR ip_address ILIKE $%d OR mac ILIKE $%d)`, n, n, n)
		args = append(args, "%"+filter.Query+"%")
		n++
	}
	query.WriteString(` ORDER BY name`)
	if filter.Limit > 0 {
		fmt.Fprintf(&query, ` LIMIT $%d`, n)
		args = append(args, filter.Limit)
		n++
	}
	if filter.Offset > 0 {
		fmt.Fprintf(&query, ` OFFSET $%d`, n)
		args = append(args, filter.Offset)
	}

	rows, err := p.pool.Query(ctx, query.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var devices []*models.Device
	for rows.Next() {
		var d models.Device
		if err := rows.Scan(&d.ID, &d.Name, &d.Type, &d.IPAddress, &d.MAC,
			&d.Latitude, &d.Longitude, &d.Status, &d.LastSeen, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		devices = append(devices, &d)
	}
	return devices, rows.Err()
}

func (p *PostgresBackend) UpdateDevice(ctx context.Context, d *models.Device) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE devices
		 SET name = $1, type = $2, ip_address = $3, mac = $4, latitude = $5,
		     longitude = $6, status = $7, updated_at = NOW()
		 WHERE id = $8`,
		d.Name, d.Type, d.IPAddress, d.MAC, d.Latitude, d.Longitude, d.Status, d.ID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresBackend) DeleteDevice(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM devices WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresBackend) TouchDevice(ctx context.Context, id, status string, seenAt time.Time) error {
	_, err := p.pool.Exec(ctx,
		`UPDATE devices SET status = $1, last_seen = $2, updated_at = NOW() WHERE id = $3`,
		status, seenAt, id,
	)
	return err
}

// --- Network discovery ---

func (p *PostgresBackend) WriteDiscoveryRecords(ctx context.Context, records []*models.DiscoveryRecord) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, r := range records {
		portsJSON, err := json.Marshal(r.OpenPorts)
		if err != nil {
			return err
		}
		err = tx.QueryRow(ctx,
			`INSERT INTO discovery_records (sweep_id, ip_address, mac, hostname, vendor, open_ports, seen_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 RETURNING id`,
			r.SweepID, r.IPAddress, r.MAC, r.Hostname, r.Vendor, portsJSON, r.SeenAt,
		).Scan(&r.ID)
		if err != nil {
			return fmt.Errorf("inserting discovery record: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (p *PostgresBackend) ListDiscoveryRecords(ctx context.Context, sweepID string, limit int) ([]*models.DiscoveryRecord, error) {
	query := `SELECT id, sweep_id, ip_address, mac, hostname, vendor, open_ports, seen_at
	          FROM discovery_records WHERE sweep_id = $1 ORDER BY ip_address`
	args := []any{sweepID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*models.DiscoveryRecord
	for rows.Next() {
		var r models.DiscoveryRecord
		var portsJSON []byte
		if err := rows.Scan(&r.ID, &r.SweepID, &r.IPAddress, &r.MAC, &r.Hostname,
			&r.Vendor, &portsJSON, &r.SeenAt); err != nil {
			return nil, err
		}
		json.Unmarshal(portsJSON, &r.OpenPorts) //nolint:errcheck
		records = append(records, &r)
	}
	return records, rows.Err()
}

func (p *PostgresBackend) LatestSweepID(ctx context.Context) (string, error) {
	var sweepID string
	err := p.pool.QueryRow(ctx,
		`SELECT sweep_id FROM discovery_records ORDER BY seen_at DESC LIMIT 1`,
	).Scan(&sweepID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return sweepID, nil
}

// --- Website blocking ---

func (p *PostgresBackend) AddBlockedSite(ctx context.Context, site *models.BlockedSite) error {
	err := p.pool.QueryRow(ctx,
		`INSERT INTO blocked_sites (hostname, reason, added_by, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (hostname) DO UPDATE SET reason = EXCLUDED.reason
		 RETURNING id`,
		site.Hostname, site.Reason, site.AddedBy, site.CreatedAt,
	).Scan(&site.ID)
	return err
}

func (p *PostgresBackend) RemoveBlockedSite(ctx context.Context, hostname string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM blocked_sites WHERE hostname = $1`, hostname)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresBackend) ListBlockedSites(ctx context.Context) ([]*models.BlockedSite, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, hostname, reason, added_by, created_at FROM blocked_sites ORDER BY hostname`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sites []*models.BlockedSite
	for rows.Next() {
		var s models.BlockedSite
		if err := rows.Scan(&s.ID, &s.Hostname, &s.Reason, &s.AddedBy, &s.CreatedAt); err != nil {
			return nil, err
		}
		sites = append(sites, &s)
	}
	return sites, rows.Err()
}

// --- Router ---

func (p *PostgresBackend) GetRouterConfig(ctx context.Context) (*models.RouterConfig, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT address, admin_user, dns_servers, dhcp_range, updated_by, updated_at
		 FROM router_config ORDER BY updated_at DESC LIMIT 1`,
	)
	var cfg models.RouterConfig
	var dnsJSON []byte
	err := row.Scan(&cfg.Address, &cfg.AdminUser, &dnsJSON, &cfg.DHCPRange, &cfg.UpdatedBy, &cfg.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	json.Unmarshal(dnsJSON, &cfg.DNSServers) //nolint:errcheck
	return &cfg, nil
}

func (p *PostgresBackend) WriteRouterConfig(ctx context.Context, cfg *models.RouterConfig) error {
	dnsJSON, err := json.Marshal(cfg.DNSServers)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO router_config (address, admin_user, dns_servers, dhcp_range, updated_by, updated_at)
		 VALUES ($1, $2, $3, $4, $5, NOW())`,
		cfg.Address, cfg.AdminUser, dnsJSON, cfg.DHCPRange, cfg.UpdatedBy,
	)
	return err
}

// --- Alerts ---

func (p *PostgresBackend) CreateAlert(ctx context.Context, a *models.Alert) error {
	return p.pool.QueryRow(ctx,
		`INSERT INTO alerts (severity, message, device_id, created_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		a.Severity, a.Message, a.DeviceID, a.CreatedAt,
	).Scan(&a.ID)
}

func (p *PostgresBackend) ListAlerts(ctx context.Context, openOnly bool, limit int) ([]*models.Alert, error) {
	query := strings.Builder{}
	query.WriteString(`SELECT id, severity, message, device_id, created_at, acked_by, acked_at FROM alerts`)
	if openOnly {
		query.WriteString(` WHERE acked_at IS NULL`)
	}
	query.WriteString(` ORDER BY created_at DESC`)
	args := []any{}
	if limit > 0 {
		query.WriteString(` LIMIT $1`)
		args = append(args, limit)
	}

	rows, err := p.pool.Query(ctx, query.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []*models.Alert
	for rows.Next() {
		var a models.Alert
		if err := rows.Scan(&a.ID, &a.Severity, &a.Message, &a.DeviceID,
			&a.CreatedAt, &a.AckedBy, &a.AckedAt); err != nil {
			return nil, err
		}
		alerts = append(alerts, &a)
	}
	return alerts, rows.Err()
}

func (p *PostgresBackend) AckAlert(ctx context.Context, id int64, username string) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE alerts SET acked_by = $1, acked_at = NOW() WHERE id = $2 AND acked_at IS NULL`,
		username, id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Settings ---

func (p *PostgresBackend) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := p.pool.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return value, nil
}

func (p *PostgresBackend) SetSetting(ctx context.Context, key, value string) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES ($1, $2, NOW())
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
		key, value,
	)
	return err
}

func (p *PostgresBackend) ListSettings(ctx context.Context) (map[string]string, error) {
	rows, err := p.pool.Query(ctx, `SELECT key, value FROM settings ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	settings := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		settings[k] = v
	}
	return settings, rows.Err()
}

// --- Activity log ---

func (p *PostgresBackend) WriteActivityEntry(ctx context.Context, entry *models.ActivityEntry) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO activity_log (request_id, timestamp, username, operation, path, status, response_code, response_time_ms, client_ip)
		 VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.RequestID, entry.Timestamp, entry.Username, entry.Operation, entry.Path,
		entry.Status, entry.ResponseCode, entry.ResponseTimeMs, entry.ClientIP,
	)
	return err
}

func (p *PostgresBackend) QueryActivity(ctx context.Context, filter ActivityFilter) ([]*models.ActivityEntry, error) {
	query := strings.Builder{}
	query.WriteString(`SELECT id, request_id, timestamp, username, operation, path, status, response_code, response_time_ms, client_ip FROM activity_log WHERE 1=1`)
	args := []any{}
	n := 1
	if filter.Username != "" {
		fmt.Fprintf(&query, ` AND username = $%d`, n)
		args = append(args, filter.Username)
		n++
	}
	if filter.Path != "" {
		fmt.Fprintf(&query, ` AND path LIKE $%d`, n)
		args = append(args, filter.Path+"%")
		n++
	}
	if filter.Since != nil {
		fmt.Fprintf(&query, ` AND timestamp >= $%d`, n)
		args = append(args, filter.Since)
		n++
	}
	query.WriteString(` ORDER BY timestamp DESC`)
	if filter.Limit > 0 {
		fmt.Fprintf(&query, ` LIMIT $%d`, n)
		args = append(args, filter.Limit)
		n++
	}
	if filter.Offset > 0 {
		fmt.Fprintf(&query, ` OFFSET $%d`, n)
		args = append(args, filter.Offset)
	}

	rows, err := p.pool.Query(ctx, query.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.ActivityEntry
	for rows.Next() {
		var e models.ActivityEntry
		if err := rows.Scan(&e.ID, &e.RequestID, &e.Timestamp, &e.Username, &e.Operation,
			&e.Path, &e.Status, &e.ResponseCode, &e.ResponseTimeMs, &e.ClientIP); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// --- Metrics ---

func (p *PostgresBackend) CountDevices(ctx context.Context) (int64, error) {
	var count int64
	err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM devices`).Scan(&count)
	return count, err
}

func (p *PostgresBackend) CountActiveSessions(ctx context.Context) (int64, error) {
	var count int64
	err := p.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM sessions WHERE revoked_at IS NULL AND (expires_at IS NULL OR expires_at > NOW())`,
	).Scan(&count)
	return count, err
}

func (p *PostgresBackend) CountOpenAlerts(ctx context.Context) (int64, error) {
	var count int64
	err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM alerts WHERE acked_at IS NULL`).Scan(&count)
	return count, err
}
