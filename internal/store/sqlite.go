package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on a single SQLite database. Transactions
// are opened with _txlock=immediate, so every capture takes the write lock
// up front and the count/evict/insert sequence is serialized across
// concurrent writers.
type SQLiteStore struct {
	db        *sql.DB
	retention int
}

// NewSQLiteStore opens (or creates) the database at path. retention is the
// per-endpoint cap on stored requests.
func NewSQLiteStore(path string, retention int) (*SQLiteStore, error) {
	dsn := "file:" + path +
		"?_txlock=immediate" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=foreign_keys(1)" +
		"&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}

	s := &SQLiteStore{db: db, retention: retention}
	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) init() error {
	query := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		slug TEXT NOT NULL UNIQUE,
		share_pin TEXT NOT NULL,
		is_pending_delete INTEGER NOT NULL DEFAULT 0,
		expires_at DATETIME NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS endpoints (
		id TEXT PRIMARY KEY,
		slug TEXT NOT NULL UNIQUE,
		session_id TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY(session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);
	CREATE TABLE IF NOT EXISTS requests (
		id TEXT PRIMARY KEY,
		endpoint_id TEXT NOT NULL,
		method TEXT NOT NULL,
		pathname TEXT NOT NULL,
		ip TEXT NOT NULL,
		status_code INTEGER NOT NULL,
		content_type TEXT NOT NULL DEFAULT '',
		content_length INTEGER NOT NULL DEFAULT 0,
		query_params TEXT NOT NULL DEFAULT '',
		headers TEXT NOT NULL,
		body TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		FOREIGN KEY(endpoint_id) REFERENCES endpoints(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_endpoints_session_id ON endpoints(session_id);
	CREATE INDEX IF NOT EXISTS idx_requests_endpoint_id ON requests(endpoint_id, id);
	`
	_, err := s.db.Exec(query)
	return err
}

// newID returns a UUIDv7. The ids embed the creation time, so primary-key
// order matches (created_at, insertion) order and works as a keyset cursor.
func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

func (s *SQLiteStore) CreateSession(ctx context.Context, slug, sharePin string, ttl time.Duration) (*Session, error) {
	now := time.Now().UTC()
	sess := &Session{
		ID:        newID(),
		Slug:      slug,
		SharePin:  sharePin,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, slug, share_pin, is_pending_delete, expires_at, created_at)
		VALUES (?, ?, ?, 0, ?, ?)
	`, sess.ID, sess.Slug, sess.SharePin, sess.ExpiresAt, sess.CreatedAt)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *SQLiteStore) GetSessionBySlug(ctx context.Context, slug string) (*Session, error) {
	// Expired sessions are treated as absent; the cleanup job deletes them.
	return s.scanSession(s.db.QueryRowContext(ctx, `
		SELECT id, slug, share_pin, is_pending_delete, expires_at, created_at
		FROM sessions WHERE slug = ? AND expires_at > ?
	`, slug, time.Now().UTC()))
}

func (s *SQLiteStore) GetSessionByID(ctx context.Context, id string) (*Session, error) {
	return s.scanSession(s.db.QueryRowContext(ctx, `
		SELECT id, slug, share_pin, is_pending_delete, expires_at, created_at
		FROM sessions WHERE id = ? AND expires_at > ?
	`, id, time.Now().UTC()))
}

func (s *SQLiteStore) scanSession(row *sql.Row) (*Session, error) {
	var sess Session
	err := row.Scan(&sess.ID, &sess.Slug, &sess.SharePin, &sess.IsPendingDelete, &sess.ExpiresAt, &sess.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *SQLiteStore) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at <= ?", time.Now().UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) CreateEndpoint(ctx context.Context, sessionID, slug string) (*Endpoint, error) {
	now := time.Now().UTC()
	ep := &Endpoint{
		ID:        newID(),
		Slug:      slug,
		SessionID: sessionID,
		CreatedAt: now,
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO endpoints (id, slug, session_id, created_at) VALUES (?, ?, ?, ?)
	`, ep.ID, ep.Slug, ep.SessionID, ep.CreatedAt)
	if err != nil {
		return nil, err
	}
	return ep, nil
}

func (s *SQLiteStore) GetEndpointBySlug(ctx context.Context, slug string) (*Endpoint, error) {
	return s.scanEndpoint(s.db.QueryRowContext(ctx, `
		SELECT id, slug, session_id, created_at FROM endpoints WHERE slug = ?
	`, slug))
}

func (s *SQLiteStore) GetEndpointByID(ctx context.Context, id string) (*Endpoint, error) {
	return s.scanEndpoint(s.db.QueryRowContext(ctx, `
		SELECT id, slug, session_id, created_at FROM endpoints WHERE id = ?
	`, id))
}

func (s *SQLiteStore) scanEndpoint(row *sql.Row) (*Endpoint, error) {
	var ep Endpoint
	err := row.Scan(&ep.ID, &ep.Slug, &ep.SessionID, &ep.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ep, nil
}

func (s *SQLiteStore) ListEndpoints(ctx context.Context, sessionID string) ([]*EndpointWithCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id, e.slug, e.session_id, e.created_at, COUNT(r.id)
		FROM endpoints e
		LEFT JOIN requests r ON r.endpoint_id = e.id
		WHERE e.session_id = ?
		GROUP BY e.id, e.slug, e.session_id, e.created_at
		ORDER BY e.created_at DESC, e.id DESC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*EndpointWithCount
	for rows.Next() {
		var e EndpointWithCount
		if err := rows.Scan(&e.ID, &e.Slug, &e.SessionID, &e.CreatedAt, &e.RequestCount); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteEndpoint(ctx context.Context, id, sessionID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM endpoints WHERE id = ? AND session_id = ?", id, sessionID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) Capture(ctx context.Context, endpointID string, snap *RequestSnapshot) (*CapturedRequest, int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, err
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM requests WHERE endpoint_id = ?", endpointID,
	).Scan(&count); err != nil {
		return nil, 0, err
	}

	evicted := 0
	if count >= s.retention {
		surplus := count - s.retention + 1
		res, err := tx.ExecContext(ctx, `
			DELETE FROM requests WHERE id IN (
				SELECT id FROM requests WHERE endpoint_id = ?
				ORDER BY created_at ASC, id ASC
				LIMIT ?
			)
		`, endpointID, surplus)
		if err != nil {
			return nil, 0, err
		}
		if n, err := res.RowsAffected(); err == nil {
			evicted = int(n)
		}
	}

	rec := &CapturedRequest{
		ID:            newID(),
		EndpointID:    endpointID,
		Method:        snap.Method,
		Pathname:      snap.Pathname,
		IP:            snap.IP,
		StatusCode:    snap.StatusCode,
		ContentType:   snap.ContentType,
		ContentLength: snap.ContentLength,
		QueryParams:   snap.QueryParams,
		Headers:       snap.Headers,
		Body:          snap.Body,
		CreatedAt:     time.Now().UTC(),
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO requests (id, endpoint_id, method, pathname, ip, status_code,
			content_type, content_length, query_params, headers, body, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.EndpointID, rec.Method, rec.Pathname, rec.IP, rec.StatusCode,
		rec.ContentType, rec.ContentLength, rec.QueryParams, rec.Headers, rec.Body, rec.CreatedAt)
	if err != nil {
		return nil, 0, err
	}

	if err := tx.Commit(); err != nil {
		return nil, 0, err
	}
	return rec, evicted, nil
}

func (s *SQLiteStore) ListRequests(ctx context.Context, f RequestFilter, limit int, cursor string) ([]*RequestSummary, string, error) {
	if limit < 1 || limit > MaxPageSize {
		return nil, "", ErrInvalidLimit
	}

	query := `SELECT r.id, r.method, r.pathname, r.created_at FROM requests r`
	var args []any
	switch {
	case f.EndpointID != "":
		query += ` WHERE r.endpoint_id = ?`
		args = append(args, f.EndpointID)
	default:
		query += ` INNER JOIN endpoints e ON r.endpoint_id = e.id WHERE e.session_id = ?`
		args = append(args, f.SessionID)
	}
	if cursor != "" {
		query += ` AND r.id < ?`
		args = append(args, cursor)
	}
	// Fetch one extra row to know whether another page exists.
	query += ` ORDER BY r.id DESC LIMIT ?`
	args = append(args, limit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	var items []*RequestSummary
	for rows.Next() {
		var r RequestSummary
		if err := rows.Scan(&r.ID, &r.Method, &r.Pathname, &r.CreatedAt); err != nil {
			return nil, "", err
		}
		items = append(items, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	next := ""
	if len(items) > limit {
		items = items[:limit]
		next = items[len(items)-1].ID
	}
	return items, next, nil
}

func (s *SQLiteStore) GetRequest(ctx context.Context, id string) (*CapturedRequest, error) {
	var r CapturedRequest
	err := s.db.QueryRowContext(ctx, `
		SELECT id, endpoint_id, method, pathname, ip, status_code,
			content_type, content_length, query_params, headers, body, created_at
		FROM requests WHERE id = ?
	`, id).Scan(&r.ID, &r.EndpointID, &r.Method, &r.Pathname, &r.IP, &r.StatusCode,
		&r.ContentType, &r.ContentLength, &r.QueryParams, &r.Headers, &r.Body, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
