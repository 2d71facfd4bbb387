package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Incident struct {
	ID               int64     `json:"id"`
	Title            string    `json:"titre"`
	Severity         string    `json:"severite"`
	Description      string    `json:"description,omitempty"`
	OccurredAt       time.Time `json:"date_incident"`
	HasAttachments   bool      `json:"has_attachments"`
	AttachmentsCount int       `json:"attachments_count"`
	CreatedAt        time.Time `json:"created_at"`
}

type Attachment struct {
	ID           int64     `json:"id"`
	IncidentID   int64     `json:"incident_id"`
	StoredName   string    `json:"stored_name"`
	OriginalName string    `json:"original_name"`
	Location     string    `json:"location"`
	SizeBytes    int64     `json:"size_bytes"`
	MimeType     string    `json:"mime_type"`
	UploadedAt   time.Time `json:"uploaded_at"`
}

type IncidentFilter struct {
	Severity string
	Search   string
	Limit    int
	Offset   int
}

// CountDrift reports an incident whose stored attachments_count disagrees
// with the number of attachment rows.
type CountDrift struct {
	IncidentID int64
	Stored     int
	Actual     int
}

type IncidentsStore interface {
	// BeginCreate opens the transaction an incident and its attachments are
	// committed in. The returned CreateTx must be finished with Commit or
	// Rollback.
	BeginCreate(ctx context.Context) (CreateTx, error)

	GetIncident(ctx context.Context, id int64) (*Incident, error)
	ListIncidents(ctx context.Context, filter IncidentFilter) ([]Incident, error)
	CountIncidents(ctx context.Context) (int64, error)

	GetAttachment(ctx context.Context, id int64) (*Attachment, error)
	ListAttachments(ctx context.Context, incidentID int64) ([]Attachment, error)
	CountAttachments(ctx context.Context) (int64, error)
	DeleteAttachment(ctx context.Context, id int64) (bool, error)

	RecountAttachments(ctx context.Context) ([]CountDrift, error)
	SeedDemoData(ctx context.Context) (int, error)
}

// CreateTx scopes the inserts of one incident-creation request.
type CreateTx interface {
	InsertIncident(ctx context.Context, inc *Incident) (int64, error)
	InsertAttachment(ctx context.Context, att *Attachment) (int64, error)
	// Finalize writes the derived attachment fields on the incident row.
	Finalize(ctx context.Context, incidentID int64, count int) error
	Commit() error
	Rollback() error
}

type incidentsStore struct {
	db *sql.DB
	pg bool
}

func NewIncidentsStore(db *sql.DB, postgres bool) IncidentsStore {
	return &incidentsStore{db: db, pg: postgres}
}

// rebind converts ?-placeholders to $n for the postgres driver.
func (s *incidentsStore) rebind(q string) string {
	if !s.pg {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type createTx struct {
	s  *incidentsStore
	tx *sql.Tx
}

func (s *incidentsStore) BeginCreate(ctx context.Context) (CreateTx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &createTx{s: s, tx: tx}, nil
}

func (c *createTx) InsertIncident(ctx context.Context, inc *Incident) (int64, error) {
	now := time.Now().UTC()
	if inc.OccurredAt.IsZero() {
		inc.OccurredAt = now
	}
	inc.CreatedAt = now
	q := `INSERT INTO incidents(title, severity, description, occurred_at, has_attachments, attachments_count, created_at)
		VALUES(?,?,?,?,?,?,?)`
	args := []any{inc.Title, inc.Severity, inc.Description, inc.OccurredAt, false, 0, inc.CreatedAt}
	id, err := c.insertReturningID(ctx, q, args)
	if err != nil {
		return 0, err
	}
	inc.ID = id
	return id, nil
}

func (c *createTx) InsertAttachment(ctx context.Context, att *Attachment) (int64, error) {
	if att.IncidentID == 0 {
		return 0, fmt.Errorf("attachment without incident id")
	}
	if att.UploadedAt.IsZero() {
		att.UploadedAt = time.Now().UTC()
	}
	q := `INSERT INTO incident_attachments(incident_id, stored_name, original_name, location, size_bytes, mime_type, uploaded_at)
		VALUES(?,?,?,?,?,?,?)`
	args := []any{att.IncidentID, att.StoredName, att.OriginalName, att.Location, att.SizeBytes, att.MimeType, att.UploadedAt}
	id, err := c.insertReturningID(ctx, q, args)
	if err != nil {
		return 0, err
	}
	att.ID = id
	return id, nil
}

func (c *createTx) insertReturningID(ctx context.Context, q string, args []any) (int64, error) {
	if c.s.pg {
		var id int64
		if err := c.tx.QueryRowContext(ctx, c.s.rebind(q+` RETURNING id`), args...).Scan(&id); err != nil {
			return 0, err
		}
		return id, nil
	}
	res, err := c.tx.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (c *createTx) Finalize(ctx context.Context, incidentID int64, count int) error {
	_, err := c.tx.ExecContext(ctx, c.s.rebind(`UPDATE incidents SET attachments_count=?, has_attachments=? WHERE id=?`),
		count, count > 0, incidentID)
	return err
}

func (c *createTx) Commit() error   { return c.tx.Commit() }
func (c *createTx) Rollback() error { return c.tx.Rollback() }

const incidentColumns = `id, title, severity, description, occurred_at, has_attachments, attachments_count, created_at`

func (s *incidentsStore) GetIncident(ctx context.Context, id int64) (*Incident, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+incidentColumns+` FROM incidents WHERE id=?`), id)
	return scanIncident(row)
}

func (s *incidentsStore) ListIncidents(ctx context.Context, filter IncidentFilter) ([]Incident, error) {
	var clauses []string
	var args []any
	if filter.Severity != "" {
		clauses = append(clauses, "severity=?")
		args = append(args, filter.Severity)
	}
	if filter.Search != "" {
		clauses = append(clauses, "(title LIKE ? OR description LIKE ?)")
		q := "%" + filter.Search + "%"
		args = append(args, q, q)
	}
	query := `SELECT ` + incidentColumns + ` FROM incidents`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY occurred_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Incident
	for rows.Next() {
		var inc Incident
		if err := rows.Scan(&inc.ID, &inc.Title, &inc.Severity, &inc.Description, &inc.OccurredAt, &inc.HasAttachments, &inc.AttachmentsCount, &inc.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, inc)
	}
	return out, rows.Err()
}

func (s *incidentsStore) CountIncidents(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM incidents`).Scan(&n)
	return n, err
}

const attachmentColumns = `id, incident_id, stored_name, original_name, location, size_bytes, mime_type, uploaded_at`

func (s *incidentsStore) GetAttachment(ctx context.Context, id int64) (*Attachment, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+attachmentColumns+` FROM incident_attachments WHERE id=?`), id)
	att := &Attachment{}
	err := row.Scan(&att.ID, &att.IncidentID, &att.StoredName, &att.OriginalName, &att.Location, &att.SizeBytes, &att.MimeType, &att.UploadedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return att, nil
}

func (s *incidentsStore) ListAttachments(ctx context.Context, incidentID int64) ([]Attachment, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT `+attachmentColumns+` FROM incident_attachments WHERE incident_id=? ORDER BY id`), incidentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Attachment
	for rows.Next() {
		var att Attachment
		if err := rows.Scan(&att.ID, &att.IncidentID, &att.StoredName, &att.OriginalName, &att.Location, &att.SizeBytes, &att.MimeType, &att.UploadedAt); err != nil {
			return nil, err
		}
		out = append(out, att)
	}
	return out, rows.Err()
}

func (s *incidentsStore) CountAttachments(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM incident_attachments`).Scan(&n)
	return n, err
}

func (s *incidentsStore) DeleteAttachment(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM incident_attachments WHERE id=?`), id)
	if err != nil {
		return false, err
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// RecountAttachments repairs attachments_count and has_attachments from an
// aggregate over the attachment rows and reports every incident that had
// drifted.
func (s *incidentsStore) RecountAttachments(ctx context.Context) ([]CountDrift, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.id, i.attachments_count, COUNT(a.id)
		FROM incidents i
		LEFT JOIN incident_attachments a ON a.incident_id = i.id
		GROUP BY i.id, i.attachments_count
		HAVING i.attachments_count != COUNT(a.id)`)
	if err != nil {
		return nil, err
	}
	var drifts []CountDrift
	for rows.Next() {
		var d CountDrift
		if err := rows.Scan(&d.IncidentID, &d.Stored, &d.Actual); err != nil {
			rows.Close()
			return nil, err
		}
		drifts = append(drifts, d)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	for _, d := range drifts {
		if _, err := s.db.ExecContext(ctx, s.rebind(`UPDATE incidents SET attachments_count=?, has_attachments=? WHERE id=?`),
			d.Actual, d.Actual > 0, d.IncidentID); err != nil {
			return drifts, err
		}
	}
	return drifts, nil
}

// SeedDemoData inserts the historical demo incidents when the table is
// empty. Returns the number of rows added.
func (s *incidentsStore) SeedDemoData(ctx context.Context) (int, error) {
	count, err := s.CountIncidents(ctx)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		return 0, nil
	}
	demo := []Incident{
		{Title: "Panne serveur principal", Severity: "Critique", OccurredAt: time.Date(2025, 9, 20, 14, 30, 0, 0, time.UTC)},
		{Title: "Latence élevée réseau", Severity: "Moyenne", OccurredAt: time.Date(2025, 9, 21, 9, 15, 0, 0, time.UTC)},
		{Title: "Connexion intermittente", Severity: "Faible", OccurredAt: time.Date(2025, 9, 22, 16, 45, 0, 0, time.UTC)},
		{Title: "Échec authentification", Severity: "Élevée", OccurredAt: time.Date(2025, 9, 23, 8, 20, 0, 0, time.UTC)},
		{Title: "Surcharge bande passante", Severity: "Moyenne", OccurredAt: time.Date(2025, 9, 23, 11, 10, 0, 0, time.UTC)},
	}
	now := time.Now().UTC()
	for _, inc := range demo {
		if _, err := s.db.ExecContext(ctx, s.rebind(`
			INSERT INTO incidents(title, severity, description, occurred_at, has_attachments, attachments_count, created_at)
			VALUES(?,?,?,?,?,?,?)`),
			inc.Title, inc.Severity, "", inc.OccurredAt, false, 0, now); err != nil {
			return 0, err
		}
	}
	return len(demo), nil
}

func scanIncident(row *sql.Row) (*Incident, error) {
	inc := &Incident{}
	err := row.Scan(&inc.ID, &inc.Title, &inc.Severity, &inc.Description, &inc.OccurredAt, &inc.HasAttachments, &inc.AttachmentsCount, &inc.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return inc, nil
}
