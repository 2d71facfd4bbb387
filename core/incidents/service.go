package incidents

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"incidents-reseau/config"
	"incidents-reseau/core/blob"
	"incidents-reseau/core/queue"
	"incidents-reseau/core/store"
	"incidents-reseau/core/utils"
)

// Known severity values. The column itself accepts free text; these only
// drive the critical-notification dispatch and the form defaults.
const (
	SeverityCritique = "Critique"
	SeverityElevee   = "Élevée"
	SeverityMoyenne  = "Moyenne"
	SeverityFaible   = "Faible"
	SeverityInfo     = "Info"
)

// FileUpload is one attachment stream from the create request.
type FileUpload struct {
	Name   string
	Reader io.Reader
}

type CreateRequest struct {
	Title       string
	Severity    string
	Description string
	OccurredAt  time.Time
	Files       []FileUpload
}

// RejectedFile is a per-file warning; it never fails the incident creation.
type RejectedFile struct {
	Name   string `json:"fichier"`
	Reason string `json:"raison"`
}

type CreateResult struct {
	Incident *store.Incident   `json:"incident"`
	Stored   []store.Attachment `json:"pieces_jointes"`
	Rejected []RejectedFile    `json:"fichiers_rejetes,omitempty"`
	Notified map[string]bool   `json:"notifications"`
}

// Locator points at stored attachment bytes: a signed URL with its expiry,
// or a plain path for local storage.
type Locator struct {
	URL       string     `json:"url,omitempty"`
	Path      string     `json:"path,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Service owns the incident and attachment persistence workflow.
type Service struct {
	cfg    *config.AppConfig
	store  store.IncidentsStore
	blobs  blob.Store
	queue  queue.Queue
	logger *utils.Logger

	allowedExts map[string]struct{}
	maxBytes    int64
}

func NewService(cfg *config.AppConfig, st store.IncidentsStore, blobs blob.Store, q queue.Queue, logger *utils.Logger) *Service {
	if q == nil {
		q = queue.Disabled{}
	}
	return &Service{
		cfg:         cfg,
		store:       st,
		blobs:       blobs,
		queue:       q,
		logger:      logger,
		allowedExts: cfg.Uploads.NormalizedExtensions(),
		maxBytes:    cfg.Uploads.MaxFileSizeBytes(),
	}
}

// Create validates and persists an incident and its attachments in one
// transaction, then emits the post-commit queue notifications. Per-file
// failures turn into Rejected entries and never abort the incident.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, &ValidationError{Field: "titre", Message: "le titre de l'incident est obligatoire"}
	}
	severity := strings.TrimSpace(req.Severity)
	if severity == "" {
		severity = SeverityMoyenne
	}

	tx, err := s.store.BeginCreate(ctx)
	if err != nil {
		return nil, &PersistenceError{Err: err}
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	inc := &store.Incident{
		Title:       title,
		Severity:    severity,
		Description: strings.TrimSpace(req.Description),
		OccurredAt:  req.OccurredAt,
	}
	incidentID, err := tx.InsertIncident(ctx, inc)
	if err != nil {
		return nil, &PersistenceError{Err: err}
	}

	var stored []store.Attachment
	var rejected []RejectedFile
	for _, f := range req.Files {
		att, reject := s.storeFile(ctx, tx, incidentID, f)
		if reject != nil {
			rejected = append(rejected, *reject)
			continue
		}
		stored = append(stored, *att)
	}

	if err := tx.Finalize(ctx, incidentID, len(stored)); err != nil {
		return nil, &PersistenceError{Err: err}
	}
	if err := tx.Commit(); err != nil {
		return nil, &PersistenceError{Err: err}
	}
	committed = true
	inc.AttachmentsCount = len(stored)
	inc.HasAttachments = len(stored) > 0

	notified := s.dispatchNotifications(ctx, inc, stored)
	return &CreateResult{Incident: inc, Stored: stored, Rejected: rejected, Notified: notified}, nil
}

// storeFile validates one upload, writes it to the blob destination and
// records it inside the transaction. A non-nil RejectedFile means skip.
func (s *Service) storeFile(ctx context.Context, tx store.CreateTx, incidentID int64, f FileUpload) (*store.Attachment, *RejectedFile) {
	name := SanitizeFilename(f.Name)
	if name == "" {
		return nil, &RejectedFile{Name: f.Name, Reason: "nom de fichier invalide"}
	}
	if !ExtensionAllowed(name, s.allowedExts) {
		return nil, &RejectedFile{Name: name, Reason: "type de fichier non autorisé"}
	}

	// The size check measures transferred bytes, never a declared header.
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(f.Reader, s.maxBytes+1))
	if err != nil {
		s.logger.Warnf("incident %d: lecture de %s échouée: %v", incidentID, name, err)
		return nil, &RejectedFile{Name: name, Reason: "lecture du fichier échouée"}
	}
	if n > s.maxBytes {
		return nil, &RejectedFile{Name: name, Reason: fmt.Sprintf("fichier trop volumineux (max %d Mo)", s.maxBytes>>20)}
	}

	now := time.Now().UTC()
	storedName := StoredName(incidentID, name, now)
	mimeType := GuessMimeType(name)
	metadata := map[string]string{
		"incident_id":       fmt.Sprintf("%d", incidentID),
		"original_filename": name,
		"upload_date":       now.Format(time.RFC3339),
		"file_size":         fmt.Sprintf("%d", n),
	}
	location, err := s.blobs.Upload(ctx, storedName, bytes.NewReader(buf.Bytes()), mimeType, metadata)
	if err != nil {
		s.logger.Warnf("incident %d: upload de %s échoué: %v", incidentID, name, err)
		return nil, &RejectedFile{Name: name, Reason: "échec de l'envoi vers le stockage"}
	}

	att := &store.Attachment{
		IncidentID:   incidentID,
		StoredName:   storedName,
		OriginalName: name,
		Location:     location,
		SizeBytes:    n,
		MimeType:     mimeType,
		UploadedAt:   now,
	}
	if _, err := tx.InsertAttachment(ctx, att); err != nil {
		s.logger.Warnf("incident %d: enregistrement de %s échoué: %v", incidentID, name, err)
		return nil, &RejectedFile{Name: name, Reason: "échec de l'enregistrement"}
	}
	return att, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*store.Incident, error) {
	inc, err := s.store.GetIncident(ctx, id)
	if err != nil {
		return nil, &PersistenceError{Err: err}
	}
	if inc == nil {
		return nil, ErrNotFound
	}
	return inc, nil
}

func (s *Service) List(ctx context.Context, filter store.IncidentFilter) ([]store.Incident, error) {
	out, err := s.store.ListIncidents(ctx, filter)
	if err != nil {
		return nil, &PersistenceError{Err: err}
	}
	return out, nil
}

func (s *Service) ListAttachments(ctx context.Context, incidentID int64) ([]store.Attachment, error) {
	inc, err := s.store.GetIncident(ctx, incidentID)
	if err != nil {
		return nil, &PersistenceError{Err: err}
	}
	if inc == nil {
		return nil, ErrNotFound
	}
	atts, err := s.store.ListAttachments(ctx, incidentID)
	if err != nil {
		return nil, &PersistenceError{Err: err}
	}
	return atts, nil
}

// DownloadLocator resolves an attachment to a retrievable locator: a
// short-lived signed URL when the backend supports it, the verified stored
// location otherwise.
func (s *Service) DownloadLocator(ctx context.Context, attachmentID int64) (*Locator, error) {
	att, err := s.store.GetAttachment(ctx, attachmentID)
	if err != nil {
		return nil, &PersistenceError{Err: err}
	}
	if att == nil {
		return nil, ErrNotFound
	}
	ttl := s.cfg.Blob.URLTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	url, err := s.blobs.SignedURL(ctx, att.StoredName, ttl)
	if err == nil {
		expires := time.Now().UTC().Add(ttl)
		return &Locator{URL: url, ExpiresAt: &expires}, nil
	}
	if !errors.Is(err, blob.ErrNoSignedURLs) {
		s.logger.Errorf("signature d'URL pour %s échouée: %v", att.StoredName, err)
		return nil, ErrUnavailable
	}
	ok, err := s.blobs.Exists(ctx, att.StoredName)
	if err != nil || !ok {
		return nil, ErrUnavailable
	}
	return &Locator{Path: att.Location}, nil
}

// DeleteAttachment removes the row and the stored bytes. Not exposed over
// HTTP; incident deletion stays out of scope.
func (s *Service) DeleteAttachment(ctx context.Context, attachmentID int64) error {
	att, err := s.store.GetAttachment(ctx, attachmentID)
	if err != nil {
		return &PersistenceError{Err: err}
	}
	if att == nil {
		return ErrNotFound
	}
	if _, err := s.store.DeleteAttachment(ctx, attachmentID); err != nil {
		return &PersistenceError{Err: err}
	}
	if _, err := s.blobs.Delete(ctx, att.StoredName); err != nil {
		s.logger.Warnf("suppression du blob %s échouée: %v", att.StoredName, err)
	}
	return nil
}
