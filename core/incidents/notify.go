package incidents

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"time"

	"incidents-reseau/core/store"
)

// Queue message types, kept identical to the historical consumers.
const (
	MsgCriticalNotification = "critical_incident_notification"
	MsgAnalytics            = "incident_analytics"
	MsgFileProcessing       = "file_processing"
)

// Envelope is the wire wrapper for every outbound queue message.
type Envelope struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	Payload   any    `json:"payload"`
}

type analyticsPayload struct {
	ID        int64  `json:"id"`
	Title     string `json:"titre"`
	Severity  string `json:"severite"`
	CreatedAt string `json:"created_at"`
}

type criticalPayload struct {
	ID          int64  `json:"id"`
	Title       string `json:"titre"`
	Severity    string `json:"severite"`
	Description string `json:"description"`
	OccurredAt  string `json:"date_incident"`
}

type filePayload struct {
	IncidentID  int64            `json:"incident_id"`
	FilesCount  int              `json:"files_count"`
	Attachments []fileAttachment `json:"attachments"`
}

type fileAttachment struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

// EncodeEnvelope serializes an envelope the way the queue consumers expect:
// JSON, then base64 for the transport body.
func EncodeEnvelope(msgType string, payload any) ([]byte, error) {
	env := Envelope{
		Type:      msgType,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	out := make([]byte, base64.StdEncoding.EncodedLen(len(raw)))
	base64.StdEncoding.Encode(out, raw)
	return out, nil
}

// dispatchNotifications emits the post-commit queue messages in a fixed
// order: critical first (Critique only), analytics always, file-processing
// when at least one attachment was stored. Failures are logged and reported
// as false; they never affect the already-committed incident.
func (s *Service) dispatchNotifications(ctx context.Context, inc *store.Incident, stored []store.Attachment) map[string]bool {
	notified := map[string]bool{}

	if inc.Severity == SeverityCritique {
		notified[MsgCriticalNotification] = s.send(ctx, MsgCriticalNotification, criticalPayload{
			ID:          inc.ID,
			Title:       inc.Title,
			Severity:    inc.Severity,
			Description: inc.Description,
			OccurredAt:  inc.OccurredAt.UTC().Format(time.RFC3339),
		})
	}

	notified[MsgAnalytics] = s.send(ctx, MsgAnalytics, analyticsPayload{
		ID:        inc.ID,
		Title:     inc.Title,
		Severity:  inc.Severity,
		CreatedAt: inc.CreatedAt.UTC().Format(time.RFC3339),
	})

	if len(stored) > 0 {
		files := make([]fileAttachment, 0, len(stored))
		for _, att := range stored {
			files = append(files, fileAttachment{Filename: att.OriginalName, Size: att.SizeBytes})
		}
		notified[MsgFileProcessing] = s.send(ctx, MsgFileProcessing, filePayload{
			IncidentID:  inc.ID,
			FilesCount:  len(stored),
			Attachments: files,
		})
	}
	return notified
}

func (s *Service) send(ctx context.Context, msgType string, payload any) bool {
	body, err := EncodeEnvelope(msgType, payload)
	if err != nil {
		s.logger.Errorf("encodage du message %s échoué: %v", msgType, err)
		return false
	}
	ok := s.queue.Send(ctx, body)
	if !ok {
		s.logger.Warnf("message %s non envoyé (queue indisponible ou désactivée)", msgType)
	}
	return ok
}
