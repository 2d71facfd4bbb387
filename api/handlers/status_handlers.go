package handlers

import (
	"net/http"

	"incidents-reseau/config"
	"incidents-reseau/core/blob"
	"incidents-reseau/core/queue"
	"incidents-reseau/core/store"
)

// StatusHandler reports connectivity of the database, the blob backend and
// the queue. It replaces the standalone diagnostic scripts of the earlier
// deployments.
type StatusHandler struct {
	cfg   *config.AppConfig
	store store.IncidentsStore
	blobs blob.Store
	queue queue.Queue
}

func NewStatusHandler(cfg *config.AppConfig, st store.IncidentsStore, blobs blob.Store, q queue.Queue) *StatusHandler {
	return &StatusHandler{cfg: cfg, store: st, blobs: blobs, queue: q}
}

type statusReport struct {
	Status   string         `json:"status"`
	Database databaseStatus `json:"base_donnees"`
	Storage  storageStatus  `json:"stockage"`
	Queue    queueStatus    `json:"queue"`
}

type databaseStatus struct {
	Reachable   bool   `json:"accessible"`
	Incidents   int64  `json:"nombre_incidents"`
	Attachments int64  `json:"nombre_pieces_jointes"`
	Error       string `json:"erreur,omitempty"`
}

type storageStatus struct {
	Kind      string `json:"type"`
	Reachable bool   `json:"accessible"`
	Error     string `json:"erreur,omitempty"`
}

type queueStatus struct {
	Enabled   bool   `json:"active"`
	Name      string `json:"nom"`
	Reachable bool   `json:"accessible"`
}

func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	report := statusReport{Status: "ok"}

	incCount, err := h.store.CountIncidents(ctx)
	if err != nil {
		report.Status = "degraded"
		report.Database.Error = err.Error()
	} else {
		report.Database.Reachable = true
		report.Database.Incidents = incCount
		if attCount, err := h.store.CountAttachments(ctx); err == nil {
			report.Database.Attachments = attCount
		}
	}

	report.Storage.Kind = h.blobs.Kind()
	// A miss on a probe name still proves the backend answers.
	if _, err := h.blobs.Exists(ctx, "diagnostic-probe"); err != nil {
		report.Status = "degraded"
		report.Storage.Error = err.Error()
	} else {
		report.Storage.Reachable = true
	}

	report.Queue.Enabled = h.cfg.Queue.Enabled
	report.Queue.Name = h.cfg.Queue.Name
	if h.cfg.Queue.Enabled {
		report.Queue.Reachable = h.queue.Ping(ctx)
		if !report.Queue.Reachable {
			report.Status = "degraded"
		}
	}

	status := http.StatusOK
	if !report.Database.Reachable {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}
