package handlers

import (
	"errors"
	"net/http"
	"time"

	"incidents-reseau/config"
	"incidents-reseau/core/incidents"
	"incidents-reseau/core/store"
	"incidents-reseau/core/utils"
)

const formOverheadBytes = 1 << 20

type IncidentsHandler struct {
	cfg    *config.AppConfig
	svc    *incidents.Service
	logger *utils.Logger
}

func NewIncidentsHandler(cfg *config.AppConfig, svc *incidents.Service, logger *utils.Logger) *IncidentsHandler {
	return &IncidentsHandler{cfg: cfg, svc: svc, logger: logger}
}

// Create handles the multipart incident form: fields titre, severite,
// description and repeated fichiers file parts.
func (h *IncidentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	maxFiles := h.cfg.Uploads.MaxFilesPerRequest
	if maxFiles <= 0 {
		maxFiles = 10
	}
	totalLimit := int64(maxFiles)*h.cfg.Uploads.MaxFileSizeBytes() + formOverheadBytes
	r.Body = http.MaxBytesReader(w, r.Body, totalLimit)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "formulaire multipart invalide")
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	req := incidents.CreateRequest{
		Title:       r.FormValue("titre"),
		Severity:    r.FormValue("severite"),
		Description: r.FormValue("description"),
	}
	if raw := r.FormValue("date_incident"); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			req.OccurredAt = ts
		}
	}

	files := r.MultipartForm.File["fichiers"]
	if len(files) > maxFiles {
		writeError(w, http.StatusBadRequest, "trop de fichiers dans la requête")
		return
	}
	var opened []interface{ Close() error }
	defer func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}()
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, "fichier illisible: "+fh.Filename)
			return
		}
		opened = append(opened, f)
		req.Files = append(req.Files, incidents.FileUpload{Name: fh.Filename, Reader: f})
	}

	result, err := h.svc.Create(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *IncidentsHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := store.IncidentFilter{
		Severity: r.URL.Query().Get("severite"),
		Search:   r.URL.Query().Get("q"),
		Limit:    parseIntDefault(r.URL.Query().Get("limit"), 0),
		Offset:   parseIntDefault(r.URL.Query().Get("offset"), 0),
	}
	items, err := h.svc.List(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if items == nil {
		items = []store.Incident{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *IncidentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "incidents")
	if !ok {
		writeError(w, http.StatusBadRequest, "identifiant invalide")
		return
	}
	inc, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

func (h *IncidentsHandler) ListAttachments(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "incidents")
	if !ok {
		writeError(w, http.StatusBadRequest, "identifiant invalide")
		return
	}
	atts, err := h.svc.ListAttachments(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if atts == nil {
		atts = []store.Attachment{}
	}
	writeJSON(w, http.StatusOK, atts)
}

func (h *IncidentsHandler) Download(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "attachments")
	if !ok {
		writeError(w, http.StatusBadRequest, "identifiant invalide")
		return
	}
	loc, err := h.svc.DownloadLocator(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loc)
}

func (h *IncidentsHandler) writeServiceError(w http.ResponseWriter, err error) {
	var vErr *incidents.ValidationError
	var pErr *incidents.PersistenceError
	switch {
	case errors.As(err, &vErr):
		writeError(w, http.StatusBadRequest, vErr.Message)
	case errors.Is(err, incidents.ErrNotFound):
		writeError(w, http.StatusNotFound, "incident ou pièce jointe introuvable")
	case errors.Is(err, incidents.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "stockage des pièces jointes indisponible")
	case errors.As(err, &pErr):
		h.logger.Errorf("persistance: %v", err)
		writeError(w, http.StatusInternalServerError, "erreur interne")
	default:
		h.logger.Errorf("erreur inattendue: %v", err)
		writeError(w, http.StatusInternalServerError, "erreur interne")
	}
}
