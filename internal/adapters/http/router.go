package httpadapter

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/grantsignal/grantsignal/internal/core/domain"
	"github.com/grantsignal/grantsignal/internal/core/ports"
	"github.com/grantsignal/grantsignal/internal/observability/metrics"
)

type Router struct {
	ingestUC      ports.DocumentIngestor
	docs          ports.DocumentRepository
	notifications ports.NotificationRepository
	httpMetrics   *metrics.HTTPServerMetrics
	service       string
}

func NewRouter(
	ingestUC ports.DocumentIngestor,
	docs ports.DocumentRepository,
	notifications ports.NotificationRepository,
	httpMetrics *metrics.HTTPServerMetrics,
	service string,
) *Router {
	return &Router{
		ingestUC:      ingestUC,
		docs:          docs,
		notifications: notifications,
		httpMetrics:   httpMetrics,
		service:       service,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/documents", rt.uploadDocument)
	mux.HandleFunc("/v1/documents/", rt.getDocumentByID)
	mux.HandleFunc("/v1/notifications", rt.listNotifications)

	var handler http.Handler = mux
	if rt.httpMetrics != nil {
		handler = rt.httpMetrics.Middleware(rt.service, handler)
	}
	return loggingMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	req := ports.UploadRequest{
		OrganizationID: r.FormValue("organization_id"),
		Filename:       fileHeader.Filename,
		MimeType:       fileHeader.Header.Get("Content-Type"),
		DocumentType:   domain.DocumentType(r.FormValue("document_type")),
		GrantID:        r.FormValue("grant_id"),
		SizeBytes:      fileHeader.Size,
	}

	doc, err := rt.ingestUC.Upload(r.Context(), req, file)
	if err != nil {
		writeJSON(w, statusForError(err), map[string]string{"error": err.Error()})
		return
	}

	if rt.httpMetrics != nil {
		rt.httpMetrics.RecordUpload(rt.service, string(doc.Type))
	}
	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) getDocumentByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/documents/")
	organizationID := r.URL.Query().Get("organization_id")
	if id == "" || organizationID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "document id and organization_id are required"})
		return
	}

	doc, err := rt.docs.GetByID(r.Context(), organizationID, id)
	if err != nil {
		writeJSON(w, statusForError(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) listNotifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	organizationID := r.URL.Query().Get("organization_id")
	if organizationID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "organization_id is required"})
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	logs, err := rt.notifications.ListLogs(r.Context(), organizationID, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if logs == nil {
		logs = []domain.NotificationLog{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": logs})
}

func statusForError(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrDocumentNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("write json response: %v", err)
	}
}
