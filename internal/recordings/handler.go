package recordings

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"bbb-recordings-gateway/internal/storage"
)

// Handler exposes the recording operations over HTTP. The host front end
// authenticates users itself and asserts the caller's identity and roles
// through request headers.
type Handler struct {
	service *Service
	log     *slog.Logger
}

// NewHandler returns a Handler backed by the given service.
func NewHandler(service *Service, log *slog.Logger) *Handler {
	return &Handler{service: service, log: log}
}

// Routes mounts the recording endpoints on a chi router.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/activities/{activityID}/recordings/table", h.handleTable)
	r.Post("/activities/{activityID}/recordings/{recordID}/import", h.handleImport)
	r.Post("/recordings/{recordID}/publish", h.handlePublish)
	r.Post("/recordings/{recordID}/protect", h.handleProtect)
	r.Post("/recordings/{recordID}/edit", h.handleEdit)
	r.Delete("/recordings/{recordID}", h.handleDelete)
}

// CallerFromRequest reads the caller identity the front end asserts via
// headers: X-User-ID, X-User-Roles (comma separated), X-User-Groups, and
// X-Group for an active group filter.
func CallerFromRequest(r *http.Request) Caller {
	caller := Caller{
		UserID: r.Header.Get("X-User-ID"),
		Group:  r.Header.Get("X-Group"),
	}
	for _, role := range splitList(r.Header.Get("X-User-Roles")) {
		switch role {
		case "admin":
			caller.Admin = true
		case "moderator":
			caller.Moderator = true
		case "manager":
			caller.Manager = true
		}
	}
	caller.Groups = splitList(r.Header.Get("X-User-Groups"))
	return caller
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// tableEnvelope is the response shape the table widget expects.
type tableEnvelope struct {
	Status    bool       `json:"status"`
	TableData *TableData `json:"tabledata"`
	Warnings  []string   `json:"warnings"`
}

func (h *Handler) handleTable(w http.ResponseWriter, r *http.Request) {
	activityID, err := strconv.ParseInt(chi.URLParam(r, "activityID"), 10, 64)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid activity id")
		return
	}

	data, err := h.service.TableData(r.Context(), activityID, CallerFromRequest(r))
	if err != nil {
		h.serviceError(w, err, "table data")
		return
	}
	warnings := data.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	h.respondJSON(w, http.StatusOK, tableEnvelope{Status: true, TableData: data, Warnings: warnings})
}

func (h *Handler) handlePublish(w http.ResponseWriter, r *http.Request) {
	caller, recordID, ok := h.manageRequest(w, r)
	if !ok {
		return
	}
	var body struct {
		Publish bool `json:"publish"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.service.Publish(r.Context(), recordID, body.Publish); err != nil {
		h.remoteError(w, err, "publish", caller)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleProtect(w http.ResponseWriter, r *http.Request) {
	caller, recordID, ok := h.manageRequest(w, r)
	if !ok {
		return
	}
	var body struct {
		Protect bool `json:"protect"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.service.Protect(r.Context(), recordID, body.Protect); err != nil {
		h.remoteError(w, err, "protect", caller)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleEdit(w http.ResponseWriter, r *http.Request) {
	caller, recordID, ok := h.manageRequest(w, r)
	if !ok {
		return
	}
	var body struct {
		Target string `json:"target"`
		Value  string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.service.Edit(r.Context(), recordID, body.Target, body.Value); err != nil {
		if strings.Contains(err.Error(), "unknown edit target") {
			h.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.remoteError(w, err, "edit", caller)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	caller, recordID, ok := h.manageRequest(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), recordID); err != nil {
		h.remoteError(w, err, "delete", caller)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	caller := CallerFromRequest(r)
	if !caller.CanManage() {
		h.respondError(w, http.StatusForbidden, "recording management not permitted")
		return
	}
	activityID, err := strconv.ParseInt(chi.URLParam(r, "activityID"), 10, 64)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid activity id")
		return
	}
	recordID := chi.URLParam(r, "recordID")

	row, err := h.service.Import(r.Context(), activityID, recordID)
	if err != nil {
		h.serviceError(w, err, "import")
		return
	}
	h.respondJSON(w, http.StatusCreated, map[string]string{
		"status":    "ok",
		"reference": row.ID,
	})
}

// manageRequest handles the shared prologue of mutation endpoints: the
// caller must be a manager, and the record id must be present.
func (h *Handler) manageRequest(w http.ResponseWriter, r *http.Request) (Caller, string, bool) {
	caller := CallerFromRequest(r)
	if !caller.CanManage() {
		h.respondError(w, http.StatusForbidden, "recording management not permitted")
		return caller, "", false
	}
	recordID := chi.URLParam(r, "recordID")
	if recordID == "" {
		h.respondError(w, http.StatusBadRequest, "missing record id")
		return caller, "", false
	}
	return caller, recordID, true
}

func (h *Handler) serviceError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		h.respondError(w, http.StatusNotFound, "activity not found")
	case errors.Is(err, ErrRecordingNotFound):
		h.respondError(w, http.StatusNotFound, "recording not found")
	default:
		h.log.Error(op+" failed", slog.String("error", err.Error()))
		h.respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// remoteError maps a failed remote mutation to 502; the gateway did its
// part, the upstream server refused.
func (h *Handler) remoteError(w http.ResponseWriter, err error, op string, caller Caller) {
	h.log.Warn("remote "+op+" failed",
		slog.String("user", caller.UserID),
		slog.String("error", err.Error()))
	h.respondError(w, http.StatusBadGateway, err.Error())
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Error("response encode failed", slog.String("error", err.Error()))
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
