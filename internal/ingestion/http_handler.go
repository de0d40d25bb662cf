package ingestion

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/rpattn/drillops/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// multipartOverhead is the slack allowed on top of the file limit for the
// multipart envelope.
const multipartOverhead = 1 << 20

// Handler exposes the import pipeline over HTTP.
type Handler struct {
	service *Service
	log     logrus.FieldLogger
	mux     *http.ServeMux
}

// NewHTTPHandler registers the import routes.
func NewHTTPHandler(service *Service, log logrus.FieldLogger) http.Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	h := &Handler{service: service, log: log, mux: http.NewServeMux()}
	h.mux.HandleFunc("POST /imports", h.upload)
	h.mux.HandleFunc("GET /imports", h.listBatches)
	h.mux.HandleFunc("GET /imports/logs", h.importLogs)
	h.mux.HandleFunc("GET /imports/{id}/validation", h.validate)
	h.mux.HandleFunc("POST /imports/{id}/commit", h.commit)
	h.mux.HandleFunc("DELETE /imports/{id}", h.discard)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.service.opts.MaxFileBytes+multipartOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, fmt.Errorf("%w: limit is %d bytes", ErrFileTooLarge, h.service.opts.MaxFileBytes))
			return
		}
		writeMessage(w, http.StatusBadRequest, fmt.Sprintf("invalid form data: %v", err))
		return
	}
	if r.MultipartForm != nil {
		defer func() { _ = r.MultipartForm.RemoveAll() }()
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeMessage(w, http.StatusBadRequest, fmt.Sprintf("file required: %v", err))
		return
	}
	defer file.Close()

	result, err := h.service.Upload(r.Context(), UploadRequest{FileName: header.Filename, Data: file})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *Handler) listBatches(w http.ResponseWriter, r *http.Request) {
	batches, err := h.service.ListBatches(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, batches)
}

func (h *Handler) importLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := repository.ImportLogFilter{FileName: query.Get("file")}
	if raw := query.Get("batch"); raw != "" {
		batchID, err := uuid.Parse(raw)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, fmt.Sprintf("invalid batch id: %v", err))
			return
		}
		filter.BatchID = &batchID
	}
	for name, target := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		raw := query.Get(name)
		if raw == "" {
			continue
		}
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			writeMessage(w, http.StatusBadRequest, fmt.Sprintf("invalid %s: %q", name, raw))
			return
		}
		*target = value
	}

	logs, err := h.service.ImportLogs(r.Context(), filter)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

func (h *Handler) validate(w http.ResponseWriter, r *http.Request) {
	batchID, ok := batchIDFromPath(w, r)
	if !ok {
		return
	}
	report, err := h.service.Validate(r.Context(), batchID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) commit(w http.ResponseWriter, r *http.Request) {
	batchID, ok := batchIDFromPath(w, r)
	if !ok {
		return
	}
	result, err := h.service.Commit(r.Context(), batchID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	status := http.StatusOK
	if !result.Success {
		status = http.StatusConflict
	}
	writeJSON(w, status, result)
}

func (h *Handler) discard(w http.ResponseWriter, r *http.Request) {
	batchID, ok := batchIDFromPath(w, r)
	if !ok {
		return
	}
	removed, err := h.service.Discard(r.Context(), batchID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"batchId": batchID, "removed": removed})
}

func batchIDFromPath(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	batchID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, fmt.Sprintf("invalid batch id: %v", err))
		return uuid.Nil, false
	}
	return batchID, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrFileTooLarge):
		writeMessage(w, http.StatusRequestEntityTooLarge, err.Error())
	case IsFileError(err):
		writeMessage(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrBatchNotFound):
		writeMessage(w, http.StatusNotFound, err.Error())
	default:
		h.log.WithError(err).Error("import request failed")
		writeMessage(w, http.StatusInternalServerError, "internal error")
	}
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
