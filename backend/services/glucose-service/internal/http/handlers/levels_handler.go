package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"glucoseapi/backend/services/glucose-service/internal/models"
	"glucoseapi/backend/services/glucose-service/internal/service"
)

// LevelsReader is the read side of the glucose service.
type LevelsReader interface {
	List(ctx context.Context, filter models.ListFilter) ([]models.GlucoseRecord, error)
	GetByID(ctx context.Context, id int64) (*models.GlucoseRecord, error)
}

// LevelsHandler serves the /api/v1/levels endpoints.
type LevelsHandler struct {
	svc    LevelsReader
	logger *zap.Logger
}

// NewLevelsHandler builds handler set.
func NewLevelsHandler(svc LevelsReader, logger *zap.Logger) *LevelsHandler {
	return &LevelsHandler{
		svc:    svc,
		logger: logger,
	}
}

// HandleList handles GET /api/v1/levels.
func (h *LevelsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	filter, err := parseListFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	records, err := h.svc.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list glucose levels failed", zap.String("user_id", filter.UserID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, msgInternal)
		return
	}
	if records == nil {
		records = []models.GlucoseRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// HandleGet handles GET /api/v1/levels/{id}.
func (h *LevelsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "id must be an integer")
		return
	}

	record, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("Glucose level with ID=%d not found.", id))
			return
		}
		h.logger.Error("get glucose level failed", zap.Int64("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, msgInternal)
		return
	}
	writeJSON(w, http.StatusOK, record)
}
