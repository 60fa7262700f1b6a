package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"glucoseapi/backend/services/glucose-service/internal/http/middleware"
	"glucoseapi/backend/services/glucose-service/internal/ingest"
	"glucoseapi/backend/services/glucose-service/internal/service"
)

const (
	uploadField     = "file"
	multipartMemory = 8 << 20
)

// Ingester stores the records of an uploaded export.
type Ingester interface {
	Ingest(ctx context.Context, filename string, content []byte) (int, error)
}

// UploadHandler serves POST /api/v1/upload-csv.
type UploadHandler struct {
	svc      Ingester
	maxBytes int64
	logger   *zap.Logger
}

// NewUploadHandler builds handler. maxBytes caps the whole request body.
func NewUploadHandler(svc Ingester, maxBytes int64, logger *zap.Logger) *UploadHandler {
	return &UploadHandler{
		svc:      svc,
		maxBytes: maxBytes,
		logger:   logger,
	}
}

func (h *UploadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Upload exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			writeError(w, http.StatusUnprocessableEntity, "Field 'file' is required")
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		h.logger.Error("read uploaded file failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, msgInternal)
		return
	}

	uploader, _ := middleware.SubjectFromContext(r.Context())
	count, err := h.svc.Ingest(r.Context(), header.Filename, content)
	switch {
	case err == nil:
		h.logger.Info("csv upload accepted",
			zap.String("filename", header.Filename),
			zap.String("uploaded_by", uploader),
			zap.Int("records", count),
		)
		writeStatus(w, fmt.Sprintf("Successfully processed %d records", count))
	case errors.Is(err, ingest.ErrWrongFormat):
		writeError(w, http.StatusBadRequest, "Only CSV files are allowed")
	case service.IsInvalidData(err):
		writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("Invalid CSV data: %v", err))
	default:
		h.logger.Error("upload failed",
			zap.String("filename", header.Filename),
			zap.String("uploaded_by", uploader),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, msgInternal)
	}
}
