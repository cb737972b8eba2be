package handler

import (
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net/http"

	"github.com/itchan-dev/imagehost/internal/api"
	"github.com/itchan-dev/imagehost/internal/errors"
	"github.com/itchan-dev/imagehost/internal/service"
	"github.com/itchan-dev/imagehost/internal/validation"
)

type Config struct {
	// MaxRequestSize caps the whole multipart body.
	MaxRequestSize int64
	// MaxFileSize is only used to render the size error message.
	MaxFileSize int64
}

type Handler struct {
	images service.ImageService
	cfg    Config
}

func New(images service.ImageService, cfg Config) *Handler {
	return &Handler{images: images, cfg: cfg}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}

// WriteInternalError writes the generic failure envelope. The cause is
// logged, never sent.
func WriteInternalError(w http.ResponseWriter, r *http.Request, cause any) {
	slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", cause)
	writeJSON(w, http.StatusInternalServerError, api.Fail(api.InternalError, api.MsgInternal))
}

// writeError maps pipeline and retrieval errors onto the envelope.
// notFound is the message used for errors.ErrNotFound.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error, notFound string) {
	switch {
	case stderrors.Is(err, errors.ErrFileTooLarge):
		msg := "File size exceeds " + validation.FormatSizeMB(h.cfg.MaxFileSize) + "."
		writeJSON(w, http.StatusOK, api.Fail(api.BadRequest, msg, api.InvalidFileExceed))
	case stderrors.Is(err, errors.ErrUnsupportedFormat):
		writeJSON(w, http.StatusOK, api.Fail(api.BadRequest, api.MsgInvalidFormat, api.InvalidFileFormat))
	case stderrors.Is(err, errors.ErrInvalidSize):
		writeJSON(w, http.StatusNotFound, api.Fail(api.BadRequest, api.MsgInvalidSize, api.InvalidSize))
	case stderrors.Is(err, errors.ErrNotFound):
		writeJSON(w, http.StatusNotFound, api.Fail(api.NotFound, notFound))
	case stderrors.Is(err, validation.ErrPayloadTooLarge):
		writeJSON(w, http.StatusRequestEntityTooLarge, api.Fail(api.BadRequest, api.MsgRequestTooLarge))
	case stderrors.Is(err, validation.ErrNoFiles):
		writeJSON(w, http.StatusBadRequest, api.Fail(api.BadRequest, api.MsgNoFiles))
	default:
		WriteInternalError(w, r, err)
	}
}
