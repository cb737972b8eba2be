package handler

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/itchan-dev/imagehost/internal/api"
	"github.com/itchan-dev/imagehost/internal/validation"
)

const immutableCache = "public, max-age=31536000, immutable"

func (h *Handler) UploadImages(w http.ResponseWriter, r *http.Request) {
	if err := validation.ValidateAndParseMultipart(r, w, h.cfg.MaxRequestSize); err != nil {
		h.writeError(w, r, err, "")
		return
	}
	defer r.MultipartForm.RemoveAll()

	files, cleanup, err := validation.OpenUploadedFiles(r.MultipartForm)
	defer cleanup()
	if err != nil {
		h.writeError(w, r, err, "")
		return
	}

	result, err := h.images.Upload(r.Context(), files)
	if err != nil {
		h.writeError(w, r, err, "")
		return
	}

	uploaded := make([]api.UploadedImage, len(result.IDs))
	for i, id := range result.IDs {
		uploaded[i] = api.UploadedImage{ID: id.String()}
	}
	writeJSON(w, http.StatusOK, api.OK(api.MsgUploaded, uploaded))
}

func (h *Handler) DownloadImage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	size := chi.URLParam(r, "size")

	stream, err := h.images.Download(r.Context(), id, size)
	if err != nil {
		h.writeError(w, r, err, api.MsgImageNotFound)
		return
	}
	defer stream.Reader.Close()

	header := w.Header()
	header.Set("ETag", stream.ETag)
	header.Set("Cache-Control", immutableCache)
	if etagMatches(r.Header.Values("If-None-Match"), stream.ETag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	header.Set("Content-Type", stream.ContentType)
	header.Set("Content-Length", strconv.FormatInt(stream.Size, 10))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, stream.Reader); err != nil {
		slog.Warn("failed to stream image", "id", id, "size", size, "error", err)
	}
}

func (h *Handler) GetMetadata(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	doc, err := h.images.Metadata(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err, api.MsgMetadataNotFound)
		return
	}
	writeJSON(w, http.StatusOK, api.OK(api.MsgMetadataFound, doc))
}

// etagMatches applies the weak comparison If-None-Match calls for. Each
// header value may hold a comma separated list or "*".
func etagMatches(values []string, etag string) bool {
	etag = strings.TrimPrefix(etag, "W/")
	for _, value := range values {
		for _, candidate := range strings.Split(value, ",") {
			candidate = strings.TrimSpace(candidate)
			if candidate == "*" || (candidate != "" && strings.TrimPrefix(candidate, "W/") == etag) {
				return true
			}
		}
	}
	return false
}
