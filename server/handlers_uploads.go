package server

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/onnwee/livecast/backend/apperr"
	"github.com/onnwee/livecast/backend/objstore"
	"github.com/onnwee/livecast/backend/telemetry"
)

// multipart framing allowance on top of the file limit
const uploadOverhead = 64 << 10

type uploadResult struct {
	URL         string `json:"url"`
	Kind        string `json:"kind"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

// HandleUpload stores one image from the multipart "file" field and returns its public URL.
func (h *Handlers) HandleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	kind := r.URL.Query().Get("kind")
	if h.uploads == nil {
		writeError(w, r, apperr.Unavailable("uploads"))
		return
	}
	if !objstore.ValidKind(kind) {
		writeError(w, r, apperr.Validation("kind must be avatar, banner or thumbnail"))
		return
	}
	limit := h.cfg.UploadMaxBytes
	r.Body = http.MaxBytesReader(w, r.Body, limit+uploadOverhead)
	if err := r.ParseMultipartForm(limit); err != nil {
		telemetry.IncUpload(kind, "rejected")
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, apperr.Validation("file exceeds %d bytes", limit))
			return
		}
		writeError(w, r, apperr.Validation("invalid multipart body"))
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			slog.Warn("failed to remove multipart temp files", slog.Any("err", err))
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		telemetry.IncUpload(kind, "rejected")
		writeError(w, r, apperr.Validation("file field is required"))
		return
	}
	defer func() {
		if err := file.Close(); err != nil {
			slog.Warn("failed to close upload", slog.Any("err", err))
		}
	}()
	if header.Size > limit {
		telemetry.IncUpload(kind, "rejected")
		writeError(w, r, apperr.Validation("file exceeds %d bytes", limit))
		return
	}

	head := make([]byte, 512)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		writeError(w, r, apperr.Internal("read upload", err))
		return
	}
	contentType, ext, ok := objstore.DetectImage(head[:n])
	if !ok {
		telemetry.IncUpload(kind, "rejected")
		writeError(w, r, apperr.Validation("unsupported file type %s", contentType))
		return
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		writeError(w, r, apperr.Internal("rewind upload", err))
		return
	}

	key := objstore.ObjectKey(kind, header.Filename, ext)
	url, err := h.uploads.Put(ctx, key, contentType, file)
	if err != nil {
		telemetry.IncUpload(kind, "error")
		writeError(w, r, apperr.External("object storage", err))
		return
	}
	telemetry.IncUpload(kind, "ok")
	telemetry.LoggerWithCorr(ctx).Info("upload stored", slog.String("kind", kind), slog.String("key", key), slog.String("uploader", caller(r)))
	writeJSON(w, http.StatusCreated, uploadResult{URL: url, Kind: kind, ContentType: contentType, Size: header.Size})
}

// HandleServeUpload serves objects held by the in-process store used in development.
func (h *Handlers) HandleServeUpload(w http.ResponseWriter, r *http.Request) {
	mem, ok := h.uploads.(*objstore.Memory)
	if !ok {
		http.NotFound(w, r)
		return
	}
	data, contentType, ok := mem.Get(chi.URLParam(r, "*"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	_, _ = w.Write(data)
}
