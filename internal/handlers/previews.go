package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/atelier-perle/api/internal/platform/auth"
	"github.com/atelier-perle/api/internal/platform/httpx"
)

const maxPreviewUploadSize = 2 << 20 // 2 MiB

// PreviewUploader stores a rendered preview image and returns its public URL.
type PreviewUploader interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) (string, error)
}

// PreviewHandlers accepts preview image uploads for configured pieces.
type PreviewHandlers struct {
	authn       *auth.Authenticator
	uploader    PreviewUploader
	idGenerator func() string
}

// NewPreviewHandlers constructs preview upload handlers.
func NewPreviewHandlers(authn *auth.Authenticator, uploader PreviewUploader, idGenerator func() string) *PreviewHandlers {
	return &PreviewHandlers{authn: authn, uploader: uploader, idGenerator: idGenerator}
}

// Routes registers the preview upload endpoint under the provided router.
func (h *PreviewHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	group := r
	if h.authn != nil {
		group = group.With(h.authn.RequireFirebaseAuth())
	}
	group.Post("/previews", h.uploadPreview)
}

var previewContentTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
}

func (h *PreviewHandlers) uploadPreview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.uploader == nil || h.idGenerator == nil {
		httpx.WriteError(ctx, w, httpx.NewError("previews_unavailable", "preview upload unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	contentType := strings.ToLower(strings.TrimSpace(r.Header.Get("Content-Type")))
	if idx := strings.Index(contentType, ";"); idx >= 0 {
		contentType = strings.TrimSpace(contentType[:idx])
	}
	ext, ok := previewContentTypes[contentType]
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unsupported_media_type", "preview must be png, jpeg or webp", http.StatusUnsupportedMediaType))
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxPreviewUploadSize+1))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "failed to read upload", http.StatusBadRequest))
		return
	}
	if len(data) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "upload body is empty", http.StatusBadRequest))
		return
	}
	if len(data) > maxPreviewUploadSize {
		httpx.WriteError(ctx, w, httpx.NewError("upload_too_large", "preview exceeds the size limit", http.StatusRequestEntityTooLarge))
		return
	}

	path := fmt.Sprintf("previews/%s/%s%s", identity.UID, h.idGenerator(), ext)
	url, err := h.uploader.Upload(ctx, path, data, contentType)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("upload_failed", "failed to store preview", http.StatusBadGateway))
		return
	}

	writeJSONResponse(w, http.StatusCreated, map[string]string{
		"path": path,
		"url":  url,
	})
}
