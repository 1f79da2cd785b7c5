package handlers

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	"studio/internal/domain"
	"studio/internal/storage"
)

// MediaStore saves uploaded files under a key.
type MediaStore interface {
	Save(ctx context.Context, key string, r io.Reader) (string, error)
	Remove(ctx context.Context, key string) error
}

// SourceRecorder remembers the uploaded source image of a project.
type SourceRecorder interface {
	RecordSource(ctx context.Context, scope domain.Scope, key string) error
}

var uploadExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
}

type uploadResponse struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// Upload stores a raw image body as the project's new source image and resets the editor
// around it.
func (a *App) Upload(w http.ResponseWriter, r *http.Request) {
	if a.Media == nil {
		a.error(w, http.StatusNotFound, "not_found", "uploads are disabled")
		return
	}
	sess, ok := a.session(w, r)
	if !ok {
		return
	}

	body := bufio.NewReaderSize(r.Body, 512)
	head, err := body.Peek(512)
	if err != nil && !errors.Is(err, io.EOF) {
		a.error(w, http.StatusBadRequest, "bad_request", "unreadable upload")
		return
	}
	ext, supported := uploadExtensions[http.DetectContentType(head)]
	if !supported {
		a.error(w, http.StatusUnsupportedMediaType, "unsupported_media_type", "upload must be a png, jpeg or webp image")
		return
	}

	if sess.Busy() {
		a.fail(w, r, domain.ErrBusy)
		return
	}

	scope := sess.Scope()
	key, err := a.Media.Save(r.Context(), "uploads/"+scope.UserID+"/"+scope.ProjectID+"/"+uuid.NewString()+ext, body)
	if err != nil {
		if errors.Is(err, storage.ErrTooLarge) {
			a.error(w, http.StatusRequestEntityTooLarge, "too_large", err.Error())
			return
		}
		a.fail(w, r, err)
		return
	}
	if err := sess.SetSource(key); err != nil {
		if rmErr := a.Media.Remove(context.WithoutCancel(r.Context()), key); rmErr != nil {
			a.Logger.Warn().Err(rmErr).Str("key", key).Msg("remove rejected upload failed")
		}
		a.fail(w, r, err)
		return
	}
	if a.Sources != nil {
		if err := a.Sources.RecordSource(r.Context(), scope, key); err != nil {
			a.Logger.Warn().Err(err).Str("project_id", scope.ProjectID).Msg("record source asset failed")
		}
	}
	view := sess.Snapshot()
	a.json(w, http.StatusCreated, uploadResponse{Key: key, URL: view.Gallery.Before})
}
