package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"studio/internal/domain"
	"studio/internal/middleware"
	"studio/internal/render"
	"studio/internal/studio"
)

type modeRequest struct {
	Mode string `json:"mode"`
}

type sourceRequest struct {
	URL string `json:"url"`
}

type viewRequest struct {
	View string `json:"view"`
}

type outputRequest struct {
	AspectRatio string `json:"aspectRatio"`
	Resolution  string `json:"resolution"`
}

type jobResponse struct {
	JobID string       `json:"jobId"`
	Mode  domain.Mode  `json:"mode"`
	State studio.State `json:"state"`
}

// session resolves the caller's session for the project in the URL, writing the error
// response itself when it cannot.
func (a *App) session(w http.ResponseWriter, r *http.Request) (*studio.Session, bool) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return nil, false
	}
	projectID := chi.URLParam(r, "projectID")
	if _, err := uuid.Parse(projectID); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid project id")
		return nil, false
	}
	scope := domain.Scope{UserID: userID, ProjectID: projectID}
	sess, err := a.Sessions.Get(r.Context(), scope, middleware.PlanFromContext(r.Context()))
	if err != nil {
		a.fail(w, r, err)
		return nil, false
	}
	return sess, true
}

// GetStudio returns the session view.
func (a *App) GetStudio(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.session(w, r)
	if !ok {
		return
	}
	a.json(w, http.StatusOK, sess.Snapshot())
}

func (a *App) PutMode(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.session(w, r)
	if !ok {
		return
	}
	var req modeRequest
	if err := decodeBody(r, &req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	mode, err := domain.ParseMode(req.Mode)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if err := sess.SwitchMode(mode); err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, sess.Snapshot())
}

func (a *App) PutSource(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.session(w, r)
	if !ok {
		return
	}
	var req sourceRequest
	if err := decodeBody(r, &req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if err := sess.SetSource(req.URL); err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, sess.Snapshot())
}

func (a *App) PutView(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.session(w, r)
	if !ok {
		return
	}
	var req viewRequest
	if err := decodeBody(r, &req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	view, valid := studio.ParseView(req.View)
	if !valid {
		a.error(w, http.StatusBadRequest, "bad_request", "view must be before or after")
		return
	}
	if err := sess.SetView(view); err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, sess.Snapshot())
}

func (a *App) PutOutput(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.session(w, r)
	if !ok {
		return
	}
	var req outputRequest
	if err := decodeBody(r, &req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	aspect, err := render.ParseAspectPreset(req.AspectRatio)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	res, err := render.ParseResolutionPreset(req.Resolution)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	sess.SetOutputPrefs(aspect, res)
	a.json(w, http.StatusOK, sess.Snapshot())
}

// PutFeature sets a slot of the active mode. The body is the slot's JSON view.
func (a *App) PutFeature(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.session(w, r)
	if !ok {
		return
	}
	var fv studio.FeatureView
	if err := decodeBody(r, &fv); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if err := sess.SelectView(domain.SlotID(chi.URLParam(r, "slot")), fv); err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, sess.Snapshot())
}

func (a *App) DeleteFeature(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.session(w, r)
	if !ok {
		return
	}
	if err := sess.Clear(domain.SlotID(chi.URLParam(r, "slot"))); err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, sess.Snapshot())
}

// Generate enters loading and settles the job in the background. The caller polls
// GetStudio for the outcome.
func (a *App) Generate(w http.ResponseWriter, r *http.Request) {
	a.start(w, r, (*studio.Session).Submit)
}

// Retry re-submits after an error or timeout with a fresh job id.
func (a *App) Retry(w http.ResponseWriter, r *http.Request) {
	a.start(w, r, (*studio.Session).Retry)
}

func (a *App) start(w http.ResponseWriter, r *http.Request, enter func(*studio.Session, context.Context) (*studio.Job, error)) {
	sess, ok := a.session(w, r)
	if !ok {
		return
	}
	job, err := enter(sess, r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}

	ctx := context.WithoutCancel(r.Context())
	a.jobs.Add(1)
	go func() {
		defer a.jobs.Done()
		res := sess.Run(ctx, job)
		ev := a.Logger.Info()
		if res.Err != nil {
			ev = a.Logger.Warn().Err(res.Err)
		}
		ev.Str("job_id", res.JobID).
			Str("mode", string(job.Mode)).
			Str("project_id", sess.Scope().ProjectID).
			Str("state", string(res.State)).
			Str("from", res.From).
			Int("warnings", len(res.Warnings)).
			Msg("studio job settled")
	}()

	a.json(w, http.StatusAccepted, jobResponse{JobID: job.ID, Mode: job.Mode, State: studio.StateLoading})
}

// Dismiss closes an error or timeout.
func (a *App) Dismiss(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.session(w, r)
	if !ok {
		return
	}
	if err := sess.Dismiss(); err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, sess.Snapshot())
}
