package studio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"studio/internal/assets"
	"studio/internal/credits"
	"studio/internal/domain"
	"studio/internal/feature"
	"studio/internal/infra"
	"studio/internal/render"
)

// Dispatcher sends a built request to the render endpoint.
type Dispatcher interface {
	Dispatch(ctx context.Context, req render.Request) (render.Outcome, error)
}

// Poller waits for a result to appear in the asset store.
type Poller interface {
	PollUntilReady(ctx context.Context, scope domain.Scope, mode domain.Mode, since time.Time) (*assets.Latest, error)
}

// Measurer reports the pixel size of a source image.
type Measurer interface {
	Measure(ctx context.Context, url string) render.Dimensions
}

// Deps are the collaborators shared by every session.
type Deps struct {
	Jobs       domain.JobLifecycle
	Persister  domain.ResultPersister
	Dispatcher Dispatcher
	Poller     Poller
	Measurer   Measurer
	Resolver   assets.Resolver
	Logger     *infra.Logger
	Now        func() time.Time
	NewJobID   func() string
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		l := infra.Logger(zerolog.New(io.Discard))
		d.Logger = &l
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.NewJobID == nil {
		d.NewJobID = domain.NewJobID
	}
	return d
}

// Seed is the persisted project state a session starts from.
type Seed struct {
	Scope  domain.Scope
	Plan   string
	Mode   domain.Mode
	Before string
	After  string
}

// Session is one user's editor on one project. Every method is safe for concurrent use;
// the submit pipeline runs outside the lock with the loading state guarding it.
type Session struct {
	mu       sync.Mutex
	deps     Deps
	scope    domain.Scope
	plan     string
	mode     domain.Mode
	features *feature.Store
	prefs    render.OutputPrefs
	gallery  Gallery
	gate     *UpscaleGate
	machine  *Machine
	cost     int
}

// NewSession builds a session from persisted state.
func NewSession(seed Seed, deps Deps) *Session {
	mode := seed.Mode
	if !mode.Valid() {
		mode = domain.ModePhoto
	}
	return &Session{
		deps:     deps.withDefaults(),
		scope:    seed.Scope,
		plan:     seed.Plan,
		mode:     mode,
		features: feature.NewStore(),
		prefs:    render.OutputPrefs{Aspect: render.AspectAuto, Resolution: render.Resolution1K},
		gallery:  newGallery(seed.Before, seed.After),
		gate:     NewUpscaleGate(),
		machine:  NewMachine(),
		cost:     credits.InitialDisplayCost,
	}
}

// Scope returns the user and project the session belongs to.
func (s *Session) Scope() domain.Scope { return s.scope }

// Busy reports whether a job is in flight.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Loading()
}

// SetPlan updates the plan stamped into photo requests.
func (s *Session) SetPlan(plan string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plan = plan
}

// SwitchMode changes the active mode and clears the selections of the entered mode.
func (s *Session) SwitchMode(mode domain.Mode) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: mode %q", domain.ErrInvalidValue, mode)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.machine.CanSwitchTo(mode); err != nil {
		return err
	}
	if mode == s.mode {
		return nil
	}
	s.mode = mode
	s.features.ResetAll(mode)
	return nil
}

// Select sets a slot of the active mode.
func (s *Session) Select(id domain.SlotID, v domain.Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.features.Select(s.mode, id, v)
}

// SelectView sets a slot of the active mode from its JSON form, decoded by the slot's kind.
func (s *Session) SelectView(id domain.SlotID, fv FeatureView) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	spec, ok := domain.LookupSlot(s.mode, id)
	if !ok {
		return fmt.Errorf("%w: %s/%s", domain.ErrUnknownSlot, s.mode, id)
	}
	if fv.Kind != "" && fv.Kind != spec.Kind {
		return fmt.Errorf("%w: %s wants %s", domain.ErrKindMismatch, id, spec.Kind)
	}
	return s.features.Select(s.mode, id, fv.value(spec.Kind))
}

// Clear empties a slot of the active mode.
func (s *Session) Clear(id domain.SlotID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.features.Clear(s.mode, id)
}

// SetSource registers a newly uploaded source image and resets the editor around it. The
// source must be a storage key or a URL on a trusted media host.
func (s *Session) SetSource(url string) error {
	url = s.deps.Resolver.Resolve(url)
	if url == "" {
		return fmt.Errorf("%w: source image is required", domain.ErrInvalidValue)
	}
	if !s.deps.Resolver.Trusted(url) {
		return fmt.Errorf("%w: source image host is not allowed", domain.ErrInvalidValue)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.machine.Loading() {
		return domain.ErrBusy
	}
	s.gallery.upload(url)
	for _, m := range domain.Modes {
		s.features.ResetAll(m)
	}
	s.gate.Reset()
	return nil
}

// SetView toggles the gallery side and advances the upscale gate.
func (s *Session) SetView(v View) error {
	if _, ok := ParseView(string(v)); !ok {
		return fmt.Errorf("%w: view %q", domain.ErrInvalidValue, v)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gallery.View = v
	s.gate.Observe(v)
	return nil
}

// SetOutputPrefs stores the photo aspect and resolution presets.
func (s *Session) SetOutputPrefs(aspect render.AspectPreset, res render.ResolutionPreset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs.Aspect = aspect
	s.prefs.Resolution = res
}

// Job is a submission that has entered the loading state and waits for Run. Results
// stored before StartedAt belong to earlier jobs.
type Job struct {
	ID        string
	Mode      domain.Mode
	Request   render.Request
	StartedAt time.Time

	scope         domain.Scope
	previousAfter string
}

type entry int

const (
	entrySubmit entry = iota
	entryRetry
)

// Submit validates the active mode's selections and moves the session to loading. It
// performs no network call when validation fails. Run must follow to settle the job.
func (s *Session) Submit(ctx context.Context) (*Job, error) {
	return s.prepare(ctx, entrySubmit)
}

// Retry re-enters loading from error or timeout with a fresh job identifier.
func (s *Session) Retry(ctx context.Context) (*Job, error) {
	return s.prepare(ctx, entryRetry)
}

// Generate submits and settles synchronously.
func (s *Session) Generate(ctx context.Context) (RunResult, error) {
	job, err := s.Submit(ctx)
	if err != nil {
		return RunResult{}, err
	}
	return s.Run(ctx, job), nil
}

// Dismiss closes an error or timeout without side effects.
func (s *Session) Dismiss() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Dismiss()
}

func (s *Session) checkEntry(e entry) error {
	st := s.machine.State()
	switch {
	case st == StateLoading:
		return domain.ErrBusy
	case e == entrySubmit && st != StateIdle:
		return fmt.Errorf("%w: submit from %s", domain.ErrInvalidTransition, st)
	case e == entryRetry && st != StateError && st != StateTimeout:
		return fmt.Errorf("%w: retry from %s", domain.ErrInvalidTransition, st)
	}
	return nil
}

func (s *Session) prepare(ctx context.Context, e entry) (*Job, error) {
	s.mu.Lock()
	if err := s.checkEntry(e); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	mode := s.mode
	if err := render.Validate(mode, s.features.Snapshot(mode)); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if !s.scope.Complete() {
		s.mu.Unlock()
		return nil, domain.ErrMissingContext
	}
	source := s.gallery.SourceFor(mode)
	prefs := s.prefs
	s.mu.Unlock()

	if mode == domain.ModePhoto && prefs.Aspect == render.AspectAuto && s.deps.Measurer != nil && s.deps.Resolver.Trusted(source) {
		prefs.Source = s.deps.Measurer.Measure(ctx, source)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkEntry(e); err != nil {
		return nil, err
	}
	if s.mode != mode {
		return nil, fmt.Errorf("%w: mode changed during submit", domain.ErrInvalidTransition)
	}
	jobID := s.deps.NewJobID()
	startedAt := s.deps.Now()
	req, err := render.Build(render.BuildInput{
		Mode:        mode,
		Features:    s.features.Snapshot(mode),
		SourceImage: source,
		Prefs:       prefs,
		JobID:       jobID,
		Identity:    render.Identity{UserID: s.scope.UserID, ProjectID: s.scope.ProjectID, Plan: s.plan},
		RequestedAt: startedAt,
	})
	if err != nil {
		return nil, err
	}
	if e == entryRetry {
		err = s.machine.Retry(mode, jobID)
	} else {
		err = s.machine.Begin(mode, jobID)
	}
	if err != nil {
		return nil, err
	}
	job := &Job{ID: jobID, Mode: mode, Request: req, StartedAt: startedAt, scope: s.scope}
	if mode == domain.ModePhoto {
		job.previousAfter = s.gallery.After
	}
	s.deps.Logger.Info().
		Str("job_id", jobID).
		Str("mode", string(mode)).
		Str("project_id", s.scope.ProjectID).
		Msg("studio: generation started")
	return job, nil
}

// Result sources.
const (
	FromDispatch = "dispatch"
	FromPoll     = "poll"
)

// RunResult describes how a job settled.
type RunResult struct {
	JobID    string
	State    State
	Message  string
	From     string
	AfterURL string
	VideoURL string
	Warnings []error
	Err      error
}

// Run executes create-job, dispatch and, when needed, polling for job, then reconciles
// the outcome into the session exactly once.
func (s *Session) Run(ctx context.Context, job *Job) RunResult {
	s.mu.Lock()
	if !s.machine.Loading() || s.machine.JobID() != job.ID {
		s.mu.Unlock()
		return RunResult{JobID: job.ID, Err: fmt.Errorf("%w: job %s is not in flight", domain.ErrInvalidTransition, job.ID)}
	}
	s.mu.Unlock()

	log := s.deps.Logger.With().
		Str("job_id", job.ID).
		Str("mode", string(job.Mode)).
		Str("project_id", job.scope.ProjectID).
		Logger()

	if err := s.deps.Jobs.CreateJob(ctx, job.ID, job.scope.ProjectID, job.Mode); err != nil {
		log.Error().Err(err).Msg("studio: create job failed")
		return s.settleFailure(job, StateError, MsgCreateJobFailed, err)
	}

	outcome, err := s.deps.Dispatcher.Dispatch(ctx, job.Request)
	if err != nil {
		log.Error().Err(err).Msg("studio: dispatch failed")
		return s.settleFailure(job, StateError, MsgRenderFailed, err)
	}
	if !outcome.Accepted && !outcome.Result.Success {
		log.Warn().Int("status", outcome.StatusCode).Msg("studio: render reported failure")
		return s.settleFailure(job, StateError, MsgRenderFailed, &domain.DispatchFailure{StatusCode: outcome.StatusCode, Err: errors.New("render reported failure")})
	}

	found, err := s.locate(ctx, job, outcome, log)
	if err != nil {
		msg := MsgPhotoTimeout
		if job.Mode == domain.ModeVideo {
			msg = MsgVideoTimeout
		}
		return s.settleFailure(job, StateTimeout, msg, err)
	}

	warnings := s.persist(ctx, job, found, log)

	if err := s.deps.Jobs.MarkJobCompleted(ctx, job.ID); err != nil {
		log.Error().Err(err).Msg("studio: mark job completed failed")
		warnings = append(warnings, &domain.PersistenceWarning{Op: "mark_job_completed", Err: err})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if job.Mode == domain.ModePhoto {
		if s.gallery.applyPhoto(found.url, found.before, job.previousAfter) {
			s.gate.Reset()
		}
	} else {
		s.gallery.applyVideo(found.url, found.storeAfter, found.before)
	}
	s.cost = credits.NextDisplayCost(s.cost)
	s.features.ResetAll(job.Mode)
	if err := s.machine.Succeed(); err != nil {
		return RunResult{JobID: job.ID, Err: err}
	}
	log.Info().Str("from", found.from).Int("warnings", len(warnings)).Msg("studio: generation settled")

	res := RunResult{JobID: job.ID, State: StateIdle, From: found.from, Warnings: warnings}
	if job.Mode == domain.ModeVideo {
		res.VideoURL = found.url
	} else {
		res.AfterURL = found.url
	}
	return res
}

type located struct {
	from       string
	raw        string
	url        string
	before     string
	storeAfter string
}

// locate picks the dispatcher result when usable and falls back to polling otherwise.
func (s *Session) locate(ctx context.Context, job *Job, outcome render.Outcome, log zerolog.Logger) (located, error) {
	if !outcome.Accepted {
		resolved := outcome.Result.Resolve(s.deps.Resolver)
		raw, url := outcome.Result.AfterRaw, resolved.AfterURL
		if job.Mode == domain.ModeVideo {
			raw, url = outcome.Result.VideoRaw, resolved.VideoURL
		}
		if url != "" {
			return located{from: FromDispatch, raw: raw, url: url, before: resolved.BeforeURL}, nil
		}
	}

	log.Info().Str("reason", outcome.Reason).Msg("studio: no usable result, polling asset store")
	latest, err := s.deps.Poller.PollUntilReady(ctx, job.scope, job.Mode, job.StartedAt)
	if err != nil {
		log.Error().Err(err).Msg("studio: polling failed")
		return located{}, fmt.Errorf("%w: %v", domain.ErrTimeout, err)
	}
	if !latest.Ready(job.Mode) {
		return located{}, domain.ErrTimeout
	}
	if job.Mode == domain.ModeVideo {
		return located{from: FromPoll, raw: latest.VideoKey, url: latest.VideoURL, before: latest.BeforeURL, storeAfter: latest.AfterURL}, nil
	}
	return located{from: FromPoll, raw: latest.AfterKey, url: latest.AfterURL, before: latest.BeforeURL}, nil
}

// persist runs the settle side effects concurrently. Results read back from the asset
// store are already recorded there, so only dispatcher results are persisted as assets.
func (s *Session) persist(ctx context.Context, job *Job, found located, log zerolog.Logger) []error {
	type task struct {
		op  string
		run func(context.Context) error
	}
	var tasks []task
	if found.from == FromDispatch {
		tasks = append(tasks, task{"persist_result_asset", func(ctx context.Context) error {
			return s.deps.Persister.PersistResultAsset(ctx, job.scope, job.Mode, found.raw)
		}})
	}
	if job.Mode == domain.ModePhoto {
		tasks = append(tasks, task{"update_project_thumbnail", func(ctx context.Context) error {
			return s.deps.Persister.UpdateProjectThumbnail(ctx, job.scope, found.raw)
		}})
	} else {
		tasks = append(tasks, task{"update_project_type", func(ctx context.Context) error {
			return s.deps.Persister.UpdateProjectType(ctx, job.scope, domain.ModeVideo)
		}})
	}

	results := make([]error, len(tasks))
	var g errgroup.Group
	for i, t := range tasks {
		i, t := i, t
		g.Go(func() error {
			if err := t.run(ctx); err != nil {
				results[i] = &domain.PersistenceWarning{Op: t.op, Err: err}
			}
			return nil
		})
	}
	_ = g.Wait()

	var warnings []error
	for _, w := range results {
		if w != nil {
			log.Warn().Err(w).Msg("studio: persistence warning")
			warnings = append(warnings, w)
		}
	}
	return warnings
}

func (s *Session) settleFailure(job *Job, to State, msg string, cause error) RunResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	if to == StateTimeout {
		err = s.machine.TimeOut(msg)
	} else {
		err = s.machine.Fail(msg)
	}
	if err != nil {
		return RunResult{JobID: job.ID, Err: err}
	}
	return RunResult{JobID: job.ID, State: to, Message: msg, Err: cause}
}

// FeatureView is the JSON form of a slot value.
type FeatureView struct {
	Kind     domain.SlotKind `json:"kind"`
	ImageURL string          `json:"imageUrl,omitempty"`
	Text     string          `json:"text,omitempty"`
	Number   *float64        `json:"number,omitempty"`
	Option   string          `json:"option,omitempty"`
	URLs     []string        `json:"urls,omitempty"`
}

func viewOf(v domain.Value) FeatureView {
	fv := FeatureView{Kind: v.Kind()}
	switch t := v.(type) {
	case domain.ImageRef:
		fv.ImageURL = t.URL
	case domain.Text:
		fv.Text = t.Text
	case domain.Number:
		n := t.N
		fv.Number = &n
	case domain.Choice:
		fv.Option = t.Option
	case domain.Composite:
		fv.ImageURL, fv.Text = t.ImageURL, t.Text
	case domain.ImageList:
		fv.URLs = append([]string(nil), t.URLs...)
	}
	return fv
}

// value is the inverse of viewOf for a slot of kind.
func (fv FeatureView) value(kind domain.SlotKind) domain.Value {
	switch kind {
	case domain.KindImageRef:
		return domain.ImageRef{URL: fv.ImageURL}
	case domain.KindText:
		return domain.Text{Text: fv.Text}
	case domain.KindNumeric:
		if fv.Number == nil {
			return nil
		}
		return domain.Number{N: *fv.Number}
	case domain.KindChoice:
		return domain.Choice{Option: fv.Option}
	case domain.KindComposite:
		return domain.Composite{ImageURL: fv.ImageURL, Text: fv.Text}
	case domain.KindImageList:
		return domain.ImageList{URLs: append([]string(nil), fv.URLs...)}
	}
	return nil
}

// Estimate is the credit price of the next render, when known.
type Estimate struct {
	Credits int    `json:"credits"`
	Label   string `json:"label"`
}

// SessionView is a consistent read of the whole session.
type SessionView struct {
	Mode             domain.Mode                                   `json:"mode"`
	Generation       MachineSnapshot                               `json:"generation"`
	Gallery          Gallery                                       `json:"gallery"`
	Gate             GateState                                     `json:"upscaleGate"`
	UpscaleAvailable bool                                          `json:"upscaleAvailable"`
	Features         map[domain.Mode]map[domain.SlotID]FeatureView `json:"features"`
	Aspect           render.AspectPreset                           `json:"aspectRatio"`
	Resolution       render.ResolutionPreset                       `json:"resolution"`
	CreditCost       int                                           `json:"creditCost"`
	Estimate         *Estimate                                     `json:"estimate,omitempty"`
}

// Snapshot returns a consistent copy of the session for display.
func (s *Session) Snapshot() SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	view := SessionView{
		Mode:             s.mode,
		Generation:       s.machine.Snapshot(),
		Gallery:          s.gallery,
		Gate:             s.gate.State(),
		UpscaleAvailable: s.gate.UpscaleAvailable(s.mode, s.gallery.After),
		Features:         make(map[domain.Mode]map[domain.SlotID]FeatureView, len(domain.Modes)),
		Aspect:           s.prefs.Aspect,
		Resolution:       s.prefs.Resolution,
		CreditCost:       s.cost,
	}
	for _, m := range domain.Modes {
		set := s.features.Snapshot(m)
		slots := make(map[domain.SlotID]FeatureView)
		for _, spec := range domain.SlotsFor(m) {
			if v, ok := set.Raw(spec.ID); ok {
				slots[spec.ID] = viewOf(v)
			}
		}
		view.Features[m] = slots
	}
	view.Estimate = s.estimate()
	return view
}

func (s *Session) estimate() *Estimate {
	roi := credits.ROIMultiplier(s.plan)
	var (
		cost int
		err  error
	)
	if s.mode == domain.ModeVideo {
		v, ok := s.features.Snapshot(domain.ModeVideo).Value(domain.SlotVideoDuration)
		if !ok {
			return nil
		}
		cost, err = credits.VideoCost(int(v.(domain.Number).N), credits.DefaultVideoROI*roi)
	} else {
		cost, err = credits.PhotoCost(string(s.prefs.Resolution), credits.DefaultPhotoROI*roi)
	}
	if err != nil {
		return nil
	}
	return &Estimate{Credits: cost, Label: credits.Format(cost)}
}
