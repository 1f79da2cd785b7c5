package studio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"studio/internal/assets"
	"studio/internal/domain"
	"studio/internal/poller"
	"studio/internal/render"
)

const mediaBase = "https://media.example.com"

type stubJobs struct {
	mu         sync.Mutex
	created    []string
	completed  []string
	createErr  error
	completeEr error
}

func (s *stubJobs) CreateJob(_ context.Context, jobID, _ string, _ domain.Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, jobID)
	return s.createErr
}

func (s *stubJobs) MarkJobCompleted(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = append(s.completed, jobID)
	return s.completeEr
}

type stubPersister struct {
	mu         sync.Mutex
	persisted  []string
	thumbnails []string
	types      []domain.Mode
	thumbErr   error
}

func (s *stubPersister) PersistResultAsset(_ context.Context, _ domain.Scope, _ domain.Mode, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persisted = append(s.persisted, key)
	return nil
}

func (s *stubPersister) UpdateProjectThumbnail(_ context.Context, _ domain.Scope, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.thumbnails = append(s.thumbnails, key)
	return s.thumbErr
}

func (s *stubPersister) UpdateProjectType(_ context.Context, _ domain.Scope, mode domain.Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.types = append(s.types, mode)
	return nil
}

type stubDispatcher struct {
	mu       sync.Mutex
	requests []render.Request
	outcome  render.Outcome
	err      error
	release  chan struct{}
}

func (s *stubDispatcher) Dispatch(_ context.Context, req render.Request) (render.Outcome, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	if s.release != nil {
		<-s.release
	}
	return s.outcome, s.err
}

func (s *stubDispatcher) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

type stubPoller struct {
	calls  int
	modes  []domain.Mode
	since  []time.Time
	latest *assets.Latest
	err    error
}

func (s *stubPoller) PollUntilReady(_ context.Context, _ domain.Scope, mode domain.Mode, since time.Time) (*assets.Latest, error) {
	s.calls++
	s.modes = append(s.modes, mode)
	s.since = append(s.since, since)
	return s.latest, s.err
}

var fixtureNow = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// countingStore holds an earlier result and adds a fresh one from the readyAt-th query on.
// readyAt 0 never adds one.
type countingStore struct {
	calls   int
	readyAt int
}

func (s *countingStore) LatestAssets(context.Context, domain.Scope, int) ([]domain.AssetRecord, error) {
	s.calls++
	rows := []domain.AssetRecord{
		{URL: "old-result.png", Role: domain.AssetRoleResult, Type: domain.AssetTypeImage, CreatedAt: fixtureNow.Add(-time.Hour)},
		{URL: "src.png", Role: domain.AssetRoleSource, Type: domain.AssetTypeImage, CreatedAt: fixtureNow.Add(-2 * time.Hour)},
	}
	if s.readyAt > 0 && s.calls >= s.readyAt {
		rows = append([]domain.AssetRecord{{URL: "polled.png", Role: domain.AssetRoleResult, Type: domain.AssetTypeImage, CreatedAt: fixtureNow.Add(5 * time.Second)}}, rows...)
	}
	return rows, nil
}

type fixture struct {
	jobs       *stubJobs
	persister  *stubPersister
	dispatcher *stubDispatcher
	poller     Poller
	session    *Session
	seq        int
}

func newFixture(t *testing.T, seed Seed, p Poller) *fixture {
	t.Helper()
	f := &fixture{
		jobs:       &stubJobs{},
		persister:  &stubPersister{},
		dispatcher: &stubDispatcher{},
		poller:     p,
	}
	if f.poller == nil {
		f.poller = &stubPoller{latest: &assets.Latest{}}
	}
	if seed.Scope == (domain.Scope{}) {
		seed.Scope = domain.Scope{UserID: "u1", ProjectID: "p1"}
	}
	f.session = NewSession(seed, Deps{
		Jobs:       f.jobs,
		Persister:  f.persister,
		Dispatcher: f.dispatcher,
		Poller:     f.poller,
		Resolver:   assets.NewResolver(mediaBase),
		Now:        func() time.Time { return fixtureNow },
		NewJobID: func() string {
			f.seq++
			return fmt.Sprintf("job_%d", f.seq)
		},
	})
	return f
}

func (f *fixture) succeedWith(body string) {
	f.dispatcher.outcome = render.Outcome{StatusCode: 200, Result: render.Normalize([]byte(body))}
}

func TestPhotoSubmitWithDispatcherResult(t *testing.T) {
	f := newFixture(t, Seed{Before: mediaBase + "/src.png"}, nil)
	if err := f.session.Select(domain.SlotRims, domain.ImageRef{URL: "https://cdn.example.com/rims.png"}); err != nil {
		t.Fatalf("Select: %v", err)
	}
	f.succeedWith(`{"success":true,"after_image":"x.png"}`)

	res, err := f.session.Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.State != StateIdle || res.From != FromDispatch {
		t.Fatalf("result = %+v, want idle from dispatch", res)
	}
	view := f.session.Snapshot()
	if view.Gallery.After != mediaBase+"/x.png" {
		t.Fatalf("after = %q, want %q", view.Gallery.After, mediaBase+"/x.png")
	}
	if view.Gallery.View != ViewAfter {
		t.Fatalf("view = %s, want after", view.Gallery.View)
	}
	if view.Generation.State != StateIdle {
		t.Fatalf("state = %s, want idle", view.Generation.State)
	}
	if len(view.Features[domain.ModePhoto]) != 0 {
		t.Fatalf("photo features = %v, want empty", view.Features[domain.ModePhoto])
	}
	if view.CreditCost != 17 {
		t.Fatalf("credit cost = %d, want 17", view.CreditCost)
	}
	if len(f.persister.persisted) != 1 || f.persister.persisted[0] != "x.png" {
		t.Fatalf("persisted = %v, want [x.png]", f.persister.persisted)
	}
	if len(f.persister.thumbnails) != 1 || f.persister.thumbnails[0] != "x.png" {
		t.Fatalf("thumbnails = %v, want [x.png]", f.persister.thumbnails)
	}
	if len(f.jobs.created) != 1 || len(f.jobs.completed) != 1 || f.jobs.created[0] != f.jobs.completed[0] {
		t.Fatalf("job lifecycle created=%v completed=%v", f.jobs.created, f.jobs.completed)
	}
	if p := f.poller.(*stubPoller); p.calls != 0 {
		t.Fatalf("poller calls = %d, want 0", p.calls)
	}
}

func TestPhotoLocalTimeoutFallsBackToPolling(t *testing.T) {
	store := &countingStore{readyAt: 5}
	p := poller.New(poller.Options{
		Store:    store,
		Resolver: assets.NewResolver(mediaBase),
		Photo:    poller.Budget{Attempts: 40, Interval: time.Millisecond},
	})
	f := newFixture(t, Seed{Before: mediaBase + "/src.png"}, p)
	_ = f.session.Select(domain.SlotLivery, domain.ImageRef{URL: "livery.png"})
	f.dispatcher.outcome = render.Outcome{Accepted: true, Reason: render.ReasonLocalTimeout}

	res, err := f.session.Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.State != StateIdle || res.From != FromPoll {
		t.Fatalf("result = %+v, want idle from poll", res)
	}
	if store.calls != 5 {
		t.Fatalf("store calls = %d, want 5", store.calls)
	}
	if got := f.session.Snapshot().Gallery.After; got != mediaBase+"/polled.png" {
		t.Fatalf("after = %q, want polled.png", got)
	}
	if len(f.persister.persisted) != 0 {
		t.Fatalf("polled results are already stored, persisted = %v", f.persister.persisted)
	}
	if len(f.persister.thumbnails) != 1 || f.persister.thumbnails[0] != "polled.png" {
		t.Fatalf("thumbnails = %v, want [polled.png]", f.persister.thumbnails)
	}
}

func TestPollingIgnoresResultsFromEarlierJobs(t *testing.T) {
	store := &countingStore{}
	p := poller.New(poller.Options{
		Store:    store,
		Resolver: assets.NewResolver(mediaBase),
		Photo:    poller.Budget{Attempts: 3, Interval: time.Millisecond},
	})
	f := newFixture(t, Seed{Before: mediaBase + "/src.png", After: mediaBase + "/old-result.png"}, p)
	_ = f.session.Select(domain.SlotLivery, domain.ImageRef{URL: "livery.png"})
	f.dispatcher.outcome = render.Outcome{Accepted: true, Reason: render.ReasonLocalTimeout}

	res, err := f.session.Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.State != StateTimeout {
		t.Fatalf("result = %+v, want timeout", res)
	}
	if store.calls != 4 {
		t.Fatalf("store calls = %d, want 3 attempts + 1 final query", store.calls)
	}
	if len(f.jobs.completed) != 0 {
		t.Fatalf("completed = %v, want none", f.jobs.completed)
	}
	view := f.session.Snapshot()
	if view.Gallery.Before != mediaBase+"/src.png" || view.Gallery.After != mediaBase+"/old-result.png" {
		t.Fatalf("gallery = %+v, want untouched", view.Gallery)
	}
	if len(view.Features[domain.ModePhoto]) != 1 || view.CreditCost != 18 {
		t.Fatalf("features = %v cost = %d, want selections and cost kept", view.Features[domain.ModePhoto], view.CreditCost)
	}
	if len(f.persister.thumbnails) != 0 {
		t.Fatalf("thumbnails = %v, want none", f.persister.thumbnails)
	}
}

func TestEdgeTimeoutGoesStraightToPolling(t *testing.T) {
	sp := &stubPoller{latest: &assets.Latest{AfterKey: "a.png", AfterURL: mediaBase + "/a.png"}}
	f := newFixture(t, Seed{}, sp)
	_ = f.session.Select(domain.SlotRims, domain.ImageRef{URL: "r.png"})
	f.dispatcher.outcome = render.Outcome{Accepted: true, Reason: render.ReasonEdgeTimeout, StatusCode: 524}

	res, _ := f.session.Generate(context.Background())
	if res.State != StateIdle || res.Err != nil {
		t.Fatalf("result = %+v, want idle without error", res)
	}
	if sp.calls != 1 || sp.modes[0] != domain.ModePhoto || !sp.since[0].Equal(fixtureNow) {
		t.Fatalf("poller calls = %d modes = %v since = %v", sp.calls, sp.modes, sp.since)
	}
}

func TestValidationFailureNeverDispatches(t *testing.T) {
	f := newFixture(t, Seed{}, nil)
	_, err := f.session.Submit(context.Background())
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Submit err = %v, want ValidationError", err)
	}

	if err := f.session.SwitchMode(domain.ModeVideo); err != nil {
		t.Fatalf("SwitchMode: %v", err)
	}
	_ = f.session.Select(domain.SlotVideoPrompt, domain.Text{Text: "orbit"})
	_ = f.session.Select(domain.SlotVideoDuration, domain.Number{N: 5})
	_ = f.session.Select(domain.SlotVideoQuality, domain.Choice{Option: domain.QualityHigh})
	_, err = f.session.Submit(context.Background())
	if !errors.As(err, &verr) {
		t.Fatalf("video Submit err = %v, want ValidationError", err)
	}
	if len(verr.Missing) != 1 || verr.Missing[0] != domain.SlotVideoScale {
		t.Fatalf("missing = %v, want [videoScale]", verr.Missing)
	}
	if f.dispatcher.calls() != 0 || len(f.jobs.created) != 0 {
		t.Fatalf("network calls: dispatch=%d create=%d, want 0", f.dispatcher.calls(), len(f.jobs.created))
	}
	if st := f.session.Snapshot().Generation.State; st != StateIdle {
		t.Fatalf("state = %s, want idle", st)
	}
}

func TestMissingContextRejectsSubmit(t *testing.T) {
	f := newFixture(t, Seed{Scope: domain.Scope{UserID: "u1"}}, nil)
	_ = f.session.Select(domain.SlotRims, domain.ImageRef{URL: "r.png"})
	if _, err := f.session.Submit(context.Background()); !errors.Is(err, domain.ErrMissingContext) {
		t.Fatalf("Submit err = %v, want ErrMissingContext", err)
	}
	if f.session.Snapshot().Generation.State != StateIdle {
		t.Fatalf("missing context must not transition")
	}
}

func TestRetryAfterTimeoutUsesNewJobID(t *testing.T) {
	sp := &stubPoller{latest: &assets.Latest{}}
	f := newFixture(t, Seed{}, sp)
	_ = f.session.Select(domain.SlotRims, domain.ImageRef{URL: "r.png"})
	f.dispatcher.outcome = render.Outcome{Accepted: true, Reason: render.ReasonLocalTimeout}

	first, _ := f.session.Generate(context.Background())
	if first.State != StateTimeout || !errors.Is(first.Err, domain.ErrTimeout) {
		t.Fatalf("first = %+v, want timeout", first)
	}
	if f.session.Snapshot().Generation.Message != MsgPhotoTimeout {
		t.Fatalf("timeout message not recorded")
	}
	if _, err := f.session.Submit(context.Background()); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("Submit from timeout err = %v, want ErrInvalidTransition", err)
	}

	sp.latest = &assets.Latest{AfterKey: "late.png", AfterURL: mediaBase + "/late.png"}
	job, err := f.session.Retry(context.Background())
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	second := f.session.Run(context.Background(), job)
	if second.State != StateIdle {
		t.Fatalf("second = %+v, want idle", second)
	}
	if first.JobID == second.JobID {
		t.Fatalf("retry reused job id %s", first.JobID)
	}
	reqs := f.dispatcher.requests
	if len(reqs) != 2 || reqs[0].JobID == reqs[1].JobID {
		t.Fatalf("dispatched job ids = %v", []string{reqs[0].JobID, reqs[1].JobID})
	}
	meta := reqs[1].Payload.(render.PhotoPayload).Metadata
	if meta.JobID != second.JobID {
		t.Fatalf("payload job id = %s, want %s", meta.JobID, second.JobID)
	}
}

func TestDispatchFailureAndRenderFailure(t *testing.T) {
	f := newFixture(t, Seed{}, nil)
	_ = f.session.Select(domain.SlotRims, domain.ImageRef{URL: "r.png"})
	f.dispatcher.err = &domain.DispatchFailure{StatusCode: 500, Err: errors.New("boom")}
	res, _ := f.session.Generate(context.Background())
	if res.State != StateError || res.Message != MsgRenderFailed {
		t.Fatalf("result = %+v, want error", res)
	}
	if err := f.session.Dismiss(); err != nil {
		t.Fatalf("Dismiss: %v", err)
	}

	f.dispatcher.err = nil
	f.succeedWith(`{"success":false,"after_image":"x.png"}`)
	res, _ = f.session.Generate(context.Background())
	if res.State != StateError {
		t.Fatalf("success=false result = %+v, want error", res)
	}
	if f.session.Snapshot().Gallery.After != "" {
		t.Fatalf("after must not be set from a failed attempt")
	}
	if len(f.persister.persisted)+len(f.persister.thumbnails) != 0 {
		t.Fatalf("failed attempts must not persist")
	}
}

func TestCreateJobFailureAbortsBeforeDispatch(t *testing.T) {
	f := newFixture(t, Seed{}, nil)
	_ = f.session.Select(domain.SlotRims, domain.ImageRef{URL: "r.png"})
	f.jobs.createErr = errors.New("rpc down")
	res, _ := f.session.Generate(context.Background())
	if res.State != StateError || res.Message != MsgCreateJobFailed {
		t.Fatalf("result = %+v, want create job error", res)
	}
	if f.dispatcher.calls() != 0 {
		t.Fatalf("dispatch calls = %d, want 0", f.dispatcher.calls())
	}
}

func TestPersistenceWarningDoesNotBlockResult(t *testing.T) {
	f := newFixture(t, Seed{}, nil)
	_ = f.session.Select(domain.SlotRims, domain.ImageRef{URL: "r.png"})
	f.persister.thumbErr = errors.New("update failed")
	f.jobs.completeEr = errors.New("rpc down")
	f.succeedWith(`{"after_image":"x.png"}`)

	res, _ := f.session.Generate(context.Background())
	if res.State != StateIdle || len(res.Warnings) != 2 {
		t.Fatalf("result = %+v, want idle with 2 warnings", res)
	}
	var warn *domain.PersistenceWarning
	if !errors.As(res.Warnings[0], &warn) {
		t.Fatalf("warning type = %T", res.Warnings[0])
	}
	if f.session.Snapshot().Gallery.After != mediaBase+"/x.png" {
		t.Fatalf("result not shown after persistence warning")
	}
}

func TestSecondSubmitWhileLoadingIsBusy(t *testing.T) {
	f := newFixture(t, Seed{}, nil)
	_ = f.session.Select(domain.SlotRims, domain.ImageRef{URL: "r.png"})
	f.dispatcher.release = make(chan struct{})
	f.succeedWith(`{"after_image":"x.png"}`)

	job, err := f.session.Submit(context.Background())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	done := make(chan RunResult)
	go func() { done <- f.session.Run(context.Background(), job) }()

	if _, err := f.session.Submit(context.Background()); !errors.Is(err, domain.ErrBusy) {
		t.Fatalf("second Submit err = %v, want ErrBusy", err)
	}
	if _, err := f.session.Retry(context.Background()); !errors.Is(err, domain.ErrBusy) {
		t.Fatalf("Retry while loading err = %v, want ErrBusy", err)
	}
	if err := f.session.SetSource("new.png"); !errors.Is(err, domain.ErrBusy) {
		t.Fatalf("SetSource while loading err = %v, want ErrBusy", err)
	}
	close(f.dispatcher.release)
	if res := <-done; res.State != StateIdle {
		t.Fatalf("result = %+v, want idle", res)
	}
	if f.dispatcher.calls() != 1 {
		t.Fatalf("dispatch calls = %d, want 1", f.dispatcher.calls())
	}
	if res := f.session.Run(context.Background(), job); !errors.Is(res.Err, domain.ErrInvalidTransition) {
		t.Fatalf("second Run err = %v, want ErrInvalidTransition", res.Err)
	}
}

func TestVideoJobLocksPhotoAndKeepsPhotoFeatures(t *testing.T) {
	f := newFixture(t, Seed{Before: mediaBase + "/src.png", After: mediaBase + "/prev.png"}, nil)
	_ = f.session.Select(domain.SlotRims, domain.ImageRef{URL: "r.png"})
	if err := f.session.SwitchMode(domain.ModeVideo); err != nil {
		t.Fatalf("SwitchMode: %v", err)
	}
	for id, v := range map[domain.SlotID]domain.Value{
		domain.SlotVideoPrompt:   domain.Text{Text: "orbit"},
		domain.SlotVideoDuration: domain.Number{N: 5},
		domain.SlotVideoScale:    domain.Choice{Option: "16:9"},
		domain.SlotVideoQuality:  domain.Choice{Option: domain.QualityDraft},
	} {
		if err := f.session.Select(id, v); err != nil {
			t.Fatalf("Select(%s): %v", id, err)
		}
	}
	f.dispatcher.release = make(chan struct{})
	f.succeedWith(`{"data":{"video_result_url":"clip.mp4"}}`)

	job, err := f.session.Submit(context.Background())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if job.Request.Payload.(render.VideoPayload).SourceImage != mediaBase+"/prev.png" {
		t.Fatalf("video should start from the latest after image")
	}
	done := make(chan RunResult)
	go func() { done <- f.session.Run(context.Background(), job) }()
	if err := f.session.SwitchMode(domain.ModePhoto); !errors.Is(err, domain.ErrModeLocked) {
		t.Fatalf("SwitchMode(photo) err = %v, want ErrModeLocked", err)
	}
	close(f.dispatcher.release)
	res := <-done
	if res.State != StateIdle || res.VideoURL != mediaBase+"/clip.mp4" {
		t.Fatalf("result = %+v", res)
	}
	view := f.session.Snapshot()
	if view.Gallery.VideoResult != mediaBase+"/clip.mp4" || view.Gallery.After != mediaBase+"/prev.png" {
		t.Fatalf("gallery = %+v", view.Gallery)
	}
	if _, ok := view.Features[domain.ModePhoto][domain.SlotRims]; !ok {
		t.Fatalf("video settle must not touch photo features")
	}
	if len(view.Features[domain.ModeVideo]) != 0 {
		t.Fatalf("video features not reset: %v", view.Features[domain.ModeVideo])
	}
	if len(f.persister.types) != 1 || f.persister.types[0] != domain.ModeVideo {
		t.Fatalf("project types = %v, want [video]", f.persister.types)
	}
	if len(f.persister.thumbnails) != 0 {
		t.Fatalf("video must not update the thumbnail")
	}
	if err := f.session.SwitchMode(domain.ModePhoto); err != nil {
		t.Fatalf("SwitchMode after settle: %v", err)
	}
}

func TestSecondPhotoResultMovesPreviousAfterToBefore(t *testing.T) {
	f := newFixture(t, Seed{Before: mediaBase + "/src.png"}, nil)
	_ = f.session.Select(domain.SlotRims, domain.ImageRef{URL: "r.png"})
	f.succeedWith(`{"after_image":"one.png"}`)
	if res, _ := f.session.Generate(context.Background()); res.State != StateIdle {
		t.Fatalf("first = %+v", res)
	}
	_ = f.session.SetView(ViewBefore)
	_ = f.session.SetView(ViewAfter)
	if f.session.Snapshot().Gate != GateUnlocked {
		t.Fatalf("gate not unlocked")
	}

	_ = f.session.Select(domain.SlotPaint, domain.Composite{Text: "red"})
	f.succeedWith(`{"after_image":"two.png"}`)
	if res, _ := f.session.Generate(context.Background()); res.State != StateIdle {
		t.Fatalf("second = %+v", res)
	}
	view := f.session.Snapshot()
	if view.Gallery.Before != mediaBase+"/one.png" || view.Gallery.After != mediaBase+"/two.png" {
		t.Fatalf("gallery = %+v", view.Gallery)
	}
	if view.Gate != GateInitial {
		t.Fatalf("gate = %s, want initial after new result", view.Gate)
	}
	src := f.dispatcher.requests[1].Payload.(render.PhotoPayload).SourceImage
	if src != mediaBase+"/one.png" {
		t.Fatalf("second render source = %q, want previous result", src)
	}
}

func TestSetSourceResetsEditor(t *testing.T) {
	f := newFixture(t, Seed{Before: mediaBase + "/old.png", After: mediaBase + "/old-after.png"}, nil)
	_ = f.session.Select(domain.SlotRims, domain.ImageRef{URL: "r.png"})
	_ = f.session.SetView(ViewBefore)
	_ = f.session.SetView(ViewAfter)

	if err := f.session.SetSource("uploads/new.png"); err != nil {
		t.Fatalf("SetSource: %v", err)
	}
	view := f.session.Snapshot()
	want := Gallery{
		Before:      mediaBase + "/uploads/new.png",
		View:        ViewBefore,
		PhotoSource: mediaBase + "/uploads/new.png",
		VideoSource: mediaBase + "/uploads/new.png",
	}
	if view.Gallery != want {
		t.Fatalf("gallery = %+v, want %+v", view.Gallery, want)
	}
	if view.Gate != GateInitial || len(view.Features[domain.ModePhoto]) != 0 {
		t.Fatalf("gate = %s features = %v", view.Gate, view.Features[domain.ModePhoto])
	}
	if err := f.session.SetSource("null"); !errors.Is(err, domain.ErrInvalidValue) {
		t.Fatalf("SetSource(null) err = %v, want ErrInvalidValue", err)
	}
	if err := f.session.SetSource("http://10.0.0.5/admin.png"); !errors.Is(err, domain.ErrInvalidValue) {
		t.Fatalf("SetSource(internal host) err = %v, want ErrInvalidValue", err)
	}
}

func TestSnapshotEstimate(t *testing.T) {
	f := newFixture(t, Seed{}, nil)
	f.session.SetOutputPrefs(render.AspectAuto, render.Resolution4K)
	view := f.session.Snapshot()
	if view.Estimate == nil || view.Estimate.Credits != 15040 || view.Estimate.Label != "15,040" {
		t.Fatalf("estimate = %+v", view.Estimate)
	}
	_ = f.session.SwitchMode(domain.ModeVideo)
	if est := f.session.Snapshot().Estimate; est != nil {
		t.Fatalf("video estimate without duration = %+v, want nil", est)
	}
	_ = f.session.Select(domain.SlotVideoDuration, domain.Number{N: 10})
	if est := f.session.Snapshot().Estimate; est == nil || est.Credits != 15040 {
		t.Fatalf("video estimate = %+v", est)
	}
}

type recordingMeasurer struct {
	urls []string
}

func (m *recordingMeasurer) Measure(_ context.Context, url string) render.Dimensions {
	m.urls = append(m.urls, url)
	return render.Dimensions{Width: 1600, Height: 900}
}

func TestAutoAspectMeasuresTrustedSourcesOnly(t *testing.T) {
	for _, tc := range []struct {
		name   string
		before string
		want   int
	}{
		{"media gateway", mediaBase + "/src.png", 1},
		{"foreign host", "http://169.254.169.254/latest/meta-data", 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, Seed{Before: tc.before}, nil)
			m := &recordingMeasurer{}
			f.session.deps.Measurer = m
			_ = f.session.Select(domain.SlotRims, domain.ImageRef{URL: "r.png"})
			f.succeedWith(`{"success":true,"after_image":"x.png"}`)
			if _, err := f.session.Generate(context.Background()); err != nil {
				t.Fatalf("Generate: %v", err)
			}
			if len(m.urls) != tc.want {
				t.Fatalf("measured %v, want %d calls", m.urls, tc.want)
			}
		})
	}
}
