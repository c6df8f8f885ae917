// Package orchestrator sequences the stages of an application session and
// decides, per stage, whether a failure ends the session or only the
// current item.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kylegalloway/applyflow/internal/browser"
	"github.com/kylegalloway/applyflow/internal/config"
	"github.com/kylegalloway/applyflow/internal/coverletter"
	"github.com/kylegalloway/applyflow/internal/logging"
	"github.com/kylegalloway/applyflow/internal/notion"
	"github.com/kylegalloway/applyflow/internal/observability"
	"github.com/kylegalloway/applyflow/internal/session"
	"github.com/kylegalloway/applyflow/internal/stages"
	"github.com/kylegalloway/applyflow/internal/store"
)

var (
	// ErrInvalidInput rejects a start request without credentials.
	ErrInvalidInput = errors.New("email and password are required")
)

const captureTimeout = 15 * time.Second

// Recorder keeps the history of sessions and attempts.
type Recorder interface {
	StartSession(ctx context.Context, id, profile string, at time.Time) error
	FinishSession(ctx context.Context, id, status, errMsg string, applied int, at time.Time) error
	RecordAttempt(ctx context.Context, a store.Attempt) (string, error)
}

// Tracker remembers which browser process belongs to which session.
type Tracker interface {
	Track(sessionID string, pid, pgid int) error
	Untrack(sessionID string) error
}

// Artifacts stores failure screenshots.
type Artifacts interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// Publisher mirrors submitted applications to an external tracker.
type Publisher interface {
	Publish(ctx context.Context, app notion.Application) (string, error)
}

// Result summarises one session run.
type Result struct {
	Discovered int
	Attempted  int
	Applied    int
	Items      []stages.Item
}

// Orchestrator runs application sessions.
type Orchestrator struct {
	config    *config.Config
	launcher  browser.Launcher
	log       *logging.Logger
	letters   *coverletter.Generator
	answer    stages.Answerer
	recorder  Recorder
	tracker   Tracker
	artifacts Artifacts
	publisher Publisher
}

// New creates an Orchestrator.
func New(cfg *config.Config, launcher browser.Launcher, log *logging.Logger) *Orchestrator {
	return &Orchestrator{
		config:   cfg,
		launcher: launcher,
		log:      log,
		letters:  coverletter.New(cfg.CoverLetter.Templates),
		answer:   stages.FixedAnswer(cfg.Assessment.DefaultAnswer),
	}
}

// SetRecorder enables session history.
func (o *Orchestrator) SetRecorder(r Recorder) {
	o.recorder = r
}

// SetTracker enables browser PID tracking for crash cleanup.
func (o *Orchestrator) SetTracker(t Tracker) {
	o.tracker = t
}

// SetArtifacts enables failure screenshots.
func (o *Orchestrator) SetArtifacts(a Artifacts) {
	o.artifacts = a
}

// SetPublisher mirrors every submitted application to p.
func (o *Orchestrator) SetPublisher(p Publisher) {
	o.publisher = p
}

// SetAnswerer replaces the assessment answer policy.
func (o *Orchestrator) SetAnswerer(a stages.Answerer) {
	if a != nil {
		o.answer = a
	}
}

// Run drives sess through every stage. The session ends completed unless a
// stage-fatal error (launch, authentication, reaching the listings) or
// cancellation occurs; individual application failures never fail it.
func (o *Orchestrator) Run(ctx context.Context, sess *session.Session, creds stages.Credentials) (res Result, err error) {
	log := o.log.With("[" + sess.ID + "]")
	ctx, span := observability.StartSpan(ctx, "session", attribute.String("session.id", sess.ID))

	defer func() {
		if r := recover(); r != nil {
			log.Stackf(debug.Stack(), "Session panicked: %v", r)
			err = fmt.Errorf("internal error: %v", r)
		}
		o.finish(ctx, sess, err, log)
		observability.End(span, err)
	}()

	sess.MarkRunning()
	o.recordStart(ctx, sess, log)

	inst, err := o.launch(ctx, log)
	if err != nil {
		return res, err
	}
	if err := sess.Attach(inst); err != nil {
		log.Errorf(err, "Closing browser")
	}
	defer func() {
		if err := sess.Release(); err != nil {
			log.Errorf(err, "Closing browser")
		} else {
			log.Infof("Browser closed")
		}
	}()
	o.track(sess.ID, inst.PID(), log)
	defer o.untrack(sess.ID, log)

	deps := stages.Deps{
		Exec: browser.NewExecutor(inst, browser.Options{
			Timeout:      o.config.Timing.OperationTimeout,
			PollInterval: o.config.Timing.PollInterval,
		}),
		Sel:    stages.SelectorsFromConfig(o.config.Selectors),
		Timing: stages.TimingFromConfig(o.config.Timing),
		Log:    log,
	}

	auth := &stages.Authentication{Deps: deps, BaseURL: o.config.Portal.BaseURL}
	if err := o.stage(ctx, stages.StageAuthentication, func(ctx context.Context) error {
		return auth.Run(ctx, creds)
	}); err != nil {
		o.capture(ctx, deps.Exec, sess.ID+"/authentication.png", log)
		return res, err
	}

	search := &stages.SearchAndFilter{
		Deps:        deps,
		ListingsURL: o.config.Portal.ListingsURL,
		Prefs:       stages.PreferencesFromConfig(o.config.Search),
	}
	if err := o.stage(ctx, stages.StageSearch, search.Run); err != nil {
		o.capture(ctx, deps.Exec, sess.ID+"/search.png", log)
		return res, err
	}

	return o.applyAll(ctx, sess, deps, log)
}

func (o *Orchestrator) launch(ctx context.Context, log *logging.Logger) (browser.Instance, error) {
	inst, err := o.launcher.Launch(ctx)
	if err != nil {
		return nil, &stages.FatalError{Stage: stages.StageLaunch, Err: err}
	}
	inst.OnPageError(func(msg string) {
		log.Infof("Page error: %s", msg)
	})
	log.Infof("Browser initialized successfully")
	return inst, nil
}

func (o *Orchestrator) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := observability.StartSpan(ctx, name)
	err := fn(ctx)
	observability.End(span, err)
	return err
}

// applyAll applies to at most MaxApplications discovered listings, in page
// order. Item failures are logged and skipped.
func (o *Orchestrator) applyAll(ctx context.Context, sess *session.Session, deps stages.Deps, log *logging.Logger) (Result, error) {
	var res Result

	items, err := stages.Discover(ctx, deps)
	if err != nil {
		return res, &stages.FatalError{Stage: stages.StageApplication, Err: err}
	}
	res.Discovered = len(items)
	res.Items = items
	if len(items) == 0 {
		log.Infof("No internships found")
		return res, nil
	}

	n := min(len(items), o.config.Search.MaxApplications)
	log.Infof("Found %d internships, applying to %d", len(items), n)

	submit := &stages.ApplicationSubmission{
		Deps:        deps,
		CoverLetter: o.coverLetter(),
		Assessment: &stages.AssessmentAnswering{
			Deps:            deps,
			IncludeFirst:    o.config.Assessment.IncludeFirst,
			MissingQuestion: o.config.Assessment.MissingQuestion,
			Answer:          o.answer,
		},
	}

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		item := &items[i]
		started := time.Now()

		ictx, span := observability.StartSpan(ctx, "application", attribute.Int("item.index", item.Index))
		err := submit.Run(ictx, item)
		observability.End(span, err)
		res.Attempted++

		if err != nil {
			log.Errorf(err, "Failed to apply to internship %d", item.Index+1)
			o.capture(ctx, deps.Exec, fmt.Sprintf("%s/item-%d.png", sess.ID, item.Index+1), log)
		} else {
			sess.IncrementApplied()
			res.Applied++
			log.Infof("Successfully applied to internship %d", item.Index+1)
			o.publish(ctx, sess.ID, item, log)
		}
		o.recordAttempt(ctx, sess.ID, item, started, err, log)
	}
	return res, nil
}

func (o *Orchestrator) coverLetter() string {
	cl := o.config.CoverLetter
	if !o.letters.Has(cl.Template) {
		o.log.Infof("Unknown cover letter template %q, using %s", cl.Template, coverletter.FullStack)
	}
	return o.letters.Generate(cl.Template, cl.Substitutions)
}

func (o *Orchestrator) finish(ctx context.Context, sess *session.Session, err error, log *logging.Logger) {
	if err != nil {
		sess.Fail(err)
		log.Errorf(err, "Automation failed")
	} else {
		sess.Complete()
	}
	snap := sess.Snapshot()
	if err == nil {
		log.Infof("Automation completed: %d applications submitted", snap.ApplicationsSubmitted)
	}

	if o.recorder == nil {
		return
	}
	rctx := context.WithoutCancel(ctx)
	if rerr := o.recorder.FinishSession(rctx, sess.ID, string(snap.Status), snap.Error, snap.ApplicationsSubmitted, time.Now()); rerr != nil {
		log.Errorf(rerr, "Recording session result")
	}
}

func (o *Orchestrator) recordStart(ctx context.Context, sess *session.Session, log *logging.Logger) {
	if o.recorder == nil {
		return
	}
	if err := o.recorder.StartSession(ctx, sess.ID, o.config.Search.Profile, sess.Created); err != nil {
		log.Errorf(err, "Recording session start")
	}
}

func (o *Orchestrator) recordAttempt(ctx context.Context, id string, item *stages.Item, started time.Time, err error, log *logging.Logger) {
	if o.recorder == nil {
		return
	}
	a := store.Attempt{
		SessionID:  id,
		ItemIndex:  item.Index,
		Outcome:    item.Outcome.String(),
		StartedAt:  started,
		FinishedAt: time.Now(),
	}
	if err != nil {
		a.Error = err.Error()
	}
	if _, rerr := o.recorder.RecordAttempt(context.WithoutCancel(ctx), a); rerr != nil {
		log.Errorf(rerr, "Recording attempt %d", item.Index+1)
	}
}

// capture stores a screenshot of the current page. It runs even when ctx is
// cancelled so an interrupted session still leaves evidence behind.
func (o *Orchestrator) capture(ctx context.Context, exec *browser.Executor, key string, log *logging.Logger) {
	if o.artifacts == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), captureTimeout)
	defer cancel()

	data, err := exec.Screenshot(ctx)
	if err != nil {
		log.Errorf(err, "Capturing screenshot %s", key)
		return
	}
	where, err := o.artifacts.Put(ctx, key, data, "image/png")
	if err != nil {
		log.Errorf(err, "Storing screenshot %s", key)
		return
	}
	log.Infof("Saved screenshot to %s", where)
}

func (o *Orchestrator) publish(ctx context.Context, id string, item *stages.Item, log *logging.Logger) {
	if o.publisher == nil {
		return
	}
	app := notion.Application{
		SessionID:    id,
		Profile:      o.config.Search.Profile,
		Location:     o.config.Search.Location,
		WorkFromHome: o.config.Search.WorkFromHome,
		Index:        item.Index,
		Outcome:      item.Outcome.String(),
		AppliedAt:    time.Now(),
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), captureTimeout)
	defer cancel()
	if _, err := o.publisher.Publish(ctx, app); err != nil {
		log.Errorf(err, "Publishing application %d", item.Index+1)
	}
}

func (o *Orchestrator) track(id string, pid int, log *logging.Logger) {
	if o.tracker == nil || pid <= 0 {
		return
	}
	if err := o.tracker.Track(id, pid, processGroup(pid)); err != nil {
		log.Errorf(err, "Tracking browser PID %d", pid)
	}
}

func (o *Orchestrator) untrack(id string, log *logging.Logger) {
	if o.tracker == nil {
		return
	}
	if err := o.tracker.Untrack(id); err != nil {
		log.Errorf(err, "Untracking browser")
	}
}
