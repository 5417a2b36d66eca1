// Package deployer drives a bundle through its lifecycle phases and reports
// progress as a stream of deployment events.
package deployer

import (
	"context"
	"fmt"
	"iter"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/sirupsen/logrus"

	"bundle-deployer/internal/appspec"
	"bundle-deployer/internal/archive"
	"bundle-deployer/internal/artifact"
	"bundle-deployer/internal/eventlog"
	"bundle-deployer/internal/filesync"
	"bundle-deployer/internal/hooks"
	"bundle-deployer/internal/logger"
	"bundle-deployer/internal/models"
)

// Recorder persists the progress of each deployment.
type Recorder interface {
	Begin(rec models.DeploymentRecord) error
	Update(event models.DeploymentEvent) error
}

type Options struct {
	Fetcher   artifact.Fetcher
	Extractor archive.Extractor
	Hooks     *hooks.Runner
	Files     *filesync.Deployer
	Events    *eventlog.Log
	// Recorder and APM are optional.
	Recorder Recorder
	APM      *newrelic.Application
	// WorkDir holds downloaded archives and extracted bundles. Defaults to
	// the system temp dir.
	WorkDir string
	Now     func() time.Time
}

type Orchestrator struct {
	fetcher   artifact.Fetcher
	extractor archive.Extractor
	hooks     *hooks.Runner
	files     *filesync.Deployer
	events    *eventlog.Log
	recorder  Recorder
	apm       *newrelic.Application
	workDir   string
	now       func() time.Time
	logger    *logrus.Entry
}

func NewOrchestrator(opts Options) *Orchestrator {
	o := &Orchestrator{
		fetcher:   opts.Fetcher,
		extractor: opts.Extractor,
		hooks:     opts.Hooks,
		files:     opts.Files,
		events:    opts.Events,
		recorder:  opts.Recorder,
		apm:       opts.APM,
		workDir:   opts.WorkDir,
		now:       opts.Now,
		logger:    logger.WithModule("deployer"),
	}
	if o.extractor == nil {
		o.extractor = archive.NewZipExtractor()
	}
	if o.hooks == nil {
		o.hooks = hooks.NewRunner(nil)
	}
	if o.files == nil {
		o.files = filesync.NewDeployer(nil)
	}
	if o.events == nil {
		o.events = eventlog.New()
	}
	if o.workDir == "" {
		o.workDir = os.TempDir()
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

// Events returns the log every deployment appends to.
func (o *Orchestrator) Events() *eventlog.Log {
	return o.events
}

// Deploy returns the event stream of one deployment of req. The deployment
// runs while the sequence is iterated and cannot be restarted. It ends after
// the first FAILED event or the SUCCEEDED event. Breaking out of the loop or
// cancelling ctx stops the deployment before its next step; temporary files
// are removed on every path.
func (o *Orchestrator) Deploy(ctx context.Context, req models.DeploymentRequest) iter.Seq[models.DeploymentEvent] {
	started := false
	return func(yield func(models.DeploymentEvent) bool) {
		if started {
			return
		}
		started = true

		d := o.newDeployment(ctx, req, yield)
		defer d.finish()
		d.run()
	}
}

type deployment struct {
	o     *Orchestrator
	ctx   context.Context
	req   models.DeploymentRequest
	id    string
	start time.Time
	log   *logrus.Entry
	yield func(models.DeploymentEvent) bool
	txn   *newrelic.Transaction

	// stopped is set once the consumer refuses an event.
	stopped bool
	final   *models.DeploymentEvent

	archivePath string
	bundleDir   string
}

func (o *Orchestrator) newDeployment(ctx context.Context, req models.DeploymentRequest, yield func(models.DeploymentEvent) bool) *deployment {
	id := uuid.NewString()
	txn := o.apm.StartTransaction("Deploy")
	txn.AddAttribute("deployment_id", id)
	txn.AddAttribute("project", req.Project)
	txn.AddAttribute("environment", req.Environment)

	return &deployment{
		o:     o,
		ctx:   ctx,
		req:   req,
		id:    id,
		start: o.now(),
		log:   logger.WithDeployment("deployer", id, req.Project, req.Environment),
		yield: yield,
		txn:   txn,
	}
}

func (d *deployment) run() {
	d.begin()
	if !d.emit(models.StatusCreated, "", "New deployment created") {
		return
	}
	if !d.emit(models.StatusQueued, "", "Deployment started") {
		return
	}

	spec, ok := d.downloadBundle()
	if !ok {
		return
	}
	if !d.runHooks(models.PhaseBeforeInstall, spec) {
		return
	}
	if !d.install(spec) {
		return
	}
	if !d.runHooks(models.PhaseAfterInstall, spec) {
		return
	}
	d.end()
}

func (d *deployment) downloadBundle() (*appspec.Spec, bool) {
	const phase = models.PhaseDownloadBundle
	defer d.txn.StartSegment(string(phase)).End()

	if !d.proceed(phase) {
		return nil, false
	}
	store, key := d.req.Artifact.StoreID, d.req.Artifact.ObjectKey
	if !d.emit(models.StatusInProgress, phase, fmt.Sprintf("Downloading deployment artifact %s/%s", store, key)) {
		return nil, false
	}

	tmp, err := os.CreateTemp(d.o.workDir, "deploy.*.zip")
	if err != nil {
		d.log.WithError(err).Error("Failed to create artifact file")
		return nil, d.fail(phase, "Failed to download deployment artifact")
	}
	d.archivePath = tmp.Name()
	tmp.Close()

	d.log.WithFields(logrus.Fields{
		"store": store,
		"key":   key,
		"path":  d.archivePath,
	}).Info("Downloading deployment artifact")
	size, err := d.o.fetcher.Fetch(d.ctx, store, key, d.archivePath)
	if err == nil && size == 0 {
		err = artifact.ErrEmptyArtifact
	}
	if err != nil {
		d.log.WithError(err).Error("Artifact download failed")
		return nil, d.fail(phase, "Failed to download deployment artifact")
	}

	if !d.proceed(phase) {
		return nil, false
	}
	if !d.emit(models.StatusInProgress, phase, "Extracting deployment artifact") {
		return nil, false
	}

	d.bundleDir, err = os.MkdirTemp(d.o.workDir, "deploy.")
	if err != nil {
		d.log.WithError(err).Error("Failed to create extraction directory")
		return nil, d.fail(phase, "Failed to extract files from the deployment artifact")
	}
	lines, err := d.o.extractor.Extract(d.archivePath, d.bundleDir)
	for _, line := range lines {
		d.log.Debug(line)
	}
	if err != nil {
		d.log.WithError(err).Error("Artifact extraction failed")
		return nil, d.fail(phase, "Failed to extract files from the deployment artifact")
	}

	spec, err := appspec.Load(d.bundleDir)
	if err != nil {
		d.log.WithError(err).Error("Could not load appspec")
		return nil, d.fail(phase, fmt.Sprintf("Could not load %s file", appspec.FileName))
	}
	return spec, true
}

func (d *deployment) runHooks(phase models.Phase, spec *appspec.Spec) bool {
	if len(spec.HooksFor(phase)) == 0 {
		d.log.WithField("phase", phase).Info("No hooks found, skipping")
		return true
	}
	defer d.txn.StartSegment(string(phase)).End()

	if !d.proceed(phase) {
		return false
	}
	if !d.emit(models.StatusInProgress, phase, fmt.Sprintf("Running %s hooks", phase)) {
		return false
	}

	results := d.o.hooks.RunHooks(d.ctx, d.bundleDir, phase, d.hookEnv(), spec.Hooks)
	if !hooks.AllSucceeded(results) {
		failed := hooks.FailedLocations(results)
		d.log.WithFields(logrus.Fields{"phase": phase, "failed": failed}).Warn("Failed to run some hooks")
		return d.fail(phase, fmt.Sprintf("Failed to run %s hooks: %s", phase, strings.Join(failed, ", ")))
	}

	d.log.WithField("phase", phase).Info("All hooks completed")
	return d.emit(models.StatusInProgress, phase, fmt.Sprintf("%s hooks completed", phase))
}

func (d *deployment) install(spec *appspec.Spec) bool {
	const phase = models.PhaseInstall
	defer d.txn.StartSegment(string(phase)).End()

	if !d.proceed(phase) {
		return false
	}
	if !d.emit(models.StatusInProgress, phase, "Copy files") {
		return false
	}
	if len(spec.Files) == 0 {
		return d.fail(phase, "No files to install")
	}

	results := d.o.files.Deploy(d.bundleDir, spec.Files)
	if !filesync.AllSucceeded(results) {
		failed := filesync.FailedSources(results)
		d.log.WithField("failed", failed).Warn("Failed to copy some files")
		return d.fail(phase, "Failed to copy files: "+strings.Join(failed, ", "))
	}

	d.log.Info("All files copied")
	return true
}

func (d *deployment) end() {
	d.log.Info("Cleaning up deployment files")
	d.cleanup()

	duration := FormatDuration(d.o.now().Sub(d.start))
	d.log.WithField("duration", duration).Info("Deployment completed")
	d.emit(models.StatusSucceeded, models.PhaseEnd, "Deployment completed in "+duration)
}

// hookEnv is the process environment plus the deployment identity.
func (d *deployment) hookEnv() []string {
	return append(os.Environ(),
		"PROJECT_NAME="+d.req.Project,
		"DEPLOYMENT_ENVIRONMENT="+d.req.Environment,
		"DEPLOYMENT_ID="+d.id,
	)
}

// proceed fails the deployment if its context is done.
func (d *deployment) proceed(phase models.Phase) bool {
	if err := d.ctx.Err(); err != nil {
		d.log.WithError(err).Warn("Deployment cancelled")
		return d.fail(phase, "Deployment cancelled")
	}
	return true
}

// fail emits the terminal FAILED event. It always returns false so callers
// can return its result directly.
func (d *deployment) fail(phase models.Phase, message string) bool {
	d.emit(models.StatusFailed, phase, message)
	return false
}

// emit records an event and hands it to the consumer. It returns false when
// the deployment must not continue.
func (d *deployment) emit(status models.Status, phase models.Phase, message string) bool {
	event := d.record(status, phase, message)
	if d.stopped {
		return false
	}
	if !d.yield(event) {
		d.stopped = true
		d.log.Warn("Event consumer went away, stopping deployment")
		return false
	}
	return !status.Terminal()
}

func (d *deployment) record(status models.Status, phase models.Phase, message string) models.DeploymentEvent {
	event := models.DeploymentEvent{
		DeploymentID:   d.id,
		Project:        d.req.Project,
		Environment:    d.req.Environment,
		Status:         status,
		Message:        message,
		LifecycleEvent: phase,
		Timestamp:      d.o.now(),
	}
	d.o.events.Append(event)
	if d.o.recorder != nil {
		if err := d.o.recorder.Update(event); err != nil {
			d.log.WithError(err).Warn("Failed to persist deployment status")
		}
	}
	if status.Terminal() {
		d.final = &event
	}
	return event
}

func (d *deployment) begin() {
	if d.o.recorder == nil {
		return
	}
	now := d.o.now()
	err := d.o.recorder.Begin(models.DeploymentRecord{
		ID:          d.id,
		Project:     d.req.Project,
		Environment: d.req.Environment,
		StoreID:     d.req.Artifact.StoreID,
		ObjectKey:   d.req.Artifact.ObjectKey,
		Status:      models.StatusCreated,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		d.log.WithError(err).Warn("Failed to persist deployment")
	}
}

// finish runs on every exit path.
func (d *deployment) finish() {
	d.cleanup()

	// A consumer that left mid-deployment never saw a terminal event; the
	// log still gets one.
	if d.final == nil {
		d.record(models.StatusFailed, "", "Deployment cancelled")
	}

	elapsed := d.o.now().Sub(d.start)
	d.o.apm.RecordCustomEvent("Deployment", map[string]interface{}{
		"deploymentId":    d.id,
		"project":         d.req.Project,
		"environment":     d.req.Environment,
		"status":          string(d.final.Status),
		"lifecycleEvent":  string(d.final.LifecycleEvent),
		"durationSeconds": elapsed.Seconds(),
	})
	d.txn.End()
}

func (d *deployment) cleanup() {
	if d.archivePath != "" {
		if err := os.Remove(d.archivePath); err != nil && !os.IsNotExist(err) {
			d.log.WithError(err).Warn("Failed to remove artifact file")
		}
		d.archivePath = ""
	}
	if d.bundleDir != "" {
		if err := os.RemoveAll(d.bundleDir); err != nil {
			d.log.WithError(err).Warn("Failed to remove extraction directory")
		}
		d.bundleDir = ""
	}
}
