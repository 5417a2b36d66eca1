// Package hooks runs the lifecycle hook scripts declared in a bundle's appspec.
package hooks

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"bundle-deployer/internal/appspec"
	"bundle-deployer/internal/logger"
	"bundle-deployer/internal/models"
)

// LifecycleEventVar is set in every hook's environment to the running phase.
const LifecycleEventVar = "LIFECYCLE_EVENT"

var (
	ErrNotExecutable = errors.New("hook is not executable")
	ErrHookFailed    = errors.New("hook failed")
)

// Result is the outcome of one hook script.
type Result struct {
	Location string
	Err      error
}

func (r Result) Succeeded() bool {
	return r.Err == nil
}

// AllSucceeded is true when every result passed, including for no results.
func AllSucceeded(results []Result) bool {
	for _, r := range results {
		if !r.Succeeded() {
			return false
		}
	}
	return true
}

// FailedLocations lists the hooks that did not pass, in run order.
func FailedLocations(results []Result) []string {
	var failed []string
	for _, r := range results {
		if !r.Succeeded() {
			failed = append(failed, r.Location)
		}
	}
	return failed
}

type Runner struct {
	executor Executor
	logger   *logrus.Entry
}

func NewRunner(executor Executor) *Runner {
	if executor == nil {
		executor = ExecExecutor{}
	}
	return &Runner{executor: executor, logger: logger.WithModule("hooks")}
}

// RunHooks runs every hook configured for phase, in order, and returns one
// result per hook. A failing hook never prevents the following ones from running.
func (r *Runner) RunHooks(ctx context.Context, root string, phase models.Phase, baseEnv []string, hooks map[models.Phase][]appspec.Hook) []Result {
	configured := hooks[phase]
	results := make([]Result, 0, len(configured))

	env := make([]string, 0, len(baseEnv)+1)
	env = append(env, baseEnv...)
	env = append(env, LifecycleEventVar+"="+string(phase))

	for _, hook := range configured {
		results = append(results, Result{
			Location: hook.Location,
			Err:      r.runHook(ctx, root, phase, hook, env),
		})
	}
	return results
}

func (r *Runner) runHook(ctx context.Context, root string, phase models.Phase, hook appspec.Hook, env []string) error {
	log := r.logger.WithFields(logrus.Fields{"phase": phase, "script": hook.Location})

	if hook.Location == "" || !filepath.IsLocal(hook.Location) {
		log.Warn("Hook location is missing or outside the bundle")
		return fmt.Errorf("%w: invalid location %q", ErrNotExecutable, hook.Location)
	}

	script := filepath.Join(root, hook.Location)
	if !isExecutable(script) {
		log.WithField("path", script).Warn("Hook is not executable")
		return fmt.Errorf("%w: %s", ErrNotExecutable, hook.Location)
	}

	log.WithField("path", script).Info("Running hook")
	proc, err := r.executor.Start(ctx, script, env)
	if err != nil {
		log.WithError(err).Error("Failed to start hook")
		return fmt.Errorf("%w: %s: %v", ErrHookFailed, hook.Location, err)
	}

	for line := range proc.Lines() {
		log.Info(line)
	}

	if err := proc.Wait(); err != nil {
		log.WithError(err).Error("Hook exited with an error")
		return fmt.Errorf("%w: %s: %v", ErrHookFailed, hook.Location, err)
	}
	return nil
}
