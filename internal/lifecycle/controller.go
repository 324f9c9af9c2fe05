// Package lifecycle is the public face of detached tasks: it starts them,
// answers status queries, stops and waits for them, for tasks started by
// this process or by any earlier invocation sharing the same state
// directory.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kokjohn0824/detach/internal/detach"
	derrors "github.com/kokjohn0824/detach/internal/errors"
	"github.com/kokjohn0824/detach/internal/i18n"
	"github.com/kokjohn0824/detach/internal/store"
	"github.com/kokjohn0824/detach/internal/task"
)

// Options are the timing and default policies of a Controller
type Options struct {
	StartupTimeout  time.Duration
	Grace           time.Duration
	ForceWait       time.Duration
	PollInterval    time.Duration
	PollMaxInterval time.Duration
	FlushInterval   time.Duration
	CaptureLimit    int
	StopSignal      string
	Supervise       bool
}

// DefaultOptions returns the options used when none are configured
func DefaultOptions() Options {
	return Options{
		StartupTimeout:  5 * time.Second,
		Grace:           5 * time.Second,
		ForceWait:       2 * time.Second,
		PollInterval:    100 * time.Millisecond,
		PollMaxInterval: 2 * time.Second,
		FlushInterval:   time.Second,
		CaptureLimit:    task.DefaultCaptureLimit,
		StopSignal:      detach.DefaultStopSignal,
		Supervise:       true,
	}
}

// Controller manages detached tasks recorded in a store
type Controller struct {
	store    *store.Store
	detacher *detach.Detacher
	opts     Options
	logger   *zap.Logger
	now      func() time.Time
	probe    func(pid int, generation uint64) detach.Liveness
}

// New creates a Controller. Unset durations and limits fall back to
// DefaultOptions; Grace and Supervise are taken as given.
func New(st *store.Store, d *detach.Detacher, opts Options, logger *zap.Logger) *Controller {
	def := DefaultOptions()
	if opts.StartupTimeout <= 0 {
		opts.StartupTimeout = def.StartupTimeout
	}
	if opts.Grace < 0 {
		opts.Grace = def.Grace
	}
	if opts.ForceWait <= 0 {
		opts.ForceWait = def.ForceWait
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = def.PollInterval
	}
	if opts.PollMaxInterval < opts.PollInterval {
		opts.PollMaxInterval = max(def.PollMaxInterval, opts.PollInterval)
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = def.FlushInterval
	}
	if opts.CaptureLimit <= 0 {
		opts.CaptureLimit = def.CaptureLimit
	}
	if opts.StopSignal == "" {
		opts.StopSignal = def.StopSignal
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		store:    st,
		detacher: d,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
		probe:    detach.Probe,
	}
}

// Store returns the store the controller works on
func (c *Controller) Store() *store.Store {
	return c.store
}

// Options returns the effective options
func (c *Controller) Options() Options {
	return c.opts
}

// LaunchRequest describes a task to start
type LaunchRequest struct {
	Command string
	Args    []string
	// Dir is the working directory; empty means the caller's.
	Dir string
	// Env replaces the environment; nil inherits the caller's.
	Env []string

	Stdin  task.Target
	Stdout task.Target
	Stderr task.Target

	// StartupTimeout overrides the configured handshake budget.
	StartupTimeout time.Duration
	// Supervise overrides the configured supervision mode.
	Supervise *bool
	// MaxRuntime stops the task after this long; requires supervision.
	MaxRuntime time.Duration
	// StopSignal overrides the configured first stop signal.
	StopSignal string
}

// Start launches req detached from the caller and returns its handle once
// the command has been executed and recorded. On error nothing is recorded
// and nothing keeps running.
func (c *Controller) Start(ctx context.Context, req LaunchRequest) (*task.Handle, error) {
	dreq, err := c.prepare(req)
	if err != nil {
		return nil, err
	}
	timeout := req.StartupTimeout
	if timeout <= 0 {
		timeout = c.opts.StartupTimeout
	}

	launch, err := c.detacher.Spawn(ctx, dreq, timeout)
	if err != nil {
		c.logger.Debug("launch failed", zap.String("command", dreq.Path), zap.Error(err))
		return nil, err
	}
	rep := launch.Report

	h := &task.Handle{
		ID:             rep.ID(),
		PID:            rep.PID,
		PGID:           rep.PGID,
		Generation:     rep.Generation,
		ShimPID:        rep.ShimPID,
		ShimGeneration: rep.ShimGeneration,
		Supervised:     dreq.Supervise,
		Command:        task.Command{Path: dreq.Path, Args: dreq.Args, Dir: dreq.Dir},
		Status:         task.Starting(),
		Stdin:          dreq.Stdin,
		Stdout:         dreq.Stdout,
		Stderr:         dreq.Stderr,
		StopSignal:     dreq.StopSignal,
		MaxRuntime:     task.Duration(dreq.MaxRuntime),
		StartedAt:      rep.StartedAt,
		UpdatedAt:      rep.StartedAt,
	}
	if !dreq.Supervise {
		// nothing but readers touches the record after the ack; the
		// payload has already been executed
		h.ShimPID, h.ShimGeneration = 0, 0
		h.Status = task.Running()
	}

	if err := c.store.Put(h); err != nil {
		launch.Abort()
		return nil, err
	}
	if err := launch.Ack(); err != nil {
		// the shim kills an unacknowledged payload
		if rmErr := c.store.Remove(h.ID); rmErr != nil {
			c.logger.Warn("failed to drop record of aborted launch", zap.String("id", h.ID.String()), zap.Error(rmErr))
		}
		return nil, err
	}

	c.logger.Info("task started",
		zap.String("id", h.ID.String()),
		zap.Int("pid", h.PID),
		zap.String("command", h.Command.String()))
	return h, nil
}

// prepare validates req and resolves it against the caller's directory and
// the configured defaults.
func (c *Controller) prepare(req LaunchRequest) (*detach.Request, error) {
	invalid := func(msg string) error {
		return derrors.Launch(derrors.ReasonInvalid, msg, nil)
	}
	if req.Command == "" {
		return nil, invalid(i18n.ErrMissingCommand)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, derrors.Launch(derrors.ReasonDetach, "working directory", err)
	}
	dir := req.Dir
	if dir == "" {
		dir = cwd
	} else if !filepath.IsAbs(dir) {
		dir = filepath.Join(cwd, dir)
	}

	supervise := c.opts.Supervise
	if req.Supervise != nil {
		supervise = *req.Supervise
	}

	stopSignal := req.StopSignal
	if stopSignal == "" {
		stopSignal = c.opts.StopSignal
	}
	if _, err := detach.ParseSignal(stopSignal); err != nil {
		return nil, invalid(err.Error())
	}
	if req.MaxRuntime < 0 {
		return nil, invalid("negative maximum runtime")
	}

	targets := []*task.Target{&req.Stdin, &req.Stdout, &req.Stderr}
	for _, t := range targets {
		*t = t.OrDiscard()
		switch t.Kind {
		case task.TargetFile:
			if !filepath.IsAbs(t.Path) {
				t.Path = filepath.Join(cwd, t.Path)
			}
		case task.TargetCapture:
			if t.Limit <= 0 {
				t.Limit = c.opts.CaptureLimit
			}
		}
	}

	dreq := &detach.Request{
		Path:          req.Command,
		Args:          req.Args,
		Dir:           dir,
		Env:           req.Env,
		Stdin:         req.Stdin,
		Stdout:        req.Stdout,
		Stderr:        req.Stderr,
		Supervise:     supervise,
		MaxRuntime:    req.MaxRuntime,
		StopSignal:    stopSignal,
		Grace:         c.opts.Grace,
		FlushInterval: c.opts.FlushInterval,
		StateDir:      c.store.Root(),
	}
	if err := dreq.Validate(); err != nil {
		return nil, err
	}
	return dreq, nil
}

// Status returns the current status of a task. A terminal status is
// returned as recorded; otherwise the process is probed.
func (c *Controller) Status(id task.ID) (task.Status, error) {
	h, err := c.Inspect(id)
	if err != nil {
		return task.Status{}, err
	}
	return h.Status, nil
}

// Inspect returns the reconciled record of a task
func (c *Controller) Inspect(id task.ID) (*task.Handle, error) {
	h, err := c.get(i18n.ErrOpStatus, id)
	if err != nil {
		return nil, err
	}
	return c.reconcile(h, nil)
}

func (c *Controller) get(op string, id task.ID) (*task.Handle, error) {
	if _, err := task.ParseID(string(id)); err != nil {
		return nil, derrors.Invalid(op, err.Error())
	}
	h, err := c.store.Get(id)
	if derrors.KindOf(err) == derrors.KindNotFound {
		return nil, derrors.NotFound(op, string(id))
	}
	return h, err
}

// reconcile brings h in line with the process table. It persists only a
// terminal status, and only when no supervisor is left to record a better
// one. delivered is the status to record when this controller just
// signalled the task itself.
func (c *Controller) reconcile(h *task.Handle, delivered *task.Status) (*task.Handle, error) {
	if h.Status.IsTerminal() {
		return h, nil
	}

	switch c.probe(h.PID, h.Generation) {
	case detach.Alive:
		view := *h
		view.Status = task.Running()
		return &view, nil
	case detach.Indeterminate:
		view := *h
		view.Status = task.Unknown()
		return &view, nil
	}

	if h.Supervised && c.probe(h.ShimPID, h.ShimGeneration) != detach.Gone {
		// the supervisor is about to record the exit
		return h, nil
	}

	// the supervisor may have recorded the exit just before leaving
	fresh, err := c.store.Get(h.ID)
	if err != nil {
		if derrors.KindOf(err) == derrors.KindNotFound {
			return nil, derrors.NotFound(i18n.ErrOpStatus, string(h.ID))
		}
		return nil, err
	}
	if fresh.Status.IsTerminal() {
		return fresh, nil
	}

	status := task.Exited(task.ExitCodeUnobserved)
	if delivered != nil {
		status = *delivered
	}
	fresh.MarkFinished(status, c.now().UTC())
	if err := c.store.Update(fresh); err != nil {
		if derrors.KindOf(err) == derrors.KindNotFound {
			return nil, derrors.NotFound(i18n.ErrOpStatus, string(h.ID))
		}
		return nil, err
	}
	c.logger.Info("recorded exit of unsupervised task",
		zap.String("id", h.ID.String()), zap.Stringer("status", status))
	return fresh, nil
}

// Stop sends the task's stop signal to its process group, waits up to
// grace, then kills the group and waits up to the force timeout. A negative
// grace uses the configured one. It returns the final status, or Timeout if
// the task survived both signals.
func (c *Controller) Stop(ctx context.Context, id task.ID, grace time.Duration) (task.Status, error) {
	if grace < 0 {
		grace = c.opts.Grace
	}
	h, err := c.get(i18n.ErrOpStop, id)
	if err != nil {
		return task.Status{}, err
	}
	if h.Status.IsTerminal() {
		return h.Status, nil
	}

	switch c.probe(h.PID, h.Generation) {
	case detach.Gone:
		view, err := c.reconcile(h, nil)
		if err != nil {
			return task.Status{}, err
		}
		if view.Status.IsTerminal() {
			return view.Status, nil
		}
		// supervised and not recorded yet: wait for the supervisor
		return c.awaitStopped(ctx, h, grace+c.opts.ForceWait, nil)
	case detach.Indeterminate:
		return task.Unknown(), derrors.Invalid(i18n.ErrOpStop, fmt.Sprintf(i18n.MsgUnknownStatusFmt, id))
	}

	name := h.StopSignal
	if name == "" {
		name = c.opts.StopSignal
	}
	sig, err := detach.ParseSignal(name)
	if err != nil {
		return task.Status{}, derrors.Invalid(i18n.ErrOpStop, err.Error())
	}

	log := c.logger.With(zap.String("id", id.String()))
	log.Info("stopping task", zap.Stringer("signal", sig), zap.Duration("grace", grace))
	if err := detach.SignalGroup(h.PGID, sig); err != nil {
		return task.Status{}, fmt.Errorf("failed to signal task %s: %w", id, err)
	}
	if st, err := c.awaitStopped(ctx, h, grace, signaled(sig)); err == nil || !errors.Is(err, derrors.ErrTimeout) {
		return st, err
	}

	// re-check identity before escalating
	if c.probe(h.PID, h.Generation) == detach.Alive {
		log.Warn("task ignored stop signal, killing", zap.Duration("grace", grace))
		if err := detach.SignalGroup(h.PGID, syscall.SIGKILL); err != nil {
			return task.Status{}, fmt.Errorf("failed to kill task %s: %w", id, err)
		}
	}
	return c.awaitStopped(ctx, h, c.opts.ForceWait, signaled(syscall.SIGKILL))
}

func signaled(sig syscall.Signal) *task.Status {
	s := task.Signaled(detach.SignalName(sig))
	return &s
}

// awaitStopped polls until the task has a terminal status or d elapses.
func (c *Controller) awaitStopped(ctx context.Context, h *task.Handle, d time.Duration, delivered *task.Status) (task.Status, error) {
	deadline := time.Now().Add(d)
	interval := c.opts.PollInterval
	for {
		current, err := c.store.Get(h.ID)
		if err != nil {
			if derrors.KindOf(err) == derrors.KindNotFound {
				return task.Status{}, derrors.NotFound(i18n.ErrOpStop, string(h.ID))
			}
			return task.Status{}, err
		}
		view, err := c.reconcile(current, delivered)
		if err != nil {
			return task.Status{}, err
		}
		if view.Status.IsTerminal() {
			return view.Status, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return view.Status, derrors.Timeout(i18n.ErrOpStop, string(h.ID), d)
		}
		timer := time.NewTimer(min(interval, remaining))
		select {
		case <-ctx.Done():
			timer.Stop()
			return view.Status, ctx.Err()
		case <-timer.C:
		}
	}
}

// Wait blocks until the task reaches a terminal status, timeout elapses or
// ctx is done. A zero timeout waits forever. Timing out changes nothing.
func (c *Controller) Wait(ctx context.Context, id task.ID, timeout time.Duration) (task.Status, error) {
	h, err := c.get(i18n.ErrOpWait, id)
	if err != nil {
		return task.Status{}, err
	}

	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	watchCtx, stopWatch := context.WithCancel(waitCtx)
	defer stopWatch()
	events, err := c.store.Watch(watchCtx, id)
	if err != nil {
		c.logger.Debug("change notification unavailable, polling", zap.Error(err))
	}

	interval := c.opts.PollInterval
	for {
		view, err := c.reconcile(h, nil)
		if err != nil {
			if derrors.KindOf(err) == derrors.KindNotFound {
				return task.Status{}, derrors.NotFound(i18n.ErrOpWait, string(id))
			}
			return task.Status{}, err
		}
		if view.Status.IsTerminal() {
			return view.Status, nil
		}

		timer := time.NewTimer(interval)
		select {
		case <-waitCtx.Done():
			timer.Stop()
			if ctx.Err() != nil {
				return view.Status, ctx.Err()
			}
			return view.Status, derrors.Timeout(i18n.ErrOpWait, string(id), timeout)
		case _, ok := <-events:
			timer.Stop()
			if !ok {
				events = nil
			}
		case <-timer.C:
			interval = min(interval*2, c.opts.PollMaxInterval)
		}

		if h, err = c.store.Get(id); err != nil {
			if derrors.KindOf(err) == derrors.KindNotFound {
				return task.Status{}, derrors.NotFound(i18n.ErrOpWait, string(id))
			}
			return task.Status{}, err
		}
	}
}

// List yields the reconciled record of every known task. Unreadable records
// are yielded as errors and do not stop the iteration.
func (c *Controller) List(ctx context.Context) iter.Seq2[*task.Handle, error] {
	return func(yield func(*task.Handle, error) bool) {
		for h, err := range c.store.List() {
			if ctxErr := ctx.Err(); ctxErr != nil {
				yield(nil, ctxErr)
				return
			}
			if err == nil {
				h, err = c.reconcile(h, nil)
				if derrors.KindOf(err) == derrors.KindNotFound {
					continue
				}
			}
			if !yield(h, err) {
				return
			}
		}
	}
}

// Remove drops the record and captured output of a task. A task that is
// not terminal is refused unless force is set, in which case it is stopped
// first.
func (c *Controller) Remove(ctx context.Context, id task.ID, force bool) error {
	h, err := c.get(i18n.ErrOpRemove, id)
	if err != nil {
		return err
	}
	view, err := c.reconcile(h, nil)
	if err != nil {
		return err
	}
	if !view.Status.IsTerminal() {
		if !force {
			return derrors.Invalid(i18n.ErrOpRemove, fmt.Sprintf(i18n.ErrMsgTaskRunning, id))
		}
		if _, err := c.Stop(ctx, id, -1); err != nil {
			return err
		}
	}
	if err := c.store.Remove(id); err != nil {
		if derrors.KindOf(err) == derrors.KindNotFound {
			return derrors.NotFound(i18n.ErrOpRemove, string(id))
		}
		return err
	}
	c.logger.Info("task removed", zap.String("id", id.String()))
	return nil
}

// Output returns the captured output of one stream of a task. A capture
// that has not been flushed yet is returned empty.
func (c *Controller) Output(id task.ID, stream string) (*store.Capture, error) {
	h, err := c.get(i18n.ErrOpOutput, id)
	if err != nil {
		return nil, err
	}
	var target task.Target
	switch stream {
	case store.StreamStdout:
		target = h.Stdout
	case store.StreamStderr:
		target = h.Stderr
	default:
		return nil, derrors.Invalid(i18n.ErrOpOutput, fmt.Sprintf(i18n.ErrInvalidStream, stream))
	}
	if target.Kind != task.TargetCapture {
		return nil, derrors.Invalid(i18n.ErrOpOutput, fmt.Sprintf(i18n.ErrMsgNotCaptured, stream, id))
	}

	capture, err := c.store.GetCapture(id, stream)
	if derrors.KindOf(err) == derrors.KindNotFound {
		return &store.Capture{Stream: stream}, nil
	}
	return capture, err
}

// Prune removes terminal tasks that finished longer ago than the store's
// retention period and returns their ids.
func (c *Controller) Prune(ctx context.Context) ([]task.ID, error) {
	if c.store.Retention() <= 0 {
		return nil, nil
	}
	var pruned []task.ID
	for h, err := range c.List(ctx) {
		if err != nil {
			if ctx.Err() != nil {
				return pruned, ctx.Err()
			}
			c.logger.Warn("skipping unreadable record", zap.Error(err))
			continue
		}
		if !c.store.Expired(h) {
			continue
		}
		if err := c.store.Remove(h.ID); err != nil && derrors.KindOf(err) != derrors.KindNotFound {
			return pruned, err
		}
		pruned = append(pruned, h.ID)
	}
	return pruned, nil
}
