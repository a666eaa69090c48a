// Package driver runs sync passes on a fixed interval until it's interrupted
// or a pass fails.
package driver

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/sidkik/replisync/pkg/sync"
)

// Synchronizer performs a single sync pass.
type Synchronizer interface {
	Synchronize(sourceRoot, replicaRoot string) (sync.Stats, error)
}

// PassResult is the outcome of one pass.
type PassResult struct {
	Stats    sync.Stats
	Duration time.Duration
	Err      error
}

// Decision is what the driver does after a pass.
type Decision int

const (
	// Continue waits for the next interval and runs another pass.
	Continue Decision = iota

	// Finished stops after a successful pass when only one was requested.
	Finished

	// Interrupted stops cleanly because the user asked to stop.
	Interrupted

	// Failed stops because the pass failed. Passes aren't retried, so that a
	// persistent failure is surfaced rather than repeated every interval.
	Failed
)

func (d Decision) String() string {
	switch d {
	case Continue:
		return "continue"
	case Finished:
		return "finished"
	case Interrupted:
		return "interrupted"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Config configures a Driver.
type Config struct {
	Source   string
	Replica  string
	Interval time.Duration

	// Once runs a single pass and then returns.
	Once bool

	// Trigger, if non-nil, starts the next pass before the interval elapses.
	Trigger <-chan struct{}
}

// Driver repeatedly invokes a Synchronizer. Passes never overlap.
type Driver struct {
	syncer Synchronizer
	clock  clockwork.Clock
	log    *logrus.Logger
	cfg    Config
}

// New creates a new Driver.
func New(syncer Synchronizer, clock clockwork.Clock, log *logrus.Logger, cfg Config) *Driver {
	return &Driver{
		syncer: syncer,
		clock:  clock,
		log:    log,
		cfg:    cfg,
	}
}

// Run runs passes until ctx is cancelled, or a pass fails. Cancellation is
// only noticed between passes: a pass that's in progress always completes.
// It returns nil on a clean shutdown, and the pass's error on failure.
func (d *Driver) Run(ctx context.Context) error {
	if !d.cfg.Once {
		d.log.Infof("Starting periodic synchronization every %d seconds.",
			int(d.cfg.Interval/time.Second))
	}

	for {
		res := d.RunPass()
		if res.Err == nil {
			d.log.WithFields(res.Stats.Fields()).Infof(
				"Synchronization completed in %.2f seconds.", res.Duration.Seconds())
		}

		switch d.Decide(ctx, res) {
		case Failed:
			d.log.Errorf("Error during synchronization: %s", res.Err)
			return res.Err
		case Interrupted:
			d.log.Info("Synchronization stopped by user.")
			return nil
		case Finished:
			return nil
		}

		if !d.wait(ctx) {
			d.log.Info("Synchronization stopped by user.")
			return nil
		}
	}
}

// RunPass runs and times a single pass.
func (d *Driver) RunPass() PassResult {
	start := d.clock.Now()
	stats, err := d.syncer.Synchronize(d.cfg.Source, d.cfg.Replica)
	return PassResult{
		Stats:    stats,
		Duration: d.clock.Since(start),
		Err:      err,
	}
}

// Decide returns what to do after a pass. Failures take precedence over
// interrupts, so that an error is never hidden by a shutdown.
func (d *Driver) Decide(ctx context.Context, res PassResult) Decision {
	switch {
	case res.Err != nil:
		return Failed
	case ctx.Err() != nil:
		return Interrupted
	case d.cfg.Once:
		return Finished
	default:
		return Continue
	}
}

// wait blocks until the next pass should start. It returns false if ctx was
// cancelled first.
func (d *Driver) wait(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-d.clock.After(d.cfg.Interval):
		return true
	case <-d.cfg.Trigger:
		d.log.Debug("Source changed. Starting the next pass early.")
		return true
	}
}
