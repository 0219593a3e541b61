// SPDX-License-Identifier: Apache-2.0

// Package worker drives the follow-up engine on fixed intervals.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/proposalai/followups/internal/followup"
	"github.com/proposalai/followups/internal/lease"
)

const (
	LeaseProcessDue  = "process-due"
	LeaseEscalations = "escalations"
)

// Engine is the part of followup.Engine the poller drives.
type Engine interface {
	Now() time.Time
	ProcessDue(ctx context.Context, now time.Time) (followup.PassResult, error)
	RunEscalations(ctx context.Context, now time.Time) (followup.EscalationResult, error)
}

// ErrorReporter receives aborted passes.
type ErrorReporter interface {
	CaptureError(err error, tags map[string]string)
}

type Deps struct {
	Engine   Engine
	Locker   lease.Locker
	Reporter ErrorReporter
	Logger   *slog.Logger

	PollInterval       time.Duration
	EscalationInterval time.Duration
	LeaseTTL           time.Duration
}

type Poller struct {
	engine             Engine
	locker             lease.Locker
	reporter           ErrorReporter
	logger             *slog.Logger
	pollInterval       time.Duration
	escalationInterval time.Duration
	leaseTTL           time.Duration
}

func New(deps Deps) *Poller {
	l := deps.Logger
	if l == nil {
		l = slog.Default()
	}

	locker := deps.Locker
	if locker == nil {
		locker = lease.Noop{}
	}

	poll := deps.PollInterval
	if poll <= 0 {
		poll = 30 * time.Second
	}

	escalation := deps.EscalationInterval
	if escalation <= 0 {
		escalation = time.Hour
	}

	ttl := deps.LeaseTTL
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}

	return &Poller{
		engine:             deps.Engine,
		locker:             locker,
		reporter:           deps.Reporter,
		logger:             l.With("component", "worker"),
		pollInterval:       poll,
		escalationInterval: escalation,
		leaseTTL:           ttl,
	}
}

// Run ticks until ctx is cancelled. Each tick runs its pass to completion
// before the next one is considered; a slow pass delays, never overlaps.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("worker started",
		"poll_interval", p.pollInterval,
		"escalation_interval", p.escalationInterval,
	)

	poll := time.NewTicker(p.pollInterval)
	defer poll.Stop()
	escalate := time.NewTicker(p.escalationInterval)
	defer escalate.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("worker stopped")
			return nil
		case <-poll.C:
			_, _, _ = p.ProcessDueOnce(ctx)
		case <-escalate.C:
			_, _, _ = p.EscalateOnce(ctx)
		}
	}
}

// ProcessDueOnce runs one scheduler pass under the process-due lease. ran is
// false when another process holds the lease.
func (p *Poller) ProcessDueOnce(ctx context.Context) (res followup.PassResult, ran bool, err error) {
	ran, err = p.leased(ctx, LeaseProcessDue, func(ctx context.Context) error {
		var passErr error
		res, passErr = p.engine.ProcessDue(ctx, p.engine.Now())
		return passErr
	})
	return res, ran, err
}

// EscalateOnce runs one escalation pass under the escalations lease.
func (p *Poller) EscalateOnce(ctx context.Context) (res followup.EscalationResult, ran bool, err error) {
	ran, err = p.leased(ctx, LeaseEscalations, func(ctx context.Context) error {
		var passErr error
		res, passErr = p.engine.RunEscalations(ctx, p.engine.Now())
		return passErr
	})
	return res, ran, err
}

func (p *Poller) leased(ctx context.Context, name string, pass func(context.Context) error) (bool, error) {
	release, err := p.locker.Acquire(ctx, name, p.leaseTTL)
	if errors.Is(err, lease.ErrNotAcquired) {
		p.logger.Debug("pass skipped, lease held elsewhere", "pass", name)
		return false, nil
	}
	if err != nil {
		p.logger.Error("lease acquire failed", "pass", name, "error", err)
		p.report(err, name)
		return false, err
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := release(releaseCtx); err != nil {
			p.logger.Warn("lease release failed", "pass", name, "error", err)
		}
	}()

	if err := pass(ctx); err != nil {
		if ctx.Err() == nil {
			p.report(err, name)
		}
		return true, err
	}
	return true, nil
}

func (p *Poller) report(err error, pass string) {
	if p.reporter != nil {
		p.reporter.CaptureError(err, map[string]string{"pass": pass})
	}
}
