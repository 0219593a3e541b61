// SPDX-License-Identifier: Apache-2.0

// Package reporting forwards aborted passes and unexpected failures to Sentry.
package reporting

import (
	"time"

	"github.com/getsentry/sentry-go"
)

// Reporter captures errors with tags. The zero value drops everything.
type Reporter struct {
	hub *sentry.Hub
}

// New initializes Sentry for dsn. An empty dsn returns a Reporter that drops
// events.
func New(dsn, environment, release string) (*Reporter, error) {
	if dsn == "" {
		return &Reporter{}, nil
	}
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
		Release:     release,
	})
	if err != nil {
		return nil, err
	}
	return &Reporter{hub: sentry.NewHub(client, sentry.NewScope())}, nil
}

// NewWithHub wraps an existing hub.
func NewWithHub(hub *sentry.Hub) *Reporter {
	return &Reporter{hub: hub}
}

func (r *Reporter) Enabled() bool {
	return r != nil && r.hub != nil
}

func (r *Reporter) CaptureError(err error, tags map[string]string) {
	if !r.Enabled() || err == nil {
		return
	}
	r.hub.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		r.hub.CaptureException(err)
	})
}

// Flush waits up to timeout for buffered events.
func (r *Reporter) Flush(timeout time.Duration) {
	if r.Enabled() {
		r.hub.Flush(timeout)
	}
}
