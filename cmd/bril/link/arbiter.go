// Copyright (C) 2024 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

// Package link owns the serial connection to the board and arbitrates
// access to it among concurrent users.
package link

import (
	"context"
	"time"

	"github.com/digitech/bril/cmd/bril/metrics"
)

// Arbiter grants exclusive use of the link. The connection is only
// reachable through WithExclusiveLink, so a frame or a read can never
// interleave with another holder's.
type Arbiter struct {
	conn   *Conn
	permit chan struct{}
}

// NewArbiter takes ownership of conn.
func NewArbiter(conn *Conn) *Arbiter {
	a := &Arbiter{
		conn:   conn,
		permit: make(chan struct{}, 1),
	}
	a.permit <- struct{}{}
	return a
}

// WithExclusiveLink runs fn while holding the permit. It blocks until the
// permit is free or ctx is done, in which case fn is not run. The permit is
// released when fn returns or panics.
func (a *Arbiter) WithExclusiveLink(ctx context.Context, fn func(c *Conn) error) error {
	start := time.Now()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-a.permit:
	}
	metrics.PermitWait.Observe(time.Since(start).Seconds())
	defer func() {
		a.permit <- struct{}{}
	}()
	return fn(a.conn)
}

// Close waits for the permit and closes the link. The arbiter must not be
// used afterwards.
func (a *Arbiter) Close(ctx context.Context) error {
	return a.WithExclusiveLink(ctx, func(c *Conn) error {
		return c.Close()
	})
}
