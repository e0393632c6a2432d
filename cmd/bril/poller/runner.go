// Copyright (C) 2024 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package poller

import (
	"context"
	"time"

	"github.com/digitech/bril/cmd/bril/metrics"
)

// Run waits for the warm-up, then polls once per interval until ctx is
// done. Failed polls are logged and do not stop the loop.
func (p *Poller) Run(ctx context.Context) {
	if p.cfg.Warmup > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.cfg.Warmup):
		}
	}

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		p.poll(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	if err := p.PollOnce(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		metrics.TransportFaults.WithLabelValues("poller").Inc()
		p.log.WithError(err).Warn("polling the board failed")
		return
	}
	p.log.Debug("requested data")
}
