package app

import (
	"context"
	"log/slog"
	"time"
)

const reconcileBatchSize = 50

// Poller drives the provider-side confirmation channels: it polls pending payment
// attempts and reconciles provisional orders.
type Poller struct {
	service        *Service
	pollTick       time.Duration
	reconcileTick  time.Duration
	reconcileBatch int
	logger         *slog.Logger
}

func NewPoller(service *Service, pollTick, reconcileTick time.Duration, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		service:        service,
		pollTick:       pollTick,
		reconcileTick:  reconcileTick,
		reconcileBatch: reconcileBatchSize,
		logger:         logger,
	}
}

func (p *Poller) Run(ctx context.Context) {
	pollTicker := time.NewTicker(p.pollTick)
	reconcileTicker := time.NewTicker(p.reconcileTick)
	defer pollTicker.Stop()
	defer reconcileTicker.Stop()

	for {
		select {
		case <-pollTicker.C:
			p.service.PollPending(ctx)
		case <-reconcileTicker.C:
			p.reconcile(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *Poller) reconcile(ctx context.Context) {
	settled, err := p.service.ReconcileProvisional(ctx, p.reconcileBatch)
	if err != nil {
		p.logger.ErrorContext(ctx, "provisional order reconciliation failed", "error", err)
		return
	}
	if settled > 0 {
		p.logger.InfoContext(ctx, "provisional orders reconciled", "settled", settled)
	}
}
