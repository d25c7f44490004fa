package commands

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/dejobratic/storefront/internal/checkout/domain"
	"github.com/dejobratic/storefront/internal/checkout/metrics"
	"github.com/dejobratic/storefront/internal/telemetry"
)

type ObservableCommitHandler struct {
	handler CommitHandler
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewObservableCommitHandler(handler CommitHandler, logger *slog.Logger, metrics *metrics.Metrics) *ObservableCommitHandler {
	return &ObservableCommitHandler{
		handler: handler,
		logger:  logger,
		metrics: metrics,
	}
}

func (o *ObservableCommitHandler) Handle(ctx context.Context, cmd CommitOrderCommand) (*domain.Order, error) {
	ctx, span := telemetry.StartSpan(ctx, "CommitOrderCommand.Handle")
	defer span.End()

	start := time.Now()
	var success bool
	defer func() {
		o.metrics.RecordOrderCommitDuration(ctx, time.Since(start).Seconds())
		o.metrics.RecordOrderCommitted(ctx, success)
	}()

	o.logger.InfoContext(ctx, "committing order",
		"customer_id", cmd.CustomerID,
		"reference", cmd.Reference,
		"total", cmd.Total,
		"verification", string(cmd.Verification),
	)

	order, err := o.handler.Handle(ctx, cmd)
	if err != nil {
		telemetry.RecordSpanError(span, err)
		o.logger.ErrorContext(ctx, "failed to commit order",
			"error", err,
			"reference", cmd.Reference,
		)
		return nil, err
	}

	telemetry.AddSpanAttributes(span,
		attribute.String("order.id", order.ID),
		attribute.String("order.reference", order.Reference),
		attribute.Int64("order.total", order.Total),
		attribute.String("order.verification", string(order.PaymentVerification)),
		attribute.Bool("order.needs_reconciliation", order.NeedsReconciliation),
	)

	o.logger.InfoContext(ctx, "order committed",
		"order_id", order.ID,
		"reference", order.Reference,
	)

	success = true
	telemetry.SetSpanSuccess(span)

	return order, nil
}
