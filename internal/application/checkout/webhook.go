package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/soko-labs/soko-checkout/internal/domain/order"
	"github.com/soko-labs/soko-checkout/internal/domain/payment"
	"github.com/soko-labs/soko-checkout/internal/observability"
	"github.com/soko-labs/soko-checkout/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const useCaseWebhook = "checkout.confirm_callback"

// ConfirmByReference handles a late gateway callback for a cash-in that
// was not confirmed within the polling window. It re-checks the gateway
// for the reference and, when the transaction is genuinely successful,
// runs the same confirm-and-reconcile tail as the synchronous path.
// Replayed callbacks are deduplicated and return ErrAlreadyConfirmed.
func (uc *Orchestrator) ConfirmByReference(ctx context.Context, ref string) (_ *Result, err error) {
	logger := logctx.FromOr(ctx, uc.log).With(
		observability.F("use_case", useCaseWebhook),
		observability.F("tx_ref", ref),
	)

	ctx, span := uc.tel.Tracer().Start(ctx, spanPrefix+"ConfirmByReference",
		attribute.String("use_case", useCaseWebhook),
		attribute.String("checkout.tx_ref", ref),
	)
	start := time.Now()
	outcome, statusText := "success", "OK"

	defer func() {
		lat := time.Since(start).Seconds()
		if span != nil {
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, statusText)
			} else {
				span.SetStatus(codes.Ok, statusText)
			}
			span.End()
		}
		uc.reqCounter.Add(1,
			observability.L("use_case", useCaseWebhook),
			observability.L("outcome", outcome),
		)
		uc.durHist.Observe(lat, observability.L("use_case", useCaseWebhook))
		fields := []observability.Field{
			observability.F("outcome", outcome),
			observability.F("status", statusText),
			observability.F("latency_seconds", lat),
		}
		if err != nil {
			fields = append(fields, observability.F("error", err.Error()))
		}
		logger.Info("use_case_done", fields...)
	}()

	if ref == "" {
		outcome, statusText = "error", "REF_REQUIRED"
		return nil, newValidation("transaction reference is required")
	}

	o, lerr := uc.orders.FindByTxRef(ctx, ref)
	if lerr != nil {
		if errors.Is(lerr, order.ErrNotFound) {
			outcome, statusText = "error", "ORDER_NOT_FOUND"
			return nil, lerr
		}
		outcome, statusText = "error", "ORDER_LOOKUP_FAILED"
		return nil, fmt.Errorf("checkout: lookup order by ref: %w", lerr)
	}

	if o.Status != order.StatusAwaitsPayment {
		outcome, statusText = "replay", "ALREADY_CONFIRMED"
		return nil, ErrAlreadyConfirmed
	}

	lookupStart := time.Now()
	tx, terr := uc.gateway.FindByReference(ctx, ref)
	uc.recordExternal(endpointEvents, lookupStart, terr)
	if terr != nil {
		if errors.Is(terr, payment.ErrTransactionNotFound) {
			outcome, statusText = "error", "TRANSACTION_NOT_FOUND"
			return nil, fmt.Errorf("%w: %w", ErrGateway, terr)
		}
		outcome, statusText = "error", "TRANSACTION_LOOKUP_FAILED"
		return nil, fmt.Errorf("%w: %w", ErrGateway, terr)
	}
	if !tx.Confirms(ref) {
		outcome, statusText = "error", "NOT_CONFIRMED"
		return nil, payment.ErrNotConfirmed
	}

	// The dedup key is claimed only once the transaction genuinely
	// confirms. A callback that fires while the cash-in is still pending
	// must not burn the slot for the gateway's retry after settlement.
	if uc.dedup != nil {
		first, derr := uc.dedup.SetIfAbsent(ctx, "checkout:webhook:"+o.ID, webhookDedupTTL)
		if derr != nil {
			logger.Warn("webhook_dedup_unavailable", observability.F("error", derr.Error()))
		} else if !first {
			outcome, statusText = "replay", "DUPLICATE_CALLBACK"
			return nil, ErrAlreadyConfirmed
		}
	}

	results, cerr := uc.confirmAndReconcile(ctx, o, tx)
	if errors.Is(cerr, ErrAlreadyConfirmed) {
		outcome, statusText = "replay", "ALREADY_CONFIRMED"
		return nil, cerr
	}
	if cerr != nil {
		outcome, statusText = "error", "CONFIRM_FAILED"
		return nil, cerr
	}
	span.AddEvent("payment.confirmed_via_webhook")

	return &Result{
		OrderID:        o.ID,
		Status:         o.Status,
		Reconciliation: results,
	}, nil
}
