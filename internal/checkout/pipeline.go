// Package checkout finalizes a paid checkout: it verifies the payment with
// the gateway, snapshots the cart, writes the order and clears the cart.
package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/foretdhiver1228/storefront/internal/cart"
	"github.com/foretdhiver1228/storefront/internal/events"
	"github.com/foretdhiver1228/storefront/internal/lock"
	"github.com/foretdhiver1228/storefront/internal/order"
	"github.com/foretdhiver1228/storefront/internal/payment"
)

type Verifier interface {
	Verify(ctx context.Context, c payment.Confirmation) (*payment.Transaction, error)
}

type CartReader interface {
	Snapshot(ctx context.Context, userID string) (cart.Snapshot, error)
}

type OrderWriter interface {
	Write(ctx context.Context, d order.Draft) (order.WriteResult, error)
	FindByPaymentKey(ctx context.Context, paymentKey string) (*order.Order, error)
}

type CartClearer interface {
	ClearLines(ctx context.Context, userID string, lines []cart.Line) error
}

type Locker interface {
	Acquire(ctx context.Context, name string) (release func(), err error)
}

type Options struct {
	StepTimeout   time.Duration
	RetryAttempts int
	RetryBackoff  time.Duration
}

// Budget is the longest one run can take: verify, snapshot and write each use
// every attempt and backoff, and the clear runs once.
func (o Options) Budget() time.Duration {
	attempts := max(o.RetryAttempts, 1)
	var backoff time.Duration
	wait := o.RetryBackoff
	for i := 1; i < attempts; i++ {
		backoff += wait
		wait *= 2
	}
	return 3*(time.Duration(attempts)*o.StepTimeout+backoff) + o.StepTimeout
}

type Pipeline struct {
	verifier  Verifier
	carts     CartReader
	orders    OrderWriter
	clearer   CartClearer
	locker    Locker
	publisher events.Publisher
	logger    *zap.Logger
	policy    retryPolicy
	now       func() time.Time
}

func NewPipeline(v Verifier, carts CartReader, orders OrderWriter, clearer CartClearer,
	locker Locker, publisher events.Publisher, logger *zap.Logger, opts Options) *Pipeline {
	if opts.RetryAttempts < 1 {
		opts.RetryAttempts = 1
	}
	return &Pipeline{
		verifier:  v,
		carts:     carts,
		orders:    orders,
		clearer:   clearer,
		locker:    locker,
		publisher: publisher,
		logger:    logger,
		policy: retryPolicy{
			attempts: opts.RetryAttempts,
			backoff:  opts.RetryBackoff,
			timeout:  opts.StepTimeout,
		},
		now: time.Now,
	}
}

// Request holds the gateway callback parameters for one checkout.
type Request struct {
	UserID     string
	PaymentKey string
	OrderID    string
	Amount     decimal.Decimal
}

type Result struct {
	OrderID  string
	Reason   Reason
	Warnings []Reason
	State    State
	History  []State
}

func (r Result) Completed() bool { return r.State == Complete }

// Status is the caller-facing outcome: "completed" or "failed".
func (r Result) Status() string {
	if r.Completed() {
		return order.StatusCompleted
	}
	return order.StatusFailed
}

// run carries the per-checkout state through Finalize.
type run struct {
	*machine
	req      Request
	log      *zap.Logger
	orderID  string
	reason   Reason
	warnings []Reason
}

func (r *run) to(s State) {
	r.advance(s)
	r.log.Debug("checkout state", zap.String("state", string(s)))
}

func (r *run) fail(reason Reason, err error) Result {
	r.reason = reason
	r.advance(Failed)
	r.log.Warn("checkout failed", zap.String("reason", string(reason)), zap.Error(err))
	return r.result()
}

func (r *run) result() Result {
	return Result{
		OrderID:  r.orderID,
		Reason:   r.reason,
		Warnings: r.warnings,
		State:    r.state,
		History:  append([]State(nil), r.history...),
	}
}

// Finalize drives one checkout to a terminal state. Once verification has
// started the run no longer follows ctx cancellation, because the payment may
// already be captured at the gateway.
func (p *Pipeline) Finalize(ctx context.Context, req Request) Result {
	r := &run{
		machine: newMachine(),
		req:     req,
		log: p.logger.With(
			zap.String("user_id", req.UserID),
			zap.String("payment_key", req.PaymentKey),
			zap.String("gateway_order_id", req.OrderID)),
	}

	if req.UserID == "" || req.PaymentKey == "" || req.OrderID == "" || !req.Amount.IsPositive() {
		return r.fail(ReasonInvalidRequest, errors.New("paymentKey, orderId and a positive amount are required"))
	}

	release, err := p.locker.Acquire(ctx, req.UserID)
	switch {
	case errors.Is(err, lock.ErrNotAcquired):
		return r.fail(ReasonInProgress, err)
	case err != nil && ctx.Err() != nil:
		return r.fail(ReasonInProgress, err)
	case err != nil:
		// The order writer still serializes per user and dedupes by payment key.
		r.log.Warn("checkout lock unavailable, continuing", zap.Error(err))
	default:
		defer release()
	}

	if res, ok := p.replay(ctx, r); ok {
		return res
	}

	ctx = context.WithoutCancel(ctx)
	r.to(Verifying)

	tx, attempts, err := retry(ctx, p.policy, isTransientPayment, func(ctx context.Context) (*payment.Transaction, error) {
		return p.verifier.Verify(ctx, payment.Confirmation{
			PaymentKey: req.PaymentKey,
			OrderID:    req.OrderID,
			Amount:     req.Amount,
		})
	})
	if err != nil {
		return r.fail(paymentReason(err), err)
	}
	r.log.Info("payment verified",
		zap.String("amount", tx.Amount.String()),
		zap.String("method", tx.Method),
		zap.Int("attempts", attempts))
	r.to(Verified)

	snap, _, err := retry(ctx, p.policy, isTransientStorage, func(ctx context.Context) (cart.Snapshot, error) {
		return p.carts.Snapshot(ctx, req.UserID)
	})
	if err != nil {
		return r.fail(ReasonStorageError, err)
	}
	if snap.Empty() {
		r.log.Error("verified payment but cart is empty", zap.String("amount", tx.Amount.String()))
		return r.fail(ReasonEmptyCart, errors.New("cart is empty"))
	}
	r.log.Debug("cart snapshot",
		zap.Int("lines", len(snap.Lines)),
		zap.String("total", snap.Total.String()))
	r.to(Writing)

	draft := order.Draft{
		OrderID:        uuid.NewString(),
		UserID:         req.UserID,
		PaymentKey:     req.PaymentKey,
		GatewayOrderID: tx.OrderID,
		PaymentMethod:  tx.Method,
		Amount:         tx.Amount,
		Lines:          snap.Lines,
	}
	written, _, err := retry(ctx, p.policy, isTransientStorage, func(ctx context.Context) (order.WriteResult, error) {
		return p.orders.Write(ctx, draft)
	})
	if err != nil {
		return r.fail(writeReason(err), err)
	}
	r.orderID = written.OrderID
	r.log = r.log.With(zap.String("order_id", written.OrderID))
	if !written.Created {
		// Another run wrote this order and owns clearing its snapshot.
		r.warnings = append(r.warnings, ReasonDuplicatePayment)
		r.log.Info("payment key already had an order")
	}
	r.to(Written)

	r.to(Clearing)
	if written.Created {
		p.clear(ctx, r, snap)
	}
	r.to(Complete)

	if written.Created {
		p.publishCompleted(ctx, r, tx.Amount)
	}
	r.log.Info("checkout complete", zap.Strings("history", statesToStrings(r.history)))
	return r.result()
}

// replay short-cuts a repeated callback whose order already exists.
func (p *Pipeline) replay(ctx context.Context, r *run) (Result, bool) {
	existing, err := p.orders.FindByPaymentKey(ctx, r.req.PaymentKey)
	if errors.Is(err, order.ErrNotFound) {
		return Result{}, false
	}
	if err != nil {
		r.log.Warn("replay lookup failed, continuing", zap.Error(err))
		return Result{}, false
	}
	if existing.UserID != r.req.UserID {
		return r.fail(ReasonDuplicatePayment, errors.New("payment key belongs to another user's order")), true
	}
	r.orderID = existing.ID
	r.warnings = append(r.warnings, ReasonDuplicatePayment)
	r.to(Complete)
	r.log.Info("checkout replayed", zap.String("order_id", existing.ID))
	return r.result(), true
}

// clear is not retried; a failure leaves a cleanup event for reconciliation.
func (p *Pipeline) clear(ctx context.Context, r *run, snap cart.Snapshot) {
	_, err := callWithTimeout(ctx, p.policy.timeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, p.clearer.ClearLines(ctx, r.req.UserID, snap.Lines)
	})
	if err == nil {
		return
	}
	r.warnings = append(r.warnings, ReasonPartialCleanup)
	r.log.Warn("cart cleanup failed after order was written", zap.Error(err))

	lines := make(map[string]int, len(snap.Lines))
	for _, l := range snap.Lines {
		lines[l.ProductID] = l.Quantity
	}
	if err := p.publisher.CartCleanupPending(ctx, events.CartCleanupPending{
		EventID: uuid.NewString(),
		OrderID: r.orderID,
		UserID:  r.req.UserID,
		Lines:   lines,
		Reason:  err.Error(),
		At:      p.now().UTC(),
	}); err != nil {
		r.log.Error("cleanup event not published", zap.Error(err))
	}
}

func (p *Pipeline) publishCompleted(ctx context.Context, r *run, amount decimal.Decimal) {
	if err := p.publisher.OrderCompleted(ctx, events.OrderCompleted{
		EventID:     uuid.NewString(),
		OrderID:     r.orderID,
		UserID:      r.req.UserID,
		TotalAmount: amount,
		PaymentKey:  r.req.PaymentKey,
		At:          p.now().UTC(),
	}); err != nil {
		r.log.Warn("order event not published", zap.Error(err))
	}
}

func isTransientPayment(err error) bool {
	return !errors.Is(err, payment.ErrRejected) && !errors.Is(err, payment.ErrMismatch)
}

func isTransientStorage(err error) bool {
	return !errors.Is(err, order.ErrAmountMismatch) &&
		!errors.Is(err, order.ErrEmptyOrder) &&
		!errors.Is(err, order.ErrInvalidDraft) &&
		!errors.Is(err, order.ErrPaymentKeyTaken)
}

func paymentReason(err error) Reason {
	switch {
	case errors.Is(err, payment.ErrMismatch):
		return ReasonPaymentMismatch
	case errors.Is(err, payment.ErrRejected):
		return ReasonPaymentRejected
	default:
		return ReasonGatewayUnavailable
	}
}

func writeReason(err error) Reason {
	switch {
	case errors.Is(err, order.ErrAmountMismatch):
		return ReasonAmountMismatch
	case errors.Is(err, order.ErrEmptyOrder):
		return ReasonEmptyCart
	case errors.Is(err, order.ErrPaymentKeyTaken):
		return ReasonDuplicatePayment
	default:
		return ReasonStorageError
	}
}

func statesToStrings(states []State) []string {
	out := make([]string, len(states))
	for i, s := range states {
		out[i] = string(s)
	}
	return out
}
