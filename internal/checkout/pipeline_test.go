package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"
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

//
// ---------- FAKES ----------
//

// store is an in-memory cart + order table pair shared by the fakes.
type store struct {
	mu       sync.Mutex
	cart     map[string][]cart.Line // user -> lines
	orders   map[string]order.Order // payment key -> order
	items    map[string][]order.Item
	writeErr []error // consumed one per Write call
	clearErr error
	writes   int
}

func newStore() *store {
	return &store{cart: map[string][]cart.Line{}, orders: map[string]order.Order{}, items: map[string][]order.Item{}}
}

func (s *store) Snapshot(ctx context.Context, userID string) (cart.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lines := append([]cart.Line(nil), s.cart[userID]...)
	return cart.NewSnapshot(userID, lines, time.Now()), nil
}

func (s *store) Write(ctx context.Context, d order.Draft) (order.WriteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	if len(s.writeErr) > 0 {
		err := s.writeErr[0]
		s.writeErr = s.writeErr[1:]
		if err != nil {
			return order.WriteResult{}, err
		}
	}
	if o, ok := s.orders[d.PaymentKey]; ok {
		return d.Reconcile(o.ID, o.UserID)
	}
	if err := d.Check(); err != nil {
		return order.WriteResult{}, err
	}
	id := d.OrderID
	if id == "" {
		id = uuid.NewString()
	}
	o := order.Order{ID: id, UserID: d.UserID, Total: d.Amount, Status: order.StatusCompleted,
		PaymentKey: d.PaymentKey, Name: order.DisplayName(d.Lines)}
	s.orders[d.PaymentKey] = o
	for _, l := range d.Lines {
		s.items[o.ID] = append(s.items[o.ID], order.Item{OrderID: o.ID, ProductID: l.ProductID, Quantity: l.Quantity, PriceAtPurchase: l.Price})
	}
	return order.WriteResult{OrderID: o.ID, Created: true}, nil
}

func (s *store) FindByPaymentKey(ctx context.Context, key string) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[key]
	if !ok {
		return nil, order.ErrNotFound
	}
	return &o, nil
}

func (s *store) ClearLines(ctx context.Context, userID string, lines []cart.Line) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clearErr != nil {
		return s.clearErr
	}
	taken := map[string]int{}
	for _, l := range lines {
		taken[l.ProductID] = l.Quantity
	}
	var keep []cart.Line
	for _, l := range s.cart[userID] {
		if q, ok := taken[l.ProductID]; ok {
			l.Quantity -= q
			if l.Quantity <= 0 {
				continue
			}
		}
		keep = append(keep, l)
	}
	s.cart[userID] = keep
	return nil
}

type fakeGateway struct {
	mu      sync.Mutex
	amount  decimal.Decimal
	errs    []error
	calls   int
	blockOn chan struct{}
}

func (g *fakeGateway) Verify(ctx context.Context, c payment.Confirmation) (*payment.Transaction, error) {
	g.mu.Lock()
	g.calls++
	var err error
	if len(g.errs) > 0 {
		err, g.errs = g.errs[0], g.errs[1:]
	}
	g.mu.Unlock()
	if g.blockOn != nil {
		<-g.blockOn
	}
	if err != nil {
		return nil, err
	}
	if !g.amount.Equal(c.Amount) {
		return nil, &payment.GatewayError{Kind: payment.ErrMismatch, Message: "amount"}
	}
	return &payment.Transaction{PaymentKey: c.PaymentKey, OrderID: c.OrderID, Amount: g.amount, Method: "CARD"}, nil
}

type memLocker struct {
	mu   sync.Mutex
	held map[string]bool
	err  error
}

func (l *memLocker) Acquire(ctx context.Context, name string) (func(), error) {
	if l.err != nil {
		return nil, l.err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil {
		l.held = map[string]bool{}
	}
	if l.held[name] {
		return nil, lock.ErrNotAcquired
	}
	l.held[name] = true
	return func() {
		l.mu.Lock()
		delete(l.held, name)
		l.mu.Unlock()
	}, nil
}

type recPublisher struct {
	mu        sync.Mutex
	completed []events.OrderCompleted
	cleanup   []events.CartCleanupPending
}

func (p *recPublisher) OrderCompleted(ctx context.Context, e events.OrderCompleted) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completed = append(p.completed, e)
	return nil
}

func (p *recPublisher) CartCleanupPending(ctx context.Context, e events.CartCleanupPending) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cleanup = append(p.cleanup, e)
	return nil
}

type fixture struct {
	store   *store
	gateway *fakeGateway
	locker  *memLocker
	pub     *recPublisher
	p       *Pipeline
}

const userID = "user-1"

func newFixture(t *testing.T, confirmed int64) *fixture {
	t.Helper()
	f := &fixture{
		store:   newStore(),
		gateway: &fakeGateway{amount: decimal.NewFromInt(confirmed)},
		locker:  &memLocker{},
		pub:     &recPublisher{},
	}
	f.store.cart[userID] = []cart.Line{
		{ProductID: "prod-a", Name: "Product A", Price: decimal.NewFromInt(10000), Quantity: 2},
		{ProductID: "prod-b", Name: "Product B", Price: decimal.NewFromInt(5000), Quantity: 1},
	}
	f.p = NewPipeline(f.gateway, f.store, f.store, f.store, f.locker, f.pub, zap.NewNop(), Options{
		StepTimeout:   time.Second,
		RetryAttempts: 3,
		RetryBackoff:  time.Millisecond,
	})
	return f
}

func request(amount int64) Request {
	return Request{UserID: userID, PaymentKey: "pk_123", OrderID: "ORD-1", Amount: decimal.NewFromInt(amount)}
}

func assertHistory(t *testing.T, got []State, want ...State) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("history=%v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("history=%v want %v", got, want)
		}
	}
}

//
// ---------- TESTS ----------
//

func TestFinalize_HappyPath(t *testing.T) {
	f := newFixture(t, 25000)

	res := f.p.Finalize(context.Background(), request(25000))
	if !res.Completed() || res.Status() != "completed" || res.OrderID == "" {
		t.Fatalf("result=%+v", res)
	}
	assertHistory(t, res.History, AwaitingConfirmation, Verifying, Verified, Writing, Written, Clearing, Complete)

	o := f.store.orders["pk_123"]
	if !o.Total.Equal(decimal.NewFromInt(25000)) {
		t.Fatalf("total=%s", o.Total)
	}
	items := f.store.items[o.ID]
	if len(items) != 2 || !items[0].PriceAtPurchase.Equal(decimal.NewFromInt(10000)) || !items[1].PriceAtPurchase.Equal(decimal.NewFromInt(5000)) {
		t.Fatalf("items=%+v", items)
	}
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(it.PriceAtPurchase.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	if !sum.Equal(o.Total) {
		t.Fatalf("items sum %s != total %s", sum, o.Total)
	}
	if len(f.store.cart[userID]) != 0 {
		t.Fatalf("cart not emptied: %+v", f.store.cart[userID])
	}
	if len(f.pub.completed) != 1 || f.pub.completed[0].OrderID != res.OrderID {
		t.Fatalf("completed events=%+v", f.pub.completed)
	}
}

func TestFinalize_GatewayConfirmsDifferentAmount(t *testing.T) {
	f := newFixture(t, 20000)

	res := f.p.Finalize(context.Background(), request(25000))
	if res.State != Failed || res.Reason != ReasonPaymentMismatch || res.Status() != "failed" {
		t.Fatalf("result=%+v", res)
	}
	if len(f.store.orders) != 0 || f.store.writes != 0 {
		t.Fatalf("orders written: %d", len(f.store.orders))
	}
	if len(f.store.cart[userID]) != 2 {
		t.Fatal("cart must be untouched")
	}
}

func TestFinalize_SnapshotDisagreesWithPayment(t *testing.T) {
	f := newFixture(t, 20000)

	res := f.p.Finalize(context.Background(), request(20000))
	if res.State != Failed || res.Reason != ReasonAmountMismatch {
		t.Fatalf("result=%+v", res)
	}
	assertHistory(t, res.History, AwaitingConfirmation, Verifying, Verified, Writing, Failed)
	if len(f.store.orders) != 0 || len(f.store.cart[userID]) != 2 {
		t.Fatal("no order and untouched cart expected")
	}
	if f.store.writes != 1 {
		t.Fatalf("amount mismatch must not be retried, writes=%d", f.store.writes)
	}
}

func TestFinalize_EmptyCart(t *testing.T) {
	f := newFixture(t, 25000)
	f.store.cart[userID] = nil

	res := f.p.Finalize(context.Background(), request(25000))
	if res.State != Failed || res.Reason != ReasonEmptyCart {
		t.Fatalf("result=%+v", res)
	}
	assertHistory(t, res.History, AwaitingConfirmation, Verifying, Verified, Failed)
	if f.store.writes != 0 || len(f.pub.completed) != 0 {
		t.Fatal("empty cart must have no side effects")
	}
}

func TestFinalize_ReplayYieldsOneOrder(t *testing.T) {
	f := newFixture(t, 25000)

	first := f.p.Finalize(context.Background(), request(25000))
	second := f.p.Finalize(context.Background(), request(25000))

	if !first.Completed() || !second.Completed() {
		t.Fatalf("first=%+v second=%+v", first, second)
	}
	if first.OrderID != second.OrderID {
		t.Fatalf("order ids differ: %s vs %s", first.OrderID, second.OrderID)
	}
	if len(f.store.orders) != 1 {
		t.Fatalf("orders=%d", len(f.store.orders))
	}
	if len(second.Warnings) != 1 || second.Warnings[0] != ReasonDuplicatePayment {
		t.Fatalf("warnings=%v", second.Warnings)
	}
	if f.gateway.calls != 1 {
		t.Fatalf("replay must not confirm again, calls=%d", f.gateway.calls)
	}
}

func TestFinalize_ConcurrentDuplicateCallbacks(t *testing.T) {
	f := newFixture(t, 25000)

	var wg sync.WaitGroup
	results := make([]Result, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = f.p.Finalize(context.Background(), request(25000))
		}(i)
	}
	wg.Wait()

	if len(f.store.orders) != 1 {
		t.Fatalf("orders=%d", len(f.store.orders))
	}
	for _, r := range results {
		if r.State == Failed && r.Reason != ReasonInProgress {
			t.Fatalf("unexpected failure %+v", r)
		}
	}
}

func TestFinalize_ClearerFailsStillComplete(t *testing.T) {
	f := newFixture(t, 25000)
	f.store.clearErr = errors.New("connection reset")

	res := f.p.Finalize(context.Background(), request(25000))
	if !res.Completed() {
		t.Fatalf("result=%+v", res)
	}
	if len(res.Warnings) != 1 || res.Warnings[0] != ReasonPartialCleanup {
		t.Fatalf("warnings=%v", res.Warnings)
	}
	if _, err := f.store.FindByPaymentKey(context.Background(), "pk_123"); err != nil {
		t.Fatalf("order must remain queryable: %v", err)
	}
	if len(f.pub.cleanup) != 1 || f.pub.cleanup[0].Lines["prod-a"] != 2 {
		t.Fatalf("cleanup events=%+v", f.pub.cleanup)
	}
}

func TestFinalize_GatewayRetries(t *testing.T) {
	f := newFixture(t, 25000)
	f.gateway.errs = []error{
		&payment.GatewayError{Kind: payment.ErrUnavailable, Message: "502"},
		&payment.GatewayError{Kind: payment.ErrUnavailable, Message: "timeout"},
	}

	res := f.p.Finalize(context.Background(), request(25000))
	if !res.Completed() || f.gateway.calls != 3 {
		t.Fatalf("result=%+v calls=%d", res, f.gateway.calls)
	}
}

func TestFinalize_GatewayStaysDown(t *testing.T) {
	f := newFixture(t, 25000)
	down := &payment.GatewayError{Kind: payment.ErrUnavailable, Message: "503"}
	f.gateway.errs = []error{down, down, down}

	res := f.p.Finalize(context.Background(), request(25000))
	if res.Reason != ReasonGatewayUnavailable || f.gateway.calls != 3 {
		t.Fatalf("result=%+v calls=%d", res, f.gateway.calls)
	}
}

func TestFinalize_RejectedNotRetried(t *testing.T) {
	f := newFixture(t, 25000)
	f.gateway.errs = []error{&payment.GatewayError{Kind: payment.ErrRejected, Code: "REJECT_CARD_PAYMENT"}}

	res := f.p.Finalize(context.Background(), request(25000))
	if res.Reason != ReasonPaymentRejected || f.gateway.calls != 1 {
		t.Fatalf("result=%+v calls=%d", res, f.gateway.calls)
	}
}

func TestFinalize_WriterRetriesTransientStorage(t *testing.T) {
	f := newFixture(t, 25000)
	f.store.writeErr = []error{errors.New("conn busy")}

	res := f.p.Finalize(context.Background(), request(25000))
	if !res.Completed() || f.store.writes != 2 || len(f.store.orders) != 1 {
		t.Fatalf("result=%+v writes=%d", res, f.store.writes)
	}
}

// lostAck commits the first write and then reports a dropped connection.
type lostAck struct {
	*store
	dropped bool
}

func (l *lostAck) Write(ctx context.Context, d order.Draft) (order.WriteResult, error) {
	res, err := l.store.Write(ctx, d)
	if err == nil && !l.dropped {
		l.dropped = true
		return order.WriteResult{}, errors.New("conn reset after commit")
	}
	return res, err
}

func TestFinalize_WriteCommittedButAckLost(t *testing.T) {
	f := newFixture(t, 25000)
	p := NewPipeline(f.gateway, f.store, &lostAck{store: f.store}, f.store, f.locker, f.pub, zap.NewNop(), Options{
		StepTimeout:   time.Second,
		RetryAttempts: 3,
		RetryBackoff:  time.Millisecond,
	})

	res := p.Finalize(context.Background(), request(25000))
	if !res.Completed() || len(res.Warnings) != 0 {
		t.Fatalf("result=%+v", res)
	}
	if len(f.store.orders) != 1 || f.store.writes != 2 {
		t.Fatalf("orders=%d writes=%d", len(f.store.orders), f.store.writes)
	}
	if f.store.orders["pk_123"].ID != res.OrderID {
		t.Fatalf("order id %s, stored %s", res.OrderID, f.store.orders["pk_123"].ID)
	}
	if len(f.store.cart[userID]) != 0 {
		t.Fatalf("cart not emptied: %+v", f.store.cart[userID])
	}
	if len(f.pub.completed) != 1 || f.pub.completed[0].OrderID != res.OrderID {
		t.Fatalf("completed events=%+v", f.pub.completed)
	}
}

// lookupDown fails the replay lookup so the writer is the only guard left.
type lookupDown struct{ *store }

func (lookupDown) FindByPaymentKey(context.Context, string) (*order.Order, error) {
	return nil, errors.New("statement timeout")
}

func TestFinalize_PaymentKeyOfAnotherUser(t *testing.T) {
	f := newFixture(t, 25000)
	f.store.orders["pk_123"] = order.Order{ID: "order-of-user-2", UserID: "user-2", PaymentKey: "pk_123"}
	p := NewPipeline(f.gateway, f.store, lookupDown{f.store}, f.store, f.locker, f.pub, zap.NewNop(), Options{RetryAttempts: 3})

	res := p.Finalize(context.Background(), request(25000))
	if res.State != Failed || res.Reason != ReasonDuplicatePayment || res.OrderID != "" {
		t.Fatalf("result=%+v", res)
	}
	if f.store.writes != 1 {
		t.Fatalf("foreign payment key must not be retried, writes=%d", f.store.writes)
	}
	if len(f.store.cart[userID]) != 2 || len(f.pub.completed) != 0 {
		t.Fatal("cart must be untouched and no event published")
	}
}

func TestFinalize_StorageErrorSurfaces(t *testing.T) {
	f := newFixture(t, 25000)
	boom := errors.New("disk full")
	f.store.writeErr = []error{boom, boom, boom}

	res := f.p.Finalize(context.Background(), request(25000))
	if res.Reason != ReasonStorageError || len(f.store.cart[userID]) != 2 {
		t.Fatalf("result=%+v", res)
	}
}

func TestFinalize_ClientDisconnectAfterVerifyStarts(t *testing.T) {
	f := newFixture(t, 25000)
	f.gateway.blockOn = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan Result, 1)
	go func() { done <- f.p.Finalize(ctx, request(25000)) }()

	// wait for the gateway call, then drop the client
	for {
		f.gateway.mu.Lock()
		calls := f.gateway.calls
		f.gateway.mu.Unlock()
		if calls > 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	close(f.gateway.blockOn)

	res := <-done
	if !res.Completed() || len(f.store.orders) != 1 {
		t.Fatalf("run must finish after cancel: %+v", res)
	}
}

func TestFinalize_InvalidRequest(t *testing.T) {
	f := newFixture(t, 25000)
	res := f.p.Finalize(context.Background(), Request{UserID: userID, PaymentKey: "pk"})
	if res.Reason != ReasonInvalidRequest || f.gateway.calls != 0 {
		t.Fatalf("result=%+v", res)
	}
}

func TestFinalize_LockBusy(t *testing.T) {
	f := newFixture(t, 25000)
	release, _ := f.locker.Acquire(context.Background(), userID)
	defer release()

	res := f.p.Finalize(context.Background(), request(25000))
	if res.Reason != ReasonInProgress || f.gateway.calls != 0 {
		t.Fatalf("result=%+v", res)
	}
}

func TestFinalize_LockStoreDownStillCompletes(t *testing.T) {
	f := newFixture(t, 25000)
	f.locker.err = errors.New("redis: connection refused")

	if res := f.p.Finalize(context.Background(), request(25000)); !res.Completed() {
		t.Fatalf("result=%+v", res)
	}
}

// growingCart simulates the user adding to the cart right after the snapshot.
type growingCart struct{ *store }

func (g growingCart) Snapshot(ctx context.Context, uid string) (cart.Snapshot, error) {
	snap, err := g.store.Snapshot(ctx, uid)
	g.store.mu.Lock()
	defer g.store.mu.Unlock()
	lines := g.store.cart[uid]
	lines[0].Quantity++
	g.store.cart[uid] = append(lines, cart.Line{ProductID: "prod-c", Name: "Product C", Price: decimal.NewFromInt(700), Quantity: 1})
	return snap, err
}

func TestFinalize_KeepsItemsAddedAfterSnapshot(t *testing.T) {
	f := newFixture(t, 25000)
	p := NewPipeline(f.gateway, growingCart{f.store}, f.store, f.store, f.locker, f.pub, zap.NewNop(), Options{RetryAttempts: 1})

	res := p.Finalize(context.Background(), request(25000))
	if !res.Completed() {
		t.Fatalf("result=%+v", res)
	}
	left := f.store.cart[userID]
	if len(left) != 2 {
		t.Fatalf("cart=%+v", left)
	}
	if left[0].ProductID != "prod-a" || left[0].Quantity != 1 || left[1].ProductID != "prod-c" {
		t.Fatalf("cart=%+v", left)
	}
}

func TestCanTransition(t *testing.T) {
	if !CanTransition(Verifying, Verified) || !CanTransition(Writing, Failed) {
		t.Fatal("expected transitions missing")
	}
	if CanTransition(AwaitingConfirmation, Writing) || CanTransition(Complete, Failed) || CanTransition(Failed, Verifying) {
		t.Fatal("illegal transition allowed")
	}
	if !Complete.Terminal() || !Failed.Terminal() || Writing.Terminal() {
		t.Fatal("terminal states wrong")
	}
}

func TestOptionsBudget(t *testing.T) {
	opts := Options{StepTimeout: 10 * time.Second, RetryAttempts: 3, RetryBackoff: 200 * time.Millisecond}
	// 3 retried steps x (3 x 10s + 200ms + 400ms) + one 10s clear
	if got, want := opts.Budget(), 101800*time.Millisecond; got != want {
		t.Fatalf("budget=%s want %s", got, want)
	}
	if got := (Options{StepTimeout: time.Second}).Budget(); got != 4*time.Second {
		t.Fatalf("single attempt budget=%s", got)
	}
}
