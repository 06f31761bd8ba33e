package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"otpbot/internal/domain"
	"otpbot/internal/metrics"
	"otpbot/internal/provider"
	"otpbot/internal/repository"

	"go.uber.org/zap"
)

// OrderProvider is the part of the upstream API the tracker needs
type OrderProvider interface {
	PlaceOrder(ctx context.Context, serviceID string) (provider.Placement, error)
	CheckOrderSms(ctx context.Context, orderID string) (provider.SMSStatus, error)
	SetOrderStatus(ctx context.Context, orderID string, code provider.StatusCode) error
}

// Notifier delivers tracker events to the owning chat
type Notifier interface {
	NotifyOrder(ctx context.Context, event domain.OrderEvent) error
}

// TrackerConfig controls poll timing
type TrackerConfig struct {
	Interval     time.Duration
	InitialDelay time.Duration
	// MaxLifetime of zero polls until the provider reports a terminal status.
	MaxLifetime time.Duration
}

// Tracker owns placed orders and their background poll tasks.
// Each order has its own mutex; status changes and task handles are only
// touched while holding it.
type Tracker struct {
	provider OrderProvider
	notifier Notifier
	journal  repository.OrderJournal
	cfg      TrackerConfig
	logger   *zap.Logger
	now      func() time.Time

	mu     sync.Mutex
	orders map[string]*orderEntry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type orderEntry struct {
	id string
	// guarded by Tracker.mu
	userID int64

	mu    sync.Mutex
	order domain.Order
	task  *pollTask
}

type pollTask struct {
	cancel   context.CancelFunc
	deadline time.Time
}

// NewTracker creates a new order tracker
func NewTracker(
	provider OrderProvider,
	notifier Notifier,
	journal repository.OrderJournal,
	cfg TrackerConfig,
	logger *zap.Logger,
) *Tracker {
	if journal == nil {
		journal = repository.NopJournal{}
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Tracker{
		provider: provider,
		notifier: notifier,
		journal:  journal,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		orders:   make(map[string]*orderEntry),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// PlaceOrder buys a number and starts watching it for an SMS
func (t *Tracker) PlaceOrder(ctx context.Context, userID, chatID int64, svc domain.Service) (domain.Order, error) {
	placement, err := t.provider.PlaceOrder(ctx, svc.ID)
	if err != nil {
		return domain.Order{}, err
	}

	price := placement.Price
	if price == "" {
		price = svc.Price
	}
	now := t.now()
	order := domain.Order{
		ID:          placement.OrderID,
		UserID:      userID,
		ChatID:      chatID,
		ServiceID:   svc.ID,
		ServiceName: svc.Name,
		Phone:       placement.Number,
		Price:       price,
		Status:      domain.OrderPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	t.logger.Info("Order placed",
		zap.String("order_id", order.ID),
		zap.Int64("user_id", userID),
		zap.String("service_id", svc.ID),
	)

	if err := t.journal.RecordOrder(ctx, order); err != nil {
		t.logger.Warn("Failed to journal order", zap.String("order_id", order.ID), zap.Error(err))
	}

	t.StartPolling(order)
	return order, nil
}

// StartPolling registers the recurring check for an order.
// A task already registered for the same order id is cancelled and replaced.
func (t *Tracker) StartPolling(order domain.Order) {
	t.mu.Lock()
	e, ok := t.orders[order.ID]
	if !ok {
		e = &orderEntry{id: order.ID}
		t.orders[order.ID] = e
	}
	e.userID = order.UserID
	t.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.order = order
	t.registerLocked(e)
}

// ManualCheck performs one synchronous check on behalf of the user.
// It shares the commit path with scheduled ticks, so an SMS is announced once.
func (t *Tracker) ManualCheck(ctx context.Context, userID int64, orderID string) (domain.PollOutcome, error) {
	e, err := t.entry(userID, orderID)
	if errors.Is(err, domain.ErrOrderNotFound) {
		return t.checkUntracked(ctx, orderID)
	}
	if err != nil {
		return domain.PollOutcome{}, err
	}

	current := e.snapshot()
	if current.Status != domain.OrderPending {
		return outcomeFor(current), nil
	}

	status, err := t.provider.CheckOrderSms(ctx, orderID)
	if err != nil {
		metrics.PollTicks.WithLabelValues("error").Inc()
		return domain.PollOutcome{Kind: domain.OutcomePending, Order: current}, err
	}

	kind := classify(status)
	metrics.PollTicks.WithLabelValues(kind.String()).Inc()
	if kind == domain.OutcomePending {
		return domain.PollOutcome{Kind: kind, Order: e.snapshot(), ProviderStatus: status.Status}, nil
	}

	if event, ok := t.commit(e, nil, kind, status); ok {
		t.publish(event)
		return domain.PollOutcome{Kind: kind, Order: event.Order, ProviderStatus: status.Status}, nil
	}

	// a scheduled tick got there first
	return outcomeFor(e.snapshot()), nil
}

// Finalize stops polling and finishes or cancels the order at the provider.
// If the provider refuses and the order is still pending, polling resumes.
func (t *Tracker) Finalize(ctx context.Context, userID int64, orderID string, action domain.FinalAction) (domain.Order, error) {
	e, err := t.entry(userID, orderID)
	if errors.Is(err, domain.ErrOrderNotFound) {
		if err := t.provider.SetOrderStatus(ctx, orderID, provider.CodeFor(action)); err != nil {
			return domain.Order{ID: orderID}, err
		}
		return domain.Order{ID: orderID, UserID: userID, Status: action.Status()}, nil
	}
	if err != nil {
		return domain.Order{}, err
	}

	e.mu.Lock()
	prev := e.order.Status
	if prev.Terminal() {
		order := e.order
		e.mu.Unlock()
		return order, nil
	}
	t.stopLocked(e)
	e.mu.Unlock()

	if err := t.provider.SetOrderStatus(ctx, orderID, provider.CodeFor(action)); err != nil {
		t.logger.Warn("Provider rejected final status",
			zap.String("order_id", orderID),
			zap.String("action", action.String()),
			zap.Error(err),
		)
		e.mu.Lock()
		if e.order.Status == domain.OrderPending && e.task == nil {
			t.registerLocked(e)
		}
		order := e.order
		e.mu.Unlock()
		return order, err
	}

	e.mu.Lock()
	e.order.Status = action.Status()
	e.order.UpdatedAt = t.now()
	order := e.order
	e.mu.Unlock()

	t.logger.Info("Order finalized",
		zap.String("order_id", orderID),
		zap.String("status", string(order.Status)),
	)

	if err := t.journal.UpdateStatus(ctx, orderID, order.Status, order.SMS); err != nil {
		t.logger.Warn("Failed to journal order status", zap.String("order_id", orderID), zap.Error(err))
	}
	return order, nil
}

// Get returns a copy of a tracked order
func (t *Tracker) Get(orderID string) (domain.Order, bool) {
	t.mu.Lock()
	e, ok := t.orders[orderID]
	t.mu.Unlock()
	if !ok {
		return domain.Order{}, false
	}
	return e.snapshot(), true
}

// IsPolling reports whether a poll task is registered for the order
func (t *Tracker) IsPolling(orderID string) bool {
	t.mu.Lock()
	e, ok := t.orders[orderID]
	t.mu.Unlock()
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.task != nil
}

// ActivePolls returns the number of registered poll tasks
func (t *Tracker) ActivePolls() int {
	t.mu.Lock()
	entries := make([]*orderEntry, 0, len(t.orders))
	for _, e := range t.orders {
		entries = append(entries, e)
	}
	t.mu.Unlock()

	n := 0
	for _, e := range entries {
		e.mu.Lock()
		if e.task != nil {
			n++
		}
		e.mu.Unlock()
	}
	return n
}

// Stop cancels every poll task and waits for in-flight ticks to return
func (t *Tracker) Stop() {
	t.cancel()
	t.wg.Wait()
	t.logger.Info("Order tracker stopped")
}

func (t *Tracker) entry(userID int64, orderID string) (*orderEntry, error) {
	t.mu.Lock()
	e, ok := t.orders[orderID]
	t.mu.Unlock()
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	if e.userID != userID {
		return nil, domain.ErrNotOrderOwner
	}
	return e, nil
}

// registerLocked starts a poll goroutine for e. e.mu must be held.
func (t *Tracker) registerLocked(e *orderEntry) {
	t.stopLocked(e)

	ctx, cancel := context.WithCancel(t.ctx)
	task := &pollTask{cancel: cancel}
	if t.cfg.MaxLifetime > 0 {
		task.deadline = t.now().Add(t.cfg.MaxLifetime)
	}
	e.task = task
	metrics.ActivePolls.Inc()

	t.wg.Add(1)
	go t.run(ctx, e, task)

	t.logger.Debug("Poll task registered", zap.String("order_id", e.id))
}

// stopLocked cancels e's poll task if any. e.mu must be held.
func (t *Tracker) stopLocked(e *orderEntry) {
	if e.task == nil {
		return
	}
	e.task.cancel()
	e.task = nil
	metrics.ActivePolls.Dec()
	t.logger.Debug("Poll task cancelled", zap.String("order_id", e.id))
}

func (t *Tracker) run(ctx context.Context, e *orderEntry, task *pollTask) {
	defer t.wg.Done()

	timer := time.NewTimer(t.cfg.InitialDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if !t.tick(ctx, e, task) {
			return
		}
		timer.Reset(t.cfg.Interval)
	}
}

// tick runs one scheduled check and reports whether polling should continue
func (t *Tracker) tick(ctx context.Context, e *orderEntry, task *pollTask) bool {
	if !e.owns(task) {
		return false
	}
	if !task.deadline.IsZero() && !t.now().Before(task.deadline) {
		t.expire(e, task)
		return false
	}

	// a finalize does not abort the request, commit discards the stale result
	status, err := t.provider.CheckOrderSms(t.ctx, e.id)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		metrics.PollTicks.WithLabelValues("error").Inc()
		t.logger.Warn("Order check failed, retrying next tick",
			zap.String("order_id", e.id),
			zap.Error(err),
		)
		return true
	}

	kind := classify(status)
	metrics.PollTicks.WithLabelValues(kind.String()).Inc()
	if kind == domain.OutcomePending {
		return true
	}

	if event, ok := t.commit(e, task, kind, status); ok {
		t.publish(event)
	}
	return false
}

// commit applies a check result. A non-nil task must still be the registered
// one, otherwise the result is discarded.
func (t *Tracker) commit(e *orderEntry, task *pollTask, kind domain.OutcomeKind, status provider.SMSStatus) (domain.OrderEvent, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if task != nil && e.task != task {
		return domain.OrderEvent{}, false
	}
	if e.order.Status != domain.OrderPending {
		return domain.OrderEvent{}, false
	}

	var event domain.OrderEvent
	switch kind {
	case domain.OutcomeSMSReceived:
		e.order.Status = domain.OrderSMSReceived
		e.order.SMS = status.SMS
		event.Kind = domain.EventSMSReceived
	case domain.OutcomeProviderCanceled:
		e.order.Status = domain.OrderProviderCanceled
		event.Kind = domain.EventProviderCanceled
	default:
		return domain.OrderEvent{}, false
	}
	e.order.UpdatedAt = t.now()
	t.stopLocked(e)

	event.Order = e.order
	return event, true
}

func (t *Tracker) expire(e *orderEntry, task *pollTask) {
	e.mu.Lock()
	if e.task != task || e.order.Status != domain.OrderPending {
		e.mu.Unlock()
		return
	}
	e.order.Status = domain.OrderExpired
	e.order.UpdatedAt = t.now()
	t.stopLocked(e)
	event := domain.OrderEvent{Kind: domain.EventExpired, Order: e.order}
	e.mu.Unlock()

	t.logger.Info("Order expired", zap.String("order_id", e.id))
	metrics.PollTicks.WithLabelValues("expired").Inc()

	if err := t.provider.SetOrderStatus(t.ctx, e.id, provider.StatusCancel); err != nil {
		t.logger.Warn("Failed to cancel expired order", zap.String("order_id", e.id), zap.Error(err))
	}
	t.publish(event)
}

// publish records and announces an event. It runs on the tracker context
// because the poll task context is already cancelled by then.
func (t *Tracker) publish(event domain.OrderEvent) {
	order := event.Order
	if err := t.journal.UpdateStatus(t.ctx, order.ID, order.Status, order.SMS); err != nil {
		t.logger.Warn("Failed to journal order status", zap.String("order_id", order.ID), zap.Error(err))
	}

	if err := t.notifier.NotifyOrder(t.ctx, event); err != nil {
		metrics.Notifications.WithLabelValues(string(event.Kind), "failed").Inc()
		t.logger.Error("Failed to notify order event",
			zap.String("order_id", order.ID),
			zap.Int64("chat_id", order.ChatID),
			zap.String("event", string(event.Kind)),
			zap.Error(err),
		)
		return
	}
	metrics.Notifications.WithLabelValues(string(event.Kind), "sent").Inc()
	t.logger.Info("Order event delivered",
		zap.String("order_id", order.ID),
		zap.String("event", string(event.Kind)),
	)
}

func (t *Tracker) checkUntracked(ctx context.Context, orderID string) (domain.PollOutcome, error) {
	order := domain.Order{ID: orderID, Status: domain.OrderPending}
	status, err := t.provider.CheckOrderSms(ctx, orderID)
	if err != nil {
		return domain.PollOutcome{Kind: domain.OutcomePending, Order: order}, err
	}
	kind := classify(status)
	switch kind {
	case domain.OutcomeSMSReceived:
		order.Status = domain.OrderSMSReceived
		order.SMS = status.SMS
	case domain.OutcomeProviderCanceled:
		order.Status = domain.OrderProviderCanceled
	}
	return domain.PollOutcome{Kind: kind, Order: order, ProviderStatus: status.Status}, nil
}

func (e *orderEntry) snapshot() domain.Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.order
}

func (e *orderEntry) owns(task *pollTask) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.task == task
}

func classify(status provider.SMSStatus) domain.OutcomeKind {
	if status.SMS != "" {
		return domain.OutcomeSMSReceived
	}
	switch strings.ToLower(status.Status) {
	case "canceled", "cancelled", "refunded":
		return domain.OutcomeProviderCanceled
	}
	return domain.OutcomePending
}

func outcomeFor(order domain.Order) domain.PollOutcome {
	switch order.Status {
	case domain.OrderPending:
		return domain.PollOutcome{Kind: domain.OutcomePending, Order: order}
	case domain.OrderSMSReceived:
		return domain.PollOutcome{Kind: domain.OutcomeAlreadyReceived, Order: order}
	case domain.OrderProviderCanceled:
		return domain.PollOutcome{Kind: domain.OutcomeProviderCanceled, Order: order}
	}
	return domain.PollOutcome{Kind: domain.OutcomeClosed, Order: order}
}
