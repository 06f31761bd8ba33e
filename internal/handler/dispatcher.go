package handler

import (
	"context"
	"errors"
	"fmt"
	"html"
	"sync"

	"otpbot/internal/domain"
	"otpbot/internal/metrics"
	"otpbot/internal/provider"
	"otpbot/internal/repository"
	"otpbot/internal/service"

	"go.uber.org/zap"
)

const historyLimit = 10

// OrderTracker is the order lifecycle API used by the dispatcher
type OrderTracker interface {
	PlaceOrder(ctx context.Context, userID, chatID int64, svc domain.Service) (domain.Order, error)
	ManualCheck(ctx context.Context, userID int64, orderID string) (domain.PollOutcome, error)
	Finalize(ctx context.Context, userID int64, orderID string, action domain.FinalAction) (domain.Order, error)
}

// BalanceProvider reads the account balance upstream
type BalanceProvider interface {
	GetBalance(ctx context.Context) (string, error)
}

// Reply tells the transport how to answer an intent.
// A zero Reply only acknowledges the callback.
type Reply struct {
	Message domain.Message
	// Edit replaces the message the tapped button belongs to
	Edit bool
	// Notice is shown as a callback answer, or sent as text for commands
	Notice string
	// Alert shows the notice as a modal popup
	Alert bool
}

// HasMessage reports whether the reply carries a message to render
func (r Reply) HasMessage() bool {
	return r.Message.Text != ""
}

// Dispatcher interprets user intents. It is the only writer of sessions.
type Dispatcher struct {
	auth      *service.AuthService
	catalog   *service.CatalogService
	tracker   OrderTracker
	balance   BalanceProvider
	journal   repository.OrderJournal
	sessions  *SessionStore
	countryID string
	logger    *zap.Logger

	// Per-user locks so intents of one user run one at a time
	locks   map[int64]*sync.Mutex
	locksMu sync.Mutex
}

// NewDispatcher creates a new dispatcher
func NewDispatcher(
	auth *service.AuthService,
	catalog *service.CatalogService,
	tracker OrderTracker,
	balance BalanceProvider,
	journal repository.OrderJournal,
	sessions *SessionStore,
	countryID string,
	logger *zap.Logger,
) *Dispatcher {
	if journal == nil {
		journal = repository.NopJournal{}
	}
	return &Dispatcher{
		auth:      auth,
		catalog:   catalog,
		tracker:   tracker,
		balance:   balance,
		journal:   journal,
		sessions:  sessions,
		countryID: countryID,
		logger:    logger,
		locks:     make(map[int64]*sync.Mutex),
	}
}

// Dispatch handles one intent and returns what to render
func (d *Dispatcher) Dispatch(ctx context.Context, in domain.Intent) Reply {
	metrics.Intents.WithLabelValues(in.Kind.String()).Inc()

	if user := d.auth.User(in.UserID); !user.Authorized {
		d.logger.Warn("Rejected unauthorized user",
			zap.Int64("user_id", in.UserID),
			zap.String("intent", in.Kind.String()),
		)
		return Reply{Message: textMessage(in.ChatID, textUnauthorized, nil)}
	}

	lock := d.userLock(in.UserID)
	lock.Lock()
	defer lock.Unlock()

	session := d.sessions.Get(in.UserID)

	switch in.Kind {
	case domain.IntentMenu:
		session.Reset()
		return Reply{Message: menuMessage(in.ChatID, d.countryID), Edit: in.FromCallback}
	case domain.IntentShowList:
		session.StoreList(in.List, d.catalog.Refresh(ctx, in.List))
		return d.renderPage(in, session, in.List, 0, "")
	case domain.IntentPaginate:
		return d.renderPage(in, session, in.List, in.Page, "")
	case domain.IntentSearchStart:
		return d.startSearch(in, session)
	case domain.IntentText:
		return d.handleText(in, session)
	case domain.IntentBuy:
		return d.buy(ctx, in, session)
	case domain.IntentCheck:
		return d.check(ctx, in)
	case domain.IntentFinish:
		return d.finalize(ctx, in, domain.ActionFinish)
	case domain.IntentCancel:
		return d.finalize(ctx, in, domain.ActionCancel)
	case domain.IntentBalance:
		return d.showBalance(ctx, in)
	case domain.IntentHistory:
		return d.showHistory(ctx, in)
	}

	// noop: the page indicator was tapped
	return Reply{}
}

func (d *Dispatcher) userLock(userID int64) *sync.Mutex {
	d.locksMu.Lock()
	defer d.locksMu.Unlock()

	lock, exists := d.locks[userID]
	if !exists {
		lock = &sync.Mutex{}
		d.locks[userID] = lock
	}
	return lock
}

func (d *Dispatcher) renderPage(in domain.Intent, session *domain.Session, kind domain.ListKind, page int, term string) Reply {
	list, ok := session.List(kind)
	if !ok {
		return d.expired(in)
	}
	// a nav tap on an empty list is stale, a freshly opened empty list still renders
	if len(list) == 0 && in.Kind == domain.IntentPaginate {
		return d.expired(in)
	}

	totalPages := service.TotalPages(len(list), d.catalog.PageSize())
	if page > totalPages-1 {
		page = totalPages - 1
	}
	if page < 0 {
		page = 0
	}
	items, _ := d.catalog.Page(list, page)

	return Reply{
		Message: listMessage(in.ChatID, kind, len(list), items, page, totalPages, term),
		Edit:    in.FromCallback,
	}
}

func (d *Dispatcher) startSearch(in domain.Intent, session *domain.Session) Reply {
	if _, ok := session.List(in.List); !ok {
		return d.expired(in)
	}
	session.BeginSearch(in.List)
	return Reply{
		Message: textMessage(in.ChatID, textSearchPrompt, menuOnly()),
		Edit:    in.FromCallback,
	}
}

func (d *Dispatcher) handleText(in domain.Intent, session *domain.Session) Reply {
	if session.State != domain.StateSearching {
		return Reply{Message: textMessage(in.ChatID, textIdleHint, nil)}
	}

	target := session.SearchTarget
	session.EndSearch()

	list, ok := session.List(target)
	if !ok {
		return d.expired(in)
	}

	result := d.catalog.Filter(list, in.Text)
	d.logger.Info("Search completed",
		zap.Int64("user_id", in.UserID),
		zap.String("list", string(target)),
		zap.Int("matches", len(result)),
	)

	if len(result) == 0 {
		text := fmt.Sprintf("❌ Layanan \"%s\" tidak ditemukan.", html.EscapeString(in.Text))
		return Reply{Message: textMessage(in.ChatID, text, [][]domain.Button{
			{{Label: "🔍 Cari Lagi", Action: domain.SearchToken(target)}},
			{btnMainMenu},
		})}
	}

	session.StoreList(domain.ListFiltered, result)
	return d.renderPage(in, session, domain.ListFiltered, 0, in.Text)
}

func (d *Dispatcher) buy(ctx context.Context, in domain.Intent, session *domain.Session) Reply {
	svc, ok := session.FindService(in.ServiceID)
	if !ok {
		return d.expired(in)
	}

	order, err := d.tracker.PlaceOrder(ctx, in.UserID, in.ChatID, svc)
	if err != nil {
		return d.failure(in, "Gagal membuat order", err)
	}
	return Reply{Message: orderPlacedMessage(order)}
}

func (d *Dispatcher) check(ctx context.Context, in domain.Intent) Reply {
	outcome, err := d.tracker.ManualCheck(ctx, in.UserID, in.OrderID)
	if err != nil {
		return d.failure(in, "Gagal cek SMS", err)
	}

	switch outcome.Kind {
	case domain.OutcomeSMSReceived, domain.OutcomeAlreadyReceived:
		return Reply{Notice: fmt.Sprintf("📩 Kode SMS: %s", outcome.Order.SMS), Alert: true}
	case domain.OutcomeProviderCanceled:
		return Reply{Notice: "❌ Order dibatalkan oleh provider.", Alert: true}
	case domain.OutcomeClosed:
		return Reply{Notice: fmt.Sprintf("ℹ️ Order sudah ditutup (%s).", statusLabel(outcome.Order.Status))}
	}
	return Reply{Notice: "⏳ SMS belum masuk, silakan tunggu."}
}

func (d *Dispatcher) finalize(ctx context.Context, in domain.Intent, action domain.FinalAction) Reply {
	order, err := d.tracker.Finalize(ctx, in.UserID, in.OrderID, action)
	if err != nil {
		what := "Gagal menyelesaikan order"
		if action == domain.ActionCancel {
			what = "Gagal membatalkan order"
		}
		return d.failure(in, what, err)
	}
	return Reply{Message: finalizedMessage(in.ChatID, order), Edit: in.FromCallback}
}

func (d *Dispatcher) showBalance(ctx context.Context, in domain.Intent) Reply {
	balance, err := d.balance.GetBalance(ctx)
	if err != nil {
		reply := d.failure(in, "Gagal cek saldo", err)
		reply.Edit = in.FromCallback
		return reply
	}
	return Reply{Message: balanceMessage(in.ChatID, balance), Edit: in.FromCallback}
}

func (d *Dispatcher) showHistory(ctx context.Context, in domain.Intent) Reply {
	orders, err := d.journal.ListRecent(ctx, in.UserID, historyLimit)
	if errors.Is(err, repository.ErrJournalDisabled) {
		return Reply{Message: textMessage(in.ChatID, textHistoryOff, menuOnly())}
	}
	if err != nil {
		return d.failure(in, "Gagal memuat riwayat", err)
	}
	if len(orders) == 0 {
		return Reply{Message: textMessage(in.ChatID, textHistoryEmpty, menuOnly())}
	}
	return Reply{Message: historyMessage(in.ChatID, orders)}
}

func (d *Dispatcher) expired(in domain.Intent) Reply {
	d.logger.Info("Session expired",
		zap.Int64("user_id", in.UserID),
		zap.String("intent", in.Kind.String()),
	)
	return Reply{Message: textMessage(in.ChatID, textSessionExpired, menuOnly()), Edit: in.FromCallback}
}

// failure maps an error to user text. Provider messages are shown verbatim.
func (d *Dispatcher) failure(in domain.Intent, what string, err error) Reply {
	var text string
	switch reason := provider.Reason(err); {
	case errors.Is(err, domain.ErrNotOrderOwner):
		text = textNotOwner
	case reason != "":
		text = fmt.Sprintf("❌ %s: %s", what, html.EscapeString(reason))
	case errors.Is(err, provider.ErrUnreachable):
		text = fmt.Sprintf("❌ %s: server provider tidak dapat dihubungi.\n<i>%s</i>", what, html.EscapeString(err.Error()))
	default:
		text = fmt.Sprintf("❌ %s: %s", what, html.EscapeString(err.Error()))
	}

	d.logger.Warn("Intent failed",
		zap.Int64("user_id", in.UserID),
		zap.String("intent", in.Kind.String()),
		zap.Error(err),
	)
	return Reply{Message: textMessage(in.ChatID, text, menuOnly())}
}
