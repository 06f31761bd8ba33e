package handler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"otpbot/internal/domain"
	"otpbot/internal/provider"
	"otpbot/internal/repository"
	"otpbot/internal/service"
	"otpbot/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	ownerID    = int64(1017778214)
	partnerID  = int64(2096488866)
	strangerID = int64(42)
)

type fixture struct {
	dispatcher *Dispatcher
	sessions   *SessionStore
	tracker    *service.Tracker
	catalog    *testutil.MockCatalogProvider
	orders     *testutil.MockOrderProvider
	balance    *testutil.MockBalanceProvider
	journal    *testutil.MockOrderJournal
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := testutil.NewTestLogger()

	f := &fixture{
		sessions: NewSessionStore(),
		catalog:  new(testutil.MockCatalogProvider),
		orders:   new(testutil.MockOrderProvider),
		balance:  new(testutil.MockBalanceProvider),
		journal:  new(testutil.MockOrderJournal),
	}
	notifier := new(testutil.MockNotifier)
	notifier.On("NotifyOrder", mock.Anything, mock.Anything).Return(nil).Maybe()

	f.tracker = service.NewTracker(
		f.orders,
		notifier,
		nil,
		service.TrackerConfig{Interval: time.Hour, InitialDelay: time.Hour},
		logger,
	)
	t.Cleanup(f.tracker.Stop)

	f.dispatcher = NewDispatcher(
		service.NewAuthService([]int64{ownerID, partnerID}),
		service.NewCatalogService(f.catalog, 10, logger),
		f.tracker,
		f.balance,
		f.journal,
		f.sessions,
		"6",
		logger,
	)
	return f
}

func (f *fixture) dispatch(in domain.Intent) Reply {
	if in.UserID == 0 {
		in.UserID = ownerID
	}
	in.ChatID = in.UserID
	in.FromCallback = in.Kind != domain.IntentText
	return f.dispatcher.Dispatch(context.Background(), in)
}

func (f *fixture) loadRegular(t *testing.T, n int) Reply {
	t.Helper()
	f.catalog.On("FetchServices", mock.Anything, domain.ListRegular).
		Return(testutil.NewTestServices(n), nil).Once()
	return f.dispatch(domain.Intent{Kind: domain.IntentShowList, List: domain.ListRegular})
}

func labels(row []domain.Button) []string {
	out := make([]string, 0, len(row))
	for _, b := range row {
		out = append(out, b.Label)
	}
	return out
}

func actions(rows [][]domain.Button) []string {
	var out []string
	for _, row := range rows {
		for _, b := range row {
			out = append(out, b.Action)
		}
	}
	return out
}

func buyIDs(rows [][]domain.Button) []string {
	var ids []string
	for _, a := range actions(rows) {
		in, err := domain.ParseAction(a)
		if err == nil && in.Kind == domain.IntentBuy {
			ids = append(ids, in.ServiceID)
		}
	}
	return ids
}

func navRow(t *testing.T, rows [][]domain.Button) []domain.Button {
	t.Helper()
	for _, row := range rows {
		for _, b := range row {
			if b.Action == domain.TokenNoop {
				return row
			}
		}
	}
	t.Fatal("no pagination row")
	return nil
}

func TestDispatcher_UnauthorizedNeverMutates(t *testing.T) {
	f := newFixture(t)

	intents := []domain.Intent{
		{Kind: domain.IntentMenu},
		{Kind: domain.IntentShowList, List: domain.ListRegular},
		{Kind: domain.IntentShowList, List: domain.ListSpecial},
		{Kind: domain.IntentPaginate, List: domain.ListRegular, Page: 1},
		{Kind: domain.IntentSearchStart, List: domain.ListRegular},
		{Kind: domain.IntentText, Text: "whatsapp"},
		{Kind: domain.IntentBuy, ServiceID: "1"},
		{Kind: domain.IntentCheck, OrderID: "555"},
		{Kind: domain.IntentFinish, OrderID: "555"},
		{Kind: domain.IntentCancel, OrderID: "555"},
		{Kind: domain.IntentBalance},
		{Kind: domain.IntentHistory},
		{Kind: domain.IntentNoop},
	}

	for _, in := range intents {
		t.Run(in.Kind.String(), func(t *testing.T) {
			in.UserID = strangerID
			reply := f.dispatch(in)

			assert.Equal(t, textUnauthorized, reply.Message.Text)
			assert.Empty(t, reply.Message.Buttons)
		})
	}

	assert.Equal(t, 0, f.sessions.Len())
	assert.Equal(t, 0, f.tracker.ActivePolls())
	f.catalog.AssertNotCalled(t, "FetchServices", mock.Anything, mock.Anything)
	f.orders.AssertNotCalled(t, "PlaceOrder", mock.Anything, mock.Anything)
	f.orders.AssertNotCalled(t, "CheckOrderSms", mock.Anything, mock.Anything)
	f.orders.AssertNotCalled(t, "SetOrderStatus", mock.Anything, mock.Anything, mock.Anything)
	f.balance.AssertNotCalled(t, "GetBalance", mock.Anything)
	f.journal.AssertNotCalled(t, "ListRecent", mock.Anything, mock.Anything, mock.Anything)
}

func TestDispatcher_MenuResetsSession(t *testing.T) {
	f := newFixture(t)
	f.loadRegular(t, 5)
	f.dispatch(domain.Intent{Kind: domain.IntentSearchStart, List: domain.ListRegular})

	session, ok := f.sessions.Peek(ownerID)
	require.True(t, ok)
	require.Equal(t, domain.StateSearching, session.State)

	reply := f.dispatch(domain.Intent{Kind: domain.IntentMenu})

	assert.Contains(t, reply.Message.Text, "Country ID Aktif: 6")
	assert.True(t, reply.Edit)
	assert.Equal(t, []string{domain.TokenListRegular, domain.TokenListSpecial, domain.TokenBalance}, actions(reply.Message.Buttons))
	assert.Equal(t, domain.StateIdle, session.State)
	_, cached := session.List(domain.ListRegular)
	assert.False(t, cached)
}

func TestDispatcher_PaginationOf23Services(t *testing.T) {
	f := newFixture(t)

	first := f.loadRegular(t, 23)
	assert.Contains(t, first.Message.Text, "Total: 23 layanan")
	assert.Equal(t, []string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "10"}, buyIDs(first.Message.Buttons))
	assert.Equal(t, []string{"📄 1/3", "➡️"}, labels(navRow(t, first.Message.Buttons)))
	assert.Contains(t, actions(first.Message.Buttons), domain.NavToken(domain.ListRegular, 1))
	assert.Contains(t, actions(first.Message.Buttons), domain.SearchToken(domain.ListRegular))
	assert.Contains(t, actions(first.Message.Buttons), domain.TokenMenu)

	// services are laid out two per row
	assert.Len(t, first.Message.Buttons[0], 2)
	assert.Equal(t, "Service 1 (1001)", first.Message.Buttons[0][0].Label)

	last := f.dispatch(domain.Intent{Kind: domain.IntentPaginate, List: domain.ListRegular, Page: 2})
	assert.True(t, last.Edit)
	assert.Equal(t, []string{"21", "22", "23"}, buyIDs(last.Message.Buttons))
	assert.Equal(t, []string{"⬅️", "📄 3/3"}, labels(navRow(t, last.Message.Buttons)))
	assert.Contains(t, actions(last.Message.Buttons), domain.NavToken(domain.ListRegular, 1))

	// pagination never refetches
	f.catalog.AssertNumberOfCalls(t, "FetchServices", 1)
}

func TestDispatcher_PaginationClampsPage(t *testing.T) {
	f := newFixture(t)
	f.loadRegular(t, 23)

	reply := f.dispatch(domain.Intent{Kind: domain.IntentPaginate, List: domain.ListRegular, Page: 9})
	assert.Equal(t, []string{"21", "22", "23"}, buyIDs(reply.Message.Buttons))
	assert.Equal(t, []string{"⬅️", "📄 3/3"}, labels(navRow(t, reply.Message.Buttons)))
}

func TestDispatcher_EmptyListStillRenders(t *testing.T) {
	f := newFixture(t)
	f.catalog.On("FetchServices", mock.Anything, domain.ListSpecial).
		Return(nil, &provider.LogicalError{Action: "getSpecialServices", Msg: "maintenance"})

	reply := f.dispatch(domain.Intent{Kind: domain.IntentShowList, List: domain.ListSpecial})

	assert.Contains(t, reply.Message.Text, textEmptyList)
	assert.Equal(t, []string{"📄 1/0"}, labels(navRow(t, reply.Message.Buttons)))
	assert.Empty(t, buyIDs(reply.Message.Buttons))

	// paging an empty list is a stale tap
	again := f.dispatch(domain.Intent{Kind: domain.IntentPaginate, List: domain.ListSpecial, Page: 0})
	assert.Equal(t, textSessionExpired, again.Message.Text)
	assert.True(t, again.Edit)
}

func TestDispatcher_StaleNavAfterEmptyRefresh(t *testing.T) {
	f := newFixture(t)
	f.loadRegular(t, 23)

	f.catalog.On("FetchServices", mock.Anything, domain.ListRegular).
		Return([]domain.Service{}, nil).Once()
	reopened := f.dispatch(domain.Intent{Kind: domain.IntentShowList, List: domain.ListRegular})
	assert.Contains(t, reopened.Message.Text, textEmptyList)

	reply := f.dispatch(domain.Intent{Kind: domain.IntentPaginate, List: domain.ListRegular, Page: 1})
	assert.Equal(t, textSessionExpired, reply.Message.Text)
	assert.Equal(t, [][]domain.Button{{btnMainMenu}}, reply.Message.Buttons)
}

func TestDispatcher_SessionExpired(t *testing.T) {
	tests := []struct {
		name string
		in   domain.Intent
	}{
		{name: "paginate", in: domain.Intent{Kind: domain.IntentPaginate, List: domain.ListRegular, Page: 1}},
		{name: "paginate filtered", in: domain.Intent{Kind: domain.IntentPaginate, List: domain.ListFiltered, Page: 0}},
		{name: "search start", in: domain.Intent{Kind: domain.IntentSearchStart, List: domain.ListSpecial}},
		{name: "stale buy", in: domain.Intent{Kind: domain.IntentBuy, ServiceID: "77"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			reply := f.dispatch(tt.in)

			assert.Equal(t, textSessionExpired, reply.Message.Text)
			assert.Equal(t, []string{domain.TokenMenu}, actions(reply.Message.Buttons))
			f.orders.AssertNotCalled(t, "PlaceOrder", mock.Anything, mock.Anything)
		})
	}
}

func TestDispatcher_SearchFlow(t *testing.T) {
	f := newFixture(t)
	f.loadRegular(t, 23)

	prompt := f.dispatch(domain.Intent{Kind: domain.IntentSearchStart, List: domain.ListRegular})
	assert.Equal(t, textSearchPrompt, prompt.Message.Text)

	session, _ := f.sessions.Peek(ownerID)
	assert.Equal(t, domain.StateSearching, session.State)
	assert.Equal(t, domain.ListRegular, session.SearchTarget)

	result := f.dispatch(domain.Intent{Kind: domain.IntentText, Text: "service 2"})
	assert.False(t, result.Edit)
	assert.Contains(t, result.Message.Text, "Total: 5 layanan")
	assert.Equal(t, []string{"2", "20", "21", "22", "23"}, buyIDs(result.Message.Buttons))
	assert.NotContains(t, actions(result.Message.Buttons), domain.SearchToken(domain.ListFiltered))
	assert.Contains(t, actions(result.Message.Buttons), domain.TokenMenu)
	assert.Equal(t, domain.StateIdle, session.State)

	filtered, ok := session.List(domain.ListFiltered)
	require.True(t, ok)
	assert.Len(t, filtered, 5)

	// buying from the filtered list resolves the service
	svc, ok := session.FindService("21")
	require.True(t, ok)
	assert.Equal(t, "Service 21", svc.Name)

	hint := f.dispatch(domain.Intent{Kind: domain.IntentText, Text: "service 2"})
	assert.Equal(t, textIdleHint, hint.Message.Text)
}

func TestDispatcher_SearchWithoutMatches(t *testing.T) {
	f := newFixture(t)
	f.loadRegular(t, 3)
	f.dispatch(domain.Intent{Kind: domain.IntentSearchStart, List: domain.ListRegular})

	reply := f.dispatch(domain.Intent{Kind: domain.IntentText, Text: "<tiktok>"})

	assert.Contains(t, reply.Message.Text, "&lt;tiktok&gt;")
	assert.Contains(t, reply.Message.Text, "tidak ditemukan")
	assert.Contains(t, actions(reply.Message.Buttons), domain.SearchToken(domain.ListRegular))

	session, _ := f.sessions.Peek(ownerID)
	assert.Equal(t, domain.StateIdle, session.State)
	_, ok := session.List(domain.ListFiltered)
	assert.False(t, ok)
}

func TestDispatcher_BuyStartsTracking(t *testing.T) {
	f := newFixture(t)
	f.loadRegular(t, 23)
	f.orders.On("PlaceOrder", mock.Anything, "5").
		Return(provider.Placement{OrderID: "555", Number: "+1555000", Price: "10"}, nil)

	reply := f.dispatch(domain.Intent{Kind: domain.IntentBuy, ServiceID: "5"})

	assert.False(t, reply.Edit)
	assert.Contains(t, reply.Message.Text, "555")
	assert.Contains(t, reply.Message.Text, "+1555000")
	assert.Contains(t, reply.Message.Text, "Service 5")
	assert.Equal(t,
		[]string{domain.CheckToken("555"), domain.FinishToken("555"), domain.CancelToken("555")},
		actions(reply.Message.Buttons),
	)
	assert.True(t, f.tracker.IsPolling("555"))

	order, ok := f.tracker.Get("555")
	require.True(t, ok)
	assert.Equal(t, ownerID, order.UserID)
	assert.Equal(t, domain.OrderPending, order.Status)
}

func TestDispatcher_BuyFailureShowsProviderMessage(t *testing.T) {
	f := newFixture(t)
	f.loadRegular(t, 3)
	f.orders.On("PlaceOrder", mock.Anything, "1").
		Return(provider.Placement{}, &provider.LogicalError{Action: "get_order", Msg: "Saldo tidak cukup"})

	reply := f.dispatch(domain.Intent{Kind: domain.IntentBuy, ServiceID: "1"})

	assert.Contains(t, reply.Message.Text, "Saldo tidak cukup")
	assert.Equal(t, 0, f.tracker.ActivePolls())
}

func TestDispatcher_BuyUnreachable(t *testing.T) {
	f := newFixture(t)
	f.loadRegular(t, 3)
	f.orders.On("PlaceOrder", mock.Anything, "1").
		Return(provider.Placement{}, fmt.Errorf("%w: get_order after 3 attempts: timeout", provider.ErrUnreachable))

	reply := f.dispatch(domain.Intent{Kind: domain.IntentBuy, ServiceID: "1"})

	assert.Contains(t, reply.Message.Text, "tidak dapat dihubungi")
	assert.Contains(t, reply.Message.Text, "timeout")
}

func TestDispatcher_OrderActions(t *testing.T) {
	f := newFixture(t)
	f.tracker.StartPolling(testutil.NewTestOrder("555", ownerID))

	f.orders.On("CheckOrderSms", mock.Anything, "555").
		Return(provider.SMSStatus{Status: "Waiting"}, nil).Once()
	pending := f.dispatch(domain.Intent{Kind: domain.IntentCheck, OrderID: "555"})
	assert.False(t, pending.HasMessage())
	assert.Contains(t, pending.Notice, "belum masuk")

	denied := f.dispatch(domain.Intent{Kind: domain.IntentFinish, OrderID: "555", UserID: partnerID})
	assert.Equal(t, textNotOwner, denied.Message.Text)
	assert.True(t, f.tracker.IsPolling("555"))

	f.orders.On("SetOrderStatus", mock.Anything, "555", provider.StatusFinish).Return(nil)
	finished := f.dispatch(domain.Intent{Kind: domain.IntentFinish, OrderID: "555"})
	assert.True(t, finished.Edit)
	assert.Contains(t, finished.Message.Text, "selesai")
	assert.False(t, f.tracker.IsPolling("555"))

	closed := f.dispatch(domain.Intent{Kind: domain.IntentCheck, OrderID: "555"})
	assert.Contains(t, closed.Notice, "sudah ditutup")
}

func TestDispatcher_CheckShowsSMS(t *testing.T) {
	f := newFixture(t)
	f.tracker.StartPolling(testutil.NewTestOrder("555", ownerID))
	f.orders.On("CheckOrderSms", mock.Anything, "555").
		Return(provider.SMSStatus{SMS: "482193"}, nil).Once()

	reply := f.dispatch(domain.Intent{Kind: domain.IntentCheck, OrderID: "555"})

	assert.True(t, reply.Alert)
	assert.Contains(t, reply.Notice, "482193")
	assert.False(t, f.tracker.IsPolling("555"))
}

func TestDispatcher_CancelRejectedByProvider(t *testing.T) {
	f := newFixture(t)
	f.tracker.StartPolling(testutil.NewTestOrder("555", ownerID))
	f.orders.On("SetOrderStatus", mock.Anything, "555", provider.StatusCancel).
		Return(&provider.LogicalError{Action: "set_status", Msg: "order tidak bisa dibatalkan"})

	reply := f.dispatch(domain.Intent{Kind: domain.IntentCancel, OrderID: "555"})

	assert.Contains(t, reply.Message.Text, "Gagal membatalkan order")
	assert.Contains(t, reply.Message.Text, "order tidak bisa dibatalkan")
	assert.True(t, f.tracker.IsPolling("555"))
}

func TestDispatcher_Balance(t *testing.T) {
	tests := []struct {
		name     string
		balance  string
		err      error
		contains string
	}{
		{name: "balance shown", balance: "15000", contains: "Saldo Anda: <b>15000</b>"},
		{name: "invalid key", err: &provider.LogicalError{Action: "getBalance", Msg: "invalid key"}, contains: "invalid key"},
		{name: "unreachable", err: fmt.Errorf("%w: getBalance", provider.ErrUnreachable), contains: "tidak dapat dihubungi"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.balance.On("GetBalance", mock.Anything).Return(tt.balance, tt.err)

			reply := f.dispatch(domain.Intent{Kind: domain.IntentBalance})

			assert.Contains(t, reply.Message.Text, tt.contains)
			assert.True(t, reply.Edit)
			assert.Equal(t, []string{domain.TokenMenu}, actions(reply.Message.Buttons))
		})
	}
}

func TestDispatcher_History(t *testing.T) {
	created := time.Date(2024, 6, 15, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		name     string
		orders   []domain.Order
		err      error
		contains []string
	}{
		{
			name:     "journal disabled",
			err:      repository.ErrJournalDisabled,
			contains: []string{textHistoryOff},
		},
		{
			name:     "no orders",
			orders:   []domain.Order{},
			contains: []string{textHistoryEmpty},
		},
		{
			name: "orders listed",
			orders: []domain.Order{
				{ID: "556", ServiceName: "Telegram", Phone: "+62899", Status: domain.OrderPending, CreatedAt: created},
				{ID: "555", ServiceName: "WhatsApp", Phone: "+62812", Status: domain.OrderFinished, SMS: "482193", CreatedAt: created},
			},
			contains: []string{"Riwayat Order", "556", "Telegram", "482193", "selesai", "15/06 10:30"},
		},
		{
			name:     "query error",
			err:      fmt.Errorf("db error"),
			contains: []string{"Gagal memuat riwayat"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.journal.On("ListRecent", mock.Anything, ownerID, historyLimit).Return(tt.orders, tt.err)

			reply := f.dispatch(domain.Intent{Kind: domain.IntentHistory})

			for _, s := range tt.contains {
				assert.Contains(t, reply.Message.Text, s)
			}
			f.journal.AssertExpectations(t)
		})
	}
}

func TestDispatcher_NoopOnlyAcknowledges(t *testing.T) {
	f := newFixture(t)
	reply := f.dispatch(domain.Intent{Kind: domain.IntentNoop})

	assert.False(t, reply.HasMessage())
	assert.Empty(t, reply.Notice)
}
