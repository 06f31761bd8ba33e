package handler

import (
	"fmt"
	"html"
	"strings"

	"otpbot/internal/domain"
)

const maxLabelRunes = 20

// Fixed user-facing texts
const (
	textUnauthorized   = "❌ Maaf, Anda tidak diizinkan menggunakan bot ini."
	textSessionExpired = "⚠️ Sesi sudah kedaluwarsa. Silakan kembali ke menu utama."
	textIdleHint       = "Ketik /start untuk membuka menu utama."
	textSearchPrompt   = "🔍 Ketik nama layanan yang ingin dicari:"
	textEmptyList      = "⚠️ Tidak ada layanan tersedia saat ini."
	textNotOwner       = "❌ Order ini bukan milik Anda."
	textHistoryOff     = "📜 Riwayat tidak tersedia, database belum dikonfigurasi."
	textHistoryEmpty   = "📜 Belum ada riwayat order."
)

var (
	btnMainMenu = domain.Button{Label: "🏠 Menu Utama", Action: domain.TokenMenu}
	btnRegular  = domain.Button{Label: "📱 Layanan Regular", Action: domain.TokenListRegular}
	btnSpecial  = domain.Button{Label: "🌟 Layanan Spesial", Action: domain.TokenListSpecial}
	btnBalance  = domain.Button{Label: "💰 Cek Saldo", Action: domain.TokenBalance}
)

var listTitles = map[domain.ListKind]string{
	domain.ListRegular:  "📱 <b>Layanan Regular</b>",
	domain.ListSpecial:  "🌟 <b>Layanan Spesial</b>",
	domain.ListFiltered: "🔍 <b>Hasil Pencarian</b>",
}

func menuOnly() [][]domain.Button {
	return [][]domain.Button{{btnMainMenu}}
}

func menuMessage(chatID int64, countryID string) domain.Message {
	return domain.Message{
		ChatID: chatID,
		Text: fmt.Sprintf(
			"🤖 <b>Halo! Selamat Datang di Bot OTP.</b>\nCountry ID Aktif: %s\n\nSilakan pilih menu di bawah ini:",
			html.EscapeString(countryID),
		),
		Buttons: [][]domain.Button{{btnRegular}, {btnSpecial}, {btnBalance}},
	}
}

// serviceLabel renders "<name> (<price>)" with the name cut to 20 runes
func serviceLabel(svc domain.Service) string {
	name := []rune(svc.Name)
	if len(name) > maxLabelRunes {
		name = name[:maxLabelRunes]
	}
	return fmt.Sprintf("%s (%s)", string(name), svc.Price)
}

// catalogKeyboard lays services out two per row followed by navigation rows
func catalogKeyboard(items []domain.Service, kind domain.ListKind, page, totalPages int) [][]domain.Button {
	rows := make([][]domain.Button, 0, len(items)/2+4)

	row := make([]domain.Button, 0, 2)
	for _, svc := range items {
		row = append(row, domain.Button{Label: serviceLabel(svc), Action: domain.BuyToken(svc.ID)})
		if len(row) == 2 {
			rows = append(rows, row)
			row = make([]domain.Button, 0, 2)
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}

	nav := make([]domain.Button, 0, 3)
	if page > 0 {
		nav = append(nav, domain.Button{Label: "⬅️", Action: domain.NavToken(kind, page-1)})
	}
	nav = append(nav, domain.Button{
		Label:  fmt.Sprintf("📄 %d/%d", page+1, totalPages),
		Action: domain.TokenNoop,
	})
	if page < totalPages-1 {
		nav = append(nav, domain.Button{Label: "➡️", Action: domain.NavToken(kind, page+1)})
	}
	rows = append(rows, nav)

	if kind.Searchable() {
		rows = append(rows, []domain.Button{{Label: "🔍 Cari Layanan (Ketik)", Action: domain.SearchToken(kind)}})
	}
	rows = append(rows, []domain.Button{btnMainMenu})
	return rows
}

func listMessage(chatID int64, kind domain.ListKind, total int, items []domain.Service, page, totalPages int, term string) domain.Message {
	var b strings.Builder
	b.WriteString(listTitles[kind])
	if term != "" {
		fmt.Fprintf(&b, " \"%s\"", html.EscapeString(term))
	}
	if total == 0 {
		b.WriteString("\n\n")
		b.WriteString(textEmptyList)
	} else {
		fmt.Fprintf(&b, "\nTotal: %d layanan\n\nPilih layanan untuk membeli nomor:", total)
	}

	return domain.Message{
		ChatID:  chatID,
		Text:    b.String(),
		Buttons: catalogKeyboard(items, kind, page, totalPages),
	}
}

func orderButtons(orderID string) [][]domain.Button {
	return [][]domain.Button{
		{{Label: "🔄 Cek SMS", Action: domain.CheckToken(orderID)}},
		{
			{Label: "✅ Selesai", Action: domain.FinishToken(orderID)},
			{Label: "❌ Batalkan", Action: domain.CancelToken(orderID)},
		},
	}
}

func orderPlacedMessage(order domain.Order) domain.Message {
	text := fmt.Sprintf(
		"✅ <b>Order Berhasil!</b>\n\n"+
			"🆔 Order ID: <code>%s</code>\n"+
			"📱 Layanan: %s\n"+
			"📞 Nomor: <code>%s</code>\n"+
			"💰 Harga: %s\n\n"+
			"⏳ Menunggu SMS masuk, notifikasi akan dikirim otomatis.",
		html.EscapeString(order.ID),
		html.EscapeString(order.ServiceName),
		html.EscapeString(order.Phone),
		html.EscapeString(order.Price),
	)
	return domain.Message{ChatID: order.ChatID, Text: text, Buttons: orderButtons(order.ID)}
}

func finalizedMessage(chatID int64, order domain.Order) domain.Message {
	var text string
	switch order.Status {
	case domain.OrderFinished:
		text = fmt.Sprintf("✅ Order <code>%s</code> selesai.", html.EscapeString(order.ID))
	case domain.OrderCanceled:
		text = fmt.Sprintf("🚫 Order <code>%s</code> dibatalkan.", html.EscapeString(order.ID))
	default:
		text = fmt.Sprintf("ℹ️ Order <code>%s</code> sudah ditutup (%s).", html.EscapeString(order.ID), statusLabel(order.Status))
	}
	return domain.Message{ChatID: chatID, Text: text, Buttons: menuOnly()}
}

// eventMessage renders a tracker notification for the owning chat
func eventMessage(event domain.OrderEvent) domain.Message {
	order := event.Order
	msg := domain.Message{ChatID: order.ChatID, Buttons: menuOnly()}

	switch event.Kind {
	case domain.EventSMSReceived:
		msg.Text = fmt.Sprintf(
			"📩 <b>SMS MASUK</b>\n\n"+
				"🆔 Order ID: <code>%s</code>\n"+
				"📞 Nomor: <code>%s</code>\n"+
				"💬 Pesan: <code>%s</code>",
			html.EscapeString(order.ID),
			html.EscapeString(order.Phone),
			html.EscapeString(order.SMS),
		)
		msg.Buttons = [][]domain.Button{
			{{Label: "✅ Selesai", Action: domain.FinishToken(order.ID)}},
			{btnMainMenu},
		}
	case domain.EventProviderCanceled:
		msg.Text = fmt.Sprintf(
			"❌ <b>Order Dibatalkan Provider</b>\n\n🆔 Order ID: <code>%s</code>\n📞 Nomor: <code>%s</code>",
			html.EscapeString(order.ID),
			html.EscapeString(order.Phone),
		)
	case domain.EventExpired:
		msg.Text = fmt.Sprintf(
			"⌛ <b>Order Kedaluwarsa</b>\n\n🆔 Order ID: <code>%s</code>\n📞 Nomor: <code>%s</code>\nSMS tidak masuk, order dibatalkan.",
			html.EscapeString(order.ID),
			html.EscapeString(order.Phone),
		)
	}
	return msg
}

func balanceMessage(chatID int64, balance string) domain.Message {
	return domain.Message{
		ChatID:  chatID,
		Text:    fmt.Sprintf("💰 Saldo Anda: <b>%s</b>", html.EscapeString(balance)),
		Buttons: menuOnly(),
	}
}

func historyMessage(chatID int64, orders []domain.Order) domain.Message {
	var b strings.Builder
	b.WriteString("📜 <b>Riwayat Order</b>\n")
	for i, order := range orders {
		fmt.Fprintf(&b, "\n%d. <code>%s</code> %s\n   📞 %s · %s · %s",
			i+1,
			html.EscapeString(order.ID),
			html.EscapeString(order.ServiceName),
			html.EscapeString(order.Phone),
			statusLabel(order.Status),
			order.CreatedAt.Format("02/01 15:04"),
		)
		if order.SMS != "" {
			fmt.Fprintf(&b, "\n   💬 <code>%s</code>", html.EscapeString(order.SMS))
		}
	}
	return domain.Message{ChatID: chatID, Text: b.String(), Buttons: menuOnly()}
}

func textMessage(chatID int64, text string, buttons [][]domain.Button) domain.Message {
	return domain.Message{ChatID: chatID, Text: text, Buttons: buttons}
}

func statusLabel(status domain.OrderStatus) string {
	switch status {
	case domain.OrderPending:
		return "⏳ menunggu"
	case domain.OrderSMSReceived:
		return "📩 sms masuk"
	case domain.OrderFinished:
		return "✅ selesai"
	case domain.OrderCanceled:
		return "🚫 dibatalkan"
	case domain.OrderProviderCanceled:
		return "❌ dibatalkan provider"
	case domain.OrderExpired:
		return "⌛ kedaluwarsa"
	}
	return string(status)
}
