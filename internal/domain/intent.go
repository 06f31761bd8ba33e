package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// IntentKind tags an incoming user intent
type IntentKind int

const (
	IntentNoop IntentKind = iota
	IntentMenu
	IntentShowList
	IntentPaginate
	IntentSearchStart
	IntentText
	IntentBuy
	IntentCheck
	IntentFinish
	IntentCancel
	IntentBalance
	IntentHistory
)

var intentNames = map[IntentKind]string{
	IntentNoop:        "noop",
	IntentMenu:        "menu",
	IntentShowList:    "show_list",
	IntentPaginate:    "paginate",
	IntentSearchStart: "search_start",
	IntentText:        "text",
	IntentBuy:         "buy",
	IntentCheck:       "check",
	IntentFinish:      "finish",
	IntentCancel:      "cancel",
	IntentBalance:     "balance",
	IntentHistory:     "history",
}

func (k IntentKind) String() string {
	if name, ok := intentNames[k]; ok {
		return name
	}
	return "unknown"
}

// Intent is a parsed user action. Which argument fields are set depends on Kind.
type Intent struct {
	Kind   IntentKind
	UserID int64
	ChatID int64
	// FromCallback is true when the intent came from an inline button,
	// so the reply may edit the message in place.
	FromCallback bool

	List      ListKind
	Page      int
	ServiceID string
	OrderID   string
	Text      string
}

// Action token prefixes and fixed tokens
const (
	TokenMenu        = "menu_utama"
	TokenListRegular = "list_reg"
	TokenListSpecial = "list_spec"
	TokenBalance     = "cek_saldo"
	TokenNoop        = "noop"

	prefixNav    = "nav_"
	prefixSearch = "start_search_"
	prefixBuy    = "buy_"
	prefixCheck  = "chk_"
	prefixFinish = "fin_"
	prefixCancel = "cncl_"
)

// ListToken returns the token that opens a list from the root menu
func ListToken(kind ListKind) string {
	if kind == ListSpecial {
		return TokenListSpecial
	}
	return TokenListRegular
}

// NavToken returns the token for a page of a list
func NavToken(kind ListKind, page int) string {
	return fmt.Sprintf("%s%s_%d", prefixNav, kind, page)
}

// SearchToken returns the token that enters search mode for a list
func SearchToken(kind ListKind) string {
	return prefixSearch + string(kind)
}

// BuyToken returns the purchase token for a service
func BuyToken(serviceID string) string { return prefixBuy + serviceID }

// CheckToken returns the manual check token for an order
func CheckToken(orderID string) string { return prefixCheck + orderID }

// FinishToken returns the finish token for an order
func FinishToken(orderID string) string { return prefixFinish + orderID }

// CancelToken returns the cancel token for an order
func CancelToken(orderID string) string { return prefixCancel + orderID }

// ParseAction decodes a callback action token into an intent.
// User and chat ids are left for the caller to fill in.
func ParseAction(token string) (Intent, error) {
	switch token {
	case TokenMenu:
		return Intent{Kind: IntentMenu}, nil
	case TokenListRegular:
		return Intent{Kind: IntentShowList, List: ListRegular}, nil
	case TokenListSpecial:
		return Intent{Kind: IntentShowList, List: ListSpecial}, nil
	case TokenBalance:
		return Intent{Kind: IntentBalance}, nil
	case TokenNoop:
		return Intent{Kind: IntentNoop}, nil
	}

	switch {
	case strings.HasPrefix(token, prefixNav):
		return parseNav(strings.TrimPrefix(token, prefixNav))
	case strings.HasPrefix(token, prefixSearch):
		kind, err := ParseListKind(strings.TrimPrefix(token, prefixSearch))
		if err != nil || !kind.Searchable() {
			return Intent{}, fmt.Errorf("%w: %q", ErrInvalidToken, token)
		}
		return Intent{Kind: IntentSearchStart, List: kind}, nil
	case strings.HasPrefix(token, prefixBuy):
		return withID(IntentBuy, token, prefixBuy)
	case strings.HasPrefix(token, prefixCheck):
		return withID(IntentCheck, token, prefixCheck)
	case strings.HasPrefix(token, prefixFinish):
		return withID(IntentFinish, token, prefixFinish)
	case strings.HasPrefix(token, prefixCancel):
		return withID(IntentCancel, token, prefixCancel)
	}

	return Intent{}, fmt.Errorf("%w: %q", ErrInvalidToken, token)
}

func parseNav(rest string) (Intent, error) {
	idx := strings.LastIndex(rest, "_")
	if idx <= 0 {
		return Intent{}, fmt.Errorf("%w: nav %q", ErrInvalidToken, rest)
	}
	kind, err := ParseListKind(rest[:idx])
	if err != nil {
		return Intent{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	page, err := strconv.Atoi(rest[idx+1:])
	if err != nil || page < 0 {
		return Intent{}, fmt.Errorf("%w: nav page %q", ErrInvalidToken, rest[idx+1:])
	}
	return Intent{Kind: IntentPaginate, List: kind, Page: page}, nil
}

func withID(kind IntentKind, token, prefix string) (Intent, error) {
	id := strings.TrimPrefix(token, prefix)
	if id == "" {
		return Intent{}, fmt.Errorf("%w: %q has no id", ErrInvalidToken, token)
	}
	in := Intent{Kind: kind}
	if kind == IntentBuy {
		in.ServiceID = id
	} else {
		in.OrderID = id
	}
	return in, nil
}
