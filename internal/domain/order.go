package domain

import "time"

// OrderStatus is the lifecycle state of a placed order
type OrderStatus string

const (
	OrderPending          OrderStatus = "pending"
	OrderSMSReceived      OrderStatus = "sms_received"
	OrderFinished         OrderStatus = "finished"
	OrderCanceled         OrderStatus = "canceled"
	OrderProviderCanceled OrderStatus = "provider_canceled"
	OrderExpired          OrderStatus = "expired"
)

// Terminal reports whether no further transitions are possible
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderFinished, OrderCanceled, OrderProviderCanceled, OrderExpired:
		return true
	}
	return false
}

// Order is a number purchased from the provider
type Order struct {
	ID          string
	UserID      int64
	ChatID      int64
	ServiceID   string
	ServiceName string
	Phone       string
	Price       string
	Status      OrderStatus
	SMS         string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// FinalAction is a user-requested terminal transition
type FinalAction int

const (
	ActionFinish FinalAction = iota + 1
	ActionCancel
)

// Status returns the order status the action leads to
func (a FinalAction) Status() OrderStatus {
	if a == ActionFinish {
		return OrderFinished
	}
	return OrderCanceled
}

func (a FinalAction) String() string {
	if a == ActionFinish {
		return "finish"
	}
	return "cancel"
}

// OutcomeKind classifies the result of one order check
type OutcomeKind int

const (
	OutcomePending OutcomeKind = iota
	OutcomeSMSReceived
	OutcomeAlreadyReceived
	OutcomeProviderCanceled
	OutcomeClosed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSMSReceived:
		return "sms_received"
	case OutcomeAlreadyReceived:
		return "already_received"
	case OutcomeProviderCanceled:
		return "provider_canceled"
	case OutcomeClosed:
		return "closed"
	}
	return "pending"
}

// PollOutcome is the result of a manual or scheduled check
type PollOutcome struct {
	Kind  OutcomeKind
	Order Order
	// ProviderStatus is the raw status string reported by the provider.
	ProviderStatus string
}

// EventKind is the reason the tracker notifies a chat
type EventKind string

const (
	EventSMSReceived      EventKind = "sms_received"
	EventProviderCanceled EventKind = "provider_canceled"
	EventExpired          EventKind = "expired"
)

// OrderEvent is emitted by the tracker when an order changes on its own
type OrderEvent struct {
	Kind  EventKind
	Order Order
}
