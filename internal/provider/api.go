package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"otpbot/internal/domain"
)

// StatusCode is the set_status code understood by the provider
type StatusCode int

const (
	StatusCancel StatusCode = 2
	StatusFinish StatusCode = 4
)

// CodeFor maps a user action to its provider status code
func CodeFor(action domain.FinalAction) StatusCode {
	if action == domain.ActionFinish {
		return StatusFinish
	}
	return StatusCancel
}

// Placement is the provider's answer to a successful order
type Placement struct {
	OrderID string
	Number  string
	Price   string
}

// SMSStatus is the provider's view of an order
type SMSStatus struct {
	SMS    string
	Status string
}

type serviceDTO struct {
	ID    flexString `json:"serviceID"`
	Name  string     `json:"serviceName"`
	Price flexString `json:"price"`
}

type placementDTO struct {
	OrderID flexString `json:"order_id"`
	Number  flexString `json:"number"`
	Price   flexString `json:"price"`
}

type statusDTO struct {
	SMS    flexString `json:"sms"`
	Status flexString `json:"status"`
}

type balanceDTO struct {
	Balance *flexString `json:"balance"`
	Saldo   *flexString `json:"saldo"`
}

// FetchServices returns the catalog for a list kind
func (c *Client) FetchServices(ctx context.Context, kind domain.ListKind) ([]domain.Service, error) {
	var (
		action string
		params = url.Values{}
	)
	switch kind {
	case domain.ListRegular:
		action = "getServices"
		params.Set("country_id", c.opts.CountryID)
	case domain.ListSpecial:
		action = "getSpecialServices"
	default:
		return nil, fmt.Errorf("list %q is not fetched from the provider", kind)
	}

	resp, err := c.checked(ctx, action, params)
	if err != nil {
		return nil, err
	}

	var dtos []serviceDTO
	if err := decodeData(resp.Data, &dtos); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedResponse, action, err)
	}

	services := make([]domain.Service, 0, len(dtos))
	for _, d := range dtos {
		services = append(services, domain.Service{
			ID:    d.ID.String(),
			Name:  d.Name,
			Price: d.Price.String(),
		})
	}
	return services, nil
}

// PlaceOrder buys a number for a service
func (c *Client) PlaceOrder(ctx context.Context, serviceID string) (Placement, error) {
	params := url.Values{}
	params.Set("service_id", serviceID)
	params.Set("operator_id", c.opts.OperatorID)
	params.Set("country_id", c.opts.CountryID)

	resp, err := c.checked(ctx, "get_order", params)
	if err != nil {
		return Placement{}, err
	}

	var dto placementDTO
	if err := decodeData(resp.Data, &dto); err != nil {
		return Placement{}, fmt.Errorf("%w: get_order: %v", ErrMalformedResponse, err)
	}
	if dto.OrderID.String() == "" {
		return Placement{}, fmt.Errorf("%w: get_order: missing order_id", ErrMalformedResponse)
	}

	return Placement{
		OrderID: dto.OrderID.String(),
		Number:  dto.Number.String(),
		Price:   dto.Price.String(),
	}, nil
}

// CheckOrderSms asks whether an SMS has arrived for an order
func (c *Client) CheckOrderSms(ctx context.Context, orderID string) (SMSStatus, error) {
	params := url.Values{}
	params.Set("order_id", orderID)

	resp, err := c.checked(ctx, "get_status", params)
	if err != nil {
		return SMSStatus{}, err
	}

	var dto statusDTO
	if err := decodeData(resp.Data, &dto); err != nil {
		return SMSStatus{}, fmt.Errorf("%w: get_status: %v", ErrMalformedResponse, err)
	}

	return SMSStatus{SMS: dto.SMS.String(), Status: dto.Status.String()}, nil
}

// SetOrderStatus finishes or cancels an order at the provider
func (c *Client) SetOrderStatus(ctx context.Context, orderID string, code StatusCode) error {
	params := url.Values{}
	params.Set("order_id", orderID)
	params.Set("status", fmt.Sprint(int(code)))

	_, err := c.checked(ctx, "set_status", params)
	return err
}

// GetBalance returns the account balance as reported by the provider
func (c *Client) GetBalance(ctx context.Context) (string, error) {
	resp, err := c.checked(ctx, "getBalance", nil)
	if err != nil {
		return "", err
	}

	data := bytes.TrimSpace(resp.Data)
	if len(data) > 0 && data[0] == '{' {
		var dto balanceDTO
		if err := json.Unmarshal(data, &dto); err != nil {
			return "", fmt.Errorf("%w: getBalance: %v", ErrMalformedResponse, err)
		}
		switch {
		case dto.Balance != nil:
			return dto.Balance.String(), nil
		case dto.Saldo != nil:
			return dto.Saldo.String(), nil
		}
		return "", fmt.Errorf("%w: getBalance: no balance field", ErrMalformedResponse)
	}

	var scalar flexString
	if err := decodeData(data, &scalar); err != nil {
		return "", fmt.Errorf("%w: getBalance: %v", ErrMalformedResponse, err)
	}
	return scalar.String(), nil
}

// checked calls an action and turns a declared failure into a LogicalError
func (c *Client) checked(ctx context.Context, action string, params url.Values) (*Response, error) {
	resp, err := c.Call(ctx, action, params)
	if err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, &LogicalError{Action: action, Msg: resp.Msg}
	}
	return resp, nil
}

func decodeData(data json.RawMessage, v any) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	return json.Unmarshal(data, v)
}
