// Package broker places, cancels and queries single-leg market orders on a
// venue. Venue rejections are returned as values; errors mean the outcome
// is unknown (transport failure, timeout, malformed reply).
package broker

import (
	"context"

	"github.com/shopspring/decimal"

	"hypercopy/internal/models"
)

type AckStatus string

const (
	AckAccepted AckStatus = "accepted"
	AckRejected AckStatus = "rejected"
)

// VenueStatus is an order state as reported by the venue.
type VenueStatus string

const (
	VenueOpen            VenueStatus = "open"
	VenuePartiallyFilled VenueStatus = "partially_filled"
	VenueFilled          VenueStatus = "filled"
	VenueCanceled        VenueStatus = "canceled"
	VenueRejected        VenueStatus = "rejected"
	VenueUnknown         VenueStatus = "unknown"
)

type OrderRequest struct {
	Symbol        string
	Side          models.Side
	Qty           decimal.Decimal
	TIF           string
	ReduceOnly    bool
	ClientOrderID string
	LimitPx       *decimal.Decimal
}

type Ack struct {
	Status        AckStatus
	BrokerOrderID string
	Detail        map[string]any
}

func (a *Ack) Accepted() bool {
	return a != nil && a.Status == AckAccepted
}

type CancelRequest struct {
	Symbol        string
	ClientOrderID string
	BrokerOrderID string
}

type CancelResult struct {
	Canceled bool
	Detail   map[string]any
}

type QueryRequest struct {
	Symbol        string
	ClientOrderID string
	BrokerOrderID string
}

type OrderState struct {
	Status        VenueStatus
	BrokerOrderID string
	FilledQty     decimal.Decimal
	Detail        map[string]any
}

type Broker interface {
	Name() string
	PlaceMarket(ctx context.Context, req OrderRequest) (*Ack, error)
	Cancel(ctx context.Context, req CancelRequest) (*CancelResult, error)
	Query(ctx context.Context, req QueryRequest) (*OrderState, error)
}

func rejected(reason string, detail map[string]any) *Ack {
	if detail == nil {
		detail = map[string]any{}
	}
	detail["reason"] = reason
	return &Ack{Status: AckRejected, Detail: detail}
}
