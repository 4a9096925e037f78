// Package events carries committed pool changes to live subscribers.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/RohanKapurDEV/sudoswap-sol/internal/models"
)

type Type string

const (
	TypePoolUpdated   Type = "pool_updated"
	TypePoolClosed    Type = "pool_closed"
	TypeTradeExecuted Type = "trade_executed"
)

// PoolUpdate is a snapshot of pool state after a committed operation.
type PoolUpdate struct {
	Address    string `json:"address"`
	Owner      string `json:"owner"`
	Kind       string `json:"kind"`
	Curve      string `json:"curve"`
	SpotPrice  uint64 `json:"spot_price"`
	Delta      uint64 `json:"delta"`
	FeeBps     uint16 `json:"fee_bps"`
	NFTCount   uint32 `json:"nft_count"`
	TradeCount uint64 `json:"trade_count"`
	Active     bool   `json:"active"`
}

// TradeUpdate describes one executed buy or sell.
type TradeUpdate struct {
	TxHash       string `json:"tx_hash"`
	Pool         string `json:"pool"`
	Trader       string `json:"trader"`
	Side         string `json:"side"`
	Mint         string `json:"mint"`
	Price        uint64 `json:"price"`
	PoolFee      uint64 `json:"pool_fee"`
	AuthorityFee uint64 `json:"authority_fee"`
	Royalty      uint64 `json:"royalty"`
	SpotAfter    uint64 `json:"spot_after"`
}

type Event struct {
	Type      Type         `json:"type"`
	Pool      *PoolUpdate  `json:"pool,omitempty"`
	Trade     *TradeUpdate `json:"trade,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// Address returns the pool the event concerns.
func (e Event) Address() string {
	if e.Pool != nil {
		return e.Pool.Address
	}
	if e.Trade != nil {
		return e.Trade.Pool
	}
	return ""
}

// Sink receives events after the operation that produced them committed.
type Sink interface {
	Publish(ctx context.Context, event Event) error
}

// NewPoolEvent snapshots p.
func NewPoolEvent(t Type, p *models.Pool) Event {
	return Event{
		Type: t,
		Pool: &PoolUpdate{
			Address:    p.Address,
			Owner:      p.Owner,
			Kind:       p.Kind.String(),
			Curve:      p.Curve.String(),
			SpotPrice:  p.SpotPrice,
			Delta:      p.Delta,
			FeeBps:     p.FeeBps,
			NFTCount:   p.NFTCount,
			TradeCount: p.TradeCount,
			Active:     p.Active,
		},
		Timestamp: time.Now().UTC(),
	}
}

// NewTradeEvent wraps a trade.
func NewTradeEvent(trade TradeUpdate) Event {
	return Event{Type: TypeTradeExecuted, Trade: &trade, Timestamp: time.Now().UTC()}
}

// Multi fans an event out to several sinks.
type Multi []Sink

func (m Multi) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Log writes every event to a logrus entry at debug level.
type Log struct {
	Entry *logrus.Entry
}

func (l Log) Publish(_ context.Context, event Event) error {
	entry := l.Entry
	if entry == nil {
		entry = logrus.WithField("component", "events")
	}
	entry.WithFields(logrus.Fields{
		"type": event.Type,
		"pool": event.Address(),
	}).Debug("event")
	return nil
}
