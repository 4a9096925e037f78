package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/RohanKapurDEV/sudoswap-sol/internal/curve"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/models"
)

type MockSink struct {
	mock.Mock
}

func (m *MockSink) Publish(ctx context.Context, event Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func TestNewPoolEvent(t *testing.T) {
	p := &models.Pool{
		Address:   "0x00000000000000000000000000000000000000a1",
		Kind:      models.PoolKindAssetOnly,
		Curve:     curve.Linear,
		SpotPrice: 42,
		NFTCount:  3,
		Active:    true,
	}
	ev := NewPoolEvent(TypePoolUpdated, p)
	assert.Equal(t, "asset_only", ev.Pool.Kind)
	assert.Equal(t, "linear", ev.Pool.Curve)
	assert.Equal(t, p.Address, ev.Address())
	assert.False(t, ev.Timestamp.IsZero())

	trade := NewTradeEvent(TradeUpdate{Pool: "0xpool", Side: "buy"})
	assert.Equal(t, "0xpool", trade.Address())
	assert.Equal(t, "", Event{}.Address())
}

func TestMultiPublishesToAll(t *testing.T) {
	ctx := context.Background()
	ev := NewTradeEvent(TradeUpdate{Pool: "0xpool"})

	a, b := new(MockSink), new(MockSink)
	a.On("Publish", ctx, ev).Return(errors.New("redis down"))
	b.On("Publish", ctx, ev).Return(nil)

	err := Multi{a, nil, b}.Publish(ctx, ev)
	assert.EqualError(t, err, "redis down")
	a.AssertExpectations(t)
	b.AssertExpectations(t)

	assert.NoError(t, Nop{}.Publish(ctx, ev))
	assert.NoError(t, Log{}.Publish(ctx, ev))
}
