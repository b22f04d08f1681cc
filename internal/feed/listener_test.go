package feed

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/perpcloser/internal/domain"
	"github.com/alanyoungcy/perpcloser/internal/fixed"
)

type chanBus struct {
	chans map[string]chan []byte
}

func newChanBus(channels ...string) *chanBus {
	b := &chanBus{chans: map[string]chan []byte{}}
	for _, c := range channels {
		b.chans[c] = make(chan []byte)
	}
	return b
}

func (b *chanBus) Publish(context.Context, string, []byte) error { return nil }

func (b *chanBus) Subscribe(_ context.Context, channel string) (<-chan []byte, error) {
	ch, ok := b.chans[channel]
	if !ok {
		return nil, errors.New("no such channel")
	}
	return ch, nil
}

func (b *chanBus) StreamAppend(context.Context, string, []byte) error { return nil }

func (b *chanBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

type recordingSink struct {
	mu        sync.Mutex
	positions []domain.Position
	prices    []domain.TokenPrice
	orders    []domain.OrderBookSnapshot
}

func (s *recordingSink) ApplyPosition(_ context.Context, pos domain.Position) (domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions = append(s.positions, pos)
	return pos, nil
}

func (s *recordingSink) ApplyPrice(_ context.Context, p domain.TokenPrice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices = append(s.prices, p)
	return nil
}

func (s *recordingSink) ApplyOrders(_ context.Context, snap domain.OrderBookSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = append(s.orders, snap)
	return nil
}

func (s *recordingSink) counts() (int, int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.positions), len(s.prices), len(s.orders)
}

func TestListenerDispatchesByChannel(t *testing.T) {
	bus := newChanBus(domain.ChannelPositions, domain.ChannelPrices, domain.ChannelOrders)
	sink := &recordingSink{}
	l := NewListener(bus, sink, slog.New(slog.NewJSONHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	bus.chans[domain.ChannelPrices] <- []byte(`{"token":"0x82aF49447D8a07e3bd95BD0d56f35241523fBab1","min_price":"1999","max_price":"2001"}`)
	bus.chans[domain.ChannelPrices] <- []byte(`not json`)
	bus.chans[domain.ChannelPositions] <- []byte(`{"account":"0x1111111111111111111111111111111111111111","is_long":true,"size":"100"}`)
	bus.chans[domain.ChannelOrders] <- []byte(`{"account":"0x1111111111111111111111111111111111111111","orders":[]}`)

	require.Eventually(t, func() bool {
		p, q, o := sink.counts()
		return p == 1 && q == 1 && o == 1
	}, time.Second, 5*time.Millisecond)

	sink.mu.Lock()
	assert.Equal(t, common.HexToAddress("0x82aF49447D8a07e3bd95BD0d56f35241523fBab1"), sink.prices[0].Token)
	assert.True(t, sink.prices[0].MaxPrice.Eq(fixed.New(2001)))
	assert.True(t, sink.positions[0].Size.Eq(fixed.New(100)))
	sink.mu.Unlock()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("listener did not stop")
	}
}

func TestListenerSubscribeFailure(t *testing.T) {
	l := NewListener(newChanBus(), &recordingSink{}, slog.New(slog.NewJSONHandler(io.Discard, nil)))
	err := l.Run(context.Background())
	assert.Error(t, err)
}
