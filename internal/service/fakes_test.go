package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/mock"

	"github.com/alanyoungcy/perpcloser/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

type memPositions struct {
	mu   sync.Mutex
	byID map[string]domain.Position
}

func newMemPositions(ps ...domain.Position) *memPositions {
	m := &memPositions{byID: map[string]domain.Position{}}
	for _, p := range ps {
		m.byID[p.Key] = p
	}
	return m
}

func (m *memPositions) Upsert(_ context.Context, pos domain.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[pos.Key] = pos
	return nil
}

func (m *memPositions) GetByKey(_ context.Context, account common.Address, key string) (domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[key]
	if !ok || p.Account != account {
		return domain.Position{}, domain.ErrNotFound
	}
	return p, nil
}

func (m *memPositions) ListByAccount(_ context.Context, account common.Address) ([]domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Position
	for _, p := range m.byID {
		if p.Account == account {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memPositions) Delete(_ context.Context, _ common.Address, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, key)
	return nil
}

type memTokens struct {
	mu     sync.Mutex
	tokens map[common.Address]domain.Token
}

func (m *memTokens) Upsert(_ context.Context, t domain.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tokens == nil {
		m.tokens = map[common.Address]domain.Token{}
	}
	m.tokens[t.Address] = t
	return nil
}

func (m *memTokens) Get(_ context.Context, addr common.Address) (domain.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[addr]
	if !ok {
		return domain.Token{}, domain.ErrNotFound
	}
	return t, nil
}

func (m *memTokens) List(_ context.Context) ([]domain.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Token
	for _, t := range m.tokens {
		out = append(out, t)
	}
	return out, nil
}

type memOrders struct {
	mu     sync.Mutex
	orders map[common.Address][]domain.ConditionalOrder
}

func (m *memOrders) ReplaceForAccount(_ context.Context, account common.Address, orders []domain.ConditionalOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.orders == nil {
		m.orders = map[common.Address][]domain.ConditionalOrder{}
	}
	m.orders[account] = append([]domain.ConditionalOrder(nil), orders...)
	return nil
}

func (m *memOrders) ListByAccount(_ context.Context, account common.Address) ([]domain.ConditionalOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orders[account], nil
}

type memPrices struct {
	mu     sync.Mutex
	prices map[common.Address]domain.TokenPrice
}

func (m *memPrices) SetTokenPrice(_ context.Context, p domain.TokenPrice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.prices == nil {
		m.prices = map[common.Address]domain.TokenPrice{}
	}
	m.prices[p.Token] = p
	return nil
}

func (m *memPrices) GetTokenPrice(_ context.Context, token common.Address) (domain.TokenPrice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.prices[token]
	if !ok {
		return domain.TokenPrice{}, domain.ErrNotFound
	}
	return p, nil
}

func (m *memPrices) GetTokenPrices(_ context.Context, tokens []common.Address) (map[common.Address]domain.TokenPrice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[common.Address]domain.TokenPrice{}
	for _, t := range tokens {
		if p, ok := m.prices[t]; ok {
			out[t] = p
		}
	}
	return out, nil
}

type memLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

func (m *memLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held == nil {
		m.held = map[string]bool{}
	}
	if m.held[key] {
		return nil, domain.ErrLockHeld
	}
	m.held[key] = true
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.held, key)
	}, nil
}

type memBus struct {
	mu        sync.Mutex
	published map[string][][]byte
	streams   map[string][][]byte
}

func (b *memBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.published == nil {
		b.published = map[string][][]byte{}
	}
	b.published[channel] = append(b.published[channel], payload)
	return nil
}

func (b *memBus) Subscribe(ctx context.Context, _ string) (<-chan []byte, error) {
	ch := make(chan []byte)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

func (b *memBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.streams == nil {
		b.streams = map[string][][]byte{}
	}
	b.streams[stream] = append(b.streams[stream], payload)
	return nil
}

func (b *memBus) StreamRead(_ context.Context, stream, _ string, _ int) ([]domain.StreamMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.StreamMessage
	for _, p := range b.streams[stream] {
		out = append(out, domain.StreamMessage{Payload: p})
	}
	return out, nil
}

func (b *memBus) stream(name string) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.streams[name]
}

func (b *memBus) channel(name string) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.published[name]
}

type mockAudit struct {
	mock.Mock
}

func (m *mockAudit) Log(ctx context.Context, event string, detail map[string]any) error {
	args := m.Called(ctx, event, detail)
	return args.Error(0)
}

func (m *mockAudit) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	args := m.Called(ctx, opts)
	return args.Get(0).([]domain.AuditEntry), args.Error(1)
}

var (
	_ domain.PositionStore = (*memPositions)(nil)
	_ domain.TokenStore    = (*memTokens)(nil)
	_ domain.OrderStore    = (*memOrders)(nil)
	_ domain.PriceCache    = (*memPrices)(nil)
	_ domain.LockManager   = (*memLocks)(nil)
	_ domain.SignalBus     = (*memBus)(nil)
	_ domain.AuditStore    = (*mockAudit)(nil)
)
