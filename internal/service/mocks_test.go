package service

import (
	"context"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/mock"

	"github.com/industrialcatalog/catalog-server/internal/database"
	"github.com/industrialcatalog/catalog-server/internal/model"
	"github.com/industrialcatalog/catalog-server/internal/notify"
	"github.com/industrialcatalog/catalog-server/internal/repository"
)

type mockAdminRepo struct {
	mock.Mock
}

func (m *mockAdminRepo) FindByEmail(ctx context.Context, email string) (*model.Admin, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Admin), args.Error(1)
}

func (m *mockAdminRepo) FindByID(ctx context.Context, id int64) (*model.Admin, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Admin), args.Error(1)
}

func (m *mockAdminRepo) TouchLastLogin(ctx context.Context, id int64, now time.Time) error {
	args := m.Called(ctx, id, now)
	return args.Error(0)
}

func (m *mockAdminRepo) Create(ctx context.Context, params model.CreateAdminParams) (*model.Admin, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Admin), args.Error(1)
}

func (m *mockAdminRepo) WithTx(tx *sqlx.Tx) repository.AdminRepository {
	return m
}

type mockOTPSessionRepo struct {
	mock.Mock
}

func (m *mockOTPSessionRepo) Upsert(ctx context.Context, params model.UpsertOTPSessionParams) error {
	args := m.Called(ctx, params)
	return args.Error(0)
}

func (m *mockOTPSessionRepo) FindByAdminID(ctx context.Context, adminID int64) (*model.OTPSession, error) {
	args := m.Called(ctx, adminID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.OTPSession), args.Error(1)
}

func (m *mockOTPSessionRepo) IsCodeActive(ctx context.Context, code string) (bool, error) {
	args := m.Called(ctx, code)
	return args.Bool(0), args.Error(1)
}

func (m *mockOTPSessionRepo) Deactivate(ctx context.Context, adminID int64, code string, now time.Time) (bool, error) {
	args := m.Called(ctx, adminID, code, now)
	return args.Bool(0), args.Error(1)
}

func (m *mockOTPSessionRepo) DeleteStale(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockOTPSessionRepo) WithTx(tx *sqlx.Tx) repository.OTPSessionRepository {
	return m
}

// passthroughTx runs fn without a real transaction; the mocks ignore tx.
type passthroughTx struct{}

func (passthroughTx) WithTx(_ context.Context, fn database.TxFunc) error {
	return fn(nil)
}

// recordingNotifier keeps every message it is asked to send.
type recordingNotifier struct {
	mu       sync.Mutex
	messages []notify.Message
	err      error
}

func (n *recordingNotifier) Send(_ context.Context, msg notify.Message) (notify.Receipt, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
	if n.err != nil {
		return notify.Receipt{}, n.err
	}
	return notify.Receipt{MessageID: "<test@example.com>", PreviewURL: "file:///tmp/test.eml"}, nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.messages)
}

func (n *recordingNotifier) last() notify.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.messages[len(n.messages)-1]
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// sequenceGenerator returns codes in order, then repeats the last one.
type sequenceGenerator struct {
	mu    sync.Mutex
	codes []string
	calls int
}

func (g *sequenceGenerator) Generate() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	i := g.calls
	if i >= len(g.codes) {
		i = len(g.codes) - 1
	}
	g.calls++
	return g.codes[i], nil
}
