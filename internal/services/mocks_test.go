package services

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/actiomidia/projeto-bot-whatsapp/internal/license"
	"github.com/actiomidia/projeto-bot-whatsapp/internal/messaging"
)

// MockLicenseManager is a testify mock of LicenseManager.
type MockLicenseManager struct {
	mock.Mock
}

func (m *MockLicenseManager) CheckCached(ctx context.Context) license.Outcome {
	args := m.Called(ctx)
	return args.Get(0).(license.Outcome)
}

func (m *MockLicenseManager) Revalidate(ctx context.Context, key string) license.Outcome {
	args := m.Called(ctx, key)
	return args.Get(0).(license.Outcome)
}

func (m *MockLicenseManager) ForceRevalidate(ctx context.Context) {
	m.Called(ctx)
}

func (m *MockLicenseManager) Forced() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockLicenseManager) Clear(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockLicenseManager) CurrentRecord() *license.Record {
	args := m.Called()
	rec, _ := args.Get(0).(*license.Record)
	return rec
}

func (m *MockLicenseManager) IsUsable() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockLicenseManager) LastVerdict() license.Outcome {
	args := m.Called()
	return args.Get(0).(license.Outcome)
}

func (m *MockLicenseManager) InFlight() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockLicenseManager) Interval() time.Duration {
	args := m.Called()
	return args.Get(0).(time.Duration)
}

func (m *MockLicenseManager) Policy() *license.Policy {
	args := m.Called()
	return args.Get(0).(*license.Policy)
}

// MockProber is a testify mock of AuthorityProber.
type MockProber struct {
	mock.Mock
}

func (m *MockProber) Ping(ctx context.Context) license.PingResult {
	args := m.Called(ctx)
	return args.Get(0).(license.PingResult)
}

// MockBulkRunner is a testify mock of BulkRunner.
type MockBulkRunner struct {
	mock.Mock
}

func (m *MockBulkRunner) Start(ctx context.Context, req messaging.BulkRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockBulkRunner) Running() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockBulkRunner) Cancel() bool {
	args := m.Called()
	return args.Bool(0)
}

// clientCount is a fixed ClientCounter.
type clientCount int

func (c clientCount) ClientCount() int { return int(c) }
