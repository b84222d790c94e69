package http

import (
	"context"
	"io"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/actiomidia/projeto-bot-whatsapp/pkg/contracts/domain"
)

// MockLicenseService is a testify mock of services.LicenseService.
type MockLicenseService struct {
	mock.Mock
}

func (m *MockLicenseService) Status(ctx context.Context) *domain.LicenseStatusResponse {
	args := m.Called(ctx)
	return args.Get(0).(*domain.LicenseStatusResponse)
}

func (m *MockLicenseService) Activate(ctx context.Context, key string) (*domain.LicenseStatusResponse, error) {
	args := m.Called(ctx, key)
	resp, _ := args.Get(0).(*domain.LicenseStatusResponse)
	return resp, args.Error(1)
}

func (m *MockLicenseService) Info(ctx context.Context) (*domain.LicenseView, error) {
	args := m.Called(ctx)
	view, _ := args.Get(0).(*domain.LicenseView)
	return view, args.Error(1)
}

func (m *MockLicenseService) Renew(ctx context.Context) (*domain.LicenseStatusResponse, error) {
	args := m.Called(ctx)
	resp, _ := args.Get(0).(*domain.LicenseStatusResponse)
	return resp, args.Error(1)
}

func (m *MockLicenseService) Deactivate(ctx context.Context) (*domain.LicenseActionResponse, error) {
	args := m.Called(ctx)
	resp, _ := args.Get(0).(*domain.LicenseActionResponse)
	return resp, args.Error(1)
}

func (m *MockLicenseService) ForceCheck(ctx context.Context) *domain.LicenseStatusResponse {
	args := m.Called(ctx)
	return args.Get(0).(*domain.LicenseStatusResponse)
}

func (m *MockLicenseService) ClearCache(ctx context.Context) *domain.LicenseActionResponse {
	args := m.Called(ctx)
	return args.Get(0).(*domain.LicenseActionResponse)
}

func (m *MockLicenseService) Debug(ctx context.Context) *domain.LicenseDebugResponse {
	args := m.Called(ctx)
	return args.Get(0).(*domain.LicenseDebugResponse)
}

func (m *MockLicenseService) TestAuthority(ctx context.Context) *domain.AuthorityProbeResponse {
	args := m.Called(ctx)
	return args.Get(0).(*domain.AuthorityProbeResponse)
}

func (m *MockLicenseService) IsUsable() bool {
	args := m.Called()
	return args.Bool(0)
}

// MockMessagingService is a testify mock of services.MessagingService.
type MockMessagingService struct {
	mock.Mock
}

func (m *MockMessagingService) EnsureSession(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockMessagingService) Status(ctx context.Context) domain.SessionStatus {
	args := m.Called(ctx)
	return args.Get(0).(domain.SessionStatus)
}

func (m *MockMessagingService) QR(ctx context.Context) (domain.QRResponse, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.QRResponse), args.Error(1)
}

func (m *MockMessagingService) Info(ctx context.Context) (domain.AccountInfo, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.AccountInfo), args.Error(1)
}

func (m *MockMessagingService) Send(ctx context.Context, req domain.SendMessageRequest) (domain.SendResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(domain.SendResult), args.Error(1)
}

func (m *MockMessagingService) StartBulk(ctx context.Context, req domain.BulkSendRequest) (domain.BulkAccepted, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(domain.BulkAccepted), args.Error(1)
}

func (m *MockMessagingService) StartBulkFromXLSX(ctx context.Context, r io.Reader, message string, delay time.Duration, stopOnError bool) (domain.BulkAccepted, error) {
	args := m.Called(ctx, r, message, delay, stopOnError)
	return args.Get(0).(domain.BulkAccepted), args.Error(1)
}

func (m *MockMessagingService) Groups(ctx context.Context) (domain.GroupsResponse, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.GroupsResponse), args.Error(1)
}

func (m *MockMessagingService) Group(ctx context.Context, groupID string) (domain.GroupInfo, error) {
	args := m.Called(ctx, groupID)
	return args.Get(0).(domain.GroupInfo), args.Error(1)
}

func (m *MockMessagingService) SendToGroup(ctx context.Context, req domain.GroupSendRequest) (domain.SendResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(domain.SendResult), args.Error(1)
}

func (m *MockMessagingService) SendToGroups(ctx context.Context, req domain.GroupsSendRequest) (domain.BulkAccepted, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(domain.BulkAccepted), args.Error(1)
}

func (m *MockMessagingService) CancelBulk(ctx context.Context) bool {
	args := m.Called(ctx)
	return args.Bool(0)
}

func (m *MockMessagingService) Logout(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
