package publisher

import (
	"context"
	"errors"
	"testing"

	"github.com/go-notify-core/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockNotificationStore struct{ mock.Mock }

func (m *mockNotificationStore) Put(ctx context.Context, n *domain.Notification) error {
	return m.Called(ctx, n).Error(0)
}

func (m *mockNotificationStore) Get(ctx context.Context, notificationID string) (*domain.Notification, error) {
	args := m.Called(ctx, notificationID)
	if n, _ := args.Get(0).(*domain.Notification); n != nil {
		return n, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockUserNotificationStore struct{ mock.Mock }

func (m *mockUserNotificationStore) Upsert(ctx context.Context, un *domain.UserNotification) error {
	return m.Called(ctx, un).Error(0)
}

type mockDeviceStore struct{ mock.Mock }

func (m *mockDeviceStore) ListActiveByUser(ctx context.Context, userID string) ([]domain.Device, error) {
	args := m.Called(ctx, userID)
	if ds, _ := args.Get(0).([]domain.Device); ds != nil {
		return ds, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockBroker struct{ mock.Mock }

func (m *mockBroker) Publish(ctx context.Context, topic, event string, payload []byte) error {
	return m.Called(ctx, topic, event, payload).Error(0)
}

type mockImageStore struct{ mock.Mock }

func (m *mockImageStore) UploadBase64(ctx context.Context, name, b64Data string) (string, error) {
	args := m.Called(ctx, name, b64Data)
	return args.String(0), args.Error(1)
}

type mockPushSender struct{ mock.Mock }

func (m *mockPushSender) Push(ctx context.Context, endpointARN, platform string, n *domain.Notification) error {
	return m.Called(ctx, endpointARN, platform, n).Error(0)
}

// --- helpers ---

func strptr(s string) *string { return &s }

func broadcastReq() domain.CreateNotificationRequest {
	return domain.CreateNotificationRequest{
		Title:   "Flash sale",
		Message: "20% off everything",
		Type:    domain.TypePromotional,
	}
}

func newDeps() (ServiceDeps, *mockNotificationStore, *mockUserNotificationStore, *mockBroker) {
	ns, uns, br := &mockNotificationStore{}, &mockUserNotificationStore{}, &mockBroker{}
	return ServiceDeps{
		Notifications:     ns,
		UserNotifications: uns,
		Devices:           &mockDeviceStore{},
		Broker:            br,
	}, ns, uns, br
}

// --- tests ---

func TestPublish_Broadcast_PersistsAndPublishesOnce(t *testing.T) {
	deps, ns, uns, br := newDeps()
	ns.On("Put", mock.Anything, mock.AnythingOfType("*domain.Notification")).Return(nil)
	br.On("Publish", mock.Anything, domain.TopicAllUsers, domain.EventNewNotification, mock.Anything).Return(nil)

	n, err := NewService(deps).Publish(context.Background(), broadcastReq())

	require.NoError(t, err)
	assert.NotEmpty(t, n.NotificationID)
	assert.Equal(t, domain.TypePromotional, n.Type)
	ns.AssertNumberOfCalls(t, "Put", 1)
	br.AssertNumberOfCalls(t, "Publish", 1)
	uns.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
}

func TestPublish_BroadcastPayloadRoundTrips(t *testing.T) {
	deps, ns, _, br := newDeps()
	ns.On("Put", mock.Anything, mock.Anything).Return(nil)

	var captured []byte
	br.On("Publish", mock.Anything, domain.TopicAllUsers, domain.EventNewNotification, mock.Anything).
		Run(func(args mock.Arguments) { captured = args.Get(3).([]byte) }).
		Return(nil)

	n, err := NewService(deps).Publish(context.Background(), broadcastReq())
	require.NoError(t, err)

	ev, err := domain.ParseEventPayload(captured)
	require.NoError(t, err)
	assert.Equal(t, n.NotificationID, ev.Notification.NotificationID)
	assert.True(t, ev.Addresses("anyone"))
}

func TestPublish_Targeted_MaterializesRowsAndPublishesPerUser(t *testing.T) {
	deps, ns, uns, br := newDeps()
	ns.On("Put", mock.Anything, mock.Anything).Return(nil)
	uns.On("Upsert", mock.Anything, mock.AnythingOfType("*domain.UserNotification")).Return(nil)
	br.On("Publish", mock.Anything, domain.TopicUser("user-1"), domain.EventNewNotification, mock.Anything).Return(nil)
	br.On("Publish", mock.Anything, domain.TopicUser("user-2"), domain.EventNewNotification, mock.Anything).Return(nil)

	req := broadcastReq()
	req.TargetUsers = []string{"user-1", "user-2"}

	_, err := NewService(deps).Publish(context.Background(), req)

	require.NoError(t, err)
	uns.AssertNumberOfCalls(t, "Upsert", 2)
	br.AssertNumberOfCalls(t, "Publish", 2)
}

func TestPublish_Targeted_RowFailureDoesNotAbortBroadcast(t *testing.T) {
	deps, ns, uns, br := newDeps()
	ns.On("Put", mock.Anything, mock.Anything).Return(nil)
	uns.On("Upsert", mock.Anything, mock.Anything).Return(errors.New("dynamo down"))
	br.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	req := broadcastReq()
	req.TargetUsers = []string{"user-1"}

	_, err := NewService(deps).Publish(context.Background(), req)

	require.NoError(t, err)
	br.AssertNumberOfCalls(t, "Publish", 1)
}

func TestPublish_FansOutPushToTargetDevices(t *testing.T) {
	deps, ns, uns, br := newDeps()
	ns.On("Put", mock.Anything, mock.Anything).Return(nil)
	uns.On("Upsert", mock.Anything, mock.Anything).Return(nil)
	br.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	arn := "arn:endpoint/1"
	devices := &mockDeviceStore{}
	devices.On("ListActiveByUser", mock.Anything, "user-1").Return([]domain.Device{
		{DeviceID: "dev-1", Platform: domain.PlatformAndroid, EndpointARN: &arn},
		{DeviceID: "dev-2", Platform: domain.PlatformIOS}, // realtime-only, skipped
	}, nil)
	deps.Devices = devices

	push := &mockPushSender{}
	push.On("Push", mock.Anything, arn, domain.PlatformAndroid, mock.Anything).Return(nil)
	deps.Push = push

	req := broadcastReq()
	req.TargetUsers = []string{"user-1"}

	_, err := NewService(deps).Publish(context.Background(), req)

	require.NoError(t, err)
	push.AssertNumberOfCalls(t, "Push", 1)
}

func TestPublish_PushFailureIsNonFatal(t *testing.T) {
	deps, ns, uns, br := newDeps()
	ns.On("Put", mock.Anything, mock.Anything).Return(nil)
	uns.On("Upsert", mock.Anything, mock.Anything).Return(nil)
	br.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	arn := "arn:endpoint/1"
	devices := &mockDeviceStore{}
	devices.On("ListActiveByUser", mock.Anything, "user-1").Return([]domain.Device{
		{DeviceID: "dev-1", Platform: domain.PlatformAndroid, EndpointARN: &arn},
	}, nil)
	deps.Devices = devices

	push := &mockPushSender{}
	push.On("Push", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("endpoint disabled"))
	deps.Push = push

	req := broadcastReq()
	req.TargetUsers = []string{"user-1"}

	_, err := NewService(deps).Publish(context.Background(), req)
	require.NoError(t, err)
}

func TestPublish_UploadsImageAndSetsURL(t *testing.T) {
	deps, ns, _, br := newDeps()
	ns.On("Put", mock.Anything, mock.Anything).Return(nil)
	br.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	images := &mockImageStore{}
	images.On("UploadBase64", mock.Anything, "sale.png", "aGVsbG8=").Return("https://cdn.example.com/sale.png", nil)
	deps.Images = images

	req := broadcastReq()
	req.ImageBase64 = strptr("aGVsbG8=")
	req.ImageName = strptr("sale.png")

	n, err := NewService(deps).Publish(context.Background(), req)

	require.NoError(t, err)
	require.NotNil(t, n.ImageURL)
	assert.Equal(t, "https://cdn.example.com/sale.png", *n.ImageURL)
}

func TestPublish_ImageUploadFailureAborts(t *testing.T) {
	deps, ns, _, br := newDeps()
	images := &mockImageStore{}
	images.On("UploadBase64", mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("s3 down"))
	deps.Images = images

	req := broadcastReq()
	req.ImageBase64 = strptr("aGVsbG8=")

	_, err := NewService(deps).Publish(context.Background(), req)

	require.Error(t, err)
	ns.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
	br.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPublish_InvalidExpiresAtRejected(t *testing.T) {
	deps, ns, _, _ := newDeps()

	req := broadcastReq()
	req.ExpiresAt = strptr("tomorrow")

	_, err := NewService(deps).Publish(context.Background(), req)

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrBadRequest))
	ns.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
}

func TestPublish_ValidExpiresAtParsed(t *testing.T) {
	deps, ns, _, br := newDeps()
	ns.On("Put", mock.Anything, mock.Anything).Return(nil)
	br.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	req := broadcastReq()
	req.ExpiresAt = strptr("2030-01-02T15:04:05Z")

	n, err := NewService(deps).Publish(context.Background(), req)

	require.NoError(t, err)
	require.NotNil(t, n.ExpiresAt)
	assert.Equal(t, 2030, n.ExpiresAt.Year())
}

func TestPublish_StoreFailurePropagates(t *testing.T) {
	deps, ns, _, br := newDeps()
	ns.On("Put", mock.Anything, mock.Anything).Return(domain.ErrConflict)

	_, err := NewService(deps).Publish(context.Background(), broadcastReq())

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConflict))
	br.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestGet_ReturnsStoredNotification(t *testing.T) {
	deps, ns, _, _ := newDeps()
	ns.On("Get", mock.Anything, "n1").Return(&domain.Notification{NotificationID: "n1", Title: "Flash sale"}, nil)

	n, err := NewService(deps).Get(context.Background(), "n1")

	require.NoError(t, err)
	assert.Equal(t, "Flash sale", n.Title)
}

func TestGet_NotFoundPropagates(t *testing.T) {
	deps, ns, _, _ := newDeps()
	ns.On("Get", mock.Anything, "missing").Return(nil, domain.ErrNotFound)

	_, err := NewService(deps).Get(context.Background(), "missing")

	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestPublish_BrokerFailurePropagates(t *testing.T) {
	deps, ns, _, br := newDeps()
	ns.On("Put", mock.Anything, mock.Anything).Return(nil)
	br.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("redis down"))

	_, err := NewService(deps).Publish(context.Background(), broadcastReq())

	require.Error(t, err)
}
