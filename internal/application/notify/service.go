package notify

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/go-notify-core/internal/domain"
	"github.com/go-notify-core/internal/infrastructure/kvstore"
	"github.com/go-notify-core/internal/pkg/id"
)

const defaultPageSize = 20

// RealtimeProvider opens broadcast subscriptions. Delivery is at-least-once
// and may duplicate across topics; the service compensates with its dedup
// gate.
type RealtimeProvider interface {
	Subscribe(ctx context.Context, topic, event string, onEvent func(payload []byte), onError func(err error)) (io.Closer, error)
}

// NotificationStore is the remote per-user projection store.
type NotificationStore interface {
	Upsert(ctx context.Context, un *domain.UserNotification) error
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]domain.UserNotification, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	SetTimestamp(ctx context.Context, userID, notificationID, field string, at time.Time) error
	DismissAll(ctx context.Context, userID string) error
}

// DeviceRegistrar upserts device registrations.
type DeviceRegistrar interface {
	Register(ctx context.Context, userID string, req domain.RegisterDeviceRequest) (*domain.Device, error)
}

// PushPresenter schedules the OS-level alert for a notification.
type PushPresenter interface {
	Push(ctx context.Context, endpointARN, platform string, n *domain.Notification) error
}

// ServiceDeps wires one notification handle. Push may be nil (push
// unavailable — realtime and in-app delivery still function).
type ServiceDeps struct {
	Realtime RealtimeProvider
	Store    NotificationStore
	Devices  DeviceRegistrar
	Push     PushPresenter
	KV       *kvstore.Store

	CacheLimit          int
	DedupLimit          int
	ResubscribeBase     time.Duration
	ResubscribeMax      time.Duration
	ResubscribeAttempts int
}

// Service owns one user's notification state: the realtime subscriptions,
// the dedup gate, the rolling offline cache, the in-memory list with its
// unread counter, and the event dispatcher. All mutation goes through its
// methods; none of them propagates ordinary operational failures — every
// remote error degrades to the cached/local path and is logged.
type Service struct {
	deps       ServiceDeps
	dispatcher *Dispatcher

	mu            sync.Mutex
	userID        string
	device        *domain.Device
	cache         *Cache
	channels      []io.Closer
	gen           int // subscription generation; bumped on every (re)init and stop
	resubscribing bool

	list        []domain.UserNotification // newest first
	unread      int
	loading     bool
	lastErr     error
	initialized bool
}

// NewService builds an uninitialized handle. Call Initialize before use;
// mutators called earlier are logged no-ops.
func NewService(deps ServiceDeps) *Service {
	if deps.CacheLimit <= 0 {
		deps.CacheLimit = 100
	}
	if deps.DedupLimit <= 0 {
		deps.DedupLimit = 500
	}
	if deps.ResubscribeBase <= 0 {
		deps.ResubscribeBase = 5 * time.Second
	}
	if deps.ResubscribeMax <= 0 {
		deps.ResubscribeMax = 2 * time.Minute
	}
	if deps.ResubscribeAttempts <= 0 {
		deps.ResubscribeAttempts = 8
	}
	return &Service{deps: deps, dispatcher: NewDispatcher()}
}

// Dispatcher exposes the event surface (On/Off/ConsumePendingAction).
func (s *Service) Dispatcher() *Dispatcher { return s.dispatcher }

// Initialize sets up the pipeline for userID: local cache, device
// registration, unread count, realtime subscriptions. Idempotent — calling
// it again first tears down the previous subscription set so events are
// never delivered twice. Returns true when the handle is ready for use;
// degraded collaborators (no push, failed registration) do not make it
// return false.
func (s *Service) Initialize(ctx context.Context, userID string) bool {
	if userID == "" {
		userID = domain.GuestUserID
	}

	s.mu.Lock()
	s.closeChannelsLocked()
	s.gen++
	gen := s.gen
	s.userID = userID
	s.lastErr = nil

	s.cache = NewCache(s.deps.KV, userID, s.deps.CacheLimit, s.deps.DedupLimit)
	s.list = s.cache.LoadAll()
	s.unread = countUnread(s.list)
	s.mu.Unlock()

	device := s.acquireDevice(ctx, userID)
	if s.deps.Push == nil || device.EndpointARN == nil {
		slog.Warn("push delivery unavailable, continuing with realtime-only notifications", "user_id", userID)
	}

	// Remote unread count is authoritative when reachable.
	if n, err := s.deps.Store.CountUnread(ctx, userID); err == nil {
		s.mu.Lock()
		if gen == s.gen {
			s.unread = clamp(n)
		}
		s.mu.Unlock()
	} else {
		slog.Warn("could not fetch unread count, using cached state", "user_id", userID, "err", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return false // re-initialized concurrently
	}
	s.device = device
	if err := s.subscribeChannelsLocked(); err != nil {
		slog.Warn("realtime subscription failed, scheduling retry", "user_id", userID, "err", err)
		s.scheduleResubscribeLocked(gen)
	}
	s.initialized = true
	return true
}

// Stop closes the realtime channels and marks the handle uninitialized.
// Best-effort: there is nothing to cancel beyond the open subscriptions.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.closeChannelsLocked()
	s.initialized = false
}

// AttachDevice points the handle at a freshly registered device, so push
// presentation uses the real token instead of the startup fallback.
func (s *Service) AttachDevice(d *domain.Device) {
	if d == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.device = d
}

// acquireDevice resolves the session's device registration: a persisted
// fallback token is generated when no real push token exists yet, and the
// registration is upserted remotely. Registration failure is non-fatal.
func (s *Service) acquireDevice(ctx context.Context, userID string) *domain.Device {
	tokenKey := "device_token#" + userID
	var token string
	if ok, err := s.deps.KV.Get(tokenKey, &token); err != nil || !ok || token == "" {
		token = "local-" + id.New()
		if err := s.deps.KV.Set(tokenKey, token); err != nil {
			slog.Warn("could not persist fallback device token", "err", err)
		}
	}

	dev, err := s.deps.Devices.Register(ctx, userID, domain.RegisterDeviceRequest{
		Token:    &token,
		Platform: domain.PlatformAndroid,
	})
	if err != nil {
		slog.Warn("device registration failed, continuing with in-memory device", "user_id", userID, "err", err)
		now := time.Now().UTC()
		return &domain.Device{
			DeviceID:   id.New(),
			Token:      token,
			UserID:     userID,
			Platform:   domain.PlatformAndroid,
			Active:     true,
			LastSeenAt: now,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
	}
	return dev
}

// subscribeChannelsLocked opens the all-users and per-user broadcast
// channels. Callers hold s.mu.
func (s *Service) subscribeChannelsLocked() error {
	gen := s.gen
	topics := []string{domain.TopicAllUsers, domain.TopicUser(s.userID)}
	var opened []io.Closer
	for _, topic := range topics {
		ch, err := s.deps.Realtime.Subscribe(context.Background(), topic, domain.EventNewNotification,
			s.handleEvent,
			func(err error) { s.onChannelError(gen, err) },
		)
		if err != nil {
			for _, c := range opened {
				_ = c.Close()
			}
			return err
		}
		opened = append(opened, ch)
	}
	s.channels = opened
	return nil
}

func (s *Service) closeChannelsLocked() {
	for _, ch := range s.channels {
		_ = ch.Close()
	}
	s.channels = nil
}

// onChannelError is invoked by a dying channel. The whole subscription set
// is rebuilt, not just the failed channel, so both topics stay in lockstep.
func (s *Service) onChannelError(gen int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return // stale channel from a previous initialization
	}
	slog.Warn("realtime channel dropped", "user_id", s.userID, "err", err)
	s.scheduleResubscribeLocked(gen)
}

// scheduleResubscribeLocked starts the backoff loop unless one is already
// running for this generation. Callers hold s.mu.
func (s *Service) scheduleResubscribeLocked(gen int) {
	if s.resubscribing {
		return
	}
	s.resubscribing = true
	go s.resubscribeLoop(gen)
}

// resubscribeLoop re-opens the channels with exponential backoff. After the
// attempt budget is exhausted the handle surfaces ErrRealtimeOffline and
// stays offline until the next Initialize.
func (s *Service) resubscribeLoop(gen int) {
	delay := s.deps.ResubscribeBase
	for attempt := 1; attempt <= s.deps.ResubscribeAttempts; attempt++ {
		time.Sleep(delay)

		s.mu.Lock()
		if gen != s.gen {
			s.resubscribing = false
			s.mu.Unlock()
			return
		}
		s.closeChannelsLocked()
		err := s.subscribeChannelsLocked()
		if err == nil {
			s.lastErr = nil
			s.resubscribing = false
			s.mu.Unlock()
			slog.Info("realtime channels restored", "user_id", s.userID, "attempt", attempt)
			return
		}
		s.mu.Unlock()
		slog.Warn("resubscribe attempt failed", "attempt", attempt, "err", err)

		delay *= 2
		if delay > s.deps.ResubscribeMax {
			delay = s.deps.ResubscribeMax
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen == s.gen {
		s.lastErr = domain.ErrRealtimeOffline
		s.resubscribing = false
	}
}

// handleEvent normalizes a raw realtime payload and feeds it to the engine.
// Malformed payloads and events targeting other users are dropped silently.
func (s *Service) handleEvent(payload []byte) {
	ev, err := domain.ParseEventPayload(payload)
	if err != nil {
		slog.Warn("dropping unparseable notification event", "err", err)
		return
	}

	s.mu.Lock()
	userID := s.userID
	s.mu.Unlock()
	if !ev.Addresses(userID) {
		return
	}
	s.receive(ev)
}

// receive runs the inbound pipeline: dedup gate, cache persist, OS
// presentation, in-memory upsert, unread increment, dispatch. The dedup gate
// runs before any side effect, so a duplicate delivery across channels never
// presents or dispatches twice.
func (s *Service) receive(ev *domain.NotificationEvent) {
	s.mu.Lock()
	if !s.initialized {
		s.mu.Unlock()
		slog.Warn("notification received before initialization, ignoring", "notification_id", ev.Notification.NotificationID)
		return
	}
	if !s.cache.ShouldProcess(ev.Notification.NotificationID) {
		s.mu.Unlock()
		return
	}

	now := time.Now().UTC()
	un := domain.UserNotification{
		UserNotificationID: s.userID + "#" + ev.Notification.NotificationID,
		NotificationID:     ev.Notification.NotificationID,
		UserID:             s.userID,
		Notification:       ev.Notification,
		DeliveredAt:        &now,
		CreatedAt:          ev.Notification.CreatedAt,
	}
	if err := s.cache.Persist(un); err != nil {
		slog.Warn("could not persist notification to local cache", "err", err)
	}
	s.list = prepend(s.list, un)
	s.unread++
	device := s.device
	s.mu.Unlock()

	// Materialize the remote projection row; first receipt wins server-side.
	if err := s.deps.Store.Upsert(context.Background(), &un); err != nil {
		slog.Warn("could not materialize remote notification row", "notification_id", un.NotificationID, "err", err)
	}

	s.present(device, &un)
	s.dispatcher.Emit(EventReceived, &un)
}

// present schedules the OS alert. Fire-and-forget: failures are logged and
// the notification still lives in in-app state.
func (s *Service) present(device *domain.Device, un *domain.UserNotification) {
	if s.deps.Push == nil || device == nil || device.EndpointARN == nil {
		return
	}
	if err := s.deps.Push.Push(context.Background(), *device.EndpointARN, device.Platform, &un.Notification); err != nil {
		slog.Warn("could not schedule OS notification", "notification_id", un.NotificationID, "err", err)
		return
	}
	s.dispatcher.Emit(EventReceivedLocal, un)
}

// MarkRead sets read_at on the notification if unread. Idempotent: marking
// an already-read notification neither errors nor double-decrements.
func (s *Service) MarkRead(ctx context.Context, notificationID string) {
	s.mu.Lock()
	if !s.guardInitializedLocked("MarkRead") {
		s.mu.Unlock()
		return
	}
	entry := s.findLocked(notificationID)
	if entry == nil || entry.ReadAt != nil {
		s.mu.Unlock()
		return
	}
	now := time.Now().UTC()
	entry.ReadAt = &now
	s.unread = clamp(s.unread - 1)
	if err := s.cache.Update(*entry); err != nil {
		slog.Warn("could not persist read state", "err", err)
	}
	userID := s.userID
	s.mu.Unlock()

	if err := s.deps.Store.SetTimestamp(ctx, userID, notificationID, "read_at", now); err != nil {
		slog.Warn("could not sync read state", "notification_id", notificationID, "err", err)
	}
}

// MarkAllRead sets read_at on every unread notification and forces the
// unread count to exactly zero — not by repeated decrement, so the counter
// cannot drift.
func (s *Service) MarkAllRead(ctx context.Context) {
	s.mu.Lock()
	if !s.guardInitializedLocked("MarkAllRead") {
		s.mu.Unlock()
		return
	}
	now := time.Now().UTC()
	var marked []string
	for i := range s.list {
		if s.list[i].ReadAt == nil {
			s.list[i].ReadAt = &now
			marked = append(marked, s.list[i].NotificationID)
		}
	}
	s.unread = 0
	if err := s.cache.ReplaceAll(s.list); err != nil {
		slog.Warn("could not persist read state", "err", err)
	}
	userID := s.userID
	s.mu.Unlock()

	for _, nid := range marked {
		if err := s.deps.Store.SetTimestamp(ctx, userID, nid, "read_at", now); err != nil {
			slog.Warn("could not sync read state", "notification_id", nid, "err", err)
		}
	}
}

// MarkClicked records a tap: implies MarkRead when unread, sets clicked_at,
// emits the clicked event, and surfaces the notification's action (if any)
// both as an event and in the pending-action slot.
func (s *Service) MarkClicked(ctx context.Context, notificationID string) {
	s.mu.Lock()
	if !s.guardInitializedLocked("MarkClicked") {
		s.mu.Unlock()
		return
	}
	entry := s.findLocked(notificationID)
	if entry == nil {
		s.mu.Unlock()
		return
	}
	now := time.Now().UTC()
	newlyRead := false
	if entry.ReadAt == nil {
		entry.ReadAt = &now
		s.unread = clamp(s.unread - 1)
		newlyRead = true
	}
	if entry.ClickedAt == nil {
		entry.ClickedAt = &now
	}
	if err := s.cache.Update(*entry); err != nil {
		slog.Warn("could not persist click state", "err", err)
	}
	un := *entry
	userID := s.userID
	s.mu.Unlock()

	if newlyRead {
		if err := s.deps.Store.SetTimestamp(ctx, userID, notificationID, "read_at", now); err != nil {
			slog.Warn("could not sync read state", "notification_id", notificationID, "err", err)
		}
	}
	if err := s.deps.Store.SetTimestamp(ctx, userID, notificationID, "clicked_at", now); err != nil {
		slog.Warn("could not sync click state", "notification_id", notificationID, "err", err)
	}

	s.dispatcher.Emit(EventClicked, &un)
	if a := un.Notification.Action; a != nil {
		s.dispatcher.SetPendingAction(*a)
		s.dispatcher.Emit(EventAction, *a)
	}
}

// ClearAll empties the in-memory list and the persisted cache, zeroes the
// unread count, and best-effort soft-dismisses the remote rows.
func (s *Service) ClearAll(ctx context.Context) {
	s.mu.Lock()
	if !s.guardInitializedLocked("ClearAll") {
		s.mu.Unlock()
		return
	}
	s.list = nil
	s.unread = 0
	if err := s.cache.Clear(); err != nil {
		slog.Warn("could not clear local cache", "err", err)
	}
	userID := s.userID
	s.mu.Unlock()

	if err := s.deps.Store.DismissAll(ctx, userID); err != nil {
		slog.Warn("could not dismiss remote notifications", "user_id", userID, "err", err)
	}
}

// Load fetches a page from the remote store, newest first. On remote
// failure it serves the same window from the persisted cache and records the
// error — the two sources are never merged. Entries whose notification has
// expired are filtered out after fetch.
func (s *Service) Load(ctx context.Context, limit, offset int) []domain.UserNotification {
	s.mu.Lock()
	if !s.guardInitializedLocked("Load") {
		s.mu.Unlock()
		return nil
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if offset < 0 {
		offset = 0
	}
	s.loading = true
	userID := s.userID
	s.mu.Unlock()

	rows, err := s.deps.Store.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		slog.Warn("remote notification fetch failed, serving cached page", "user_id", userID, "err", err)
		s.mu.Lock()
		s.loading = false
		s.lastErr = err
		page := s.cache.Page(limit, offset)
		if offset == 0 {
			s.list = s.cache.LoadAll()
			s.unread = countUnread(s.list)
		}
		s.mu.Unlock()
		return page
	}

	rows = dropExpired(rows, time.Now().UTC())

	s.mu.Lock()
	s.loading = false
	s.lastErr = nil
	if offset == 0 {
		s.list = rows
		s.unread = countUnread(rows)
		if cerr := s.cache.ReplaceAll(rows); cerr != nil {
			slog.Warn("could not refresh local cache", "err", cerr)
		}
	}
	s.mu.Unlock()

	// The remote counter sees rows beyond the fetched page.
	if n, cntErr := s.deps.Store.CountUnread(ctx, userID); cntErr == nil {
		s.mu.Lock()
		s.unread = clamp(n)
		s.mu.Unlock()
	}

	return rows
}

// Refresh re-fetches the first page from the authoritative remote source.
func (s *Service) Refresh(ctx context.Context) {
	s.Load(ctx, defaultPageSize, 0)
}

// ── query surface ────────────────────────────────────────────────────────

// Notifications returns a snapshot of the in-memory list, newest first.
func (s *Service) Notifications() []domain.UserNotification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserNotification, len(s.list))
	copy(out, s.list)
	return out
}

func (s *Service) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

func (s *Service) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Err returns the most recent operational error (nil when healthy). Fetch
// failures and realtime-offline state land here for the UI to display.
func (s *Service) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Service) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// ── helpers ──────────────────────────────────────────────────────────────

func (s *Service) guardInitializedLocked(op string) bool {
	if !s.initialized {
		slog.Warn("notification operation before initialization, ignoring", "op", op)
		return false
	}
	return true
}

func (s *Service) findLocked(notificationID string) *domain.UserNotification {
	for i := range s.list {
		if s.list[i].NotificationID == notificationID {
			return &s.list[i]
		}
	}
	return nil
}

// prepend puts un at the front, dropping any existing entry with the same
// notification id.
func prepend(list []domain.UserNotification, un domain.UserNotification) []domain.UserNotification {
	out := make([]domain.UserNotification, 0, len(list)+1)
	out = append(out, un)
	for _, e := range list {
		if e.NotificationID != un.NotificationID {
			out = append(out, e)
		}
	}
	return out
}

func countUnread(list []domain.UserNotification) int {
	n := 0
	for i := range list {
		if list[i].ReadAt == nil {
			n++
		}
	}
	return n
}

func dropExpired(list []domain.UserNotification, now time.Time) []domain.UserNotification {
	out := list[:0]
	for _, e := range list {
		if !e.Notification.Expired(now) {
			out = append(out, e)
		}
	}
	return out
}

func clamp(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
