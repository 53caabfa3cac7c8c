package solver

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// RunEvent is published when a run reaches a terminal state.
type RunEvent struct {
	HandleID  string   `json:"handle_id"`
	Model     string   `json:"model"`
	Run       int      `json:"run"`
	State     RunState `json:"state"`
	Error     string   `json:"error,omitempty"`
	Reaction  string   `json:"reaction,omitempty"`
	Steps     int64    `json:"steps"`
	SimTime   float64  `json:"sim_time"`
	Timestamp int64    `json:"timestamp"`
}

// JSON returns the event as JSON bytes
func (e RunEvent) JSON() ([]byte, error) {
	return json.Marshal(e)
}

// Notifier is the interface that all notification channels must implement
type Notifier interface {
	// ID returns a unique identifier for this notifier
	ID() string

	// Type returns the type of notifier (e.g., "webhook", "websocket")
	Type() string

	// Notify sends a run event. The context carries the delivery deadline.
	Notify(ctx context.Context, event RunEvent) error

	// Close closes the notifier and releases any resources
	Close() error
}

type notificationJob struct {
	Event       RunEvent
	NotifierIDs []string
}

const (
	notificationQueueSize = 1024
	notificationTimeout   = 30 * time.Second
	notificationRetries   = 3
)

// NotificationManager routes run events to registered notifiers. Delivery is
// asynchronous, with retry and exponential backoff per notifier.
type NotificationManager struct {
	mu        sync.RWMutex
	notifiers map[string]Notifier
	jobs      chan notificationJob
	closed    bool
	wg        sync.WaitGroup
	logger    Logger

	// initial retry delay, doubled after every failed attempt
	backoff time.Duration
}

// NewNotificationManager creates a notification manager with one delivery
// worker. A nil logger disables logging.
func NewNotificationManager(logger Logger) *NotificationManager {
	if logger == nil {
		logger = NewNoOpLogger()
	}
	mgr := &NotificationManager{
		notifiers: make(map[string]Notifier),
		jobs:      make(chan notificationJob, notificationQueueSize),
		logger:    logger,
		backoff:   100 * time.Millisecond,
	}
	mgr.startWorkers(1)
	return mgr
}

// RegisterNotifier registers a notifier with the manager
func (nm *NotificationManager) RegisterNotifier(notifier Notifier) error {
	if notifier == nil {
		return fmt.Errorf("notifier cannot be nil")
	}
	id := notifier.ID()
	if id == "" {
		return fmt.Errorf("notifier ID cannot be empty")
	}

	nm.mu.Lock()
	defer nm.mu.Unlock()
	if _, exists := nm.notifiers[id]; exists {
		return fmt.Errorf("notifier with ID %s already exists", id)
	}
	nm.notifiers[id] = notifier
	return nil
}

// UnregisterNotifier closes and removes a notifier
func (nm *NotificationManager) UnregisterNotifier(id string) error {
	nm.mu.Lock()
	notifier, exists := nm.notifiers[id]
	delete(nm.notifiers, id)
	nm.mu.Unlock()

	if !exists {
		return fmt.Errorf("notifier with ID %s not found", id)
	}
	if err := notifier.Close(); err != nil {
		return fmt.Errorf("error closing notifier %s: %w", id, err)
	}
	return nil
}

// GetNotifier retrieves a notifier by ID
func (nm *NotificationManager) GetNotifier(id string) (Notifier, bool) {
	nm.mu.RLock()
	defer nm.mu.RUnlock()
	notifier, exists := nm.notifiers[id]
	return notifier, exists
}

// ListNotifiers returns the registered notifier IDs, sorted
func (nm *NotificationManager) ListNotifiers() []string {
	nm.mu.RLock()
	defer nm.mu.RUnlock()
	ids := make([]string, 0, len(nm.notifiers))
	for id := range nm.notifiers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Enqueue queues an event for asynchronous delivery to the given notifiers,
// or to every registered notifier when none are given. It never blocks: when
// the queue is full the event is dropped.
func (nm *NotificationManager) Enqueue(event RunEvent, notifierIDs ...string) {
	if len(notifierIDs) == 0 {
		notifierIDs = nm.ListNotifiers()
	}
	if len(notifierIDs) == 0 {
		return
	}

	nm.mu.RLock()
	defer nm.mu.RUnlock()
	if nm.closed {
		return
	}
	select {
	case nm.jobs <- notificationJob{Event: event, NotifierIDs: notifierIDs}:
	default:
		nm.logger.Warnf("notification queue full, dropping event: handle=%s run=%d", event.HandleID, event.Run)
	}
}

func (nm *NotificationManager) startWorkers(n int) {
	for range n {
		nm.wg.Add(1)
		go nm.worker()
	}
}

func (nm *NotificationManager) worker() {
	defer nm.wg.Done()
	for job := range nm.jobs {
		nm.dispatchJob(job)
	}
}

func (nm *NotificationManager) dispatchJob(job notificationJob) {
	ctx, cancel := context.WithTimeout(context.Background(), notificationTimeout)
	defer cancel()
	for _, id := range job.NotifierIDs {
		nm.notifyWithRetry(ctx, id, job.Event)
	}
}

func (nm *NotificationManager) notifyWithRetry(ctx context.Context, notifierID string, event RunEvent) {
	notifier, ok := nm.GetNotifier(notifierID)
	if !ok {
		nm.logger.Warnf("notification failed: notifier=%s error=notifier not found", notifierID)
		return
	}

	backoff := nm.backoff
	for attempt := 0; attempt <= notificationRetries; attempt++ {
		err := notifier.Notify(ctx, event)
		if err == nil {
			return
		}
		nm.logger.Warnf("notification failed: notifier=%s attempt=%d error=%v", notifierID, attempt+1, err)
		if attempt == notificationRetries {
			nm.logger.Errorf("notification failed after %d attempts: notifier=%s", notificationRetries+1, notifierID)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
			backoff *= 2
		}
	}
}

// Notify delivers an event synchronously to the given notifiers.
func (nm *NotificationManager) Notify(ctx context.Context, event RunEvent, notifierIDs ...string) error {
	var errs []error
	for _, id := range notifierIDs {
		notifier, exists := nm.GetNotifier(id)
		if !exists {
			errs = append(errs, fmt.Errorf("notifier %s not found", id))
			continue
		}
		if err := notifier.Notify(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("notifier %s failed: %w", id, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notification errors: %v", errs)
	}
	return nil
}

// Close drains the queue, stops the workers and closes every notifier.
func (nm *NotificationManager) Close() error {
	nm.mu.Lock()
	if nm.closed {
		nm.mu.Unlock()
		return nil
	}
	nm.closed = true
	close(nm.jobs)
	nm.mu.Unlock()

	nm.wg.Wait()

	nm.mu.Lock()
	var errs []error
	for id, notifier := range nm.notifiers {
		if err := notifier.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing notifier %s: %w", id, err))
		}
	}
	nm.notifiers = make(map[string]Notifier)
	nm.mu.Unlock()

	if len(errs) > 0 {
		return fmt.Errorf("errors closing notifiers: %v", errs)
	}
	return nil
}
