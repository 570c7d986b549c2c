package services

import (
	"context"
	"log"
	"sync"
	"time"

	"gatherlyAPI/internal/types/notification"
)

type PushProvider interface {
	SendPush(ctx context.Context, tokens []notification.DeviceToken, title, body string, data map[string]any) error
}

// DeviceTokenSource resolves a user's registered push tokens.
// UserService implements it.
type DeviceTokenSource interface {
	DeviceTokens(ctx context.Context, userID int64) ([]notification.DeviceToken, error)
}

// PushDispatcher delivers offline pushes through a small worker pool. It
// implements realtime.PushQueue: enqueueing never blocks the realtime
// fanout path, a full queue just drops the push.
type PushDispatcher struct {
	tokens   DeviceTokenSource
	provider PushProvider
	workers  int
	jobQueue chan *pushJob
	stopChan chan struct{}
	wg       sync.WaitGroup
}

type pushJob struct {
	UserID int64
	Title  string
	Body   string
	Data   map[string]any
}

func NewPushDispatcher(tokens DeviceTokenSource) *PushDispatcher {
	d := &PushDispatcher{
		tokens:   tokens,
		workers:  5, // 5 workers is plenty for now
		jobQueue: make(chan *pushJob, 100),
		stopChan: make(chan struct{}),
	}
	d.startWorkers()
	return d
}

// Allow injecting the real FCM provider from main.go
func (d *PushDispatcher) SetProvider(provider PushProvider) {
	d.provider = provider
}

func (d *PushDispatcher) startWorkers() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
}

func (d *PushDispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case job := <-d.jobQueue:
			d.processJob(job)
		case <-d.stopChan:
			return
		}
	}
}

func (d *PushDispatcher) processJob(job *pushJob) {
	if d.provider == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tokens, err := d.tokens.DeviceTokens(ctx, job.UserID)
	if err != nil {
		log.Printf("PushDispatcher: failed to load tokens for user %d: %v", job.UserID, err)
		return
	}
	if len(tokens) == 0 {
		return
	}

	if err := d.provider.SendPush(ctx, tokens, job.Title, job.Body, job.Data); err != nil {
		log.Printf("PushDispatcher: push failed for user %d: %v", job.UserID, err)
	}
}

// EnqueuePush queues an offline push for the user. Best-effort: when the
// queue is full the push is dropped with a log line.
func (d *PushDispatcher) EnqueuePush(userID int64, title, body string, data map[string]any) {
	job := &pushJob{UserID: userID, Title: title, Body: body, Data: data}

	select {
	case d.jobQueue <- job:
	default:
		log.Printf("PushDispatcher: queue full, dropping push for user %d", userID)
	}
}

// Stop drains the workers gracefully.
func (d *PushDispatcher) Stop() {
	log.Println("Stopping push dispatcher...")
	close(d.stopChan)
	d.wg.Wait()
	log.Println("Push dispatcher stopped")
}

// MockPushProvider logs instead of sending. Used in tests and local dev.
type MockPushProvider struct{}

func (m *MockPushProvider) SendPush(ctx context.Context, tokens []notification.DeviceToken, title, body string, data map[string]any) error {
	log.Printf("MOCK PUSH: Sending to %d devices: %s - %s", len(tokens), title, body)
	return nil
}
