package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type pingEvent struct {
	ID int `json:"id"`
}

func (pingEvent) Type() EventType { return RoundSettled }

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
	done   chan struct{}
}

func (r *recordingPublisher) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	close(r.done)
	return nil
}

func (r *recordingPublisher) Close() error { return nil }

func TestSubject(t *testing.T) {
	assert.Equal(t, "dicebot.round.settled", Subject("dicebot", RoundSettled))
	assert.Equal(t, "x.admin.wallets_refilled", Subject("x", AdminWalletsRefilled))
}

func TestNoopPublisher(t *testing.T) {
	p := NewNoopPublisher()
	assert.NoError(t, p.Publish(context.Background(), pingEvent{ID: 1}))
	assert.NoError(t, p.Close())
}

func TestPublishAsync(t *testing.T) {
	p := &recordingPublisher{done: make(chan struct{})}
	PublishAsync(p, pingEvent{ID: 7})

	select {
	case <-p.done:
	case <-time.After(2 * time.Second):
		t.Fatal("событие не опубликовано")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	assert.Equal(t, []Event{pingEvent{ID: 7}}, p.events)
}
