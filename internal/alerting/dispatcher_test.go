package alerting

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"firebase.google.com/go/v4/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRecorder struct {
	mu      sync.Mutex
	results map[string]int
}

func (c *countingRecorder) ObserveNotification(channel, result string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.results == nil {
		c.results = make(map[string]int)
	}
	c.results[channel+"/"+result]++
}

func (c *countingRecorder) get(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.results[key]
}

type syncNotifier struct {
	mu    sync.Mutex
	err   error
	block chan struct{}
	got   []Message
}

func (s *syncNotifier) Name() string { return "test" }

func (s *syncNotifier) Notify(_ context.Context, msg Message) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, msg)
	return s.err
}

func (s *syncNotifier) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.got)
}

func TestDispatcherDrainsOnClose(t *testing.T) {
	n := &syncNotifier{}
	rec := &countingRecorder{}
	d := NewDispatcher(n, 8, 2, time.Second, rec, testLogger())

	for i := 0; i < 5; i++ {
		require.True(t, d.Enqueue(sampleMessage()))
	}
	d.Close()

	assert.Equal(t, 5, n.count())
	assert.Equal(t, 5, rec.get("test/sent"))
	assert.False(t, d.Enqueue(sampleMessage()))
	assert.Equal(t, 1, rec.get("test/dropped"))

	d.Close()
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	n := &syncNotifier{block: make(chan struct{})}
	rec := &countingRecorder{}
	d := NewDispatcher(n, 1, 1, time.Second, rec, testLogger())

	// the worker holds one message, the queue holds one more
	accepted := 0
	for i := 0; i < 4; i++ {
		if d.Enqueue(sampleMessage()) {
			accepted++
		}
		time.Sleep(10 * time.Millisecond)
	}
	close(n.block)
	d.Close()

	assert.Equal(t, 2, accepted)
	assert.Equal(t, 2, rec.get("test/dropped"))
	assert.Equal(t, 2, n.count())
}

func TestDispatcherCountsFailures(t *testing.T) {
	n := &syncNotifier{err: errors.New("boom")}
	rec := &countingRecorder{}
	d := NewDispatcher(n, 4, 1, time.Second, rec, testLogger())
	require.True(t, d.Enqueue(sampleMessage()))
	d.Close()

	assert.Equal(t, 1, rec.get("test/failed"))
}

type fakeSender struct {
	sent []*messaging.Message
	err  error
}

func (f *fakeSender) Send(_ context.Context, m *messaging.Message) (string, error) {
	f.sent = append(f.sent, m)
	return "projects/p/messages/1", f.err
}

func TestFCMNotifierBuildsTopicMessage(t *testing.T) {
	sender := &fakeSender{}
	n := NewFCMNotifierWithSender(sender, testLogger())

	msg := sampleMessage()
	msg.Data = map[string]string{"id": "/topics/sjcgold"}
	require.NoError(t, n.Notify(context.Background(), msg))
	require.Len(t, sender.sent, 1)

	got := sender.sent[0]
	assert.Equal(t, "sjcgold", got.Topic)
	assert.Equal(t, msg.Title, got.Notification.Title)
	assert.Equal(t, msg.Body, got.Notification.Body)
	assert.Equal(t, "high", got.Android.Priority)
	assert.Equal(t, "default", got.Android.Notification.Sound)
	assert.Equal(t, "/topics/sjcgold", got.Data["id"])
}

func TestFCMNotifierErrors(t *testing.T) {
	sender := &fakeSender{err: errors.New("unavailable")}
	n := NewFCMNotifierWithSender(sender, testLogger())
	require.Error(t, n.Notify(context.Background(), sampleMessage()))

	msg := sampleMessage()
	msg.Topic = ""
	require.Error(t, n.Notify(context.Background(), msg))
}
