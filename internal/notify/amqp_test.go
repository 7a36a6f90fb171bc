package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	exchange  string
	published []amqp.Publishing
	err       error
	closed    bool
}

func (f *fakeChannel) Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.exchange = exchange
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestAMQPPublisher_Notify(t *testing.T) {
	ch := &fakeChannel{}
	pub := newAMQPPublisherWithChannel(ch, "dispatcher.progress", newTestLogger())

	err := pub.Notify(context.Background(), Event{
		CampaignID: 3,
		RunID:      "run-3",
		Type:       TypeAutoPause,
		Timestamp:  time.Now(),
		Payload:    map[string]any{"reason": ReasonMessageLimit},
	})
	require.NoError(t, err)

	require.Len(t, ch.published, 1)
	assert.Equal(t, "dispatcher.progress", ch.exchange)

	msg := ch.published[0]
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, TypeAutoPause, msg.Type)
	assert.Equal(t, "run-3", msg.MessageId)

	var env Envelope
	require.NoError(t, json.Unmarshal(msg.Body, &env))
	assert.Equal(t, ReasonMessageLimit, env.Data["reason"])
}

func TestAMQPPublisher_NotifyError(t *testing.T) {
	ch := &fakeChannel{err: errors.New("channel closed")}
	pub := newAMQPPublisherWithChannel(ch, "x", newTestLogger())

	err := pub.Notify(context.Background(), Event{CampaignID: 1, Type: TypeError})
	assert.ErrorContains(t, err, "channel closed")
}

func TestAMQPPublisher_Close(t *testing.T) {
	ch := &fakeChannel{}
	pub := newAMQPPublisherWithChannel(ch, "x", newTestLogger())

	require.NoError(t, pub.Close())
	assert.True(t, ch.closed)
	assert.NoError(t, pub.Health(context.Background()))
}
