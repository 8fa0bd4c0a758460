package stream

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Klingon-tech/oyster/internal/events"
	"github.com/Klingon-tech/oyster/internal/id"
	"github.com/Klingon-tech/oyster/pkg/types"
)

// fakeProducer acknowledges every message unless told otherwise.
type fakeProducer struct {
	sent       []*kafka.Message
	produceErr error
	deliverErr error
	silent     bool
	flushed    bool
	closed     bool
}

func (p *fakeProducer) Produce(msg *kafka.Message, reports chan kafka.Event) error {
	if p.produceErr != nil {
		return p.produceErr
	}
	p.sent = append(p.sent, msg)
	if !p.silent {
		ack := *msg
		ack.TopicPartition.Error = p.deliverErr
		reports <- &ack
	}
	return nil
}

func (p *fakeProducer) Flush(int) int {
	p.flushed = true
	return 0
}

func (p *fakeProducer) Close() { p.closed = true }

func sampleEvents(n int) []events.Event {
	out := make([]events.Event, n)
	for i := range out {
		out[i] = events.Event{
			CallID:   id.NewCallID(),
			Seq:      uint64(i + 1),
			Kind:     events.KindRightsAssigned,
			Contract: types.Address{0x0A},
			Amounts:  map[string]uint64{events.AmountPct: 25},
			Time:     time.Unix(1700000000, 0).UTC(),
		}
	}
	return out
}

func TestDeliver(t *testing.T) {
	p := &fakeProducer{}
	s := New(p, "oyster.events", zerolog.Nop())
	evs := sampleEvents(3)

	require.NoError(t, s.Deliver(context.Background(), evs))
	require.Len(t, p.sent, 3)
	for i, msg := range p.sent {
		assert.Equal(t, "oyster.events", *msg.TopicPartition.Topic)
		assert.Equal(t, evs[i].CallID.String(), string(msg.Key))
		require.Len(t, msg.Headers, 1)
		assert.Equal(t, "kind", msg.Headers[0].Key)
		assert.Equal(t, string(events.KindRightsAssigned), string(msg.Headers[0].Value))

		var got events.Event
		require.NoError(t, json.Unmarshal(msg.Value, &got))
		assert.Equal(t, evs[i].Seq, got.Seq)
		assert.Equal(t, uint64(25), got.Amount(events.AmountPct))
	}
}

func TestDeliver_Empty(t *testing.T) {
	p := &fakeProducer{}
	require.NoError(t, New(p, "t", zerolog.Nop()).Deliver(context.Background(), nil))
	assert.Empty(t, p.sent)
}

func TestDeliver_ProduceError(t *testing.T) {
	p := &fakeProducer{produceErr: errors.New("queue full")}
	err := New(p, "t", zerolog.Nop()).Deliver(context.Background(), sampleEvents(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue full")
}

func TestDeliver_DeliveryError(t *testing.T) {
	p := &fakeProducer{deliverErr: kafka.NewError(kafka.ErrMsgTimedOut, "timed out", false)}
	err := New(p, "t", zerolog.Nop()).Deliver(context.Background(), sampleEvents(2))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

func TestDeliver_ContextCanceled(t *testing.T) {
	p := &fakeProducer{silent: true}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := New(p, "t", zerolog.Nop()).Deliver(ctx, sampleEvents(1))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClose(t *testing.T) {
	p := &fakeProducer{}
	s := New(p, "t", zerolog.Nop())
	require.NoError(t, s.Close())
	assert.True(t, p.flushed)
	assert.True(t, p.closed)
	assert.Equal(t, "kafka", s.Name())
}
