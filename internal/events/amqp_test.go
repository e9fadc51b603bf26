package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	exchange string
	key      string
	msg      amqp091.Publishing
}

type fakeChannel struct {
	mu         sync.Mutex
	exchanges  map[string]string
	queues     []string
	bindings   []string
	messages   []published
	publishErr error
	closed     bool
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{exchanges: make(map[string]string)}
}

func (c *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error {
	c.exchanges[name] = kind
	return nil
}

func (c *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp091.Table) (amqp091.Queue, error) {
	c.queues = append(c.queues, name)
	return amqp091.Queue{Name: name}, nil
}

func (c *fakeChannel) QueueBind(name, key, exchange string, noWait bool, args amqp091.Table) error {
	c.bindings = append(c.bindings, name+"<-"+exchange+":"+key)
	return nil
}

func (c *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishErr != nil {
		return c.publishErr
	}
	c.messages = append(c.messages, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (c *fakeChannel) Close() error {
	c.closed = true
	return nil
}

func TestAMQPPublisher(t *testing.T) {
	ctx := context.Background()

	t.Run("declares topology", func(t *testing.T) {
		ch := newFakeChannel()
		_, err := NewAMQPPublisher(ch, "ledger", "notifications")
		require.NoError(t, err)

		assert.Equal(t, "topic", ch.exchanges["ledger"])
		assert.Equal(t, []string{"notifications"}, ch.queues)
		assert.Equal(t, []string{"notifications<-ledger:#"}, ch.bindings)
	})

	t.Run("publishes JSON with type as routing key", func(t *testing.T) {
		ch := newFakeChannel()
		p, err := NewAMQPPublisher(ch, "ledger", "")
		require.NoError(t, err)

		at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
		evt := New(ExpenseAdded, "g1", "alice", at, map[string]any{"expense_id": "e1"})
		require.NoError(t, p.Publish(ctx, evt))

		require.Len(t, ch.messages, 1)
		m := ch.messages[0]
		assert.Equal(t, "ledger", m.exchange)
		assert.Equal(t, "expense.added", m.key)
		assert.Equal(t, "application/json", m.msg.ContentType)
		assert.Equal(t, amqp091.Persistent, m.msg.DeliveryMode)
		assert.Equal(t, evt.ID, m.msg.MessageId)

		var decoded map[string]any
		require.NoError(t, json.Unmarshal(m.msg.Body, &decoded))
		assert.Equal(t, "g1", decoded["group_id"])
		assert.Equal(t, "alice", decoded["actor_id"])
		assert.Equal(t, "e1", decoded["payload"].(map[string]any)["expense_id"])
	})

	t.Run("breaker opens after repeated failures", func(t *testing.T) {
		ch := newFakeChannel()
		ch.publishErr = errors.New("connection reset")
		p, err := NewAMQPPublisher(ch, "ledger", "")
		require.NoError(t, err)

		evt := New(SettlementRecorded, "g1", "bob", time.Now(), nil)
		for i := 0; i < 5; i++ {
			err := p.Publish(ctx, evt)
			require.Error(t, err)
			assert.NotErrorIs(t, err, gobreaker.ErrOpenState)
		}

		err = p.Publish(ctx, evt)
		assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	})

	t.Run("close closes channel", func(t *testing.T) {
		ch := newFakeChannel()
		p, err := NewAMQPPublisher(ch, "ledger", "")
		require.NoError(t, err)
		require.NoError(t, p.Close())
		assert.True(t, ch.closed)
	})
}

func TestRecorder(t *testing.T) {
	var r Recorder
	require.NoError(t, r.Publish(context.Background(), New(MemberAdded, "g", "a", time.Now(), nil)))
	require.NoError(t, Nop{}.Publish(context.Background(), New(ExpenseDeleted, "g", "a", time.Now(), nil)))

	assert.Equal(t, []Type{MemberAdded}, r.Types())
	assert.Len(t, r.Events(), 1)
	assert.NotEmpty(t, r.Events()[0].ID)
}
