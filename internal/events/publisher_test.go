package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sysu-ecnc-dev/fleet-manager/backend/internal/domain"
)

type fakeChannel struct {
	declared   []string
	kind       string
	published  []amqp.Publishing
	keys       []string
	declareErr error
}

func (c *fakeChannel) ExchangeDeclare(name, kind string, _, _, _, _ bool, _ amqp.Table) error {
	c.declared = append(c.declared, name)
	c.kind = kind
	return c.declareErr
}

func (c *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("missing deadline")
	}
	c.keys = append(c.keys, exchange+"/"+key)
	c.published = append(c.published, msg)
	return nil
}

func TestPublishShiftEvent(t *testing.T) {
	ch := &fakeChannel{}
	p, err := NewPublisher(ch, "shift_events", time.Second)
	require.NoError(t, err)
	assert.Equal(t, []string{"shift_events"}, ch.declared)
	assert.Equal(t, "fanout", ch.kind)

	shift := &domain.Shift{
		ID:        7,
		VehicleID: 3,
		Date:      domain.NewDate(2025, time.June, 1),
		State:     domain.ShiftStateScheduled,
		Drivers:   []domain.ShiftDriver{{DriverID: 11, Role: domain.DriverRolePrimary}},
	}
	occurred := time.Date(2025, time.May, 30, 9, 0, 0, 0, time.UTC)
	require.NoError(t, p.PublishShiftEvent(context.Background(), domain.NewShiftEvent(domain.ShiftEventCreated, shift, occurred)))

	require.Len(t, ch.published, 1)
	msg := ch.published[0]
	assert.Equal(t, "shift_events/shift.created", ch.keys[0])
	assert.Equal(t, "application/json", msg.ContentType)
	assert.NotEmpty(t, msg.MessageId)
	assert.Equal(t, occurred, msg.Timestamp)

	var got map[string]any
	require.NoError(t, json.Unmarshal(msg.Body, &got))
	assert.Equal(t, "shift.created", got["type"])
	assert.Equal(t, "2025-06-01", got["date"])
	assert.Equal(t, []any{float64(11)}, got["driverIDs"])
}

func TestNewPublisherDeclareError(t *testing.T) {
	_, err := NewPublisher(&fakeChannel{declareErr: errors.New("closed")}, "shift_events", time.Second)
	assert.Error(t, err)
}
