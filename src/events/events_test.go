package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oooz/oooz-bot/src/config"
)

type recorder struct {
	events []Event
	err    error
}

func (r *recorder) Publish(_ context.Context, ev Event) error {
	r.events = append(r.events, ev)
	return r.err
}

func (r *recorder) Close() error { return nil }

func TestEmitterStampsEvents(t *testing.T) {
	rec := &recorder{}
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	e := NewEmitter(rec, nil, func() time.Time { return now })

	e.Emit(context.Background(), SugestiaPassed, "123", map[string]any{"for": 3})

	require.Len(t, rec.events, 1)
	ev := rec.events[0]
	assert.Equal(t, SugestiaPassed, ev.Kind)
	assert.Equal(t, "123", ev.Subject)
	assert.Equal(t, now, ev.Time)
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, 3, ev.Data["for"])
}

func TestEmitterSwallowsErrors(t *testing.T) {
	rec := &recorder{err: errors.New("bus down")}
	e := NewEmitter(rec, nil, nil)
	assert.NotPanics(t, func() { e.Emit(context.Background(), WarnAdded, "1", nil) })

	var nilEmitter *Emitter
	assert.NotPanics(t, func() { nilEmitter.Emit(context.Background(), WarnAdded, "1", nil) })
	assert.NoError(t, nilEmitter.Close())
}

func TestOpen(t *testing.T) {
	pub, err := Open(config.Events{Backend: "nop"}, "")
	require.NoError(t, err)
	assert.IsType(t, Nop{}, pub)

	_, err = Open(config.Events{Backend: "redis"}, "")
	assert.Error(t, err)

	_, err = Open(config.Events{Backend: "kafka"}, "")
	assert.Error(t, err)

	_, err = Open(config.Events{Backend: "redis"}, "not a url")
	assert.Error(t, err)
}

func TestNATSSubject(t *testing.T) {
	n := NewNATSWithConn(nil, "")
	assert.Equal(t, "oooz.warn.expired", n.Subject(WarnExpired))
}
