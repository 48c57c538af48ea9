package eventbus

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type args struct {
	data interface{}
}

func bufferedLogger(level logrus.Level) (*logrus.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	log := logrus.New()
	log.SetOutput(buf)
	log.SetLevel(level)
	return log, buf
}

func TestPublisher_Publish_NoMatchingSubscribers(t *testing.T) {
	type args2 struct {
		data interface{}
	}
	log, buf := bufferedLogger(logrus.WarnLevel)
	publisher := NewEventPublisher(log)
	publisher.Subscribe(func(e *args) {
		t.Error("should not be called")
	})
	publisher.Publish(&args2{data: "test"})

	require.Contains(t, buf.String(), "eventbus.Publish: no matching subscribers")
}

func TestPublisher_Subscribe(t *testing.T) {
	publisher := NewEventPublisher(nil)
	var data interface{}
	publisher.Subscribe(func(e *args) {
		data = e.data
	})
	publisher.Publish(&args{data: "test"})
	require.Equal(t, "test", data)
}

func TestPublisher_Unsubscribe(t *testing.T) {
	publisher := NewEventPublisher(nil)
	calls := 0
	unsubscribe := publisher.Subscribe(func(e *args) { calls++ })
	publisher.Subscribe(func(e *args) { calls += 10 })
	require.Equal(t, 2, publisher.SubscribersCount())

	unsubscribe()
	unsubscribe()
	require.Equal(t, 1, publisher.SubscribersCount())

	publisher.Publish(&args{})
	require.Equal(t, 10, calls)

	publisher.Clear()
	require.Equal(t, 0, publisher.SubscribersCount())
}

func TestMatchSignature(t *testing.T) {
	type args struct{}
	type args2 struct{}

	require.True(t, MatchSignature(func(e *args) {}, []interface{}{&args{}}))
	require.False(t, MatchSignature(func(e *args) {}, []interface{}{&args2{}}))
	require.False(t, MatchSignature(func(e *args) {}, []interface{}{}))
	require.False(t, MatchSignature(func(e *args) {}, []interface{}{&args{}, &args{}}))
	require.True(t, MatchSignature(func(ctx context.Context) {}, []interface{}{context.Background()}))
	require.True(t, MatchSignature(func(e *args) {}, []interface{}{nil}))
	require.False(t, MatchSignature("not a func", []interface{}{}))
}

func TestPublisher_PanicRecovery(t *testing.T) {
	t.Parallel()

	t.Run("handler panic is caught and logged", func(t *testing.T) {
		log, buf := bufferedLogger(logrus.ErrorLevel)
		publisher := NewEventPublisher(log)
		publisher.Subscribe(func(e *args) {
			panic("intentional panic for testing")
		})

		publisher.Publish(&args{data: "test"})

		output := buf.String()
		require.Contains(t, output, "panicked")
		require.Contains(t, output, "intentional panic for testing")
	})

	t.Run("other handlers still run", func(t *testing.T) {
		log, _ := bufferedLogger(logrus.ErrorLevel)
		publisher := NewEventPublisher(log)

		called1, called2 := false, false
		publisher.Subscribe(func(e *args) { called1 = true })
		publisher.Subscribe(func(e *args) { panic("handler 2 panic") })
		publisher.Subscribe(func(e *args) { called2 = true })

		publisher.Publish(&args{data: "test"})
		require.True(t, called1)
		require.True(t, called2)
	})

	t.Run("nil argument panic is caught", func(t *testing.T) {
		log, buf := bufferedLogger(logrus.ErrorLevel)
		publisher := NewEventPublisher(log)
		publisher.Subscribe(func(e *args) {
			_ = e.data.(string)
		})

		publisher.Publish(&args{data: nil})
		require.True(t, strings.Contains(buf.String(), "panicked"))
	})
}

func TestPublisher_PublishE(t *testing.T) {
	t.Parallel()

	t.Run("returns ErrNoSubscribers when none match", func(t *testing.T) {
		publisher := NewEventPublisher(logrus.New())
		err := publisher.PublishE(&args{data: "x"})
		require.ErrorIs(t, err, ErrNoSubscribers)
	})

	t.Run("returns joined errors from multiple handlers", func(t *testing.T) {
		publisher := NewEventPublisher(logrus.New())

		err1 := errors.New("err1")
		err2 := errors.New("err2")
		publisher.Subscribe(func(e *args) error { return err1 })
		publisher.Subscribe(func(e *args) error { return err2 })

		err := publisher.PublishE(&args{data: "x"})
		require.ErrorIs(t, err, err1)
		require.ErrorIs(t, err, err2)
	})

	t.Run("panic is surfaced as error and other handlers still run", func(t *testing.T) {
		publisher := NewEventPublisher(nil)
		called := false
		publisher.Subscribe(func(e *args) error { panic("boom") })
		publisher.Subscribe(func(e *args) error { called = true; return nil })

		err := publisher.PublishE(&args{data: "x"})
		require.Error(t, err)
		require.True(t, called)
	})

	t.Run("invalid handler return is surfaced as ErrInvalidHandlerReturn", func(t *testing.T) {
		publisher := NewEventPublisher(nil)
		publisher.Subscribe(func(e *args) int { return 1 })

		err := publisher.PublishE(&args{data: "x"})
		require.ErrorIs(t, err, ErrInvalidHandlerReturn)
	})
}
