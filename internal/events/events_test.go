package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itchan-dev/imagehost/internal/domain"
)

type published struct {
	subject string
	data    []byte
}

type MockConn struct {
	PublishFunc func(subject string, data []byte) error
	sent        []published
	closed      bool
}

func (m *MockConn) Publish(subject string, data []byte) error {
	if m.PublishFunc != nil {
		if err := m.PublishFunc(subject, data); err != nil {
			return err
		}
	}
	m.sent = append(m.sent, published{subject: subject, data: data})
	return nil
}

func (m *MockConn) Close() {
	m.closed = true
}

func sampleEvent() domain.UploadedEvent {
	return domain.UploadedEvent{
		ID:         domain.ImageID("4f8a4bd4-4c5b-4b89-9a53-0f7d0a8a5d11"),
		Filename:   "cat.jpg",
		Sizes:      []string{"thumbnail", "small"},
		UploadedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestPublishUploaded(t *testing.T) {
	t.Run("json payload on prefixed subject", func(t *testing.T) {
		conn := &MockConn{}
		p, err := newPublisher(conn, "images")
		require.NoError(t, err)

		require.NoError(t, p.PublishUploaded(context.Background(), sampleEvent()))
		require.Len(t, conn.sent, 1)
		assert.Equal(t, "images.image.uploaded", conn.sent[0].subject)

		var got map[string]any
		require.NoError(t, json.Unmarshal(conn.sent[0].data, &got))
		assert.Equal(t, "4f8a4bd4-4c5b-4b89-9a53-0f7d0a8a5d11", got["id"])
		assert.Equal(t, "cat.jpg", got["filename"])
		assert.Equal(t, []any{"thumbnail", "small"}, got["sizes"])
		assert.Equal(t, "2024-05-01T12:00:00Z", got["uploaded_at"])
	})

	t.Run("publish error is wrapped", func(t *testing.T) {
		boom := errors.New("connection closed")
		conn := &MockConn{PublishFunc: func(string, []byte) error { return boom }}
		p, err := newPublisher(conn, DefaultSubjectPrefix)
		require.NoError(t, err)

		err = p.PublishUploaded(context.Background(), sampleEvent())
		assert.ErrorIs(t, err, boom)
	})

	t.Run("cancelled context", func(t *testing.T) {
		conn := &MockConn{}
		p, err := newPublisher(conn, DefaultSubjectPrefix)
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, p.PublishUploaded(ctx, sampleEvent()), context.Canceled)
		assert.Empty(t, conn.sent)
	})

	t.Run("close", func(t *testing.T) {
		conn := &MockConn{}
		p, err := newPublisher(conn, DefaultSubjectPrefix)
		require.NoError(t, err)
		p.Close()
		assert.True(t, conn.closed)
	})
}

func TestNewPublisherRequiresPrefix(t *testing.T) {
	_, err := newPublisher(&MockConn{}, "")
	assert.ErrorIs(t, err, errEmptyPrefix)
}

func TestNewNatsPublisherUnreachable(t *testing.T) {
	_, err := NewNatsPublisher("nats://127.0.0.1:1", DefaultSubjectPrefix)
	assert.Error(t, err)
}

func TestNoop(t *testing.T) {
	assert.NoError(t, Noop{}.PublishUploaded(context.Background(), sampleEvent()))
}
