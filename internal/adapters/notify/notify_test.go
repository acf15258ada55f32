package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/lcalzada-xor/meshmon/internal/core/domain"
	"github.com/lcalzada-xor/meshmon/internal/core/ports"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockWriter struct {
	mock.Mock
}

func (m *mockWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	args := m.Called(msgs)
	return args.Error(0)
}

func (m *mockWriter) Close() error {
	return m.Called().Error(0)
}

func sampleEvent(t *testing.T) ports.AlertEvent {
	now := time.Date(2024, 8, 22, 16, 0, 0, 0, time.UTC)
	alert, err := domain.NewCandidate(domain.NodeScope("aa:aa:aa:aa:aa:aa", "meshA"), "nodeA", domain.LevelCritical, domain.TitleOffline, domain.TextOffline, now)
	require.NoError(t, err)
	alert.ID = "a1"
	return ports.AlertEvent{Alert: *alert, Message: alert.Message(), At: now}
}

func TestKafkaNotifier_Publishes(t *testing.T) {
	w := new(mockWriter)
	n := &KafkaNotifier{writer: w, maxRetry: 3}
	ev := sampleEvent(t)

	w.On("WriteMessages", mock.MatchedBy(func(msgs []kafka.Message) bool {
		if len(msgs) != 1 || string(msgs[0].Key) != "node:aa:aa:aa:aa:aa:aa" {
			return false
		}
		var decoded alertMessage
		if err := json.Unmarshal(msgs[0].Value, &decoded); err != nil {
			return false
		}
		return decoded.ID == "a1" && decoded.Level == "Critical" && decoded.Status == "New"
	})).Return(nil).Once()

	require.NoError(t, n.Notify(context.Background(), []ports.AlertEvent{ev}))
	w.AssertExpectations(t)
}

func TestKafkaNotifier_Retries(t *testing.T) {
	w := new(mockWriter)
	n := &KafkaNotifier{writer: w, maxRetry: 2}

	w.On("WriteMessages", mock.Anything).Return(errors.New("broker down")).Twice()

	err := n.Notify(context.Background(), []ports.AlertEvent{sampleEvent(t)})
	assert.ErrorContains(t, err, "broker down")
	w.AssertNumberOfCalls(t, "WriteMessages", 2)
}

func TestKafkaNotifier_NoEvents(t *testing.T) {
	w := new(mockWriter)
	n := &KafkaNotifier{writer: w, maxRetry: 3}
	assert.NoError(t, n.Notify(context.Background(), nil))
	w.AssertNotCalled(t, "WriteMessages", mock.Anything)
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(slog.New(slog.NewJSONHandler(&buf, nil)))

	require.NoError(t, n.Notify(context.Background(), []ports.AlertEvent{sampleEvent(t)}))
	assert.Contains(t, buf.String(), `"scope":"node:aa:aa:aa:aa:aa:aa"`)
	assert.Contains(t, buf.String(), "Node is offline")
}
