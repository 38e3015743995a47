package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/david/tender-scout/internal/ingest"
	"github.com/david/tender-scout/internal/logger"
	"github.com/david/tender-scout/internal/models"
)

type fakeChannel struct {
	exchange string
	key      string
	msgs     []amqp.Publishing
	err      error
	closed   bool
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.exchange = exchange
	f.key = key
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestReportPublishesJSON(t *testing.T) {
	ch := &fakeChannel{}
	p := &Publisher{ch: ch, queue: "progress"}

	ev := ingest.ProgressEvent{
		BatchID:      uuid.New(),
		FileName:     "tenders.xlsx",
		Sheet:        "GeM",
		Stage:        ingest.StageProgress,
		Status:       models.BatchProcessing,
		RowsSeen:     100,
		RowsImported: 97,
	}
	p.Report(context.Background(), ev)

	require.Len(t, ch.msgs, 1)
	msg := ch.msgs[0]
	assert.Equal(t, "", ch.exchange)
	assert.Equal(t, "progress", ch.key)
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, ev.BatchID.String(), msg.Headers["batch_id"])
	assert.Equal(t, "progress", msg.Headers["stage"])

	var got ingest.ProgressEvent
	require.NoError(t, json.Unmarshal(msg.Body, &got))
	assert.Equal(t, ev.BatchID, got.BatchID)
	assert.Equal(t, 97, got.RowsImported)
	assert.Equal(t, "GeM", got.Sheet)
}

func TestReportLogsPublishFailure(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	ctx := logger.WithContext(context.Background(), zap.New(core))

	p := &Publisher{ch: &fakeChannel{err: errors.New("channel closed")}, queue: "progress"}
	assert.NotPanics(t, func() {
		p.Report(ctx, ingest.ProgressEvent{Stage: ingest.StageCompleted})
	})

	entries := logs.FilterMessage("progress_publish_failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "completed", entries[0].ContextMap()["stage"])
}

func TestCloseClosesChannel(t *testing.T) {
	ch := &fakeChannel{}
	p := &Publisher{ch: ch, queue: "progress"}
	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
}
