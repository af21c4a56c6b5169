package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/8by8-org/challenge-api/internal/models"
)

type failingHandler struct{ slog.Handler }

func (failingHandler) Handle(context.Context, slog.Record) error { return errors.New("boom") }

func TestMultiHandlerFansOut(t *testing.T) {
	var a, b bytes.Buffer
	ha := slog.NewJSONHandler(&a, &slog.HandlerOptions{Level: slog.LevelInfo})
	hb := slog.NewJSONHandler(&b, &slog.HandlerOptions{Level: slog.LevelError})

	logger := slog.New(NewMultiHandler(ha, hb)).With("component", "test")
	logger.Info("only a")
	logger.Error("both")

	require.Equal(t, 2, bytes.Count(a.Bytes(), []byte("\n")))
	require.Equal(t, 1, bytes.Count(b.Bytes(), []byte("\n")))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(b.Bytes()), &rec))
	require.Equal(t, "both", rec["msg"])
	require.Equal(t, "test", rec["component"])
}

func TestMultiHandlerKeepsGoingAfterFailure(t *testing.T) {
	var buf bytes.Buffer
	ok := slog.NewJSONHandler(&buf, nil)
	bad := failingHandler{ok}

	h := NewMultiHandler(bad, ok)
	err := h.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelInfo, "msg", 0))
	require.Error(t, err)
	require.Contains(t, buf.String(), `"msg":"msg"`)
}

func TestPGHandlerBatchesErrors(t *testing.T) {
	var mu sync.Mutex
	var written []models.SystemLog
	h := newPGHandler(func(batch []models.SystemLog) error {
		mu.Lock()
		defer mu.Unlock()
		written = append(written, batch...)
		return nil
	}, time.Hour)

	require.False(t, h.Enabled(context.Background(), slog.LevelWarn))

	logger := slog.New(h).With("component", "challenge", "request_id", "req-1")
	logger.Error("award failed", "user_id", "u1", "action", "award", "error", "db down", "latency_ms", 12.4, "extra", "x")
	logger.WithGroup("job").Error("purge failed", "name", "otp")
	h.Stop()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, written, 2)

	first := written[0]
	require.Equal(t, "ERROR", first.Level)
	require.Equal(t, "award failed", first.Message)
	require.Equal(t, "challenge", first.Component)
	require.Equal(t, "req-1", first.RequestID)
	require.Equal(t, "u1", *first.UserID)
	require.Equal(t, "award", first.Action)
	require.Equal(t, "db down", first.Error)
	require.Equal(t, 12, first.LatencyMs)
	require.JSONEq(t, `{"extra":"x"}`, string(first.Extra))

	require.JSONEq(t, `{"job.name":"otp"}`, string(written[1].Extra))
}

func TestDiscardDropsEverything(t *testing.T) {
	require.False(t, Discard().Enabled(context.Background(), slog.LevelError))
}
