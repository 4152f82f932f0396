package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dujiao-next/discount-engine/internal/config"
	"github.com/dujiao-next/discount-engine/internal/logger"

	"github.com/stretchr/testify/require"
)

type stubService struct {
	name     string
	startErr error
	block    bool
	stopped  atomic.Bool
}

func (s *stubService) Name() string { return s.name }

func (s *stubService) Start(ctx context.Context) error {
	if s.block {
		<-ctx.Done()
		return nil
	}
	return s.startErr
}

func (s *stubService) Stop(context.Context) error {
	s.stopped.Store(true)
	return nil
}

func TestRunnerStopsAllServicesOnFailure(t *testing.T) {
	failing := &stubService{name: "failing", startErr: errors.New("boom")}
	blocking := &stubService{name: "blocking", block: true}
	runner := NewRunner(failing, blocking)
	var cleaned atomic.Int32
	runner.AddCleanup(func() { cleaned.Add(1) })

	err := runner.Run(context.Background(), time.Second, logger.S())
	require.EqualError(t, err, "boom")
	require.True(t, failing.stopped.Load())
	require.True(t, blocking.stopped.Load())
	require.Equal(t, int32(1), cleaned.Load())
}

func TestRunnerCancelIsCleanExit(t *testing.T) {
	blocking := &stubService{name: "blocking", block: true}
	runner := NewRunner(blocking)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	require.NoError(t, runner.Run(ctx, time.Second, nil))
	require.True(t, blocking.stopped.Load())
}

func TestBuildRunnerModes(t *testing.T) {
	cfg := &config.Config{
		Server:   config.ServerConfig{Host: "127.0.0.1", Port: "0", Mode: "debug"},
		Database: config.DatabaseConfig{
			Driver: "sqlite",
			DSN:    fmt.Sprintf("file:app_test_%d?mode=memory&cache=shared", time.Now().UnixNano()),
			Pool:   config.DatabasePoolConfig{MaxOpenConns: 1, MaxIdleConns: 1},
		},
		Engine:   config.DefaultEngineConfig(),
	}
	db, err := OpenDatabase(cfg)
	require.NoError(t, err)

	runner, err := BuildRunner(cfg, db, ModeAPI)
	require.NoError(t, err)
	require.Len(t, runner.services, 1)
	require.Equal(t, "http", runner.services[0].Name())

	_, err = BuildRunner(cfg, db, ModeWorker)
	require.Error(t, err)

	_, err = BuildRunner(nil, db, ModeAPI)
	require.Error(t, err)
}
