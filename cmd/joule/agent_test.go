package main

import (
	"context"
	"errors"
	"os"
	"syscall"
	"testing"
)

func TestWaitForShutdownOnSignal(t *testing.T) {
	sigCh := make(chan os.Signal, 1)
	sigCh <- syscall.SIGTERM

	if err := waitForShutdown(sigCh, make(chan error)); err != nil {
		t.Errorf("expected nil on signal, got %v", err)
	}
}

func TestWaitForShutdownReturnsServeError(t *testing.T) {
	errCh := make(chan error, 1)
	bindErr := errors.New("accept: too many open files")
	errCh <- bindErr

	if err := waitForShutdown(make(chan os.Signal), errCh); !errors.Is(err, bindErr) {
		t.Errorf("expected serve error, got %v", err)
	}
}

func TestWaitForShutdownUnexpectedStop(t *testing.T) {
	errCh := make(chan error, 1)
	errCh <- nil

	if err := waitForShutdown(make(chan os.Signal), errCh); err == nil {
		t.Error("expected error when the server stops without a signal")
	}
}

func TestAgentExitError(t *testing.T) {
	if err := agentExitError(nil, nil); err != nil {
		t.Errorf("expected nil, got %v", err)
	}

	serveErr := errors.New("listener closed")
	err := agentExitError(serveErr, context.DeadlineExceeded)
	if !errors.Is(err, serveErr) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected both errors, got %v", err)
	}
}
