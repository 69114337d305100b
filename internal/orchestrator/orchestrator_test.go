package orchestrator

import (
	"context"
	"net"
	"net/http"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleSignalsCancels(t *testing.T) {
	sh := &SignalHandler{sigChan: make(chan os.Signal, 1)}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sh.HandleSignals(ctx, cancel)
	sh.sigChan <- syscall.SIGTERM

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context was not cancelled by the signal")
	}
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func TestServiceManagerShutsDownOnCancel(t *testing.T) {
	addr := freeAddr(t)
	server := &http.Server{
		Addr: addr,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}),
	}
	sm := NewServiceManager(server)

	taskStopped := make(chan struct{})
	sm.Go(func(ctx context.Context) {
		<-ctx.Done()
		close(taskStopped)
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sm.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusNoContent
	}, 2*time.Second, 20*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("service manager did not stop")
	}
	<-taskStopped
}

func TestServiceManagerReportsListenFailure(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	sm := NewServiceManager(&http.Server{Addr: l.Addr().String()})
	assert.Error(t, sm.Run(context.Background()))
}
