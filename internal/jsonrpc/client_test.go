package jsonrpc

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"vellum/internal/libraryerr"
)

func TestTranslateErrorPreservesVectorCode(t *testing.T) {
	data, err := json.Marshal(wireErrorData{VectorCode: "E42"})
	require.NoError(t, err)

	translated := translateError(&WireError{Code: -32001, Message: "boom", Data: data})
	le, ok := translated.(*libraryerr.Error)
	require.True(t, ok)
	require.Equal(t, libraryerr.CodeStacksError, le.Code)
	require.Equal(t, "E42", le.VectorCode)
}

func TestCallRoundTripsThroughEchoSubprocess(t *testing.T) {
	c, err := Start(context.Background(), "cat")
	require.NoError(t, err)
	defer c.Dispose(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = c.Call(ctx, "ping", map[string]string{"hello": "world"}, 0)
	require.NoError(t, err)
}

func TestDisposeFailsPendingRequests(t *testing.T) {
	c, err := Start(context.Background(), "sleep", "5")
	require.NoError(t, err)

	resultCh := make(chan error, 1)
	go func() {
		_, callErr := c.Call(context.Background(), "noop", nil, 10*time.Second)
		resultCh <- callErr
	}()

	time.Sleep(50 * time.Millisecond)
	disposeCtx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_ = c.Dispose(disposeCtx) // sleep ignores stdin close, so this kills the process

	select {
	case err := <-resultCh:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Call did not unblock after Dispose")
	}
}
