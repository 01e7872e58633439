package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"vellum/internal/libraryerr"
)

func TestServeDispatchesRegisteredMethod(t *testing.T) {
	var out bytes.Buffer
	s := NewServer(&out)
	s.Register("ping", func(ctx context.Context, raw json.RawMessage) (any, error) {
		return map[string]string{"pong": "ok"}, nil
	})

	in := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping","params":{}}` + "\n")
	require.NoError(t, s.Serve(context.Background(), in))

	var resp Response
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(out.Bytes()), &resp))
	require.Nil(t, resp.Error)
	require.Equal(t, int64(1), resp.ID)
}

func TestServeUnknownMethodReturnsError(t *testing.T) {
	var out bytes.Buffer
	s := NewServer(&out)

	in := strings.NewReader(`{"jsonrpc":"2.0","id":2,"method":"missing"}` + "\n")
	require.NoError(t, s.Serve(context.Background(), in))

	var resp Response
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(out.Bytes()), &resp))
	require.NotNil(t, resp.Error)
	require.Equal(t, -32601, resp.Error.Code)
}

func TestServePreservesVectorCodeOnLibraryErr(t *testing.T) {
	var out bytes.Buffer
	s := NewServer(&out)
	s.Register("fail", func(ctx context.Context, raw json.RawMessage) (any, error) {
		return nil, &libraryerr.Error{Code: libraryerr.CodeStacksError, Message: "broke", VectorCode: "V7"}
	})

	in := strings.NewReader(`{"jsonrpc":"2.0","id":3,"method":"fail"}` + "\n")
	require.NoError(t, s.Serve(context.Background(), in))

	var resp Response
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(out.Bytes()), &resp))
	require.NotNil(t, resp.Error)

	var data wireErrorData
	require.NoError(t, json.Unmarshal(resp.Error.Data, &data))
	require.Equal(t, "V7", data.VectorCode)
}
