package main

import (
	"bufio"
	"encoding/json"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeServer accepts one connection, decodes the request, and replies with
// resp, mirroring internal/server's one-request-per-connection contract
// closely enough to exercise roundTrip without spinning up a real Store.
func fakeServer(t *testing.T, resp response) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		if _, err := bufio.NewReader(conn).ReadBytes('\n'); err != nil {
			return
		}
		data, err := json.Marshal(resp)
		if err != nil {
			return
		}
		conn.Write(append(data, '\n'))
	}()

	return ln.Addr().String()
}

func TestRoundTripDecodesKeyNotFound(t *testing.T) {
	addr = fakeServer(t, response{OK: false, Error: "Key not found"})

	resp, err := roundTrip(request{Op: "remove", Key: "nope"})
	require.NoError(t, err)
	require.False(t, resp.OK)
	require.Equal(t, "Key not found", resp.Error)
}

func TestRoundTripDecodesFoundValue(t *testing.T) {
	addr = fakeServer(t, response{OK: true, Found: true, Value: "v1"})

	resp, err := roundTrip(request{Op: "get", Key: "k1"})
	require.NoError(t, err)
	require.True(t, resp.OK)
	require.True(t, resp.Found)
	require.Equal(t, "v1", resp.Value)
}
