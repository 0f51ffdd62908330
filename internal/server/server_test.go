package server

import (
	"bufio"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kvstash/kvstash/internal/engine"
	"github.com/kvstash/kvstash/internal/pool"
)

func startTestServer(t *testing.T) string {
	t.Helper()
	store, err := engine.Open(engine.DefaultConfig(t.TempDir()))
	require.NoError(t, err)

	p := pool.New(2)
	srv := New(store, p)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	go func() { _ = srv.Serve(addr) }()
	t.Cleanup(func() {
		srv.Close()
		p.Shutdown()
		store.Close()
	})

	waitForListener(t, addr)
	return addr
}

func waitForListener(t *testing.T, addr string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.Dial("tcp", addr)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("server never started listening on %s", addr)
}

func roundTrip(t *testing.T, addr string, req Request) Response {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	data, err := json.Marshal(req)
	require.NoError(t, err)
	data = append(data, '\n')
	_, err = conn.Write(data)
	require.NoError(t, err)

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.Unmarshal(line, &resp))
	return resp
}

func TestSetThenGet(t *testing.T) {
	addr := startTestServer(t)

	resp := roundTrip(t, addr, Request{Op: OpSet, Key: "k1", Value: "v1"})
	require.True(t, resp.OK)

	resp = roundTrip(t, addr, Request{Op: OpGet, Key: "k1"})
	require.True(t, resp.OK)
	require.True(t, resp.Found)
	require.Equal(t, "v1", resp.Value)
}

func TestGetMissingKeyIsOkNotFound(t *testing.T) {
	addr := startTestServer(t)

	resp := roundTrip(t, addr, Request{Op: OpGet, Key: "nope"})
	require.True(t, resp.OK)
	require.False(t, resp.Found)
	require.Empty(t, resp.Error)
}

func TestRemoveMissingKeyIsError(t *testing.T) {
	addr := startTestServer(t)

	resp := roundTrip(t, addr, Request{Op: OpRemove, Key: "nope"})
	require.False(t, resp.OK)
	require.Equal(t, "Key not found", resp.Error)
}

func TestMalformedRequestGetsProtocolError(t *testing.T) {
	addr := startTestServer(t)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("not json\n"))
	require.NoError(t, err)

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.Unmarshal(line, &resp))
	require.False(t, resp.OK)
	require.NotEmpty(t, resp.Error)
}

func TestOneRequestPerConnection(t *testing.T) {
	addr := startTestServer(t)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	req, _ := json.Marshal(Request{Op: OpSet, Key: "k1", Value: "v1"})
	_, err = conn.Write(append(req, '\n'))
	require.NoError(t, err)

	reader := bufio.NewReader(conn)
	_, err = reader.ReadBytes('\n')
	require.NoError(t, err)

	req2, _ := json.Marshal(Request{Op: OpGet, Key: "k1"})
	_, err = conn.Write(append(req2, '\n'))
	require.NoError(t, err)

	_, err = reader.ReadBytes('\n')
	require.Error(t, err) // server already closed the connection after one response
}
