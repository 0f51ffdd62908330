package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMetricsAddrForIncrementsPort(t *testing.T) {
	addr, err := metricsAddrFor("127.0.0.1:4000")
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:4001", addr)
}

func TestMetricsAddrForRejectsMalformed(t *testing.T) {
	_, err := metricsAddrFor("not-an-addr")
	require.Error(t, err)
}
