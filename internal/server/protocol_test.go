package server

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeRequestGet(t *testing.T) {
	req, err := decodeRequest([]byte(`{"op":"get","key":"k1"}`))
	require.NoError(t, err)
	require.Equal(t, OpGet, req.Op)
	require.Equal(t, "k1", req.Key)
}

func TestDecodeRequestSetRequiresKey(t *testing.T) {
	_, err := decodeRequest([]byte(`{"op":"set","value":"v1"}`))
	require.ErrorIs(t, err, ErrMalformedRequest)
}

func TestDecodeRequestUnknownOp(t *testing.T) {
	_, err := decodeRequest([]byte(`{"op":"bogus","key":"k1"}`))
	require.ErrorIs(t, err, ErrMalformedRequest)
}

func TestDecodeRequestInvalidJSON(t *testing.T) {
	_, err := decodeRequest([]byte(`not json`))
	require.ErrorIs(t, err, ErrMalformedRequest)
}

func TestEncodeResponseFraming(t *testing.T) {
	data, err := encodeResponse(foundResponse("v1"))
	require.NoError(t, err)
	require.Equal(t, byte('\n'), data[len(data)-1])
	require.Contains(t, string(data), `"value":"v1"`)
	require.Contains(t, string(data), `"found":true`)
}

func TestMissResponseHasNoError(t *testing.T) {
	data, err := encodeResponse(missResponse())
	require.NoError(t, err)
	require.Contains(t, string(data), `"ok":true`)
	require.NotContains(t, string(data), `"error"`)
}

func TestErrResponseCarriesMessage(t *testing.T) {
	data, err := encodeResponse(errResponse(errors.New("boom")))
	require.NoError(t, err)
	require.Contains(t, string(data), `"ok":false`)
	require.Contains(t, string(data), `"error":"boom"`)
}
