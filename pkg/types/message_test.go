package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRequest(t *testing.T) {
	t.Run("full message", func(t *testing.T) {
		req, err := DecodeRequest([]byte(`{"id":"t1","amount":42.5,"device_id":"dev-1"}`))
		require.NoError(t, err)
		assert.Equal(t, Request{ID: "t1", Amount: 42.5, DeviceID: "dev-1"}, req)
	})

	t.Run("missing device_id defaults to sentinel", func(t *testing.T) {
		req, err := DecodeRequest([]byte(`{"id":"t1","amount":10}`))
		require.NoError(t, err)
		assert.Equal(t, UnknownDevice, req.DeviceID)
	})

	t.Run("zero amount is accepted", func(t *testing.T) {
		req, err := DecodeRequest([]byte(`{"id":"t0","amount":0}`))
		require.NoError(t, err)
		assert.Equal(t, 0.0, req.Amount)
	})

	t.Run("largest storable amount is accepted", func(t *testing.T) {
		req, err := DecodeRequest([]byte(`{"id":"t9","amount":99999999.99}`))
		require.NoError(t, err)
		assert.Equal(t, MaxAmount, req.Amount)
	})

	t.Run("amount is rounded to cents", func(t *testing.T) {
		req, err := DecodeRequest([]byte(`{"id":"t1","amount":10.004}`))
		require.NoError(t, err)
		assert.Equal(t, 10.0, req.Amount)
	})

	rejected := map[string]string{
		"missing id":         `{"amount":10}`,
		"empty id":           `{"id":"","amount":10}`,
		"missing amount":     `{"id":"t1"}`,
		"null amount":        `{"id":"t1","amount":null}`,
		"string amount":      `{"id":"t1","amount":"10"}`,
		"numeric id":         `{"id":7,"amount":10}`,
		"negative amount":    `{"id":"t1","amount":-1}`,
		"huge amount":        `{"id":"t1","amount":100000000}`,
		"overflowing amount": `{"id":"t1","amount":1e307}`,
		"out of range float": `{"id":"t1","amount":1e309}`,
		"malformed payload":  `{"id":`,
		"not an object":      `[1,2,3]`,
	}
	for name, payload := range rejected {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeRequest([]byte(payload))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrDecode))

			var decodeErr *DecodeError
			assert.True(t, errors.As(err, &decodeErr))
		})
	}
}

func TestEncodeResponse(t *testing.T) {
	b, err := EncodeResponse(Response{ID: "t1", Status: StatusApproved})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"t1","status":"approved"}`, string(b))
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.True(t, StatusApproved.Terminal())
	assert.True(t, StatusRejected.Terminal())
}

func TestDecodeResponse(t *testing.T) {
	resp, err := DecodeResponse([]byte(`{"id":"t1","status":"rejected"}`))
	require.NoError(t, err)
	assert.Equal(t, Response{ID: "t1", Status: StatusRejected}, resp)

	for _, payload := range []string{`{"id":"t1","status":"pending"}`, `{"status":"approved"}`, `nope`} {
		_, err := DecodeResponse([]byte(payload))
		assert.ErrorIs(t, err, ErrDecode, payload)
	}
}
