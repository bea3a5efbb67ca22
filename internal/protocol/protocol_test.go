package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTxIDUnmarshal(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		set     bool
		wantErr bool
	}{
		{name: "string", input: `"abc-1"`, want: "abc-1", set: true},
		{name: "number keeps literal", input: `12`, want: "12", set: true},
		{name: "negative float", input: `-1.5`, want: "-1.5", set: true},
		{name: "empty string is present", input: `""`, want: "", set: true},
		{name: "null is absent", input: `null`, set: false},
		{name: "object rejected", input: `{}`, wantErr: true},
		{name: "bool rejected", input: `true`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var id TxID
			err := json.Unmarshal([]byte(tt.input), &id)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.set, id.IsSet())
			assert.Equal(t, tt.want, id.String())
		})
	}
}

func TestTxIDNumberAndStringCorrelate(t *testing.T) {
	var a, b TxID
	require.NoError(t, json.Unmarshal([]byte(`7`), &a))
	require.NoError(t, json.Unmarshal([]byte(`"7"`), &b))
	assert.Equal(t, a, b)

	out, err := json.Marshal(a)
	require.NoError(t, err)
	assert.Equal(t, `"7"`, string(out))
}

func TestRequestAbsentVersusEmpty(t *testing.T) {
	req, err := DecodeRequest(strings.NewReader(`{"method":"sign","txid":"1","rawtext":"","keyid":null}`))
	require.NoError(t, err)

	require.NotNil(t, req.RawText)
	assert.Equal(t, "", *req.RawText)
	assert.Nil(t, req.KeyID)
	assert.Nil(t, req.Signature)
}

func TestRequestField(t *testing.T) {
	var req Request
	for _, name := range Whitelist {
		p := req.Field(name)
		require.NotNil(t, p, name)
		*p = String(name + "-value")
	}
	assert.Nil(t, req.Field("method"))
	assert.Nil(t, req.Field("bogus"))

	data, err := json.Marshal(req)
	require.NoError(t, err)
	var back map[string]any
	require.NoError(t, json.Unmarshal(data, &back))
	for _, name := range Whitelist {
		assert.Equal(t, name+"-value", back[name], name)
	}
}

func TestEncodeRequestValidation(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, EncodeRequest(&buf, &Request{Method: MethodSign}))
	assert.NoError(t, EncodeRequest(&buf, &Request{TxID: NewTxID("1")}))
	assert.Contains(t, buf.String(), `"method":""`)
	buf.Reset()
	assert.NoError(t, EncodeRequest(&buf, &Request{Method: MethodSign, TxID: NewTxID("1")}))
	assert.Contains(t, buf.String(), `"txid":"1"`)
}

func TestResponseMerge(t *testing.T) {
	resp := NewResponse("https://a.example", NewTxID("t1"))
	assert.True(t, resp.IsError)

	resp.Merge(map[string]any{
		"isError":   false,
		"retstring": "hello",
	})
	assert.False(t, resp.IsError)
	v, ok := resp.Get("retstring")
	assert.True(t, ok)
	assert.Equal(t, "hello", v)

	// later keys overwrite earlier ones, errorStr included
	resp.Merge(map[string]any{"isError": true, "errorStr": "Bad signature", "retstring": "bye"})
	assert.True(t, resp.IsError)
	assert.Equal(t, "Bad signature", resp.ErrorStr)
	v, _ = resp.Get("retstring")
	assert.Equal(t, "bye", v)
}

func TestResponseMarshal(t *testing.T) {
	t.Run("success omits errorStr", func(t *testing.T) {
		resp := NewResponse("https://a.example", NewTxID("t1"))
		resp.Merge(map[string]any{"isError": false, "errorStr": "stale", "retbool": true})

		data, err := json.Marshal(resp)
		require.NoError(t, err)
		var m map[string]any
		require.NoError(t, json.Unmarshal(data, &m))
		assert.Equal(t, false, m["isError"])
		assert.NotContains(t, m, "errorStr")
		assert.Equal(t, "https://a.example", m["targetOrigin"])
		assert.Equal(t, "t1", m["txid"])
		assert.Equal(t, true, m["retbool"])
	})

	t.Run("no txid omits txid", func(t *testing.T) {
		resp := NewResponse("https://a.example", TxID{})
		resp.Fail("No txid specified")

		data, err := json.Marshal(resp)
		require.NoError(t, err)
		var m map[string]any
		require.NoError(t, json.Unmarshal(data, &m))
		assert.NotContains(t, m, "txid")
		assert.Equal(t, "No txid specified", m["errorStr"])
	})

	t.Run("round trip", func(t *testing.T) {
		resp := NewResponse("https://b.example", NewTxID("9"))
		resp.Merge(map[string]any{"isError": false, "uids": []any{"Alice <a@example.com>"}})

		var buf bytes.Buffer
		require.NoError(t, EncodeResponse(&buf, resp))
		back, err := DecodeResponse(&buf)
		require.NoError(t, err)
		assert.Equal(t, resp.TxID, back.TxID)
		assert.Equal(t, resp.TargetOrigin, back.TargetOrigin)
		assert.Equal(t, []any{"Alice <a@example.com>"}, back.Fields["uids"])
	})
}

func TestDecodeResponseKeepsFieldsWithoutErrorIndicator(t *testing.T) {
	resp, err := DecodeResponse(strings.NewReader(`{"isError":true,"targetOrigin":"x","txid":"3","retstring":"gpg 2.4"}`))
	require.NoError(t, err)
	assert.True(t, resp.IsError)
	assert.Empty(t, resp.ErrorStr)
	assert.Equal(t, "gpg 2.4", resp.Fields["retstring"])
	assert.Equal(t, "3", resp.TxID.String())
}

func TestDecodeAttributes(t *testing.T) {
	attrs, err := DecodeAttributes([]byte(`{"method":"encrypt","txid":42,"always_trust":true,"keyid":null,"rawtext":""}`))
	require.NoError(t, err)

	assert.Equal(t, "encrypt", attrs["method"])
	assert.Equal(t, "42", attrs["txid"])
	assert.Equal(t, "true", attrs["always_trust"])
	assert.NotContains(t, attrs, "keyid")
	v, ok := attrs["rawtext"]
	assert.True(t, ok)
	assert.Equal(t, "", v)

	_, err = DecodeAttributes([]byte(`{"rawtext":{"a":1}}`))
	assert.Error(t, err)
	_, err = DecodeAttributes([]byte(`[1,2]`))
	assert.Error(t, err)
}

func TestFrames(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte(`{"a":1}`), MaxOutboundFrame))
	require.NoError(t, WriteFrame(&buf, []byte(`{}`), MaxOutboundFrame))
	assert.Equal(t, []byte{7, 0, 0, 0}, buf.Bytes()[:4])

	first, err := ReadFrame(&buf, MaxInboundFrame)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(first))

	second, err := ReadFrame(&buf, MaxInboundFrame)
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(second))

	_, err = ReadFrame(&buf, MaxInboundFrame)
	assert.ErrorIs(t, err, io.EOF)
}

func TestFrameLimits(t *testing.T) {
	err := WriteFrame(io.Discard, make([]byte, 11), 10)
	assert.True(t, errors.Is(err, ErrFrameTooLarge))

	_, err = ReadFrame(bytes.NewReader([]byte{0xff, 0xff, 0, 0}), 16)
	assert.ErrorIs(t, err, ErrFrameTooLarge)

	_, err = ReadFrame(bytes.NewReader([]byte{4, 0, 0, 0, 'a'}), 16)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	_, err = ReadFrame(bytes.NewReader([]byte{4, 0}), 16)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}
