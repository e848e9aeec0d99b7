package ai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatResponse(content string) string {
	payload := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"content": content}},
		},
	}
	b, _ := json.Marshal(payload)
	return string(b)
}

func TestCallWithMessages_NormalizesBaseURL(t *testing.T) {
	var gotPath atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath.Store(r.URL.Path)
		assert.Equal(t, "Bearer k-test", r.Header.Get("Authorization"))
		io.WriteString(w, chatResponse("ok"))
	}))
	defer server.Close()

	// 配置里已带 /chat/completions 时不应重复拼接
	client := &ChatClient{BaseURL: server.URL + "/v1/chat/completions", APIKey: "k-test", Model: "test-model"}
	out, err := client.CallWithMessages(context.Background(), "sys", "user")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, "/v1/chat/completions", gotPath.Load())
}

func TestCallWithMessages_RetriesOn429(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			io.WriteString(w, `{"error":{"message":"rate limited"}}`)
			return
		}
		io.WriteString(w, chatResponse("recovered"))
	}))
	defer server.Close()

	client := &ChatClient{BaseURL: server.URL, Model: "test-model", MaxRetries: 2}
	out, err := client.CallWithMessages(context.Background(), "", "user")
	require.NoError(t, err)
	assert.Equal(t, "recovered", out)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCallWithMessages_NonRetriableStatus(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":{"message":"invalid api key"}}`)
	}))
	defer server.Close()

	client := &ChatClient{BaseURL: server.URL, Model: "test-model", MaxRetries: 2}
	_, err := client.CallWithMessages(context.Background(), "", "user")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid api key")
	assert.Equal(t, int32(1), calls.Load(), "401 不应重试")
}

func TestGenerate_ParsesSignal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, chatResponse(validSignalJSON))
	}))
	defer server.Close()

	gen := NewSignalGenerator(&ChatClient{BaseURL: server.URL, Model: "test-model"})
	signal, err := gen.Generate(context.Background(), "sys", "report")
	require.NoError(t, err)
	assert.Equal(t, ActionOpenLong, signal.Signal.Action)
}

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "", maskKey(""))
	assert.Equal(t, "****", maskKey("abc"))
	assert.Equal(t, "****6789", maskKey("sk-123456789"))
}
