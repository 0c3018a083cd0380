package docsource

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tkn", r.Header.Get("Authorization"))
		assert.Equal(t, "doc", r.URL.Query().Get("doc_type"))
		json.NewEncoder(w).Encode(map[string]any{
			"title":              "Launch Plan",
			"owner_id":           "o1",
			"latest_modify_user": "alice",
			"latest_modify_time": 1700000000,
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tkn", 1, 0)
	meta, err := c.FetchMetadata(context.Background(), "tok1", "doc")
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, "Launch Plan", meta.Title)
	assert.Equal(t, "alice", meta.LastModifiedUser)
	assert.Equal(t, int64(1700000000), meta.LastModifiedTime)
}

func TestFetchMetadata_GoneDocumentIsNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tkn", 1, 0)
	meta, err := c.FetchMetadata(context.Background(), "tok1", "doc")
	require.NoError(t, err)
	assert.Nil(t, meta)
}

func TestFetchMetadata_Non404ClientErrorIsStatusError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("permission denied"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tkn", 3, time.Millisecond)
	_, err := c.FetchMetadata(context.Background(), "tok1", "doc")
	assert.ErrorContains(t, err, "platform returned 403")
	// 4xx is not retried.
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchContent_Non404ClientErrorIsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("bad token"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tkn", 1, 0)
	_, err := c.FetchContent(context.Background(), "tok1", "doc")
	assert.ErrorContains(t, err, "platform returned 401")
}

func TestFetchContent_Retries5xx(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(contentResponse{Content: "hello"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tkn", 3, time.Millisecond)
	content, err := c.FetchContent(context.Background(), "tok1", "doc")
	require.NoError(t, err)
	assert.Equal(t, "hello", content)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchContent_ExhaustedRetriesFail(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tkn", 2, time.Millisecond)
	_, err := c.FetchContent(context.Background(), "tok1", "doc")
	assert.ErrorContains(t, err, "all 2 attempts failed")
	assert.Equal(t, int32(2), calls.Load())
}

func TestNotify(t *testing.T) {
	var got sendMessageRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tkn", 1, 0)
	err := c.Notify(context.Background(), "chat-1", "Launch Plan", "Document modified by alice.")
	require.NoError(t, err)
	assert.Equal(t, "chat-1", got.ChatID)
	assert.Equal(t, "Launch Plan", got.Title)
}

func TestNotify_Non2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tkn", 1, 0)
	err := c.Notify(context.Background(), "chat-1", "t", "b")
	assert.ErrorContains(t, err, "403")
}
