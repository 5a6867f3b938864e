package generation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"branchpost/domain/core/valueobjects"
	pkgerrors "branchpost/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestTemplateGeneratorProducesDecodablePost(t *testing.T) {
	g := NewTemplateGenerator([]string{"A", "B", "C"})

	raw, err := g.Generate(context.Background(), "coffee")
	require.NoError(t, err)

	post, err := valueobjects.DecodeNestedPost(raw)
	require.NoError(t, err)
	assert.Contains(t, post.Title, "coffee")
	require.Len(t, post.RootNode.Options, 3)
	for _, opt := range post.RootNode.Options {
		require.Len(t, opt.NextNode.Options, 2)
		for _, leaf := range opt.NextNode.Options {
			assert.True(t, leaf.NextNode.IsEnding)
		}
	}
}

func TestTemplateGeneratorRejectsEmptyTopic(t *testing.T) {
	_, err := NewTemplateGenerator(nil).Generate(context.Background(), "   ")
	assert.True(t, pkgerrors.IsValidation(err))
}

func TestHTTPGeneratorPassesBodyThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "coffee", req.Topic)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"title":"Coffee","root_node":{"text":"hi","is_ending":"true"}}`))
	}))
	defer srv.Close()

	g := NewHTTPGenerator(srv.URL, time.Second, DefaultBreakerConfig("test"), zap.NewNop())
	raw, err := g.Generate(context.Background(), "coffee")
	require.NoError(t, err)

	post, err := valueobjects.DecodeNestedPost(raw)
	require.NoError(t, err)
	assert.Equal(t, "Coffee", post.Title)
	assert.True(t, post.RootNode.IsEnding)
}

func TestHTTPGeneratorBreakerOpens(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := DefaultBreakerConfig("test")
	cfg.MinRequests = 2
	cfg.FailureThreshold = 0.5
	g := NewHTTPGenerator(srv.URL, time.Second, cfg, zap.NewNop())

	for i := 0; i < 2; i++ {
		_, err := g.Generate(context.Background(), "coffee")
		require.Error(t, err)
		assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeExternal))
	}

	_, err := g.Generate(context.Background(), "coffee")
	require.Error(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}
