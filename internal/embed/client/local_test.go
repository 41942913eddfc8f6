package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentfusion/contextengine/internal/embed"
)

func TestLocalProvider_EmbedUsesRunningServerWithoutStartingSubprocess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			w.WriteHeader(http.StatusOK)
			return
		}
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		out := make([][]float32, len(req.Texts))
		for i := range req.Texts {
			out[i] = []float32{float32(i), 1, 2}
		}
		json.NewEncoder(w).Encode(embedResponse{Embeddings: out})
	}))
	defer srv.Close()

	endpoint := strings.TrimPrefix(srv.URL, "http://")
	p := NewLocalProvider("nonexistent-binary-never-invoked", endpoint, 3, "local-v1")

	out, err := p.Embed(context.Background(), []string{"a", "b"}, embed.EmbedModePassage)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, []float32{0, 1, 2}, out[0])
	assert.Equal(t, []float32{1, 1, 2}, out[1])

	assert.Equal(t, 3, p.Dimensions())
	assert.Equal(t, "local-v1", p.ModelTag())
	assert.NoError(t, p.Close()) // no subprocess was started, so this is a no-op
}

func TestLocalProvider_EmbedWrapsTransportFailure(t *testing.T) {
	p := NewLocalProvider("nonexistent-binary", "127.0.0.1:1", 3, "local-v1")

	_, err := p.Embed(context.Background(), []string{"a"}, embed.EmbedModePassage)
	require.Error(t, err)
	var embedErr *embed.EmbeddingError
	require.ErrorAs(t, err, &embedErr)
	assert.Equal(t, "local-v1", embedErr.ModelTag)
}
