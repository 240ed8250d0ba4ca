package embedding

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	fn    func(text string) ([]float32, error)
	calls int
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.calls++
	return f.fn(text)
}

func TestEmbedSuccess(t *testing.T) {
	g := &Gateway{
		embedder:  &fakeEmbedder{fn: func(string) ([]float32, error) { return []float32{1, 2, 3}, nil }},
		dimension: 3,
	}

	out := g.Embed(context.Background(), "hello")
	assert.False(t, out.Degraded)
	assert.Empty(t, out.Reason)
	assert.Equal(t, []float32{1, 2, 3}, out.Vector)
}

func TestEmbedFailureDegradesToZeroVector(t *testing.T) {
	g := &Gateway{
		embedder:  &fakeEmbedder{fn: func(string) ([]float32, error) { return nil, errors.New("connection refused") }},
		dimension: 4,
	}

	out := g.Embed(context.Background(), "hello")
	assert.True(t, out.Degraded)
	assert.Equal(t, "connection refused", out.Reason)
	assert.Equal(t, []float32{0, 0, 0, 0}, out.Vector)
}

func TestEmbedBatchMixedOutcomes(t *testing.T) {
	fake := &fakeEmbedder{fn: func(text string) ([]float32, error) {
		if text == "bad" {
			return nil, errors.New("model error")
		}
		return []float32{float32(len(text)), 0}, nil
	}}
	g := &Gateway{embedder: fake, dimension: 2}

	outcomes := g.EmbedBatch(context.Background(), []string{"one", "bad", "three"})
	require.Len(t, outcomes, 3)
	assert.Equal(t, 3, fake.calls)

	assert.False(t, outcomes[0].Degraded)
	assert.Equal(t, []float32{3, 0}, outcomes[0].Vector)

	assert.True(t, outcomes[1].Degraded)
	assert.Equal(t, []float32{0, 0}, outcomes[1].Vector)

	assert.False(t, outcomes[2].Degraded)
	assert.Equal(t, []float32{5, 0}, outcomes[2].Vector)
}

func TestEmbedBatchEmpty(t *testing.T) {
	fake := &fakeEmbedder{fn: func(string) ([]float32, error) { return nil, nil }}
	g := &Gateway{embedder: fake, dimension: 2}

	outcomes := g.EmbedBatch(context.Background(), nil)
	assert.Empty(t, outcomes)
	assert.Zero(t, fake.calls)
}

func TestCheckHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"models":[{"name":"nomic-embed-text:v1.5"},{"name":"gemma:2b"}]}`))
	}))
	defer srv.Close()

	g := &Gateway{baseURL: srv.URL, client: srv.Client()}
	names, err := g.CheckHealth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"nomic-embed-text:v1.5", "gemma:2b"}, names)
}

func TestCheckHealthBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	g := &Gateway{baseURL: srv.URL, client: srv.Client()}
	_, err := g.CheckHealth(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestCheckHealthUnreachable(t *testing.T) {
	g := &Gateway{
		baseURL: "http://127.0.0.1:1",
		client:  &http.Client{Timeout: time.Second},
	}
	_, err := g.CheckHealth(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreachable")
}
