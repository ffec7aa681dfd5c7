package vectorstore

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func TestQdrantEnsureCollectionCreatesMissing(t *testing.T) {
	var gets, puts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			gets.Add(1)
			w.WriteHeader(http.StatusNotFound)
		case http.MethodPut:
			puts.Add(1)
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	p := NewQdrantProvider(QdrantConfig{URL: srv.URL}, quietLogger())
	ctx := context.Background()

	require.NoError(t, p.EnsureCollection(ctx, "chunks", 4))
	// The second call is memoized and makes no further requests.
	require.NoError(t, p.EnsureCollection(ctx, "chunks", 4))

	assert.Equal(t, int32(1), gets.Load())
	assert.Equal(t, int32(1), puts.Load())
}

func TestQdrantEnsureCollectionServerError(t *testing.T) {
	var gets atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gets.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewQdrantProvider(QdrantConfig{URL: srv.URL}, quietLogger())
	ctx := context.Background()

	assert.Error(t, p.EnsureCollection(ctx, "chunks", 4))
	// A failed check must not be memoized as success.
	assert.Error(t, p.EnsureCollection(ctx, "chunks", 4))
	assert.Equal(t, int32(2), gets.Load())
}

func TestQdrantEnsureCollectionExisting(t *testing.T) {
	var puts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			puts.Add(1)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewQdrantProvider(QdrantConfig{URL: srv.URL}, quietLogger())
	require.NoError(t, p.EnsureCollection(context.Background(), "chunks", 4))
	assert.Equal(t, int32(0), puts.Load())
}
