package walrus

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStoreResponse_Receipt(t *testing.T) {
	r := StoreResponse{NewlyCreated: &NewlyCreatedJSON{
		BlobObject: BlobObjectJSON{ID: "0x1", BlobID: "abc", Storage: StorageJSON{EndEpoch: 5}},
	}}

	receipt, err := r.Receipt()
	require.NoError(t, err)
	require.Equal(t, NewlyCreated{BlobID: "abc", ObjectID: "0x1", EndEpoch: 5}, receipt)

	r = StoreResponse{AlreadyCertified: &AlreadyCertifiedJSON{
		BlobID: "abc", Event: EventJSON{TxDigest: "D"}, EndEpoch: 7,
	}}

	receipt, err = r.Receipt()
	require.NoError(t, err)
	require.Equal(t, AlreadyCertified{BlobID: "abc", TxDigest: "D", EndEpoch: 7}, receipt)
	require.Equal(t, "abc", receipt.GetBlobID())
	require.Equal(t, uint64(7), receipt.GetEndEpoch())

	_, err = StoreResponse{}.Receipt()
	require.EqualError(t, err, "unknown response shape")

	_, err = StoreResponse{AlreadyCertified: &AlreadyCertifiedJSON{}}.Receipt()
	require.EqualError(t, err, "missing blob id")

	_, err = StoreResponse{NewlyCreated: &NewlyCreatedJSON{}}.Receipt()
	require.EqualError(t, err, "missing blob id")
}

func TestClient_New(t *testing.T) {
	_, err := NewClient(nil)
	require.EqualError(t, err, "no backend")

	client, err := NewClient([]Backend{{Name: "a"}, {Name: "b"}})
	require.NoError(t, err)
	require.Len(t, client.Backends(), 2)

	backend, err := client.Backend("b")
	require.NoError(t, err)
	require.Equal(t, "b", backend.Name)

	_, err = client.Backend("c")
	require.EqualError(t, err, "unknown backend 'c'")
}

func TestClient_Store(t *testing.T) {
	var query string
	var body []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/v1/blobs", r.URL.Path)

		query = r.URL.RawQuery
		body, _ = io.ReadAll(r.Body)

		fmt.Fprint(w, `{"newlyCreated":{"blobObject":{"id":"0xab","blobId":"B1","storage":{"endEpoch":12}}}}`)
	}))
	defer srv.Close()

	backend := Backend{Name: "local", PublisherURL: srv.URL + "/"}

	client, err := NewClient([]Backend{backend})
	require.NoError(t, err)

	receipt, err := client.Store(context.Background(), []byte("cipher"), backend, 3)
	require.NoError(t, err)
	require.Equal(t, NewlyCreated{BlobID: "B1", ObjectID: "0xab", EndEpoch: 12}, receipt)
	require.Equal(t, "epochs=3", query)
	require.Equal(t, []byte("cipher"), body)
}

func TestClient_StoreAlreadyCertified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"alreadyCertified":{"blobId":"B1","event":{"txDigest":"T"},"endEpoch":9}}`)
	}))
	defer srv.Close()

	backend := Backend{Name: "local", PublisherURL: srv.URL}

	client, err := NewClient([]Backend{backend})
	require.NoError(t, err)

	receipt, err := client.Store(context.Background(), []byte("cipher"), backend, 1)
	require.NoError(t, err)
	require.Equal(t, AlreadyCertified{BlobID: "B1", TxDigest: "T", EndEpoch: 9}, receipt)
}

func TestClient_StoreFailures(t *testing.T) {
	long := make([]byte, 300)
	for i := range long {
		long[i] = 'x'
	}

	calls := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++

		switch r.URL.Query().Get("epochs") {
		case "1":
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write(long)
		default:
			fmt.Fprint(w, `{"unexpected":true}`)
		}
	}))
	defer srv.Close()

	backend := Backend{Name: "local", PublisherURL: srv.URL}

	client, err := NewClient([]Backend{backend, {Name: "other", PublisherURL: srv.URL}})
	require.NoError(t, err)

	_, err = client.Store(context.Background(), nil, backend, 0)
	require.EqualError(t, err, "invalid number of epochs 0")

	_, err = client.Store(context.Background(), nil, Backend{Name: "none"}, 1)
	require.EqualError(t, err, "backend 'none' has no publisher")

	_, err = client.Store(context.Background(), nil, backend, 1)
	require.EqualError(t, err, "failed to store blob: status 503: "+string(long[:100]))
	require.Equal(t, 1, calls)

	_, err = client.Store(context.Background(), nil, backend, 2)
	require.EqualError(t, err, "invalid response: unknown response shape")
}

func TestClient_FetchMany(t *testing.T) {
	blobs := map[string]string{"a": "alpha", "b": "beta", "c": "gamma"}

	srv := httptest.NewServer(blobHandler(blobs))
	defer srv.Close()

	client, err := NewClient([]Backend{{Name: "local", AggregatorURL: srv.URL}})
	require.NoError(t, err)

	res, err := client.FetchMany(context.Background(), []string{"a", "b", "c", "d"})
	require.NoError(t, err)
	require.Equal(t, 1, res.Missing)
	require.Len(t, res.Blobs, 3)

	ids := make([]string, len(res.Blobs))
	for i, blob := range res.Blobs {
		ids[i] = blob.ID
		require.Equal(t, blobs[blob.ID], string(blob.Data))
	}

	sort.Strings(ids)
	require.Equal(t, []string{"a", "b", "c"}, ids)

	res, err = client.FetchMany(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, res.Blobs)

	res, err = client.FetchMany(context.Background(), []string{"x", "y"})
	require.Equal(t, ErrNoBlobs, err)
	require.Equal(t, 2, res.Missing)
}

func TestClient_FetchEscapesID(t *testing.T) {
	paths := make(chan string, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths <- r.URL.EscapedPath() + "?" + r.URL.RawQuery
		fmt.Fprint(w, "alpha")
	}))
	defer srv.Close()

	client, err := NewClient([]Backend{{Name: "local", AggregatorURL: srv.URL}})
	require.NoError(t, err)

	data, err := client.Fetch(context.Background(), "../admin?x=1")
	require.NoError(t, err)
	require.Equal(t, []byte("alpha"), data)
	require.Equal(t, "/v1/blobs/..%2Fadmin%3Fx=1?", <-paths)
}

func TestClient_FetchTimeout(t *testing.T) {
	done := make(chan struct{})

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-done:
		case <-r.Context().Done():
		}
	}))
	defer slow.Close()
	defer close(done)

	client, err := NewClient([]Backend{{Name: "slow", AggregatorURL: slow.URL}},
		WithTimeout(50*time.Millisecond))
	require.NoError(t, err)

	res, err := client.FetchMany(context.Background(), []string{"a"})
	require.Equal(t, ErrNoBlobs, err)
	require.Equal(t, 1, res.Missing)
}

func TestClient_FetchFallback(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	good := httptest.NewServer(blobHandler(map[string]string{"a": "alpha"}))
	defer good.Close()

	backends := []Backend{
		{Name: "bad", AggregatorURL: bad.URL},
		{Name: "good", AggregatorURL: good.URL},
	}

	first := func(n int) int { return 0 }

	client, err := NewClient(backends, WithPicker(first))
	require.NoError(t, err)

	_, err = client.Fetch(context.Background(), "a")
	require.Error(t, err)
	require.Contains(t, err.Error(), "status 500")

	client, err = NewClient(backends, WithPicker(first), WithFallback(1))
	require.NoError(t, err)

	data, err := client.Fetch(context.Background(), "a")
	require.NoError(t, err)
	require.Equal(t, []byte("alpha"), data)

	client, err = NewClient([]Backend{{Name: "publisher only", PublisherURL: good.URL}})
	require.NoError(t, err)

	_, err = client.Fetch(context.Background(), "a")
	require.EqualError(t, err, "no aggregator")
}

// -----------------------------------------------------------------------------
// Utility functions

func blobHandler(blobs map[string]string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, ok := blobs[r.URL.Path[len("/v1/blobs/"):]]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		fmt.Fprint(w, data)
	})
}
