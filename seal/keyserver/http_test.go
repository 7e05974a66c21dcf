package keyserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/vault/internal/testing/fake"
	"go.dedis.ch/vault/seal"
	"golang.org/x/xerrors"
)

func TestHTTP_Roundtrip(t *testing.T) {
	services := make([]*Service, 3)
	urls := make([]string, 3)

	for i := range services {
		master, _ := seal.NewMasterKey()
		services[i] = NewService(master, fake.NewLedger())

		srv := httptest.NewServer(NewHandler(services[i]))
		defer srv.Close()

		urls[i] = srv.URL
	}

	servers, err := Connect(context.Background(), urls, nil)
	require.NoError(t, err)
	require.Len(t, servers, 3)
	require.Equal(t, services[1].ObjectID(), servers[1].ObjectID)

	client, err := seal.NewClient(servers)
	require.NoError(t, err)

	id := []byte("identifier")

	ciphertext, err := client.Encrypt(context.Background(), seal.EncryptRequest{
		PackageID: testPackage,
		ID:        id,
		Threshold: 2,
		Data:      []byte("hello"),
	})
	require.NoError(t, err)

	sk, _ := makeSessionKey(t)

	plaintext, err := client.Decrypt(context.Background(), seal.DecryptRequest{
		Data:       ciphertext,
		SessionKey: sk,
		TxBytes:    makeApproval(t, testPackage, "seal_approve", id),
	})
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), plaintext)
}

func TestHTTP_Denied(t *testing.T) {
	master, _ := seal.NewMasterKey()

	dry := fake.NewLedger()
	dry.ErrDry = fake.GetError()

	srv := httptest.NewServer(NewHandler(NewService(master, dry)))
	defer srv.Close()

	client := NewClient(srv.URL+"/", nil)

	req := makeRequest(t, makeApproval(t, testPackage, "seal_approve", []byte("a")))

	_, err := client.FetchKey(context.Background(), req)
	require.True(t, xerrors.Is(err, seal.ErrNoAccess))
	require.Contains(t, err.Error(), "ledger did not approve")

	req = makeRequest(t, []byte("{}"))

	_, err = client.FetchKey(context.Background(), req)
	require.Error(t, err)
	require.False(t, xerrors.Is(err, seal.ErrNoAccess))
	require.Contains(t, err.Error(), "status 400")
}

func TestHTTP_BadBody(t *testing.T) {
	master, _ := seal.NewMasterKey()

	srv := httptest.NewServer(NewHandler(NewService(master, fake.NewLedger())))
	defer srv.Close()

	resp, err := http.Post(srv.URL+pathFetchKey, "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(srv.URL + pathFetchKey)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	_, err = Connect(context.Background(), []string{srv.URL + "/unknown"}, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to reach key server")
}
