package seal

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/share"
	"go.dedis.ch/kyber/v3/util/random"
	"go.dedis.ch/vault"
	"go.dedis.ch/vault/ledger"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/xerrors"
)

var promKeyRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "vault_seal_key_requests_total",
	Help: "total number of key requests sent to the key servers by outcome",
}, []string{"outcome"})

func init() {
	vault.PromCollectors = append(vault.PromCollectors, promKeyRequests)
}

// Server is a key server known by the client.
type Server struct {
	ObjectID  ledger.ID
	PublicKey kyber.Point
	Conn      KeyServer
}

// EncryptRequest is the input of an encryption.
type EncryptRequest struct {
	PackageID ledger.ID
	ID        []byte
	Threshold int
	Data      []byte
}

// FetchKeysRequest is the input of a key retrieval for a batch of
// identifiers. The transaction must approve every identifier.
type FetchKeysRequest struct {
	IDs        [][]byte
	TxBytes    []byte
	SessionKey *SessionKey
	Threshold  int

	// Fresh drops the known keys of the identifiers first, so that the key
	// servers check the access again.
	Fresh bool
}

// DecryptRequest is the input of a decryption. The transaction is only used
// when the keys of the object have not been fetched yet.
type DecryptRequest struct {
	Data       []byte
	SessionKey *SessionKey
	TxBytes    []byte
}

// Client encrypts content for a set of key servers, and decrypts it with the
// user secret keys they release. The verified keys are kept for the lifetime
// of the client.
type Client struct {
	sync.Mutex

	servers map[ledger.ID]Server
	order   []ledger.ID
	keys    map[string]kyber.Point
	logger  zerolog.Logger
	now     func() time.Time
}

// NewClient returns a client for the key servers.
func NewClient(servers []Server) (*Client, error) {
	if len(servers) == 0 {
		return nil, xerrors.New("no key server")
	}

	if len(servers) > 255 {
		return nil, xerrors.Errorf("too many key servers: %d", len(servers))
	}

	c := &Client{
		servers: make(map[ledger.ID]Server),
		keys:    make(map[string]kyber.Point),
		logger:  vault.Logger.With().Str("role", "seal client").Logger(),
		now:     time.Now,
	}

	for _, srv := range servers {
		if srv.PublicKey == nil {
			return nil, xerrors.Errorf("key server %v has no public key", srv.ObjectID)
		}

		_, found := c.servers[srv.ObjectID]
		if found {
			return nil, xerrors.Errorf("duplicate key server %v", srv.ObjectID)
		}

		c.servers[srv.ObjectID] = srv
		c.order = append(c.order, srv.ObjectID)
	}

	return c, nil
}

// Len returns the number of key servers.
func (c *Client) Len() int {
	return len(c.order)
}

// Encrypt returns the encrypted object of the data for the identity made of
// the package and the identifier.
func (c *Client) Encrypt(ctx context.Context, req EncryptRequest) ([]byte, error) {
	if req.Threshold <= 0 || req.Threshold > len(c.order) {
		return nil, xerrors.Errorf("invalid threshold %d for %d key servers",
			req.Threshold, len(c.order))
	}

	if len(req.ID) == 0 {
		return nil, xerrors.New("empty identifier")
	}

	stream := random.New()
	g := suite.G1()

	secret := g.Scalar().Pick(stream)
	shares := share.NewPriPoly(g, req.Threshold, secret, stream).Shares(len(c.order))

	r := suite.G2().Scalar().Pick(stream)

	u, err := suite.G2().Point().Mul(r, nil).MarshalBinary()
	if err != nil {
		return nil, xerrors.Errorf("failed to marshal encapsulation: %v", err)
	}

	obj := EncryptedObject{
		Version:   Version,
		PackageID: req.PackageID,
		ID:        req.ID,
		Services:  append([]ledger.ID{}, c.order...),
		Threshold: uint8(req.Threshold),
		U:         u,
		Shares:    make([][]byte, len(c.order)),
		Nonce:     make([]byte, chacha20poly1305.NonceSize),
	}

	q := hashIdentity(obj.FullID())

	for i, id := range c.order {
		gt := suite.Pair(q, suite.G2().Point().Mul(r, c.servers[id].PublicKey))

		mask, err := shareMask(gt, id, i)
		if err != nil {
			return nil, xerrors.Errorf("failed to derive mask: %v", err)
		}

		value, err := shares[i].V.MarshalBinary()
		if err != nil {
			return nil, xerrors.Errorf("failed to marshal share: %v", err)
		}

		obj.Shares[i] = xor(value, mask)
	}

	_, err = rand.Read(obj.Nonce)
	if err != nil {
		return nil, xerrors.Errorf("failed to read nonce: %v", err)
	}

	aead, err := newDEM(secret)
	if err != nil {
		return nil, err
	}

	header, err := obj.header()
	if err != nil {
		return nil, xerrors.Errorf("failed to encode header: %v", err)
	}

	obj.Ciphertext = aead.Seal(nil, obj.Nonce, req.Data, header)

	data, err := obj.MarshalBinary()
	if err != nil {
		return nil, xerrors.Errorf("failed to encode object: %v", err)
	}

	c.logger.Debug().
		Str("id", hex.EncodeToString(req.ID)).
		Int("threshold", req.Threshold).
		Int("size", len(req.Data)).
		Msg("content encrypted")

	return data, nil
}

type fetchResult struct {
	server Server
	resp   *FetchKeyResponse
	err    error
}

// FetchKeys retrieves from the key servers the user secret keys of the
// identifiers, until the threshold is reached. It returns ErrNoAccess when
// key servers deny the access and the threshold cannot be reached.
func (c *Client) FetchKeys(ctx context.Context, req FetchKeysRequest) error {
	if len(req.IDs) == 0 {
		return xerrors.New("no identifier")
	}

	if req.Threshold <= 0 || req.Threshold > len(c.order) {
		return xerrors.Errorf("invalid threshold %d for %d key servers",
			req.Threshold, len(c.order))
	}

	sk := req.SessionKey
	if sk == nil {
		return xerrors.New("missing session key")
	}

	if sk.IsExpired(c.now()) {
		return xerrors.New("session key expired")
	}

	identities := make([][]byte, len(req.IDs))
	for i, id := range req.IDs {
		identities[i] = fullID(sk.PackageID(), id)
	}

	if req.Fresh {
		c.forget(identities)
	}

	var missing []Server
	for _, id := range c.order {
		if !c.hasKeys(id, identities) {
			missing = append(missing, c.servers[id])
		}
	}

	have := len(c.order) - len(missing)
	if have >= req.Threshold {
		return nil
	}

	cert, err := sk.Certificate()
	if err != nil {
		return xerrors.Errorf("failed to get certificate: %v", err)
	}

	encKey := newElGamalKey()

	pub, err := encKey.public.MarshalBinary()
	if err != nil {
		return xerrors.Errorf("failed to marshal encryption key: %v", err)
	}

	verif, err := encKey.verif.MarshalBinary()
	if err != nil {
		return xerrors.Errorf("failed to marshal verification key: %v", err)
	}

	sig, err := sk.SignRequest(req.TxBytes, pub, verif)
	if err != nil {
		return xerrors.Errorf("failed to sign request: %v", err)
	}

	request := &FetchKeyRequest{
		PTB:                req.TxBytes,
		EncKey:             pub,
		EncVerificationKey: verif,
		RequestSignature:   sig,
		Certificate:        cert,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan fetchResult, len(missing))

	for _, srv := range missing {
		go func(srv Server) {
			resp, err := srv.Conn.FetchKey(ctx, request)
			results <- fetchResult{server: srv, resp: resp, err: err}
		}(srv)
	}

	denied := 0
	var lastErr error

	for range missing {
		res := <-results

		err := res.err
		if err == nil {
			err = c.accept(res.server, req.IDs, identities, encKey, res.resp)
		}

		if err != nil {
			if xerrors.Is(err, ErrNoAccess) {
				denied++
				promKeyRequests.WithLabelValues("denied").Inc()
			} else {
				promKeyRequests.WithLabelValues("error").Inc()
			}

			c.logger.Warn().Err(err).
				Stringer("server", res.server.ObjectID).
				Msg("key request failed")

			lastErr = err
			continue
		}

		promKeyRequests.WithLabelValues("success").Inc()

		have++
		if have >= req.Threshold {
			return nil
		}
	}

	if denied > 0 {
		return xerrors.Errorf("%d key servers denied the request: %w", denied, ErrNoAccess)
	}

	return xerrors.Errorf("only %d of %d keys retrieved: %v", have, req.Threshold, lastErr)
}

// accept verifies the keys returned by the server for every identifier and
// stores them.
func (c *Client) accept(srv Server, ids, identities [][]byte, encKey elGamalKey,
	resp *FetchKeyResponse) error {

	if resp == nil {
		return xerrors.New("empty response")
	}

	byID := make(map[string]DecryptionKey)
	for _, key := range resp.Keys {
		byID[string(key.ID)] = key
	}

	usks := make([]kyber.Point, len(ids))

	for i, id := range ids {
		key, found := byID[string(id)]
		if !found {
			return xerrors.Errorf("missing key for %x", id)
		}

		usk, err := encKey.decrypt(key.C1, key.C2)
		if err != nil {
			return xerrors.Errorf("failed to decrypt key: %v", err)
		}

		err = VerifyKey(srv.PublicKey, identities[i], usk)
		if err != nil {
			return xerrors.Errorf("invalid key for %x: %v", id, err)
		}

		usks[i] = usk
	}

	c.Lock()
	for i, identity := range identities {
		c.keys[cacheKey(srv.ObjectID, identity)] = usks[i]
	}
	c.Unlock()

	return nil
}

// Decrypt returns the plaintext of the encrypted object. The keys are fetched
// first when the client does not have enough of them.
func (c *Client) Decrypt(ctx context.Context, req DecryptRequest) ([]byte, error) {
	obj, err := ParseEncryptedObject(req.Data)
	if err != nil {
		return nil, xerrors.Errorf("failed to parse encrypted object: %v", err)
	}

	if req.SessionKey != nil && req.SessionKey.PackageID() != obj.PackageID {
		return nil, xerrors.Errorf("session key is for package %v but object is for %v",
			req.SessionKey.PackageID(), obj.PackageID)
	}

	keys := c.collect(obj)

	if len(keys) < int(obj.Threshold) {
		if req.TxBytes == nil {
			return nil, xerrors.Errorf("only %d of %d keys available", len(keys), obj.Threshold)
		}

		fetchReq := FetchKeysRequest{
			IDs:        [][]byte{obj.ID},
			TxBytes:    req.TxBytes,
			SessionKey: req.SessionKey,
			Threshold:  int(obj.Threshold),
		}

		err = c.FetchKeys(ctx, fetchReq)
		if err != nil {
			return nil, xerrors.Errorf("failed to fetch keys: %w", err)
		}

		keys = c.collect(obj)
		if len(keys) < int(obj.Threshold) {
			return nil, xerrors.Errorf("only %d of %d keys available", len(keys), obj.Threshold)
		}
	}

	return decryptObject(obj, keys)
}

// collect returns the known user secret keys of the object per position of
// the key server.
func (c *Client) collect(obj EncryptedObject) map[int]kyber.Point {
	identity := obj.FullID()
	keys := make(map[int]kyber.Point)

	c.Lock()
	defer c.Unlock()

	for i, id := range obj.Services {
		usk, found := c.keys[cacheKey(id, identity)]
		if found {
			keys[i] = usk
		}
	}

	return keys
}

// forget removes the keys of the identities for every key server.
func (c *Client) forget(identities [][]byte) {
	c.Lock()
	defer c.Unlock()

	for _, id := range c.order {
		for _, identity := range identities {
			delete(c.keys, cacheKey(id, identity))
		}
	}
}

func (c *Client) hasKeys(server ledger.ID, identities [][]byte) bool {
	c.Lock()
	defer c.Unlock()

	for _, identity := range identities {
		_, found := c.keys[cacheKey(server, identity)]
		if !found {
			return false
		}
	}

	return true
}

func decryptObject(obj EncryptedObject, keys map[int]kyber.Point) ([]byte, error) {
	u := suite.G2().Point()

	err := u.UnmarshalBinary(obj.U)
	if err != nil {
		return nil, xerrors.Errorf("invalid encapsulation: %v", err)
	}

	g := suite.G1()
	shares := make([]*share.PriShare, 0, obj.Threshold)

	for i, service := range obj.Services {
		usk, found := keys[i]
		if !found {
			continue
		}

		mask, err := shareMask(suite.Pair(usk, u), service, i)
		if err != nil {
			return nil, xerrors.Errorf("failed to derive mask: %v", err)
		}

		if len(obj.Shares[i]) != len(mask) {
			return nil, xerrors.Errorf("invalid share size %d", len(obj.Shares[i]))
		}

		value := g.Scalar()

		err = value.UnmarshalBinary(xor(obj.Shares[i], mask))
		if err != nil {
			return nil, xerrors.Errorf("invalid share: %v", err)
		}

		shares = append(shares, &share.PriShare{I: i, V: value})

		if len(shares) == int(obj.Threshold) {
			break
		}
	}

	secret, err := share.RecoverSecret(g, shares, int(obj.Threshold), len(obj.Services))
	if err != nil {
		return nil, xerrors.Errorf("failed to recover secret: %v", err)
	}

	aead, err := newDEM(secret)
	if err != nil {
		return nil, err
	}

	header, err := obj.header()
	if err != nil {
		return nil, xerrors.Errorf("failed to encode header: %v", err)
	}

	plaintext, err := aead.Open(nil, obj.Nonce, obj.Ciphertext, header)
	if err != nil {
		return nil, xerrors.Errorf("failed to open ciphertext: %v", err)
	}

	return plaintext, nil
}

type dem interface {
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
}

func newDEM(secret kyber.Scalar) (dem, error) {
	buffer, err := secret.MarshalBinary()
	if err != nil {
		return nil, xerrors.Errorf("failed to marshal secret: %v", err)
	}

	key, err := kdf(buffer, infoDEM)
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, xerrors.Errorf("failed to create cipher: %v", err)
	}

	return aead, nil
}

func cacheKey(server ledger.ID, identity []byte) string {
	return server.String() + ":" + hex.EncodeToString(identity)
}
