package keyfold

import (
	"context"
	"sync"
	"testing"
)

// testIterations keeps PBKDF2 fast in tests.
const testIterations = 512

// stubGateway is an in-memory DeploymentGateway for tests.
type stubGateway struct {
	mu       sync.Mutex
	deployed map[string]bool
	deploys  []DeployParams
}

func (g *stubGateway) IsDeployed(_ context.Context, address string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.deployed[address], nil
}

func (g *stubGateway) Deploy(_ context.Context, params DeployParams) (*DeployReceipt, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deploys = append(g.deploys, params)
	return &DeployReceipt{Address: "0xdeployed", TxHash: "0xtx"}, nil
}

func (g *stubGateway) WaitForDeployment(context.Context, string) error { return nil }

func (g *stubGateway) markDeployed(address string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.deployed == nil {
		g.deployed = make(map[string]bool)
	}
	g.deployed[address] = true
}

func (g *stubGateway) deployCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.deploys)
}

func newTestClient(t *testing.T, opts ...Option) *Client {
	t.Helper()
	base := []Option{
		WithKDFIterations(testIterations),
		WithDeploymentGateway(&stubGateway{}),
	}
	client, err := New("testnet-1", append(base, opts...)...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(client.Close)
	return client
}

// memBlobStore is a BlobStore for tests that share storage across clients.
type memBlobStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newMemBlobStore() *memBlobStore {
	return &memBlobStore{blobs: make(map[string][]byte)}
}

func (s *memBlobStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	blob, ok := s.blobs[key]
	if !ok {
		return nil, ErrBlobNotFound
	}
	return append([]byte(nil), blob...), nil
}

func (s *memBlobStore) Put(_ context.Context, key string, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = append([]byte(nil), blob...)
	return nil
}

func (s *memBlobStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, key)
	return nil
}

func (s *memBlobStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blobs)
}

// hookBlobStore wraps memBlobStore with per-write hooks. Set the fields
// before the writes under test; they are read without synchronization.
type hookBlobStore struct {
	*memBlobStore
	onPut  func(key string)
	putErr func(key string) error
}

func newHookBlobStore() *hookBlobStore {
	return &hookBlobStore{memBlobStore: newMemBlobStore()}
}

func (s *hookBlobStore) Put(ctx context.Context, key string, blob []byte) error {
	if s.putErr != nil {
		if err := s.putErr(key); err != nil {
			return err
		}
	}
	if s.onPut != nil {
		s.onPut(key)
	}
	return s.memBlobStore.Put(ctx, key, blob)
}

func testPasskey() *PasskeyCredential {
	return &PasskeyCredential{
		PublicKey:    []byte("test-passkey-public-key"),
		CredentialID: "test-credential-id",
	}
}

func testFederated() *FederatedCredential {
	return &FederatedCredential{Subject: "sub-123"}
}
