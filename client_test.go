package keyfold

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/keyfold/identity-go/internal/oprf"
	"github.com/keyfold/identity-go/internal/vault"
)

func TestNew_MissingNetworkID(t *testing.T) {
	t.Parallel()
	if _, err := New(""); !errors.Is(err, ErrMissingNetworkID) {
		t.Errorf("expected ErrMissingNetworkID, got %v", err)
	}
}

func TestClient_Closed(t *testing.T) {
	t.Parallel()
	client := newTestClient(t)
	client.Close()

	if _, err := client.Authenticate(context.Background(), testPasskey()); !errors.Is(err, ErrClientClosed) {
		t.Errorf("expected ErrClientClosed, got %v", err)
	}
}

func TestAuthenticate_NewIdentity(t *testing.T) {
	t.Parallel()
	client := newTestClient(t)

	session, err := client.Authenticate(context.Background(), testPasskey())
	if err != nil {
		t.Fatal(err)
	}

	if session.Resolution() != NewIdentity {
		t.Errorf("resolution = %v, want NewIdentity", session.Resolution())
	}
	if !strings.HasPrefix(session.Address(), "0x") || len(session.Address()) != 42 {
		t.Errorf("unexpected address: %q", session.Address())
	}
	if !strings.HasPrefix(session.Username(), "kf-") {
		t.Errorf("unexpected username: %q", session.Username())
	}
	if session.Method() != "passkey" {
		t.Errorf("method = %q, want passkey", session.Method())
	}
}

func TestAuthenticate_ReturningUserResolvesPrimary(t *testing.T) {
	t.Parallel()
	client := newTestClient(t)
	ctx := context.Background()

	first, err := client.Authenticate(ctx, testPasskey())
	if err != nil {
		t.Fatal(err)
	}
	second, err := client.Authenticate(ctx, testPasskey())
	if err != nil {
		t.Fatal(err)
	}

	if second.Resolution() != ResolvedPrimary {
		t.Errorf("resolution = %v, want ResolvedPrimary", second.Resolution())
	}
	if second.Address() != first.Address() {
		t.Error("returning user resolved to a different address")
	}
	if second.Username() != first.Username() {
		t.Error("returning user resolved to a different username")
	}
}

func TestAuthenticate_DeterministicAcrossClients(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	a, err := newTestClient(t).Authenticate(ctx, testPasskey())
	if err != nil {
		t.Fatal(err)
	}
	b, err := newTestClient(t).Authenticate(ctx, testPasskey())
	if err != nil {
		t.Fatal(err)
	}

	// No shared state between the two clients: the address and username
	// come from the credential alone.
	if a.Address() != b.Address() {
		t.Error("same credential derived different addresses on different clients")
	}
	if a.Username() != b.Username() {
		t.Error("same credential derived different usernames on different clients")
	}
}

func TestAuthenticate_DomainSeparationAcrossKinds(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	a, err := newTestClient(t).Authenticate(ctx, &FederatedCredential{Subject: "same-bytes"})
	if err != nil {
		t.Fatal(err)
	}
	b, err := newTestClient(t).Authenticate(ctx, &WalletCredential{Chain: ChainSolana, Signature: []byte("same-bytes")})
	if err != nil {
		t.Fatal(err)
	}

	if a.Address() == b.Address() {
		t.Error("identical raw bytes under different credential kinds must not collide")
	}
}

func TestAuthenticate_PreviousSessionLocks(t *testing.T) {
	t.Parallel()
	client := newTestClient(t)
	ctx := context.Background()

	first, err := client.Authenticate(ctx, testPasskey())
	if err != nil {
		t.Fatal(err)
	}
	second, err := client.Authenticate(ctx, testFederated())
	if err != nil {
		t.Fatal(err)
	}

	if !first.Locked() {
		t.Error("previous session must lock when a new one activates")
	}
	if second.Locked() {
		t.Error("new session must be unlocked")
	}
	if client.Session() != second {
		t.Error("client must track the newest session")
	}
}

func TestAuthenticate_InvalidCredential(t *testing.T) {
	t.Parallel()
	client := newTestClient(t)
	ctx := context.Background()

	tests := []struct {
		name string
		cred Credential
	}{
		{"empty passkey", &PasskeyCredential{}},
		{"passkey without ID", &PasskeyCredential{PublicKey: []byte("pk")}},
		{"empty federated subject", &FederatedCredential{}},
		{"empty wallet signature", &WalletCredential{Chain: ChainEVM}},
		{"empty email output", &EmailCredential{}},
		{"garbage recovery phrase", &RecoveryPhraseCredential{Mnemonic: "not a mnemonic"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := client.Authenticate(ctx, tt.cred); !errors.Is(err, ErrInvalidCredential) {
				t.Errorf("expected ErrInvalidCredential, got %v", err)
			}
		})
	}
}

func TestAuthenticate_RecoveryPhraseOpensSameIdentity(t *testing.T) {
	t.Parallel()
	client := newTestClient(t)
	ctx := context.Background()

	session, err := client.Authenticate(ctx, testPasskey())
	if err != nil {
		t.Fatal(err)
	}
	phrase, err := session.ExportRecoveryPhrase(ctx)
	if err != nil {
		t.Fatal(err)
	}

	restored, err := client.Authenticate(ctx, &RecoveryPhraseCredential{Mnemonic: phrase})
	if err != nil {
		t.Fatal(err)
	}

	// The generated phrase is bound to the identity at creation, so
	// presenting it resolves through a redirect rather than minting a
	// phrase-derived identity.
	if restored.Resolution() != ResolvedViaRedirect {
		t.Errorf("resolution = %v, want ResolvedViaRedirect", restored.Resolution())
	}
	if restored.Address() != session.Address() {
		t.Error("recovery phrase resolved to a different identity")
	}
}

func TestAuthenticate_AccessBumpUnderVaultMutex(t *testing.T) {
	t.Parallel()
	store := newHookBlobStore()
	client := newTestClient(t, WithStore(store))
	ctx := context.Background()

	if _, err := client.Authenticate(ctx, testPasskey()); err != nil {
		t.Fatal(err)
	}

	// Every primary-vault write during a returning-user authentication,
	// including the access-time bump, must happen while the vault mutex is
	// held, or a concurrent link's read-modify-write can be lost.
	var unguarded atomic.Bool
	store.onPut = func(key string) {
		if key != vault.PrimaryKey(client.networkID) {
			return
		}
		if client.vaultMu.TryLock() {
			client.vaultMu.Unlock()
			unguarded.Store(true)
		}
	}

	session, err := client.Authenticate(ctx, testPasskey())
	if err != nil {
		t.Fatal(err)
	}
	if session.Resolution() != ResolvedPrimary {
		t.Fatalf("resolution = %v, want ResolvedPrimary", session.Resolution())
	}
	if unguarded.Load() {
		t.Error("primary vault written outside the vault mutex")
	}
}

func TestAuthenticate_FailedCreationLeavesNoState(t *testing.T) {
	t.Parallel()
	store := newHookBlobStore()
	client := newTestClient(t, WithStore(store))
	ctx := context.Background()

	primaryKey := vault.PrimaryKey(client.networkID)
	store.putErr = func(key string) error {
		if key == primaryKey {
			return errors.New("store unavailable")
		}
		return nil
	}

	if _, err := client.Authenticate(ctx, testPasskey()); err == nil {
		t.Fatal("expected authentication to fail when the primary vault cannot be written")
	}

	// The recovery-phrase redirect is written before the primary vault; a
	// failed creation must tear it down rather than leave an alternate door
	// to an identity that was never persisted.
	if got := store.len(); got != 0 {
		t.Errorf("store holds %d blobs after failed creation, want 0", got)
	}
	client.cache.mu.RLock()
	cached := len(client.cache.entries)
	client.cache.mu.RUnlock()
	if cached != 0 {
		t.Errorf("key-address cache holds %d entries after failed creation, want 0", cached)
	}
}

// oprfTestServer serves magic-link verification and OPRF evaluation with a
// fixed server secret.
func oprfTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	secret, err := oprf.NewEvaluationKey()
	if err != nil {
		t.Fatal(err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/magic-link/verify", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"token":     "oprf-session-token",
			"expiresAt": time.Now().Add(5 * time.Minute).UTC(),
		})
	})
	mux.HandleFunc("/v1/oprf/evaluate", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			BlindedElement string `json:"blindedElement"`
			SessionToken   string `json:"sessionToken"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if req.SessionToken != "oprf-session-token" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"code": "session_token_invalid"})
			return
		}
		blinded, err := base64.RawURLEncoding.DecodeString(req.BlindedElement)
		if err != nil {
			http.Error(w, "bad element", http.StatusBadRequest)
			return
		}
		evaluated, err := oprf.Evaluate(blinded, secret)
		if err != nil {
			http.Error(w, "evaluation failed", http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{
			"evaluatedElement": base64.RawURLEncoding.EncodeToString(evaluated),
		})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestEmailFlow_EndToEnd(t *testing.T) {
	t.Parallel()
	server := oprfTestServer(t)
	client := newTestClient(t, WithBaseURL(server.URL))
	ctx := context.Background()

	token, expires, err := client.BeginEmailAuth(ctx, "magic-token")
	if err != nil {
		t.Fatal(err)
	}
	if token != "oprf-session-token" || !expires.After(time.Now()) {
		t.Fatalf("unexpected session token %q expiring %v", token, expires)
	}

	cred, err := client.EmailCredential(ctx, "User@Example.COM", token)
	if err != nil {
		t.Fatal(err)
	}
	first, err := client.Authenticate(ctx, cred)
	if err != nil {
		t.Fatal(err)
	}

	// A second independent exchange for a spelling variant of the same
	// email must land on the same identity.
	cred2, err := client.EmailCredential(ctx, " user@example.com ", token)
	if err != nil {
		t.Fatal(err)
	}
	second, err := client.Authenticate(ctx, cred2)
	if err != nil {
		t.Fatal(err)
	}

	if second.Address() != first.Address() {
		t.Error("same email resolved to different identities across exchanges")
	}
	if second.Resolution() != ResolvedPrimary {
		t.Errorf("resolution = %v, want ResolvedPrimary", second.Resolution())
	}
}

func TestEmailCredential_EvaluatorFailure(t *testing.T) {
	t.Parallel()
	server := oprfTestServer(t)
	client := newTestClient(t, WithBaseURL(server.URL))
	ctx := context.Background()

	// A bad session token must surface as an OPRF failure, never as a
	// locally derived credential.
	if _, err := client.EmailCredential(ctx, "user@example.com", "stale-token"); !errors.Is(err, ErrOprfEvaluationFailed) {
		t.Errorf("expected ErrOprfEvaluationFailed, got %v", err)
	}
}

func TestEmailCredential_EmptyEmail(t *testing.T) {
	t.Parallel()
	client := newTestClient(t)

	if _, err := client.EmailCredential(context.Background(), "  ", "token"); !errors.Is(err, ErrInvalidCredential) {
		t.Errorf("expected ErrInvalidCredential, got %v", err)
	}
}
