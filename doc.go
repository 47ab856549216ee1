// Package keyfold provides a Go SDK for deterministic, multi-credential
// on-chain identity.
//
// A user can authenticate through any of several independent credential
// types (a platform authenticator, a federated-identity subject, a wallet
// signature on an external chain, a recovery phrase, or an email via an
// oblivious PRF exchange) and always arrive at the same private key pair
// and contract address. Credentials are never stored; each one
// deterministically re-derives its keys on presentation, and an encrypted
// vault layer (with "redirect" vaults for linked credentials) resolves every
// credential to one primary identity.
//
// Basic usage:
//
//	client, err := keyfold.New("testnet-1")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Authenticate with a passkey credential
//	session, err := client.Authenticate(ctx, &keyfold.PasskeyCredential{
//	    PublicKey:    pubKey,
//	    CredentialID: "cred-A",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Println("Address:", session.Address())
//
// Linking a second credential to the active identity:
//
//	err = client.Link(ctx, &keyfold.FederatedCredential{Subject: "sub-123"})
//
// After linking, authenticating with the federated credential alone resolves
// to the same address as the passkey.
package keyfold
