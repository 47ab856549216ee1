// Command testhelper exercises the SDK against a live evaluator endpoint.
// It is a manual smoke-test tool, not part of the public surface.
//
// Configuration comes from the environment (a .env file is honored):
//
//	KEYFOLD_BASE_URL     API base URL (required)
//	KEYFOLD_NETWORK_ID   network ID (default "testnet-1")
//	KEYFOLD_MAGIC_TOKEN  magic-link token for the email flow (optional)
//	KEYFOLD_EMAIL        email address for the email flow (optional)
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	keyfold "github.com/keyfold/identity-go"
)

func main() {
	_ = godotenv.Load()

	baseURL := os.Getenv("KEYFOLD_BASE_URL")
	if baseURL == "" {
		fmt.Fprintln(os.Stderr, "KEYFOLD_BASE_URL is required")
		os.Exit(1)
	}
	networkID := os.Getenv("KEYFOLD_NETWORK_ID")
	if networkID == "" {
		networkID = "testnet-1"
	}

	if err := run(baseURL, networkID); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(baseURL, networkID string) error {
	client, err := keyfold.New(networkID,
		keyfold.WithBaseURL(baseURL),
		keyfold.WithTimeout(15*time.Second),
	)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	// Passkey flow with synthetic credential bytes.
	session, err := client.Authenticate(ctx, &keyfold.PasskeyCredential{
		PublicKey:    []byte("testhelper-public-key"),
		CredentialID: "testhelper-cred",
	})
	if err != nil {
		return fmt.Errorf("passkey authenticate: %w", err)
	}
	fmt.Println("resolution:", session.Resolution())
	fmt.Println("address:   ", session.Address())
	fmt.Println("username:  ", session.Username())

	// Optional email flow when a magic-link token is supplied.
	if token := os.Getenv("KEYFOLD_MAGIC_TOKEN"); token != "" {
		email := os.Getenv("KEYFOLD_EMAIL")
		sessionToken, _, err := client.BeginEmailAuth(ctx, token)
		if err != nil {
			return fmt.Errorf("verify magic link: %w", err)
		}
		cred, err := client.EmailCredential(ctx, email, sessionToken)
		if err != nil {
			return fmt.Errorf("OPRF exchange: %w", err)
		}
		if err := client.Link(ctx, cred); err != nil {
			return fmt.Errorf("link email: %w", err)
		}
		fmt.Println("email linked")
	}

	session.Lock()
	return nil
}
