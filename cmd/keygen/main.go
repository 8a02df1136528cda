// Command keygen seals a provider API key under the relay master key so the
// ciphertext can be stored or inspected without exposing the plaintext.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/erenbertr/chatrelay/internal/credentials"
	"github.com/erenbertr/chatrelay/internal/storage/memory"
)

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: keygen <api-key>")
		fmt.Fprintln(os.Stderr, "Seals the API key with CHATRELAY_MASTER_KEY and prints the ciphertext.")
		os.Exit(1)
	}

	masterKey := os.Getenv("CHATRELAY_MASTER_KEY")
	if masterKey == "" {
		fmt.Fprintln(os.Stderr, "CHATRELAY_MASTER_KEY is not set")
		os.Exit(1)
	}

	vault, err := credentials.NewVault(memory.New(), masterKey)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open vault: %v\n", err)
		os.Exit(1)
	}

	sealed, err := vault.Seal(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to seal key: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(sealed)
}
