package main

import (
	"flag"
	"fmt"
	"os"
	"syscall"
	"unicode/utf8"

	"github.com/stemsi/tara/internal/proctor"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"
)

func main() {
	cost := flag.Int("cost", bcrypt.DefaultCost, "bcrypt cost")
	flag.Parse()

	fmt.Println("=== Hash Test Security Code ===")

	code, err := prompt("Enter Security Code: ")
	if err != nil {
		fmt.Println("Error reading code")
		os.Exit(1)
	}
	if utf8.RuneCountInString(code) != proctor.SecurityCodeLength {
		fmt.Printf("Error: Security code must be exactly %d characters\n", proctor.SecurityCodeLength)
		os.Exit(1)
	}

	confirm, err := prompt("Repeat Security Code: ")
	if err != nil {
		fmt.Println("Error reading code")
		os.Exit(1)
	}
	if confirm != code {
		fmt.Println("Error: Codes do not match")
		os.Exit(1)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(code), *cost)
	if err != nil {
		fmt.Printf("Error hashing code: %v\n", err)
		os.Exit(1)
	}

	// Round-trip through the verifier the server uses.
	verifier, err := proctor.NewCodeVerifier("", string(hash))
	if err != nil || !verifier.Verify(code) {
		fmt.Println("Error: Generated hash does not verify")
		os.Exit(1)
	}

	fmt.Println("Add this to the server environment:")
	fmt.Printf("SECURITY_CODE_HASH=%s\n", hash)
}

// prompt reads a line from the terminal without echoing it.
func prompt(label string) (string, error) {
	fmt.Print(label)
	b, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println() // Newline after hidden input
	if err != nil {
		return "", err
	}
	return string(b), nil
}
