package main

import (
	"fmt"
	"os"

	"github.com/steamrent/rental-server-go/internal/util"
)

// Generates an operator token and its stored hash, for adding operators by
// hand:
//
//	go run scripts/gen-token.go
//	INSERT INTO operators (id, name, token_hash) VALUES (gen_random_uuid()::text, 'name', '<hash>');
func main() {
	token, err := util.GenerateToken()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("token:      %s\n", token)
	fmt.Printf("token_hash: %s\n", util.HashToken(token))
}
