package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/your-org/storefront-backend/internal/config"
	"github.com/your-org/storefront-backend/internal/pkg/auth"
)

// Prints a bcrypt hash for a password, for seeding accounts by hand.
//
//	go run scripts/generate_password.go [-cost N] <password>
func main() {
	cost := flag.Int("cost", 0, "bcrypt cost, 0 uses the default")
	flag.Parse()

	if flag.NArg() != 1 {
		log.Fatal("usage: generate_password [-cost N] <password>")
	}
	password := flag.Arg(0)

	cfg := &config.Config{}
	cfg.Security.BcryptCost = *cost
	passwords := auth.NewPasswordManager(cfg)

	hash, err := passwords.HashPassword(password)
	if err != nil {
		log.Fatal("hashing failed: ", err)
	}
	if err := passwords.VerifyPassword(password, hash); err != nil {
		log.Fatal("round-trip verification failed: ", err)
	}

	fmt.Println(hash)
}
