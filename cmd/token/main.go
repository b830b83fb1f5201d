package main

import (
	"flag"
	"fmt"
	"log"

	"medibook/internal/config"
	"medibook/internal/models"
	"medibook/internal/utils"

	"github.com/joho/godotenv"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// token mints an access token for an existing user. Sign-in is handled
// outside this service; this is for operators and local testing.
func main() {
	userID := flag.String("user", "", "user id (hex ObjectID)")
	role := flag.String("role", string(models.UserRolePatient), "patient, doctor, agent or admin")
	ttl := flag.Duration("ttl", 0, "token lifetime (defaults to JWT_ACCESS_TOKEN_TTL)")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	id, err := primitive.ObjectIDFromHex(*userID)
	if err != nil {
		log.Fatalf("Invalid -user: %v", err)
	}
	if !models.UserRole(*role).IsValid() {
		log.Fatalf("Invalid -role %q", *role)
	}
	lifetime := *ttl
	if lifetime <= 0 {
		lifetime = cfg.Security.JWTAccessTokenTTL
	}

	token, err := utils.GenerateAccessToken(id, *role, cfg.Security.JWTSecret, lifetime)
	if err != nil {
		log.Fatalf("Failed to generate token: %v", err)
	}
	fmt.Println(token)
}
