package main

import (
	"context"
	"log"
	"os"

	"github.com/meritpog/pog-engine/internal/api"
	"github.com/meritpog/pog-engine/internal/chainparams"
	"github.com/meritpog/pog-engine/internal/store"
)

func main() {
	log.Println("Starting Proof-of-Growth engine...")

	dbURL := requireEnv("DATABASE_URL")

	ctx := context.Background()
	db, err := store.Connect(ctx, dbURL)
	if err != nil {
		log.Fatalf("FATAL: failed to connect to PostgreSQL: %v", err)
	}
	defer db.Close()

	schemaPath := getEnvOrDefault("SCHEMA_PATH", "internal/store/schema.sql")
	if err := db.InitSchema(ctx, schemaPath); err != nil {
		log.Fatalf("FATAL: schema init failed: %v", err)
	}

	confirmed, err := db.ConfirmAllPreEpoch(ctx)
	if err != nil {
		log.Fatalf("FATAL: pre-epoch confirmation failed: %v", err)
	}
	if confirmed > 0 {
		log.Printf("Pre-epoch confirmation: bulk-confirmed %d referrals\n", confirmed)
	}

	params := chainparams.MainNetParams()
	if genesis := os.Getenv("GENESIS_ADDRESS_HEX"); genesis != "" {
		addr, err := chainparams.ParseAddressHex(genesis)
		if err != nil {
			log.Fatalf("FATAL: invalid GENESIS_ADDRESS_HEX: %v", err)
		}
		params.GenesisAddress = addr
	}

	wsHub := api.NewHub()
	go wsHub.Run()

	r := api.SetupRouter(db, params, wsHub)

	port := getEnvOrDefault("PORT", "8420")
	log.Printf("Engine listening on :%s\n", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("FATAL: server exited: %v", err)
	}
}

func requireEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		log.Fatalf("FATAL: required environment variable %s is not set", key)
	}
	return val
}

func getEnvOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
