package main

import (
	"log"
	"os"

	"teamrelay/internal/app"
	"teamrelay/internal/config"

	"github.com/joho/godotenv"
)

func main() {
	// .env is optional, real environment wins
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Failed load .env, error=%v", err)
	}

	cfg, err := config.Load(os.Getenv("CONFIG"))
	if err != nil {
		log.Fatalf("Failed load config, error=%v", err)
	}
	cfg.ApplyEnv(nil)

	if err = cfg.Validate(); err != nil {
		log.Fatalf("Invalid config, error=%v", err)
	}

	if err = app.Run(cfg); err != nil {
		log.Fatalf("App run is failed, error=%v", err)
	}
}
