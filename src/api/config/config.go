package config

import (
	"log"
	"os"
	"strconv"
)

type Config struct {
	MySQLDSN     string
	RedisURL     string
	JWTSecret    string
	Port         string
	MintAddress  string // settlement token mint; seeded at startup if absent
	MintSymbol   string
	EnableFaucet bool // dev/test token faucet endpoint
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		if def == "" {
			log.Fatalf("missing env %s", key)
		}
		return def
	}
	return v
}

func Load() Config {
	faucet, _ := strconv.ParseBool(getenv("ENABLE_FAUCET", "false"))
	return Config{
		MySQLDSN:     getenv("MYSQL_DSN", "dev:test@tcp(localhost:3306)/moltwork"),
		RedisURL:     getenv("REDIS_URL", "redis://localhost:6379/0"),
		JWTSecret:    getenv("JWT_SECRET", "dev-secret-change-me"),
		Port:         getenv("PORT", "8080"),
		MintAddress:  getenv("MINT_ADDRESS", ""),
		MintSymbol:   getenv("MINT_SYMBOL", "USDM"),
		EnableFaucet: faucet,
	}
}
