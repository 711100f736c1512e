package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gorm.io/gorm"

	"github.com/moltlabs/moltwork/src/api/config"
	"github.com/moltlabs/moltwork/src/api/webserver"
	"github.com/moltlabs/moltwork/src/data"
	"github.com/moltlabs/moltwork/src/escrow"
	"github.com/moltlabs/moltwork/src/keys"
	"github.com/moltlabs/moltwork/src/registry"
	"github.com/moltlabs/moltwork/src/types"
)

var allModels = []interface{}{
	&types.Agent{}, &types.ClientState{},
	&types.Bounty{}, &types.Review{},
	&types.TokenMint{}, &types.TokenAccount{},
}

func migrate(db *gorm.DB) {
	err := db.AutoMigrate(allModels...)
	if err == nil {
		return
	}

	log.Printf("auto-migrate failed (%v) - dropping & recreating schema", err)
	_ = db.Migrator().DropTable(
		"reviews", "bounties", "client_states",
		"agents", "token_accounts", "token_mints",
	)
	if err := db.AutoMigrate(allModels...); err != nil {
		log.Fatalf("migrate after drop: %v", err)
	}
}

// ensureMint makes sure the settlement token mint exists and returns its
// address plus the faucet authority identity allowed to mint test funds.
func ensureMint(db *gorm.DB, cfg config.Config) (string, string) {
	mintAddr := cfg.MintAddress
	if mintAddr == "" {
		derived, _, err := keys.Derive("mint", []byte(cfg.MintSymbol))
		if err != nil {
			log.Fatalf("derive mint: %v", err)
		}
		mintAddr = derived
	}
	faucetAuthority, _, err := keys.Derive("authority", []byte("faucet"))
	if err != nil {
		log.Fatalf("derive faucet authority: %v", err)
	}

	mint := types.TokenMint{
		Address:   mintAddr,
		Symbol:    cfg.MintSymbol,
		Decimals:  6,
		Authority: faucetAuthority,
		CreatedAt: time.Now(),
	}
	if err := db.Where(types.TokenMint{Address: mintAddr}).
		Attrs(mint).FirstOrCreate(&mint).Error; err != nil {
		log.Fatalf("ensure mint: %v", err)
	}
	return mintAddr, faucetAuthority
}

func main() {
	cfg := config.Load()

	db := data.MustMySQL(cfg.MySQLDSN)
	migrate(db)
	rdb := data.MustRedis(cfg.RedisURL)

	mintAddr, faucetAuthority := ensureMint(db, cfg)
	cfg.MintAddress = mintAddr

	reg := registry.New(db, escrow.Authority())
	esc := escrow.New(db, reg, rdb, mintAddr)

	router := webserver.New(cfg, db, rdb, reg, esc, faucetAuthority)

	httpSrv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Port)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http: %v", err)
		}
	}()

	log.Printf("Moltwork API listening on %s (mint %s, faucet: %v)", cfg.Port, mintAddr, cfg.EnableFaucet)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutCtx, cancelShut := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShut()
	_ = httpSrv.Shutdown(shutCtx)
}
