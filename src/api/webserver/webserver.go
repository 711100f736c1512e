package webserver

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/moltlabs/moltwork/src/api/config"
	"github.com/moltlabs/moltwork/src/escrow"
	"github.com/moltlabs/moltwork/src/metadata"
	"github.com/moltlabs/moltwork/src/registry"
)

func New(cfg config.Config, db *gorm.DB, rdb *redis.Client, reg *registry.Service, esc *escrow.Service, faucetAuthority string) *gin.Engine {
	g := gin.New()
	g.Use(gin.Logger(), gin.Recovery())
	g.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))
	attachRoutes(g, cfg, db, rdb, reg, esc, faucetAuthority)
	return g
}

func attachRoutes(g *gin.Engine, cfg config.Config, db *gorm.DB, rdb *redis.Client, reg *registry.Service, esc *escrow.Service, faucetAuthority string) {
	secret := []byte(cfg.JWTSecret)
	auth := NewAuth(rdb, secret)
	meta := metadata.NewClient(rdb)
	agents := NewAgents(reg, esc, meta)
	bounties := NewBounties(esc, meta)
	balances := NewBalances(db, cfg.MintAddress)

	limiter := NewRateLimiter(60, time.Minute)

	v1 := g.Group("/v1", RateLimitMiddleware(limiter))
	{
		v1.POST("/auth/challenge", auth.Challenge)
		v1.POST("/auth/verify", auth.Verify)

		v1.GET("/agents", agents.List)
		v1.GET("/agents/:owner", agents.Get)
		v1.GET("/agents/:owner/reviews", agents.Reviews)
		v1.GET("/bounties", bounties.List)
		v1.GET("/bounties/:address", bounties.Get)
		v1.GET("/clients/:owner/bounties", bounties.ListByClient)
		v1.GET("/balances/:owner", balances.Get)

		secured := v1.Group("", JWTMiddleware(secret))
		{
			secured.POST("/agents", agents.Register)
			secured.PATCH("/agents", agents.Update)

			secured.POST("/bounties", bounties.Create)
			secured.POST("/bounties/:address/claim", bounties.Claim)
			secured.POST("/bounties/:address/submit", bounties.Submit)
			secured.POST("/bounties/:address/approve", bounties.Approve)
			secured.POST("/bounties/:address/dispute", bounties.Dispute)
			secured.POST("/bounties/:address/cancel", bounties.Cancel)
			secured.POST("/bounties/:address/review", bounties.Review)

			if cfg.EnableFaucet {
				faucet := NewFaucet(db, cfg.MintAddress, faucetAuthority)
				secured.POST("/faucet", faucet.Drip)
			}
		}
	}
}
