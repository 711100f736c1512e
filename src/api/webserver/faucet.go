package webserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/moltlabs/moltwork/src/ledger"
)

// Faucet mints test funds to the caller. Wired only when ENABLE_FAUCET is
// set; never expose it against a production mint.
type Faucet struct {
	db        *gorm.DB
	mint      string
	authority string
	maxAmount uint64
}

func NewFaucet(db *gorm.DB, mint, authority string) Faucet {
	return Faucet{db: db, mint: mint, authority: authority, maxAmount: 1_000 * 1_000_000}
}

func (h Faucet) Drip(c *gin.Context) {
	var req struct {
		Amount uint64 `json:"amount"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}
	amount := req.Amount
	if amount == 0 || amount > h.maxAmount {
		amount = h.maxAmount
	}
	owner := c.GetString("addr")

	err := h.db.Transaction(func(tx *gorm.DB) error {
		return ledger.MintTo(tx, h.authority, h.mint, owner, amount)
	})
	if err != nil {
		writeErr(c, err)
		return
	}
	addr, _ := ledger.AccountAddress(h.mint, owner)
	balance, _ := ledger.Balance(h.db, addr)
	c.JSON(http.StatusOK, gin.H{"account": addr, "balance": balance})
}

// Balances is the public token balance read.
type Balances struct {
	db   *gorm.DB
	mint string
}

func NewBalances(db *gorm.DB, mint string) Balances {
	return Balances{db: db, mint: mint}
}

func (h Balances) Get(c *gin.Context) {
	addr, err := ledger.AccountAddress(h.mint, c.Param("owner"))
	if err != nil {
		writeErr(c, err)
		return
	}
	balance, err := ledger.Balance(h.db, addr)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"account": addr, "mint": h.mint, "balance": balance})
}
