// Package ledger is the token custody adapter. Balances are integer minor
// units in gorm-backed token accounts; all mutations are guarded updates so
// they compose into the caller's transaction and fail closed under races.
package ledger

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/moltlabs/moltwork/src/keys"
	"github.com/moltlabs/moltwork/src/types"
)

var (
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")
	ErrNoSuchAccount     = errors.New("ledger: no such token account")
	ErrNotMintAuthority  = errors.New("ledger: not the mint authority")
)

// AccountAddress returns the canonical token account address for (mint,
// owner). One account per pair.
func AccountAddress(mint, owner string) (string, error) {
	addr, _, err := keys.TokenAccountAddress(mint, owner)
	return addr, err
}

// CreateAccountIfAbsent ensures a token account exists for (mint, owner) and
// returns it. Safe to call inside a transaction.
func CreateAccountIfAbsent(db *gorm.DB, mint, owner string) (types.TokenAccount, error) {
	addr, err := AccountAddress(mint, owner)
	if err != nil {
		return types.TokenAccount{}, err
	}
	acct := types.TokenAccount{Address: addr, Mint: mint, Owner: owner, CreatedAt: time.Now()}
	err = db.Where(types.TokenAccount{Address: addr}).
		Attrs(acct).
		FirstOrCreate(&acct).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// Lost a create race; the account exists now.
		err = db.First(&acct, "address = ?", addr).Error
	}
	return acct, err
}

// Transfer moves amount minor units between token accounts. The debit is a
// single conditional update: zero rows means the balance was short (or the
// account is gone) and nothing has moved.
func Transfer(db *gorm.DB, from, to string, amount uint64) error {
	if from == to || amount == 0 {
		return nil
	}
	res := db.Model(&types.TokenAccount{}).
		Where("address = ? AND balance >= ?", from, amount).
		Update("balance", gorm.Expr("balance - ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var n int64
		db.Model(&types.TokenAccount{}).Where("address = ?", from).Count(&n)
		if n == 0 {
			return ErrNoSuchAccount
		}
		return ErrInsufficientFunds
	}
	res = db.Model(&types.TokenAccount{}).
		Where("address = ?", to).
		Update("balance", gorm.Expr("balance + ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNoSuchAccount
	}
	return nil
}

// MintTo credits freshly minted supply to the owner's account for mint,
// creating the account if needed. Only the mint's configured authority may
// mint; a mint with no authority is fixed-supply.
func MintTo(db *gorm.DB, authority, mint, owner string, amount uint64) error {
	var m types.TokenMint
	if err := db.First(&m, "address = ?", mint).Error; err != nil {
		return err
	}
	if m.Authority == "" || m.Authority != authority {
		return ErrNotMintAuthority
	}
	acct, err := CreateAccountIfAbsent(db, mint, owner)
	if err != nil {
		return err
	}
	return db.Model(&types.TokenAccount{}).
		Where("address = ?", acct.Address).
		Update("balance", gorm.Expr("balance + ?", amount)).Error
}

// Balance reads a token account balance by address.
func Balance(db *gorm.DB, addr string) (uint64, error) {
	var acct types.TokenAccount
	if err := db.First(&acct, "address = ?", addr).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrNoSuchAccount
		}
		return 0, err
	}
	return acct.Balance, nil
}
