// Package escrow implements the bounty lifecycle state machine and fund
// custody. Every operation is one storage transaction: guards run before any
// mutation, preconditions are enforced with conditional updates, and a failed
// operation is indistinguishable from a no-op.
package escrow

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/moltlabs/moltwork/src/data"
	"github.com/moltlabs/moltwork/src/keys"
	"github.com/moltlabs/moltwork/src/ledger"
	"github.com/moltlabs/moltwork/src/registry"
	"github.com/moltlabs/moltwork/src/types"
)

type Service struct {
	db        *gorm.DB
	reg       *registry.Service
	rdb       *redis.Client // nil disables event publishing
	mint      string
	authority string
}

// Authority returns the escrow service identity. The registry's privileged
// entry points are allow-listed to this address; it is derived, so no key can
// sign for it.
func Authority() string {
	addr, _, err := keys.Derive("authority", []byte("escrow"))
	if err != nil {
		log.Fatalf("escrow: authority derivation: %v", err)
	}
	return addr
}

func New(db *gorm.DB, reg *registry.Service, rdb *redis.Client, mint string) *Service {
	return &Service{db: db, reg: reg, rdb: rdb, mint: mint, authority: Authority()}
}

// CreateBounty escrows budget minor units from the client's token account
// into a fresh vault and records the bounty as Open. The client state row is
// created lazily; its counter assigns the bounty sequence number.
func (s *Service) CreateBounty(client, metadataURI string, budget uint64, deadline int64) (*types.Bounty, error) {
	if len(metadataURI) > types.MaxURILen {
		return nil, ErrUriTooLong
	}
	if budget == 0 {
		return nil, ErrInvalidBudget
	}
	if deadline <= time.Now().Unix() {
		return nil, ErrDeadlinePassed
	}

	var bounty types.Bounty
	err := s.db.Transaction(func(tx *gorm.DB) error {
		stateAddr, stateBump, err := keys.ClientStateAddress(client)
		if err != nil {
			return err
		}
		state := types.ClientState{Address: stateAddr, Owner: client, Bump: stateBump}
		if err := tx.Where(types.ClientState{Address: stateAddr}).
			Attrs(state).FirstOrCreate(&state).Error; err != nil && !errors.Is(err, gorm.ErrDuplicatedKey) {
			return err
		}

		// The increment takes the row lock; racing creators serialize here
		// and each reads back a distinct sequence number.
		if err := tx.Model(&types.ClientState{}).
			Where("address = ?", stateAddr).
			Update("bounty_count", gorm.Expr("bounty_count + 1")).Error; err != nil {
			return err
		}
		if err := tx.First(&state, "address = ?", stateAddr).Error; err != nil {
			return err
		}
		bountyID := state.BountyCount - 1

		bountyAddr, bountyBump, err := keys.BountyAddress(client, bountyID)
		if err != nil {
			return err
		}
		vaultAddr, _, err := keys.VaultAddress(bountyAddr)
		if err != nil {
			return err
		}

		// Vault: token account owned by its own derived address, so only
		// escrow code can move funds out of it.
		vault := types.TokenAccount{
			Address:   vaultAddr,
			Mint:      s.mint,
			Owner:     vaultAddr,
			CreatedAt: time.Now(),
		}
		if err := tx.Create(&vault).Error; err != nil {
			return err
		}

		clientAcct, err := ledger.AccountAddress(s.mint, client)
		if err != nil {
			return err
		}
		if err := ledger.Transfer(tx, clientAcct, vaultAddr, budget); err != nil {
			return err
		}

		bounty = types.Bounty{
			Address:     bountyAddr,
			Client:      client,
			BountyID:    bountyID,
			MetadataURI: metadataURI,
			Budget:      budget,
			Deadline:    deadline,
			Status:      types.BountyOpen,
			Vault:       vaultAddr,
			TokenMint:   s.mint,
			Bump:        bountyBump,
			CreatedAt:   time.Now(),
		}
		return tx.Create(&bounty).Error
	})
	if err != nil {
		return nil, err
	}
	s.publish("bounty_created", &bounty)
	return &bounty, nil
}

// Claim assigns an open bounty to the calling agent. First writer wins: the
// transition is a single conditional update on status, so concurrent
// claimants lose with ErrNotOpen and must not blindly retry.
func (s *Service) Claim(agent, bountyAddr string) (*types.Bounty, error) {
	var bounty types.Bounty
	err := s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&types.Bounty{}).
			Where("address = ? AND status = ?", bountyAddr, types.BountyOpen).
			Updates(map[string]interface{}{
				"status":         types.BountyClaimed,
				"assigned_agent": agent,
				"claims":         gorm.Expr("claims + 1"),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return s.classify(tx, bountyAddr, ErrNotOpen)
		}
		return tx.First(&bounty, "address = ?", bountyAddr).Error
	})
	if err != nil {
		return nil, err
	}
	s.publish("bounty_claimed", &bounty)
	return &bounty, nil
}

// Submit records the deliverable URI. Only the assigned agent may submit and
// only while the bounty is Claimed.
func (s *Service) Submit(agent, bountyAddr, deliverableURI string) (*types.Bounty, error) {
	if len(deliverableURI) > types.MaxURILen {
		return nil, ErrUriTooLong
	}
	var bounty types.Bounty
	err := s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&types.Bounty{}).
			Where("address = ? AND status = ? AND assigned_agent = ?",
				bountyAddr, types.BountyClaimed, agent).
			Updates(map[string]interface{}{
				"status":          types.BountyDelivered,
				"deliverable_uri": deliverableURI,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			if err := tx.First(&bounty, "address = ?", bountyAddr).Error; err != nil {
				return ErrBountyNotFound
			}
			if bounty.Status != types.BountyClaimed {
				return ErrNotClaimed
			}
			return ErrNotAssignedAgent
		}
		return tx.First(&bounty, "address = ?", bountyAddr).Error
	})
	if err != nil {
		return nil, err
	}
	s.publish("bounty_delivered", &bounty)
	return &bounty, nil
}

// Approve releases the full vault balance to the assigned agent, marks the
// bounty Completed and credits the agent's earnings, all in one transaction:
// if the registry update fails, the payout rolls back with it.
func (s *Service) Approve(client, bountyAddr string) (*types.Bounty, error) {
	var bounty types.Bounty
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&bounty, "address = ?", bountyAddr).Error; err != nil {
			return ErrBountyNotFound
		}
		if bounty.Client != client {
			return ErrUnauthorized
		}
		res := tx.Model(&types.Bounty{}).
			Where("address = ? AND status = ?", bountyAddr, types.BountyDelivered).
			Update("status", types.BountyCompleted)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotDelivered
		}

		agentAcct, err := ledger.CreateAccountIfAbsent(tx, s.mint, bounty.AssignedAgent)
		if err != nil {
			return err
		}
		if err := ledger.Transfer(tx, bounty.Vault, agentAcct.Address, bounty.Budget); err != nil {
			return err
		}
		if err := s.reg.AddEarnings(tx, s.authority, bounty.AssignedAgent, bounty.Budget); err != nil {
			return err
		}
		return tx.First(&bounty, "address = ?", bountyAddr).Error
	})
	if err != nil {
		return nil, err
	}
	s.publish("bounty_completed", &bounty)
	return &bounty, nil
}

// Dispute marks a Claimed or Delivered bounty as Disputed. Only the client or
// the assigned agent may dispute; resolution is out of scope and funds stay
// in the vault.
func (s *Service) Dispute(authority, bountyAddr string) (*types.Bounty, error) {
	var bounty types.Bounty
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&bounty, "address = ?", bountyAddr).Error; err != nil {
			return ErrBountyNotFound
		}
		if authority != bounty.Client && authority != bounty.AssignedAgent {
			return ErrUnauthorized
		}
		// Status list as []int: a []uint8 binds as one blob, not an IN list.
		res := tx.Model(&types.Bounty{}).
			Where("address = ? AND status IN ?", bountyAddr,
				[]int{int(types.BountyClaimed), int(types.BountyDelivered)}).
			Update("status", types.BountyDisputed)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrCannotDispute
		}
		return tx.First(&bounty, "address = ?", bountyAddr).Error
	})
	if err != nil {
		return nil, err
	}
	s.publish("bounty_disputed", &bounty)
	return &bounty, nil
}

// Cancel refunds an Open bounty's vault to the client and marks it
// Cancelled. Claimed bounties cannot be withdrawn.
func (s *Service) Cancel(client, bountyAddr string) (*types.Bounty, error) {
	var bounty types.Bounty
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&bounty, "address = ?", bountyAddr).Error; err != nil {
			return ErrBountyNotFound
		}
		if bounty.Client != client {
			return ErrUnauthorized
		}
		res := tx.Model(&types.Bounty{}).
			Where("address = ? AND status = ?", bountyAddr, types.BountyOpen).
			Update("status", types.BountyCancelled)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotOpen
		}

		clientAcct, err := ledger.AccountAddress(s.mint, client)
		if err != nil {
			return err
		}
		if err := ledger.Transfer(tx, bounty.Vault, clientAcct, bounty.Budget); err != nil {
			return err
		}
		return tx.First(&bounty, "address = ?", bountyAddr).Error
	})
	if err != nil {
		return nil, err
	}
	s.publish("bounty_cancelled", &bounty)
	return &bounty, nil
}

// LeaveReview records the client's singleton review for a completed bounty
// and pushes the rating into the agent registry in the same transaction. The
// review address is derived from the bounty alone, so a second review
// collides.
func (s *Service) LeaveReview(client, bountyAddr string, rating uint64, commentURI string) (*types.Review, error) {
	if rating == 0 || rating > 500 {
		return nil, ErrInvalidRating
	}
	if len(commentURI) > types.MaxURILen {
		return nil, ErrUriTooLong
	}
	var review types.Review
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var bounty types.Bounty
		if err := tx.First(&bounty, "address = ?", bountyAddr).Error; err != nil {
			return ErrBountyNotFound
		}
		if bounty.Client != client {
			return ErrUnauthorized
		}
		if bounty.Status != types.BountyCompleted {
			return ErrNotCompleted
		}

		reviewAddr, bump, err := keys.ReviewAddress(bountyAddr)
		if err != nil {
			return err
		}
		review = types.Review{
			Address:    reviewAddr,
			Bounty:     bountyAddr,
			Reviewer:   client,
			Agent:      bounty.AssignedAgent,
			Rating:     rating,
			CommentURI: commentURI,
			Bump:       bump,
			CreatedAt:  time.Now(),
		}
		if err := tx.Create(&review).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrReviewExists
			}
			return err
		}
		return s.reg.UpdateReputation(tx, s.authority, bounty.AssignedAgent, rating)
	})
	if err != nil {
		return nil, err
	}
	return &review, nil
}

// classify resolves a zero-row conditional update into not-found vs the
// given precondition error.
func (s *Service) classify(tx *gorm.DB, bountyAddr string, precondition error) error {
	var n int64
	tx.Model(&types.Bounty{}).Where("address = ?", bountyAddr).Count(&n)
	if n == 0 {
		return ErrBountyNotFound
	}
	return precondition
}

func (s *Service) publish(event string, b *types.Bounty) {
	if s.rdb == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := data.PublishBountyEvent(ctx, s.rdb, map[string]interface{}{
		"event":  event,
		"bounty": b.Address,
		"client": b.Client,
		"agent":  b.AssignedAgent,
		"budget": b.Budget,
	}); err != nil {
		log.Printf("escrow: publish %s: %v", event, err)
	}
}

// GetBounty fetches a bounty by address.
func (s *Service) GetBounty(addr string) (*types.Bounty, error) {
	var bounty types.Bounty
	if err := s.db.First(&bounty, "address = ?", addr).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBountyNotFound
		}
		return nil, err
	}
	return &bounty, nil
}

// ListBounties returns every bounty, newest first.
func (s *Service) ListBounties() ([]types.Bounty, error) {
	var bounties []types.Bounty
	err := s.db.Order("created_at desc").Find(&bounties).Error
	return bounties, err
}

// ListByClient returns a client's bounties in sequence order.
func (s *Service) ListByClient(client string) ([]types.Bounty, error) {
	var bounties []types.Bounty
	err := s.db.Where("client = ?", client).Order("bounty_id asc").Find(&bounties).Error
	return bounties, err
}

// GetReview returns the review for a bounty, if any.
func (s *Service) GetReview(bountyAddr string) (*types.Review, error) {
	var review types.Review
	if err := s.db.First(&review, "bounty = ?", bountyAddr).Error; err != nil {
		return nil, err
	}
	return &review, nil
}

// ReviewsForAgent returns all reviews left on an agent's completed bounties.
func (s *Service) ReviewsForAgent(agent string) ([]types.Review, error) {
	var reviews []types.Review
	err := s.db.Where("agent = ?", agent).Order("created_at desc").Find(&reviews).Error
	return reviews, err
}
