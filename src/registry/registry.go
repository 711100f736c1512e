// Package registry keeps agent identities and their reputation/earnings
// bookkeeping. Reputation and earnings only move through authority-gated
// entry points invoked from the escrow's transactions.
package registry

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/moltlabs/moltwork/src/keys"
	"github.com/moltlabs/moltwork/src/types"
)

type Service struct {
	db          *gorm.DB
	authorities map[string]struct{}
}

// New builds a registry over db. authorities is the allow-list of identities
// permitted to call UpdateReputation and AddEarnings (in practice the escrow
// service identity).
func New(db *gorm.DB, authorities ...string) *Service {
	allowed := make(map[string]struct{}, len(authorities))
	for _, a := range authorities {
		allowed[a] = struct{}{}
	}
	return &Service{db: db, authorities: allowed}
}

// Register creates the agent record for owner. One agent per owner; a second
// registration fails.
func (s *Service) Register(owner, metadataURI string, hourlyRate uint64) (*types.Agent, error) {
	if len(metadataURI) > types.MaxURILen {
		return nil, ErrUriTooLong
	}
	if hourlyRate == 0 {
		return nil, ErrInvalidHourlyRate
	}
	addr, bump, err := keys.AgentAddress(owner)
	if err != nil {
		return nil, err
	}
	agent := types.Agent{
		Address:      addr,
		Owner:        owner,
		MetadataURI:  metadataURI,
		HourlyRate:   hourlyRate,
		Availability: types.AgentAvailable,
		Bump:         bump,
		CreatedAt:    time.Now(),
	}
	if err := s.db.Create(&agent).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrAlreadyRegistered
		}
		return nil, err
	}
	return &agent, nil
}

// AgentUpdate is a partial update; nil fields are left unchanged.
type AgentUpdate struct {
	MetadataURI  *string
	HourlyRate   *uint64
	Availability *uint8
}

// Update applies an owner-authorized partial update and returns the fresh
// record.
func (s *Service) Update(owner string, upd AgentUpdate) (*types.Agent, error) {
	var agent types.Agent
	if err := s.db.First(&agent, "owner = ?", owner).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	fields := map[string]interface{}{}
	if upd.MetadataURI != nil {
		if len(*upd.MetadataURI) > types.MaxURILen {
			return nil, ErrUriTooLong
		}
		fields["metadata_uri"] = *upd.MetadataURI
	}
	if upd.HourlyRate != nil {
		if *upd.HourlyRate == 0 {
			return nil, ErrInvalidHourlyRate
		}
		fields["hourly_rate"] = *upd.HourlyRate
	}
	if upd.Availability != nil {
		if *upd.Availability > types.AgentOffline {
			return nil, ErrInvalidAvailability
		}
		fields["availability"] = *upd.Availability
	}
	if len(fields) == 0 {
		return &agent, nil
	}
	if err := s.db.Model(&agent).Updates(fields).Error; err != nil {
		return nil, err
	}
	err := s.db.First(&agent, "owner = ?", owner).Error
	return &agent, err
}

// UpdateReputation sets the agent's reputation to an absolute rating value
// (latest write wins). Authority-gated; runs on tx so the escrow can compose
// it with the review insert.
func (s *Service) UpdateReputation(tx *gorm.DB, authority, agentOwner string, rating uint64) error {
	if _, ok := s.authorities[authority]; !ok {
		return ErrUnauthorized
	}
	if rating == 0 || rating > 500 {
		return ErrInvalidRating
	}
	res := tx.Model(&types.Agent{}).
		Where("owner = ?", agentOwner).
		Update("reputation", rating)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// AddEarnings credits a completed bounty: totalEarned grows by amount and
// bountiesCompleted by one. Authority-gated; invoked exactly once per
// completed bounty from the approval transaction.
func (s *Service) AddEarnings(tx *gorm.DB, authority, agentOwner string, amount uint64) error {
	if _, ok := s.authorities[authority]; !ok {
		return ErrUnauthorized
	}
	res := tx.Model(&types.Agent{}).
		Where("owner = ?", agentOwner).
		Updates(map[string]interface{}{
			"total_earned":       gorm.Expr("total_earned + ?", amount),
			"bounties_completed": gorm.Expr("bounties_completed + 1"),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Get fetches the agent owned by owner.
func (s *Service) Get(owner string) (*types.Agent, error) {
	var agent types.Agent
	if err := s.db.First(&agent, "owner = ?", owner).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &agent, nil
}

// List returns all registered agents, newest first.
func (s *Service) List() ([]types.Agent, error) {
	var agents []types.Agent
	err := s.db.Order("created_at desc").Find(&agents).Error
	return agents, err
}
