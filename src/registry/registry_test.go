package registry

import (
	"bytes"
	"strings"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/moltlabs/moltwork/src/types"
)

const escrowAuthority = "escrow-authority"

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&types.Agent{}))
	return New(db, escrowAuthority)
}

func owner(b byte) string { return base58.Encode(bytes.Repeat([]byte{b}, 32)) }

func TestRegister(t *testing.T) {
	s := newTestService(t)

	agent, err := s.Register(owner(0x01), "https://meta.example/agent.json", 25_000000)
	require.NoError(t, err)

	assert.Equal(t, owner(0x01), agent.Owner)
	assert.Equal(t, uint64(0), agent.Reputation)
	assert.Equal(t, uint64(0), agent.BountiesCompleted)
	assert.Equal(t, uint64(0), agent.TotalEarned)
	assert.Equal(t, types.AgentAvailable, agent.Availability)
	assert.NotEmpty(t, agent.Address)
}

func TestRegisterTwiceFails(t *testing.T) {
	s := newTestService(t)

	_, err := s.Register(owner(0x02), "uri", 1)
	require.NoError(t, err)
	_, err = s.Register(owner(0x02), "other-uri", 2)
	assert.ErrorIs(t, err, ErrAlreadyRegistered)
}

func TestRegisterValidation(t *testing.T) {
	s := newTestService(t)

	_, err := s.Register(owner(0x03), strings.Repeat("a", 201), 1)
	assert.ErrorIs(t, err, ErrUriTooLong)

	_, err = s.Register(owner(0x03), strings.Repeat("a", 200), 0)
	assert.ErrorIs(t, err, ErrInvalidHourlyRate)

	// 200 chars is within bounds.
	_, err = s.Register(owner(0x03), strings.Repeat("a", 200), 1)
	assert.NoError(t, err)
}

func TestUpdatePartial(t *testing.T) {
	s := newTestService(t)
	o := owner(0x04)
	_, err := s.Register(o, "uri", 10)
	require.NoError(t, err)

	rate := uint64(20)
	agent, err := s.Update(o, AgentUpdate{HourlyRate: &rate})
	require.NoError(t, err)
	assert.Equal(t, uint64(20), agent.HourlyRate)
	assert.Equal(t, "uri", agent.MetadataURI)

	avail := types.AgentBusy
	uri := "new-uri"
	agent, err = s.Update(o, AgentUpdate{MetadataURI: &uri, Availability: &avail})
	require.NoError(t, err)
	assert.Equal(t, "new-uri", agent.MetadataURI)
	assert.Equal(t, types.AgentBusy, agent.Availability)
	assert.Equal(t, uint64(20), agent.HourlyRate)
}

func TestUpdateValidation(t *testing.T) {
	s := newTestService(t)
	o := owner(0x05)
	_, err := s.Register(o, "uri", 10)
	require.NoError(t, err)

	bad := uint8(3)
	_, err = s.Update(o, AgentUpdate{Availability: &bad})
	assert.ErrorIs(t, err, ErrInvalidAvailability)

	zero := uint64(0)
	_, err = s.Update(o, AgentUpdate{HourlyRate: &zero})
	assert.ErrorIs(t, err, ErrInvalidHourlyRate)

	_, err = s.Update(owner(0x06), AgentUpdate{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateReputationAuthorityGated(t *testing.T) {
	s := newTestService(t)
	o := owner(0x07)
	_, err := s.Register(o, "uri", 10)
	require.NoError(t, err)

	err = s.UpdateReputation(s.db, o, o, 450)
	assert.ErrorIs(t, err, ErrUnauthorized)

	require.NoError(t, s.UpdateReputation(s.db, escrowAuthority, o, 450))
	agent, err := s.Get(o)
	require.NoError(t, err)
	assert.Equal(t, uint64(450), agent.Reputation)

	// Latest write wins, no averaging.
	require.NoError(t, s.UpdateReputation(s.db, escrowAuthority, o, 300))
	agent, _ = s.Get(o)
	assert.Equal(t, uint64(300), agent.Reputation)
}

func TestUpdateReputationBounds(t *testing.T) {
	s := newTestService(t)
	o := owner(0x08)
	_, err := s.Register(o, "uri", 10)
	require.NoError(t, err)

	assert.ErrorIs(t, s.UpdateReputation(s.db, escrowAuthority, o, 0), ErrInvalidRating)
	assert.ErrorIs(t, s.UpdateReputation(s.db, escrowAuthority, o, 501), ErrInvalidRating)
	assert.NoError(t, s.UpdateReputation(s.db, escrowAuthority, o, 1))
	assert.NoError(t, s.UpdateReputation(s.db, escrowAuthority, o, 500))
}

func TestAddEarnings(t *testing.T) {
	s := newTestService(t)
	o := owner(0x09)
	_, err := s.Register(o, "uri", 10)
	require.NoError(t, err)

	assert.ErrorIs(t, s.AddEarnings(s.db, o, o, 100), ErrUnauthorized)

	require.NoError(t, s.AddEarnings(s.db, escrowAuthority, o, 100_000000))
	require.NoError(t, s.AddEarnings(s.db, escrowAuthority, o, 50_000000))

	agent, err := s.Get(o)
	require.NoError(t, err)
	assert.Equal(t, uint64(150_000000), agent.TotalEarned)
	assert.Equal(t, uint64(2), agent.BountiesCompleted)
}

func TestList(t *testing.T) {
	s := newTestService(t)
	_, err := s.Register(owner(0x0A), "uri", 1)
	require.NoError(t, err)
	_, err = s.Register(owner(0x0B), "uri", 2)
	require.NoError(t, err)

	agents, err := s.List()
	require.NoError(t, err)
	assert.Len(t, agents, 2)
}
