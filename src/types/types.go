package types

import "time"

// Bounty status values. Stored as uint8, never renumbered.
const (
	BountyOpen uint8 = iota
	BountyClaimed
	BountyDelivered
	BountyCompleted
	BountyDisputed
	BountyCancelled
)

// Agent availability values.
const (
	AgentAvailable uint8 = iota
	AgentBusy
	AgentOffline
)

// MaxURILen is the limit for every off-chain metadata URI field.
const MaxURILen = 200

// Agent is one registered work provider per owner address.
type Agent struct {
	Address           string `gorm:"primaryKey;size:64"`
	Owner             string `gorm:"uniqueIndex;size:64;not null"`
	MetadataURI       string `gorm:"size:200;not null"`
	HourlyRate        uint64 `gorm:"not null"` // minor units per hour
	Reputation        uint64 `gorm:"default:0"` // fixed-point *100, 0 until first review
	BountiesCompleted uint64 `gorm:"default:0"`
	TotalEarned       uint64 `gorm:"default:0"` // minor units
	Availability      uint8  `gorm:"default:0"`
	Bump              uint8
	CreatedAt         time.Time
}

// ClientState tracks the per-client bounty sequence. Created lazily on the
// first bounty.
type ClientState struct {
	Address     string `gorm:"primaryKey;size:64"`
	Owner       string `gorm:"uniqueIndex;size:64;not null"`
	BountyCount uint64 `gorm:"default:0"`
	Bump        uint8
}

// Bounty is one unit of requested work with escrowed funds.
type Bounty struct {
	Address        string `gorm:"primaryKey;size:64"`
	Client         string `gorm:"index;size:64;not null"`
	BountyID       uint64 `gorm:"not null"` // sequence number within the client
	MetadataURI    string `gorm:"size:200;not null"`
	Budget         uint64 `gorm:"not null"` // minor units held in the vault
	Deadline       int64  `gorm:"not null"` // unix seconds, advisory only
	Status         uint8  `gorm:"index;default:0"`
	Claims         uint64 `gorm:"default:0"`
	AssignedAgent  string `gorm:"index;size:64"` // empty until claimed
	DeliverableURI string `gorm:"size:200"`
	Vault          string `gorm:"size:64;not null"`
	TokenMint      string `gorm:"size:64;not null"`
	Bump           uint8
	CreatedAt      time.Time
}

// Review is the singleton post-completion review for a bounty.
type Review struct {
	Address    string `gorm:"primaryKey;size:64"`
	Bounty     string `gorm:"uniqueIndex;size:64;not null"`
	Reviewer   string `gorm:"size:64;not null"`
	Agent      string `gorm:"index;size:64;not null"`
	Rating     uint64 `gorm:"not null"` // fixed-point *100, 1..500
	CommentURI string `gorm:"size:200"`
	Bump       uint8
	CreatedAt  time.Time
}

// TokenMint identifies a settlement token type.
type TokenMint struct {
	Address   string `gorm:"primaryKey;size:64"`
	Symbol    string `gorm:"size:16;not null"`
	Decimals  uint8  `gorm:"default:6"`
	Authority string `gorm:"size:64"` // may mint; empty disables minting
	CreatedAt time.Time
}

// TokenAccount holds a balance of one mint for one owner. Vaults are token
// accounts whose owner is a derived (non-signable) address.
type TokenAccount struct {
	Address   string `gorm:"primaryKey;size:64"`
	Mint      string `gorm:"index;size:64;not null"`
	Owner     string `gorm:"index;size:64;not null"`
	Balance   uint64 `gorm:"default:0"` // minor units
	CreatedAt time.Time
}
