package webserver

import (
	"context"
	"time"

	"github.com/moltlabs/moltwork/src/metadata"
	"github.com/moltlabs/moltwork/src/types"
)

// Display conventions: amounts are minor units with 6 decimals, ratings and
// reputation are fixed-point *100.
const minorUnitsPerToken = 1_000_000

func toTokens(minorUnits uint64) float64 { return float64(minorUnits) / minorUnitsPerToken }

func toStars(fixed uint64) float64 { return float64(fixed) / 100 }

func availabilityString(a uint8) string {
	switch a {
	case types.AgentAvailable:
		return "available"
	case types.AgentBusy:
		return "busy"
	default:
		return "offline"
	}
}

func statusString(s uint8) string {
	switch s {
	case types.BountyOpen:
		return "open"
	case types.BountyClaimed:
		return "claimed"
	case types.BountyDelivered:
		return "delivered"
	case types.BountyCompleted:
		return "completed"
	case types.BountyDisputed:
		return "disputed"
	case types.BountyCancelled:
		return "cancelled"
	default:
		return "open"
	}
}

type agentView struct {
	Address           string   `json:"address"`
	Owner             string   `json:"owner"`
	Name              string   `json:"name"`
	Description       string   `json:"description"`
	Skills            []string `json:"skills"`
	Endpoint          string   `json:"endpoint,omitempty"`
	MoltbookUsername  string   `json:"moltbookUsername,omitempty"`
	MetadataURI       string   `json:"metadataUri"`
	HourlyRate        float64  `json:"hourlyRate"`
	Reputation        float64  `json:"reputation"`
	BountiesCompleted uint64   `json:"bountiesCompleted"`
	TotalEarned       float64  `json:"totalEarned"`
	Availability      string   `json:"availability"`
	CreatedAt         string   `json:"createdAt"`
}

func newAgentView(ctx context.Context, meta *metadata.Client, a types.Agent) agentView {
	m := meta.Agent(ctx, a.MetadataURI)
	name := m.Name
	if name == "" {
		name = "Unknown Agent"
	}
	skills := m.Skills
	if skills == nil {
		skills = []string{}
	}
	return agentView{
		Address:           a.Address,
		Owner:             a.Owner,
		Name:              name,
		Description:       m.Description,
		Skills:            skills,
		Endpoint:          m.Endpoint,
		MoltbookUsername:  m.MoltbookUsername,
		MetadataURI:       a.MetadataURI,
		HourlyRate:        toTokens(a.HourlyRate),
		Reputation:        toStars(a.Reputation),
		BountiesCompleted: a.BountiesCompleted,
		TotalEarned:       toTokens(a.TotalEarned),
		Availability:      availabilityString(a.Availability),
		CreatedAt:         a.CreatedAt.Format(time.RFC3339),
	}
}

type bountyView struct {
	ID             string   `json:"id"`
	Client         string   `json:"client"`
	BountyID       uint64   `json:"bountyId"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Requirements   []string `json:"requirements"`
	Skills         []string `json:"skills"`
	MetadataURI    string   `json:"metadataUri"`
	Budget         float64  `json:"budget"`
	Deadline       string   `json:"deadline"`
	Status         string   `json:"status"`
	Claims         uint64   `json:"claims"`
	AssignedAgent  string   `json:"assignedAgent,omitempty"`
	DeliverableURI string   `json:"deliverableUri,omitempty"`
	Vault          string   `json:"vault"`
	TokenMint      string   `json:"tokenMint"`
	CreatedAt      string   `json:"createdAt"`
}

func newBountyView(ctx context.Context, meta *metadata.Client, b types.Bounty) bountyView {
	m := meta.Bounty(ctx, b.MetadataURI)
	title := m.Title
	if title == "" {
		title = "Untitled Bounty"
	}
	reqs := m.Requirements
	if reqs == nil {
		reqs = []string{}
	}
	skills := m.Skills
	if skills == nil {
		skills = []string{}
	}
	return bountyView{
		ID:             b.Address,
		Client:         b.Client,
		BountyID:       b.BountyID,
		Title:          title,
		Description:    m.Description,
		Requirements:   reqs,
		Skills:         skills,
		MetadataURI:    b.MetadataURI,
		Budget:         toTokens(b.Budget),
		Deadline:       time.Unix(b.Deadline, 0).UTC().Format(time.RFC3339),
		Status:         statusString(b.Status),
		Claims:         b.Claims,
		AssignedAgent:  b.AssignedAgent,
		DeliverableURI: b.DeliverableURI,
		Vault:          b.Vault,
		TokenMint:      b.TokenMint,
		CreatedAt:      b.CreatedAt.Format(time.RFC3339),
	}
}

type reviewView struct {
	ID         string  `json:"id"`
	Bounty     string  `json:"bountyId"`
	From       string  `json:"from"`
	Agent      string  `json:"agent"`
	Rating     float64 `json:"rating"`
	CommentURI string  `json:"commentUri,omitempty"`
	CreatedAt  string  `json:"createdAt"`
}

func newReviewView(r types.Review) reviewView {
	return reviewView{
		ID:         r.Address,
		Bounty:     r.Bounty,
		From:       r.Reviewer,
		Agent:      r.Agent,
		Rating:     toStars(r.Rating),
		CommentURI: r.CommentURI,
		CreatedAt:  r.CreatedAt.Format(time.RFC3339),
	}
}
