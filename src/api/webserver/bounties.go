package webserver

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/moltlabs/moltwork/src/escrow"
	"github.com/moltlabs/moltwork/src/metadata"
)

type Bounties struct {
	esc  *escrow.Service
	meta *metadata.Client
}

func NewBounties(esc *escrow.Service, meta *metadata.Client) Bounties {
	return Bounties{esc: esc, meta: meta}
}

func (h Bounties) Create(c *gin.Context) {
	// Budget and deadline are unbound so zero values reach the escrow guards
	// and come back with their stable codes.
	var req struct {
		MetadataURI string `json:"metadataUri" binding:"required"`
		Budget      uint64 `json:"budget"`
		Deadline    int64  `json:"deadline"` // unix seconds
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}
	client := c.GetString("addr")

	bounty, err := h.esc.CreateBounty(client, req.MetadataURI, req.Budget, req.Deadline)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, newBountyView(c, h.meta, *bounty))
}

func (h Bounties) Claim(c *gin.Context) {
	bounty, err := h.esc.Claim(c.GetString("addr"), c.Param("address"))
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, newBountyView(c, h.meta, *bounty))
}

func (h Bounties) Submit(c *gin.Context) {
	var req struct {
		DeliverableURI string `json:"deliverableUri" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}
	bounty, err := h.esc.Submit(c.GetString("addr"), c.Param("address"), req.DeliverableURI)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, newBountyView(c, h.meta, *bounty))
}

func (h Bounties) Approve(c *gin.Context) {
	bounty, err := h.esc.Approve(c.GetString("addr"), c.Param("address"))
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, newBountyView(c, h.meta, *bounty))
}

func (h Bounties) Dispute(c *gin.Context) {
	bounty, err := h.esc.Dispute(c.GetString("addr"), c.Param("address"))
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, newBountyView(c, h.meta, *bounty))
}

func (h Bounties) Cancel(c *gin.Context) {
	bounty, err := h.esc.Cancel(c.GetString("addr"), c.Param("address"))
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, newBountyView(c, h.meta, *bounty))
}

func (h Bounties) Review(c *gin.Context) {
	var req struct {
		Rating     uint64 `json:"rating" binding:"required"`
		CommentURI string `json:"commentUri"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}
	review, err := h.esc.LeaveReview(c.GetString("addr"), c.Param("address"), req.Rating, req.CommentURI)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, newReviewView(*review))
}

func (h Bounties) Get(c *gin.Context) {
	bounty, err := h.esc.GetBounty(c.Param("address"))
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, newBountyView(c, h.meta, *bounty))
}

func (h Bounties) List(c *gin.Context) {
	bounties, err := h.esc.ListBounties()
	if err != nil {
		writeErr(c, err)
		return
	}
	views := make([]bountyView, 0, len(bounties))
	for _, b := range bounties {
		views = append(views, newBountyView(c, h.meta, b))
	}
	c.JSON(http.StatusOK, gin.H{"bounties": views})
}

func (h Bounties) ListByClient(c *gin.Context) {
	bounties, err := h.esc.ListByClient(c.Param("owner"))
	if err != nil {
		writeErr(c, err)
		return
	}
	views := make([]bountyView, 0, len(bounties))
	for _, b := range bounties {
		views = append(views, newBountyView(c, h.meta, b))
	}
	c.JSON(http.StatusOK, gin.H{"bounties": views})
}
