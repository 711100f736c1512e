package webserver

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/moltlabs/moltwork/src/escrow"
	"github.com/moltlabs/moltwork/src/metadata"
	"github.com/moltlabs/moltwork/src/registry"
)

type Agents struct {
	reg  *registry.Service
	esc  *escrow.Service
	meta *metadata.Client
}

func NewAgents(reg *registry.Service, esc *escrow.Service, meta *metadata.Client) Agents {
	return Agents{reg: reg, esc: esc, meta: meta}
}

func (h Agents) Register(c *gin.Context) {
	var req struct {
		MetadataURI string `json:"metadataUri" binding:"required"`
		HourlyRate  uint64 `json:"hourlyRate" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}
	owner := c.GetString("addr")

	agent, err := h.reg.Register(owner, req.MetadataURI, req.HourlyRate)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, newAgentView(c, h.meta, *agent))
}

func (h Agents) Update(c *gin.Context) {
	var req struct {
		MetadataURI  *string `json:"metadataUri"`
		HourlyRate   *uint64 `json:"hourlyRate"`
		Availability *uint8  `json:"availability"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}
	owner := c.GetString("addr")

	agent, err := h.reg.Update(owner, registry.AgentUpdate{
		MetadataURI:  req.MetadataURI,
		HourlyRate:   req.HourlyRate,
		Availability: req.Availability,
	})
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, newAgentView(c, h.meta, *agent))
}

func (h Agents) Get(c *gin.Context) {
	agent, err := h.reg.Get(c.Param("owner"))
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, newAgentView(c, h.meta, *agent))
}

func (h Agents) List(c *gin.Context) {
	agents, err := h.reg.List()
	if err != nil {
		writeErr(c, err)
		return
	}
	views := make([]agentView, 0, len(agents))
	for _, a := range agents {
		views = append(views, newAgentView(c, h.meta, a))
	}
	c.JSON(http.StatusOK, gin.H{"agents": views})
}

func (h Agents) Reviews(c *gin.Context) {
	reviews, err := h.esc.ReviewsForAgent(c.Param("owner"))
	if err != nil {
		writeErr(c, err)
		return
	}
	views := make([]reviewView, 0, len(reviews))
	for _, r := range reviews {
		views = append(views, newReviewView(r))
	}
	c.JSON(http.StatusOK, gin.H{"reviews": views})
}
