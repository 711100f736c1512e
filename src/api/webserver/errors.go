package webserver

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/moltlabs/moltwork/src/escrow"
	"github.com/moltlabs/moltwork/src/ledger"
	"github.com/moltlabs/moltwork/src/registry"
)

// writeErr maps core errors onto HTTP responses. Coded errors carry their
// stable numeric code; everything unrecognized degrades to a generic 500.
func writeErr(c *gin.Context, err error) {
	var escErr *escrow.Error
	if errors.As(err, &escErr) {
		status := http.StatusBadRequest
		switch escErr {
		case escrow.ErrUnauthorized, escrow.ErrNotAssignedAgent:
			status = http.StatusForbidden
		case escrow.ErrNotOpen, escrow.ErrNotClaimed, escrow.ErrNotDelivered,
			escrow.ErrNotCompleted, escrow.ErrCannotDispute:
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"err": escErr.Msg, "code": escErr.Code})
		return
	}

	var regErr *registry.Error
	if errors.As(err, &regErr) {
		c.JSON(http.StatusBadRequest, gin.H{"err": regErr.Msg, "code": regErr.Code})
		return
	}

	switch {
	case errors.Is(err, escrow.ErrBountyNotFound), errors.Is(err, registry.ErrNotFound),
		errors.Is(err, ledger.ErrNoSuchAccount):
		c.JSON(http.StatusNotFound, gin.H{"err": err.Error()})
	case errors.Is(err, registry.ErrAlreadyRegistered), errors.Is(err, escrow.ErrReviewExists):
		c.JSON(http.StatusConflict, gin.H{"err": err.Error()})
	case errors.Is(err, registry.ErrUnauthorized):
		c.JSON(http.StatusForbidden, gin.H{"err": err.Error()})
	case errors.Is(err, ledger.ErrInsufficientFunds):
		c.JSON(http.StatusPaymentRequired, gin.H{"err": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"err": "internal error, try again"})
	}
}
