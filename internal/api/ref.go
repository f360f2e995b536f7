package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"rewardengine/internal/api/middleware"
	"rewardengine/internal/ledger"
)

type PaginatedRef struct {
	Count    int               `json:"count"`
	Next     string            `json:"next"`
	Previous string            `json:"previous"`
	Results  []ledger.Referral `json:"results"`
}

// GetReferrals lists the caller's referrals, newest first.
func GetReferrals(c *gin.Context) {
	app := appFrom(c)
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid page"})
		return
	}
	size, err := strconv.Atoi(c.DefaultQuery("size", "20"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if size < 1 || size > 100 {
		c.JSON(http.StatusBadRequest, gin.H{"error": errors.New("maximum size is 100").Error()})
		return
	}
	referrals, err := app.Store.ListReferralsByReferrer(c.Request.Context(), c.GetString(middleware.UserKey))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, paginateRef(referrals, page, size))
}

func paginateRef(referrals []ledger.Referral, page int, size int) (paginatedRef PaginatedRef) {
	paginatedRef.Results = []ledger.Referral{}
	paginatedRef.Count = len(referrals)
	feedLen := len(referrals)
	i := (page - 1) * size
	if feedLen <= i {
		return paginatedRef
	}
	if feedLen > page*size {
		paginatedRef.Next = fmt.Sprintf("/users/ref/?page=%d&size=%d", page+1, size)
	}
	if page > 1 {
		paginatedRef.Previous = fmt.Sprintf("/users/ref/?page=%d&size=%d", page-1, size)
	}
	j := i + size
	if j > feedLen {
		j = feedLen
	}
	paginatedRef.Results = referrals[i:j:j]
	return paginatedRef
}

type applyRefRequest struct {
	Code string `json:"code" binding:"required"`
}

func ApplyRef(c *gin.Context) {
	app := appFrom(c)
	var req applyRefRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := app.Referrals.ApplyReferralCode(c.Request.Context(), c.GetString(middleware.UserKey), req.Code); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type withdrawRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// WithdrawRef moves earned rewards into the main balance.
func WithdrawRef(c *gin.Context) {
	app := appFrom(c)
	var req withdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := app.Referrals.WithdrawReferralBalance(c.Request.Context(), c.GetString(middleware.UserKey), req.Amount)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}
