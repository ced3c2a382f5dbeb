package api

import (
	"context"
	"encoding/hex"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/meritpog/pog-engine/internal/ambassador"
	"github.com/meritpog/pog-engine/internal/chainparams"
	"github.com/meritpog/pog-engine/internal/cgs"
	"github.com/meritpog/pog-engine/internal/invites"
	"github.com/meritpog/pog-engine/internal/lottery"
	"github.com/meritpog/pog-engine/internal/pghash"
	"github.com/meritpog/pog-engine/internal/refdomain"
	"github.com/meritpog/pog-engine/internal/store"
)

// Handler exposes the referral graph, ANV ledger, and lottery samplers
// over HTTP, following a Gin router with CORS, bearer auth, and per-IP rate limiting.
type Handler struct {
	store  *store.Store
	params chainparams.Params
	wsHub  *Hub
}

// SetupRouter builds the gin engine with CORS, auth, and rate-limit
// middleware, and registers the public/protected route groups.
func SetupRouter(s *store.Store, params chainparams.Params, wsHub *Hub) *gin.Engine {
	r := gin.Default()

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	h := &Handler{store: s, params: params, wsHub: wsHub}

	limiter := NewRateLimiter(120, 30)

	pub := r.Group("/api/v1")
	{
		pub.GET("/health", h.handleHealth)
		pub.GET("/stream", wsHub.Subscribe)
	}

	protected := r.Group("/api/v1")
	protected.Use(AuthMiddleware(), limiter.Middleware())
	{
		protected.GET("/referral/:address", h.handleGetReferral)
		protected.GET("/referral/alias/:alias", h.handleGetReferralByAlias)
		protected.GET("/anv/:address", h.handleGetANV)
		protected.GET("/confirmation/:address", h.handleGetConfirmation)
		protected.POST("/select/ambassadors", h.handleSelectAmbassadors)
		protected.POST("/select/invites", h.handleSelectInvites)
	}

	return r
}

func (h *Handler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// queryHeight reads an optional ?height= override for endpoints that
// need a chain height but aren't handed one in a request body (e.g.
// alias lookups). Defaults to fallback, which callers set high enough
// that current-chain lookups land in safe-grammar mode.
func queryHeight(c *gin.Context, fallback int) int {
	if v := c.Query("height"); v != "" {
		if h, err := strconv.Atoi(v); err == nil {
			return h
		}
	}
	return fallback
}

func parseAddress(c *gin.Context, param string) (refdomain.Address, bool) {
	raw := c.Param(param)
	b, err := decodeHexAddress(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid address: " + err.Error()})
		return refdomain.Address{}, false
	}
	return b, true
}

func (h *Handler) handleGetReferral(c *gin.Context) {
	address, ok := parseAddress(c, "address")
	if !ok {
		return
	}
	ref, found, err := h.store.GetReferral(c.Request.Context(), address)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "referral not found"})
		return
	}
	c.JSON(http.StatusOK, ref)
}

func (h *Handler) handleGetReferralByAlias(c *gin.Context) {
	alias := c.Param("alias")
	height := queryHeight(c, h.params.SaferAliasHeight)
	ref, found, err := h.store.GetReferralByAlias(c.Request.Context(), alias, height, h.params.SaferAliasHeight)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "referral not found"})
		return
	}
	c.JSON(http.StatusOK, ref)
}

func (h *Handler) handleGetANV(c *gin.Context) {
	address, ok := parseAddress(c, "address")
	if !ok {
		return
	}
	v, found, err := h.store.GetANV(address)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "address has no anv record"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"num": v.Num.String(), "den": v.Den.String(), "anv": v.Int()})
}

func (h *Handler) handleGetConfirmation(c *gin.Context) {
	address, ok := parseAddress(c, "address")
	if !ok {
		return
	}
	confirmed, err := h.store.IsConfirmed(address)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"confirmed": confirmed})
}

type selectRequest struct {
	Height int    `json:"height" binding:"required"`
	Hash   string `json:"hash" binding:"required"`
	N      int    `json:"n" binding:"required"`
}

func (h *Handler) handleSelectAmbassadors(c *gin.Context) {
	var req selectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	hash, err := decodeHexHash(req.Hash)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid hash: " + err.Error()})
		return
	}

	ctx := c.Request.Context()
	reservoir, err := h.store.LoadReservoir(ctx, h.params.MaxReservoirSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	rewardable, err := entrantsFromReservoir(ctx, h.store, reservoir, req.Height, h.params)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	stakeMin := h.params.AmbassadorMinimumStake(req.Height)
	selector := ambassador.NewSelector(rewardable, stakeMin)
	winners, err := selector.Select(h.store, hash, req.N)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"winners": winners})
}

func (h *Handler) handleSelectInvites(c *gin.Context) {
	var req selectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	hash, err := decodeHexHash(req.Hash)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid hash: " + err.Error()})
		return
	}

	ctx := c.Request.Context()
	reservoir, err := h.store.LoadReservoir(ctx, h.params.MaxReservoirSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	rewardable, err := entrantsFromReservoir(ctx, h.store, reservoir, req.Height, h.params)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	stakeMin := h.params.AmbassadorMinimumStake(req.Height)
	selector := ambassador.NewSelector(rewardable, stakeMin)

	selected, err := invites.Select(
		h.store, selector, h.store, hash, h.params.GenesisAddress, req.N,
		nil, h.params.MaxOutstandingInvites, toWeightedPools(h.params.InvitePools),
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"selected": selected})
}

func toWeightedPools(pools []chainparams.InvitePool) []invites.Weighted {
	out := make([]invites.Weighted, len(pools))
	for i, p := range pools {
		var t invites.PoolType
		switch p.Name {
		case chainparams.PoolCGS:
			t = invites.PoolCGS
		case chainparams.PoolNew:
			t = invites.PoolNew
		default:
			t = invites.PoolAny
		}
		out[i] = invites.Weighted{Type: t, Probability: p.Probability}
	}
	return out
}

// entrantsFromReservoir scores every reservoir candidate's ANV-derived
// CGS, attaching each candidate's stored direct children so ComputeAll
// aggregates over the referral graph's shape rather than treating every
// candidate as an isolated leaf. Only children that are themselves
// reservoir candidates add balance or size; other children count for
// nothing.
func entrantsFromReservoir(reqCtx context.Context, s *store.Store, r *lottery.Reservoir, height int, params chainparams.Params) ([]cgs.Entrant, error) {
	cc := cgs.NewContext(height, params.CoinMaturity, params.NewCoinMaturity)

	for _, candidate := range r.Entries() {
		v, ok, err := s.GetANV(candidate.Address)
		if err != nil {
			return nil, err
		}
		amount := int64(0)
		if ok {
			amount = v.Int()
		}
		children, err := s.Children(reqCtx, candidate.Address)
		if err != nil {
			return nil, err
		}
		cc.AddEntrant(cgs.CachedEntrant{
			AddressType: candidate.AddressType,
			Address:     candidate.Address,
			Coins:       []cgs.Coin{{Height: 0, Amount: amount}},
			Height:      0,
			Children:    children,
		})
	}

	return cc.ComputeAll()
}

func decodeHexAddress(s string) (refdomain.Address, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return refdomain.Address{}, err
	}
	if len(b) != 20 {
		return refdomain.Address{}, errInvalidLength
	}
	return refdomain.AddressFromBytes(b), nil
}

func decodeHexHash(s string) (pghash.Hash256, error) {
	var h pghash.Hash256
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, err
	}
	if len(b) != len(h) {
		return h, errInvalidLength
	}
	copy(h[:], b)
	return h, nil
}

var errInvalidLength = errors.New("api: wrong byte length")
