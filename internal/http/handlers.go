package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/quantumauth-io/quantum-go-utils/log"

	"github.com/quantumauth-io/hedera-wallet-agent/internal/confirm"
	"github.com/quantumauth-io/hedera-wallet-agent/internal/session"
	"github.com/quantumauth-io/hedera-wallet-agent/internal/vault"
)

// Wallet is the lifecycle surface the operator drives. *session.Manager
// implements it.
type Wallet interface {
	Initialize(ctx context.Context, bundle vault.Bundle, password string) error
	Unlock(ctx context.Context, password string) error
	Lock(ctx context.Context) error
	DisconnectAll(ctx context.Context) error
	Pair(ctx context.Context, uri string) error
	ChangePassword(ctx context.Context, oldPassword, newPassword string) error
	ClearData(ctx context.Context) error
	Status() session.Status
}

// Approvals lists and decides pending operator prompts. *confirm.Queue
// implements it.
type Approvals interface {
	List() []confirm.Pending
	Decide(id string, approve bool) error
}

type Handler struct {
	wallet    Wallet
	approvals Approvals
}

func NewHandler(wallet Wallet, approvals Approvals) *Handler {
	return &Handler{wallet: wallet, approvals: approvals}
}

// -------- DTOs --------

type initializeReq struct {
	EVMAccountID     string `json:"ecdsaAccountId"    binding:"required"`
	EVMPrivateKey    string `json:"ecdsaPrivateKey"   binding:"required"`
	LedgerAccountID  string `json:"ed25519AccountId"  binding:"required"`
	LedgerPrivateKey string `json:"ed25519PrivateKey" binding:"required"`
	Network          string `json:"network"           binding:"required,oneof=testnet mainnet"`
	ProjectID        string `json:"projectId"         binding:"required"`
	Password         string `json:"password"`
}

type unlockReq struct {
	Password string `json:"password" binding:"required"`
}

type pairReq struct {
	URI string `json:"uri" binding:"required"`
}

type changePasswordReq struct {
	OldPassword string `json:"oldPassword" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required"`
}

type decideReq struct {
	Approve *bool `json:"approve" binding:"required"`
}

func (h *Handler) Health(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// GET /status
func (h *Handler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.wallet.Status())
}

// POST /wallet/initialize
func (h *Handler) Initialize(c *gin.Context) {
	var req initializeReq
	if !bind(c, &req) {
		return
	}
	b := vault.Bundle{
		EVMAccountID:     req.EVMAccountID,
		EVMPrivateKey:    req.EVMPrivateKey,
		LedgerAccountID:  req.LedgerAccountID,
		LedgerPrivateKey: req.LedgerPrivateKey,
		Network:          req.Network,
		ProjectID:        req.ProjectID,
	}
	h.respond(c, "initialize", h.wallet.Initialize(c.Request.Context(), b, req.Password))
}

// POST /wallet/unlock
func (h *Handler) Unlock(c *gin.Context) {
	var req unlockReq
	if !bind(c, &req) {
		return
	}
	h.respond(c, "unlock", h.wallet.Unlock(c.Request.Context(), req.Password))
}

// POST /wallet/lock
func (h *Handler) Lock(c *gin.Context) {
	h.respond(c, "lock", h.wallet.Lock(c.Request.Context()))
}

// POST /wallet/pair
func (h *Handler) Pair(c *gin.Context) {
	var req pairReq
	if !bind(c, &req) {
		return
	}
	h.respond(c, "pair", h.wallet.Pair(c.Request.Context(), req.URI))
}

// POST /wallet/disconnect
func (h *Handler) Disconnect(c *gin.Context) {
	h.respond(c, "disconnect", h.wallet.DisconnectAll(c.Request.Context()))
}

// POST /wallet/password
func (h *Handler) ChangePassword(c *gin.Context) {
	var req changePasswordReq
	if !bind(c, &req) {
		return
	}
	h.respond(c, "change password", h.wallet.ChangePassword(c.Request.Context(), req.OldPassword, req.NewPassword))
}

// POST /wallet/clear
func (h *Handler) Clear(c *gin.Context) {
	h.respond(c, "clear", h.wallet.ClearData(c.Request.Context()))
}

// GET /approvals
func (h *Handler) ListApprovals(c *gin.Context) {
	if h.approvals == nil {
		c.JSON(http.StatusNotFound, gin.H{JSONKeyError: HTTPErrorApprovalsDisabled})
		return
	}
	c.JSON(http.StatusOK, gin.H{JSONKeyApprovals: h.approvals.List()})
}

// POST /approvals/:id
func (h *Handler) DecideApproval(c *gin.Context) {
	if h.approvals == nil {
		c.JSON(http.StatusNotFound, gin.H{JSONKeyError: HTTPErrorApprovalsDisabled})
		return
	}
	var req decideReq
	if !bind(c, &req) {
		return
	}
	if err := h.approvals.Decide(c.Param("id"), *req.Approve); err != nil {
		c.JSON(statusFor(err), gin.H{JSONKeyError: HTTPErrorUnknownApprovalTxt})
		return
	}
	c.JSON(http.StatusOK, gin.H{JSONKeyOK: true})
}

func bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{JSONKeyError: err.Error()})
		return false
	}
	return true
}

// respond writes the post-transition status, or the mapped error.
func (h *Handler) respond(c *gin.Context, action string, err error) {
	if err != nil {
		status := statusFor(err)
		msg := err.Error()
		if status == http.StatusInternalServerError {
			log.Error("wallet action failed", "action", action, "error", err)
		}
		c.JSON(status, gin.H{JSONKeyError: msg, JSONKeyStatus: h.wallet.Status()})
		return
	}
	c.JSON(http.StatusOK, gin.H{JSONKeyOK: true, JSONKeyStatus: h.wallet.Status()})
}
