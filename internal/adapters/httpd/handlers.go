package httpd

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/calldeck/calldeck/internal/app"
	"github.com/calldeck/calldeck/internal/domain"
)

type Handlers struct {
	Directory   *app.Directory
	Steps       *app.StepLog
	Switchboard *app.Switchboard
}

type usernameRequest struct {
	Username string `json:"username"`
}

type initiateRequest struct {
	Caller string `json:"caller"`
	Callee string `json:"callee"`
}

func (h *Handlers) Register(c *gin.Context) {
	var req usernameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "bad request"})
		return
	}
	user, err := h.Directory.Register(req.Username)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "user": user})
}

func (h *Handlers) Heartbeat(c *gin.Context) {
	var req usernameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "bad request"})
		return
	}
	if err := h.Directory.Heartbeat(req.Username); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handlers) Users(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "users": h.Directory.Active()})
}

func (h *Handlers) Logs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "logs": h.Steps.Snapshot()})
}

func (h *Handlers) ClearLogs(c *gin.Context) {
	h.Steps.Clear()
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handlers) InitiateCall(c *gin.Context) {
	var req initiateRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Caller == "" || req.Callee == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "bad request"})
		return
	}
	if !h.Directory.Known(req.Caller) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": domain.ErrUnknownUser.Error()})
		return
	}
	if err := h.Switchboard.NotifyCallRequest(req.Caller, req.Callee); err != nil {
		log.Warn().Err(err).Str("module", "adapters.httpd").Str("callee", req.Callee).Msg("call initiate undeliverable")
		c.JSON(http.StatusConflict, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
