package server

import (
	"errors"
	"net/http"
	"time"

	"alpacastream/internal/alpaca/stream"
	"alpacastream/internal/auth"
	"alpacastream/internal/users"
	"alpacastream/pkg/alpaca"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
)

const (
	userKey = "user"

	// Close frame payloads are limited to 125 bytes, two of which hold the code.
	maxCloseReason = 123
)

func (s *Server) getHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) streamPnL(c *gin.Context) {
	s.serveSession(c, stream.ModePollSnapshot)
}

func (s *Server) streamTrades(c *gin.Context) {
	s.serveSession(c, stream.ModeRelayTrades)
}

// serveSession upgrades the request, authorizes it and runs the session until
// the socket goes away. Authorization failures are reported as a 1008 close
// frame so browser clients can read the reason.
func (s *Server) serveSession(c *gin.Context, mode stream.Mode) {
	user, authErr := s.resolver.Resolve(c.Request.Context(), c.Request)

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err), zap.String("mode", string(mode)))
		return
	}

	if authErr != nil {
		s.logger.Info("rejecting stream connection",
			zap.String("mode", string(mode)),
			zap.String("reason", auth.Reason(authErr)),
			zap.Error(authErr),
		)
		reject(conn, auth.Reason(authErr))
		return
	}

	client, err := s.clients.GetOrCreate(user)
	if err != nil {
		s.logger.Warn("alpaca client unavailable", zap.String("user_id", user.ID), zap.Error(err))
		reason := "Connection failed"
		if errors.Is(err, alpaca.ErrMissingCredentials) {
			reason = alpaca.ErrMissingCredentials.Error()
		}
		reject(conn, reason)
		return
	}

	params := stream.ParseParams(c.Request.URL.Query(), s.defaults)
	sess := stream.NewSession(c.Request.Context(), conn, mode, user.ID, s.logger)

	switch mode {
	case stream.ModePollSnapshot:
		poller := stream.NewPoller(sess, client, params)
		var wg conc.WaitGroup
		wg.Go(poller.Run)
		s.sessions.Run(sess)
		wg.Wait()

	case stream.ModeRelayTrades:
		symbols := params.Symbols
		if len(symbols) == 0 {
			symbols = s.defaults.RelaySymbols
		}
		relay := stream.NewRelay(sess, client, symbols)
		if err := relay.Start(); err != nil {
			sess.Logger().Warn("relay start failed", zap.Error(err))
			sess.Close(websocket.ClosePolicyViolation, closeReason(err.Error()))
			return
		}
		s.sessions.Run(sess)
	}
}

// reject closes a freshly upgraded connection with a policy violation.
func reject(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, closeReason(reason)),
		time.Now().Add(time.Second))
	_ = conn.Close()
}

func closeReason(reason string) string {
	if reason == "" {
		return "Connection failed"
	}
	if len(reason) > maxCloseReason {
		return reason[:maxCloseReason]
	}
	return reason
}

// requireUser resolves the bearer token and stores the user on the context.
func (s *Server) requireUser(c *gin.Context) {
	user, err := s.resolver.Resolve(c.Request.Context(), c.Request)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": auth.Reason(err)})
		return
	}
	c.Set(userKey, user)
	c.Next()
}

func (s *Server) putCredentials(c *gin.Context) {
	user := c.MustGet(userKey).(*users.User)

	var req users.CredentialsUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.AlpacaAPIKey == "" || req.AlpacaSecretKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "alpacaApiKey and alpacaSecretKey required"})
		return
	}

	updated, err := s.users.UpdateCredentials(c.Request.Context(), user.ID, req)
	if errors.Is(err, users.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	if err != nil {
		s.logger.Error("internal_error", zap.String("where", "putCredentials"), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Credentials updated successfully",
		"user": gin.H{
			"id":       updated.ID,
			"username": updated.Name,
			"email":    updated.Email,
		},
	})
}
