package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLeaderboardLimit
	}
	if limit > maxLeaderboardLimit {
		return maxLeaderboardLimit
	}
	return limit
}

func (s *Server) leaderboard(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	accounts, err := s.ledger.Leaderboard(c.Request.Context(), clampLimit(limit))
	if err != nil {
		log.Error().Err(err).Msg("Error loading leaderboard")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "leaderboard unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"leaderboard": accounts})
}

func (s *Server) player(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	stats, err := s.actions.Stats(ctx, id)
	if err != nil {
		log.Error().Err(err).Str("player", id).Msg("Error loading player")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "player unavailable"})
		return
	}

	balance, err := s.actions.Balance(ctx, id)
	if err != nil {
		log.Error().Err(err).Str("player", id).Msg("Error loading balance")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "player unavailable"})
		return
	}

	body := gin.H{"player": stats, "balance": balance}
	if s.rankings != nil {
		if rank, ok, err := s.rankings.Rank(ctx, id); err != nil {
			log.Warn().Err(err).Str("player", id).Msg("Error loading rank")
		} else if ok {
			body["rank"] = rank
		}
	}

	c.JSON(http.StatusOK, body)
}

// transactions is only visible to the owning player.
func (s *Server) transactions(c *gin.Context) {
	id := c.Param("id")
	if c.GetString(keyPlayer) != id {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	entries, err := s.ledger.History(c.Request.Context(), id, historyLimit)
	if err != nil {
		log.Error().Err(err).Str("player", id).Msg("Error loading transactions")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "history unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"transactions": entries})
}

func (s *Server) attackHistory(c *gin.Context) {
	id := c.Param("id")

	entries, err := s.attacks.Recent(c.Request.Context(), id, historyLimit)
	if err != nil {
		log.Error().Err(err).Str("player", id).Msg("Error loading attacks")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "history unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"attacks": entries})
}
