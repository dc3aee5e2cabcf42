// Package server exposes the game over gin: a small read API and a
// websocket that carries player commands.
package server

import (
	"context"
	"net/http"
	"sync"

	"github.com/Vintral/culling-realm/game/actions"
	"github.com/Vintral/culling-realm/game/combat"
	"github.com/Vintral/culling-realm/game/limits"
	"github.com/Vintral/culling-realm/game/rankings"
	"github.com/Vintral/culling-realm/models"
	"github.com/Vintral/culling-realm/utils"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
	historyLimit            = 25
)

type LedgerReader interface {
	Leaderboard(ctx context.Context, limit int) ([]models.Account, error)
	History(ctx context.Context, playerID string, limit int) ([]models.Transaction, error)
}

type AttackHistory interface {
	Recent(ctx context.Context, playerID string, limit int) ([]models.AttackLog, error)
}

type Deps struct {
	Actions  *actions.Service
	Combat   *combat.Resolver
	Ledger   LedgerReader
	Attacks  AttackHistory
	Rankings *rankings.Rankings
	Limiter  *limits.Limiter
}

type Server struct {
	cfg      *utils.Config
	actions  *actions.Service
	combat   *combat.Resolver
	ledger   LedgerReader
	attacks  AttackHistory
	rankings *rankings.Rankings
	limiter  *limits.Limiter
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*client
}

func New(cfg *utils.Config, deps Deps) *Server {
	return &Server{
		cfg:      cfg,
		actions:  deps.Actions,
		combat:   deps.Combat,
		ledger:   deps.Ledger,
		attacks:  deps.Attacks,
		rankings: deps.Rankings,
		limiter:  deps.Limiter,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[string]*client),
	}
}

func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", s.health)

	api := router.Group("/api")
	{
		api.GET("/leaderboard", s.leaderboard)

		players := api.Group("/players")
		players.Use(s.authMiddleware())
		{
			players.GET("/:id", s.player)
			players.GET("/:id/transactions", s.transactions)
			players.GET("/:id/attacks", s.attackHistory)
		}
	}

	router.GET("/ws", s.socket)
	return router
}

// Handler wraps the router with HTTP tracing.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.Router(), "realm-game")
}

// Close drops every websocket connection.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, c := range s.clients {
		c.conn.Close()
		delete(s.clients, id)
	}
	log.Info().Msg("Closed websocket clients")
}
