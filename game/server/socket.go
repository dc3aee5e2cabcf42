package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/Vintral/culling-realm/payloads"
	"github.com/Vintral/culling-realm/utils"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

var (
	errBadPayload       = errors.New("server: malformed payload")
	errUnknownCommand   = errors.New("server: unknown command")
	errRankingsDisabled = errors.New("server: rankings disabled")
)

type client struct {
	mu       sync.Mutex
	conn     *websocket.Conn
	playerID string
}

func (c *client) send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.conn.WriteJSON(v)
}

func (s *Server) register(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if previous, ok := s.clients[c.playerID]; ok {
		previous.conn.Close()
	}
	s.clients[c.playerID] = c
}

func (s *Server) unregister(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.clients[c.playerID]; ok && current == c {
		delete(s.clients, c.playerID)
	}
}

// notify pushes a message to a connected player. Offline players miss it.
func (s *Server) notify(playerID string, v any) {
	s.mu.RLock()
	c, ok := s.clients[playerID]
	s.mu.RUnlock()
	if !ok {
		return
	}

	if err := c.send(v); err != nil {
		log.Warn().Err(err).Str("player", playerID).Msg("Error notifying player")
	}
}

func (s *Server) socket(ctx *gin.Context) {
	playerID, err := playerFromToken(s.cfg.JWTSecret, requestToken(ctx))
	if err != nil {
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	conn, err := s.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		log.Warn().Err(err).Str("player", playerID).Msg("Websocket upgrade failed")
		return
	}

	c := &client{conn: conn, playerID: playerID}
	s.register(c)
	defer func() {
		s.unregister(c)
		conn.Close()
	}()

	log.Info().Str("player", playerID).Msg("Player connected")
	s.listen(ctx.Request.Context(), c)
}

func (s *Server) listen(base context.Context, c *client) {
	for {
		_, messageContent, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("player", c.playerID).Msg("Unexpected close")
			}
			return
		}

		var payload payloads.Payload
		if err := json.Unmarshal(messageContent, &payload); err != nil {
			c.send(payloads.NewError("payload", "malformed"))
			continue
		}

		ctx := context.WithValue(base, utils.KeyPlayer{}, c.playerID)

		if payload.Type == payloads.TypePing {
			c.send(payloads.Response{Type: "PONG"})
			continue
		}

		class := strings.ToLower(payload.Type)
		if !s.limiter.Allow(c.playerID) {
			c.send(payloads.NewError(class, "rate-limited"))
			continue
		}

		result, err := s.dispatch(ctx, c.playerID, payload.Type, messageContent)
		if err != nil {
			c.send(s.errorPayload(ctx, class, err))
			continue
		}
		c.send(payloads.Response{Type: payload.Type + "_SUCCESS", Data: result})
	}
}

func (s *Server) errorPayload(ctx context.Context, class string, err error) payloads.Error {
	switch {
	case errors.Is(err, errBadPayload):
		return payloads.NewError(class, "malformed")
	case errors.Is(err, errUnknownCommand):
		return payloads.NewError(class, "unknown-command")
	case errors.Is(err, errRankingsDisabled):
		return payloads.NewError(class, "unavailable")
	}

	code, expected := errorCode(err)
	if !expected {
		log.Error().Err(err).Str("player", utils.PlayerFromContext(ctx)).Str("command", class).Msg("Command failed")
	}
	return payloads.NewError(class, code)
}

func decode(raw []byte, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return errBadPayload
	}
	return nil
}

func (s *Server) dispatch(base context.Context, playerID string, command string, raw []byte) (any, error) {
	ctx, span := utils.StartSpan(base, "dispatch")
	defer span.End()

	span.SetAttributes(
		attribute.String("player", playerID),
		attribute.String("command", command),
	)

	switch command {
	case payloads.TypeMineStart:
		var payload payloads.MineStartPayload
		if err := decode(raw, &payload); err != nil {
			return nil, err
		}
		return s.actions.StartMining(ctx, playerID, payload.Location == s.cfg.MiningLocation)

	case payloads.TypeMineStop:
		return s.actions.StopMining(ctx, playerID)

	case payloads.TypePlunder:
		var payload payloads.TargetPayload
		if err := decode(raw, &payload); err != nil {
			return nil, err
		}
		result, err := s.actions.Plunder(ctx, playerID, payload.Target)
		if err == nil {
			s.notify(payload.Target, payloads.Response{Type: "PLUNDERED", Data: map[string]any{
				"attacker": playerID,
				"stolen":   result.Stolen,
			}})
		}
		return result, err

	case payloads.TypeAttack:
		var payload payloads.TargetPayload
		if err := decode(raw, &payload); err != nil {
			return nil, err
		}
		result, err := s.combat.Initiate(ctx, playerID, payload.Target)
		if err == nil {
			s.notify(payload.Target, payloads.IncomingAttack{
				Type:       "ATTACK_INCOMING",
				Token:      result.Token,
				AttackerID: playerID,
				Attack:     result.AttackPower,
				Weapon:     result.WeaponName,
				Expires:    result.ExpiresAt.Unix(),
			})
		}
		return result, err

	case payloads.TypeResolveAttack:
		var payload payloads.ResolveAttackPayload
		if err := decode(raw, &payload); err != nil {
			return nil, err
		}
		return s.combat.Resolve(ctx, payload.Token, playerID)

	case payloads.TypeDaily:
		return s.actions.ClaimDaily(ctx, playerID)

	case payloads.TypeTransfer:
		var payload payloads.TransferPayload
		if err := decode(raw, &payload); err != nil {
			return nil, err
		}
		return s.actions.Transfer(ctx, playerID, payload.Target, payload.Amount)

	case payloads.TypeBalance:
		return s.actions.Balance(ctx, playerID)

	case payloads.TypeLeaderboard:
		var payload payloads.LeaderboardPayload
		if err := decode(raw, &payload); err != nil {
			return nil, err
		}
		return s.ledger.Leaderboard(ctx, clampLimit(payload.Limit))

	case payloads.TypeRankings:
		if s.rankings == nil {
			return nil, errRankingsDisabled
		}
		return s.rankings.Retrieve(ctx, playerID, defaultLeaderboardLimit)
	}

	log.Warn().Str("command", command).Msg("Unhandled Command")
	return nil, errUnknownCommand
}
