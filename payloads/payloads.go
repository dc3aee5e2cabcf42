package payloads

import "github.com/google/uuid"

// Command types accepted on the websocket.
const (
	TypePing          = "PING"
	TypeMineStart     = "MINE_START"
	TypeMineStop      = "MINE_STOP"
	TypePlunder       = "PLUNDER"
	TypeAttack        = "ATTACK"
	TypeResolveAttack = "RESOLVE_ATTACK"
	TypeDaily         = "DAILY"
	TypeTransfer      = "TRANSFER"
	TypeBalance       = "BALANCE"
	TypeLeaderboard   = "LEADERBOARD"
	TypeRankings      = "RANKINGS"
)

type Payload struct {
	Type string `json:"type"`
}

type MineStartPayload struct {
	Type     string `json:"type"`
	Location string `json:"location"`
}

type TargetPayload struct {
	Type   string `json:"type"`
	Target string `json:"target"`
}

type ResolveAttackPayload struct {
	Type  string    `json:"type"`
	Token uuid.UUID `json:"token"`
}

type TransferPayload struct {
	Type   string `json:"type"`
	Target string `json:"target"`
	Amount int64  `json:"amount"`
}

type LeaderboardPayload struct {
	Type  string `json:"type"`
	Limit int    `json:"limit"`
}

type Response struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// IncomingAttack is pushed to a defender so they can resolve the attack.
type IncomingAttack struct {
	Type       string    `json:"type"`
	Token      uuid.UUID `json:"token"`
	AttackerID string    `json:"attacker"`
	Attack     int       `json:"attack"`
	Weapon     string    `json:"weapon"`
	Expires    int64     `json:"expires"`
}

type Error struct {
	Type    string `default:"ERROR" json:"type"`
	Class   string `json:"class"`
	Message string `json:"message"`
}

func NewError(class string, message string) Error {
	return Error{Type: "ERROR", Class: class, Message: message}
}
