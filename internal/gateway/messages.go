package gateway

import (
	"encoding/hex"
	"strconv"

	apperrors "casinogw/internal/errors"
	"casinogw/internal/proto"
	"casinogw/internal/session"
)

// Client message types.
const (
	msgRegister  = "register"
	msgDeposit   = "deposit"
	msgStartGame = "start_game"
	msgMove      = "move"
	msgBalance   = "balance"
	msgPing      = "ping"
	msgLogout    = "logout"

	msgSessionReady = "session_ready"
	msgRegistered   = "registered"
	msgPong         = "pong"
	msgError        = "error"
)

type inbound struct {
	Type           string `json:"type"`
	Name           string `json:"name,omitempty"`
	Amount         uint64 `json:"amount,omitempty"`
	GameType       string `json:"gameType,omitempty"`
	Bet            uint64 `json:"bet,omitempty"`
	Payload        string `json:"payload,omitempty"`
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
}

type outbound struct {
	Type        string         `json:"type"`
	RequestType string         `json:"requestType,omitempty"`
	SessionID   string         `json:"sessionId,omitempty"`
	PublicKey   string         `json:"publicKey,omitempty"`
	Nonce       *uint64        `json:"nonce,omitempty"`
	Balance     *uint64        `json:"balance,omitempty"`
	Game        *gameView      `json:"game,omitempty"`
	Code        apperrors.Code `json:"code,omitempty"`
	Message     string         `json:"message,omitempty"`
}

type gameView struct {
	// GameID is a decimal string; it does not fit a JSON number.
	GameID       string                 `json:"gameId"`
	GameType     string                 `json:"gameType"`
	MoveNumber   uint32                 `json:"moveNumber,omitempty"`
	State        any                    `json:"state,omitempty"`
	RawState     string                 `json:"rawState,omitempty"`
	Logs         []string               `json:"logs,omitempty"`
	Payout       int64                  `json:"payout,omitempty"`
	FinalChips   uint64                 `json:"finalChips,omitempty"`
	Balances     *proto.BalanceSnapshot `json:"balances,omitempty"`
	Deduplicated bool                   `json:"deduplicated,omitempty"`
}

func errorMessage(requestType string, err error) outbound {
	p := apperrors.ToPayload(err)
	return outbound{Type: msgError, RequestType: requestType, Code: p.Code, Message: p.Message}
}

func gameMessage(u *session.GameUpdate) outbound {
	v := &gameView{
		GameID:       strconv.FormatUint(u.GameID, 10),
		GameType:     u.GameType.String(),
		MoveNumber:   u.MoveNumber,
		Logs:         u.Logs,
		Payout:       u.Payout,
		FinalChips:   u.FinalChips,
		Balances:     u.Balances,
		Deduplicated: u.Deduplicated,
	}
	if len(u.RawState) > 0 {
		v.RawState = hex.EncodeToString(u.RawState)
	}
	if u.State != nil {
		v.State = u.State
	}
	return outbound{Type: u.Kind, Game: v}
}

func u64(v uint64) *uint64 {
	return &v
}
