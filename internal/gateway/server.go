package gateway

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/websocket"

	"casinogw/internal/debuglog"
	apperrors "casinogw/internal/errors"
	"casinogw/internal/gamestate"
	"casinogw/internal/metrics"
	"casinogw/internal/network"
	"casinogw/internal/session"
)

const (
	maxClientMessage = 64 << 10
	healthTimeout    = 2 * time.Second
)

// Coordinator is the session surface the socket handler drives.
// *session.Coordinator satisfies it.
type Coordinator interface {
	CreateSession(ctx context.Context, conn session.Conn, opts session.CreateOptions, clientIP string) (*session.Session, error)
	InitializePlayer(ctx context.Context, s *session.Session) error
	DepositChips(ctx context.Context, s *session.Session, amount uint64) (uint64, error)
	StartGame(ctx context.Context, s *session.Session, game gamestate.GameType, bet uint64, idemKey string) (*session.GameUpdate, error)
	MakeMove(ctx context.Context, s *session.Session, payload []byte, idemKey string) (*session.GameUpdate, error)
	RefreshBalance(ctx context.Context, s *session.Session) (network.Account, error)
	DestroySession(id string) bool
	Touch(s *session.Session)
	Count() int
}

// HealthChecker reports ledger reachability. *network.Client satisfies it.
type HealthChecker interface {
	HealthCheck(ctx context.Context) bool
}

type Options struct {
	MaxConnsPerIP int
}

// Server serves the client websocket and the operational endpoints.
type Server struct {
	coord   Coordinator
	ledger  HealthChecker
	metrics *metrics.Metrics
	limiter *connLimiter
}

func New(coord Coordinator, ledger HealthChecker, m *metrics.Metrics, opts Options) *Server {
	return &Server{
		coord:   coord,
		ledger:  ledger,
		metrics: m,
		limiter: newConnLimiter(opts.MaxConnsPerIP),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /ws", websocket.Server{Handler: s.serveConn})
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	return mux
}

func clientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) send(ws *websocket.Conn, msg outbound) error {
	if msg.Type == msgError {
		s.metrics.IncDropByCode(string(msg.Code))
	}
	return websocket.JSON.Send(ws, msg)
}

func (s *Server) serveConn(ws *websocket.Conn) {
	defer ws.Close()
	ws.MaxPayloadBytes = maxClientMessage
	req := ws.Request()
	ip := clientIP(req)
	ctx := context.Background()
	if req != nil {
		ctx = req.Context()
	}

	if !s.limiter.acquire(ip) {
		_ = s.send(ws, errorMessage("", apperrors.New(apperrors.CodeRateLimited, "too many connections")))
		return
	}
	s.metrics.SetConns(int64(s.limiter.active()))
	defer func() {
		s.limiter.release(ip)
		s.metrics.SetConns(int64(s.limiter.active()))
	}()

	sess, err := s.coord.CreateSession(ctx, ws, session.CreateOptions{}, ip)
	if err != nil {
		_ = s.send(ws, errorMessage("", err))
		return
	}
	defer s.coord.DestroySession(sess.ID)
	if err := s.send(ws, outbound{Type: msgSessionReady, SessionID: sess.ID, PublicKey: sess.PublicKeyHex}); err != nil {
		return
	}

	for {
		var in inbound
		if err := websocket.JSON.Receive(ws, &in); err != nil {
			if !errors.Is(err, io.EOF) {
				var syn *json.SyntaxError
				if errors.As(err, &syn) {
					if s.send(ws, errorMessage("", apperrors.New(apperrors.CodeInvalidRequest, "malformed message"))) == nil {
						continue
					}
				}
				debuglog.Debugf("client read ended session=%s: %v", sess.ID, err)
			}
			return
		}
		s.coord.Touch(sess)
		if in.Type == msgLogout {
			return
		}
		if err := s.send(ws, s.dispatch(ctx, sess, in)); err != nil {
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, sess *session.Session, in inbound) outbound {
	switch in.Type {
	case msgPing:
		return outbound{Type: msgPong}
	case msgRegister:
		if sess.Registered() {
			return errorMessage(in.Type, apperrors.New(apperrors.CodeInvalidRequest, "already registered"))
		}
		if in.Name != "" {
			sess.Name = in.Name
		}
		if err := s.coord.InitializePlayer(ctx, sess); err != nil {
			return errorMessage(in.Type, err)
		}
		return outbound{Type: msgRegistered, PublicKey: sess.PublicKeyHex, Balance: u64(sess.Balance())}
	case msgDeposit:
		chips, err := s.coord.DepositChips(ctx, sess, in.Amount)
		if err != nil {
			return errorMessage(in.Type, err)
		}
		return outbound{Type: msgBalance, Balance: u64(chips)}
	case msgBalance:
		acct, err := s.coord.RefreshBalance(ctx, sess)
		if err != nil {
			return errorMessage(in.Type, err)
		}
		return outbound{Type: msgBalance, Nonce: u64(acct.Nonce), Balance: u64(acct.Balance)}
	case msgStartGame:
		game, ok := gamestate.ParseGameType(in.GameType)
		if !ok {
			return errorMessage(in.Type, apperrors.New(apperrors.CodeInvalidRequest, "unknown game type"))
		}
		u, err := s.coord.StartGame(ctx, sess, game, in.Bet, in.IdempotencyKey)
		if err != nil {
			return errorMessage(in.Type, err)
		}
		return gameMessage(u)
	case msgMove:
		payload, err := hex.DecodeString(in.Payload)
		if err != nil || len(payload) == 0 {
			return errorMessage(in.Type, apperrors.New(apperrors.CodeInvalidRequest, "payload must be non-empty hex"))
		}
		u, err := s.coord.MakeMove(ctx, sess, payload, in.IdempotencyKey)
		if err != nil {
			return errorMessage(in.Type, err)
		}
		return gameMessage(u)
	}
	return errorMessage(in.Type, apperrors.New(apperrors.CodeInvalidRequest, "unknown message type"))
}

type healthResponse struct {
	Status   string `json:"status"`
	Ledger   bool   `json:"ledger"`
	Sessions int    `json:"sessions"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()
	resp := healthResponse{Status: "ok", Ledger: s.ledger.HealthCheck(ctx), Sessions: s.coord.Count()}
	code := http.StatusOK
	if !resp.Ledger {
		resp.Status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
