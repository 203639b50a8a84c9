package pprofutil

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"strings"
	"time"

	"casinogw/internal/debuglog"
)

const DefaultAddr = "127.0.0.1:6060"

type Options struct {
	Enabled     bool
	Addr        string
	AllowPublic bool
}

// Server is a running profiling listener. A nil *Server is valid and inert.
type Server struct {
	srv  *http.Server
	addr string
}

// Start binds the profiling endpoints on their own mux. It returns nil, nil
// when profiling is disabled.
func Start(opts Options) (*Server, error) {
	if !opts.Enabled {
		return nil, nil
	}
	addr := strings.TrimSpace(opts.Addr)
	if addr == "" {
		addr = DefaultAddr
	}
	if !opts.AllowPublic && !loopbackOnly(addr) {
		return nil, fmt.Errorf("pprof: refusing non-loopback bind %s", addr)
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("pprof: listen: %w", err)
	}
	s := &Server{
		srv:  &http.Server{Handler: Handler(), ReadHeaderTimeout: 5 * time.Second},
		addr: ln.Addr().String(),
	}
	debuglog.Logf("pprof listening on http://%s/debug/pprof/", s.addr)
	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			debuglog.Logf("pprof serve: %v", err)
		}
	}()
	return s, nil
}

// Handler serves the runtime profiles under /debug/pprof/.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return mux
}

func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

func (s *Server) Close(ctx context.Context) error {
	if s == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func loopbackOnly(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if strings.EqualFold(strings.TrimSpace(host), "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
