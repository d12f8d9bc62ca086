package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-server/internal/config"
	"github.com/vovakirdan/wirechat-server/internal/core"
	"github.com/vovakirdan/wirechat-server/internal/proto"
	"github.com/vovakirdan/wirechat-server/internal/utils"
)

const (
	unregisterTimeout  = 5 * time.Second
	rejectWriteTimeout = time.Second
)

var errClientClosed = errors.New("client disconnected by hub")

// IdentityVerifier turns a bearer token into a user identity.
type IdentityVerifier interface {
	Verify(ctx context.Context, token string) (core.Identity, error)
}

// WSHandler upgrades HTTP connections and bridges them to core.Client.
type WSHandler struct {
	hub      *core.Hub
	verifier IdentityVerifier
	cfg      *config.Config
	log      *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, verifier IdentityVerifier, cfg *config.Config, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{hub: hub, verifier: verifier, cfg: cfg, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	// A token presented at upgrade is checked before the protocol switch so
	// the client gets a plain 401.
	var identity core.Identity
	token := tokenFromRequest(r)
	if token != "" {
		id, err := h.verifier.Verify(ctx, token)
		if err != nil {
			h.log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("ws auth rejected")
			writeJSONError(w, stdhttp.StatusUnauthorized, "invalid token")
			return
		}
		identity = id
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.cfg.AllowedOrigins,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	if token == "" {
		id, ok := h.handshake(ctx, conn)
		if !ok {
			return
		}
		identity = id
	}

	client := core.NewClient(utils.NewID(), h.cfg.ClientBuffer)
	if err := client.Authenticate(identity); err != nil {
		h.log.Error().Err(err).Str("client_id", client.ID).Msg("authenticate client")
		return
	}
	if err := h.hub.RegisterClient(ctx, client); err != nil {
		h.log.Warn().Err(err).Str("client_id", client.ID).Msg("register client")
		conn.Close(websocket.StatusTryAgainLater, "server unavailable")
		return
	}
	defer func() {
		unregisterCtx, cancel := context.WithTimeout(context.Background(), unregisterTimeout)
		defer cancel()
		if err := h.hub.UnregisterClient(unregisterCtx, client); err != nil && !errors.Is(err, core.ErrHubStopped) {
			h.log.Warn().Err(err).Str("client_id", client.ID).Msg("unregister client")
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if errors.Is(err, errClientClosed) {
		status = websocket.StatusGoingAway
		reason = "server shutting down"
		err = nil
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("client_id", client.ID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

type handshakeRead struct {
	data []byte
	err  error
}

// handshake waits up to HandshakeTimeout for a hello frame carrying a token.
// The read runs on ctx so the connection is still usable to report a timeout.
func (h *WSHandler) handshake(ctx context.Context, conn *websocket.Conn) (core.Identity, bool) {
	readCh := make(chan handshakeRead, 1)
	go func() {
		_, data, err := conn.Read(ctx)
		readCh <- handshakeRead{data: data, err: err}
	}()

	timer := time.NewTimer(h.cfg.HandshakeTimeout)
	defer timer.Stop()

	var res handshakeRead
	select {
	case res = <-readCh:
	case <-timer.C:
		h.log.Debug().Dur("timeout", h.cfg.HandshakeTimeout).Msg("ws handshake timed out")
		return h.reject(conn, "authentication timeout")
	}
	if res.err != nil {
		h.log.Debug().Err(res.err).Msg("ws handshake read")
		return core.Identity{}, false
	}

	var inbound proto.Inbound
	if err := json.Unmarshal(res.data, &inbound); err != nil || inbound.Type != proto.InboundTypeHello {
		return h.reject(conn, "authentication required")
	}

	var hello proto.HelloData
	if err := json.Unmarshal(inbound.Data, &hello); err != nil || hello.Token == "" {
		return h.reject(conn, "authentication required")
	}

	identity, err := h.verifier.Verify(ctx, hello.Token)
	if err != nil {
		h.log.Debug().Err(err).Msg("ws hello rejected")
		return h.reject(conn, "invalid token")
	}
	return identity, true
}

// reject reports an unauthorized error and closes with policy violation.
func (h *WSHandler) reject(conn *websocket.Conn, msg string) (core.Identity, bool) {
	wctx, cancel := context.WithTimeout(context.Background(), rejectWriteTimeout)
	defer cancel()

	if err := wsjson.Write(wctx, conn, errorOutbound(core.ErrUnauthorized.Code, msg)); err != nil {
		h.log.Debug().Err(err).Msg("write ws reject")
	}
	conn.Close(websocket.StatusPolicyViolation, msg)
	return core.Identity{}, false
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	limiter := newRateLimiter(h.cfg.RateLimitPerMinute)
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		var inbound proto.Inbound
		if err := json.Unmarshal(data, &inbound); err != nil {
			h.log.Debug().Err(err).Str("client_id", client.ID).Msg("malformed ws frame")
			if writeErr := wsjson.Write(ctx, conn, errorOutbound(core.ErrCodeInvalidEvent, "malformed frame")); writeErr != nil {
				return writeErr
			}
			continue
		}

		if !limiter.allow() {
			h.log.Warn().Str("client_id", client.ID).Msg("ws client rate limited")
			if err := wsjson.Write(ctx, conn, errorOutbound(core.ErrCodeRateLimited, "too many messages")); err != nil {
				return err
			}
			continue
		}

		cmd, err := inboundToCommand(inbound)
		if err != nil {
			h.log.Debug().Err(err).Str("client_id", client.ID).Msg("failed to map inbound")
			if writeErr := wsjson.Write(ctx, conn, errorOutbound(core.ErrCodeInvalidEvent, err.Error())); writeErr != nil {
				return writeErr
			}
			continue
		}

		select {
		case client.Commands <- cmd:
		case <-client.Done():
			return errClientClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case event := <-client.Events:
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				h.log.Error().Err(err).Str("client_id", client.ID).Msg("write ws event")
				return err
			}
		case <-client.Done():
			return errClientClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// tokenFromRequest reads the token from the query string or the Authorization header.
func tokenFromRequest(r *stdhttp.Request) string {
	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		return token
	}
	token, _ := bearerToken(r.Header.Get("Authorization"))
	return token
}

func writeJSONError(w stdhttp.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: msg})
}
