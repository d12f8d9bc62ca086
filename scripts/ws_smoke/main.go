package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/wirechat-server/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

type frame struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func run() error {
	base := flag.String("base", "http://localhost:8080", "server base URL")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 10*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	sender, err := authenticate(ctx, *base, "smoke_sender")
	if err != nil {
		return err
	}
	receiver, err := authenticate(ctx, *base, "smoke_receiver")
	if err != nil {
		return err
	}

	senderConn, err := dial(ctx, *base, sender.Token)
	if err != nil {
		return err
	}
	defer senderConn.Close(websocket.StatusNormalClosure, "bye")

	receiverConn, err := dial(ctx, *base, receiver.Token)
	if err != nil {
		return err
	}
	defer receiverConn.Close(websocket.StatusNormalClosure, "bye")

	// both sides are registered once they see a presence snapshot
	if _, err := waitFor(ctx, senderConn, "userStatus"); err != nil {
		return err
	}
	if _, err := waitFor(ctx, receiverConn, "userStatus"); err != nil {
		return err
	}

	payload, err := json.Marshal(map[string]string{"receiver": receiver.User.ID, "message": *text})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := wsjson.Write(ctx, senderConn, proto.Inbound{Type: proto.InboundTypeSendUserMessage, Data: payload}); err != nil {
		return fmt.Errorf("send message: %w", err)
	}

	ack, err := waitFor(ctx, senderConn, "messageSent")
	if err != nil {
		return err
	}
	fmt.Printf("sender ack: %s\n", ack.Data)

	got, err := waitFor(ctx, receiverConn, "receiveMessage")
	if err != nil {
		return err
	}
	fmt.Printf("receiver got: %s\n", got.Data)
	return nil
}

// authenticate registers the user, falling back to login if it already exists.
func authenticate(ctx context.Context, base, username string) (*proto.AuthResponse, error) {
	email := username + "@smoke.local"
	password := "smoke-password"

	resp, err := postJSON(ctx, base+"/api/auth/register", map[string]string{
		"username": username,
		"email":    email,
		"password": password,
	})
	if err != nil {
		return nil, err
	}
	if resp == nil {
		resp, err = postJSON(ctx, base+"/api/auth/login", map[string]string{
			"email":    email,
			"password": password,
		})
		if err != nil {
			return nil, err
		}
		if resp == nil {
			return nil, fmt.Errorf("login %s: rejected", username)
		}
	}
	return resp, nil
}

// postJSON returns nil without error on 409 and 401 so callers can fall back.
func postJSON(ctx context.Context, endpoint string, body any) (*proto.AuthResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
	case http.StatusConflict, http.StatusUnauthorized:
		return nil, nil
	default:
		return nil, fmt.Errorf("post %s: status %d", endpoint, resp.StatusCode)
	}

	var out proto.AuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", endpoint, err)
	}
	return &out, nil
}

func dial(ctx context.Context, base, token string) (*websocket.Conn, error) {
	wsBase := strings.Replace(base, "http", "ws", 1)
	conn, _, err := websocket.Dial(ctx, wsBase+"/ws?token="+url.QueryEscape(token), nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	return conn, nil
}

func waitFor(ctx context.Context, conn *websocket.Conn, event string) (frame, error) {
	for {
		var f frame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			return f, fmt.Errorf("waiting for %s: %w", event, err)
		}
		if f.Type == proto.OutboundTypeError && f.Error != nil {
			return f, fmt.Errorf("server error %s: %s", f.Error.Code, f.Error.Message)
		}
		if f.Event == event {
			return f, nil
		}
	}
}
