package http

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/vovakirdan/wirechat-server/internal/core"
	"github.com/vovakirdan/wirechat-server/internal/proto"
)

func TestInboundToCommand(t *testing.T) {
	cmd, err := inboundToCommand(proto.Inbound{
		Type: proto.InboundTypeSendUserMessage,
		Data: json.RawMessage(`{"receiver":"u2","message":"hi"}`),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	msg, ok := cmd.(core.SendDirectMessage)
	if !ok {
		t.Fatalf("unexpected command type %T", cmd)
	}
	if msg.Receiver != "u2" || msg.Message != "hi" {
		t.Fatalf("unexpected command: %+v", msg)
	}

	cmd, err = inboundToCommand(proto.Inbound{Type: proto.InboundTypeGetGroups})
	if err != nil {
		t.Fatalf("getGroups without data: %v", err)
	}
	if _, ok := cmd.(core.GetGroups); !ok {
		t.Fatalf("unexpected command type %T", cmd)
	}

	if _, err := inboundToCommand(proto.Inbound{Type: "nope"}); !errors.Is(err, errUnknownType) {
		t.Fatalf("expected errUnknownType, got %v", err)
	}

	if _, err := inboundToCommand(proto.Inbound{
		Type: proto.InboundTypeMarkAsRead,
		Data: json.RawMessage(`{"messageId":42}`),
	}); err == nil {
		t.Fatal("expected decode error for wrong field type")
	}
}

func TestOutboundReadReceipts(t *testing.T) {
	direct := outboundFromEvent(&core.Event{
		Kind:    core.EventMessageRead,
		Receipt: &core.ReadReceipt{MessageID: "m1", Read: true},
	})
	if direct.Event != "messageRead" {
		t.Fatalf("unexpected event name %q", direct.Event)
	}
	if got, ok := direct.Data.(proto.DirectRead); !ok || got.MessageID != "m1" || !got.Read {
		t.Fatalf("unexpected direct receipt: %#v", direct.Data)
	}

	group := outboundFromEvent(&core.Event{
		Kind:    core.EventMessageRead,
		Receipt: &core.ReadReceipt{MessageID: "m2", IsGroup: true, ReadBy: []string{"u1", "u2"}},
	})
	if got, ok := group.Data.(proto.GroupRead); !ok || len(got.ReadBy) != 2 {
		t.Fatalf("unexpected group receipt: %#v", group.Data)
	}
}

func TestOutboundEmptyListsEncodeAsArrays(t *testing.T) {
	for _, kind := range []core.EventKind{core.EventGroupList, core.EventChatHistory, core.EventGroupChatHistory, core.EventUserStatus} {
		raw, err := json.Marshal(outboundFromEvent(&core.Event{Kind: kind}))
		if err != nil {
			t.Fatalf("marshal %s: %v", kind, err)
		}
		var out struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("unmarshal %s: %v", kind, err)
		}
		if string(out.Data) != "[]" {
			t.Fatalf("%s: expected [], got %s", kind, out.Data)
		}
	}
}

func TestOutboundErrorCarriesDetail(t *testing.T) {
	out := outboundFromEvent(&core.Event{
		Kind:  core.EventError,
		Error: &core.CoreError{Code: core.ErrCodePersistence, Message: "save message failed", Detail: "disk full"},
	})
	if out.Type != proto.OutboundTypeError || out.Error == nil {
		t.Fatalf("unexpected outbound: %+v", out)
	}
	if out.Error.Code != core.ErrCodePersistence || out.Error.Detail != "disk full" {
		t.Fatalf("unexpected error payload: %+v", out.Error)
	}
}
