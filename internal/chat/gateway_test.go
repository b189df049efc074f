package chat_test

import (
	"context"
	"testing"

	"github.com/p-n-ai/lesson-bot/internal/chat"
)

func TestNewGateway(t *testing.T) {
	gw := chat.NewGateway()
	if gw == nil {
		t.Fatal("NewGateway() returned nil")
	}
}

func TestGateway_RegisterChannel(t *testing.T) {
	gw := chat.NewGateway()
	mock := &chat.MockChannel{}

	gw.Register("telegram", mock)

	if !gw.HasChannel("telegram") {
		t.Error("HasChannel(telegram) should be true after Register")
	}
}

func TestGateway_HasChannel_NotRegistered(t *testing.T) {
	gw := chat.NewGateway()

	if gw.HasChannel("whatsapp") {
		t.Error("HasChannel(whatsapp) should be false when not registered")
	}
}

func TestGateway_SendMessage(t *testing.T) {
	gw := chat.NewGateway()
	mock := &chat.MockChannel{}
	gw.Register("telegram", mock)

	err := gw.Send(context.Background(), chat.OutboundMessage{
		Channel:          "telegram",
		UserID:           "123",
		Text:             "안녕하세요!",
		SuggestedReplies: []string{"네", "아니요"},
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if len(mock.SentMessages) != 1 {
		t.Fatalf("SentMessages = %d, want 1", len(mock.SentMessages))
	}
	if got := mock.SentMessages[0].SuggestedReplies; len(got) != 2 || got[0] != "네" {
		t.Errorf("SuggestedReplies = %v, want them passed through", got)
	}
}

func TestGateway_SendMessage_UnknownChannel(t *testing.T) {
	gw := chat.NewGateway()

	err := gw.Send(context.Background(), chat.OutboundMessage{
		Channel: "unknown",
		UserID:  "123",
		Text:    "Hello!",
	})
	if err == nil {
		t.Error("Send() should error for unknown channel")
	}
}

func TestGateway_StartAndStopAll(t *testing.T) {
	gw := chat.NewGateway()
	mock := &chat.MockChannel{}
	gw.Register("mock", mock)

	if err := gw.StartAll(context.Background(), func(chat.InboundMessage) {}); err != nil {
		t.Fatalf("StartAll() error = %v", err)
	}
	gw.StopAll()
}
