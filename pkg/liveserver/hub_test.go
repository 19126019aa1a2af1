package liveserver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewHub verifies hub creation
func TestNewHub(t *testing.T) {
	hub := NewHub(nil)

	assert.NotNil(t, hub)
	assert.NotNil(t, hub.clients)
	assert.NotNil(t, hub.broadcast)
	assert.NotNil(t, hub.register)
	assert.NotNil(t, hub.unregister)
}

// TestHubRegisterClient verifies client registration
func TestHubRegisterClient(t *testing.T) {
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go hub.Run(ctx)

	client := NewClient("test-1")
	hub.Register(client)

	// Wait for registration
	time.Sleep(10 * time.Millisecond)

	assert.Equal(t, 1, hub.ClientCount())
}

// TestHubUnregisterClient verifies client unregistration
func TestHubUnregisterClient(t *testing.T) {
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go hub.Run(ctx)

	client := NewClient("test-1")
	hub.Register(client)
	time.Sleep(10 * time.Millisecond)

	hub.Unregister(client)
	time.Sleep(10 * time.Millisecond)

	assert.Equal(t, 0, hub.ClientCount())
}

// TestHubBroadcast verifies message broadcasting
func TestHubBroadcast(t *testing.T) {
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go hub.Run(ctx)

	client := NewClient("test-1")
	hub.Register(client)
	time.Sleep(10 * time.Millisecond)

	msg := Message{Type: TypeFill, Data: map[string]interface{}{"price": "150.25"}}
	hub.Broadcast(msg)

	select {
	case received := <-client.GetSendChan():
		assert.Equal(t, msg.Type, received.Type)
		assert.Equal(t, msg.Data, received.Data)
	case <-time.After(time.Second):
		t.Fatal("client never received the broadcast")
	}
}

// TestHubBroadcastToMultipleClients verifies fan-out
func TestHubBroadcastToMultipleClients(t *testing.T) {
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go hub.Run(ctx)

	clients := make([]*Client, 3)
	for i := range clients {
		clients[i] = NewClient("test")
		hub.Register(clients[i])
	}
	time.Sleep(10 * time.Millisecond)
	require.Equal(t, 3, hub.ClientCount())

	hub.Broadcast(Message{Type: TypeHalt, Data: "ledger error"})

	for _, client := range clients {
		select {
		case received := <-client.GetSendChan():
			assert.Equal(t, TypeHalt, received.Type)
		case <-time.After(time.Second):
			t.Fatal("a client missed the broadcast")
		}
	}
}

// TestClientSendAfterClose verifies closed clients refuse messages
func TestClientSendAfterClose(t *testing.T) {
	client := NewClient("test-1")
	client.Close()

	ok := client.Send(Message{Type: TypeSnapshot})
	assert.False(t, ok)
}

// TestHubShutdownClosesClients verifies shutdown cleanup
func TestHubShutdownClosesClients(t *testing.T) {
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())

	go hub.Run(ctx)

	client := NewClient("test-1")
	hub.Register(client)
	time.Sleep(10 * time.Millisecond)

	cancel()
	time.Sleep(10 * time.Millisecond)

	assert.Equal(t, 0, hub.ClientCount())
	// The send channel was closed during shutdown.
	_, open := <-client.GetSendChan()
	assert.False(t, open)
}
