package dispatch_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/sketch/internal/config"
	"github.com/cory-johannsen/sketch/internal/dispatch"
	"github.com/cory-johannsen/sketch/internal/game/registry"
	"github.com/cory-johannsen/sketch/internal/game/room"
	"github.com/cory-johannsen/sketch/internal/game/words"
	"github.com/cory-johannsen/sketch/internal/protocol"
	"github.com/cory-johannsen/sketch/internal/session"
	"github.com/cory-johannsen/sketch/internal/testutil"
	"github.com/cory-johannsen/sketch/internal/transport/tcp"
)

func startServer(t *testing.T) string {
	t.Helper()
	reg := registry.New(room.Options{}, func() room.WordSource {
		return words.NewSource(nil, time.Now().UnixNano())
	})
	d := dispatch.New(reg, session.Options{}, zaptest.NewLogger(t))
	acc := tcp.NewAcceptor(config.TCPConfig{
		Host:          "127.0.0.1",
		Port:          0,
		ReadTimeout:   10 * time.Second,
		WriteTimeout:  5 * time.Second,
		MaxFrameBytes: 65536,
	}, d, zaptest.NewLogger(t))

	go func() {
		_ = acc.ListenAndServe()
	}()
	t.Cleanup(acc.Stop)

	deadline := time.After(2 * time.Second)
	for {
		if acc.IsRunning() && acc.Addr() != "" {
			return acc.Addr()
		}
		select {
		case <-deadline:
			t.Fatal("acceptor did not start in time")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func TestFullGameOverTCP(t *testing.T) {
	addr := startServer(t)

	alice := testutil.NewGameClient(t, addr)
	bob := testutil.NewGameClient(t, addr)

	alice.Send(protocol.TypeConnect, map[string]any{"username": "alice", "version": "1.0"})
	resp := alice.WaitFor(protocol.TypeConnectResponse, 2*time.Second)
	require.True(t, resp.Bool("success"))

	bob.Send(protocol.TypeConnect, map[string]any{"username": "bob", "version": "1.0"})
	bob.WaitFor(protocol.TypeConnectResponse, 2*time.Second)

	alice.Send(protocol.TypeJoinRoom, map[string]any{"room_id": "game"})
	alice.WaitFor(protocol.TypeAck, 2*time.Second)
	bob.Send(protocol.TypeJoinRoom, map[string]any{"room_id": "game"})
	bob.WaitFor(protocol.TypeAck, 2*time.Second)

	alice.Send(protocol.TypeStartGame, nil)

	var aliceView, bobView *protocol.Message
	for aliceView == nil || aliceView.Text("status") != "playing" {
		aliceView = alice.WaitFor(protocol.TypeRoomUpdate, 2*time.Second)
	}
	for bobView == nil || bobView.Text("status") != "playing" {
		bobView = bob.WaitFor(protocol.TypeRoomUpdate, 2*time.Second)
	}

	// Exactly one of the two carries the secret word.
	aliceWord := aliceView.Text("current_word")
	bobWord := bobView.Text("current_word")
	assert.True(t, (aliceWord == "") != (bobWord == ""),
		"exactly one member must see the word, got %q and %q", aliceWord, bobWord)

	// Unicode chat survives the wire verbatim.
	speaker, listener := alice, bob
	if aliceWord != "" {
		speaker, listener = bob, alice
	}
	speaker.Send(protocol.TypeChat, map[string]any{"message": "你好世界😀"})
	chat := listener.WaitFor(protocol.TypeChat, 2*time.Second)
	assert.Equal(t, "你好世界😀", chat.Text("text"))
}
