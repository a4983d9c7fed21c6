package http

import (
	"context"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"quizapp-service/internal/app"
	"quizapp-service/internal/domain"
)

func TestScoreboardFeedPushesResults(t *testing.T) {
	f := newFixture(t)

	u := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws/scoreboard"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Expect the current (empty) board first.
	first := readBoard(t, conn)
	if len(first.Entries) != 0 {
		t.Fatalf("expected empty board, got %+v", first.Entries)
	}

	ctx := context.Background()
	user, err := f.auth.Register(ctx, "sid-1", app.SignUp{Username: "ivy", Email: "ivy@example.com", Password: "secret123"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	v := app.Visit{SessionID: "sid-1", UserID: user.ID}
	for step := 1; step <= domain.TotalSteps; step++ {
		fields := map[string]string{}
		for q := 1; q <= domain.QuestionsPerPage; q++ {
			fields["answer_"+strconv.Itoa(q)] = answerFor(step, q)
		}
		if _, err := f.flow.Submit(ctx, v, step, fields, ""); err != nil {
			t.Fatalf("submit step %d: %v", step, err)
		}
	}
	if _, err := f.flow.Results(ctx, v); err != nil {
		t.Fatalf("results: %v", err)
	}

	board := readBoard(t, conn)
	if len(board.Entries) != 1 || board.Entries[0].Username != "ivy" || board.Entries[0].Score != 100 {
		t.Fatalf("unexpected pushed board %+v", board.Entries)
	}

	if err := conn.WriteJSON(map[string]string{"type": "ping"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	if typ := readType(t, conn); typ != "pong" {
		t.Fatalf("expected pong, got %s", typ)
	}
}

func TestScoreboardFeedUnsubscribesOnClose(t *testing.T) {
	f := newFixture(t)
	u := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws/scoreboard"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	readBoard(t, conn)
	if n := f.scoreboard.Subscribers(); n != 1 {
		t.Fatalf("expected 1 subscriber, got %d", n)
	}
	conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for f.scoreboard.Subscribers() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("subscriber not released after close")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func readBoard(t *testing.T, conn *websocket.Conn) domain.Scoreboard {
	t.Helper()
	var msg outboundMessage[domain.Scoreboard]
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if msg.Type != "scoreboard" {
		t.Fatalf("expected scoreboard message, got %s", msg.Type)
	}
	return msg.Payload
}

func readType(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	var msg inboundMessage
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	return msg.Type
}
