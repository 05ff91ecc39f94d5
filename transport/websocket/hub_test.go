package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/studyduel/studyduel/quiz/engine"
)

func newTestHub() *Hub {
	return NewHub(zerolog.Nop())
}

func TestNewHub(t *testing.T) {
	hub := newTestHub()

	if hub.sessions == nil {
		t.Error("Hub sessions map is nil")
	}
	if hub.broadcast == nil {
		t.Error("Hub broadcast channel is nil")
	}
	if hub.register == nil {
		t.Error("Hub register channel is nil")
	}
	if hub.unregister == nil {
		t.Error("Hub unregister channel is nil")
	}
}

func TestHubRegisterClient(t *testing.T) {
	hub := newTestHub()

	client := &Client{
		hub:       hub,
		sessionID: "TESTSESS",
		role:      engine.RoleLearner,
		send:      make(chan []byte, 256),
	}

	hub.registerClient(client)

	if _, exists := hub.sessions["TESTSESS"]; !exists {
		t.Error("Session was not created")
	}
	if !hub.sessions["TESTSESS"][client] {
		t.Error("Client was not registered in session")
	}
	if len(hub.sessions["TESTSESS"]) != 1 {
		t.Errorf("Expected 1 client in session, got %d", len(hub.sessions["TESTSESS"]))
	}
}

func TestHubUnregisterClient(t *testing.T) {
	hub := newTestHub()

	client := &Client{
		hub:       hub,
		sessionID: "TESTSESS",
		role:      engine.RoleLearner,
		send:      make(chan []byte, 256),
	}

	hub.registerClient(client)
	hub.unregisterClient(client)

	if _, exists := hub.sessions["TESTSESS"]; exists {
		t.Error("Session should have been cleaned up after last client unregistered")
	}
}

func TestHubMultipleClientsInSession(t *testing.T) {
	hub := newTestHub()
	sessionID := "MULTISES"

	client1 := &Client{
		hub:       hub,
		sessionID: sessionID,
		role:      engine.RoleExaminer,
		send:      make(chan []byte, 256),
	}
	client2 := &Client{
		hub:       hub,
		sessionID: sessionID,
		role:      engine.RoleLearner,
		send:      make(chan []byte, 256),
	}

	hub.registerClient(client1)
	hub.registerClient(client2)

	if len(hub.sessions[sessionID]) != 2 {
		t.Errorf("Expected 2 clients in session, got %d", len(hub.sessions[sessionID]))
	}

	hub.unregisterClient(client1)

	if len(hub.sessions[sessionID]) != 1 {
		t.Errorf("Expected 1 client remaining in session, got %d", len(hub.sessions[sessionID]))
	}
	if !hub.sessions[sessionID][client2] {
		t.Error("client2 should still be registered")
	}
}

func TestBroadcastIsRoleScoped(t *testing.T) {
	hub := newTestHub()
	sessionID := "ROLESESS"

	examiner := &Client{
		hub:       hub,
		sessionID: sessionID,
		role:      engine.RoleExaminer,
		send:      make(chan []byte, 256),
	}
	learner := &Client{
		hub:       hub,
		sessionID: sessionID,
		role:      engine.RoleLearner,
		send:      make(chan []byte, 256),
	}
	hub.registerClient(examiner)
	hub.registerClient(learner)

	view := &engine.LearnerView{Status: engine.StatusLocked, Index: 1, Total: 3}
	snap := &engine.Snapshot{
		SessionID:    sessionID,
		Questions:    []string{"Q1", "Q2", "Q3"},
		CurrentIndex: 1,
	}
	hub.broadcastUpdate(&update{sessionID: sessionID, view: view, snapshot: snap})

	var learnerMsg Message
	select {
	case data := <-learner.send:
		if err := json.Unmarshal(data, &learnerMsg); err != nil {
			t.Fatalf("Failed to unmarshal learner frame: %v", err)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("No learner frame received")
	}
	if learnerMsg.Snapshot != nil {
		t.Error("Learner frame must not carry the full snapshot")
	}
	if learnerMsg.View == nil || learnerMsg.View.Status != engine.StatusLocked {
		t.Errorf("Learner frame missing view: %+v", learnerMsg)
	}
	if learnerMsg.View.Question != "" {
		t.Error("Locked view leaked question text over the socket")
	}

	var examinerMsg Message
	select {
	case data := <-examiner.send:
		if err := json.Unmarshal(data, &examinerMsg); err != nil {
			t.Fatalf("Failed to unmarshal examiner frame: %v", err)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("No examiner frame received")
	}
	if examinerMsg.View != nil {
		t.Error("Examiner frame should carry the snapshot, not the view")
	}
	if examinerMsg.Snapshot == nil || len(examinerMsg.Snapshot.Questions) != 3 {
		t.Errorf("Examiner frame missing snapshot: %+v", examinerMsg)
	}
	if examinerMsg.Event != "state_update" {
		t.Errorf("Expected event 'state_update', got %s", examinerMsg.Event)
	}
}

func TestBroadcastToOtherSessionIsDropped(t *testing.T) {
	hub := newTestHub()

	client := &Client{
		hub:       hub,
		sessionID: "SESSIONA",
		role:      engine.RoleLearner,
		send:      make(chan []byte, 256),
	}
	hub.registerClient(client)

	hub.broadcastUpdate(&update{
		sessionID: "SESSIONB",
		view:      &engine.LearnerView{Status: engine.StatusLocked},
	})

	select {
	case <-client.send:
		t.Error("Client received a frame for another session")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWebSocketUpgrade(t *testing.T) {
	hub := newTestHub()
	go hub.Run()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, "WSUPTEST", engine.RoleLearner)
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect to WebSocket: %v", err)
	}
	defer conn.Close()

	// Give some time for registration.
	time.Sleep(50 * time.Millisecond)

	if len(hub.sessions["WSUPTEST"]) != 1 {
		t.Errorf("Expected 1 client in session, got %d", len(hub.sessions["WSUPTEST"]))
	}

	conn.Close()
	time.Sleep(50 * time.Millisecond)

	if _, exists := hub.sessions["WSUPTEST"]; exists {
		t.Error("Session should have been cleaned up after WebSocket close")
	}
}

func TestWebSocketMessageReceive(t *testing.T) {
	hub := newTestHub()
	go hub.Run()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, "MSGTESTX", engine.RoleLearner)
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect to WebSocket: %v", err)
	}
	defer conn.Close()

	// Give time for connection to establish.
	time.Sleep(50 * time.Millisecond)

	hub.BroadcastToSession("MSGTESTX",
		&engine.LearnerView{Status: engine.StatusRevealed, Index: 2, Question: "What is Q3?", Total: 5},
		&engine.Snapshot{SessionID: "MSGTESTX"},
	)

	conn.SetReadDeadline(time.Now().Add(1 * time.Second))
	_, messageData, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read WebSocket message: %v", err)
	}

	var message Message
	if err := json.Unmarshal(messageData, &message); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}

	if message.SessionID != "MSGTESTX" {
		t.Errorf("Expected sessionID MSGTESTX, got %s", message.SessionID)
	}
	if message.View == nil || message.View.Index != 2 || message.View.Question != "What is Q3?" {
		t.Errorf("View not correctly received: %+v", message.View)
	}
	if message.Snapshot != nil {
		t.Error("Learner connection received examiner snapshot")
	}
}
