package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"streak-backend/internal/models"
	"streak-backend/internal/repository"
	"streak-backend/internal/services"

	"github.com/gorilla/websocket"
)

type testAPI struct {
	t       *testing.T
	handler http.Handler
	svc     Services
	tokens  map[string]string
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	path := filepath.Join(t.TempDir(), "streaks.db")
	db, err := repository.OpenSQLite(context.Background(), path, repository.Options{})
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(db.Close)

	policy := services.DefaultPolicy()
	hub := services.NewWSHub()
	streaks := services.NewStreakService(db, services.NewDailyCache(), hub, policy)
	streaks.SetClock(func() time.Time { return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC) })

	svc := Services{
		Users:    services.NewUserService(db, "test-secret"),
		Streaks:  streaks,
		Economy:  services.NewEconomyService(db, hub, policy),
		Requests: services.NewRequestService(db, hub),
		Hub:      hub,
	}
	return &testAPI{t: t, handler: NewRouter(svc), svc: svc, tokens: map[string]string{}}
}

// do sends a request as user (empty for anonymous) and decodes the response into out
func (a *testAPI) do(user, method, path string, body, out any) int {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			a.t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+a.tokens[user])
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)

	if out != nil && rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			a.t.Fatalf("%s %s: decode %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec.Code
}

func (a *testAPI) register(id, handle string) {
	a.t.Helper()
	var resp CreateUserResponse
	code := a.do("", http.MethodPost, "/api/v1/users", CreateUserRequest{ID: id, Handle: handle}, &resp)
	if code != http.StatusOK {
		a.t.Fatalf("register %s: status %d", id, code)
	}
	a.tokens[id] = resp.Token
}

func (a *testAPI) interact(user, partner, date string) models.StreakTransition {
	a.t.Helper()
	var tr models.StreakTransition
	code := a.do(user, http.MethodPost, "/api/v1/interactions",
		InteractionRequest{PartnerID: partner, Context: "chat", Date: date}, &tr)
	if code != http.StatusOK {
		a.t.Fatalf("interaction %s->%s: status %d", user, partner, code)
	}
	return tr
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)
	if code := api.do("", http.MethodGet, "/health", nil, nil); code != http.StatusOK {
		t.Errorf("status = %d, want 200", code)
	}
}

func TestAuthRequired(t *testing.T) {
	api := newTestAPI(t)

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic abc"},
		{"bad token", "Bearer not-a-jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/streaks", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			api.handler.ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
		})
	}
}

func TestStreakFlow(t *testing.T) {
	api := newTestAPI(t)
	api.register("a", "alice")
	api.register("b", "bob")

	if tr := api.interact("a", "b", ""); tr.Kind != models.TransitionPending {
		t.Errorf("first report = %s, want pending", tr.Kind)
	}
	if tr := api.interact("b", "a", ""); tr.Kind != models.TransitionIncremented || tr.Count != 1 {
		t.Errorf("second report = %s(%d), want incremented(1)", tr.Kind, tr.Count)
	}
	api.interact("a", "b", "2024-01-02")
	if tr := api.interact("b", "a", "2024-01-02"); tr.Count != 2 {
		t.Errorf("count = %d, want 2", tr.Count)
	}

	var list ListStreaksResponse
	if code := api.do("a", http.MethodGet, "/api/v1/streaks?context=chat", nil, &list); code != http.StatusOK {
		t.Fatalf("list status = %d", code)
	}
	if len(list.Streaks) != 1 || list.Streaks[0].PartnerID != "b" || list.Streaks[0].Handle != "bob" {
		t.Errorf("streaks = %+v, want one with bob", list.Streaks)
	}
	api.do("a", http.MethodGet, "/api/v1/streaks?context=elsewhere", nil, &list)
	if len(list.Streaks) != 0 {
		t.Errorf("streaks in other context = %+v, want none", list.Streaks)
	}

	var streak StreakResponse
	api.do("b", http.MethodGet, "/api/v1/streaks/a", nil, &streak)
	if streak.Count != 2 {
		t.Errorf("GET streak count = %d, want 2", streak.Count)
	}

	// two confirmed days earn two points each
	var bal BalanceResponse
	api.do("a", http.MethodGet, "/api/v1/balance", nil, &bal)
	if bal.Points != 2 {
		t.Errorf("balance = %d, want 2", bal.Points)
	}

	if code := api.do("a", http.MethodDelete, "/api/v1/streaks/b", nil, nil); code != http.StatusNoContent {
		t.Errorf("reset status = %d, want 204", code)
	}
	api.do("b", http.MethodGet, "/api/v1/streaks/a", nil, &streak)
	if streak.Count != 0 {
		t.Errorf("count after reset = %d, want 0", streak.Count)
	}
}

func TestErrorMapping(t *testing.T) {
	api := newTestAPI(t)
	api.register("a", "alice")

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"self interaction", http.MethodPost, "/api/v1/interactions", InteractionRequest{PartnerID: "a"}, http.StatusBadRequest},
		{"bad date", http.MethodPost, "/api/v1/interactions", InteractionRequest{PartnerID: "b", Date: "01/02/2024"}, http.StatusBadRequest},
		{"unknown pair reset", http.MethodDelete, "/api/v1/streaks/zed", nil, http.StatusNotFound},
		{"freeze unlinked", http.MethodPost, "/api/v1/streaks/zed/freeze", FreezeRequest{Days: 1}, http.StatusNotFound},
		{"freeze zero days", http.MethodPost, "/api/v1/streaks/zed/freeze", FreezeRequest{Days: 0}, http.StatusBadRequest},
		{"unknown handle", http.MethodPost, "/api/v1/requests", map[string]string{"partner_handle": "nobody"}, http.StatusNotFound},
		{"missing handle", http.MethodPost, "/api/v1/requests", map[string]string{}, http.StatusBadRequest},
		{"unknown request", http.MethodPost, "/api/v1/requests/nope/accept", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp ErrorResponse
			if code := api.do("a", tt.method, tt.path, tt.body, &resp); code != tt.want {
				t.Errorf("status = %d, want %d (%s)", code, tt.want, resp.Error)
			}
		})
	}
}

func TestFreezeEndpoint(t *testing.T) {
	api := newTestAPI(t)
	api.register("a", "alice")
	api.register("b", "bob")
	api.interact("a", "b", "")
	api.interact("b", "a", "")

	// one confirmed day earns one point
	var res models.FreezeResult
	code := api.do("a", http.MethodPost, "/api/v1/streaks/b/freeze", FreezeRequest{Days: 5}, &res)
	if code != http.StatusPaymentRequired || res.Status != models.FreezeStatusInsufficientFunds {
		t.Errorf("freeze = %d %+v, want 402 insufficient_funds", code, res)
	}

	code = api.do("a", http.MethodPost, "/api/v1/streaks/b/freeze", FreezeRequest{Days: 1}, &res)
	if code != http.StatusOK || !res.Success || res.NewEndDate.String() != "2024-01-02" {
		t.Errorf("freeze = %d %+v, want granted through 2024-01-02", code, res)
	}

	var streak StreakResponse
	api.do("b", http.MethodGet, "/api/v1/streaks/a", nil, &streak)
	if streak.FrozenThrough == nil || streak.FrozenThrough.String() != "2024-01-02" {
		t.Errorf("frozen through = %v, want 2024-01-02", streak.FrozenThrough)
	}
}

func TestRequestEndpoints(t *testing.T) {
	api := newTestAPI(t)
	api.register("a", "alice")
	api.register("b", "bob")

	var out services.RequestOutcome
	code := api.do("a", http.MethodPost, "/api/v1/requests", services.CreateRequestRequest{PartnerHandle: "@bob"}, &out)
	if code != http.StatusCreated || out.Request == nil {
		t.Fatalf("create = %d %+v, want 201", code, out)
	}

	var incoming IncomingResponse
	api.do("b", http.MethodGet, "/api/v1/requests", nil, &incoming)
	if len(incoming.Requests) != 1 || incoming.Requests[0].FromUserID != "a" || incoming.Requests[0].FromHandle != "alice" {
		t.Fatalf("incoming = %+v, want one from a", incoming.Requests)
	}

	var streak StreakResponse
	code = api.do("b", http.MethodPost, "/api/v1/requests/"+out.Request.ID+"/accept", nil, &streak)
	if code != http.StatusOK || streak.PartnerID != "a" || streak.Count != 0 {
		t.Errorf("accept = %d %+v, want cold streak with a", code, streak)
	}

	var list ListStreaksResponse
	api.do("a", http.MethodGet, "/api/v1/streaks", nil, &list)
	if len(list.Streaks) != 1 {
		t.Errorf("streaks = %+v, want the linked pair", list.Streaks)
	}
}

func TestObserveMessage(t *testing.T) {
	api := newTestAPI(t)
	api.register("a", "alice")
	api.register("b", "bob")

	var resp MessageResponse
	api.do("a", http.MethodPost, "/api/v1/messages", MessageRequest{Context: "group"}, &resp)
	if len(resp.Outcomes) != 0 {
		t.Errorf("outcomes = %+v, want none for the first speaker", resp.Outcomes)
	}
	if code := api.do("b", http.MethodPost, "/api/v1/messages", MessageRequest{Context: "group"}, &resp); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(resp.Outcomes) != 1 || resp.Outcomes[0].PartnerID != "a" || resp.Outcomes[0].Transition.Count != 1 {
		t.Errorf("outcomes = %+v, want a at 1", resp.Outcomes)
	}
}

func TestPushTokenAndMe(t *testing.T) {
	api := newTestAPI(t)
	api.register("a", "alice")

	if code := api.do("a", http.MethodPut, "/api/v1/users/me/push-token", PushTokenRequest{PushToken: "dev"}, nil); code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", code)
	}
	var user models.User
	api.do("a", http.MethodGet, "/api/v1/users/me", nil, &user)
	if user.PushToken == nil || *user.PushToken != "dev" {
		t.Errorf("push token = %v, want dev", user.PushToken)
	}
}

func TestWebSocketReceivesStreakEvents(t *testing.T) {
	api := newTestAPI(t)
	api.register("a", "alice")
	api.register("b", "bob")

	srv := httptest.NewServer(api.handler)
	defer srv.Close()

	if _, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws?token=bad", nil); err == nil {
		t.Error("dial with a bad token succeeded")
	}

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + api.tokens["a"]
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	read := func() services.WSMessage {
		t.Helper()
		var msg services.WSMessage
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("ReadJSON: %v", err)
		}
		return msg
	}

	if msg := read(); msg.Type != wsTypeStreaks {
		t.Fatalf("first message = %s, want %s", msg.Type, wsTypeStreaks)
	}

	if err := conn.WriteJSON(services.WSMessage{Type: wsTypePing}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if msg := read(); msg.Type != wsTypePong {
		t.Errorf("reply = %s, want %s", msg.Type, wsTypePong)
	}

	api.interact("a", "b", "")
	api.interact("b", "a", "")
	if msg := read(); msg.Type != models.EventStreakIncremented {
		t.Errorf("event = %s, want %s", msg.Type, models.EventStreakIncremented)
	}
}
