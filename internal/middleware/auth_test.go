package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type staticValidator map[string]string

func (v staticValidator) ValidateJWT(token string) (string, error) {
	if id, ok := v[token]; ok {
		return id, nil
	}
	return "", errors.New("invalid token")
}

func TestAuthMiddleware(t *testing.T) {
	var seen string
	h := AuthMiddleware(staticValidator{"good": "alice"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetUserID(r.Context())
	}))

	tests := []struct {
		name   string
		header string
		want   int
		user   string
	}{
		{"valid", "Bearer good", http.StatusOK, "alice"},
		{"missing", "", http.StatusUnauthorized, ""},
		{"no scheme", "good", http.StatusUnauthorized, ""},
		{"empty token", "Bearer ", http.StatusUnauthorized, ""},
		{"unknown token", "Bearer bad", http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want || seen != tt.user {
				t.Errorf("got (%d, %q), want (%d, %q)", rec.Code, seen, tt.want, tt.user)
			}
		})
	}
}

func TestValidateWebSocketToken(t *testing.T) {
	v := staticValidator{"good": "alice"}
	if _, err := ValidateWebSocketToken("", v); err == nil {
		t.Error("empty token accepted")
	}
	if id, err := ValidateWebSocketToken("good", v); err != nil || id != "alice" {
		t.Errorf("got (%q, %v), want alice", id, err)
	}
}
