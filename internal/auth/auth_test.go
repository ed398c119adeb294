package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/opencore-ai/opencore/pkg/models"
)

func TestJWTRoundTrip(t *testing.T) {
	svc := NewJWTService("test-secret", time.Hour)

	token, err := svc.Generate(&models.User{ID: "usr_1", Email: "a@b.c", Name: "Ada"})
	if err != nil {
		t.Fatal(err)
	}

	user, err := svc.Validate(token)
	if err != nil {
		t.Fatal(err)
	}
	if user.ID != "usr_1" || user.Email != "a@b.c" || user.Name != "Ada" {
		t.Errorf("user = %+v", user)
	}
}

func TestJWTRejectsBadTokens(t *testing.T) {
	svc := NewJWTService("test-secret", time.Hour)
	other := NewJWTService("other-secret", time.Hour)

	token, err := other.Generate(&models.User{ID: "usr_1"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Validate(token); err != ErrInvalidToken {
		t.Errorf("wrong-secret token validated: %v", err)
	}
	if _, err := svc.Validate("not-a-token"); err != ErrInvalidToken {
		t.Errorf("garbage token validated: %v", err)
	}
}

func TestJWTExpiry(t *testing.T) {
	svc := NewJWTService("test-secret", -time.Minute)
	token, err := svc.Generate(&models.User{ID: "usr_1"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Validate(token); err != ErrInvalidToken {
		t.Errorf("expired token validated: %v", err)
	}
}

func TestJWTDisabled(t *testing.T) {
	svc := NewJWTService("", time.Hour)
	if svc.Enabled() {
		t.Error("empty secret reported enabled")
	}
	if _, err := svc.Generate(&models.User{ID: "usr_1"}); err != ErrAuthDisabled {
		t.Errorf("Generate = %v", err)
	}
}

func TestMiddleware(t *testing.T) {
	svc := NewJWTService("test-secret", time.Hour)
	token, err := svc.Generate(&models.User{ID: "usr_42"})
	if err != nil {
		t.Fatal(err)
	}

	var seen *models.User
	handler := Middleware(svc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserFrom(r.Context())
	}))

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantUserID string
	}{
		{"no token runs local", "", http.StatusOK, "local"},
		{"valid token sets user", "Bearer " + token, http.StatusOK, "usr_42"},
		{"invalid token rejected", "Bearer bogus", http.StatusUnauthorized, ""},
		{"malformed header runs local", "Basic abc", http.StatusOK, "local"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantUserID != "" && (seen == nil || seen.ID != tt.wantUserID) {
				t.Errorf("user = %+v, want %s", seen, tt.wantUserID)
			}
		})
	}
}
