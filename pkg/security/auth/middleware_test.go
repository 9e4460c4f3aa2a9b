package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testValidator() *Validator {
	return NewValidator([]TokenEntry{
		{Token: "tok-reviewer", Actor: Actor{ID: "dana", Roles: []string{"team-lead"}}},
		{Token: "tok-admin", Actor: Actor{ID: "ops", Roles: []string{"admin", "ciso"}}},
	})
}

func TestValidator_Validate(t *testing.T) {
	v := testValidator()

	actor, err := v.Validate("tok-reviewer")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if actor.ID != "dana" || !actor.HasRole("team-lead") {
		t.Errorf("actor = %+v, want dana with team-lead", actor)
	}
	if actor.HasRole("admin") {
		t.Error("HasRole(admin) = true for dana")
	}

	if _, err := v.Validate("tok-unknown"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("error = %v, want ErrInvalidToken", err)
	}
	if _, err := v.Validate(""); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("empty token error = %v, want ErrInvalidToken", err)
	}
}

func TestValidator_AddRemove(t *testing.T) {
	v := testValidator()

	v.Add(TokenEntry{Token: "tok-new", Actor: Actor{ID: "sam"}})
	if _, err := v.Validate("tok-new"); err != nil {
		t.Errorf("added token rejected: %v", err)
	}

	v.Remove("tok-new")
	if _, err := v.Validate("tok-new"); !errors.Is(err, ErrInvalidToken) {
		t.Error("removed token still accepted")
	}
}

func TestMiddleware_Handle(t *testing.T) {
	m := NewMiddleware(testValidator())

	var gotActor *Actor
	handler := m.Handle(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotActor = ActorFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantActor  string
	}{
		{"valid token", "Bearer tok-admin", http.StatusOK, "ops"},
		{"unknown token", "Bearer tok-nope", http.StatusUnauthorized, ""},
		{"missing header", "", http.StatusUnauthorized, ""},
		{"wrong scheme", "Basic dXNlcg==", http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotActor = nil
			req := httptest.NewRequest(http.MethodGet, "/v1/approvals", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantActor == "" && gotActor != nil {
				t.Errorf("handler ran with actor %+v on rejected request", gotActor)
			}
			if tt.wantActor != "" && (gotActor == nil || gotActor.ID != tt.wantActor) {
				t.Errorf("actor = %+v, want %s", gotActor, tt.wantActor)
			}
		})
	}
}
