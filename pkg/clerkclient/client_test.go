package clerkclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGetUserReadsMetadata(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || !strings.HasSuffix(r.URL.Path, "/users/user_123") {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk_test" {
			t.Errorf("expected bearer secret key, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"object":"user","id":"user_123","public_metadata":{"subscription_plan":"pro"},"private_metadata":null}`)
	}))
	defer server.Close()

	client := NewClient(server.URL+"/v1/", "sk_test")
	user, err := client.GetUser(context.Background(), "user_123")
	if err != nil {
		t.Fatalf("GetUser returned error: %v", err)
	}
	if user.ID != "user_123" {
		t.Fatalf("expected user_123, got %q", user.ID)
	}
	if user.PublicMetadata["subscription_plan"] != "pro" {
		t.Fatalf("expected pro plan in public metadata, got %v", user.PublicMetadata)
	}
	if user.PrivateMetadata == nil {
		t.Fatalf("expected private metadata to default to an empty map")
	}
}

func TestGetUserNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"errors":[{"code":"resource_not_found","message":"not found"}]}`)
	}))
	defer server.Close()

	_, err := NewClient(server.URL, "sk_test").GetUser(context.Background(), "user_missing")
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestGetUserUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"errors":[{"code":"internal_clerk_error","message":"boom"}]}`)
	}))
	defer server.Close()

	_, err := NewClient(server.URL, "sk_test").GetUser(context.Background(), "user_123")
	if err == nil {
		t.Fatalf("expected error for 500 response")
	}
	if errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected an upstream error, got %v", err)
	}
}

func TestUpdatePublicMetadataSendsPatch(t *testing.T) {
	var got map[string]map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch || !strings.HasSuffix(r.URL.Path, "/users/user_123/metadata") {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("failed to decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"object":"user","id":"user_123"}`)
	}))
	defer server.Close()

	err := NewClient(server.URL, "sk_test").UpdatePublicMetadata(context.Background(), "user_123", map[string]interface{}{
		"subscription_plan": "pro",
	})
	if err != nil {
		t.Fatalf("UpdatePublicMetadata returned error: %v", err)
	}
	if got["public_metadata"]["subscription_plan"] != "pro" {
		t.Fatalf("expected subscription_plan=pro in request body, got %v", got)
	}
}

func TestDecodeMetadata(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantLen int
		wantErr bool
	}{
		{name: "empty", raw: "", wantLen: 0},
		{name: "null", raw: "null", wantLen: 0},
		{name: "object", raw: `{"subscription_plan":"pro","seats":2}`, wantLen: 2},
		{name: "not an object", raw: `["pro"]`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeMetadata(json.RawMessage(tt.raw))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got == nil || len(got) != tt.wantLen {
				t.Fatalf("expected %d keys, got %v", tt.wantLen, got)
			}
		})
	}
}
