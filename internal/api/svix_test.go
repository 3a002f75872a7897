package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

var testWebhookKey = []byte("local-test-webhook-signing-key")

func testWebhookSecret() string {
	return "whsec_" + base64.StdEncoding.EncodeToString(testWebhookKey)
}

func signSvix(key []byte, id, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(id + "." + timestamp + "."))
	mac.Write(body)
	return "v1," + base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func newTestVerifier(now time.Time) *SvixVerifier {
	verifier := NewSvixVerifier(testWebhookSecret(), 5*time.Minute)
	verifier.now = func() time.Time { return now }
	return verifier
}

func TestSvixVerify(t *testing.T) {
	now := time.Unix(1760000000, 0)
	body := []byte(`{"type":"user.updated","data":{"id":"user_1"}}`)
	timestamp := strconv.FormatInt(now.Unix(), 10)
	valid := signSvix(testWebhookKey, "msg_1", timestamp, body)

	tests := []struct {
		name    string
		headers SvixHeaders
		body    []byte
		wantErr bool
	}{
		{
			name:    "valid",
			headers: SvixHeaders{ID: "msg_1", Timestamp: timestamp, Signature: valid},
			body:    body,
		},
		{
			name:    "any matching entry",
			headers: SvixHeaders{ID: "msg_1", Timestamp: timestamp, Signature: "v1,Zm9vYmFy v2,abc " + valid},
			body:    body,
		},
		{
			name:    "tampered body",
			headers: SvixHeaders{ID: "msg_1", Timestamp: timestamp, Signature: valid},
			body:    []byte(`{"type":"user.updated","data":{"id":"user_2"}}`),
			wantErr: true,
		},
		{
			name:    "different id",
			headers: SvixHeaders{ID: "msg_2", Timestamp: timestamp, Signature: valid},
			body:    body,
			wantErr: true,
		},
		{
			name: "stale timestamp",
			headers: SvixHeaders{
				ID:        "msg_1",
				Timestamp: strconv.FormatInt(now.Add(-10*time.Minute).Unix(), 10),
				Signature: signSvix(testWebhookKey, "msg_1", strconv.FormatInt(now.Add(-10*time.Minute).Unix(), 10), body),
			},
			body:    body,
			wantErr: true,
		},
		{
			name:    "malformed timestamp",
			headers: SvixHeaders{ID: "msg_1", Timestamp: "yesterday", Signature: valid},
			body:    body,
			wantErr: true,
		},
		{
			name:    "wrong key",
			headers: SvixHeaders{ID: "msg_1", Timestamp: timestamp, Signature: signSvix([]byte("other"), "msg_1", timestamp, body)},
			body:    body,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := newTestVerifier(now).Verify(tt.headers, tt.body)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidSignature) {
					t.Fatalf("expected ErrInvalidSignature, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestSvixHeadersFromRequest(t *testing.T) {
	req := httptest.NewRequest("POST", "/webhooks/clerk", nil)
	req.Header.Set("svix-id", "msg_1")
	req.Header.Set("svix-timestamp", "1760000000")
	if _, err := SvixHeadersFromRequest(req); !errors.Is(err, ErrMissingSignatureHeaders) {
		t.Fatalf("expected ErrMissingSignatureHeaders, got %v", err)
	}

	req.Header.Set("svix-signature", "v1,abc")
	headers, err := SvixHeadersFromRequest(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if headers.ID != "msg_1" || headers.Signature != "v1,abc" {
		t.Fatalf("unexpected headers: %+v", headers)
	}
}

func TestSvixVerifierRawSecret(t *testing.T) {
	now := time.Unix(1760000000, 0)
	body := []byte(`{"type":"user.created","data":{"id":"user_1"}}`)
	timestamp := strconv.FormatInt(now.Unix(), 10)

	verifier := NewSvixVerifier("not base64!", 0)
	verifier.now = func() time.Time { return now }

	headers := SvixHeaders{ID: "msg_1", Timestamp: timestamp, Signature: signSvix([]byte("not base64!"), "msg_1", timestamp, body)}
	if err := verifier.Verify(headers, body); err != nil {
		t.Fatalf("expected raw secret to verify, got %v", err)
	}
	if verifier.tolerance != defaultSvixTolerance {
		t.Fatalf("expected default tolerance, got %v", verifier.tolerance)
	}
}
