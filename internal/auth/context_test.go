package auth

import (
	"context"
	"testing"
)

func TestSessionContext(t *testing.T) {
	if _, ok := SessionFromContext(context.Background()); ok {
		t.Fatal("empty context must not carry a session")
	}
	want := Session{Identity: clientIdentity(), SessionID: "sid-1"}
	got, ok := SessionFromContext(ContextWithSession(context.Background(), want))
	if !ok {
		t.Fatal("session missing from context")
	}
	if got.SessionID != want.SessionID || !got.Identity.Equal(want.Identity) {
		t.Fatalf("unexpected session %+v", got)
	}
}
