package service

import (
	"context"
	"testing"
)

func TestSessionStoresMarkRevokeAndList(t *testing.T) {
	_, client := newRedisClientForTest(t)
	stores := map[string]SessionStore{
		"memory": NewInMemorySessionStore(),
		"redis":  NewRedisSessionStore(client, "auth_test"),
	}
	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			ok, err := store.IsValid(ctx, "u1", 100)
			if err != nil || ok {
				t.Fatalf("expected initial miss, ok=%v err=%v", ok, err)
			}
			for _, iat := range []int64{200, 100, 100} {
				if err := store.MarkValid(ctx, "u1", iat); err != nil {
					t.Fatalf("mark valid %d: %v", iat, err)
				}
			}
			ok, err = store.IsValid(ctx, "u1", 100)
			if err != nil || !ok {
				t.Fatalf("expected member, ok=%v err=%v", ok, err)
			}
			listed, err := store.ListValid(ctx, "u1")
			if err != nil {
				t.Fatalf("list valid: %v", err)
			}
			if len(listed) != 2 || listed[0] != 100 || listed[1] != 200 {
				t.Fatalf("unexpected sessions %v", listed)
			}

			if err := store.Revoke(ctx, "u1", 100); err != nil {
				t.Fatalf("revoke: %v", err)
			}
			if err := store.Revoke(ctx, "u1", 999); err != nil {
				t.Fatalf("revoke non-member should be a no-op: %v", err)
			}
			ok, _ = store.IsValid(ctx, "u1", 100)
			if ok {
				t.Fatal("expected revoked token to be invalid")
			}

			if err := store.MarkValid(ctx, "u2", 100); err != nil {
				t.Fatalf("mark other user: %v", err)
			}
			if err := store.RevokeAll(ctx, "u1"); err != nil {
				t.Fatalf("revoke all: %v", err)
			}
			if ok, _ := store.IsValid(ctx, "u1", 200); ok {
				t.Fatal("expected all u1 sessions revoked")
			}
			if ok, _ := store.IsValid(ctx, "u2", 100); !ok {
				t.Fatal("expected u2 session to survive u1 revoke-all")
			}
		})
	}
}

func TestRedisSessionStoreKeyLayout(t *testing.T) {
	ctx := context.Background()
	server, client := newRedisClientForTest(t)
	store := NewRedisSessionStore(client, "")

	if err := store.MarkValid(ctx, "user-9", 1700000000); err != nil {
		t.Fatalf("mark valid: %v", err)
	}
	members, err := server.Members("auth:user-9")
	if err != nil {
		t.Fatalf("members: %v", err)
	}
	if len(members) != 1 || members[0] != "1700000000" {
		t.Fatalf("unexpected members %v", members)
	}
}

func TestRedisSessionStorePropagatesStoreErrors(t *testing.T) {
	server, client := newRedisClientForTest(t)
	store := NewRedisSessionStore(client, "auth")
	server.SetError("connection refused")

	if _, err := store.IsValid(context.Background(), "u1", 1); err == nil {
		t.Fatal("expected IsValid to fail when the store errors")
	}
	if err := store.MarkValid(context.Background(), "u1", 1); err == nil {
		t.Fatal("expected MarkValid to fail when the store errors")
	}
}
