package identity

import (
	"context"
	"errors"
	"testing"

	"concierge/internal/store"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"+15551234567", "+15551234567"},
		{"whatsapp:+15551234567", "+15551234567"},
		{"  whatsapp:+15551234567  ", "+15551234567"},
		{"  +15551234567", "+15551234567"},
		{"", ""},
	}
	for _, c := range cases {
		if got := Normalize(c.in); got != c.want {
			t.Errorf("Normalize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

type fakeUsers struct {
	byPhone  map[string]*store.User
	inserted []string
	findErr  error
}

func (f *fakeUsers) FindUserByPhone(_ context.Context, phone string) (*store.User, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	if u, ok := f.byPhone[phone]; ok {
		return u, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeUsers) InsertUser(_ context.Context, phone string) (string, error) {
	f.inserted = append(f.inserted, phone)
	id := "u-" + phone
	if f.byPhone == nil {
		f.byPhone = map[string]*store.User{}
	}
	f.byPhone[phone] = &store.User{ID: id, Phone: phone}
	return id, nil
}

func TestResolveExistingUser(t *testing.T) {
	users := &fakeUsers{byPhone: map[string]*store.User{
		"+15551234567": {ID: "u-1", Phone: "+15551234567"},
	}}
	r := NewResolver(users)

	id, err := r.Resolve(context.Background(), "whatsapp:+15551234567")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if id != "u-1" {
		t.Fatalf("expected u-1, got %s", id)
	}
	if len(users.inserted) != 0 {
		t.Fatalf("existing user was re-inserted: %v", users.inserted)
	}
}

func TestResolveCreatesOnFirstContact(t *testing.T) {
	users := &fakeUsers{}
	r := NewResolver(users)

	id, err := r.Resolve(context.Background(), "+15557654321")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if id == "" {
		t.Fatal("expected a user id")
	}
	if len(users.inserted) != 1 || users.inserted[0] != "+15557654321" {
		t.Fatalf("unexpected inserts: %v", users.inserted)
	}

	// same address resolves to the same user afterwards
	again, err := r.Resolve(context.Background(), "+15557654321")
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if again != id {
		t.Fatalf("identity drifted: %s then %s", id, again)
	}
}

func TestResolvePropagatesStoreFailure(t *testing.T) {
	boom := errors.New("disk gone")
	r := NewResolver(&fakeUsers{findErr: boom})

	if _, err := r.Resolve(context.Background(), "+15551234567"); !errors.Is(err, boom) {
		t.Fatalf("expected store failure to propagate, got %v", err)
	}
}
