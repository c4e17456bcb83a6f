package commands

import (
	"context"
	"errors"
	"testing"

	"spindrift/pkg/config"
	"spindrift/pkg/settings"
)

type memStore struct {
	data map[int64]settings.UserConfig
	err  error
}

func newMemStore() *memStore {
	return &memStore{data: make(map[int64]settings.UserConfig)}
}

func (m *memStore) Record(ctx context.Context, userID int64, parameter, value string) error {
	if m.err != nil {
		return m.err
	}
	if m.data[userID] == nil {
		m.data[userID] = make(settings.UserConfig)
	}
	m.data[userID][parameter] = value
	return nil
}

func (m *memStore) Get(ctx context.Context, userID int64) (settings.UserConfig, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make(settings.UserConfig)
	for k, v := range m.data[userID] {
		out[k] = v
	}
	return out, nil
}

func TestBuiltinsOrder(t *testing.T) {
	cmds := Builtins(newMemStore(), config.DefaultLabels())
	want := []string{"start", "help", "set", "params"}
	if len(cmds) != len(want) {
		t.Fatalf("expected %d builtins, got %d", len(want), len(cmds))
	}
	for i, cmd := range cmds {
		if cmd.Name != want[i] {
			t.Fatalf("builtin %d: expected %s, got %s", i, want[i], cmd.Name)
		}
	}
}

func TestSetThenParams(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	labels := config.DefaultLabels()

	res, err := SetHandler(store, labels)(ctx, Request{UserID: 1, Args: "x 5"})
	if err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if res.Text != `The parameter "x" successfully set to "5"` {
		t.Fatalf("unexpected confirmation %q", res.Text)
	}
	if _, err := SetHandler(store, labels)(ctx, Request{UserID: 1, Args: "a 1"}); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	res, err = ParamsHandler(store, labels)(ctx, Request{UserID: 1})
	if err != nil {
		t.Fatalf("params failed: %v", err)
	}
	want := "Parameters are:\n========\na = 1\nx = 5"
	if res.Text != want {
		t.Fatalf("expected %q, got %q", want, res.Text)
	}
}

func TestSetUsage(t *testing.T) {
	store := newMemStore()
	labels := config.DefaultLabels()

	for _, args := range []string{"", "x", "x 5 6"} {
		res, err := SetHandler(store, labels)(context.Background(), Request{UserID: 1, Args: args})
		if err != nil {
			t.Fatalf("args %q: unexpected error %v", args, err)
		}
		if res.Text != labels.SetUsage {
			t.Fatalf("args %q: expected usage, got %q", args, res.Text)
		}
	}
	if len(store.data) != 0 {
		t.Fatalf("malformed /set must not write, got %v", store.data)
	}
}

func TestParamsEmpty(t *testing.T) {
	labels := config.DefaultLabels()
	res, err := ParamsHandler(newMemStore(), labels)(context.Background(), Request{UserID: 9})
	if err != nil {
		t.Fatalf("params failed: %v", err)
	}
	if res.Text != labels.NoParameters {
		t.Fatalf("expected %q, got %q", labels.NoParameters, res.Text)
	}
}

func TestStoreErrorsPropagate(t *testing.T) {
	boom := errors.New("boom")
	store := newMemStore()
	store.err = boom
	labels := config.DefaultLabels()

	if _, err := SetHandler(store, labels)(context.Background(), Request{Args: "a b"}); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
	if _, err := ParamsHandler(store, labels)(context.Background(), Request{}); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
}
