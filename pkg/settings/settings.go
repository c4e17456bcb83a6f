// Package settings persists per-user key/value configuration.
package settings

import (
	"context"
	"errors"
	"sort"
)

// ErrEmptyParameter is returned when a write names no parameter.
var ErrEmptyParameter = errors.New("parameter name cannot be empty")

// UserConfig maps parameter names to values for one user.
type UserConfig map[string]string

// Keys returns the parameter names in lexical order.
func (c UserConfig) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Lookup returns the value of parameter and whether it is set.
func (c UserConfig) Lookup(parameter string) (string, bool) {
	v, ok := c[parameter]
	return v, ok
}

// Entry is one stored (user, parameter, value) row.
type Entry struct {
	UserID    int64  `json:"user_id" yaml:"user_id"`
	Parameter string `json:"parameter" yaml:"parameter"`
	Value     string `json:"value" yaml:"value"`
}

// Store is the contract handlers depend on.
type Store interface {
	// Record upserts one parameter; an existing value is replaced.
	Record(ctx context.Context, userID int64, parameter, value string) error

	// Get returns every parameter set for userID. A user without entries
	// gets an empty, non-nil map.
	Get(ctx context.Context, userID int64) (UserConfig, error)
}
