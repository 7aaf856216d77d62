package configstore

import (
	"context"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/gray-logic-edge/internal/transport"
)

// seedFile mirrors the seed YAML layout: scope -> store -> key -> value.
type seedFile struct {
	Device  seedScope `yaml:"device"`
	Account seedScope `yaml:"account"`
}

type seedScope struct {
	Config map[string]string `yaml:"config"`
	Secret map[string]string `yaml:"secret"`
}

// SeedFromFile reads a seed file and writes every item into w. It returns
// the number of items written.
func SeedFromFile(ctx context.Context, w Writer, path string) (int, error) {
	data, err := os.ReadFile(path) //nolint:gosec // Path comes from operator config
	if err != nil {
		return 0, fmt.Errorf("reading seed file: %w", err)
	}
	return Seed(ctx, w, data)
}

// Seed parses YAML seed data and writes every item into w, in a stable
// order.
func Seed(ctx context.Context, w Writer, data []byte) (int, error) {
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidSeed, err)
	}

	groups := []struct {
		scope transport.ConfigScope
		store transport.ConfigStoreKind
		items map[string]string
	}{
		{transport.ScopeDevice, transport.StoreConfig, f.Device.Config},
		{transport.ScopeDevice, transport.StoreSecret, f.Device.Secret},
		{transport.ScopeAccount, transport.StoreConfig, f.Account.Config},
		{transport.ScopeAccount, transport.StoreSecret, f.Account.Secret},
	}

	n := 0
	for _, g := range groups {
		names := make([]string, 0, len(g.items))
		for name := range g.items {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			key := transport.ConfigKey{Scope: g.scope, Store: g.store, Key: name}
			if err := w.Put(ctx, key, []byte(g.items[name])); err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}
