package address

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/slok/assetpipe/internal/address"
	"github.com/slok/assetpipe/internal/log"
	"github.com/slok/assetpipe/internal/model"
)

// ServiceConfig is the configuration for the address service.
type ServiceConfig struct {
	Logger log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Logger == nil {
		c.Logger = log.Noop
	}

	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Address"})
	return nil
}

// Service computes the addresses of the assets of a collector directory.
type Service struct {
	logger log.Logger
}

// NewService creates a new address service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{logger: cfg.Logger}, nil
}

// Request represents an address request.
type Request struct {
	// CollectPath is the collector directory, every regular file under it is an asset.
	CollectPath string
	GroupName   string
	// Rule is the address rule name.
	Rule string
}

// Run returns the assets of the collector sorted by address. Two assets with the same address
// are rejected.
func (s *Service) Run(ctx context.Context, req Request) ([]model.AssetAddress, error) {
	rule, err := address.RuleFor(req.Rule)
	if err != nil {
		return nil, fmt.Errorf("invalid address rule: %w", err)
	}

	if req.CollectPath == "" {
		return nil, fmt.Errorf("collect path is required: %w", model.ErrNotValid)
	}

	assets, err := collectAssets(ctx, req.CollectPath)
	if err != nil {
		return nil, err
	}

	addresses := make([]model.AssetAddress, 0, len(assets))
	seen := map[string]string{}
	for _, assetPath := range assets {
		addr := rule.Address(model.AddressRuleData{
			AssetPath:   assetPath,
			GroupName:   req.GroupName,
			CollectPath: req.CollectPath,
		})

		if prev, ok := seen[addr]; ok {
			return nil, fmt.Errorf("address %q of %s is already used by %s: %w", addr, assetPath, prev, model.ErrAlreadyExists)
		}
		seen[addr] = assetPath

		addresses = append(addresses, model.AssetAddress{AssetPath: assetPath, Address: addr})
	}

	sort.Slice(addresses, func(i, j int) bool { return addresses[i].Address < addresses[j].Address })

	s.logger.Debugf("Collected %d assets from %s", len(addresses), req.CollectPath)
	return addresses, nil
}

// collectAssets returns the regular non hidden files under the collector directory.
func collectAssets(ctx context.Context, dir string) ([]string, error) {
	var assets []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if path != dir && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		assets = append(assets, filepath.ToSlash(path))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("could not collect assets: %w", err)
	}

	return assets, nil
}
