package ballot

import (
	"context"
	"fmt"

	"github.com/cesa-network/cesavote/pkg/config"
	"github.com/cesa-network/cesavote/pkg/ledger"
	"go.uber.org/zap"
)

// RegistrationChecker answers whether a ledger address has opted in to the
// election application. An error means the answer is unknown.
type RegistrationChecker interface {
	IsRegistered(ctx context.Context, address string) (bool, error)
}

// LedgerRegistrationChecker asks the node for the account's local state.
type LedgerRegistrationChecker struct {
	node  ledger.Node
	appID uint64
}

func NewLedgerRegistrationChecker(node ledger.Node, appID uint64) *LedgerRegistrationChecker {
	return &LedgerRegistrationChecker{node: node, appID: appID}
}

func (c *LedgerRegistrationChecker) IsRegistered(ctx context.Context, address string) (bool, error) {
	if err := ledger.ValidateAddress(address); err != nil {
		return false, err
	}
	info, err := c.node.AccountInfo(ctx, address)
	if err != nil {
		return false, err
	}
	return info.OptedIn(c.appID), nil
}

// AllowListChecker is the development bypass: an address passes when it is
// on the list, and every address passes when the list is empty.
type AllowListChecker struct {
	allowed map[string]struct{}
}

func NewAllowListChecker(addresses []string) *AllowListChecker {
	allowed := make(map[string]struct{}, len(addresses))
	for _, a := range addresses {
		allowed[a] = struct{}{}
	}
	return &AllowListChecker{allowed: allowed}
}

func (c *AllowListChecker) IsRegistered(_ context.Context, address string) (bool, error) {
	if len(c.allowed) == 0 {
		return true, nil
	}
	_, ok := c.allowed[address]
	return ok, nil
}

// NewRegistrationChecker returns nil when registration is not required.
func NewRegistrationChecker(cfg config.Config, node ledger.Node, logger *zap.Logger) (RegistrationChecker, error) {
	if !cfg.Eligibility.RequireLedgerRegistration {
		return nil, nil
	}
	if cfg.Eligibility.UseAllowList {
		if cfg.Production() {
			return nil, newError(KindConfiguration, "registration checker", fmt.Errorf("allow-list bypass is not allowed in production"))
		}
		logger.Warn("Ledger registration uses the development allow-list",
			zap.Int("addresses", len(cfg.Eligibility.RegisteredAddresses)))
		return NewAllowListChecker(cfg.Eligibility.RegisteredAddresses), nil
	}
	if node == nil || !node.Configured() || cfg.Ledger.AppID == 0 {
		return nil, newError(KindConfiguration, "registration checker", fmt.Errorf("ledger registration requires a node and an application id"))
	}
	return NewLedgerRegistrationChecker(node, cfg.Ledger.AppID), nil
}
