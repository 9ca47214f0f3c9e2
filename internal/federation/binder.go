package federation

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/snowbind/snowbind/internal/core"
)

// Binder translates a FederationBinding into the platform's federated
// identity creation call. Identity creation carries the binding atomically:
// a service user never exists, even transiently, without its trust binding.
type Binder struct {
	store core.ObjectStore

	// allowRebind permits overwriting a drifted binding. Off by default;
	// overwriting a trust binding is security-sensitive and must be an
	// explicit operator decision.
	allowRebind bool
}

func NewBinder(store core.ObjectStore) *Binder {
	return &Binder{store: store}
}

// WithRebind returns a Binder that resolves drift by replacing the recorded
// binding instead of stopping.
func (b *Binder) WithRebind() *Binder {
	return &Binder{store: b.store, allowRebind: true}
}

// Bind ensures the service user exists with the target binding attached.
// An existing user with a different recorded principal is reported as drift
// and never silently corrected.
func (b *Binder) Bind(ctx context.Context, userName string, target core.FederationBinding, defaultRole, defaultWarehouse string) (core.BindOutcome, error) {
	target = Normalize(target)
	logger := log.Ctx(ctx)

	user, found, err := b.store.Describe(ctx, userName, core.KindServiceUser)
	if err != nil {
		return "", fmt.Errorf("describing service user %q: %w", userName, err)
	}

	if !found {
		if err := b.store.CreateServiceUser(ctx, userName, target, defaultRole, defaultWarehouse); err != nil {
			return "", fmt.Errorf("creating service user %q: %w", userName, err)
		}
		logger.Info().
			Str("user", userName).
			Str("provider", string(target.Provider)).
			Msg("created service user with workload identity binding")
		return core.BindCreated, nil
	}

	recorded := RecordedBinding(user)
	if !SamePrincipal(recorded, target) {
		if !b.allowRebind {
			logger.Warn().
				Str("user", userName).
				Str("recorded", recorded.PrincipalRef).
				Str("target", target.PrincipalRef).
				Msg("federation binding drift detected")
			return core.BindDriftDetected, core.NewError(core.KindFederationDrift, "bind", "user "+userName,
				fmt.Errorf("service user %q is bound to %s principal %q, target is %s principal %q; re-run with an explicit rebind override to replace the binding",
					userName, recorded.Provider, recorded.PrincipalRef, target.Provider, target.PrincipalRef))
		}
		if err := b.store.ReplaceBinding(ctx, userName, target); err != nil {
			return "", fmt.Errorf("replacing binding on service user %q: %w", userName, err)
		}
		logger.Warn().
			Str("user", userName).
			Str("principal", target.PrincipalRef).
			Msg("replaced federation binding under operator override")
		return core.BindCreated, nil
	}

	// Same principal, possibly different session defaults. That is not
	// drift; converge the secondary attributes in place.
	if b.defaultsDiffer(user, defaultRole, defaultWarehouse) {
		if err := b.store.AlterSessionDefaults(ctx, userName, defaultRole, defaultWarehouse); err != nil {
			return "", fmt.Errorf("updating session defaults for %q: %w", userName, err)
		}
		logger.Debug().Str("user", userName).Msg("updated service user session defaults")
	}

	return core.BindUnchanged, nil
}

func (b *Binder) defaultsDiffer(user core.PlatformObject, defaultRole, defaultWarehouse string) bool {
	if defaultRole != "" && user.Attributes[core.AttrDefaultRole] != defaultRole {
		return true
	}
	if defaultWarehouse != "" && user.Attributes[core.AttrDefaultWarehouse] != defaultWarehouse {
		return true
	}
	return false
}

// RecordedBinding extracts the federation binding the platform reports for
// an existing service user.
func RecordedBinding(user core.PlatformObject) core.FederationBinding {
	return core.FederationBinding{
		Provider:     core.CloudProvider(user.Attributes[core.AttrWorkloadProvider]),
		PrincipalRef: user.Attributes[core.AttrWorkloadPrincipal],
		Kind:         core.BindingWorkloadIdentity,
	}
}
