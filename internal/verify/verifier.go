package verify

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/snowbind/snowbind/internal/core"
	"github.com/snowbind/snowbind/internal/federation"
)

// Config bounds the verification loop.
type Config struct {
	// Attempts is the describe budget. Zero means DefaultAttempts.
	Attempts int

	// BaseDelay is the first backoff interval; it doubles per attempt up to
	// MaxDelay. Control-plane writes to identity systems can be eventually
	// consistent, so "not yet visible" is an expected transient state.
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

const (
	DefaultAttempts  = 5
	DefaultBaseDelay = 500 * time.Millisecond
	DefaultMaxDelay  = 8 * time.Second
)

// Verifier independently re-reads platform state after convergence. It never
// trusts the engine's return values: a passed verification means the control
// plane itself reports the target state.
type Verifier struct {
	store core.ObjectStore
	cfg   Config

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func New(store core.ObjectStore, cfg Config) *Verifier {
	if cfg.Attempts <= 0 {
		cfg.Attempts = DefaultAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultMaxDelay
	}
	return &Verifier{store: store, cfg: cfg, sleep: sleepCtx}
}

// Verify polls the control plane until the service identity exists with the
// expected kind, its binding resolves to the target principal, and the role
// is attached — or until the attempt budget runs out. The outcome is always
// a value; budget exhaustion yields a failed result, not an error, because
// eventual consistency is not a defect.
func (v *Verifier) Verify(ctx context.Context, target core.TargetState) core.VerificationResult {
	logger := log.Ctx(ctx)

	var result core.VerificationResult
	delay := v.cfg.BaseDelay

	for attempt := 1; attempt <= v.cfg.Attempts; attempt++ {
		result = v.check(ctx, target)
		result.Attempts = attempt

		if result.Passed() {
			logger.Debug().Int("attempt", attempt).Msg("verification passed")
			return result
		}
		if ctx.Err() != nil {
			result.Details = append(result.Details, "verification cancelled: "+ctx.Err().Error())
			return result
		}
		if attempt == v.cfg.Attempts {
			break
		}

		logger.Debug().
			Int("attempt", attempt).
			Dur("backoff", delay).
			Strs("pending", result.Details).
			Msg("verification incomplete, backing off")
		if err := v.sleep(ctx, delay); err != nil {
			result.Details = append(result.Details, "verification cancelled: "+err.Error())
			return result
		}
		if delay *= 2; delay > v.cfg.MaxDelay {
			delay = v.cfg.MaxDelay
		}
	}

	return result
}

// check runs the three checks once. Read errors are treated like
// not-yet-visible state and recorded in the details.
func (v *Verifier) check(ctx context.Context, target core.TargetState) core.VerificationResult {
	var result core.VerificationResult

	user, found, err := v.store.Describe(ctx, target.ServiceUserName, core.KindServiceUser)
	switch {
	case err != nil:
		result.Details = append(result.Details, fmt.Sprintf("describe user %s: %v", target.ServiceUserName, err))
	case !found:
		result.Details = append(result.Details, fmt.Sprintf("service user %s not visible yet", target.ServiceUserName))
	case user.Attributes[core.AttrUserType] != core.UserTypeService:
		result.Details = append(result.Details, fmt.Sprintf("user %s has type %q, expected %s",
			target.ServiceUserName, user.Attributes[core.AttrUserType], core.UserTypeService))
	default:
		result.IdentityExists = true
	}

	if result.IdentityExists {
		recorded := federation.RecordedBinding(user)
		if federation.SamePrincipal(recorded, target.FederatedIdentity) {
			result.BindingResolved = true
		} else {
			result.Details = append(result.Details, fmt.Sprintf("binding resolves to %s principal %q, expected %q",
				recorded.Provider, recorded.PrincipalRef, target.FederatedIdentity.PrincipalRef))
		}
	}

	roleGrant := core.GrantSpec{
		Privilege: core.PrivilegeRole,
		On:        core.PlatformObject{Name: target.RoleName, Kind: core.KindRole},
		To:        core.PlatformObject{Name: target.ServiceUserName, Kind: core.KindServiceUser},
	}
	held, err := v.store.HasGrant(ctx, roleGrant)
	switch {
	case err != nil:
		result.Details = append(result.Details, fmt.Sprintf("read grants of user %s: %v", target.ServiceUserName, err))
	case !held:
		result.Details = append(result.Details, fmt.Sprintf("role %s not attached to user %s yet",
			target.RoleName, target.ServiceUserName))
	default:
		result.RoleAttached = true
	}

	return result
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
