package converge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog/log"

	"github.com/snowbind/snowbind/internal/core"
	"github.com/snowbind/snowbind/internal/federation"
	"github.com/snowbind/snowbind/internal/validation"
	"github.com/snowbind/snowbind/internal/verify"
)

// Runner drives a single provisioning run through its state machine:
// INIT -> PLANNING -> EXECUTING -> VERIFYING -> {CONVERGED | FAILED | DRIFTED}.
type Runner struct {
	store    core.ObjectStore
	binder   *federation.Binder
	verifier *verify.Verifier
	auditor  core.Auditor
}

func NewRunner(store core.ObjectStore, binder *federation.Binder, verifier *verify.Verifier, auditor core.Auditor) *Runner {
	return &Runner{
		store:    store,
		binder:   binder,
		verifier: verifier,
		auditor:  auditor,
	}
}

// Result is what a run reports back, terminal state included. Partial
// progress is never rolled back: a re-run of the same target skips the
// already-satisfied steps and resumes from the failure point.
type Result struct {
	RunID string        `json:"run_id"`
	State core.RunState `json:"state"`
	Plan  *Plan         `json:"-"`

	// Executed counts the operations that committed before the run ended.
	Executed int `json:"executed"`

	// FailedOp identifies the failing operation, if any, so a retry can be
	// diagnosed without re-deriving the plan.
	FailedOp *Operation `json:"-"`

	Err          error                    `json:"-"`
	Verification *core.VerificationResult `json:"verification,omitempty"`
	Outputs      core.Outputs             `json:"outputs"`

	// Explanation is the human-readable account of the terminal state,
	// naming the specific object, grant or binding involved.
	Explanation string `json:"explanation"`
}

// Run converges the platform onto the target state. The returned result
// always carries a terminal state; validation failures end the run before
// any network call.
func (r *Runner) Run(ctx context.Context, target core.TargetState) *Result {
	runID := xid.New().String()
	logger := log.Ctx(ctx).With().Str("run_id", runID).Logger()
	ctx = logger.WithContext(ctx)

	result := &Result{
		RunID:   runID,
		State:   core.StateInit,
		Outputs: target.Outputs(),
	}
	defer r.auditRun(result)

	// validation happens strictly before PLANNING: a malformed target must
	// fail without touching the network
	if err := validation.ValidateTarget(target); err != nil {
		result.State = core.StateFailed
		result.Err = err
		result.Explanation = "target state rejected: " + err.Error()
		return result
	}

	logger.Info().
		Str("role", target.RoleName).
		Str("database", target.DatabaseName).
		Str("user", target.ServiceUserName).
		Msg("starting provisioning run")

	result.State = core.StatePlanning
	plan, err := BuildPlan(ctx, r.store, target)
	if err != nil {
		result.State = core.StateFailed
		result.Err = err
		result.Explanation = "reading platform state failed: " + err.Error()
		return result
	}
	result.Plan = plan
	logger.Info().Int("operations", len(plan.Ops)).Msg("plan built")

	result.State = core.StateExecuting
	r.execute(ctx, plan, result)
	if result.State.Terminal() {
		return result
	}

	result.State = core.StateVerifying
	verification := r.verifier.Verify(ctx, target)
	result.Verification = &verification
	if !verification.Passed() {
		result.State = core.StateFailed
		result.Err = core.NewError(core.KindTimeout, "verify", "user "+target.ServiceUserName,
			fmt.Errorf("verification budget exhausted after %d attempts", verification.Attempts))
		result.Explanation = explainVerification(verification)
		return result
	}

	result.State = core.StateConverged
	result.Explanation = fmt.Sprintf(
		"target state converged: service user %s is bound to %s principal %s and holds role %s, which owns database %s",
		target.ServiceUserName, target.FederatedIdentity.Provider,
		target.FederatedIdentity.PrincipalRef, target.RoleName, target.DatabaseName)
	logger.Info().Msg("run converged")
	return result
}

// execute runs the plan strictly in order and stops at the first error.
// Committed operations stay committed. After cancellation, no further
// operation is started.
func (r *Runner) execute(ctx context.Context, plan *Plan, result *Result) {
	logger := log.Ctx(ctx)

	for i, op := range plan.Ops {
		if err := ctx.Err(); err != nil {
			result.State = core.StateFailed
			result.FailedOp = &op
			result.Err = core.NewError(core.KindTimeout, "execute", op.Describe(), err)
			result.Explanation = fmt.Sprintf("run cancelled before step %d (%s); the %d completed steps remain in place",
				i+1, op.Describe(), result.Executed)
			return
		}

		err := r.apply(ctx, plan.Target, op)
		r.auditOp(result.RunID, op, err)
		if err != nil {
			result.FailedOp = &op
			result.Err = err

			if core.KindOf(err) == core.KindFederationDrift {
				result.State = core.StateDrifted
				var typed *core.Error
				if errors.As(err, &typed) && typed.Wrapped != nil {
					result.Explanation = "federation drift: " + typed.Wrapped.Error()
				} else {
					result.Explanation = "federation drift: " + err.Error()
				}
				logger.Warn().Str("op", op.Describe()).Msg("run drifted")
				return
			}

			result.State = core.StateFailed
			result.Explanation = fmt.Sprintf("operation %q failed: %v; the %d completed steps remain in place",
				op.Describe(), err, result.Executed)
			logger.Error().Err(err).Str("op", op.Describe()).Msg("run failed")
			return
		}

		result.Executed++
		logger.Debug().Str("op", op.Describe()).Msg("operation applied")
	}
}

func (r *Runner) apply(ctx context.Context, target core.TargetState, op Operation) error {
	switch op.Kind {
	case OpCreate:
		_, err := r.store.EnsureExists(ctx, op.Object)
		return err
	case OpGrant:
		return r.store.Grant(ctx, op.Grant)
	case OpBind:
		_, err := r.binder.Bind(ctx, op.Object.Name, op.Binding,
			target.EffectiveDefaultRole(), target.DefaultComputeContext)
		return err
	default:
		return core.Validationf("unknown operation kind %q", op.Kind)
	}
}

func (r *Runner) auditOp(runID string, op Operation, opErr error) {
	entry := core.AuditEntry{
		ID:      runID,
		Time:    time.Now(),
		Action:  "op." + string(op.Kind),
		Object:  op.Describe(),
		State:   core.StateExecuting,
		Success: opErr == nil,
	}
	if opErr != nil {
		entry.Error = opErr.Error()
	}
	if err := r.auditor.Log(entry); err != nil {
		log.Error().Err(err).Msg("failed to write audit log entry for operation")
	}
}

func (r *Runner) auditRun(result *Result) {
	entry := core.AuditEntry{
		ID:      result.RunID,
		Time:    time.Now(),
		Action:  "run.converge",
		State:   result.State,
		Success: result.State == core.StateConverged,
		Metadata: map[string]any{
			"executed": result.Executed,
			"database": result.Outputs.Database,
			"user":     result.Outputs.ServiceUser,
		},
	}
	if result.Err != nil {
		entry.Error = result.Err.Error()
	}
	if err := r.auditor.Log(entry); err != nil {
		log.Error().Err(err).Msg("failed to write audit log entry for run")
	}
}

func explainVerification(v core.VerificationResult) string {
	msg := fmt.Sprintf("verification did not pass within %d attempts", v.Attempts)
	for _, d := range v.Details {
		msg += "; " + d
	}
	return msg
}
