package converge

import (
	"context"
	"fmt"
	"strings"

	"github.com/snowbind/snowbind/internal/core"
	"github.com/snowbind/snowbind/internal/federation"
)

// OpKind enumerates the typed operations a plan can contain.
type OpKind string

const (
	// OpCreate creates a platform object that the snapshot showed absent.
	OpCreate OpKind = "CREATE"

	// OpGrant establishes one grant edge.
	OpGrant OpKind = "GRANT"

	// OpBind delegates to the Trust Binder: create-with-binding, converge
	// session defaults, or surface drift.
	OpBind OpKind = "BIND"
)

// Operation is one step of a convergence plan.
type Operation struct {
	Kind OpKind

	// Object is set for OpCreate and OpBind.
	Object core.PlatformObject

	// Grant is set for OpGrant.
	Grant core.GrantSpec

	// Binding is set for OpBind.
	Binding core.FederationBinding
}

// Describe names the operation and its object for logs, audit entries and
// failure reports.
func (o Operation) Describe() string {
	switch o.Kind {
	case OpCreate:
		return fmt.Sprintf("create %s %s", strings.ToLower(string(o.Object.Kind)), o.Object.Name)
	case OpGrant:
		if o.Grant.Privilege == core.PrivilegeRole {
			return fmt.Sprintf("grant role %s to user %s", o.Grant.On.Name, o.Grant.To.Name)
		}
		return fmt.Sprintf("grant %s on %s %s to role %s",
			strings.ToLower(string(o.Grant.Privilege)),
			strings.ToLower(string(o.Grant.On.Kind)), o.Grant.On.Name, o.Grant.To.Name)
	case OpBind:
		return fmt.Sprintf("bind user %s to %s principal %s",
			o.Object.Name, o.Binding.Provider, o.Binding.PrincipalRef)
	}
	return string(o.Kind)
}

// Plan is the ordered operation sequence for one run. It is built once from
// a fresh platform snapshot and executed in order; later grants depend on
// earlier object creation, so the order is a correctness requirement and is
// never changed mid-execution.
type Plan struct {
	Target core.TargetState
	Ops    []Operation
}

// Empty reports whether the platform already satisfies the target state.
func (p *Plan) Empty() bool {
	return len(p.Ops) == 0
}

// BuildPlan diffs the target state against a fresh read of platform state
// and emits the minimal operation sequence, in dependency order:
// role, database, schemas, ownership grants, service user with binding,
// role grant to the user.
func BuildPlan(ctx context.Context, store core.ObjectStore, target core.TargetState) (*Plan, error) {
	plan := &Plan{Target: target}

	role := core.PlatformObject{Name: target.RoleName, Kind: core.KindRole}
	roleExists, err := planCreate(ctx, store, plan, role)
	if err != nil {
		return nil, err
	}

	database := core.PlatformObject{Name: target.DatabaseName, Kind: core.KindDatabase}
	dbExists, err := planCreate(ctx, store, plan, database)
	if err != nil {
		return nil, err
	}

	var (
		schemas      []core.PlatformObject
		schemasExist []bool
	)
	for _, name := range target.SchemaNames {
		schema := core.PlatformObject{
			Name: target.DatabaseName + "." + name,
			Kind: core.KindSchema,
		}
		schemas = append(schemas, schema)
		if !dbExists {
			// the database is only being created in this plan, so the
			// schema cannot exist yet
			plan.Ops = append(plan.Ops, Operation{Kind: OpCreate, Object: schema})
			schemasExist = append(schemasExist, false)
			continue
		}
		exists, err := planCreate(ctx, store, plan, schema)
		if err != nil {
			return nil, err
		}
		schemasExist = append(schemasExist, exists)
	}

	// ownership transfers: database then schemas, always to the service role
	ownDB := core.GrantSpec{Privilege: core.PrivilegeOwnership, On: database, To: role}
	if err := planGrant(ctx, store, plan, ownDB, dbExists && roleExists); err != nil {
		return nil, err
	}
	for i, schema := range schemas {
		ownSchema := core.GrantSpec{Privilege: core.PrivilegeOwnership, On: schema, To: role}
		if err := planGrant(ctx, store, plan, ownSchema, schemasExist[i] && roleExists); err != nil {
			return nil, err
		}
	}

	// The service user goes through the Trust Binder, never a generic
	// create: identity creation must carry the federation descriptor
	// atomically so the user never exists without its binding.
	user := core.PlatformObject{Name: target.ServiceUserName, Kind: core.KindServiceUser}
	userSnapshot, userExists, err := store.Describe(ctx, user.Name, user.Kind)
	if err != nil {
		return nil, err
	}
	needsBind := !userExists
	if userExists {
		recorded := federation.RecordedBinding(userSnapshot)
		if !federation.SamePrincipal(recorded, target.FederatedIdentity) {
			// stale binding: let the binder decide between drift and an
			// operator-approved rebind at execution time
			needsBind = true
		} else if sessionDefaultsDiffer(userSnapshot, target) {
			needsBind = true
		}
	}
	if needsBind {
		plan.Ops = append(plan.Ops, Operation{
			Kind:    OpBind,
			Object:  user,
			Binding: target.FederatedIdentity,
		})
	}

	// role grant to the service user comes last: it depends on both the
	// role and the bound user
	roleGrant := core.GrantSpec{Privilege: core.PrivilegeRole, On: role, To: user}
	if err := planGrant(ctx, store, plan, roleGrant, userExists && roleExists); err != nil {
		return nil, err
	}

	return plan, nil
}

// planCreate queries existence and appends a create operation when the
// object is absent. Returns whether the object already exists.
func planCreate(ctx context.Context, store core.ObjectStore, plan *Plan, obj core.PlatformObject) (bool, error) {
	_, found, err := store.Describe(ctx, obj.Name, obj.Kind)
	if err != nil {
		return false, err
	}
	if !found {
		plan.Ops = append(plan.Ops, Operation{Kind: OpCreate, Object: obj})
	}
	return found, nil
}

// planGrant appends a grant operation unless the grant already holds.
// When either end of the edge does not exist yet, the grant cannot hold and
// the existence query is skipped.
func planGrant(ctx context.Context, store core.ObjectStore, plan *Plan, g core.GrantSpec, bothExist bool) error {
	if bothExist {
		held, err := store.HasGrant(ctx, g)
		if err != nil {
			return err
		}
		if held {
			return nil
		}
	}
	plan.Ops = append(plan.Ops, Operation{Kind: OpGrant, Grant: g})
	return nil
}

func sessionDefaultsDiffer(user core.PlatformObject, target core.TargetState) bool {
	if user.Attributes[core.AttrDefaultRole] != target.EffectiveDefaultRole() {
		return true
	}
	if target.DefaultComputeContext != "" &&
		user.Attributes[core.AttrDefaultWarehouse] != target.DefaultComputeContext {
		return true
	}
	return false
}
