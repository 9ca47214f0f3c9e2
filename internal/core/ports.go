package core

import "context"

// ObjectStore wraps the data platform's control plane. It is the sole writer
// of platform state; every other component goes through it.
// Implementations: SQL adapter, in-memory store.
type ObjectStore interface {
	// Describe reads one object fresh from the platform. A missing object is
	// reported via found=false, not via an error.
	Describe(ctx context.Context, name string, kind ObjectKind) (PlatformObject, bool, error)

	// EnsureExists creates the object if absent. Safe to call when the
	// object already exists: returns created=false without error. Existence
	// is checked by query, never by create-and-catch.
	EnsureExists(ctx context.Context, obj PlatformObject) (created bool, err error)

	// Grant establishes a grant edge. Safe to call when the grant already
	// holds; no duplicate-grant error is surfaced.
	Grant(ctx context.Context, g GrantSpec) error

	// HasGrant reports whether the grant edge already holds.
	HasGrant(ctx context.Context, g GrantSpec) (bool, error)

	// CreateServiceUser creates a service user with its federation binding
	// attached atomically: the user must never exist, even transiently,
	// without the binding. DefaultRole and warehouse are session defaults.
	CreateServiceUser(ctx context.Context, name string, binding FederationBinding, defaultRole, defaultWarehouse string) error

	// AlterSessionDefaults updates the service user's default role and
	// warehouse without touching the trust binding.
	AlterSessionDefaults(ctx context.Context, name, defaultRole, defaultWarehouse string) error

	// ReplaceBinding overwrites the service user's federation binding.
	// Only the Trust Binder may call this, and only under an explicit
	// operator override.
	ReplaceBinding(ctx context.Context, name string, binding FederationBinding) error
}
