package core

// CloudProvider identifies the cloud IAM system a workload identity lives in.
// The set is closed; validation rules differ only in reference format.
type CloudProvider string

const (
	ProviderAWS   CloudProvider = "AWS"
	ProviderAzure CloudProvider = "AZURE"
	ProviderGCP   CloudProvider = "GCP"
)

// BindingKind is the mechanism used to federate the external principal.
// Currently only workload identity is supported.
type BindingKind string

const BindingWorkloadIdentity BindingKind = "WORKLOAD_IDENTITY"

// FederationBinding describes the cloud-side half of a trust relationship:
// which external principal is allowed to authenticate as a platform service user.
type FederationBinding struct {
	// Provider is the cloud IAM system the principal belongs to.
	Provider CloudProvider `yaml:"cloud_provider" json:"cloud_provider"`

	// PrincipalRef is the provider-native reference to the compute identity,
	// e.g. an IAM role ARN for AWS or a service account email for GCP.
	PrincipalRef string `yaml:"external_principal_reference" json:"external_principal_reference"`

	// Kind is the federation mechanism. Defaults to WORKLOAD_IDENTITY.
	Kind BindingKind `yaml:"binding_kind" json:"binding_kind"`
}

// ObjectKind enumerates the platform object types the provisioner manages.
type ObjectKind string

const (
	KindRole        ObjectKind = "ROLE"
	KindDatabase    ObjectKind = "DATABASE"
	KindSchema      ObjectKind = "SCHEMA"
	KindServiceUser ObjectKind = "USER"
	KindWarehouse   ObjectKind = "WAREHOUSE"
)

// PlatformObject is a snapshot of one control-plane object, read fresh at the
// start of each run. It is never mutated locally; the Object Store adapter is
// the sole writer.
type PlatformObject struct {
	Name string
	Kind ObjectKind

	// Exists reports whether the object was found on the platform.
	Exists bool

	// Attributes are kind-specific properties as reported by the platform
	// (e.g. "type" and workload identity details for a service user).
	Attributes map[string]string
}

// Attribute keys reported by Describe for service users. The adapter
// normalizes platform property names to these.
const (
	AttrUserType          = "type"
	AttrWorkloadProvider  = "workload_identity_provider"
	AttrWorkloadPrincipal = "workload_identity_principal"
	AttrDefaultRole       = "default_role"
	AttrDefaultWarehouse  = "default_warehouse"
)

// UserTypeService is the platform user type for non-human identities.
const UserTypeService = "SERVICE"

// Privilege is a grantable platform privilege.
type Privilege string

const (
	PrivilegeOwnership Privilege = "OWNERSHIP"
	PrivilegeUsage     Privilege = "USAGE"
	PrivilegeRole      Privilege = "ROLE" // role granted to a user
)

// GrantSpec describes a single grant edge in the authorization graph.
type GrantSpec struct {
	// Privilege to grant.
	Privilege Privilege

	// On is the object the privilege applies to. For role-to-user grants
	// this is the role itself.
	On PlatformObject

	// To is the receiving subject (a role, or a user for role grants).
	To PlatformObject
}

// BindOutcome is the result of a Trust Binder bind call.
type BindOutcome string

const (
	// BindCreated means the service user was created with the binding attached.
	BindCreated BindOutcome = "CREATED"

	// BindUnchanged means the user already exists and its recorded binding
	// matches the target.
	BindUnchanged BindOutcome = "UNCHANGED"

	// BindDriftDetected means the user exists but its recorded binding points
	// at a different external principal. Never auto-corrected.
	BindDriftDetected BindOutcome = "DRIFT_DETECTED"
)

// RunState is the lifecycle state of a single provisioning run.
type RunState string

const (
	StateInit      RunState = "INIT"
	StatePlanning  RunState = "PLANNING"
	StateExecuting RunState = "EXECUTING"
	StateVerifying RunState = "VERIFYING"
	StateConverged RunState = "CONVERGED"
	StateFailed    RunState = "FAILED"
	StateDrifted   RunState = "DRIFTED"
)

// Terminal reports whether the state ends a run.
func (s RunState) Terminal() bool {
	return s == StateConverged || s == StateFailed || s == StateDrifted
}

// VerificationResult is the Verifier's terminal artifact. It is always a
// value; a failed verification is a result, not an error.
type VerificationResult struct {
	IdentityExists  bool `json:"identity_exists"`
	BindingResolved bool `json:"binding_resolved"`
	RoleAttached    bool `json:"role_attached"`

	// Attempts is how many describe rounds were used.
	Attempts int `json:"attempts"`

	// Details names what was (or wasn't) observed, per check.
	Details []string `json:"details,omitempty"`
}

// Passed reports whether all three checks succeeded.
func (r VerificationResult) Passed() bool {
	return r.IdentityExists && r.BindingResolved && r.RoleAttached
}

// Outputs is the contract exposed to external collaborators once a run
// converges: the bulk loader needs the database/schema names, the runtime
// service needs the user/role pair for its own federated login.
type Outputs struct {
	Database    string   `json:"database"`
	Schemas     []string `json:"schemas"`
	Role        string   `json:"role"`
	ServiceUser string   `json:"service_user"`
	Warehouse   string   `json:"warehouse,omitempty"`
}
