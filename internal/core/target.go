package core

// TargetState is the declarative input to a single provisioning run.
// It is immutable for the duration of the run.
type TargetState struct {
	// RoleName is the service role that will own the database.
	RoleName string `yaml:"role_name" json:"role_name"`

	// DatabaseName is the database to create and hand over to the role.
	DatabaseName string `yaml:"database_name" json:"database_name"`

	// SchemaNames are created inside DatabaseName, in order.
	// Defaults to the platform's default schema when empty.
	SchemaNames []string `yaml:"schema_names" json:"schema_names"`

	// FederatedIdentity binds the service user to a cloud compute identity.
	FederatedIdentity FederationBinding `yaml:"federated_identity" json:"federated_identity"`

	// ServiceUserName is the platform service user to create.
	ServiceUserName string `yaml:"service_user_name" json:"service_user_name"`

	// DefaultRole is the session default role for the service user.
	// Falls back to RoleName when empty.
	DefaultRole string `yaml:"default_role" json:"default_role"`

	// DefaultComputeContext pre-populates the service user's session compute
	// defaults (the warehouse, in platform terms). Optional.
	DefaultComputeContext string `yaml:"default_compute_context" json:"default_compute_context"`
}

// EffectiveDefaultRole returns DefaultRole, falling back to RoleName.
func (t TargetState) EffectiveDefaultRole() string {
	if t.DefaultRole != "" {
		return t.DefaultRole
	}
	return t.RoleName
}

// Outputs derives the collaborator contract from the target state.
func (t TargetState) Outputs() Outputs {
	return Outputs{
		Database:    t.DatabaseName,
		Schemas:     t.SchemaNames,
		Role:        t.RoleName,
		ServiceUser: t.ServiceUserName,
		Warehouse:   t.DefaultComputeContext,
	}
}
