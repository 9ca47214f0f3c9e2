package validation

import (
	"regexp"

	"github.com/snowbind/snowbind/internal/core"
	"github.com/snowbind/snowbind/internal/federation"
)

// identifierPattern matches unquoted platform identifiers.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)

// ValidateTarget checks a TargetState before any network call. All failures
// are VALIDATION errors; nothing is planned for an invalid target.
func ValidateTarget(t core.TargetState) error {
	if t.RoleName == "" {
		return core.Validationf("role_name is required")
	}
	if t.DatabaseName == "" {
		return core.Validationf("database_name is required")
	}
	if t.ServiceUserName == "" {
		return core.Validationf("service_user_name is required")
	}

	named := map[string]string{
		"role_name":         t.RoleName,
		"database_name":     t.DatabaseName,
		"service_user_name": t.ServiceUserName,
	}
	if t.DefaultRole != "" {
		named["default_role"] = t.DefaultRole
	}
	if t.DefaultComputeContext != "" {
		named["default_compute_context"] = t.DefaultComputeContext
	}
	for field, value := range named {
		if !identifierPattern.MatchString(value) {
			return core.Validationf("%s %q is not a valid platform identifier", field, value)
		}
	}

	seen := make(map[string]struct{})
	for _, schema := range t.SchemaNames {
		if !identifierPattern.MatchString(schema) {
			return core.Validationf("schema name %q is not a valid platform identifier", schema)
		}
		if _, dup := seen[schema]; dup {
			return core.Validationf("schema name %q appears more than once", schema)
		}
		seen[schema] = struct{}{}
	}

	if err := federation.ValidateBinding(t.FederatedIdentity); err != nil {
		return err
	}

	return nil
}
