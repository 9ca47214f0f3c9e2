package federation

import (
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws/arn"

	"github.com/snowbind/snowbind/internal/core"
)

var (
	// Azure workload identities are referenced by the application (client) ID,
	// a plain GUID.
	azureClientIDPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

	// GCP workload identities are referenced by service account email.
	gcpServiceAccountPattern = regexp.MustCompile(`^[a-z]([a-z0-9-]{4,28}[a-z0-9])?@[a-z][a-z0-9-]{4,28}[a-z0-9]\.iam\.gserviceaccount\.com$`)
)

// Normalize fills binding defaults: the binding kind defaults to workload
// identity, the provider name is upper-cased.
func Normalize(b core.FederationBinding) core.FederationBinding {
	if b.Kind == "" {
		b.Kind = core.BindingWorkloadIdentity
	}
	b.Provider = core.CloudProvider(strings.ToUpper(string(b.Provider)))
	return b
}

// ValidateBinding checks the binding syntactically, before any network call.
// The provider set is closed; each provider only differs in the reference
// format it accepts.
func ValidateBinding(b core.FederationBinding) error {
	b = Normalize(b)

	if b.Kind != core.BindingWorkloadIdentity {
		return core.Validationf("unsupported binding kind %q, only %s is supported", b.Kind, core.BindingWorkloadIdentity)
	}
	if b.PrincipalRef == "" {
		return core.Validationf("federated_identity.external_principal_reference is required")
	}

	switch b.Provider {
	case core.ProviderAWS:
		parsed, err := arn.Parse(b.PrincipalRef)
		if err != nil {
			return core.Validationf("invalid AWS principal reference %q: %v", b.PrincipalRef, err)
		}
		if parsed.Service != "iam" && parsed.Service != "sts" {
			return core.Validationf("AWS principal reference %q must be an IAM or STS ARN, got service %q", b.PrincipalRef, parsed.Service)
		}
	case core.ProviderAzure:
		if !azureClientIDPattern.MatchString(b.PrincipalRef) {
			return core.Validationf("invalid Azure principal reference %q: expected an application (client) ID GUID", b.PrincipalRef)
		}
	case core.ProviderGCP:
		if !gcpServiceAccountPattern.MatchString(b.PrincipalRef) {
			return core.Validationf("invalid GCP principal reference %q: expected a service account email", b.PrincipalRef)
		}
	default:
		return core.Validationf("unknown cloud provider %q (expected AWS, AZURE or GCP)", b.Provider)
	}
	return nil
}

// SamePrincipal reports whether the recorded binding resolves to the same
// external principal as the target. Comparison is case-insensitive on the
// provider and exact on the reference.
func SamePrincipal(recorded, target core.FederationBinding) bool {
	recorded, target = Normalize(recorded), Normalize(target)
	return recorded.Provider == target.Provider && recorded.PrincipalRef == target.PrincipalRef
}
