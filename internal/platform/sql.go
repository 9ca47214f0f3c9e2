package platform

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/snowbind/snowbind/internal/core"
)

// SQLStore is the Object Store adapter over the platform's SQL control plane.
// It is driver-agnostic: the caller opens the *sql.DB with whatever driver
// reaches the platform (the CLI registers the snowflake driver).
//
// All writes go through here; the dynamic CREATE-IF-NOT-EXISTS pattern is
// replaced by an explicit existence query followed by a plain CREATE, so the
// idempotence contract is observable instead of relying on platform-side
// no-op semantics.
type SQLStore struct {
	db *sql.DB
}

var _ core.ObjectStore = (*SQLStore)(nil)

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Describe(ctx context.Context, name string, kind core.ObjectKind) (core.PlatformObject, bool, error) {
	obj := core.PlatformObject{Name: name, Kind: kind}

	var query string
	switch kind {
	case core.KindRole:
		query = fmt.Sprintf("SHOW ROLES LIKE '%s'", escapeLiteral(name))
	case core.KindDatabase:
		query = fmt.Sprintf("SHOW DATABASES LIKE '%s'", escapeLiteral(name))
	case core.KindWarehouse:
		query = fmt.Sprintf("SHOW WAREHOUSES LIKE '%s'", escapeLiteral(name))
	case core.KindSchema:
		db, schema, err := splitSchemaName(name)
		if err != nil {
			return obj, false, err
		}
		query = fmt.Sprintf("SHOW SCHEMAS LIKE '%s' IN DATABASE %s", escapeLiteral(schema), quoteIdent(db))
	case core.KindServiceUser:
		query = fmt.Sprintf("SHOW USERS LIKE '%s'", escapeLiteral(name))
	default:
		return obj, false, core.Validationf("cannot describe object kind %q", kind)
	}

	rows, err := s.query(ctx, query)
	if err != nil {
		return obj, false, classify(err, "describe", describeTarget(name, kind))
	}
	if len(rows) == 0 {
		return obj, false, nil
	}
	obj.Exists = true

	if kind == core.KindServiceUser {
		attrs, err := s.describeUser(ctx, name)
		if err != nil {
			return obj, true, err
		}
		obj.Attributes = attrs
	}
	return obj, true, nil
}

// describeUser reads the user's properties and normalizes the property names
// the platform reports into the adapter-neutral attribute keys.
func (s *SQLStore) describeUser(ctx context.Context, name string) (map[string]string, error) {
	rows, err := s.query(ctx, "DESCRIBE USER "+quoteIdent(name))
	if err != nil {
		return nil, classify(err, "describe", "user "+name)
	}

	attrs := make(map[string]string)
	for _, row := range rows {
		property := strings.ToLower(row["property"])
		value := row["value"]
		if value == "null" {
			value = ""
		}
		switch property {
		case "type":
			attrs[core.AttrUserType] = strings.ToUpper(value)
		case "default_role":
			attrs[core.AttrDefaultRole] = value
		case "default_warehouse":
			attrs[core.AttrDefaultWarehouse] = value
		case "workload_identity_provider":
			attrs[core.AttrWorkloadProvider] = strings.ToUpper(value)
		case "workload_identity_principal", "workload_identity_arn":
			attrs[core.AttrWorkloadPrincipal] = value
		}
	}
	return attrs, nil
}

func (s *SQLStore) EnsureExists(ctx context.Context, obj core.PlatformObject) (bool, error) {
	_, found, err := s.Describe(ctx, obj.Name, obj.Kind)
	if err != nil {
		return false, err
	}
	if found {
		return false, nil
	}

	var stmt string
	switch obj.Kind {
	case core.KindRole:
		stmt = "CREATE ROLE " + quoteIdent(obj.Name)
	case core.KindDatabase:
		stmt = "CREATE DATABASE " + quoteIdent(obj.Name)
	case core.KindSchema:
		db, schema, err := splitSchemaName(obj.Name)
		if err != nil {
			return false, err
		}
		stmt = fmt.Sprintf("CREATE SCHEMA %s.%s", quoteIdent(db), quoteIdent(schema))
	case core.KindServiceUser:
		// service users carry a trust binding and must be created through
		// CreateServiceUser so the binding is attached atomically
		return false, core.Validationf("service users must be created via the trust binder, not EnsureExists")
	default:
		return false, core.Validationf("cannot create object kind %q", obj.Kind)
	}

	if err := s.exec(ctx, stmt); err != nil {
		return false, classify(err, "create", describeTarget(obj.Name, obj.Kind))
	}
	log.Ctx(ctx).Info().Str("kind", string(obj.Kind)).Str("name", obj.Name).Msg("created platform object")
	return true, nil
}

func (s *SQLStore) Grant(ctx context.Context, g core.GrantSpec) error {
	var stmt string
	switch g.Privilege {
	case core.PrivilegeRole:
		stmt = fmt.Sprintf("GRANT ROLE %s TO USER %s", quoteIdent(g.On.Name), quoteIdent(g.To.Name))
	case core.PrivilegeOwnership:
		stmt = fmt.Sprintf("GRANT OWNERSHIP ON %s %s TO ROLE %s COPY CURRENT GRANTS",
			g.On.Kind, quoteQualified(g.On), quoteIdent(g.To.Name))
	case core.PrivilegeUsage:
		stmt = fmt.Sprintf("GRANT USAGE ON %s %s TO ROLE %s",
			g.On.Kind, quoteQualified(g.On), quoteIdent(g.To.Name))
	default:
		return core.Validationf("unsupported privilege %q", g.Privilege)
	}

	if err := s.exec(ctx, stmt); err != nil {
		return classify(err, "grant", grantTarget(g))
	}
	log.Ctx(ctx).Info().
		Str("privilege", string(g.Privilege)).
		Str("on", g.On.Name).
		Str("to", g.To.Name).
		Msg("granted")
	return nil
}

func (s *SQLStore) HasGrant(ctx context.Context, g core.GrantSpec) (bool, error) {
	switch g.Privilege {
	case core.PrivilegeRole:
		rows, err := s.query(ctx, "SHOW GRANTS TO USER "+quoteIdent(g.To.Name))
		if err != nil {
			return false, classify(err, "describe", grantTarget(g))
		}
		for _, row := range rows {
			if strings.EqualFold(row["role"], g.On.Name) {
				return true, nil
			}
		}
		return false, nil
	case core.PrivilegeOwnership, core.PrivilegeUsage:
		query := fmt.Sprintf("SHOW GRANTS ON %s %s", g.On.Kind, quoteQualified(g.On))
		rows, err := s.query(ctx, query)
		if err != nil {
			return false, classify(err, "describe", grantTarget(g))
		}
		for _, row := range rows {
			if strings.EqualFold(row["privilege"], string(g.Privilege)) &&
				strings.EqualFold(row["granted_to"], "ROLE") &&
				strings.EqualFold(row["grantee_name"], g.To.Name) {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, core.Validationf("unsupported privilege %q", g.Privilege)
	}
}

func (s *SQLStore) CreateServiceUser(ctx context.Context, name string, binding core.FederationBinding, defaultRole, defaultWarehouse string) error {
	var b strings.Builder
	b.WriteString("CREATE USER " + quoteIdent(name))
	b.WriteString(" TYPE = SERVICE")
	if defaultRole != "" {
		b.WriteString(" DEFAULT_ROLE = " + quoteIdent(defaultRole))
	}
	if defaultWarehouse != "" {
		b.WriteString(" DEFAULT_WAREHOUSE = " + quoteIdent(defaultWarehouse))
	}
	clause, err := bindingClause(binding)
	if err != nil {
		return err
	}
	b.WriteString(" WORKLOAD_IDENTITY = (" + clause + ")")

	if err := s.exec(ctx, b.String()); err != nil {
		return classify(err, "create", "user "+name)
	}
	return nil
}

func (s *SQLStore) AlterSessionDefaults(ctx context.Context, name, defaultRole, defaultWarehouse string) error {
	var parts []string
	if defaultRole != "" {
		parts = append(parts, "DEFAULT_ROLE = "+quoteIdent(defaultRole))
	}
	if defaultWarehouse != "" {
		parts = append(parts, "DEFAULT_WAREHOUSE = "+quoteIdent(defaultWarehouse))
	}
	if len(parts) == 0 {
		return nil
	}
	stmt := fmt.Sprintf("ALTER USER %s SET %s", quoteIdent(name), strings.Join(parts, " "))
	if err := s.exec(ctx, stmt); err != nil {
		return classify(err, "alter", "user "+name)
	}
	return nil
}

func (s *SQLStore) ReplaceBinding(ctx context.Context, name string, binding core.FederationBinding) error {
	clause, err := bindingClause(binding)
	if err != nil {
		return err
	}
	stmt := fmt.Sprintf("ALTER USER %s SET WORKLOAD_IDENTITY = (%s)", quoteIdent(name), clause)
	if err := s.exec(ctx, stmt); err != nil {
		return classify(err, "bind", "user "+name)
	}
	return nil
}

// bindingClause renders the provider-specific part of a workload identity
// definition. The provider set is closed, so this is a plain switch.
func bindingClause(b core.FederationBinding) (string, error) {
	ref := escapeLiteral(b.PrincipalRef)
	switch b.Provider {
	case core.ProviderAWS:
		return fmt.Sprintf("TYPE = AWS ARN = '%s'", ref), nil
	case core.ProviderAzure:
		return fmt.Sprintf("TYPE = AZURE CLIENT_ID = '%s'", ref), nil
	case core.ProviderGCP:
		return fmt.Sprintf("TYPE = GCP SERVICE_ACCOUNT = '%s'", ref), nil
	default:
		return "", core.Validationf("unknown cloud provider %q", b.Provider)
	}
}

func (s *SQLStore) exec(ctx context.Context, stmt string) error {
	log.Ctx(ctx).Debug().Str("stmt", stmt).Msg("executing")
	_, err := s.db.ExecContext(ctx, stmt)
	return err
}

// query runs a statement and scans every row into a column-name → value map.
// SHOW and DESCRIBE output varies by platform version, so the adapter scans
// dynamically instead of binding to a fixed column list.
func (s *SQLStore) query(ctx context.Context, query string) ([]map[string]string, error) {
	log.Ctx(ctx).Debug().Str("query", query).Msg("querying")
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []map[string]string
	for rows.Next() {
		values := make([]sql.NullString, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]string, len(cols))
		for i, col := range cols {
			row[strings.ToLower(col)] = values[i].String
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// quoteQualified quotes an object name, splitting schema names into their
// database and schema parts.
func quoteQualified(obj core.PlatformObject) string {
	if obj.Kind == core.KindSchema {
		if db, schema, err := splitSchemaName(obj.Name); err == nil {
			return quoteIdent(db) + "." + quoteIdent(schema)
		}
	}
	return quoteIdent(obj.Name)
}

func escapeLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

func splitSchemaName(name string) (db, schema string, err error) {
	parts := strings.SplitN(name, ".", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", core.Validationf("schema name %q must be qualified as DATABASE.SCHEMA", name)
	}
	return parts[0], parts[1], nil
}

func describeTarget(name string, kind core.ObjectKind) string {
	return strings.ToLower(string(kind)) + " " + name
}

func grantTarget(g core.GrantSpec) string {
	if g.Privilege == core.PrivilegeRole {
		return fmt.Sprintf("role %s to user %s", g.On.Name, g.To.Name)
	}
	return fmt.Sprintf("%s on %s %s to role %s",
		strings.ToLower(string(g.Privilege)), strings.ToLower(string(g.On.Kind)), g.On.Name, g.To.Name)
}
