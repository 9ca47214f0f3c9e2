package converge

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/snowbind/snowbind/internal/core"
	"github.com/snowbind/snowbind/internal/platform"
)

func demoTarget() core.TargetState {
	return core.TargetState{
		RoleName:     "SA_ROLE",
		DatabaseName: "DEMO_DB",
		SchemaNames:  []string{"PUBLIC"},
		FederatedIdentity: core.FederationBinding{
			Provider:     core.ProviderAWS,
			PrincipalRef: "arn:aws:iam::123456789012:role/apprunner-role",
			Kind:         core.BindingWorkloadIdentity,
		},
		ServiceUserName:       "APPRUNNER_USER",
		DefaultRole:           "SA_ROLE",
		DefaultComputeContext: "COMPUTE_WH",
	}
}

func TestBuildPlan_EmptyPlatform(t *testing.T) {
	store := platform.NewMemoryStore()

	plan, err := BuildPlan(context.Background(), store, demoTarget())
	if err != nil {
		t.Fatalf("BuildPlan() error = %v", err)
	}

	var got []string
	for _, op := range plan.Ops {
		got = append(got, op.Describe())
	}
	want := []string{
		"create role SA_ROLE",
		"create database DEMO_DB",
		"create schema DEMO_DB.PUBLIC",
		"grant ownership on database DEMO_DB to role SA_ROLE",
		"grant ownership on schema DEMO_DB.PUBLIC to role SA_ROLE",
		"bind user APPRUNNER_USER to AWS principal arn:aws:iam::123456789012:role/apprunner-role",
		"grant role SA_ROLE to user APPRUNNER_USER",
	}
	if len(got) != len(want) {
		t.Fatalf("plan has %d ops, want %d:\n%v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("op %d = %q, want %q", i+1, got[i], want[i])
		}
	}
}

// Grants must never be scheduled before the objects they reference: either
// the object exists on the platform already, or its create op precedes the
// grant in the same plan.
func TestBuildPlan_GrantsNeverPrecedeObjects(t *testing.T) {
	store := platform.NewMemoryStore()
	plan, err := BuildPlan(context.Background(), store, demoTarget())
	if err != nil {
		t.Fatalf("BuildPlan() error = %v", err)
	}

	available := make(map[string]bool)
	for i, op := range plan.Ops {
		switch op.Kind {
		case OpCreate:
			available[string(op.Object.Kind)+"/"+op.Object.Name] = true
		case OpBind:
			available[string(core.KindServiceUser)+"/"+op.Object.Name] = true
		case OpGrant:
			onKey := string(op.Grant.On.Kind) + "/" + op.Grant.On.Name
			toKey := string(op.Grant.To.Kind) + "/" + op.Grant.To.Name
			if !available[onKey] {
				t.Errorf("op %d grants on %s before it is available in the plan", i+1, onKey)
			}
			if !available[toKey] {
				t.Errorf("op %d grants to %s before it is available in the plan", i+1, toKey)
			}
		}
	}
}

func TestBuildPlan_SatisfiedPlatformYieldsEmptyPlan(t *testing.T) {
	store := platform.NewMemoryStore()
	target := demoTarget()
	ctx := context.Background()

	runner := NewRunner(store, testBinder(store), testVerifier(store), noopAuditor{})
	if res := runner.Run(ctx, target); res.State != core.StateConverged {
		t.Fatalf("setup run ended %s: %s", res.State, res.Explanation)
	}

	plan, err := BuildPlan(ctx, store, target)
	if err != nil {
		t.Fatalf("BuildPlan() error = %v", err)
	}
	if !plan.Empty() {
		var ops []string
		for _, op := range plan.Ops {
			ops = append(ops, op.Describe())
		}
		t.Fatalf("expected empty plan, got %v", ops)
	}
}

func TestBuildPlan_MissingSchemaOnly(t *testing.T) {
	store := platform.NewMemoryStore()
	target := demoTarget()
	ctx := context.Background()

	runner := NewRunner(store, testBinder(store), testVerifier(store), noopAuditor{})
	if res := runner.Run(ctx, target); res.State != core.StateConverged {
		t.Fatalf("setup run ended %s: %s", res.State, res.Explanation)
	}

	// a second schema appears in the target
	target.SchemaNames = []string{"PUBLIC", "STAGING"}
	plan, err := BuildPlan(ctx, store, target)
	if err != nil {
		t.Fatalf("BuildPlan() error = %v", err)
	}

	var got []string
	for _, op := range plan.Ops {
		got = append(got, op.Describe())
	}
	want := []string{
		"create schema DEMO_DB.STAGING",
		"grant ownership on schema DEMO_DB.STAGING to role SA_ROLE",
	}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("plan = %v, want %v", got, want)
	}
}

// A run that died after creating the role and database but before the schema
// must resume on replay. The control plane rejects grant queries against a
// missing schema, so the planner must not query grants on objects it has
// only scheduled for creation; the in-memory store tolerates that, the SQL
// control plane does not.
func TestBuildPlan_ResumesAfterPartialRun(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	store := platform.NewSQLStore(db)

	mock.ExpectQuery("SHOW ROLES LIKE 'SA_ROLE'").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("SA_ROLE"))
	mock.ExpectQuery("SHOW DATABASES LIKE 'DEMO_DB'").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("DEMO_DB"))
	mock.ExpectQuery(`SHOW SCHEMAS LIKE 'PUBLIC' IN DATABASE "DEMO_DB"`).
		WillReturnRows(sqlmock.NewRows([]string{"name"}))
	mock.ExpectQuery(`SHOW GRANTS ON DATABASE "DEMO_DB"`).
		WillReturnRows(sqlmock.NewRows([]string{"privilege", "granted_to", "grantee_name"}).
			AddRow("OWNERSHIP", "ROLE", "SA_ROLE"))
	// no SHOW GRANTS ON SCHEMA here: querying the missing schema would fail
	// with "does not exist or not authorized"
	mock.ExpectQuery("SHOW USERS LIKE 'APPRUNNER_USER'").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("APPRUNNER_USER"))
	mock.ExpectQuery(`DESCRIBE USER "APPRUNNER_USER"`).
		WillReturnRows(sqlmock.NewRows([]string{"property", "value"}).
			AddRow("TYPE", "SERVICE").
			AddRow("DEFAULT_ROLE", "SA_ROLE").
			AddRow("DEFAULT_WAREHOUSE", "COMPUTE_WH").
			AddRow("WORKLOAD_IDENTITY_PROVIDER", "AWS").
			AddRow("WORKLOAD_IDENTITY_ARN", "arn:aws:iam::123456789012:role/apprunner-role"))
	mock.ExpectQuery(`SHOW GRANTS TO USER "APPRUNNER_USER"`).
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow("SA_ROLE"))

	plan, err := BuildPlan(context.Background(), store, demoTarget())
	if err != nil {
		t.Fatalf("BuildPlan() failed instead of resuming: %v", err)
	}

	var got []string
	for _, op := range plan.Ops {
		got = append(got, op.Describe())
	}
	want := []string{
		"create schema DEMO_DB.PUBLIC",
		"grant ownership on schema DEMO_DB.PUBLIC to role SA_ROLE",
	}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("plan = %v, want %v", got, want)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unexpected query sequence: %v", err)
	}
}
