package platform

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snowbind/snowbind/internal/core"
)

func newMockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return NewSQLStore(db), mock
}

func TestSQLStore_DescribeRole(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SHOW ROLES LIKE 'SA_ROLE'").
		WillReturnRows(sqlmock.NewRows([]string{"name", "owner"}).AddRow("SA_ROLE", "ACCOUNTADMIN"))

	obj, found, err := store.Describe(context.Background(), "SA_ROLE", core.KindRole)
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, obj.Exists)
}

func TestSQLStore_DescribeRoleNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SHOW ROLES LIKE 'SA_ROLE'").
		WillReturnRows(sqlmock.NewRows([]string{"name"}))

	_, found, err := store.Describe(context.Background(), "SA_ROLE", core.KindRole)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSQLStore_DescribeSchemaRequiresQualifiedName(t *testing.T) {
	store, _ := newMockStore(t)

	_, _, err := store.Describe(context.Background(), "PUBLIC", core.KindSchema)
	require.Error(t, err)
	assert.Equal(t, core.KindValidation, core.KindOf(err))
}

func TestSQLStore_DescribeServiceUserNormalizesProperties(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SHOW USERS LIKE 'APPRUNNER_USER'").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("APPRUNNER_USER"))
	mock.ExpectQuery(`DESCRIBE USER "APPRUNNER_USER"`).
		WillReturnRows(sqlmock.NewRows([]string{"property", "value"}).
			AddRow("TYPE", "service").
			AddRow("DEFAULT_ROLE", "SA_ROLE").
			AddRow("DEFAULT_WAREHOUSE", "null").
			AddRow("WORKLOAD_IDENTITY_PROVIDER", "aws").
			AddRow("WORKLOAD_IDENTITY_ARN", "arn:aws:iam::123456789012:role/apprunner-role").
			AddRow("COMMENT", "unrelated"))

	obj, found, err := store.Describe(context.Background(), "APPRUNNER_USER", core.KindServiceUser)
	require.NoError(t, err)
	require.True(t, found)

	assert.Equal(t, core.UserTypeService, obj.Attributes[core.AttrUserType])
	assert.Equal(t, "SA_ROLE", obj.Attributes[core.AttrDefaultRole])
	assert.Equal(t, "", obj.Attributes[core.AttrDefaultWarehouse], "the null sentinel must read as empty")
	assert.Equal(t, "AWS", obj.Attributes[core.AttrWorkloadProvider])
	assert.Equal(t, "arn:aws:iam::123456789012:role/apprunner-role", obj.Attributes[core.AttrWorkloadPrincipal])
}

func TestSQLStore_EnsureExistsCreatesAbsentDatabase(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SHOW DATABASES LIKE 'DEMO_DB'").
		WillReturnRows(sqlmock.NewRows([]string{"name"}))
	mock.ExpectExec(`CREATE DATABASE "DEMO_DB"`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	created, err := store.EnsureExists(context.Background(), core.PlatformObject{Name: "DEMO_DB", Kind: core.KindDatabase})
	require.NoError(t, err)
	assert.True(t, created)
}

func TestSQLStore_EnsureExistsSkipsPresentRole(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SHOW ROLES LIKE 'SA_ROLE'").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("SA_ROLE"))

	created, err := store.EnsureExists(context.Background(), core.PlatformObject{Name: "SA_ROLE", Kind: core.KindRole})
	require.NoError(t, err)
	assert.False(t, created, "a present object must not be re-created")
}

func TestSQLStore_EnsureExistsRejectsServiceUsers(t *testing.T) {
	store, _ := newMockStore(t)

	_, err := store.EnsureExists(context.Background(), core.PlatformObject{Name: "APPRUNNER_USER", Kind: core.KindServiceUser})
	require.Error(t, err)
	assert.Equal(t, core.KindValidation, core.KindOf(err))
}

func TestSQLStore_GrantStatements(t *testing.T) {
	tests := []struct {
		name string
		spec core.GrantSpec
		stmt string
	}{
		{
			name: "role to user",
			spec: core.GrantSpec{
				Privilege: core.PrivilegeRole,
				On:        core.PlatformObject{Name: "SA_ROLE", Kind: core.KindRole},
				To:        core.PlatformObject{Name: "APPRUNNER_USER", Kind: core.KindServiceUser},
			},
			stmt: `GRANT ROLE "SA_ROLE" TO USER "APPRUNNER_USER"`,
		},
		{
			name: "database ownership",
			spec: core.GrantSpec{
				Privilege: core.PrivilegeOwnership,
				On:        core.PlatformObject{Name: "DEMO_DB", Kind: core.KindDatabase},
				To:        core.PlatformObject{Name: "SA_ROLE", Kind: core.KindRole},
			},
			stmt: `GRANT OWNERSHIP ON DATABASE "DEMO_DB" TO ROLE "SA_ROLE" COPY CURRENT GRANTS`,
		},
		{
			name: "schema ownership splits the qualified name",
			spec: core.GrantSpec{
				Privilege: core.PrivilegeOwnership,
				On:        core.PlatformObject{Name: "DEMO_DB.PUBLIC", Kind: core.KindSchema},
				To:        core.PlatformObject{Name: "SA_ROLE", Kind: core.KindRole},
			},
			stmt: `GRANT OWNERSHIP ON SCHEMA "DEMO_DB"."PUBLIC" TO ROLE "SA_ROLE" COPY CURRENT GRANTS`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMockStore(t)
			mock.ExpectExec(tt.stmt).WillReturnResult(sqlmock.NewResult(0, 0))

			require.NoError(t, store.Grant(context.Background(), tt.spec))
		})
	}
}

func TestSQLStore_HasGrantRole(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SHOW GRANTS TO USER "APPRUNNER_USER"`).
		WillReturnRows(sqlmock.NewRows([]string{"role", "granted_by"}).
			AddRow("PUBLIC", "").
			AddRow("sa_role", "ACCOUNTADMIN"))

	held, err := store.HasGrant(context.Background(), core.GrantSpec{
		Privilege: core.PrivilegeRole,
		On:        core.PlatformObject{Name: "SA_ROLE", Kind: core.KindRole},
		To:        core.PlatformObject{Name: "APPRUNNER_USER", Kind: core.KindServiceUser},
	})
	require.NoError(t, err)
	assert.True(t, held, "role names compare case-insensitively")
}

func TestSQLStore_HasGrantOwnership(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SHOW GRANTS ON DATABASE "DEMO_DB"`).
		WillReturnRows(sqlmock.NewRows([]string{"privilege", "granted_to", "grantee_name"}).
			AddRow("USAGE", "ROLE", "PUBLIC").
			AddRow("OWNERSHIP", "ROLE", "SA_ROLE"))

	held, err := store.HasGrant(context.Background(), core.GrantSpec{
		Privilege: core.PrivilegeOwnership,
		On:        core.PlatformObject{Name: "DEMO_DB", Kind: core.KindDatabase},
		To:        core.PlatformObject{Name: "SA_ROLE", Kind: core.KindRole},
	})
	require.NoError(t, err)
	assert.True(t, held)
}

func TestSQLStore_CreateServiceUser(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`CREATE USER "APPRUNNER_USER" TYPE = SERVICE` +
		` DEFAULT_ROLE = "SA_ROLE" DEFAULT_WAREHOUSE = "COMPUTE_WH"` +
		` WORKLOAD_IDENTITY = (TYPE = AWS ARN = 'arn:aws:iam::123456789012:role/apprunner-role')`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.CreateServiceUser(context.Background(), "APPRUNNER_USER", core.FederationBinding{
		Provider:     core.ProviderAWS,
		PrincipalRef: "arn:aws:iam::123456789012:role/apprunner-role",
		Kind:         core.BindingWorkloadIdentity,
	}, "SA_ROLE", "COMPUTE_WH")
	require.NoError(t, err)
}

func TestSQLStore_ReplaceBinding(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`ALTER USER "APPRUNNER_USER" SET WORKLOAD_IDENTITY = (TYPE = AZURE CLIENT_ID = '11111111-2222-3333-4444-555555555555')`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.ReplaceBinding(context.Background(), "APPRUNNER_USER", core.FederationBinding{
		Provider:     core.ProviderAzure,
		PrincipalRef: "11111111-2222-3333-4444-555555555555",
		Kind:         core.BindingWorkloadIdentity,
	})
	require.NoError(t, err)
}

func TestSQLStore_AlterSessionDefaultsNoopWithoutChanges(t *testing.T) {
	store, _ := newMockStore(t)

	// nothing to set, nothing to execute
	require.NoError(t, store.AlterSessionDefaults(context.Background(), "APPRUNNER_USER", "", ""))
}

func TestSQLStore_PermissionErrorsAreClassified(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SHOW ROLES LIKE 'SA_ROLE'").
		WillReturnRows(sqlmock.NewRows([]string{"name"}))
	mock.ExpectExec(`CREATE ROLE "SA_ROLE"`).
		WillReturnError(errors.New("002003 (42501): Insufficient privileges to operate on account"))

	_, err := store.EnsureExists(context.Background(), core.PlatformObject{Name: "SA_ROLE", Kind: core.KindRole})
	require.Error(t, err)
	assert.Equal(t, core.KindPermissionDenied, core.KindOf(err))

	var coreErr *core.Error
	require.ErrorAs(t, err, &coreErr)
	assert.Equal(t, "role SA_ROLE", coreErr.Object)
}

func TestSQLStore_MissingObjectWordingIsNotAPrivilegeError(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SHOW GRANTS ON SCHEMA "DEMO_DB"."PUBLIC"`).
		WillReturnError(errors.New("002003 (02000): SQL compilation error:\nSchema 'DEMO_DB.PUBLIC' does not exist or not authorized."))

	_, err := store.HasGrant(context.Background(), core.GrantSpec{
		Privilege: core.PrivilegeOwnership,
		On:        core.PlatformObject{Name: "DEMO_DB.PUBLIC", Kind: core.KindSchema},
		To:        core.PlatformObject{Name: "SA_ROLE", Kind: core.KindRole},
	})
	require.Error(t, err)
	assert.Equal(t, core.KindTransientNetwork, core.KindOf(err),
		"the combined missing-or-hidden wording must stay retryable, not fatal")
}

func TestSQLStore_TimeoutsAreClassified(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SHOW ROLES LIKE 'SA_ROLE'").
		WillReturnError(context.DeadlineExceeded)

	_, _, err := store.Describe(context.Background(), "SA_ROLE", core.KindRole)
	require.Error(t, err)
	assert.Equal(t, core.KindTimeout, core.KindOf(err))
}

func TestSQLStore_ConnectionErrorsReadAsTransient(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SHOW DATABASES LIKE 'DEMO_DB'").
		WillReturnError(sql.ErrConnDone)

	_, _, err := store.Describe(context.Background(), "DEMO_DB", core.KindDatabase)
	require.Error(t, err)
	assert.Equal(t, core.KindTransientNetwork, core.KindOf(err))
}
