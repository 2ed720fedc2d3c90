// ABOUTME: Tests for ExtractRoleData degradation rules across present, absent and failed lookups.
// ABOUTME: Covers the pre-migration default, explicit-data precedence and the fail-closed policy.
package access

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func TestExtractRoleData_DegradationDefault(t *testing.T) {
	t.Parallel()
	want := RoleData{Role: RoleAdmin, IsSuperadmin: false, Permissions: AdminDefaultPermissions()}

	cases := map[string]RoleLookup{
		"absent":            Absent(),
		"present but empty": Present(RoleFields{}),
		"empty role string": Present(RoleFields{Role: strPtr("")}),
		"failed":            Failed(errors.New("connection reset")),
		"columns missing":   Failed(fmt.Errorf("%w: column \"role\" does not exist", ErrRoleColumnsMissing)),
		"zero value lookup": {},
	}
	for name, l := range cases {
		assert.Equal(t, want, ExtractRoleData(l), name)
	}
}

func TestExtractRoleData_ExplicitUserWins(t *testing.T) {
	t.Parallel()
	stored := Permissions{CanDelete: false, CanAccessSettings: true, CanSeePricing: false, ReadOnly: false}
	got := ExtractRoleData(Present(RoleFields{
		Role:         strPtr("user"),
		IsSuperadmin: boolPtr(false),
		Permissions:  &stored,
	}))
	assert.Equal(t, RoleUser, got.Role)
	assert.False(t, got.IsSuperadmin)
	assert.Equal(t, stored, got.Permissions)
	assert.NotEqual(t, AdminDefaultPermissions(), got.Permissions)
}

func TestExtractRoleData_AdminIgnoresStoredPermissions(t *testing.T) {
	t.Parallel()
	got := ExtractRoleData(Present(RoleFields{
		Role:        strPtr("admin"),
		Permissions: &Permissions{ReadOnly: true},
	}))
	assert.Equal(t, RoleAdmin, got.Role)
	assert.Equal(t, AdminDefaultPermissions(), got.Permissions)
}

func TestExtractRoleData_UserWithoutStoredPermissions(t *testing.T) {
	t.Parallel()
	// A user row with NULL permissions falls back to the admin bundle, the
	// same default used when the whole record is missing.
	got := ExtractRoleData(Present(RoleFields{Role: strPtr("user")}))
	assert.Equal(t, RoleUser, got.Role)
	assert.Equal(t, AdminDefaultPermissions(), got.Permissions)
}

func TestExtractRoleData_SuperadminStrictlyTrue(t *testing.T) {
	t.Parallel()
	assert.True(t, ExtractRoleData(Present(RoleFields{IsSuperadmin: boolPtr(true)})).IsSuperadmin)
	assert.False(t, ExtractRoleData(Present(RoleFields{IsSuperadmin: boolPtr(false)})).IsSuperadmin)
	assert.False(t, ExtractRoleData(Present(RoleFields{})).IsSuperadmin)
	assert.False(t, ExtractRoleData(Failed(errors.New("boom"))).IsSuperadmin)
}

func TestExtractRoleDataWithPolicy_FailClosed(t *testing.T) {
	t.Parallel()

	transient := ExtractRoleDataWithPolicy(Failed(errors.New("timeout")), DegradeFailClosed)
	assert.Equal(t, RoleUser, transient.Role)
	assert.False(t, CanMutate(transient.Role, transient.Permissions))
	assert.False(t, CanDelete(transient.Role, transient.Permissions))

	// Missing columns are genuine absence, not a transient failure.
	schema := ExtractRoleDataWithPolicy(Failed(fmt.Errorf("lookup: %w", ErrRoleColumnsMissing)), DegradeFailClosed)
	assert.Equal(t, RoleAdmin, schema.Role)

	absent := ExtractRoleDataWithPolicy(Absent(), DegradeFailClosed)
	assert.Equal(t, RoleAdmin, absent.Role)
}

func TestFailedNilError(t *testing.T) {
	t.Parallel()
	l := Failed(nil)
	require.Error(t, l.Err)
	assert.True(t, l.Transient())
}

func TestParseDegradePolicy(t *testing.T) {
	t.Parallel()
	p, err := ParseDegradePolicy("")
	require.NoError(t, err)
	assert.Equal(t, DegradeFailOpen, p)

	p, err = ParseDegradePolicy("fail_closed")
	require.NoError(t, err)
	assert.Equal(t, DegradeFailClosed, p)

	_, err = ParseDegradePolicy("sometimes")
	assert.Error(t, err)
}

func TestParsePermissionsJSON(t *testing.T) {
	t.Parallel()
	cases := []struct {
		raw  string
		want *Permissions
	}{
		{``, nil},
		{`null`, nil},
		{` null `, nil},
		{`"admin"`, &Permissions{ReadOnly: true}},
		{`[true]`, &Permissions{ReadOnly: true}},
		{`{broken`, &Permissions{ReadOnly: true}},
		{`{"read_only":1}`, &Permissions{ReadOnly: true}},
		{`{"can_delete":"yes"}`, &Permissions{ReadOnly: true}},
		{`{}`, &Permissions{}},
		{`{"can_delete":true,"read_only":true}`, &Permissions{CanDelete: true, ReadOnly: true}},
		{` {"can_see_pricing":true,"extra":1} `, &Permissions{CanSeePricing: true}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ParsePermissionsJSON([]byte(tc.raw)), "raw=%q", tc.raw)
	}
}

func TestExtractRoleData_MalformedUserPermissionsStayRestricted(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{`{"read_only":"true"}`, `{"read_only":1}`, `[]`, `"x"`, `{"can_delete":1}`} {
		got := ExtractRoleData(Present(RoleFields{
			Role:        strPtr("user"),
			Permissions: ParsePermissionsJSON([]byte(raw)),
		}))
		assert.Equal(t, RoleUser, got.Role, raw)
		assert.NotEqual(t, AdminDefaultPermissions(), got.Permissions, raw)
		assert.False(t, CanMutate(got.Role, got.Permissions), raw)
		assert.False(t, CanDelete(got.Role, got.Permissions), raw)
		assert.False(t, CanAccessSettings(got.Role, got.Permissions), raw)
		assert.False(t, CanSeePricing(got.Role, got.Permissions), raw)
	}
}

func TestExtractRoleData_NullUserPermissionsUseAdminDefault(t *testing.T) {
	t.Parallel()
	got := ExtractRoleData(Present(RoleFields{
		Role:        strPtr("user"),
		Permissions: ParsePermissionsJSON([]byte(`null`)),
	}))
	assert.Equal(t, AdminDefaultPermissions(), got.Permissions)
}
