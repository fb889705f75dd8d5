package encxorm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildStatus(t *testing.T) {
	type plain struct{ Name string }

	src := NewMemorySource()
	src.Add(EntityType{Name: "Base", Prototype: &Base{}, Abstract: true})
	src.Add(EntityType{Name: "Person", Prototype: &Person{}})
	src.Add(EntityType{Name: "Employee", Prototype: &Employee{}})
	src.Add(EntityType{Name: "Plain", Prototype: &plain{}})

	report, err := BuildStatus(context.Background(), src, nil)
	require.NoError(t, err)

	assert.Equal(t, []TypeStatus{
		{Type: "Person", EncryptedFields: 5},
		{Type: "Employee", EncryptedFields: 2},
		{Type: "Plain", EncryptedFields: 0},
	}, report.Types)
	assert.Equal(t, 3, report.Inspected)
	assert.Equal(t, 2, report.Eligible)
	assert.Equal(t, 7, report.EncryptedFields)
}

func TestBuildStatus_EmbeddedOnly(t *testing.T) {
	type holder struct {
		ID   int
		Home Address `encx:"embedded"`
	}
	src := NewMemorySource()
	src.Add(EntityType{Name: "Holder", Prototype: &holder{}})

	report, err := BuildStatus(context.Background(), src, nil)
	require.NoError(t, err)
	assert.Equal(t, []TypeStatus{{Type: "Holder", EncryptedFields: 1}}, report.Types)
	assert.Equal(t, 1, report.Eligible)
}

func TestBuildStatus_ResolverError(t *testing.T) {
	type broken struct {
		Age int `encx:"encrypt"`
	}
	src := NewMemorySource()
	src.Add(EntityType{Name: "Broken", Prototype: &broken{}})

	_, err := BuildStatus(context.Background(), src, nil)
	assert.ErrorIs(t, err, ErrResolver)
}

func TestBuildStatus_Records(t *testing.T) {
	resolver := NewSchemaResolver(nil)
	require.NoError(t, resolver.Declare("users", []string{"id"}, []string{"ssn", "email"}))

	src := NewMemorySource()
	src.Add(EntityType{Name: "users", Prototype: newTestRecord("users", nil)})

	report, err := BuildStatus(context.Background(), src, resolver)
	require.NoError(t, err)
	assert.Equal(t, 2, report.EncryptedFields)
	assert.Equal(t, 1, report.Eligible)
}
