package encxorm

import (
	"context"
	"fmt"
)

// TypeStatus is the number of encrypted fields of one entity type,
// including those of embedded structs.
type TypeStatus struct {
	Type            string
	EncryptedFields int
}

// StatusReport describes how much of a store is covered by encryption.
type StatusReport struct {
	Types           []TypeStatus
	Inspected       int
	Eligible        int
	EncryptedFields int
}

// BuildStatus inspects every concrete entity type listed by lister.
func BuildStatus(ctx context.Context, lister EntityTypeLister, resolver Resolver) (*StatusReport, error) {
	if resolver == nil {
		resolver = defaultResolver
	}

	types, err := lister.EntityTypes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list entity types: %w", err)
	}

	report := &StatusReport{}
	for _, t := range types {
		if t.Abstract {
			continue
		}
		desc, err := resolver.Resolve(t.Prototype)
		if err != nil {
			return nil, err
		}

		n := desc.AllEncryptedFields()
		report.Types = append(report.Types, TypeStatus{Type: t.Name, EncryptedFields: n})
		report.Inspected++
		report.EncryptedFields += n
		if n > 0 {
			report.Eligible++
		}
	}
	return report, nil
}
