package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/mintfactory/internal/ir"
)

var (
	factoryID = ir.DerivePrincipal("mintfactory")
	aliceID   = ir.DerivePrincipal("alice")
)

// createTestStore creates a new file-backed store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createFundedUnit funds the factory and creates one unit controlled by it.
func createFundedUnit(t *testing.T, s *Store, seq int64) ir.UnitRecord {
	t.Helper()
	ctx := testContext(t)
	if err := s.Credit(ctx, factoryID, 1_000); err != nil {
		t.Fatalf("Credit() failed: %v", err)
	}
	u, err := s.CreateUnit(ctx, ir.UnitRecord{
		Controllers: []ir.Principal{aliceID, factoryID},
		CreatedSeq:  seq,
	}, factoryID, 100)
	if err != nil {
		t.Fatalf("CreateUnit() failed: %v", err)
	}
	return u
}
