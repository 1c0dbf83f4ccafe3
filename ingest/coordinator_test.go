package ingest_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/warp/commission-engine/ingest"
	"github.com/warp/commission-engine/ingest/store"
)

func testScope() ingest.Scope {
	return ingest.Scope{Agent: "AG001", Period: "2025-06", Doc: ingest.DocStatement}
}

func uploadFor(scope ingest.Scope, file string) ingest.Upload {
	return ingest.Upload{
		AgentCode: scope.Agent,
		AgentName: "Agent One",
		DocType:   scope.Doc,
		FileName:  file,
		Period:    scope.Period,
		CreatedAt: time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC),
	}
}

// =============================================================================
// ACTIVE-VERSION INVARIANT
// =============================================================================

func TestCoordinator_FirstUploadBecomesActive(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()

	var up ingest.Upload
	err := mem.WithScopeTx(ctx, testScope(), func(s ingest.Store) error {
		var err error
		up, err = ingest.Coordinator{Uploads: s}.Activate(ctx, uploadFor(testScope(), "jun.pdf"))
		return err
	})
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if !up.IsActive {
		t.Error("first upload in an empty scope must be active")
	}

	active, err := mem.ActiveUpload(ctx, testScope())
	if err != nil {
		t.Fatalf("active upload: %v", err)
	}
	if active.ID != up.ID {
		t.Errorf("active upload is %d, want %d", active.ID, up.ID)
	}
}

func TestCoordinator_SupersessionKeepsExactlyOneActive(t *testing.T) {
	// GIVEN: N sequential uploads into the same scope
	ctx := context.Background()
	mem := store.NewMemory()
	scope := testScope()

	const n = 5
	var last ingest.Upload
	for i := 0; i < n; i++ {
		err := mem.WithScopeTx(ctx, scope, func(s ingest.Store) error {
			var err error
			last, err = ingest.Coordinator{Uploads: s}.Activate(ctx, uploadFor(scope, fmt.Sprintf("v%d.pdf", i)))
			return err
		})
		if err != nil {
			t.Fatalf("upload %d: %v", i, err)
		}
	}

	// THEN: all N are retained, exactly 1 is active, and it is the newest
	all, err := mem.ListUploads(ctx, ingest.UploadFilter{Agent: scope.Agent, Period: scope.Period, Doc: scope.Doc})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != n {
		t.Fatalf("history length = %d, want %d (supersession must never delete)", len(all), n)
	}

	activeCount := 0
	for _, up := range all {
		if up.IsActive {
			activeCount++
			if up.ID != last.ID {
				t.Errorf("active upload is %d, want the most recent %d", up.ID, last.ID)
			}
		}
	}
	if activeCount != 1 {
		t.Errorf("active count = %d, want exactly 1", activeCount)
	}
}

func TestCoordinator_ScopesAreIndependent(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()

	scopes := []ingest.Scope{
		{Agent: "AG001", Period: "2025-06", Doc: ingest.DocStatement},
		{Agent: "AG001", Period: "2025-06", Doc: ingest.DocSchedule},  // same agent+period, other doc
		{Agent: "AG001", Period: "2025-07", Doc: ingest.DocStatement}, // other period
		{Agent: "AG002", Period: "2025-06", Doc: ingest.DocStatement}, // other agent
	}

	for _, scope := range scopes {
		scope := scope
		err := mem.WithScopeTx(ctx, scope, func(s ingest.Store) error {
			_, err := ingest.Coordinator{Uploads: s}.Activate(ctx, uploadFor(scope, "f.pdf"))
			return err
		})
		if err != nil {
			t.Fatalf("scope %+v: %v", scope, err)
		}
	}

	for _, scope := range scopes {
		if _, err := mem.ActiveUpload(ctx, scope); err != nil {
			t.Errorf("scope %+v lost its active upload: %v", scope, err)
		}
	}
}

func TestCoordinator_ConcurrentSameScope(t *testing.T) {
	// Two-plus uploads racing into one scope must end with exactly one
	// active upload, never two, never zero.
	ctx := context.Background()
	mem := store.NewMemory()
	scope := testScope()

	const workers = 16
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := mem.WithScopeTx(ctx, scope, func(s ingest.Store) error {
				_, err := ingest.Coordinator{Uploads: s}.Activate(ctx, uploadFor(scope, fmt.Sprintf("race-%d.pdf", i)))
				return err
			})
			if err != nil {
				t.Errorf("worker %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	all, err := mem.ListUploads(ctx, ingest.UploadFilter{Agent: scope.Agent, Period: scope.Period, Doc: scope.Doc})
	if err != nil {
		t.Fatal(err)
	}
	activeCount := 0
	var maxID ingest.UploadID
	for _, up := range all {
		if up.ID > maxID {
			maxID = up.ID
		}
		if up.IsActive {
			activeCount++
		}
	}
	if activeCount != 1 {
		t.Fatalf("active count after race = %d, want exactly 1", activeCount)
	}
	active, err := mem.ActiveUpload(ctx, scope)
	if err != nil {
		t.Fatal(err)
	}
	if active.ID != maxID {
		t.Errorf("active upload is %d, want the last inserted %d", active.ID, maxID)
	}
}

func TestCoordinator_RejectsInvalidDocType(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()

	up := uploadFor(testScope(), "f.pdf")
	up.DocType = "INVOICE"

	_, err := ingest.Coordinator{Uploads: mem}.Activate(ctx, up)
	if err == nil {
		t.Fatal("expected error for doc type outside the enumerated set")
	}
}
