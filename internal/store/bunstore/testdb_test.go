package bunstore

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/uptrace/bun"

	"agenda/backend/internal/domain"
)

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := OpenSQLite("file:" + name + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("OpenSQLite error: %v", err)
	}
	t.Cleanup(func() {
		_ = Close(db)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := CreateSchema(ctx, db); err != nil {
		t.Fatalf("CreateSchema error: %v", err)
	}
	return db
}

var testDay = domain.NewDate(2030, time.March, 4)

func strPtr(s string) *string { return &s }
