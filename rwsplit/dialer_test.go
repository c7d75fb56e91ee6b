package rwsplit

import (
	"context"
	"os"
	"testing"
	"time"
)

// TestDialBackendAgainstLiveServer only runs when RWSPLIT_TEST_MYSQL_ADDR
// points at a real server; it exists to validate this router's assumptions
// about go-sql-driver/mysql's wire behavior, not to run in CI by default.
func TestDialBackendAgainstLiveServer(t *testing.T) {
	addr := os.Getenv("RWSPLIT_TEST_MYSQL_ADDR")
	if addr == "" {
		t.Skip("RWSPLIT_TEST_MYSQL_ADDR not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db, err := DialBackend(ctx, DialConfig{Addr: addr, User: "root", DB: "mysql"})
	if err != nil {
		t.Fatalf("DialBackend: %v", err)
	}
	defer db.Close()
}
