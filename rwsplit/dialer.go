package rwsplit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// DialConfig names one backend's connection parameters for the
// database/sql dial path used by integration tests to validate this
// router's wire assumptions against a real server.
type DialConfig struct {
	Addr     string
	User     string
	Password string
	DB       string
}

func (c DialConfig) dsn() string {
	if c.Password == "" {
		return fmt.Sprintf("%s@tcp(%s)/%s", c.User, c.Addr, c.DB)
	}
	return fmt.Sprintf("%s:%s@tcp(%s)/%s", c.User, c.Password, c.Addr, c.DB)
}

// DialBackend opens a database/sql handle against a backend and blocks
// until it answers a Ping or the context expires, polling every 100ms.
// This is test/harness plumbing: nothing else in this package uses
// database/sql.
func DialBackend(ctx context.Context, cfg DialConfig) (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.dsn())
	if err != nil {
		return nil, err
	}
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		if err := db.PingContext(ctx); err == nil {
			return db, nil
		}
		select {
		case <-ctx.Done():
			db.Close()
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
