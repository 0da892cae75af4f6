package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func newObservedGormLogger(logLevel string) (*GormLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return NewGormLogger(GormLoggerConfigFor(zap.New(core), logLevel)), logs
}

func query(sql string, rows int64) func() (string, int64) {
	return func() (string, int64) { return sql, rows }
}

func TestGormLoggerSkipsRecordNotFound(t *testing.T) {
	l, logs := newObservedGormLogger("info")

	l.Trace(context.Background(), time.Now(), query(`SELECT * FROM "subscriptions" WHERE subscription_id = $1`, 0), gormlogger.ErrRecordNotFound)
	if logs.Len() != 0 {
		t.Fatalf("expected no log for a miss, got %d entries", logs.Len())
	}

	l.Trace(context.Background(), time.Now(), query(`INSERT INTO "webhook_events" ("id") VALUES ($1)`, 0), errors.New("duplicate key"))
	entries := logs.FilterMessage("gorm.query").All()
	if len(entries) != 1 {
		t.Fatalf("expected one error entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Level != zapcore.ErrorLevel {
		t.Fatalf("expected error level, got %s", entry.Level)
	}
	if entry.LoggerName != "gorm" {
		t.Fatalf("expected gorm logger name, got %q", entry.LoggerName)
	}
	fields := entry.ContextMap()
	if fields["table"] != "webhook_events" || fields["operation"] != "INSERT" {
		t.Fatalf("unexpected query fields: %v", fields)
	}
}

func TestGormLoggerLevelFollowsServiceLevel(t *testing.T) {
	l, logs := newObservedGormLogger("info")
	l.Trace(context.Background(), time.Now(), query(`SELECT * FROM users`, 1), nil)
	if logs.Len() != 0 {
		t.Fatalf("fast queries must stay quiet outside debug, got %d entries", logs.Len())
	}

	l, logs = newObservedGormLogger("DEBUG")
	l.Trace(context.Background(), time.Now(), query(`SELECT * FROM users`, 1), nil)
	entries := logs.All()
	if len(entries) != 1 || entries[0].Level != zapcore.DebugLevel {
		t.Fatalf("expected one debug entry, got %v", entries)
	}
	if rows := entries[0].ContextMap()["rows_affected"]; rows != int64(1) {
		t.Fatalf("expected rows_affected 1, got %v", rows)
	}
}

func TestGormLoggerWarnsOnSlowQuery(t *testing.T) {
	l, logs := newObservedGormLogger("warn")
	begin := time.Now().Add(-2 * defaultSlowQuery)

	l.Trace(context.Background(), begin, query(`UPDATE "subscriptions" SET status = $1`, 1), nil)
	entries := logs.All()
	if len(entries) != 1 || entries[0].Level != zapcore.WarnLevel {
		t.Fatalf("expected one warn entry, got %v", entries)
	}
	if table := entries[0].ContextMap()["table"]; table != "subscriptions" {
		t.Fatalf("expected subscriptions table, got %v", table)
	}
}

func TestTableFromSQL(t *testing.T) {
	cases := []struct {
		sql  string
		want string
	}{
		{sql: `SELECT count(*) FROM "webhook_events" WHERE user_id = $1`, want: "webhook_events"},
		{sql: "INSERT INTO `users` (`id`) VALUES (?)", want: "users"},
		{sql: `UPDATE public.subscriptions SET status = $1`, want: "subscriptions"},
		{sql: `SELECT 1`, want: ""},
	}
	for _, tc := range cases {
		if got := tableFromSQL(tc.sql); got != tc.want {
			t.Fatalf("tableFromSQL(%q) = %q, want %q", tc.sql, got, tc.want)
		}
	}
}

func TestParamsFilterDropsValues(t *testing.T) {
	l := NewGormLogger(GormLoggerConfigFor(nil, "info"))
	sql, params := l.ParamsFilter(context.Background(), "SELECT 1", "cus_secret")
	if sql != "SELECT 1" || params != nil {
		t.Fatalf("expected params to be dropped, got %q %v", sql, params)
	}
}
