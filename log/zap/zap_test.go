package zap

import (
	"errors"
	"testing"

	"github.com/unkn0wn-root/memocache"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithBindsFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := ZapLogger{L: zap.New(core)}.With(memocache.Fields{"table": "price"})

	l.Error("compute failed", memocache.Fields{"err": errors.New("boom")})

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("entries=%d", len(entries))
	}
	ctx := entries[0].ContextMap()
	if ctx["table"] != "price" || ctx["err"] != "boom" {
		t.Fatalf("context=%v", ctx)
	}
}
