package ctxlog_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/gyaneshwarpardhi/flowcode/internal/ctxlog"
)

func TestFromContext(t *testing.T) {
	if ctxlog.FromContext(context.Background()) != slog.Default() {
		t.Error("empty context should fall back to the default logger")
	}

	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, nil)).With("request_id", "r1")
	ctx := ctxlog.WithLogger(context.Background(), l)
	ctxlog.FromContext(ctx).Info("hello")
	if !strings.Contains(buf.String(), "request_id=r1") {
		t.Errorf("log = %q", buf.String())
	}
}
