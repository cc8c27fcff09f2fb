package app

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestCvHandler_Handle(t *testing.T) {
	ts := time.Date(2025, 6, 15, 14, 30, 45, 0, time.UTC)

	tests := []struct {
		name    string
		op      string
		opID    string
		level   slog.Level
		message string
		attrs   []slog.Attr
		want    string
	}{
		{
			name:    "basic info message",
			op:      "CreateBackup",
			opID:    "op-123",
			level:   slog.LevelInfo,
			message: "backup created",
			want:    "2025-06-15T14:30:45Z\tINFO\tCreateBackup\top-123\tbackup created\n",
		},
		{
			name:    "debug level",
			op:      "Restore",
			opID:    "op-456",
			level:   slog.LevelDebug,
			message: "resolving backup path",
			want:    "2025-06-15T14:30:45Z\tDEBUG\tRestore\top-456\tresolving backup path\n",
		},
		{
			name:    "with record attrs",
			op:      "Restore",
			opID:    "op-789",
			level:   slog.LevelInfo,
			message: "store restored",
			attrs:   []slog.Attr{slog.String("filename", "backup_1.db"), slog.Int("records", 42)},
			want:    "2025-06-15T14:30:45Z\tINFO\tRestore\top-789\tstore restored\tfilename=backup_1.db\trecords=42\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := &cvHandler{w: &buf, op: tt.op, opID: tt.opID}

			r := slog.NewRecord(ts, tt.level, tt.message, 0)
			for _, a := range tt.attrs {
				r.AddAttrs(a)
			}

			if err := h.Handle(context.Background(), r); err != nil {
				t.Fatalf("Handle() error = %v", err)
			}

			if got := buf.String(); got != tt.want {
				t.Errorf("Handle() output =\n%q\nwant:\n%q", got, tt.want)
			}
		})
	}
}

func TestCvHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := &cvHandler{w: &buf, op: "CreateBackup", opID: "op-1"}

	h2 := h.WithAttrs([]slog.Attr{slog.String("component", "backup")}).(*cvHandler)

	if h2.op != "CreateBackup" {
		t.Errorf("WithAttrs() dropped operation: got %q", h2.op)
	}

	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	r := slog.NewRecord(ts, slog.LevelInfo, "snapshot replicated", 0)
	r.AddAttrs(slog.String("vault", "offsite"))

	if err := h2.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	got := buf.String()
	if !strings.Contains(got, "component=backup") {
		t.Errorf("expected pre-set attr component=backup, got: %q", got)
	}
	if !strings.Contains(got, "vault=offsite") {
		t.Errorf("expected record attr vault=offsite, got: %q", got)
	}
}

func TestCvHandler_WithAttrs_doesNotMutateOriginal(t *testing.T) {
	var buf bytes.Buffer
	h := &cvHandler{w: &buf, opID: "op-1", attrs: []slog.Attr{slog.String("a", "1")}}

	h2 := h.WithAttrs([]slog.Attr{slog.String("b", "2")}).(*cvHandler)

	if len(h.attrs) != 1 {
		t.Errorf("original handler attrs modified: got %d, want 1", len(h.attrs))
	}
	if len(h2.attrs) != 2 {
		t.Errorf("new handler attrs: got %d, want 2", len(h2.attrs))
	}
}

func TestCvHandler_Enabled(t *testing.T) {
	h := &cvHandler{}
	for _, level := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError} {
		if !h.Enabled(context.Background(), level) {
			t.Errorf("Enabled(%v) = false, want true", level)
		}
	}
}

func TestNewLogger(t *testing.T) {
	dir := t.TempDir()

	logger, f, err := newLogger(dir, "Restore", "test-op")
	if err != nil {
		t.Fatalf("newLogger() error = %v", err)
	}
	defer f.Close()

	if logger == nil {
		t.Fatal("newLogger() returned nil logger")
	}
	if f == nil {
		t.Fatal("newLogger() returned nil file")
	}
}
