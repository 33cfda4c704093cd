package logger

import (
	"bytes"
	"strings"
	"testing"

	"log/slog"
)

func TestConfigureJSONCarriesComponentAndRID(t *testing.T) {
	buf := &bytes.Buffer{}
	Configure(buf, "debug", "json")

	ctx := WithRID(Background(), "42:7:9")
	ctx = WithUpdateMeta(ctx, 42, 9, 7)

	LogEvent(ctx, Component("tg"), slog.LevelInfo, "update.received",
		slog.String("status", "ok"),
	)

	line := strings.TrimSpace(buf.String())
	if line == "" {
		t.Fatal("expected log line")
	}
	if !strings.HasPrefix(line, "{") {
		t.Fatalf("expected JSON, got %s", line)
	}
	for _, want := range []string{`"component":"tg"`, `"event":"update.received"`, `"status":"ok"`, `"rid":"42:7:9"`} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %s in %s", want, line)
		}
	}
}

func TestLogEventAppendsContextMetadata(t *testing.T) {
	buf := &bytes.Buffer{}
	Configure(buf, "debug", "json")

	ctx := WithRID(Background(), "5:888:777")
	ctx = WithUpdateMeta(ctx, 5, 777, 888)
	ctx = WithHandler(ctx, "start")

	LogEvent(ctx, Component("tg"), slog.LevelInfo, "update.received")

	line := strings.TrimSpace(buf.String())
	for _, want := range []string{
		`"update_id":5`,
		`"user_id":777`,
		`"chat_id":888`,
		`"handler":"start"`,
		`"rid":"5:888:777"`,
	} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %s in %s", want, line)
		}
	}
}

func TestConfigureTextFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	Configure(buf, "info", "text")

	Info(Background(), "db", "db.connect", slog.String("status", "ok"))

	line := strings.TrimSpace(buf.String())
	if !strings.Contains(line, "component=db") || !strings.Contains(line, "event=db.connect") {
		t.Fatalf("unexpected text output: %s", line)
	}
}

func TestUpdateMetaRoundtrip(t *testing.T) {
	ctx := WithUpdateMeta(Background(), 11, 22, 33)
	if got := UpdateIDFrom(ctx); got != 11 {
		t.Fatalf("update id = %d", got)
	}
	if got := UserIDFrom(ctx); got != 22 {
		t.Fatalf("user id = %d", got)
	}
	if got := ChatIDFrom(ctx); got != 33 {
		t.Fatalf("chat id = %d", got)
	}
	if got := BuildRID(11, 33, 22); got != "11:33:22" {
		t.Fatalf("rid = %s", got)
	}
}

func TestSanitizeLimitStripsControlRunes(t *testing.T) {
	in := "abc\x00def\tghi\x7f"
	out := SanitizeLimit(in, 6)
	if out != "abcdef" {
		t.Fatalf("sanitized = %q", out)
	}
}
