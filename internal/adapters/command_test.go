package adapters

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"clipcast/internal/platform"
	logx "clipcast/pkg/logx"
)

// writeScript drops an executable shell script acting as the uploader binary.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "uploader")
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestPublishReturnsLastStdoutLine(t *testing.T) {
	t.Parallel()
	bin := writeScript(t, `echo "uploading..."
echo "remote-abc123"`)
	c := NewCommand(bin, logx.Nop())

	res, err := c.Publish(context.Background(), "main", platform.PublishRequest{
		ClipPath: "/tmp/clip_1.mp4", Title: "t pt: 1", Description: "d pt: 1",
	})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if res.RemoteID != "remote-abc123" {
		t.Fatalf("RemoteID = %q", res.RemoteID)
	}
}

func TestPublishAuthExpiredExitCode(t *testing.T) {
	t.Parallel()
	bin := writeScript(t, "exit 2")
	c := NewCommand(bin, logx.Nop())

	_, err := c.Publish(context.Background(), "main", platform.PublishRequest{ClipPath: "x"})
	if !errors.Is(err, platform.ErrAuthExpired) {
		t.Fatalf("err = %v, want ErrAuthExpired", err)
	}
}

func TestPublishFailureCarriesStderr(t *testing.T) {
	t.Parallel()
	bin := writeScript(t, `echo "quota exceeded" >&2
exit 1`)
	c := NewCommand(bin, logx.Nop())

	_, err := c.Publish(context.Background(), "main", platform.PublishRequest{ClipPath: "x"})
	if err == nil {
		t.Fatal("Publish succeeded on exit 1")
	}
	if got := err.Error(); !strings.Contains(got, "quota exceeded") {
		t.Fatalf("err = %q, want stderr text included", got)
	}
}

func TestAuthenticateOutcomes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	ok, err := NewCommand(writeScript(t, "exit 0"), logx.Nop()).Authenticate(ctx, "a")
	if err != nil || !ok {
		t.Fatalf("Authenticate = %t, %v; want true, nil", ok, err)
	}

	// Exit 2 means the account needs interactive reauth, not a hard error.
	ok, err = NewCommand(writeScript(t, "exit 2"), logx.Nop()).Authenticate(ctx, "a")
	if err != nil || ok {
		t.Fatalf("Authenticate = %t, %v; want false, nil", ok, err)
	}

	if _, err = NewCommand(writeScript(t, "exit 1"), logx.Nop()).Authenticate(ctx, "a"); err == nil {
		t.Fatal("Authenticate swallowed a hard failure")
	}
}

