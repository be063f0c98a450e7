// Package adapters implements platform publishing by shelling out to external
// uploader binaries. Credential storage and the platform API surface live in
// the external tool; the daemon only orchestrates and interprets exit codes.
package adapters

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"clipcast/internal/platform"
	logx "clipcast/pkg/logx"
)

// Exit codes the uploader binaries use. Anything else is a generic failure.
const (
	exitOK          = 0
	exitAuthExpired = 2
)

// Command runs one external uploader binary for one platform.
//
// The binary contract:
//
//	<bin> auth --account <name>
//	<bin> refresh --account <name>
//	<bin> publish --account <name> --file <path> --title <t> --description <d>
//	      [--tags <csv>] [--category <id>]
//
// publish prints the remote video id on the last stdout line.
type Command struct {
	bin string
	log logx.Logger
}

func NewCommand(bin string, log logx.Logger) *Command {
	return &Command{bin: bin, log: log}
}

func (c *Command) Authenticate(ctx context.Context, account string) (bool, error) {
	_, err := c.run(ctx, "auth", "--account", account)
	if errors.Is(err, platform.ErrAuthExpired) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *Command) Refresh(ctx context.Context, account string) (bool, error) {
	_, err := c.run(ctx, "refresh", "--account", account)
	if errors.Is(err, platform.ErrAuthExpired) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *Command) Publish(ctx context.Context, account string, req platform.PublishRequest) (platform.PublishResult, error) {
	args := []string{
		"publish",
		"--account", account,
		"--file", req.ClipPath,
		"--title", req.Title,
		"--description", req.Description,
	}
	if len(req.Tags) > 0 {
		args = append(args, "--tags", strings.Join(req.Tags, ","))
	}
	if req.CategoryID != "" {
		args = append(args, "--category", req.CategoryID)
	}

	out, err := c.run(ctx, args...)
	if err != nil {
		return platform.PublishResult{}, err
	}
	return platform.PublishResult{RemoteID: lastLine(out)}, nil
}

func (c *Command) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, c.bin, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stdout.String(), nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == exitAuthExpired {
		return "", fmt.Errorf("%s %s: %w", c.bin, args[0], platform.ErrAuthExpired)
	}

	msg := strings.TrimSpace(stderr.String())
	if msg == "" {
		msg = err.Error()
	}
	c.log.Debug("uploader command failed",
		logx.String("bin", c.bin), logx.String("op", args[0]), logx.String("stderr", msg))
	return "", fmt.Errorf("%s %s: %s", c.bin, args[0], msg)
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
