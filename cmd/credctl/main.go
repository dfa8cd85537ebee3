// Command credctl is the operator tool for a goSession deployment: schema
// migrations, housekeeping, emergency revocation and a posture report.
//
//	credctl [-config path] <command> [flags]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

const usage = `usage: credctl [-config path] <command> [flags]

commands:
  migrate           apply pending schema migrations (-down reverts one, -status prints the version)
  purge             delete expired revocations and OTP records past retention
  revoke            revoke one token id (-jti, optional -user, -ttl, -reason)
  invalidate-user   invalidate every token issued to a user so far (-user)
  report            print the engine security posture (-json)
`

var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr, openApp)
	stop()
	os.Exit(code)
}

// run parses global flags and dispatches. open builds the app from the
// loaded configuration.
func run(ctx context.Context, args []string, stdout, stderr io.Writer, open opener) int {
	fs := flag.NewFlagSet("credctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	configPath := fs.String("config", "", "path to the YAML config; falls back to CONFIG_PATH, then env")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	name, rest := fs.Arg(0), fs.Args()[1:]
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", name, usage)
		return 2
	}

	rt, err := open(ctx, *configPath)
	if err != nil {
		fmt.Fprintf(stderr, "credctl: %v\n", err)
		return 1
	}
	defer rt.Close()

	ctx, cancel := context.WithTimeout(ctx, rt.timeout)
	defer cancel()

	if err := cmd(ctx, rt, rest, stdout); err != nil {
		if errors.Is(err, errUsage) || errors.Is(err, flag.ErrHelp) {
			return 2
		}
		rt.logger.Error("command_failed", "command", name, "err", err)
		fmt.Fprintf(stderr, "credctl %s: %v\n", name, err)
		return 1
	}
	return 0
}
