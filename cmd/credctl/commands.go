package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/MrEthical07/goSession/store/postgres"
)

type command func(ctx context.Context, rt *app, args []string, out io.Writer) error

var commands = map[string]command{
	"migrate":         runMigrate,
	"purge":           runPurge,
	"revoke":          runRevoke,
	"invalidate-user": runInvalidateUser,
	"report":          runReport,
}

func newFlagSet(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}

func runMigrate(ctx context.Context, rt *app, args []string, out io.Writer) error {
	fs := newFlagSet("migrate", out)
	down := fs.Bool("down", false, "revert the most recent migration")
	status := fs.Bool("status", false, "print the applied version and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if rt.db == nil {
		return errors.New("no database configured")
	}

	switch {
	case *status:
	case *down:
		if err := postgres.Rollback(ctx, rt.db, rt.logger); err != nil {
			return err
		}
	default:
		if err := postgres.Migrate(ctx, rt.db, rt.logger); err != nil {
			return err
		}
	}

	v, err := postgres.Version(ctx, rt.db)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "schema version %d\n", v)
	return nil
}

func runPurge(ctx context.Context, rt *app, args []string, out io.Writer) error {
	if err := newFlagSet("purge", out).Parse(args); err != nil {
		return err
	}
	res, err := rt.engine.PurgeExpired(ctx)
	if err != nil {
		return err
	}
	rt.logger.Info("purge_done", "revocations", res.Revocations, "otps", res.OTPs)
	fmt.Fprintf(out, "purged %d revocations, %d otp records\n", res.Revocations, res.OTPs)
	return nil
}

func runRevoke(ctx context.Context, rt *app, args []string, out io.Writer) error {
	fs := newFlagSet("revoke", out)
	jti := fs.String("jti", "", "token id to revoke (required)")
	user := fs.String("user", "", "owning user id, recorded for audit")
	ttl := fs.Duration("ttl", 0, "how long to keep the revocation; 0 uses the refresh lifetime")
	reason := fs.String("reason", "operator", "reason recorded with the revocation")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *jti == "" {
		fmt.Fprintln(out, "revoke: -jti is required")
		return errUsage
	}
	if *ttl < 0 {
		fmt.Fprintln(out, "revoke: -ttl must be >= 0")
		return errUsage
	}

	var expiresAt time.Time
	if *ttl > 0 {
		expiresAt = time.Now().Add(*ttl)
	}
	if err := rt.engine.Revoke(ctx, *jti, *user, expiresAt, *reason); err != nil {
		return err
	}
	fmt.Fprintf(out, "revoked %s\n", *jti)
	return nil
}

func runInvalidateUser(ctx context.Context, rt *app, args []string, out io.Writer) error {
	fs := newFlagSet("invalidate-user", out)
	user := fs.String("user", "", "user id (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *user == "" {
		fmt.Fprintln(out, "invalidate-user: -user is required")
		return errUsage
	}
	if err := rt.engine.InvalidateAllForUser(ctx, *user); err != nil {
		return err
	}
	fmt.Fprintf(out, "invalidated tokens of %s\n", *user)
	return nil
}

func runReport(_ context.Context, rt *app, args []string, out io.Writer) error {
	fs := newFlagSet("report", out)
	asJSON := fs.Bool("json", false, "print JSON instead of a table")
	if err := fs.Parse(args); err != nil {
		return err
	}
	r := rt.engine.SecurityReport()

	if *asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	rows := []struct {
		k string
		v any
	}{
		{"production mode", r.ProductionMode},
		{"signing algorithm", r.SigningAlgorithm},
		{"validation mode", r.ValidationMode},
		{"access ttl", r.AccessTTL},
		{"refresh ttl", r.RefreshTTL},
		{"refresh rotation", r.RefreshRotation},
		{"fingerprint binding", r.FingerprintBinding},
		{"fingerprint keyed", r.FingerprintKeyed},
		{"cache tier", r.CacheTier},
		{"durable tier", r.DurableTier},
		{"revocation tiers", strings.Join(r.RevocationTiers, " > ")},
		{"multi instance", r.MultiInstance},
		{"access revocation check", r.AccessRevocationCheck},
		{"otp digits", r.OTP.Digits},
		{"otp ttl", r.OTP.TTL},
		{"otp max attempts", r.OTP.MaxAttempts},
		{"otp lockout", fmt.Sprintf("%s for %s", r.OTP.LockoutBackend, r.OTP.LockoutDuration)},
		{"otp resend cooldown", r.OTP.ResendCooldown},
		{"otp key derived", r.OTP.KeyDerived},
		{"audit", r.AuditEnabled},
		{"metrics", r.MetricsEnabled},
	}
	for _, row := range rows {
		fmt.Fprintf(tw, "%s\t%v\n", row.k, row.v)
	}
	return tw.Flush()
}
