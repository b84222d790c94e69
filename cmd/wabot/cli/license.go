package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/actiomidia/projeto-bot-whatsapp/internal/app"
	"github.com/actiomidia/projeto-bot-whatsapp/internal/infrastructure"
	"github.com/actiomidia/projeto-bot-whatsapp/pkg/contracts/domain"
)

var (
	errLicenseUnusable    = errors.New("license is not usable")
	errAuthorityUnreached = errors.New("licensing authority is unreachable")
)

func newLicenseCmd(load configLoader) *cobra.Command {
	var (
		jsonOutput bool
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:     "license",
		Aliases: []string{"lic"},
		Short:   "Inspect and manage the license",
		Long:    "Activate, check and remove the license key stored on this machine. These commands talk to the licensing authority directly and do not need a running server.",
	}

	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log license activity to stderr")

	open := func(cmd *cobra.Command) (*app.LicenseComponents, error) {
		cfg, err := load()
		if err != nil {
			return nil, err
		}
		if err := cfg.ResolvedPaths().EnsureDirectories(); err != nil {
			return nil, err
		}
		level := "error"
		if verbose {
			level = "debug"
		}
		logger := infrastructure.NewLogger(cmd.ErrOrStderr(), level)
		lic, err := app.NewLicenseComponents(cmd.Context(), cfg, app.LicenseOptions{
			Meter: otel.GetMeterProvider().Meter(infrastructure.MeterName),
		}, logger)
		if err != nil {
			return nil, err
		}
		lic.Manager.Load(cmd.Context())
		return lic, nil
	}
	out := func(cmd *cobra.Command) output {
		return output{w: cmd.OutOrStdout(), json: jsonOutput}
	}

	cmd.AddCommand(newLicenseStatusCmd(open, out))
	cmd.AddCommand(newLicenseActivateCmd(open, out))
	cmd.AddCommand(newLicenseCheckCmd(open, out))
	cmd.AddCommand(newLicenseDeactivateCmd(open, out))
	cmd.AddCommand(newLicenseTestCmd(open, out))

	return cmd
}

type (
	licenseOpener func(cmd *cobra.Command) (*app.LicenseComponents, error)
	outputFactory func(cmd *cobra.Command) output
)

// withLicense opens the license stack for one command and flushes pending
// audit writes afterwards.
func withLicense(cmd *cobra.Command, open licenseOpener, fn func(ctx context.Context, lic *app.LicenseComponents) error) error {
	lic, err := open(cmd)
	if err != nil {
		return err
	}
	defer lic.Manager.Stop()
	return fn(cmd.Context(), lic)
}

// ---------- license status ----------

func newLicenseStatusCmd(open licenseOpener, out outputFactory) *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the license status",
		Long:  "Show the stored license and its verdict. The cached verdict is used unless the revalidation interval has passed.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLicense(cmd, open, func(ctx context.Context, lic *app.LicenseComponents) error {
				if debug {
					return out(cmd).debug(lic.Service.Debug(ctx))
				}
				return out(cmd).status(lic.Service.Status(ctx))
			})
		},
	}

	cmd.Flags().BoolVar(&debug, "debug", false, "Show the manager's internal state")

	return cmd
}

// ---------- license activate ----------

func newLicenseActivateCmd(open licenseOpener, out outputFactory) *cobra.Command {
	return &cobra.Command{
		Use:     "activate <key>",
		Short:   "Activate a license key",
		Long:    "Validate key against the licensing authority and store it on success. Any previously stored key is removed first.",
		Example: "  wabot license activate ABCD1234-EFGH-5678",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLicense(cmd, open, func(ctx context.Context, lic *app.LicenseComponents) error {
				resp, err := lic.Service.Activate(ctx, args[0])
				if resp != nil {
					if perr := out(cmd).status(resp); perr != nil {
						return perr
					}
				}
				if err != nil {
					return fmt.Errorf("activation failed: %w", err)
				}
				return nil
			})
		},
	}
}

// ---------- license check ----------

func newLicenseCheckCmd(open licenseOpener, out outputFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Revalidate the stored license now",
		Long:  "Ask the licensing authority about the stored key, ignoring the cache. Exits non-zero when the license is not usable.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLicense(cmd, open, func(ctx context.Context, lic *app.LicenseComponents) error {
				resp := lic.Service.ForceCheck(ctx)
				if err := out(cmd).status(resp); err != nil {
					return err
				}
				if !resp.IsValid {
					return errLicenseUnusable
				}
				return nil
			})
		},
	}
}

// ---------- license deactivate ----------

func newLicenseDeactivateCmd(open licenseOpener, out outputFactory) *cobra.Command {
	return &cobra.Command{
		Use:     "deactivate",
		Aliases: []string{"remove"},
		Short:   "Remove the stored license from this machine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLicense(cmd, open, func(ctx context.Context, lic *app.LicenseComponents) error {
				resp, err := lic.Service.Deactivate(ctx)
				if err != nil {
					return fmt.Errorf("deactivate: %w", err)
				}
				return out(cmd).action(resp)
			})
		},
	}
}

// ---------- license test ----------

func newLicenseTestCmd(open licenseOpener, out outputFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Probe the licensing authority",
		Long:  "Check that the licensing authority answers, without touching the stored license.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLicense(cmd, open, func(ctx context.Context, lic *app.LicenseComponents) error {
				resp := lic.Service.TestAuthority(ctx)
				if err := out(cmd).probe(resp); err != nil {
					return err
				}
				if !resp.Connected {
					return errAuthorityUnreached
				}
				return nil
			})
		},
	}
}

// output renders command results as text or JSON.
type output struct {
	w    io.Writer
	json bool
}

func (o output) encode(v any) error {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (o output) status(resp *domain.LicenseStatusResponse) error {
	if o.json {
		return o.encode(resp)
	}
	fmt.Fprintf(o.w, "Verdict:  %s", resp.Verdict)
	if resp.Degraded {
		fmt.Fprint(o.w, " (authority unreachable, using stored license)")
	}
	fmt.Fprintln(o.w)
	fmt.Fprintf(o.w, "Reason:   %s\n", resp.Reason)
	if resp.Message != "" {
		fmt.Fprintf(o.w, "Message:  %s\n", resp.Message)
	}
	if l := resp.License; l != nil {
		fmt.Fprintf(o.w, "Key:      %s\n", l.Key)
		if l.ExpiresAt != nil {
			fmt.Fprintf(o.w, "Expires:  %s (%d days)\n", l.ExpiresAt.Format("2006-01-02"), l.DaysRemaining)
		}
		if l.CustomerName != "" {
			fmt.Fprintf(o.w, "Customer: %s\n", l.CustomerName)
		}
		fmt.Fprintf(o.w, "Checked:  %s\n", l.LastCheckedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func (o output) debug(resp *domain.LicenseDebugResponse) error {
	// The debug snapshot has no compact text form.
	return o.encode(resp)
}

func (o output) action(resp *domain.LicenseActionResponse) error {
	if o.json {
		return o.encode(resp)
	}
	_, err := fmt.Fprintln(o.w, resp.Message)
	return err
}

func (o output) probe(resp *domain.AuthorityProbeResponse) error {
	if o.json {
		return o.encode(resp)
	}
	state := "reachable"
	if !resp.Connected {
		state = "unreachable"
	}
	fmt.Fprintf(o.w, "Authority: %s", state)
	if resp.HTTPStatus != 0 {
		fmt.Fprintf(o.w, " (HTTP %d, %d ms)", resp.HTTPStatus, resp.LatencyMS)
	}
	fmt.Fprintln(o.w)
	if resp.Message != "" {
		fmt.Fprintf(o.w, "Message:   %s\n", resp.Message)
	}
	return nil
}
