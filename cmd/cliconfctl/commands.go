package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	cliconf "github.com/nanoncore/nano-cliconf"
	"github.com/nanoncore/nano-cliconf/drivers/gnmi"
)

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "cliconfctl",
		Short:         "Read and edit device configuration over interactive CLI sessions",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "configuration file (default ./cliconf.yaml)")
	flags.StringSliceVarP(&a.devices, "device", "d", nil, "inventory device to target, repeatable (default all)")
	flags.BoolVar(&a.simulate, "simulate", false, "talk to simulated devices instead of the network")
	flags.StringVar(&a.logLevel, "log-level", "", "override log.level")

	root.AddCommand(
		newInfoCmd(a),
		newConfigCmd(a),
		newEditCmd(a),
		newExecCmd(a),
		newCapabilitiesCmd(a),
		newDetectCmd(a),
		newDialectsCmd(a),
		newServeGNMICmd(a),
	)
	return root
}

func newInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show device identity (OS, version, model, hostname)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.fanOut(cmd.Context(), cmd.OutOrStdout(), func(ctx context.Context, c *cliconf.Cliconf) (string, error) {
				info, err := c.GetDeviceInfo(ctx)
				if err != nil {
					return "", err
				}
				return formatMap(info), nil
			})
		},
	}
}

func formatMap(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s: %s", k, m[k])
	}
	return b.String()
}

func newConfigCmd(a *app) *cobra.Command {
	var flags []string
	var format string

	cmd := &cobra.Command{
		Use:   "config [running|startup]",
		Short: "Print the running or startup configuration",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source := cliconf.SourceRunning
			if len(args) == 1 {
				source = args[0]
			}
			return a.fanOut(cmd.Context(), cmd.OutOrStdout(), func(ctx context.Context, c *cliconf.Cliconf) (string, error) {
				return c.GetConfig(ctx, source, flags, format)
			})
		},
	}
	cmd.Flags().StringSliceVar(&flags, "flag", nil, "word appended to the show command, repeatable")
	cmd.Flags().StringVar(&format, "format", cliconf.FormatText, "output format")
	return cmd
}

func newEditCmd(a *app) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "edit [line...]",
		Short: "Apply configuration lines in configuration mode",
		Long: `Apply configuration lines in configuration mode.

Lines come from the arguments, or one per line from --file ("-" reads stdin).
The first rejected line stops the edit; lines before it stay applied.

Examples:
  cliconfctl -d leaf1 edit "interface vlan10" "description users"
  cliconfctl -d leaf1 edit --file vlan10.cfg`,
		RunE: func(cmd *cobra.Command, args []string) error {
			lines := args
			if file != "" {
				var err error
				if lines, err = readLines(file, cmd.InOrStdin()); err != nil {
					return err
				}
			}
			if len(lines) == 0 {
				return fmt.Errorf("no configuration lines given")
			}
			return a.fanOut(cmd.Context(), cmd.OutOrStdout(), func(ctx context.Context, c *cliconf.Cliconf) (string, error) {
				results, err := c.EditConfig(ctx, cliconf.Commands(lines...))
				applied := 0
				for _, r := range results {
					if r.Success {
						applied++
					}
				}
				return fmt.Sprintf("applied %d of %d lines", applied, len(lines)), err
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "read configuration lines from a file")
	return cmd
}

func readLines(path string, stdin io.Reader) ([]string, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	var lines []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if l := strings.TrimRight(sc.Text(), "\r"); strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	return lines, sc.Err()
}

func newExecCmd(a *app) *cobra.Command {
	var req cliconf.CommandRequest
	var noNewline bool

	cmd := &cobra.Command{
		Use:   "exec <command>",
		Short: "Send one command as is, answering interactive prompts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Command = args[0]
			if noNewline {
				req.Newline = new(bool)
			}
			return a.fanOut(cmd.Context(), cmd.OutOrStdout(), func(ctx context.Context, c *cliconf.Cliconf) (string, error) {
				res, err := c.Get(ctx, req)
				if res == nil {
					return "", err
				}
				return res.Output, err
			})
		},
	}
	cmd.Flags().StringArrayVar(&req.Prompts, "prompt", nil, "regex of an interactive prompt, repeatable")
	cmd.Flags().StringArrayVar(&req.Answers, "answer", nil, "answer for the prompt at the same position, repeatable")
	cmd.Flags().BoolVar(&req.CheckAll, "check-all", false, "require every prompt to be answered")
	cmd.Flags().BoolVar(&req.SendOnly, "send-only", false, "do not wait for a response")
	cmd.Flags().BoolVar(&noNewline, "no-newline", false, "do not append the dialect newline")
	cmd.Flags().DurationVar(&req.Timeout, "timeout", 0, "response timeout (default from configuration)")
	return cmd
}

func newCapabilitiesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "capabilities",
		Short: "Print the capability descriptor as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.fanOut(cmd.Context(), cmd.OutOrStdout(), func(ctx context.Context, c *cliconf.Cliconf) (string, error) {
				if _, err := c.GetDeviceInfo(ctx); err != nil {
					return "", err
				}
				return c.GetCapabilities().JSON()
			})
		},
	}
}

func newDetectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "detect",
		Short: "Find each device's dialect from its SNMP sysDescr",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			targets, err := a.targets()
			if err != nil {
				return err
			}

			names := make([]string, len(targets))
			var g errgroup.Group
			g.SetLimit(a.cfg.Concurrency)
			for i, dc := range targets {
				dc.Dialect = cliconf.DialectAuto
				g.Go(func() error {
					d, err := cliconf.ResolveDialect(cmd.Context(), dc, a.registry)
					if err != nil {
						return err
					}
					names[i] = d.Name()
					return nil
				})
			}
			err = g.Wait()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "DEVICE\tDIALECT")
			for i, dc := range targets {
				name := names[i]
				if name == "" {
					name = "-"
				}
				fmt.Fprintf(w, "%s\t%s\n", dc.Name, name)
			}
			if ferr := w.Flush(); ferr != nil {
				return ferr
			}
			return err
		},
	}
}

func newDialectsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "dialects",
		Short: "List the known device families",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tNETWORK OS\tDESCRIPTION")
			for _, d := range cliconf.SupportedDialects(a.registry) {
				fmt.Fprintf(w, "%s\t%s\t%s\n", d.Name, d.NetworkOS, d.Description)
			}
			return w.Flush()
		},
	}
}

func newServeGNMICmd(a *app) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve-gnmi",
		Short: "Expose the selected devices through a gNMI gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			targets, err := a.targets()
			if err != nil {
				return err
			}

			var mu sync.Mutex
			devices := make(gnmi.StaticTargets, len(targets))
			var g errgroup.Group
			g.SetLimit(a.cfg.Concurrency)
			for _, dc := range targets {
				g.Go(func() error {
					c, err := a.connect(ctx, dc)
					if err != nil {
						return fmt.Errorf("%s: %w", dc.Name, err)
					}
					mu.Lock()
					devices[dc.Name] = c
					mu.Unlock()
					return nil
				})
			}
			err = g.Wait()
			defer func() {
				for _, d := range devices {
					_ = d.(*cliconf.Cliconf).Close()
				}
			}()
			if err != nil {
				return err
			}

			if listen == "" {
				listen = a.cfg.GNMI.Listen
			}
			lis, err := net.Listen("tcp", listen)
			if err != nil {
				return err
			}

			opts := []gnmi.Option{}
			if a.cfg.GNMI.Username != "" {
				opts = append(opts, gnmi.WithCredentials(a.cfg.GNMI.Username, a.cfg.GNMI.Password))
			}
			return gnmi.NewServer(devices, opts...).Serve(ctx, lis)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "gRPC listen address (default gnmi.listen)")
	return cmd
}
