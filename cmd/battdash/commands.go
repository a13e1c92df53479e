package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/five82/battdash/internal/app"
	"github.com/five82/battdash/internal/device"
	"github.com/five82/battdash/internal/devicesim"
	"github.com/five82/battdash/internal/state"
)

func newWatchCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream controller updates to the console",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := g.options()
			opts.LogWriter = cmd.ErrOrStderr()
			return app.Watch(cmd.Context(), opts)
		},
	}
}

func newSnapshotCmd(g *globalFlags) *cobra.Command {
	var (
		format  string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Print the controller's current values once and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := g.options()
			opts.LogWriter = cmd.ErrOrStderr()
			snap, err := app.Snapshot(cmd.Context(), opts, timeout)
			if err != nil {
				return err
			}
			return writeExport(cmd.OutOrStdout(), snap.Export(), format)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "output format (json or yaml)")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "how long to wait for the controller")
	return cmd
}

func writeExport(w io.Writer, export state.Export, format string) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json", "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(export)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(export); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q (want json or yaml)", format)
	}
}

func newSwitchCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:       "switch on|off BATTERY",
		Short:     "Connect or disconnect one battery",
		Example:   "  battdash switch off 3",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			on, battery, err := parseSwitchArgs(args)
			if err != nil {
				return err
			}
			reply, err := app.Switch(cmd.Context(), g.options(), battery, on)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), reply)
			return nil
		},
	}
}

func parseSwitchArgs(args []string) (on bool, battery int, err error) {
	switch strings.ToLower(args[0]) {
	case "on":
		on = true
	case "off":
	default:
		return false, 0, fmt.Errorf("first argument must be on or off, got %q", args[0])
	}
	battery, err = strconv.Atoi(args[1])
	if err != nil {
		return false, 0, fmt.Errorf("battery must be a number, got %q", args[1])
	}
	if battery < 0 || battery >= device.MaxBatteries {
		return false, 0, fmt.Errorf("battery must be between 0 and %d", device.MaxBatteries-1)
	}
	return on, battery, nil
}

func newLogCmd(g *globalFlags) *cobra.Command {
	var (
		tail int
		all  bool
	)
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Print the controller's SD card log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			records, err := app.DeviceLog(cmd.Context(), g.options())
			if err != nil {
				return err
			}
			if !all {
				records = validRecords(records)
			}
			if tail > 0 && len(records) > tail {
				records = records[len(records)-tail:]
			}
			return writeLogTable(cmd.OutOrStdout(), records)
		},
	}
	cmd.Flags().IntVarP(&tail, "tail", "n", 0, "only print the last N rows")
	cmd.Flags().BoolVar(&all, "all", false, "include rows that did not parse")
	return cmd
}

func validRecords(records []device.LogRecord) []device.LogRecord {
	out := records[:0:0]
	for _, r := range records {
		if r.Valid {
			out = append(out, r)
		}
	}
	return out
}

func writeLogTable(w io.Writer, records []device.LogRecord) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "UPTIME\tBATTERY\tVOLTAGE\tCURRENT\tSWITCH\tAH\t")
	for _, r := range records {
		if !r.Valid {
			fmt.Fprintln(tw, strings.Join(r.Cells, "\t")+"\t")
			continue
		}
		sw := "off"
		if r.SwitchOn {
			sw = "on"
		}
		fmt.Fprintf(tw, "%s\t%d\t%.2f\t%.2f\t%s\t%.3f\t\n",
			r.Uptime.Truncate(time.Second), r.Battery, r.Voltage, r.Current, sw, r.AmpereHour)
	}
	return tw.Flush()
}

func newSetCmd(g *globalFlags) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:     "set FIELD=VALUE...",
		Short:   "Send configuration changes; the controller restarts to apply them",
		Example: "  battdash set max_current=2 slider1=30",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			edits, err := parseAssignments(args)
			if err != nil {
				return err
			}
			opts := g.options()
			opts.LogWriter = cmd.ErrOrStderr()
			return app.Set(cmd.Context(), opts, edits, timeout)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 15*time.Second, "how long to wait for the controller")
	return cmd
}

// parseAssignments turns key=value arguments into an edit set. A repeated key
// keeps its last value.
func parseAssignments(args []string) (map[string]string, error) {
	edits := make(map[string]string, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		if !ok || key == "" {
			return nil, fmt.Errorf("expected FIELD=VALUE, got %q", arg)
		}
		edits[key] = value
	}
	return edits, nil
}

func newSimCmd(g *globalFlags) *cobra.Command {
	var (
		listen    string
		batteries int
		tick      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "sim",
		Short: "Run a simulated controller for development",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			level, err := app.ParseLevel(g.logLevel)
			if err != nil {
				return err
			}
			logger := app.NewConsoleLogger(cmd.ErrOrStderr(), level)
			sim := devicesim.New(devicesim.Options{
				Batteries:    batteries,
				TickInterval: tick,
				Seed:         uint64(time.Now().UnixNano()),
				Logger:       logger,
			})
			return serveSim(cmd.Context(), listen, sim, func(addr string) {
				logger.Info().Str("addr", addr).Msgf("simulator listening; try battdash --host %s", addr)
			})
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "127.0.0.1:8080", "address to serve on")
	cmd.Flags().IntVar(&batteries, "batteries", 4, "number of simulated batteries")
	cmd.Flags().DurationVar(&tick, "tick", 2*time.Second, "status broadcast period")
	return cmd
}

func serveSim(ctx context.Context, listen string, sim *devicesim.Server, ready func(addr string)) error {
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	srv := &http.Server{Handler: sim, ReadHeaderTimeout: 5 * time.Second}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	simDone := make(chan error, 1)
	go func() { simDone <- sim.Run(ctx) }()

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ln) }()
	if ready != nil {
		ready(ln.Addr().String())
	}

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			cancel()
			<-simDone
			return fmt.Errorf("serve: %w", err)
		}
	}
	cancel()
	<-simDone
	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		fmt.Fprintf(os.Stderr, "battdash: shutdown: %v\n", err)
	}
	return nil
}
