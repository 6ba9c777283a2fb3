package simulate

import (
	"context"
	"fmt"
	cmdUtil "github.com/ValentinKolb/dMX/cmd/util"
	"github.com/ValentinKolb/dMX/lib/mutex"
	"github.com/ValentinKolb/dMX/lib/sim"
	"github.com/ValentinKolb/dMX/lib/trace"
	"github.com/ValentinKolb/dMX/rpc/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"os"
	"os/signal"
	"time"
)

var (
	simConfig = sim.DefaultConfig()
	tracePath string

	SimulateCmd = &cobra.Command{
		Use:   "simulate",
		Short: "Run a group of processes in memory and report the grants",
		Long: `Run a group of processes over an in-memory network with simulated latency. Every process
requests the critical region --rounds times. The command prints the order of the grants, the
admission waits and fails if two processes ever held the critical region together.`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	defaults := sim.DefaultConfig()

	key := "peers"
	SimulateCmd.Flags().Int(key, defaults.Peers, cmdUtil.WrapString("Number of processes"))

	key = "rounds"
	SimulateCmd.Flags().Int(key, defaults.Rounds, cmdUtil.WrapString("Grants per process"))

	key = "think-ms"
	SimulateCmd.Flags().Int(key, int(defaults.ThinkTime/time.Millisecond), cmdUtil.WrapString("Pause in milliseconds before each request"))

	key = "work-ms"
	SimulateCmd.Flags().Int(key, int(defaults.WorkTime/time.Millisecond), cmdUtil.WrapString("Time in milliseconds spent in the critical region"))

	key = "delay-ms"
	SimulateCmd.Flags().Int(key, int(defaults.Delay/time.Millisecond), cmdUtil.WrapString("Network latency in milliseconds per message (0 delivers immediately)"))

	key = "jitter"
	SimulateCmd.Flags().Float64(key, 0.5, cmdUtil.WrapString("Random extra of think, work and delay as a fraction of the base value"))

	key = "admission"
	SimulateCmd.Flags().String(key, defaults.Admission.String(), cmdUtil.WrapString("Admission policy (lowest-known, all-known). lowest-known can admit two processes at start-up"))

	key = "timeout"
	SimulateCmd.Flags().Int(key, int(defaults.Timeout/time.Second), cmdUtil.WrapString("Timeout in seconds for the whole run (0 = none)"))

	key = "trace"
	SimulateCmd.Flags().String(key, "", cmdUtil.WrapString("Path of a SQLite database to record ENTER/EXIT events into (verified after the run)"))

	key = "log-level"
	SimulateCmd.Flags().String(key, "warn", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// processConfig reads the simulation parameters from flags and environment variables
func processConfig(cmd *cobra.Command, _ []string) error {
	if err := cmdUtil.BindCommandFlags(cmd); err != nil {
		return err
	}

	admission, err := mutex.ParseAdmissionPolicy(viper.GetString("admission"))
	if err != nil {
		return err
	}

	jitter := viper.GetFloat64("jitter")
	if jitter < 0 {
		return fmt.Errorf("--jitter must not be negative")
	}
	for _, key := range []string{"think-ms", "work-ms", "delay-ms", "timeout"} {
		if viper.GetInt(key) < 0 {
			return fmt.Errorf("--%s must not be negative", key)
		}
	}

	simConfig = sim.Config{
		Peers:       viper.GetInt("peers"),
		Rounds:      viper.GetInt("rounds"),
		ThinkTime:   time.Duration(viper.GetInt("think-ms")) * time.Millisecond,
		ThinkJitter: jitter,
		WorkTime:    time.Duration(viper.GetInt("work-ms")) * time.Millisecond,
		WorkJitter:  jitter,
		Delay:       time.Duration(viper.GetInt("delay-ms")) * time.Millisecond,
		DelayJitter: jitter,
		Admission:   admission,
		Timeout:     time.Duration(viper.GetInt("timeout")) * time.Second,
	}
	tracePath = viper.GetString("trace")

	return common.InitLoggers(viper.GetString("log-level"))
}

// run executes the simulation and prints the report
func run(_ *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var recorder *trace.Recorder
	if tracePath != "" {
		var err error
		recorder, err = trace.Open(tracePath)
		if err != nil {
			return err
		}
		defer recorder.Close()
		simConfig.Trace = recorder
	}

	report, err := sim.Run(ctx, simConfig)
	if report != nil {
		fmt.Print(report.String())
	}
	if err != nil {
		return err
	}

	if recorder != nil {
		result, err := recorder.Verify(report.RunID)
		if err != nil {
			return fmt.Errorf("verify trace: %w", err)
		}
		fmt.Printf("\ntrace %s: %d grants, %d overlaps, %d out of order\n",
			result.RunID, result.Grants, len(result.Overlaps), len(result.OutOfOrder))
	}

	if report.Violations > 0 {
		return fmt.Errorf("mutual exclusion violated %d times", report.Violations)
	}
	if !report.Ordered() {
		return fmt.Errorf("grants are not ordered by request clock")
	}
	return nil
}
