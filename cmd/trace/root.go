package trace

import (
	"fmt"
	cmdUtil "github.com/ValentinKolb/dMX/cmd/util"
	"github.com/ValentinKolb/dMX/lib/trace"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"time"
)

var (
	recorder *trace.Recorder

	// TraceCommands represents the trace command group
	TraceCommands = &cobra.Command{
		Use:               "trace",
		Short:             "Inspect grant traces recorded by simulate --trace",
		PersistentPreRunE: openTrace,
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			return recorder.Close()
		},
	}

	// runsCmd lists the recorded runs
	runsCmd = &cobra.Command{
		Use:   "runs",
		Short: "List the recorded runs",
		Args:  cobra.NoArgs,
		RunE:  runRuns,
	}

	// verifyCmd checks recorded runs
	verifyCmd = &cobra.Command{
		Use:   "verify [runID...]",
		Short: "Check that the critical regions of the runs never overlapped",
		Long:  "Check every given run (default: all runs) for overlapping critical regions and for grants that are not ordered by their request clock.",
		RunE:  runVerify,
	}
)

func init() {
	TraceCommands.AddCommand(runsCmd)
	TraceCommands.AddCommand(verifyCmd)

	TraceCommands.PersistentFlags().String("db", "dmx-trace.db", cmdUtil.WrapString("Path of the trace database"))
}

// openTrace opens the trace database
func openTrace(cmd *cobra.Command, _ []string) error {
	if err := cmdUtil.BindCommandFlags(cmd); err != nil {
		return err
	}
	var err error
	recorder, err = trace.Open(viper.GetString("db"))
	return err
}

// runRuns prints one line per recorded run
func runRuns(_ *cobra.Command, _ []string) error {
	runs, err := recorder.Runs()
	if err != nil {
		return err
	}
	for _, run := range runs {
		fmt.Printf("%s  %s  peers=%d  admission=%s\n",
			run.ID, run.Started.Format(time.RFC3339), run.Peers, run.Admission)
	}
	return nil
}

// runVerify verifies the given runs and fails if one of them is broken
func runVerify(_ *cobra.Command, args []string) error {
	ids := args
	if len(ids) == 0 {
		runs, err := recorder.Runs()
		if err != nil {
			return err
		}
		for _, run := range runs {
			ids = append(ids, run.ID)
		}
	}

	broken := 0
	for _, id := range ids {
		result, err := recorder.Verify(id)
		if err != nil {
			return err
		}

		status := "ok"
		if !result.OK() {
			status = "VIOLATED"
			broken++
		}
		fmt.Printf("%s  %s  grants=%d open=%d overlaps=%d out-of-order=%d\n",
			result.RunID, status, result.Grants, result.Open, len(result.Overlaps), len(result.OutOfOrder))

		for _, pair := range result.Overlaps {
			fmt.Printf("    overlap: process %d (round %d, %s) and process %d (round %d, %s)\n",
				pair[0].Process, pair[0].Round, pair[0].Clock, pair[1].Process, pair[1].Round, pair[1].Clock)
		}
		for _, interval := range result.OutOfOrder {
			fmt.Printf("    out of order: process %d (round %d, %s)\n", interval.Process, interval.Round, interval.Clock)
		}
	}

	if broken > 0 {
		return fmt.Errorf("%d of %d runs violated mutual exclusion or order", broken, len(ids))
	}
	return nil
}
