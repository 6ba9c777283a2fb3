package cmd

import (
	"fmt"
	"github.com/ValentinKolb/dMX/cmd/serve"
	"github.com/ValentinKolb/dMX/cmd/simulate"
	"github.com/ValentinKolb/dMX/cmd/status"
	"github.com/ValentinKolb/dMX/cmd/trace"
	"github.com/ValentinKolb/dMX/cmd/util"
	"github.com/spf13/cobra"
	"os"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "dmx",
		Short: "distributed mutual exclusion",
		Long: fmt.Sprintf(`dMX (v%s)

Distributed mutual exclusion for a static group of processes, ordered by
Lamport clocks. Processes exchange REQUEST, ACK and RELEASE messages and
enter the critical region in the total order of their requests.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of dMX",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dMX v%s\n", Version)
		},
	}
)

func init() {
	cobra.OnInitialize(util.InitConfig)

	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(simulate.SimulateCmd)
	RootCmd.AddCommand(status.StatusCmd)
	RootCmd.AddCommand(trace.TraceCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "serializer"
	RootCmd.PersistentFlags().String(key, "binary", util.WrapString("serializer to use (json, gob, binary)"))
	key = "transport"
	RootCmd.PersistentFlags().String(key, "tcp", util.WrapString("transport to use (http, tcp, unix)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
