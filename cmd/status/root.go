package status

import (
	"encoding/json"
	"fmt"
	cmdUtil "github.com/ValentinKolb/dMX/cmd/util"
	"github.com/ValentinKolb/dMX/lib/mutex"
	"github.com/ValentinKolb/dMX/rpc/client"
	"github.com/ValentinKolb/dMX/rpc/serializer"
	"github.com/ValentinKolb/dMX/rpc/transport"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"os"
	"strings"
)

var (
	// StatusCmd represents the status command
	StatusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show clock, state and peer table of running processes",
		Long: `Query every process listed in --transport-endpoints for a snapshot of its engine. The
endpoints must be given in process id order.`,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return cmdUtil.BindCommandFlags(cmd)
		},
		RunE: runStatus,
	}
)

func init() {
	cmdUtil.SetupRPCClientFlags(StatusCmd)

	StatusCmd.Flags().Bool("json", false, cmdUtil.WrapString("Print the snapshots as JSON"))
}

// runStatus queries all processes and prints their snapshots
func runStatus(_ *cobra.Command, _ []string) error {
	config := cmdUtil.GetClientConfig()

	s, err := cmdUtil.GetSerializer()
	if err != nil {
		return err
	}
	newTransport, err := cmdUtil.GetTransport()
	if err != nil {
		return err
	}

	var snapshots []mutex.Snapshot
	failed := 0
	for id, endpoint := range config.Transport.Endpoints {
		snapshot, err := query(id, endpoint, s, newTransport)
		if err != nil {
			fmt.Fprintf(os.Stderr, "process %d (%s): %v\n", id, endpoint, err)
			failed++
			continue
		}
		snapshots = append(snapshots, snapshot)
	}

	if viper.GetBool("json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(snapshots); err != nil {
			return err
		}
	} else {
		for _, snapshot := range snapshots {
			fmt.Print(format(snapshot))
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d processes did not answer", failed, len(config.Transport.Endpoints))
	}
	return nil
}

// query fetches the snapshot of the process id at endpoint
func query(id int, endpoint string, s serializer.IRPCSerializer, newTransport func() transport.IRPCClientTransport) (mutex.Snapshot, error) {
	config := cmdUtil.GetClientConfig().ForPeer(endpoint)
	peer, err := client.NewRPCPeer(id, config, newTransport(), s)
	if err != nil {
		return mutex.Snapshot{}, err
	}
	defer peer.Close()
	return peer.Status()
}

// format renders a snapshot in the table style of the config printers
func format(s mutex.Snapshot) string {
	var sb strings.Builder

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	sb.WriteString(fmt.Sprintf("\nPROCESS %d\n", s.Process))
	addField("Clock", s.Clock.String())
	addField("State", s.State)
	addField("Admission", s.Admission)
	addField("May Enter", fmt.Sprintf("%t", s.MayEnter))
	for _, slot := range s.Slots {
		value := "-"
		if slot.Message != nil {
			value = slot.Message.String()
		}
		addField(fmt.Sprintf("Slot %d", slot.Peer), value)
	}
	return sb.String()
}
