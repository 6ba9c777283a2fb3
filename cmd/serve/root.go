package serve

import (
	"context"
	"errors"
	"fmt"
	cmdUtil "github.com/ValentinKolb/dMX/cmd/util"
	"github.com/ValentinKolb/dMX/lib/mutex"
	"github.com/ValentinKolb/dMX/lib/node"
	"github.com/ValentinKolb/dMX/lib/util"
	"github.com/ValentinKolb/dMX/rpc/common"
	"github.com/ValentinKolb/dMX/rpc/network"
	"github.com/ValentinKolb/dMX/rpc/transport"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

var Logger = logger.GetLogger("node")

var (
	serveCmdConfig  = &common.ServerConfig{}
	clientCmdConfig = &common.ClientConfig{}
	nodeCmdConfig   = node.Config{}
	metricsEndpoint string

	ServeCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run one process of a dMX group",
		Long: `Run one process of a dMX group. The process listens on its own endpoint, connects to the
endpoints of all other processes and then repeatedly requests the critical region, works in it and
releases it again. The configuration can be set via command line flags or environment variables.
The format of the environment variables is DMX_<flag> (e.g. DMX_THINK_MS=200)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	key := "id"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("The id of this process (index into --peers). Process 0 holds the initial request"))

	key = "peers"
	ServeCmd.PersistentFlags().String(key, "localhost:7000,localhost:7001,localhost:7002", cmdUtil.WrapString("Comma-separated endpoints of all processes, in process id order"))

	key = "endpoint"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("The address to listen on (default: the entry of --peers for --id)"))

	key = "group"
	ServeCmd.PersistentFlags().Uint64(key, 1, cmdUtil.WrapString("The group id shared by all processes; frames of other groups are rejected"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, 5, cmdUtil.WrapString("Timeout in seconds of a single RPC"))

	key = "workers-per-conn"
	ServeCmd.PersistentFlags().Int(key, 1, cmdUtil.WrapString("Concurrent requests handled per incoming connection"))

	key = "admission"
	ServeCmd.PersistentFlags().String(key, mutex.AdmissionLowestKnown.String(), cmdUtil.WrapString("Admission policy (lowest-known, all-known). all-known waits until every peer was heard of"))

	key = "think-ms"
	ServeCmd.PersistentFlags().Int(key, 1000, cmdUtil.WrapString("Pause in milliseconds between leaving the critical region and the next request (+ up to 50% jitter)"))

	key = "work-ms"
	ServeCmd.PersistentFlags().Int(key, 1000, cmdUtil.WrapString("Time in milliseconds spent in the critical region (+ up to 50% jitter)"))

	key = "poll-ms"
	ServeCmd.PersistentFlags().Int(key, 500, cmdUtil.WrapString("Listener backoff in milliseconds for networks without notification (+ up to 50% jitter)"))

	key = "rounds"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("Number of grants after which the process stops requesting (0 = unlimited)"))

	key = "strict"
	ServeCmd.PersistentFlags().Bool(key, false, cmdUtil.WrapString("Stop on messages with an unknown action or sender instead of dropping them"))

	key = "metrics-endpoint"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Address for the Prometheus /metrics endpoint (empty disables it)"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))

	cmdUtil.SetupTransportFlags(ServeCmd)
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the process configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	if err := cmdUtil.BindCommandFlags(cmd); err != nil {
		return err
	}

	peers := cmdUtil.SplitList(viper.GetString("peers"))
	id := viper.GetInt("id")

	serveCmdConfig.NodeID = id
	serveCmdConfig.Peers = peers
	serveCmdConfig.GroupID = viper.GetUint64("group")
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.LogLevel = viper.GetString("log-level")
	serveCmdConfig.Transport = common.ServerTransportConfig{
		Endpoint:       viper.GetString("endpoint"),
		WorkersPerConn: viper.GetInt("workers-per-conn"),
		BufferSize:     64 * 1024,
		SocketConf:     cmdUtil.GetSocketConf(),
		TCPConf:        cmdUtil.GetTCPConf(),
	}
	if serveCmdConfig.Transport.Endpoint == "" && id >= 0 && id < len(peers) {
		serveCmdConfig.Transport.Endpoint = peers[id]
	}
	if err := serveCmdConfig.Validate(); err != nil {
		return err
	}

	*clientCmdConfig = common.ClientConfig{
		GroupID:       serveCmdConfig.GroupID,
		TimeoutSecond: int(serveCmdConfig.TimeoutSecond),
		Transport: common.ClientTransportConfig{
			RetryCount:             viper.GetInt("transport-retries"),
			ConnectionsPerEndpoint: 1,
			SocketConf:             serveCmdConfig.Transport.SocketConf,
			TCPConf:                serveCmdConfig.Transport.TCPConf,
		},
	}

	admission, err := mutex.ParseAdmissionPolicy(viper.GetString("admission"))
	if err != nil {
		return err
	}

	for _, key := range []string{"think-ms", "work-ms", "poll-ms", "rounds"} {
		if viper.GetInt(key) < 0 {
			return fmt.Errorf("--%s must not be negative", key)
		}
	}

	nodeCmdConfig = node.DefaultConfig(id, len(peers))
	nodeCmdConfig.ThinkTime = time.Duration(viper.GetInt("think-ms")) * time.Millisecond
	nodeCmdConfig.WorkTime = time.Duration(viper.GetInt("work-ms")) * time.Millisecond
	nodeCmdConfig.PollInterval = time.Duration(viper.GetInt("poll-ms")) * time.Millisecond
	nodeCmdConfig.MaxRounds = viper.GetInt("rounds")
	nodeCmdConfig.Admission = admission
	nodeCmdConfig.StrictContract = viper.GetBool("strict")

	metricsEndpoint = viper.GetString("metrics-endpoint")

	return common.InitLoggers(serveCmdConfig.LogLevel)
}

// run starts the process and blocks until it is interrupted or fails
func run(_ *cobra.Command, _ []string) error {
	s, err := cmdUtil.GetSerializer()
	if err != nil {
		return err
	}
	serverTransport, err := cmdUtil.GetServerTransport()
	if err != nil {
		return err
	}
	newClientTransport, err := cmdUtil.GetTransport()
	if err != nil {
		return err
	}

	fmt.Print(serveCmdConfig.String())

	group, err := network.New(*serveCmdConfig, *clientCmdConfig, serverTransport, newClientTransport, s)
	if err != nil {
		return err
	}
	defer group.Close()

	process, err := node.New(nodeCmdConfig, group, node.WithWork(logWork(nodeCmdConfig)))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if metricsEndpoint != "" {
		metricsServer := startMetricsServer(metricsEndpoint, process)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
	}

	// the network must be closed for a listener blocked in a retry to return
	go func() {
		<-ctx.Done()
		group.Close()
	}()

	serveErr := make(chan error, 1)
	go func() {
		err := group.Serve(process.Engine().Snapshot)
		if errors.Is(err, transport.ErrServerClosed) {
			err = nil
		}
		if err != nil {
			stop()
		}
		serveErr <- err
	}()

	runErr := process.Run(ctx)
	interrupted := ctx.Err() != nil
	stop()

	if err := <-serveErr; err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	if runErr != nil && interrupted && errors.Is(runErr, network.ErrClosed) {
		return nil
	}
	return runErr
}

// logWork is the critical work of a served process: it logs the grant and
// holds the region for the configured work time
func logWork(config node.Config) node.Work {
	return func(ctx context.Context, grant node.Grant) error {
		Logger.Infof("process %d entered the critical region (round %d, request %s, waited %s)",
			grant.Process, grant.Round, grant.Request, grant.Waited.Round(time.Millisecond))

		timer := time.NewTimer(util.Jitter(config.WorkTime, config.WorkJitter))
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}

		Logger.Infof("process %d leaves the critical region", grant.Process)
		return nil
	}
}

// startMetricsServer exposes the metrics in Prometheus format on /metrics
func startMetricsServer(endpoint string, process *node.Process) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /metrics", func(w http.ResponseWriter, _ *http.Request) {
		metrics.WritePrometheus(w, true)
		process.WriteMetrics(w)
	})

	server := &http.Server{
		Addr:              endpoint,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		Logger.Infof("Serving metrics on %s/metrics", endpoint)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			Logger.Errorf("metrics endpoint failed: %v", err)
		}
	}()
	return server
}
