package serve

import (
	"fmt"
	cmdUtil "github.com/ValentinKolb/dSync/cmd/util"
	"github.com/ValentinKolb/dSync/rpc/common"
	"github.com/ValentinKolb/dSync/rpc/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start the dSync lock server",
		Long:    `Start the dSync lock server with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is DSYNC_<flag> (e.g. DSYNC_LOG_LEVEL=debug)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(cmdUtil.InitConfig)

	// add flags
	key := "shards"
	ServeCmd.PersistentFlags().String(key, "200", cmdUtil.WrapString("Comma-separated list of shards to serve. Every shard is an independent lock namespace. Format: ID or ID=TYPE where TYPE is lockmgr"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, 0, cmdUtil.WrapString("Idle timeout of a connection in seconds (0 = no timeout). Connections waiting for a lock are never idle"))

	key = "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:8080", cmdUtil.WrapString("The address on which the server will listen (e.g. localhost:8080, /tmp/dsync.sock, ...)"))

	key = "workers"
	ServeCmd.PersistentFlags().Int(key, 256, cmdUtil.WrapString("Maximum number of concurrent requests per connection"))

	key = "metrics-endpoint"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Address of the Prometheus metrics endpoint (e.g. localhost:9090, empty = disabled)"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))

	key = "socket-write-buffer"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("The size of the socket write buffer (in KB, 0 = system default)"))

	key = "socket-read-buffer"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("The size of the socket read buffer (in KB, 0 = system default)"))

	key = "tcp-nodelay"
	ServeCmd.PersistentFlags().Bool(key, true, cmdUtil.WrapString("Whether to enable TCP_NODELAY (tcp and ws only)"))

	key = "tcp-keepalive"
	ServeCmd.PersistentFlags().Int(key, 30, cmdUtil.WrapString("The keepalive interval (in seconds, 0 = disabled, tcp and ws only)"))

	key = "tcp-linger"
	ServeCmd.PersistentFlags().Int(key, -1, cmdUtil.WrapString("The linger time (in seconds, negative for the system default, tcp and ws only)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	shards, err := parseShards(viper.GetString("shards"))
	if err != nil {
		return err
	}
	serveCmdConfig.Shards = shards

	// read the configuration from the command line flags and environment variables
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.MetricsEndpoint = viper.GetString("metrics-endpoint")
	serveCmdConfig.LogLevel = viper.GetString("log-level")
	serveCmdConfig.Transport = common.ServerTransportConfig{
		Endpoint:       viper.GetString("endpoint"),
		WorkersPerConn: viper.GetInt("workers"),
		SocketConf: common.SocketConf{
			WriteBufferSize: viper.GetInt("socket-write-buffer") * 1024,
			ReadBufferSize:  viper.GetInt("socket-read-buffer") * 1024,
		},
		TCPConf: common.TCPConf{
			TCPNoDelay:      viper.GetBool("tcp-nodelay"),
			TCPKeepAliveSec: viper.GetInt("tcp-keepalive"),
			TCPLingerSec:    viper.GetInt("tcp-linger"),
		},
	}

	if serveCmdConfig.Transport.Endpoint == "" {
		return fmt.Errorf("endpoint must not be empty")
	}
	return nil
}

// parseShards parses a list like "200,201=lockmgr"
func parseShards(shardsConfig string) ([]common.ServerShard, error) {
	var shards []common.ServerShard
	seen := make(map[uint64]bool)

	for _, shardConfig := range strings.Split(shardsConfig, ",") {
		shardConfig = strings.TrimSpace(shardConfig)
		if shardConfig == "" {
			continue
		}

		idPart, typePart, hasType := strings.Cut(shardConfig, "=")

		// Parse shard ID
		shardID, err := strconv.ParseUint(strings.TrimSpace(idPart), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid shard ID %s: %v", idPart, err)
		}
		if seen[shardID] {
			return nil, fmt.Errorf("shard %d is listed twice", shardID)
		}
		seen[shardID] = true

		// Parse shard type
		if hasType && strings.TrimSpace(typePart) != "lockmgr" {
			return nil, fmt.Errorf("invalid shard type: %s (expected lockmgr)", typePart)
		}

		shards = append(shards, common.ServerShard{
			ShardID: shardID,
			Type:    common.ShardTypeLockManager,
		})
	}

	if len(shards) == 0 {
		return nil, fmt.Errorf("at least one shard is required")
	}
	return shards, nil
}

// run starts the dSync server and stops it on SIGINT or SIGTERM
func run(_ *cobra.Command, _ []string) error {
	s, err := cmdUtil.GetSerializer()
	if err != nil {
		return err
	}

	t, err := cmdUtil.GetServerTransport()
	if err != nil {
		return err
	}

	serv := server.NewRPCServer(
		*serveCmdConfig,
		t,
		s,
	)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)
	go func() {
		if _, ok := <-sig; ok {
			server.Logger.Infof("Received signal, shutting down")
			serv.Shutdown()
		}
	}()

	return serv.Serve()
}
