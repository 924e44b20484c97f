// Command rpc-client calls a UserService served by rpc-server.
//
//	rpc-client get 1
//	rpc-client lookup Alice
//	rpc-client save 3 Carol
//	rpc-client --codec binary list
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"contract-rpc/client"
	"contract-rpc/codec"
	"contract-rpc/config"
	"contract-rpc/telemetry"
	"contract-rpc/userservice"

	"github.com/urfave/cli"
)

func main() {
	app := cli.NewApp()
	app.Name = "rpc-client"
	app.Usage = "call the UserService contract over contract-rpc"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "config, c", Usage: "YAML config file", EnvVar: "RPC_CONFIG"},
		cli.StringFlag{Name: "addr", Usage: "server address", EnvVar: "RPC_ADDR"},
		cli.StringFlag{Name: "codec", Usage: "envelope codec: json or binary", EnvVar: "RPC_CODEC"},
		cli.DurationFlag{Name: "call-timeout", Usage: "per-call timeout, 0 disables", EnvVar: "RPC_CALL_TIMEOUT"},
		cli.DurationFlag{Name: "dial-timeout", Usage: "per-attempt connect timeout", EnvVar: "RPC_DIAL_TIMEOUT"},
		cli.UintFlag{Name: "dial-tries", Usage: "connection attempts before giving up", EnvVar: "RPC_DIAL_TRIES"},
		cli.StringFlag{Name: "otlp-endpoint", Usage: "OTLP/gRPC collector for traces", EnvVar: "OTEL_EXPORTER_OTLP_ENDPOINT"},
		cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error", EnvVar: "RPC_LOG_LEVEL"},
	}
	app.Commands = []cli.Command{
		{
			Name:      "get",
			Usage:     "Print the user with the given id",
			ArgsUsage: "<id>",
			Action:    getCommand,
		},
		{
			Name:      "lookup",
			Usage:     "Find a user by id or by name",
			ArgsUsage: "<id|name>",
			Action:    lookupCommand,
		},
		{
			Name:      "save",
			Usage:     "Create or replace a user",
			ArgsUsage: "<id> <name>",
			Action:    saveCommand,
		},
		{
			Name:      "delete",
			Usage:     "Delete a user",
			ArgsUsage: "<id>",
			Action:    deleteCommand,
		},
		{
			Name:   "list",
			Usage:  "Print every user",
			Action: listCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "rpc-client:", err)
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context) (config.Client, error) {
	cfg := config.DefaultClient()
	if err := config.Load(c.GlobalString("config"), &cfg); err != nil {
		return cfg, err
	}
	if c.GlobalIsSet("addr") {
		cfg.Addr = c.GlobalString("addr")
	}
	if c.GlobalIsSet("codec") {
		cfg.Codec = c.GlobalString("codec")
	}
	if c.GlobalIsSet("call-timeout") {
		cfg.CallTimeout = c.GlobalDuration("call-timeout")
	}
	if c.GlobalIsSet("dial-timeout") {
		cfg.DialTimeout = c.GlobalDuration("dial-timeout")
	}
	if c.GlobalIsSet("dial-tries") {
		cfg.DialTries = c.GlobalUint("dial-tries")
	}
	if c.GlobalIsSet("otlp-endpoint") {
		cfg.OTLPEndpoint = c.GlobalString("otlp-endpoint")
	}
	if c.GlobalIsSet("log-level") {
		cfg.Log.Level = c.GlobalString("log-level")
	}
	return cfg, cfg.Validate()
}

// withUsers connects, binds a UserService and runs fn with it.
func withUsers(c *cli.Context, fn func(ctx context.Context, users userservice.UserService) error) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	shutdownTracing, err := telemetry.Setup(cfg.OTLPEndpoint, "rpc-client")
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		shutdownTracing(ctx)
	}()

	ct, err := codec.ParseCodecType(cfg.Codec)
	if err != nil {
		return err
	}
	ctx := context.Background()
	conn, err := client.Dial(ctx, "tcp", cfg.Addr,
		client.WithCodec(ct),
		client.WithCallTimeout(cfg.CallTimeout),
		client.WithDialTimeout(cfg.DialTimeout),
		client.WithDialTries(cfg.DialTries),
		client.WithHeartbeat(cfg.Heartbeat),
		client.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	defer conn.Close()

	var users userservice.UserService
	if err := client.Bind(conn, &users, userservice.Contract); err != nil {
		return err
	}
	return fn(ctx, users)
}
