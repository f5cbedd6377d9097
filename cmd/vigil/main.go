package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "vigil",
		Usage:   "screens server joins against the shared ban registry",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "data-dir",
			Usage:   "directory for file-backed registry, policy and set stores",
			Value:   "data/vigil",
			EnvVars: []string{"VIGIL_DATA_DIR"},
		},
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "SQL database for the registry and policies (sqlite:// or postgres://); file stores are used when empty",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.IntFlag{
			Name:    "max-db-connections",
			EnvVars: []string{"MAX_DB_CONNECTIONS"},
			Value:   20,
		},
		&cli.BoolFlag{
			Name:    "db-tracing",
			Usage:   "emit OpenTelemetry spans for SQL queries",
			EnvVars: []string{"VIGIL_DB_TRACING"},
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "redis server for flags, counters and the verdict cache; in-process memory is used when empty",
			EnvVars: []string{"VIGIL_REDIS_URL", "REDIS_URL"},
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log verbosity level (eg: warn, info, debug)",
			Value:   "info",
			EnvVars: []string{"VIGIL_LOG_LEVEL", "LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "log output format (json or text)",
			Value:   "json",
			EnvVars: []string{"VIGIL_LOG_FORMAT", "LOG_FORMAT"},
		},
		&cli.DurationFlag{
			Name:    "cache-ttl",
			Usage:   "how long name check verdicts are cached",
			Value:   defaultCacheTTL,
			EnvVars: []string{"VIGIL_CACHE_TTL"},
		},
	}

	app.Commands = []*cli.Command{
		serveCmd,
		checkNameCmd,
		reloadCmd,
		policyCmd,
		registryCmd,
		serversCmd,
		auditorsCmd,
	}

	return app.Run(args)
}

func printJSON(cctx *cli.Context, val any) error {
	b, err := json.MarshalIndent(val, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cctx.App.Writer, string(b))
	return err
}
