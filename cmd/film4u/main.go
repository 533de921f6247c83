package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/film4u/film4u-ai/internal/app"
	"github.com/film4u/film4u-ai/internal/config"
	"github.com/film4u/film4u-ai/internal/security"

	log "github.com/sirupsen/logrus"
)

// main runs the CLI entrypoint and exits on unrecoverable command errors.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if errRun := run(ctx, os.Args[1:], os.Stdout); errRun != nil {
		log.WithError(errRun).Error("command failed")
		os.Exit(1)
	}
}

// run parses flags, loads config, and runs the requested mode.
func run(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("film4u", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "config file path (or env CONFIG_PATH)")
	port := fs.Int("port", app.DefaultPort, "server port when the config file does not set one")
	doInit := fs.Bool("init", false, "write a starter config file and prepare the database, then exit")
	dbType := fs.String("db-type", "sqlite", "database for -init: sqlite or postgres")
	dbPath := fs.String("db-path", "", "sqlite file for -init")
	dbHost := fs.String("db-host", "", "postgres host for -init")
	dbUser := fs.String("db-user", "", "postgres user for -init")
	dbName := fs.String("db-name", "", "postgres database for -init")
	siteName := fs.String("site-name", "", "assistant display name for -init")
	doMigrate := fs.Bool("migrate", false, "run database migrations, then exit")
	issueSubject := fs.String("issue-token", "", "print an access token for this subject, then exit")
	issueRole := fs.String("role", security.RoleServiceRole, "role claim for -issue-token")
	debug := fs.Bool("debug", false, "enable debug logging")
	if errParse := fs.Parse(args); errParse != nil {
		return errParse
	}
	if *debug {
		log.SetLevel(log.DebugLevel)
	}

	if errValidate := validatePort(*port); errValidate != nil {
		return errValidate
	}

	appCfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}
	if strings.TrimSpace(*cfgPath) != "" {
		appCfg.ConfigPath = config.ResolveConfigPath(*cfgPath)
	}
	configPath := config.ResolveConfigPath(appCfg.ConfigPath)

	switch {
	case *doInit:
		return app.Bootstrap(ctx, configPath, app.InitOptions{
			DatabaseType:     *dbType,
			DatabasePath:     *dbPath,
			DatabaseHost:     *dbHost,
			DatabaseUser:     *dbUser,
			DatabasePassword: os.Getenv("DB_PASSWORD"),
			DatabaseName:     *dbName,
			SiteName:         *siteName,
			Port:             *port,
		})
	case *doMigrate:
		return app.Migrate(ctx, appCfg)
	case strings.TrimSpace(*issueSubject) != "":
		return issueToken(stdout, configPath, *issueSubject, *issueRole)
	}

	if !app.ConfigExists(configPath) && strings.TrimSpace(os.Getenv(config.EnvDBConnection)) == "" {
		return fmt.Errorf("config file %s not found; run with -init or set %s", configPath, config.EnvDBConnection)
	}
	return app.RunServer(ctx, appCfg, *port)
}

func issueToken(stdout io.Writer, configPath, subject, role string) error {
	jwtCfg, err := config.LoadJWTConfig(configPath)
	if err != nil {
		return err
	}
	token, err := security.IssueAccessToken(jwtCfg.Secret, strings.TrimSpace(subject), strings.TrimSpace(role), jwtCfg.Expiry, time.Now())
	if err != nil {
		if errors.Is(err, security.ErrMissingSecret) {
			return fmt.Errorf("jwt secret is not configured in %s", configPath)
		}
		return err
	}
	_, errWrite := fmt.Fprintln(stdout, token)
	return errWrite
}

func validatePort(port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("invalid port: %d", port)
	}
	return nil
}
