package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/Dhoini/billing-reconciliation/internal/config"
	"github.com/Dhoini/billing-reconciliation/internal/db"
	"github.com/Dhoini/billing-reconciliation/pkg/logger"

	"github.com/golang-migrate/migrate/v4"
)

const usage = `usage: migrate [-env .env] <command>

commands:
  up        apply all pending migrations
  down      roll back one migration
  goto N    migrate to version N
  status    print current version`

func main() {
	envPath := flag.String("env", ".env", "path to .env file")
	flag.Usage = func() { fmt.Fprintln(os.Stderr, usage) }
	flag.Parse()

	log := logger.New(logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.LoadConfig(*envPath)
	if err != nil {
		log.Fatalw("Failed to load configuration", "error", err)
	}
	if cfg.Database.DSN == "" {
		log.Fatalw("database.dsn is required")
	}

	m, err := db.NewMigrator(cfg.Database.DSN)
	if err != nil {
		log.Fatalw("Failed to initialize migrator", "error", err)
	}
	defer m.Close()

	if err := run(m, flag.Args(), log); err != nil {
		log.Errorw("Migration command failed", "command", flag.Arg(0), "error", err)
		os.Exit(1)
	}
}

func run(m *migrate.Migrate, args []string, log *logger.Logger) error {
	var err error
	switch args[0] {
	case "up":
		err = m.Up()
	case "down":
		err = m.Steps(-1)
	case "goto":
		if len(args) < 2 {
			return errors.New("goto requires a version")
		}
		version, parseErr := strconv.ParseUint(args[1], 10, 32)
		if parseErr != nil {
			return fmt.Errorf("invalid version %q: %w", args[1], parseErr)
		}
		err = m.Migrate(uint(version))
	case "status":
		version, dirty, vErr := m.Version()
		if errors.Is(vErr, migrate.ErrNilVersion) {
			log.Infow("No migrations applied")
			return nil
		}
		if vErr != nil {
			return vErr
		}
		log.Infow("Current migration version", "version", version, "dirty", dirty)
		return nil
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}

	if errors.Is(err, migrate.ErrNoChange) {
		log.Infow("No change")
		return nil
	}
	if err != nil {
		return err
	}
	log.Infow("Migration finished", "command", args[0])
	return nil
}
