package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"ms-booking/internal/config"
	"ms-booking/internal/database"
	"ms-booking/internal/database/migrations"
	"ms-booking/internal/logger"

	"github.com/joho/godotenv"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: migrate [-dir ./migrations] [-seed] up | down | to N | version")
	os.Exit(2)
}

func main() {
	dir := flag.String("dir", "", "migrations directory (defaults to MIGRATIONS_DIR)")
	seed := flag.Bool("seed", false, "also apply the sample auditorium data")
	flag.Parse()
	if flag.NArg() == 0 {
		usage()
	}

	log := logger.NewLogger("booking-migrate")
	defer log.Close()

	_ = godotenv.Load()
	cfg := config.Load()
	if *dir == "" {
		*dir = cfg.Database.MigrationsDir
	}

	bunDB, err := database.ConnectPostgres(context.Background(), cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	defer bunDB.Close()

	runner := migrations.NewRunner(bunDB, migrations.MigrateOptions{MigrationsDir: *dir, SeedData: *seed}, log)
	defer runner.Close()

	switch flag.Arg(0) {
	case "up":
		err = runner.RunMigrations()
	case "down":
		err = runner.MigrateDown()
	case "to":
		var version uint
		if _, scanErr := fmt.Sscan(flag.Arg(1), &version); scanErr != nil {
			usage()
		}
		err = runner.MigrateTo(version)
	case "version":
		var (
			version uint
			dirty   bool
		)
		version, dirty, err = runner.Version()
		if err == nil {
			fmt.Printf("version %d (dirty: %v)\n", version, dirty)
		}
	default:
		usage()
	}

	if err != nil {
		log.Error("MIGRATION", err.Error())
		runner.Close()
		os.Exit(1)
	}
	log.Info("MIGRATION", fmt.Sprintf("%s completed", flag.Arg(0)))
}
