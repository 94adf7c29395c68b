package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	_ = godotenv.Load()

	var (
		dbHost  = flag.String("db-host", "localhost", "Database host")
		dbPort  = flag.Int("db-port", 5432, "Database port")
		dbUser  = flag.String("db-user", "admin", "Database user")
		dbPass  = flag.String("db-pass", os.Getenv("DB_PASS"), "Database password")
		dbName  = flag.String("db-name", "lease_registry", "Database name")
		command = flag.String("command", "up", "Migration command (up, down, force)")
		version = flag.Int("version", 0, "Version for force command")
	)
	flag.Parse()

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		*dbHost, *dbPort, *dbUser, *dbPass, *dbName)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create migration driver")
	}

	m, err := migrate.NewWithDatabaseInstance(
		"file://scripts/migrations",
		"postgres", driver,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create migrator")
	}

	switch *command {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	case "force":
		if *version == 0 {
			if args := flag.Args(); len(args) > 0 {
				*version, _ = strconv.Atoi(args[0])
			}
		}
		err = m.Force(*version)
	default:
		log.Fatal().Msgf("Unknown command %q", *command)
	}

	if err != nil && err != migrate.ErrNoChange {
		log.Fatal().Err(err).Msg("Migration failed")
	}
	log.Info().Str("command", *command).Msg("Migration completed")
}
