package main

import (
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/ddeveloper72/hl7validator/cmd/validator/api"
	"github.com/ddeveloper72/hl7validator/cmd/validator/codetable"
	"github.com/ddeveloper72/hl7validator/cmd/validator/corrector"
	"github.com/ddeveloper72/hl7validator/cmd/validator/gazelle"
	"github.com/ddeveloper72/hl7validator/cmd/validator/history"
	"github.com/ddeveloper72/hl7validator/cmd/validator/orchestrator"
	"github.com/ddeveloper72/hl7validator/cmd/validator/resultstore"
	"github.com/ddeveloper72/hl7validator/util"
)

func main() {
	startTime := time.Now()
	// A missing .env is fine; configuration can come from the process
	// environment directly.
	_ = godotenv.Load(".env")

	log := zerolog.New(zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) { w.Out = os.Stdout })).With().Timestamp().Caller().Logger()
	log.Debug().Msg("Starting hl7validator")

	configDir := util.EnvOr("CONFIG_DIR", util.GetAbsolutePath("config"))

	tables, err := codetable.NewService(codetable.Config{
		LocalPath: filepath.Join(configDir, "hl7_code_tables.json"),
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load HL7 code tables")
	}

	registry, err := gazelle.NewRegistry(filepath.Join(configDir, "validators.json"), log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load validator registry")
	}

	client := gazelle.NewClient(gazelle.Config{
		BaseURI:     util.EnvOr("EVS_BASE_URL", "https://testing.ehealthireland.ie"),
		APIKey:      os.Getenv("GAZELLE_API_KEY"),
		HTTPTimeout: durationEnv("EVS_HTTP_TIMEOUT", 90*time.Second),
	}, log)
	if os.Getenv("GAZELLE_API_KEY") == "" {
		log.Warn().Msg("GAZELLE_API_KEY not set, submissions may be rejected")
	}

	corr := corrector.NewCorrector(tables, corrector.Config{}, log)
	store := resultstore.NewStore(resultstore.DefaultConfig(), log)
	defer store.Stop()

	orch := orchestrator.NewService(client, corr, store, orchestrator.Config{
		MaxIterations: intEnv("MAX_CORRECTION_ITERATIONS", 10),
		TotalTimeout:  durationEnv("AUTOVALIDATE_TIMEOUT", 10*time.Minute),
	}, log)

	var repo *history.Repository
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		db, err := sqlx.Connect("postgres", dsn)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to the database")
		}
		defer db.Close()

		repo, err = history.NewRepository(db, os.Getenv("ENCRYPTION_KEY"), log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize history repository")
		}
	} else {
		log.Warn().Msg("DATABASE_URL not set, history persistence disabled")
	}

	router := api.NewRouter(orch, client, registry, store, repo, log)
	addr := ":" + util.EnvOr("PORT", "8080")

	log.Info().
		Str("addr", addr).
		Dur("startup", time.Since(startTime)).
		Msg("hl7validator listening")

	if err := http.ListenAndServe(addr, router.SetupRoutes()); err != nil {
		log.Fatal().Err(err).Msg("Server stopped")
	}
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func intEnv(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
