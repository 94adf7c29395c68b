package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Stan-Mash/lease-management-system-sub002/internal/crypto"
	"github.com/Stan-Mash/lease-management-system-sub002/internal/handler"
	"github.com/Stan-Mash/lease-management-system-sub002/internal/monitoring"
	"github.com/Stan-Mash/lease-management-system-sub002/internal/notify"
	"github.com/Stan-Mash/lease-management-system-sub002/internal/service"
	"github.com/Stan-Mash/lease-management-system-sub002/internal/storage"
	"github.com/Stan-Mash/lease-management-system-sub002/internal/store"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Local development keeps secrets in .env; absence is fine.
	_ = godotenv.Load()

	var (
		port          = flag.Int("port", 8080, "HTTP server port")
		dbHost        = flag.String("db-host", envOr("DB_HOST", "localhost"), "Database host")
		dbPort        = flag.Int("db-port", 5432, "Database port")
		dbUser        = flag.String("db-user", envOr("DB_USER", "admin"), "Database user")
		dbPass        = flag.String("db-pass", envOr("DB_PASS", ""), "Database password")
		dbName        = flag.String("db-name", envOr("DB_NAME", "lease_registry"), "Database name")
		redisAddr     = flag.String("redis-addr", envOr("REDIS_ADDR", "localhost:6379"), "Redis address (empty disables caching)")
		blobRoot      = flag.String("blob-root", envOr("BLOB_ROOT", "data/documents"), "Document blob store root")
		smsEndpoint   = flag.String("sms-endpoint", envOr("SMS_GATEWAY_URL", ""), "SMS gateway URL (empty uses the log notifier)")
		smsAPIKey     = flag.String("sms-api-key", envOr("SMS_GATEWAY_KEY", ""), "SMS gateway API key")
		serialPrefix  = flag.String("serial-prefix", envOr("SERIAL_PREFIX", "LSE"), "Serial number prefix")
		otpTTL        = flag.Duration("otp-ttl", 10*time.Minute, "OTP expiry window")
		otpWindow     = flag.Duration("otp-rate-window", time.Hour, "OTP issuance rate-limit window")
		otpMax        = flag.Int("otp-rate-max", 3, "Max OTP issuances per lease per window")
		otpRetention  = flag.Int("otp-retention-days", 30, "OTP challenge retention in days")
		cleanupPeriod = flag.Duration("otp-cleanup-period", 6*time.Hour, "Interval between OTP cleanup sweeps")
	)
	flag.Parse()

	keys, err := crypto.NewKeys([]byte(os.Getenv("ENCRYPTION_KEY")), []byte(os.Getenv("HASH_SECRET")))
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid key material")
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		*dbHost, *dbPort, *dbUser, *dbPass, *dbName)

	db, err := store.Open(dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	var cache store.RedisClient
	if *redisAddr != "" {
		cache = redis.NewClient(&redis.Options{Addr: *redisAddr})
	}

	leaseRepo := store.NewLeaseRepository(db, cache)
	otpRepo := store.NewOTPRepository(db)
	sigRepo := store.NewSignatureRepository(db)
	docRepo := store.NewDocumentRepository(db)

	blobs, err := storage.NewFileStore(*blobRoot)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize blob store")
	}

	var notifier notify.Notifier = notify.LogNotifier{}
	if *smsEndpoint != "" {
		notifier = notify.NewSMSGateway(*smsEndpoint, *smsAPIKey, *otpTTL)
	}

	otpCfg := service.OTPConfig{
		TTL:           *otpTTL,
		RateWindow:    *otpWindow,
		RateMax:       *otpMax,
		RetentionDays: *otpRetention,
	}

	workflowService := service.NewWorkflowService(leaseRepo, otpRepo, sigRepo, notifier)
	otpService := service.NewOTPService(otpRepo, leaseRepo, keys, notifier, otpCfg)
	signatureService := service.NewSignatureService(sigRepo, otpRepo, leaseRepo)
	documentService := service.NewDocumentService(docRepo, blobs)
	verificationService := service.NewVerificationService(leaseRepo, keys, *serialPrefix)

	monitoring.InitMetrics()

	log.Info().Msgf("Starting lease trust core on port %d", *port)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	handler.NewVerificationHandler(verificationService).Register(mux)
	handler.NewCoreHandler(workflowService, otpService, signatureService, documentService, verificationService).Register(mux)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", *port),
		Handler: mux,
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	// Periodic maintenance sweep. Challenge expiry itself is lazy; this
	// only bounds storage.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ticker := time.NewTicker(*cleanupPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := otpService.Cleanup(ctx, *otpRetention); err != nil {
					log.Error().Err(err).Msg("Scheduled OTP cleanup failed")
				}
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP shutdown error")
	}
	log.Info().Msg("Server exiting")
}
