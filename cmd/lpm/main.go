package main

import (
	"context"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/streamlp/lpm/internal/chain"
	"github.com/streamlp/lpm/internal/config"
	"github.com/streamlp/lpm/internal/dex"
	"github.com/streamlp/lpm/internal/logger"
	"github.com/streamlp/lpm/internal/lpm"
	"github.com/streamlp/lpm/internal/oracle"
	"github.com/streamlp/lpm/internal/state"
	"github.com/streamlp/lpm/internal/stream"
	"github.com/streamlp/lpm/internal/ticks"
	"github.com/streamlp/lpm/internal/web"
)

// main is the entry point for the LPM system.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	logger.Initialize(os.Getenv("LOG_LEVEL"))

	// Load configuration from environment variables
	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log.Info().Msg("LPM Core Logic Starting...")

	// Initialize Database Connection (for maintenance receipts)
	var recorder lpm.Recorder
	if config.DBEnabled {
		dbCfg := state.DBConfig{
			Host: config.DBHost, Port: config.DBPort,
			User: config.DBUser, Password: config.DBPassword,
			DBName: config.DBName, SSLMode: config.DBSSLMode,
		}
		if err := state.InitDB(dbCfg); err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize database")
		}
		defer state.CloseDB()
		if err := state.EnsureSchema(); err != nil {
			log.Fatal().Err(err).Msg("Failed to ensure database schema")
		}

		cycleRecorder, err := state.NewCycleRecorder()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create cycle recorder")
		}
		recorder = cycleRecorder
	}

	// --- 2. Chain Connection (with Safety Switch) ---
	lpmMode := os.Getenv("LPM_MODE")
	if lpmMode != "live" {
		log.Fatal().Msg("LPM_MODE is not set to 'live'. Halting to prevent accidental execution. Set LPM_MODE=live to run.")
	}
	log.Warn().Msg("Initializing LPM in LIVE mode. Real transactions will be broadcast.")

	ctx := context.Background()
	chainClient, err := chain.NewClient(ctx, config.ChainRPC, config.PrivateKey)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to chain RPC")
	}
	defer chainClient.Close()

	// --- 3. Create Engine Instance with Dependency Injection ---
	log.Info().Msg("Creating LPM engine with dependency injection...")

	exchange := dex.NewUniswap(
		chainClient,
		config.FactoryAddress,
		config.RouterAddress,
		config.PositionManagerAddress,
		config.FeeTier,
	)
	streamProtocol := stream.NewSuperToken(chainClient, config.StreamTokenAddress, config.BaseAssetAddress)
	estimator := oracle.NewTWAP(exchange)

	engine, err := lpm.NewEngine(lpm.Config{
		Exchange:        exchange,
		Stream:          streamProtocol,
		Estimator:       estimator,
		Policy:          ticks.NewSymmetricPolicy(config.RangeWidthTicks),
		Recorder:        recorder,
		Beneficiary:     config.BeneficiaryAddress,
		FeeTier:         config.FeeTier,
		LookbackSeconds: config.TWAPLookbackSeconds,
		SlippageBps:     config.SlippageBps,
		MinFunding:      config.MinFunding,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create LPM engine")
	}

	log.Info().Msg("LPM engine created successfully")

	// --- 4. Start Web Server ---
	webServer := web.NewWebServer(config.WebPort, engine, config.DBEnabled)
	go func() {
		log.Info().Str("port", config.WebPort).Str("url", "http://localhost:"+config.WebPort).Msg("Starting LPM web dashboard")
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("Web server failed to start")
		}
	}()

	// --- 5. Start Maintenance Loop ---
	interval := time.Duration(config.MaintainIntervalSeconds) * time.Second
	log.Info().Str("interval", interval.String()).Msg("Starting LPM maintenance loop")

	engine.RunLoop(ctx, interval)
}
