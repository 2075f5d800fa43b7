package config

import (
	"errors"
	"os"
	"strconv"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// ChainRPC is the JSON-RPC endpoint of the target network.
	ChainRPC string
	// PrivateKey is the hex-encoded signing key of the engine account. May
	// be empty for a read-only deployment.
	PrivateKey string

	// FactoryAddress is the AMM factory contract.
	FactoryAddress common.Address
	// RouterAddress is the AMM swap router contract.
	RouterAddress common.Address
	// PositionManagerAddress is the AMM nonfungible position manager contract.
	PositionManagerAddress common.Address
	// StreamTokenAddress is the streamable super token funding the engine.
	StreamTokenAddress common.Address
	// BaseAssetAddress is the underlying asset the stream token redeems into.
	BaseAssetAddress common.Address
	// BeneficiaryAddress receives all withdrawn fees and removed liquidity.
	BeneficiaryAddress common.Address

	// FeeTier is the fee bracket used when minting new positions.
	FeeTier uint32
	// TWAPLookbackSeconds is the TWAP window used to size swaps.
	TWAPLookbackSeconds uint32
	// SlippageBps bounds realized swap output against the TWAP estimate.
	SlippageBps uint32
	// MinFunding is the minimum base-asset balance before a pending order
	// is provisioned.
	MinFunding sdkmath.Int
	// MaintainIntervalSeconds is the cadence of the maintenance loop.
	MaintainIntervalSeconds uint64
	// RangeWidthTicks is the total tick width of newly minted ranges.
	RangeWidthTicks int32

	// WebPort is the HTTP port of the dashboard API.
	WebPort string
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
// All environment variables are required and must be set unless noted otherwise.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	ChainRPC, err = getEnv("CHAIN_RPC")
	if err != nil {
		return err
	}

	// Optional: without a key the engine can serve reads but not maintain.
	PrivateKey = getEnvOrDefault("PRIVATE_KEY", "")

	FactoryAddress, err = getEnvAsAddress("FACTORY_ADDRESS")
	if err != nil {
		return err
	}

	RouterAddress, err = getEnvAsAddress("ROUTER_ADDRESS")
	if err != nil {
		return err
	}

	PositionManagerAddress, err = getEnvAsAddress("POSITION_MANAGER_ADDRESS")
	if err != nil {
		return err
	}

	StreamTokenAddress, err = getEnvAsAddress("STREAM_TOKEN_ADDRESS")
	if err != nil {
		return err
	}

	BaseAssetAddress, err = getEnvAsAddress("BASE_ASSET_ADDRESS")
	if err != nil {
		return err
	}

	BeneficiaryAddress, err = getEnvAsAddress("BENEFICIARY_ADDRESS")
	if err != nil {
		return err
	}

	FeeTier, err = getEnvAsUint32("FEE_TIER")
	if err != nil {
		return err
	}

	TWAPLookbackSeconds, err = getEnvAsUint32("TWAP_LOOKBACK_SECONDS")
	if err != nil {
		return err
	}

	SlippageBps, err = getEnvAsUint32("SLIPPAGE_BPS")
	if err != nil {
		return err
	}

	MinFunding, err = getEnvAsInt("MIN_FUNDING")
	if err != nil {
		return err
	}

	MaintainIntervalSeconds, err = getEnvAsUint64("MAINTAIN_INTERVAL_SECONDS")
	if err != nil {
		return err
	}

	widthTicks, err := getEnvAsUint32("RANGE_WIDTH_TICKS")
	if err != nil {
		return err
	}
	RangeWidthTicks = int32(widthTicks)

	WebPort = getEnvOrDefault("WEB_PORT", "8080")

	// Load database configuration
	if err := loadDatabaseConfig(); err != nil {
		return err
	}

	log.Debug().
		Str("ChainRPC", ChainRPC).
		Str("BaseAsset", BaseAssetAddress.Hex()).
		Str("Beneficiary", BeneficiaryAddress.Hex()).
		Uint32("FeeTier", FeeTier).
		Msg("Configuration loaded successfully.")

	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvOrDefault retrieves a string environment variable with a fallback.
func getEnvOrDefault(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

// getEnvAsUint64 retrieves an environment variable as a uint64. Returns error if not set or invalid.
func getEnvAsUint64(key string) (uint64, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid uint64, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsUint32 retrieves an environment variable as a uint32. Returns error if not set or invalid.
func getEnvAsUint32(key string) (uint32, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseUint(valueStr, 10, 32)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid uint32, got: " + valueStr)
	}
	return uint32(value), nil
}

// getEnvAsAddress retrieves an environment variable as a checksummed address.
func getEnvAsAddress(key string) (common.Address, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return common.Address{}, err
	}
	if !common.IsHexAddress(valueStr) {
		return common.Address{}, errors.New("environment variable " + key + " must be a valid hex address, got: " + valueStr)
	}
	return common.HexToAddress(valueStr), nil
}

// getEnvAsInt retrieves an environment variable as an arbitrary-precision integer.
func getEnvAsInt(key string) (sdkmath.Int, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	value, ok := sdkmath.NewIntFromString(valueStr)
	if !ok {
		return sdkmath.ZeroInt(), errors.New("environment variable " + key + " must be a valid integer, got: " + valueStr)
	}
	return value, nil
}
