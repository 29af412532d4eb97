package ledger

import "github.com/xyproto/env/v2"

// Config carries the recognized ledger-related configuration options.
// Defaults match a local Ganache-style development chain.
type Config struct {
	Enabled          bool
	RPCEndpoint      string
	ChainID          int64
	ContractAddress  string
	PrivateKey       string
	GasLimit         uint64
	GasPriceWei      uint64
	SenderAddress    string
	RecipientAddress string
}

// LoadConfig reads ledger configuration from the process environment,
// falling back to sensible local-chain defaults for anything unset.
func LoadConfig() Config {
	return Config{
		Enabled:          boolOr("OBFUSC_LEDGER_ENABLED", true),
		RPCEndpoint:      env.Str("OBFUSC_LEDGER_RPC_ENDPOINT", "http://127.0.0.1:8545"),
		ChainID:          env.Int64("OBFUSC_LEDGER_CHAIN_ID", 1337),
		ContractAddress:  env.Str("OBFUSC_LEDGER_CONTRACT_ADDRESS", "0x5FbDB2315678afecb367f032d93F642f64180aa3"),
		PrivateKey:       env.Str("OBFUSC_LEDGER_PRIVATE_KEY", ""),
		GasLimit:         uint64(env.Int64("OBFUSC_LEDGER_GAS_LIMIT", 200000)),
		GasPriceWei:      uint64(env.Int64("OBFUSC_LEDGER_GAS_PRICE_WEI", 20000000000)),
		SenderAddress:    env.Str("OBFUSC_LEDGER_SENDER", "0x90f8bf6a479f320ead074411a4b0e7944ea8c9c1"),
		RecipientAddress: env.Str("OBFUSC_LEDGER_RECIPIENT", "0xffcf8fdee72ac11b5c542428b35eef5769c409f0"),
	}
}

// boolOr returns the bool value of the given environment variable, or the
// provided default value if it is not set (env.Bool alone has no way to
// distinguish "unset" from "set to false").
func boolOr(envName string, defaultValue bool) bool {
	if !env.Has(envName) {
		return defaultValue
	}
	return env.Bool(envName)
}
