package server

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"rewardengine/internal/referral"
	"rewardengine/internal/settlement"
)

type Config struct {
	Mode               string          `json:"mode"`      // api, ticker or worker
	Scheduler          string          `json:"scheduler"` // cron or asynq
	TickSpec           string          `json:"tickSpec"`
	RolloverSpec       string          `json:"rolloverSpec"`
	WorkerSpeed        int             `json:"workerSpeed"`
	WorkerQueue        int             `json:"workerQueue"`
	RetryAttempts      int             `json:"retryAttempts"`
	RetryDelayMs       int             `json:"retryDelayMs"`
	FileLog            string          `json:"fileLog"`
	Port               string          `json:"port"`
	EarlyExitPenalty   decimal.Decimal `json:"earlyExitPenalty"`
	StartingBalance    decimal.Decimal `json:"startingBalance"`
	SignupBonus        decimal.Decimal `json:"signupBonus"`
	SignupBonusEnabled *bool           `json:"signupBonusEnabled"`
	ActivationBonus    decimal.Decimal `json:"activationBonus"`
	CatalogUrl         string          `json:"catalogUrl"`
	CatalogTimeoutMs   int             `json:"catalogTimeoutMs"`
	AlertChatId        int64           `json:"alertChatId"`
	ConfigRefreshSec   int             `json:"configRefreshSec"`
	RateLimit          uint            `json:"rateLimit"` // requests per second per client IP
}

var GlobalConfig Config
var PathFile string

// DefaultConfig is what an empty config file yields.
func DefaultConfig() Config {
	enabled := true
	defaults := referral.DefaultSettings()
	return Config{
		Mode:               "api",
		Scheduler:          "cron",
		TickSpec:           "@every 1m",
		RolloverSpec:       "0 0 1 * *",
		WorkerSpeed:        8,
		WorkerQueue:        256,
		RetryAttempts:      3,
		RetryDelayMs:       50,
		Port:               "8000",
		EarlyExitPenalty:   settlement.DefaultPenaltyRate,
		StartingBalance:    defaults.StartingBalance,
		SignupBonus:        defaults.SignupBonus,
		SignupBonusEnabled: &enabled,
		ActivationBonus:    defaults.ActivationBonus,
		CatalogTimeoutMs:   5000,
		ConfigRefreshSec:   60,
		RateLimit:          100,
	}
}

// DecodeConfig reads a JSON config over the defaults.
func DecodeConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	if err := json.NewDecoder(r).Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, err
	}
	if cfg.SignupBonusEnabled == nil {
		enabled := true
		cfg.SignupBonusEnabled = &enabled
	}
	return cfg, nil
}

func ConfigLoad() {
	if len(os.Args) > 1 {
		PathFile = os.Args[1]
	} else {
		PathFile = "./config.json"
	}

	configFile, err := os.Open(PathFile)
	if err != nil {
		panic(err)
	}
	defer configFile.Close()
	GlobalConfig, err = DecodeConfig(configFile)
	if err != nil {
		panic(err)
	}

	SetLogger(GlobalConfig.FileLog)
}

// ReferralSettings are the configured defaults for runtime referral settings.
func (c Config) ReferralSettings() referral.Settings {
	return referral.Settings{
		StartingBalance:    c.StartingBalance,
		SignupBonus:        c.SignupBonus,
		SignupBonusEnabled: c.SignupBonusEnabled == nil || *c.SignupBonusEnabled,
		ActivationBonus:    c.ActivationBonus,
	}
}

func (c Config) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMs) * time.Millisecond
}

func (c Config) CatalogTimeout() time.Duration {
	return time.Duration(c.CatalogTimeoutMs) * time.Millisecond
}

func (c Config) ConfigRefresh() time.Duration {
	return time.Duration(c.ConfigRefreshSec) * time.Second
}
