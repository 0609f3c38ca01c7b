package mambot

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/duelhall/mambot/mambot/database"
)

func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err = toml.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type Config struct {
	Log        LogConfig         `toml:"log"`
	DB         database.DBConfig `toml:"db"`
	Catalog    CatalogConfig     `toml:"catalog"`
	Rollover   RolloverConfig    `toml:"rollover"`
	Conversion ConversionConfig  `toml:"conversion"`
	Trade      TradeConfig       `toml:"trade"`
	Spaces     SpacesConfig      `toml:"spaces"`
}

type LogConfig struct {
	Level     slog.Level `toml:"level"`
	Format    string     `toml:"format"`
	AddSource bool       `toml:"add_source"`
}

type CatalogConfig struct {
	Dir string `toml:"dir"`
	// Sets maps a set name to its shard set id.
	Sets map[string]int `toml:"sets"`
}

type RolloverConfig struct {
	// Time is the boundary as "HH:MM" in Timezone.
	Time     string `toml:"time"`
	Timezone string `toml:"timezone"`
	// DailyMambucks is granted to every account each boundary.
	DailyMambucks int64 `toml:"daily_mambucks"`
	DailyChips    int64 `toml:"daily_chips"`
	// TickSeconds is how often the background loop checks the boundary.
	TickSeconds int `toml:"tick_seconds"`
}

type ConversionConfig struct {
	// ExchangeRate is "A:B": A source shards become B target shards.
	ExchangeRate    string `toml:"exchange_rate"`
	SaleDiscountPct int64  `toml:"sale_discount_pct"`
	BulkKeepDefault int64  `toml:"bulk_keep_default"`
}

type TradeConfig struct {
	// ExpiryHours bounds how long a pending trade stays actionable.
	ExpiryHours int `toml:"expiry_hours"`
}

type SpacesConfig struct {
	Key    string `toml:"key"`
	Secret string `toml:"secret"`
	Region string `toml:"region"`
	Bucket string `toml:"bucket"`
	Root   string `toml:"root"`
}
