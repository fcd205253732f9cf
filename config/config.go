package config

import "github.com/caarlos0/env/v6"

type Config struct {
	// Server configuration
	Server struct {
		Port string `env:"PORT" envDefault:"5250"`
	}

	// Geocoding/isochrone provider
	Geo struct {
		APIKey string `env:"GEO_API_KEY"`
	}

	// Upstream listings provider and its fixed search filter
	Listings struct {
		APIKey      string `env:"LISTINGS_API_KEY"`
		APIHost     string `env:"LISTINGS_API_HOST" envDefault:"realty-in-us.p.rapidapi.com"`
		City        string `env:"LISTINGS_CITY" envDefault:"Fort Worth"`
		StateCode   string `env:"LISTINGS_STATE" envDefault:"TX"`
		MaxPrice    int    `env:"LISTINGS_MAX_PRICE" envDefault:"600000"`
		NoForeclose bool   `env:"LISTINGS_NO_FORECLOSURE" envDefault:"true"`

		// Requests per second against the provider; all calls share
		// one queue
		RequestsPerSecond float64 `env:"LISTINGS_RPS" envDefault:"1"`
		MaxRetries        int     `env:"LISTINGS_MAX_RETRIES" envDefault:"3"`
	}

	// Cache backend selection
	Cache struct {
		// One of: file, sqlite, redis, memory
		Backend    string `env:"CACHE_BACKEND" envDefault:"file"`
		Dir        string `env:"CACHE_DIR" envDefault:"cache"`
		SQLitePath string `env:"CACHE_SQLITE_PATH" envDefault:"cache/homeradius.db"`
		RedisAddr  string `env:"CACHE_REDIS_ADDR" envDefault:"localhost:6379"`
		RedisPass  string `env:"CACHE_REDIS_PASSWORD"`
		RedisDB    int    `env:"CACHE_REDIS_DB" envDefault:"0"`
	}

	// Mortgage terms used for affordability calculations
	Mortgage struct {
		InterestRate float64 `env:"MORTGAGE_INTEREST_RATE" envDefault:"6.5"`
		TermYears    int     `env:"MORTGAGE_TERM_YEARS" envDefault:"30"`
	}

	// Scheduler configuration; empty cron disables the warm-up runs
	Scheduler struct {
		RefreshCron string `env:"REFRESH_CRON"`
	}
}

func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
