package config

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/modauth/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8000")
//	-d string   database DSN
//	-s string   token HMAC secret key
//	-t int      access token validity, minutes
//	-o string   comma-separated CORS origins
//	-r string   Redis address for the login limiter
//	-k string   comma-separated Kafka brokers
//	-l string   log level
//
// Only these flags are looked at; anything else in args is ignored.
func parseFlags(config *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-a", "-d", "-s", "-t", "-o", "-r", "-k", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	tokenMinutes := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access token validity (in minutes)")
	origins := fs.String("o", strings.Join(config.FrontendURLs, ","), "allowed CORS origins")
	fs.StringVar(&config.RedisAddr, "r", config.RedisAddr, "redis address")
	brokers := fs.String("k", strings.Join(config.KafkaBrokers, ","), "kafka brokers")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "t":
			config.AccessTokenValidityDuration = time.Duration(*tokenMinutes) * time.Minute
		case "o":
			config.FrontendURLs = splitList(*origins)
		case "k":
			config.KafkaBrokers = splitList(*brokers)
		}
	})

	return nil
}

func splitList(s string) []string {
	return trimList(strings.Split(s, ","))
}

// trimList drops surrounding spaces and empty entries.
func trimList(in []string) []string {
	var out []string
	for _, part := range in {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
