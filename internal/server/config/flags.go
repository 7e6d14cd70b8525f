package config

import (
	"flag"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/flagx"
)

var serverFlags = []string{
	"-a", "-g", "-d", "-r", "-s", "-k", "-t", "-l", "-atomic",
	"-u", "-p", "-b", "-region", "-e", "-log",
}

// parseFlags overlays command-line flags onto config.
//
//	-a string      HTTP bind address (e.g. ":8080")
//	-g string      gRPC bind address (e.g. ":50051")
//	-d string      PostgreSQL DSN
//	-r string      Redis address; empty selects the in-memory session store
//	-s string      access token HMAC secret
//	-k string      refresh token HMAC secret
//	-t int         access token validity, minutes
//	-l int         refresh token validity, minutes
//	-atomic bool   write session entry pairs atomically
//	-u string      S3 root user
//	-p string      S3 root password
//	-b string      S3 bucket name
//	-region string S3 region
//	-e string      S3 base endpoint
//	-log string    log level
//
// Only the flags above are looked at; everything else in args is ignored so
// -c/-config and foreign flags do not cause parse errors.
func parseFlags(config *Config, args []string) {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "HTTP address and port")
	fs.StringVar(&config.EndpointAddrGRPC, "g", config.EndpointAddrGRPC, "gRPC address and port")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.RedisAddr, "r", config.RedisAddr, "redis address")
	fs.StringVar(&config.AccessTokenSecret, "s", config.AccessTokenSecret, "access token secret")
	fs.StringVar(&config.RefreshTokenSecret, "k", config.RefreshTokenSecret, "refresh token secret")

	accessMinutes := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access token validity (in minutes)")
	refreshMinutes := fs.Int("l", int(config.RefreshTokenValidityDuration.Minutes()), "refresh token validity (in minutes)")

	fs.BoolVar(&config.AtomicSessionWrites, "atomic", config.AtomicSessionWrites, "write session entries atomically")
	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "region", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.LogLevel, "log", config.LogLevel, "log level")

	if err := fs.Parse(flagx.FilterArgs(args, serverFlags)); err != nil {
		panic(err)
	}

	config.AccessTokenValidityDuration = time.Duration(*accessMinutes) * time.Minute
	config.RefreshTokenValidityDuration = time.Duration(*refreshMinutes) * time.Minute
}
