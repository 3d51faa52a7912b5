package config

import (
	"log/slog"

	"github.com/urfave/cli/v3"
)

type Server struct {
	Port   string
	APIKey string `masq:"secret"`
}

func (x *Server) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "port",
			Usage:       "HTTP listen port",
			Category:    "Server",
			Value:       "8080",
			Destination: &x.Port,
			Sources:     cli.EnvVars("PORT"),
		},
		&cli.StringFlag{
			Name:        "api-key",
			Usage:       "Required X-API-Key header value (disabled if empty)",
			Category:    "Server",
			Destination: &x.APIKey,
			Sources:     cli.EnvVars("API_KEY"),
		},
	}
}

func (x *Server) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("port", x.Port),
		slog.Bool("api_key", x.APIKey != ""),
	)
}
