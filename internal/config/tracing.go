package config

import (
	"context"

	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/recomate/pkg/log"
	"github.com/sandevgo/recomate/pkg/tracing"
)

type TracingConfig struct {
	Endpoint    string  `env:"OTEL_EXPORTER_ENDPOINT"`
	Insecure    bool    `env:"OTEL_EXPORTER_INSECURE" envDefault:"true"`
	ServiceName string  `env:"OTEL_SERVICE_NAME" envDefault:"recomate"`
	SampleRatio float64 `env:"OTEL_SAMPLE_RATIO" envDefault:"1"`
}

func NewTracingConfig(ctx context.Context) *TracingConfig {
	c := &TracingConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse Tracing config")
	}
	return c
}

func (c TracingConfig) Tracing() tracing.Config {
	return tracing.Config{
		ServiceName:    c.ServiceName,
		ExportEndpoint: c.Endpoint,
		Insecure:       c.Insecure,
		SampleRatio:    c.SampleRatio,
	}
}
