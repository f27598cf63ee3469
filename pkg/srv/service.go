package srv

import (
	"context"
	"fmt"
	"time"

	"github.com/sandevgo/recomate/pkg/log"
)

// ShutdownTimeout bounds how long all services together may take to stop.
const ShutdownTimeout = 10 * time.Second

type Service interface {
	Start(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

func StartServices(ctx context.Context, services []Service) {
	logger := log.FromCtx(ctx)
	for _, service := range services {
		go func(service Service) {
			if err := service.Start(ctx); err != nil {
				logger.Fatal().Err(err).Msgf("%s failed to start", name(service))
			}
		}(service)
	}
}

// ShutdownServices blocks until ctx is done, then stops the services.
func ShutdownServices(ctx context.Context, services []Service) {
	<-ctx.Done()
	Stop(ctx, services)
}

// Stop shuts the services down in order. ctx may already be cancelled; the
// services get a fresh ShutdownTimeout deadline that keeps ctx values.
func Stop(ctx context.Context, services []Service) {
	sCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ShutdownTimeout)
	defer cancel()

	logger := log.FromCtx(ctx)
	for _, service := range services {
		if err := service.Shutdown(sCtx); err != nil {
			logger.Error().Err(err).Msgf("%s failed to shutdown", name(service))
		}
	}
}

func name(s Service) string {
	if n, ok := s.(fmt.Stringer); ok {
		return n.String()
	}
	return fmt.Sprintf("%T", s)
}
