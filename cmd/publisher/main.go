// Command publisher serves GET /publish and prints the string it receives.
package main

import (
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/zoobzio/hellotrace"
	"github.com/zoobzio/hellotrace/fxtrace"
	"github.com/zoobzio/hellotrace/internal/greeting"
	"github.com/zoobzio/hellotrace/internal/service"
)

func main() {
	addr := pflag.String("addr", service.PublisherAddr, "listen address")
	pflag.Parse()

	gin.SetMode(gin.ReleaseMode)
	fx.New(
		fxtrace.Module("publisher"),
		fx.Provide(func(tracer *hellotrace.Tracer, logger *zap.Logger, gatherer prometheus.Gatherer) *http.Server {
			router := service.NewPublisherRouter(tracer, greeting.NewPrinter(os.Stdout), logger, gatherer)
			return service.NewServer(*addr, router)
		}),
		fx.Invoke(service.RegisterServer),
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger}
		}),
	).Run()
}
