// Command formatter serves GET /format and returns "<greeting>, <helloTo>!".
package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/zoobzio/hellotrace"
	"github.com/zoobzio/hellotrace/fxtrace"
	"github.com/zoobzio/hellotrace/internal/service"
)

func main() {
	addr := pflag.String("addr", service.FormatterAddr, "listen address")
	pflag.Parse()

	gin.SetMode(gin.ReleaseMode)
	fx.New(
		fxtrace.Module("formatter"),
		fx.Provide(func(tracer *hellotrace.Tracer, logger *zap.Logger, gatherer prometheus.Gatherer) *http.Server {
			return service.NewServer(*addr, service.NewFormatterRouter(tracer, logger, gatherer))
		}),
		fx.Invoke(service.RegisterServer),
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger}
		}),
	).Run()
}
