// Command hello sends a greeting through the formatter and publisher
// services inside a single trace.
//
//	hello [--local] <helloTo> [greeting]
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/zoobzio/hellotrace"
	"github.com/zoobzio/hellotrace/fxtrace"
	"github.com/zoobzio/hellotrace/internal/greeting"
	"github.com/zoobzio/hellotrace/internal/hello"
	"github.com/zoobzio/hellotrace/spanhttp"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "hello:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := hello.DefaultConfig()
	flags := pflag.NewFlagSet("hello", pflag.ExitOnError)
	flags.BoolVar(&cfg.Local, "local", false, "format and print in process instead of calling the services")
	flags.StringVar(&cfg.FormatterURL, "formatter-url", cfg.FormatterURL, "formatter service base URL")
	flags.StringVar(&cfg.PublisherURL, "publisher-url", cfg.PublisherURL, "publisher service base URL")
	flags.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: hello [flags] <helloTo> [greeting]")
		flags.PrintDefaults()
	}
	_ = flags.Parse(os.Args[1:])
	if flags.NArg() < 1 || flags.NArg() > 2 {
		flags.Usage()
		return errors.New("expecting one or two arguments")
	}
	helloTo, greetingWord := flags.Arg(0), flags.Arg(1)

	var client *hello.Client
	app := fx.New(
		fxtrace.Module("hello-world"),
		fx.Supply(cfg),
		fx.Provide(newClient),
		fx.Populate(&client),
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger}
		}),
	)

	startCtx, cancel := context.WithTimeout(context.Background(), app.StartTimeout())
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}

	_, sayErr := client.SayHello(context.Background(), helloTo, greetingWord)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), app.StopTimeout())
	defer stopCancel()
	return errors.Join(sayErr, app.Stop(stopCtx))
}

func newClient(tracer *hellotrace.Tracer, logger *zap.Logger, cfg hello.Config) *hello.Client {
	var httpClient *spanhttp.Client
	if !cfg.Local {
		httpClient = spanhttp.NewClient(tracer, spanhttp.DefaultClientConfig())
	}
	return hello.NewClient(tracer, httpClient, greeting.NewPrinter(os.Stdout), logger, cfg)
}
