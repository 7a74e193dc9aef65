// Command valuation 是期权估值与 DLOM 折价的命令行入口。
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"

	"github.com/wyfcoding/valuation/config"
	"github.com/wyfcoding/valuation/logging"
	"github.com/wyfcoding/valuation/tracing"
	"github.com/wyfcoding/valuation/valuation"
)

const defaultTimeout = 30 * time.Second

// version 由构建时 -ldflags "-X main.version=..." 注入。
var version = "dev"

// env 保存一次命令运行期间共享的资源。
type env struct {
	configPath string
	timeout    time.Duration

	cfg      *config.Config
	svc      *valuation.Service
	shutdown func(context.Context) error
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	e := &env{}
	app := cli.NewApp()
	app.Name = "valuation"
	app.Version = version
	app.Usage = "price options on a CRR lattice and compute DLOM discounts"
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "path to a TOML config file, defaults are used when empty",
			EnvVars:     []string{"VALUATION_CONFIG"},
			Destination: &e.configPath,
		},
		&cli.DurationFlag{
			Name:        "timeout",
			Value:       defaultTimeout,
			Usage:       "the context timeout for a single command",
			Destination: &e.timeout,
		},
	}
	app.Before = e.setup
	app.After = e.teardown
	app.Commands = []*cli.Command{
		e.priceCommand(),
		e.batchCommand(),
		e.discountCommand(),
		e.serveCommand(),
	}
	return app
}

func (e *env) setup(c *cli.Context) error {
	cfg := config.Default()
	if e.configPath != "" {
		loaded, err := config.Load(e.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	e.cfg = cfg

	lc := cfg.LoggingConfig(c.App.Name)
	lc.Output = c.App.ErrWriter
	logger := logging.NewFromConfig(lc)

	shutdown, err := tracing.InitTracer(cfg.Tracing)
	if err != nil {
		return err
	}
	e.shutdown = shutdown

	svc, err := valuation.NewService(cfg, valuation.WithLogger(logger))
	if err != nil {
		return err
	}
	e.svc = svc
	if e.configPath != "" {
		config.RegisterReloadHook(svc.Reload)
	}
	return nil
}

func (e *env) teardown(*cli.Context) error {
	var err error
	if e.svc != nil {
		err = e.svc.Close()
	}
	if e.shutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if serr := e.shutdown(ctx); serr != nil && err == nil {
			err = serr
		}
	}
	return err
}

func (e *env) context(c *cli.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Context, e.timeout)
}

func jsonOutput(w io.Writer, in any) error {
	j, err := json.MarshalIndent(in, "", " ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(j))
	return err
}

// decimalFlag 读取字符串形式的十进制参数，未设置时为零。
func decimalFlag(c *cli.Context, name string) (decimal.Decimal, error) {
	s := c.String(name)
	if s == "" {
		return decimal.Zero, nil
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid --%s %q: %w", name, s, err)
	}
	return v, nil
}
