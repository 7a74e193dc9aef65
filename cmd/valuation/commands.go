package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"

	"github.com/wyfcoding/valuation/valuation"
)

var optionFlags = []cli.Flag{
	&cli.StringFlag{Name: "type", Aliases: []string{"t"}, Value: "call", Usage: "option type: call or put"},
	&cli.StringFlag{Name: "payoff", Usage: "terminal payoff expression over S and K, overrides --type"},
	&cli.StringFlag{Name: "style", Value: "european", Usage: "exercise style: european or american"},
	&cli.StringFlag{Name: "method", Aliases: []string{"m"}, Value: "binomial", Usage: "analytic, binomial or montecarlo"},
	&cli.StringFlag{Name: "spot", Aliases: []string{"s"}, Usage: "spot price of the underlying", Required: true},
	&cli.StringFlag{Name: "strike", Aliases: []string{"k"}, Usage: "strike price", Required: true},
	&cli.StringFlag{Name: "expiry", Usage: "time to expiry in years", Required: true},
	&cli.StringFlag{Name: "vol", Usage: "annualised volatility", Required: true},
	&cli.StringFlag{Name: "rate", Value: "0", Usage: "continuously compounded risk-free rate"},
	&cli.StringFlag{Name: "dividend", Aliases: []string{"q"}, Value: "0", Usage: "continuous dividend yield"},
	&cli.StringFlag{Name: "steps", Usage: "lattice steps, derived from the expiry when empty"},
}

var discountFlags = []cli.Flag{
	&cli.StringFlag{Name: "model", Value: "chaffe", Usage: "chaffe, differential_put, finnerty or ghaidarov"},
	&cli.StringFlag{Name: "horizon", Usage: "marketability restriction period in years", Required: true},
	&cli.StringFlag{Name: "vol", Usage: "annualised volatility, of the preferred stock for differential_put", Required: true},
	&cli.StringFlag{Name: "sigma-common", Usage: "common stock volatility for differential_put"},
	&cli.StringFlag{Name: "rate", Value: "0", Usage: "continuously compounded risk-free rate"},
	&cli.StringFlag{Name: "dividend", Aliases: []string{"q"}, Value: "0", Usage: "continuous dividend yield"},
}

type decimalBinding struct {
	flag string
	dst  *decimal.Decimal
}

func bindDecimals(c *cli.Context, bindings ...decimalBinding) error {
	for _, b := range bindings {
		v, err := decimalFlag(c, b.flag)
		if err != nil {
			return err
		}
		*b.dst = v
	}
	return nil
}

func (e *env) priceCommand() *cli.Command {
	return &cli.Command{
		Name:   "price",
		Usage:  "price a single option",
		Flags:  optionFlags,
		Action: e.price,
	}
}

func (e *env) price(c *cli.Context) error {
	req := valuation.Request{
		OptionType: c.String("type"),
		Payoff:     c.String("payoff"),
		Style:      c.String("style"),
		Method:     c.String("method"),
	}
	if err := bindDecimals(c,
		decimalBinding{"spot", &req.Spot},
		decimalBinding{"strike", &req.Strike},
		decimalBinding{"expiry", &req.Expiry},
		decimalBinding{"vol", &req.Volatility},
		decimalBinding{"rate", &req.Rate},
		decimalBinding{"dividend", &req.Dividend},
		decimalBinding{"steps", &req.Steps},
	); err != nil {
		return err
	}

	ctx, cancel := e.context(c)
	defer cancel()
	res, err := e.svc.Price(ctx, req)
	if err != nil {
		return err
	}
	return jsonOutput(c.App.Writer, res)
}

func (e *env) discountCommand() *cli.Command {
	return &cli.Command{
		Name:   "discount",
		Usage:  "compute a discount for lack of marketability",
		Flags:  discountFlags,
		Action: e.discount,
	}
}

func (e *env) discount(c *cli.Context) error {
	req := valuation.DiscountRequest{Model: c.String("model")}
	if err := bindDecimals(c,
		decimalBinding{"horizon", &req.Horizon},
		decimalBinding{"vol", &req.Volatility},
		decimalBinding{"sigma-common", &req.SigmaCommon},
		decimalBinding{"rate", &req.Rate},
		decimalBinding{"dividend", &req.Dividend},
	); err != nil {
		return err
	}

	ctx, cancel := e.context(c)
	defer cancel()
	res, err := e.svc.Discount(ctx, req)
	if err != nil {
		return err
	}
	return jsonOutput(c.App.Writer, res)
}

// outcome 批量与流式输出中的一项，Error 与 Result 互斥。
type outcome struct {
	Index  int               `json:"index"`
	Result *valuation.Result `json:"result,omitempty"`
	Error  string            `json:"error,omitempty"`
}

func newOutcome(i int, res *valuation.Result, err error) outcome {
	o := outcome{Index: i, Result: res}
	if err != nil {
		o.Error = err.Error()
	}
	return o
}

func (e *env) batchCommand() *cli.Command {
	return &cli.Command{
		Name:      "batch",
		Usage:     "price a JSON array of requests concurrently, - reads stdin",
		ArgsUsage: "<file|->",
		Action:    e.batch,
	}
}

func (e *env) batch(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.ShowSubcommandHelp(c)
	}

	r := c.App.Reader
	if name := c.Args().First(); name != "-" {
		f, err := os.Open(name)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	var reqs []valuation.Request
	if err := json.NewDecoder(r).Decode(&reqs); err != nil {
		return fmt.Errorf("decode batch: %w", err)
	}

	ctx, cancel := e.context(c)
	defer cancel()
	items, err := e.svc.PriceBatch(ctx, reqs)
	if err != nil {
		return err
	}

	out := make([]outcome, len(items))
	for i, item := range items {
		out[i] = newOutcome(i, item.Result, item.Err)
	}
	return jsonOutput(c.App.Writer, out)
}

func (e *env) serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "read one JSON request per line from stdin and write one JSON result per line",
		Action: func(c *cli.Context) error {
			if e.cfg.Metrics.Enabled {
				stop := e.svc.Metrics().Expose(e.cfg.Metrics.Port, e.cfg.Metrics.Path)
				defer stop()
			}
			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()
			return e.serve(ctx, c.App.Reader, c.App.Writer)
		},
	}
}

// serve 逐行处理请求直到输入结束或 ctx 取消。单行解析或定价失败只影响该行。
func (e *env) serve(ctx context.Context, r io.Reader, w io.Writer) error {
	enc := json.NewEncoder(w)
	scanner := bufio.NewScanner(r)
	next := 0
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		i := next
		next++

		var req valuation.Request
		if err := json.Unmarshal(line, &req); err != nil {
			if err := enc.Encode(newOutcome(i, nil, fmt.Errorf("decode request: %w", err))); err != nil {
				return err
			}
			continue
		}

		reqCtx, cancel := context.WithTimeout(ctx, e.timeout)
		res, err := e.svc.Price(reqCtx, req)
		cancel()
		if err := enc.Encode(newOutcome(i, res, err)); err != nil {
			return err
		}
	}
	return scanner.Err()
}
