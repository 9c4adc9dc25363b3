package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"github.com/ChakaliShivaKumar/Estocks-sub001/pkg/config"
	"github.com/ChakaliShivaKumar/Estocks-sub001/pkg/models"
	"github.com/ChakaliShivaKumar/Estocks-sub001/pkg/protocol"
	"github.com/ChakaliShivaKumar/Estocks-sub001/pkg/quoteclient"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger, err := config.NewLogger(cfg.Logger)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	holdings, err := config.ParseHoldings(cfg.Client.Holdings)
	if err != nil {
		logger.Fatal("Invalid client.holdings", zap.Error(err))
	}

	client := quoteclient.New(quoteclient.Options{
		URL:            cfg.Client.URL,
		RequestTimeout: cfg.Client.ValuationTimeout,
		ReconnectMin:   cfg.Client.ReconnectMin,
		ReconnectMax:   cfg.Client.ReconnectMax,
		OnState: func(s quoteclient.ConnectionState) {
			logger.Info("Connection state changed", zap.Stringer("state", s))
		},
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := client.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Client stopped", zap.Error(err))
		}
	}()

	valuer := quoteclient.NewValuer(client)
	render := time.NewTicker(time.Second)
	defer render.Stop()
	revalue := time.NewTicker(cfg.Client.ValueEvery)
	defer revalue.Stop()

	for {
		select {
		case <-ctx.Done():
			client.Close()
			logger.Info("Watcher exited cleanly")
			return
		case <-render.C:
			printQuotes(os.Stdout, client.Cache(), holdings)
		case <-revalue.C:
			if len(holdings) == 0 {
				continue
			}
			v, err := valuer.Value(ctx, holdings)
			_, _, have := valuer.Last()
			printValuation(os.Stdout, v, have, err)
			if err != nil {
				logValuationError(logger, err)
			}
		}
	}
}

// printQuotes lists every cached symbol plus any held symbol the server has
// not sent yet.
func printQuotes(w io.Writer, cache *quoteclient.Cache, holdings []models.Holding) {
	symbols := cache.Symbols()
	seen := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		seen[s] = true
	}
	for _, h := range holdings {
		if !seen[h.Symbol] {
			symbols = append(symbols, h.Symbol)
			seen[h.Symbol] = true
		}
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "SYMBOL\tQUOTE\tTREND\t[%s]\n", cache.State())
	for _, sym := range symbols {
		trend := ""
		if q, ok := cache.GetQuote(sym); ok {
			trend = quoteclient.IndicatorFor(q.ChangePercent).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t\n", sym, cache.Display(sym), trend)
	}
	tw.Flush()
}

// printValuation renders a fresh valuation, or on err the last known one
// when have is set.
func printValuation(w io.Writer, v models.Valuation, have bool, err error) {
	if err != nil {
		if !have {
			fmt.Fprintf(w, "Portfolio: unavailable (%v)\n", err)
			return
		}
		fmt.Fprintf(w, "Portfolio: %s (stale: %v)\n", v.TotalValue.StringFixed(2), err)
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "HOLDING\tSHARES\tPRICE\tVALUE\tCHANGE\t")
	for _, h := range v.Holdings {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t\n", h.Symbol, h.Shares, h.CurrentPrice.StringFixed(2),
			h.Value.StringFixed(2), quoteclient.FormatChange(h.Change, h.ChangePercent))
	}
	fmt.Fprintf(tw, "TOTAL\t\t\t%s\t\t\n", v.TotalValue.StringFixed(2))
	tw.Flush()
}

func logValuationError(logger *zap.Logger, err error) {
	var nd *protocol.NoDataError
	var te *protocol.TimeoutError
	var ce *protocol.ConnectionError
	switch {
	case errors.As(err, &nd):
		logger.Warn("Valuation missing quotes", zap.Strings("symbols", nd.Symbols))
	case errors.As(err, &te):
		logger.Warn("Valuation timed out", zap.Duration("after", te.After))
	case errors.As(err, &ce):
		logger.Warn("Valuation failed, not connected", zap.Error(err))
	default:
		logger.Error("Valuation failed", zap.Error(err))
	}
}
