package generator

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/ChakaliShivaKumar/Estocks-sub001/pkg/models"
)

const (
	defaultBasePrice = 100.0
	maxMove          = 0.02 // largest tick move as a fraction of the previous close
	minPrice         = 0.01
)

// session is one symbol's trading day so far.
type session struct {
	prevClose float64
	open      float64
	high      float64
	low       float64
	volume    int64
	seq       int64
}

// QuoteGenerator emits synthetic quotes for a fixed ticker list. Each symbol
// carries a running session so every quote is internally consistent.
type QuoteGenerator struct {
	logger   *zap.Logger
	writer   KafkaWriter
	tickers  []string
	rand     Rand
	clock    Clock
	interval time.Duration
	sessions map[string]*session
}

func NewQuoteGenerator(
	logger *zap.Logger,
	writer KafkaWriter,
	tickers []string,
	basePrices map[string]float64,
	rnd Rand,
	clock Clock,
	interval time.Duration,
) *QuoteGenerator {
	sessions := make(map[string]*session, len(tickers))
	for _, sym := range tickers {
		base, ok := basePrices[sym]
		if !ok || base <= 0 {
			base = defaultBasePrice
		}
		sessions[sym] = &session{prevClose: base}
	}
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &QuoteGenerator{
		logger:   logger,
		writer:   writer,
		tickers:  tickers,
		rand:     rnd,
		clock:    clock,
		interval: interval,
		sessions: sessions,
	}
}

func (g *QuoteGenerator) Run(ctx context.Context) {
	g.logger.Info("Generator Started", zap.Strings("tickers", g.tickers), zap.Duration("interval", g.interval))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			if len(g.tickers) == 0 {
				g.clock.Sleep(1 * time.Second)
				continue
			}

			symbol := g.tickers[g.rand.Intn(len(g.tickers))]
			q := g.Next(symbol)

			payload, err := json.Marshal(q)
			if err != nil {
				g.logger.Error("JSON Marshal Error", zap.Error(err))
				continue
			}

			err = g.writer.WriteMessages(ctx, kafka.Message{
				Key:   []byte(symbol), // Key ensures partition ordering
				Value: payload,
			})
			if err != nil {
				g.logger.Error("Kafka Write Error", zap.String("symbol", symbol), zap.Error(err))
			} else {
				g.logger.Debug("Sent quote", zap.String("symbol", symbol), zap.Float64("price", q.Price), zap.Int64("seq_id", q.SeqID))
			}

			g.clock.Sleep(g.interval)
		}
	}
}

// Next advances symbol's session by one tick and returns the resulting quote.
func (g *QuoteGenerator) Next(symbol string) models.Quote {
	s, ok := g.sessions[symbol]
	if !ok {
		s = &session{prevClose: defaultBasePrice}
		g.sessions[symbol] = s
	}

	move := (g.rand.Float64()*2 - 1) * maxMove
	price := math.Max(round2(s.prevClose*(1+move)), minPrice)

	s.seq++
	if s.open == 0 {
		s.open, s.high, s.low = price, price, price
	}
	s.high = math.Max(s.high, price)
	s.low = math.Min(s.low, price)
	s.volume += int64(100 + g.rand.Intn(900))

	change := round2(price - s.prevClose)
	return models.Quote{
		Symbol:        symbol,
		Price:         price,
		Change:        change,
		ChangePercent: round2(change / s.prevClose * 100),
		Volume:        s.volume,
		High:          s.high,
		Low:           s.low,
		Open:          s.open,
		PreviousClose: s.prevClose,
		Timestamp:     g.clock.Now().UnixMilli(),
		SeqID:         s.seq,
	}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
