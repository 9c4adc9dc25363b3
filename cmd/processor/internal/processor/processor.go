package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ChakaliShivaKumar/Estocks-sub001/pkg/config"
	"github.com/ChakaliShivaKumar/Estocks-sub001/pkg/models"
)

// Processor turns raw ticks from Kafka into the Redis state the gateway
// reads: the latest quote per symbol plus a publish on its price channel.
type Processor struct {
	logger     Logger
	rdb        RedisClient
	reader     KafkaReader
	numWorkers int
	queueSize  int
	ttl        time.Duration
}

func NewProcessor(cfg *config.Config, logger Logger, rdb RedisClient, reader KafkaReader) *Processor {
	p := &Processor{
		logger:     logger,
		rdb:        rdb,
		reader:     reader,
		numWorkers: cfg.Processor.NumWorkers,
		queueSize:  cfg.Processor.QueueSize,
		ttl:        cfg.Processor.SnapshotTTL,
	}
	if p.numWorkers < 1 {
		p.numWorkers = 1
	}
	if p.queueSize < 1 {
		p.queueSize = 100
	}
	if p.ttl <= 0 {
		p.ttl = time.Hour
	}
	return p
}

func (p *Processor) Run(ctx context.Context) error {
	workerChans := make([]chan []byte, p.numWorkers)
	var wg sync.WaitGroup

	for i := 0; i < p.numWorkers; i++ {
		workerChans[i] = make(chan []byte, p.queueSize)
		wg.Add(1)
		go p.worker(i, workerChans[i], &wg)
	}

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		p.logger.Info("Processor Started", zap.Int("workers", p.numWorkers))
		for {
			m, err := p.reader.ReadMessage(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return
				}
				p.logger.Error("Kafka Read Error", zap.Error(err))
				continue
			}

			// Deterministic Sharding: Same symbol always goes to same worker
			workerID := getWorkerID(m.Key, p.numWorkers)

			select {
			case workerChans[workerID] <- m.Value:
			case <-ctx.Done():
				return
			default:
				// latest beats complete for live prices
				p.logger.Warn("Dropping slow packet", zap.String("key", string(m.Key)), zap.Int("worker_id", workerID))
			}
		}
	}()

	<-ctx.Done()
	p.logger.Info("Shutdown signal received, stopping processor...")
	<-readerDone

	for _, ch := range workerChans {
		close(ch)
	}
	p.logger.Info("Waiting for workers to drain...")
	wg.Wait()

	return nil
}

func (p *Processor) worker(id int, msgs <-chan []byte, wg *sync.WaitGroup) {
	defer wg.Done()
	ctx := context.Background() // a drain must not be cut off mid-write

	// Local state for deduplication (only works because of deterministic sharding)
	lastSeq := make(map[string]int64)

	for payload := range msgs {
		q, err := decodeTick(payload)
		if err != nil {
			p.logger.Error("Rejecting tick", zap.Error(err))
			continue
		}

		if q.SeqID <= lastSeq[q.Symbol] {
			p.logger.Debug("Skipping duplicate update", zap.String("symbol", q.Symbol), zap.Int64("seq_id", q.SeqID))
			continue
		}

		if err := p.store(ctx, q); err != nil {
			p.logger.Error("Redis Pipeline Error", zap.Error(err), zap.String("symbol", q.Symbol))
			continue
		}
		p.logger.Debug("Processed", zap.String("symbol", q.Symbol), zap.Int("worker_id", id), zap.Int64("seq_id", q.SeqID))
		lastSeq[q.Symbol] = q.SeqID
	}
}

// store writes the snapshot and publishes it in one round trip.
func (p *Processor) store(ctx context.Context, q models.Quote) error {
	payload, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("encode %s: %w", q.Symbol, err)
	}

	pipe := p.rdb.Pipeline()
	pipe.Set(ctx, models.SnapshotKey(q.Symbol), payload, p.ttl)
	pipe.Publish(ctx, models.PriceChannel(q.Symbol), payload)
	_, err = pipe.Exec(ctx)
	return err
}

// decodeTick parses and sanity-checks one generator message.
func decodeTick(payload []byte) (models.Quote, error) {
	var q models.Quote
	if err := json.Unmarshal(payload, &q); err != nil {
		return q, fmt.Errorf("decode tick: %w", err)
	}
	q.Symbol = strings.ToUpper(strings.TrimSpace(q.Symbol))
	if q.Symbol == "" {
		return q, errors.New("tick has no symbol")
	}
	if q.Price <= 0 {
		return q, fmt.Errorf("tick for %s has non-positive price %v", q.Symbol, q.Price)
	}
	return q, nil
}

func getWorkerID(key []byte, numWorkers int) int {
	h := fnv.New32a()
	h.Write(key)
	return int(h.Sum32() % uint32(numWorkers))
}
