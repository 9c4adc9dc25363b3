package generator_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/ChakaliShivaKumar/Estocks-sub001/cmd/generator/internal/generator"
	"github.com/ChakaliShivaKumar/Estocks-sub001/cmd/generator/internal/testutils"
	"github.com/ChakaliShivaKumar/Estocks-sub001/pkg/models"
)

func TestGenerator_Logic(t *testing.T) {
	mockWriter := &testutils.MockKafkaWriter{}

	// Fix Randomness: Always pick Index 0 (AAPL), 0.5 means no move
	mockRand := &testutils.MockRand{ValInt: 0, ValFloat: 0.5}
	mockClock := &testutils.MockClock{CurrentTime: time.Unix(0, 0)}

	gen := generator.NewQuoteGenerator(zap.NewNop(), mockWriter, []string{"AAPL"},
		map[string]float64{"AAPL": 100.0}, mockRand, mockClock, 100*time.Millisecond)

	// MockClock.Sleep advances time instantly, so a short deadline yields many ticks
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	gen.Run(ctx)

	mockWriter.Mu.Lock()
	defer mockWriter.Mu.Unlock()

	if len(mockWriter.Messages) == 0 {
		t.Fatal("Expected messages to be generated")
	}

	var q models.Quote
	if err := json.Unmarshal(mockWriter.Messages[0].Value, &q); err != nil {
		t.Fatalf("Generated invalid JSON: %v", err)
	}

	if q.Symbol != "AAPL" || q.SeqID != 1 {
		t.Errorf("Expected AAPL seq 1, got %s seq %d", q.Symbol, q.SeqID)
	}
	if q.Price != 100.0 || q.Change != 0 || q.ChangePercent != 0 {
		t.Errorf("Expected unchanged 100.0, got %+v", q)
	}
	if q.Timestamp != 0 {
		t.Errorf("Expected timestamp from the clock, got %d", q.Timestamp)
	}
	if string(mockWriter.Messages[0].Key) != "AAPL" {
		t.Errorf("Expected key AAPL, got %s", mockWriter.Messages[0].Key)
	}
}

func TestGenerator_Next_SessionFields(t *testing.T) {
	// 1.0 -> +2%, 0.0 -> -2%
	mockRand := &testutils.MockRand{Floats: []float64{1.0, 0.0}}
	gen := generator.NewQuoteGenerator(zap.NewNop(), &testutils.MockKafkaWriter{}, []string{"TSLA"},
		map[string]float64{"TSLA": 200.0}, mockRand, &testutils.MockClock{}, 0)

	up := gen.Next("TSLA")
	if up.Price != 204 || up.Change != 4 || up.ChangePercent != 2 {
		t.Errorf("Unexpected up tick %+v", up)
	}
	if up.Open != 204 || up.High != 204 || up.Low != 204 || up.PreviousClose != 200 {
		t.Errorf("Session not opened on first tick: %+v", up)
	}

	down := gen.Next("TSLA")
	if down.Price != 196 || down.Change != -4 || down.ChangePercent != -2 {
		t.Errorf("Unexpected down tick %+v", down)
	}
	if down.Open != 204 || down.High != 204 || down.Low != 196 {
		t.Errorf("High/low not tracked: %+v", down)
	}
	if down.SeqID != 2 || down.Volume <= up.Volume {
		t.Errorf("Seq and volume must grow: %+v", down)
	}
}

func TestGenerator_UnknownTickerGetsDefaultBase(t *testing.T) {
	gen := generator.NewQuoteGenerator(zap.NewNop(), &testutils.MockKafkaWriter{}, []string{"NEW"},
		nil, &testutils.MockRand{ValFloat: 0.5}, &testutils.MockClock{}, 0)

	if q := gen.Next("NEW"); q.Price != 100 || q.PreviousClose != 100 {
		t.Errorf("Expected default base 100, got %+v", q)
	}
}

func TestGenerator_WriteErrorKeepsRunning(t *testing.T) {
	mockWriter := &testutils.MockKafkaWriter{ShouldFail: true}
	mockRand := &testutils.MockRand{ValFloat: 0.5}
	gen := generator.NewQuoteGenerator(zap.NewNop(), mockWriter, []string{"AAPL"},
		nil, mockRand, &testutils.MockClock{}, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	gen.Run(ctx)

	if q := gen.Next("AAPL"); q.SeqID < 2 {
		t.Errorf("Generator should keep ticking through write errors, seq %d", q.SeqID)
	}
}

func TestTopicCreator_Flow(t *testing.T) {
	mockDialer := &testutils.MockKafkaDialer{} // Will auto-create ConnSpy

	tc := generator.NewTopicCreator(zap.NewNop(), mockDialer, &testutils.MockClock{})

	if err := tc.Create(context.Background(), []string{"broker:9092"}, "my-topic"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if mockDialer.ConnSpy == nil || len(mockDialer.ConnSpy.CreatedTopics) == 0 {
		t.Fatal("No topics created")
	}
	if mockDialer.ConnSpy.CreatedTopics[0] != "my-topic" || mockDialer.ConnSpy.Partitions[0] != 4 {
		t.Errorf("Unexpected topic request %v %v", mockDialer.ConnSpy.CreatedTopics, mockDialer.ConnSpy.Partitions)
	}
	if len(mockDialer.Dialed) != 2 || mockDialer.Dialed[1] != "localhost:9092" {
		t.Errorf("Expected broker then controller dial, got %v", mockDialer.Dialed)
	}
}

func TestTopicCreator_AlreadyExists(t *testing.T) {
	mockDialer := &testutils.MockKafkaDialer{ConnSpy: &testutils.MockKafkaConn{CreateErr: kafka.TopicAlreadyExists}}
	tc := generator.NewTopicCreator(zap.NewNop(), mockDialer, &testutils.MockClock{})

	if err := tc.Create(context.Background(), []string{"broker:9092"}, "quotes"); err != nil {
		t.Errorf("Existing topic should not be an error, got %v", err)
	}
}

func TestTopicCreator_Failures(t *testing.T) {
	down := &testutils.MockKafkaDialer{DialErr: errors.New("connection refused")}
	tc := generator.NewTopicCreator(zap.NewNop(), down, &testutils.MockClock{})
	if err := tc.Create(context.Background(), []string{"a:9092", "b:9092"}, "quotes"); err == nil {
		t.Error("Expected dial error when no broker answers")
	}
	if len(down.Dialed) != 2 {
		t.Errorf("Every broker should be tried, got %v", down.Dialed)
	}

	clock := &testutils.MockClock{}
	stuck := &testutils.MockKafkaDialer{ConnSpy: &testutils.MockKafkaConn{NotReady: true}}
	tc = generator.NewTopicCreator(zap.NewNop(), stuck, clock)
	err := tc.Create(context.Background(), []string{"a:9092"}, "quotes")
	if !errors.Is(err, generator.ErrTopicNotReady) {
		t.Errorf("Expected ErrTopicNotReady, got %v", err)
	}
	if clock.CurrentTime.IsZero() {
		t.Error("Readiness polling should back off on the clock")
	}
}
