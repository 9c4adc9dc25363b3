package testutils

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ChakaliShivaKumar/Estocks-sub001/cmd/generator/internal/generator"
)

type MockKafkaWriter struct {
	Messages   []kafka.Message
	Mu         sync.Mutex
	ShouldFail bool
}

func (m *MockKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.ShouldFail {
		return errors.New("kafka error")
	}
	m.Messages = append(m.Messages, msgs...)
	return nil
}

func (m *MockKafkaWriter) Close() error { return nil }

type MockClock struct {
	CurrentTime time.Time
}

func (m *MockClock) Now() time.Time        { return m.CurrentTime }
func (m *MockClock) Sleep(d time.Duration) { m.CurrentTime = m.CurrentTime.Add(d) }

// MockRand returns fixed values; Floats, when set, are consumed in order
// before falling back to ValFloat.
type MockRand struct {
	ValInt   int
	ValFloat float64
	Floats   []float64
}

func (m *MockRand) Intn(n int) int { return m.ValInt }

func (m *MockRand) Float64() float64 {
	if len(m.Floats) > 0 {
		f := m.Floats[0]
		m.Floats = m.Floats[1:]
		return f
	}
	return m.ValFloat
}

// MockKafkaConn records topic creation. NotReady keeps ReadPartitions empty.
type MockKafkaConn struct {
	CreatedTopics []string
	Partitions    []int
	CreateErr     error
	NotReady      bool
}

func (m *MockKafkaConn) Controller() (kafka.Broker, error) {
	return kafka.Broker{Host: "localhost", Port: 9092}, nil
}

func (m *MockKafkaConn) Close() error { return nil }

func (m *MockKafkaConn) CreateTopics(topics ...kafka.TopicConfig) error {
	for _, t := range topics {
		m.CreatedTopics = append(m.CreatedTopics, t.Topic)
		m.Partitions = append(m.Partitions, t.NumPartitions)
	}
	return m.CreateErr
}

func (m *MockKafkaConn) ReadPartitions(topics ...string) ([]kafka.Partition, error) {
	if m.NotReady {
		return nil, nil
	}
	return []kafka.Partition{{ID: 0}}, nil
}

// MockKafkaDialer hands out ConnSpy; DialErr fails every dial.
type MockKafkaDialer struct {
	ConnSpy *MockKafkaConn
	DialErr error
	Dialed  []string
}

func (m *MockKafkaDialer) DialContext(ctx context.Context, network, address string) (generator.KafkaConn, error) {
	m.Dialed = append(m.Dialed, address)
	if m.DialErr != nil {
		return nil, m.DialErr
	}
	if m.ConnSpy == nil {
		m.ConnSpy = &MockKafkaConn{}
	}
	return m.ConnSpy, nil
}
