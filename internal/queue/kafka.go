package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/sirupsen/logrus"
)

var _ DocumentQueue = (*KafkaQueue)(nil)

// KafkaQueue publishes document change events to a kafka topic.
type KafkaQueue struct {
	producer *kafka.Producer
	brokers  string
	group    string
}

func NewKafkaQueue(brokers, group string) (*KafkaQueue, error) {
	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": brokers,
	})
	if err != nil {
		return nil, err
	}

	q := &KafkaQueue{producer: producer, brokers: brokers, group: group}

	// drain delivery reports so the producer queue does not fill up
	go func() {
		for e := range producer.Events() {
			if m, ok := e.(*kafka.Message); ok && m.TopicPartition.Error != nil {
				logrus.Errorf("failed to deliver document event: %v", m.TopicPartition.Error)
			}
		}
	}()

	return q, nil
}

func (q *KafkaQueue) PublishChange(ctx context.Context, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return q.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &DocumentUpdateTopic,
			Partition: kafka.PartitionAny,
		},
		Key:   []byte(event.DocumentID),
		Value: data,
	}, nil)
}

func (q *KafkaQueue) Subscribe(ctx context.Context) (<-chan *Event, error) {
	consumer, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers": q.brokers,
		"group.id":          q.group,
		"auto.offset.reset": "earliest",
	})
	if err != nil {
		return nil, err
	}

	if err := consumer.Subscribe(DocumentUpdateTopic, nil); err != nil {
		_ = consumer.Close()
		return nil, err
	}

	events := make(chan *Event)
	go func() {
		defer close(events)
		defer consumer.Close()

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			msg, err := consumer.ReadMessage(time.Second)
			if err != nil {
				continue
			}

			var event Event
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				logrus.Errorf("failed to decode document event: %v", err)
				continue
			}

			select {
			case events <- &event:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events, nil
}

func (q *KafkaQueue) Close() error {
	q.producer.Flush(int((5 * time.Second).Milliseconds()))
	q.producer.Close()
	return nil
}
