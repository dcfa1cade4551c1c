package kafka

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"ms-booking/internal/logger"

	"github.com/segmentio/kafka-go"
)

// EnsureTopicsExist creates Kafka topics if they don't already exist
func EnsureTopicsExist(ctx context.Context, brokers []string, topics []string, log *logger.Logger) error {
	if len(brokers) == 0 {
		return errors.New("no kafka brokers configured")
	}

	// Connect to the first broker to find the controller
	conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		return err
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return err
	}
	controllerConn, err := kafka.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return err
	}
	defer controllerConn.Close()

	for _, topic := range topics {
		err = controllerConn.CreateTopics(kafka.TopicConfig{
			Topic:             topic,
			NumPartitions:     1,
			ReplicationFactor: 1,
		})
		switch {
		case err == nil:
			log.LogKafka("CREATE", topic, "Created topic")
		case errors.Is(err, kafka.TopicAlreadyExists):
			log.LogKafka("CREATE", topic, "Topic already exists")
		default:
			// Keep going; the remaining topics may still be creatable.
			log.Error("KAFKA", fmt.Sprintf("Error creating topic %s: %v", topic, err))
		}
	}
	return nil
}

// ListTopics returns a list of all existing topics
func ListTopics(ctx context.Context, brokers []string) ([]string, error) {
	if len(brokers) == 0 {
		return nil, errors.New("no kafka brokers configured")
	}
	conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	partitions, err := conn.ReadPartitions()
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var topics []string
	for _, p := range partitions {
		if !seen[p.Topic] {
			seen[p.Topic] = true
			topics = append(topics, p.Topic)
		}
	}
	return topics, nil
}
