//go:build enterprise

package circulation

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/segmentio/kafka-go"
)

// CheckBrokers dials the provided brokers until one answers or timeout
// elapses.
func CheckBrokers(ctx context.Context, brokers []string, timeout time.Duration) error {
	if len(brokers) == 0 {
		return fmt.Errorf("circulation: no brokers provided")
	}
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		for _, b := range brokers {
			conn, err := kafka.DialContext(ctx, "tcp", b)
			if err == nil {
				_ = conn.Close()
				return nil
			}
			lastErr = err
		}
		select {
		case <-time.After(200 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("circulation: failed to reach any broker within %s: %w", timeout, lastErr)
}

// EnsureCommandsTopic creates the circulation commands topic if it does not
// already exist.
func EnsureCommandsTopic(ctx context.Context, brokers []string, topic string, partitions int) error {
	if len(brokers) == 0 {
		return fmt.Errorf("circulation: no brokers provided")
	}
	conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		return fmt.Errorf("circulation: dial broker %s: %w", brokers[0], err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("circulation: get controller: %w", err)
	}
	addr := net.JoinHostPort(controller.Host, fmt.Sprint(controller.Port))

	ctrlConn, err := kafka.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("circulation: dial controller %s: %w", addr, err)
	}
	defer ctrlConn.Close()

	if parts, _ := ctrlConn.ReadPartitions(topic); len(parts) > 0 {
		return nil
	}
	if partitions <= 0 {
		partitions = 1
	}
	return ctrlConn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     partitions,
		ReplicationFactor: 1,
	})
}
