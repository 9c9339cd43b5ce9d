package replication

import (
	"context"
	"errors"

	"github.com/nerrad567/tempkey-core/internal/infrastructure/mqtt"
)

// RetainedPublisher is the part of the MQTT client the sink uses.
type RetainedPublisher interface {
	PublishRetained(topic string, payload []byte) error
}

// MQTTSink publishes the record file as a retained message so late
// subscribers receive the current snapshot.
type MQTTSink struct {
	publisher RetainedPublisher
	topic     string
}

// NewMQTTSink publishes on tempkey/store/<name>.
func NewMQTTSink(publisher RetainedPublisher, name string) (*MQTTSink, error) {
	if publisher == nil {
		return nil, errors.New("mqtt sink: publisher is required")
	}
	if name == "" {
		return nil, errors.New("mqtt sink: name is required")
	}
	return &MQTTSink{publisher: publisher, topic: mqtt.Topics{}.StoreSnapshot(name)}, nil
}

// Name implements Sink.
func (s *MQTTSink) Name() string {
	return "mqtt"
}

// Publish implements Sink. The paho client has its own publish timeout;
// ctx is checked before handing off.
func (s *MQTTSink) Publish(ctx context.Context, content []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.publisher.PublishRetained(s.topic, content)
}
