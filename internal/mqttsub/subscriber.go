package mqttsub

import (
	"context"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ReadingHandler ingests one device heartbeat of the given class
type ReadingHandler func(ctx context.Context, deviceClass string, body []byte) error

// Config holds subscriber settings
type Config struct {
	Broker   string
	ClientID string
	Topic    string
	QoS      byte
	Logger   *zap.Logger
	Handler  ReadingHandler
}

// Subscriber feeds device heartbeats published over MQTT into ingestion
type Subscriber struct {
	client  mqtt.Client
	topic   string
	qos     byte
	logger  *zap.Logger
	handler ReadingHandler
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewSubscriber creates a subscriber. The broker is not contacted until Start.
func NewSubscriber(cfg Config) *Subscriber {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Subscriber{
		topic:   cfg.Topic,
		qos:     cfg.QoS,
		logger:  cfg.Logger,
		handler: cfg.Handler,
		ctx:     ctx,
		cancel:  cancel,
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second).
		SetOnConnectHandler(s.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			s.logger.Warn("mqtt connection lost", zap.Error(err))
		})
	s.client = mqtt.NewClient(opts)

	return s
}

// Start connects to the broker; subscriptions are (re)established on every connect
func (s *Subscriber) Start() error {
	token := s.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("[MQTT CONNECTION FAILED] cannot connect to broker: %w", token.Error())
	}
	return nil
}

// Stop cancels in-flight handlers and disconnects
func (s *Subscriber) Stop() {
	s.cancel()
	s.client.Disconnect(250)
	s.logger.Info("mqtt subscriber stopped")
}

// RegisterLifecycle registers the subscriber with Fx lifecycle
func (s *Subscriber) RegisterLifecycle(lc fx.Lifecycle) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return s.Start()
		},
		OnStop: func(context.Context) error {
			s.Stop()
			return nil
		},
	})
}

func (s *Subscriber) onConnect(client mqtt.Client) {
	token := client.Subscribe(s.topic, s.qos, s.onMessage)
	if token.Wait() && token.Error() != nil {
		s.logger.Error("mqtt subscribe failed", zap.String("topic", s.topic), zap.Error(token.Error()))
		return
	}
	s.logger.Info("mqtt subscriber started", zap.String("topic", s.topic), zap.Uint8("qos", s.qos))
}

func (s *Subscriber) onMessage(_ mqtt.Client, msg mqtt.Message) {
	s.handle(msg.Topic(), msg.Payload())
}

func (s *Subscriber) handle(topic string, payload []byte) {
	deviceClass := DeviceClassFromTopic(topic)
	if err := s.handler(s.ctx, deviceClass, payload); err != nil {
		s.logger.Error("failed to ingest mqtt reading",
			zap.String("topic", topic),
			zap.String("device_class", deviceClass),
			zap.Error(err),
		)
	}
}

// DeviceClassFromTopic returns the last topic level, e.g. "telemetry/vehicle" -> "vehicle"
func DeviceClassFromTopic(topic string) string {
	if i := strings.LastIndexByte(topic, '/'); i >= 0 {
		return topic[i+1:]
	}
	return topic
}
