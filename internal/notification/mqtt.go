package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/ayane-dev/zombiewatch-go/internal/conf"
	"github.com/ayane-dev/zombiewatch-go/internal/errors"
	"github.com/ayane-dev/zombiewatch-go/internal/logging"
)

const (
	mqttConnectTimeout = 10 * time.Second
	mqttPublishTimeout = 5 * time.Second
)

// MqttPublisher forwards notifications to an MQTT broker. It subscribes to
// the notification service and publishes each event as JSON.
type MqttPublisher struct {
	client mqtt.Client
	topic  string
	cancel func()
	log    *slog.Logger
}

// NewMqttPublisher connects to the configured broker.
func NewMqttPublisher(settings *conf.MQTTSettings, instanceName string) (*MqttPublisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(settings.Broker).
		SetClientID(fmt.Sprintf("%s-%d", instanceName, time.Now().Unix())).
		SetAutoReconnect(true).
		SetConnectTimeout(mqttConnectTimeout)

	if settings.Username != "" {
		opts.SetUsername(settings.Username)
		opts.SetPassword(settings.Password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return nil, errors.Newf("timeout connecting to MQTT broker %s", settings.Broker).
			Component("notification").
			Category(errors.CategoryMQTTConnect).
			Build()
	}
	if err := token.Error(); err != nil {
		return nil, errors.New(err).
			Component("notification").
			Category(errors.CategoryMQTTConnect).
			Context("broker", settings.Broker).
			Build()
	}

	return &MqttPublisher{
		client: client,
		topic:  settings.Topic,
		log:    logging.ForService("mqtt"),
	}, nil
}

// Start forwards events from the service until the context is cancelled.
func (p *MqttPublisher) Start(ctx context.Context, service *Service) {
	events, cancel := service.Subscribe()
	p.cancel = cancel

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case n, ok := <-events:
				if !ok {
					return
				}
				if err := p.publish(n); err != nil {
					p.log.Error("failed to publish notification", "id", n.ID, "error", err)
				}
			}
		}
	}()
}

// publish sends one notification as JSON.
func (p *MqttPublisher) publish(n *Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return errors.New(err).
			Component("notification").
			Category(errors.CategoryMQTTPublish).
			Build()
	}

	token := p.client.Publish(p.topic, 0, false, payload)
	if !token.WaitTimeout(mqttPublishTimeout) {
		return errors.Newf("timeout publishing to topic %s", p.topic).
			Component("notification").
			Category(errors.CategoryMQTTPublish).
			Build()
	}
	return token.Error()
}

// Close disconnects from the broker.
func (p *MqttPublisher) Close() {
	if p.cancel != nil {
		p.cancel()
	}
	p.client.Disconnect(250)
}
