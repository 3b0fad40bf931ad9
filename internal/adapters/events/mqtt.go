package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"tow-dispatch-service/internal/config"
	"tow-dispatch-service/internal/domain"
	"tow-dispatch-service/internal/ports"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// pahoClient is the subset of paho.Client used here.
type pahoClient interface {
	Connect() paho.Token
	IsConnected() bool
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
	Unsubscribe(topics ...string) paho.Token
}

// Overridden in tests.
var newMQTTClient = func(opts *paho.ClientOptions) pahoClient { return paho.NewClient(opts) }

// DispatchMessage is the JSON payload published for each committed dispatch.
type DispatchMessage struct {
	OrderID      int       `json:"order_id"`
	VehicleID    int       `json:"vehicle_id"`
	NodeID       int       `json:"node_id"`
	AreaID       int       `json:"area_id"`
	Distance     int64     `json:"distance"`
	DispatchedAt time.Time `json:"dispatched_at"`
}

// LocationMessage is the JSON payload trucks publish when they reach a node.
// VehicleID may be omitted when the topic carries it (tow/trucks/{id}/location).
type LocationMessage struct {
	VehicleID int `json:"vehicle_id"`
	NodeID    int `json:"node_id"`
}

// LocationUpdater applies a reported truck position.
type LocationUpdater interface {
	UpdateVehicleLocation(ctx context.Context, vehicleID, nodeID int) error
}

// MQTTBus publishes dispatch events and ingests truck location reports over one
// broker connection.
type MQTTBus struct {
	cli pahoClient
	cfg config.MQTTConfig
	log zerolog.Logger
}

var _ ports.EventPublisher = (*MQTTBus)(nil)

// DialMQTT connects to the configured broker.
func DialMQTT(cfg config.MQTTConfig, log zerolog.Logger) (*MQTTBus, error) {
	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetConnectTimeout(cfg.Timeout).
		SetAutoReconnect(true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Error().Err(err).Msg("mqtt connection lost")
	}

	cli := newMQTTClient(opts)
	if err := wait(cli.Connect(), cfg.Timeout); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, err)
	}

	log.Info().Str("broker", cfg.Broker).Str("client_id", cfg.ClientID).Msg("mqtt connected")
	return &MQTTBus{cli: cli, cfg: cfg, log: log}, nil
}

func wait(t paho.Token, timeout time.Duration) error {
	if timeout > 0 {
		if !t.WaitTimeout(timeout) {
			return errors.New("timed out")
		}
	} else {
		t.Wait()
	}
	return t.Error()
}

// DispatchTopic renders the dispatch topic for a vehicle.
func (b *MQTTBus) DispatchTopic(vehicleID int) string {
	return strings.ReplaceAll(b.cfg.DispatchTopic, "{vehicle_id}", strconv.Itoa(vehicleID))
}

func (b *MQTTBus) PublishDispatch(ctx context.Context, ev domain.DispatchEvent) error {
	payload, err := json.Marshal(DispatchMessage{
		OrderID:      ev.OrderID,
		VehicleID:    ev.VehicleID,
		NodeID:       ev.NodeID,
		AreaID:       ev.AreaID,
		Distance:     ev.Distance,
		DispatchedAt: ev.Dispatched,
	})
	if err != nil {
		return fmt.Errorf("publish dispatch: marshal: %w", err)
	}

	topic := b.DispatchTopic(ev.VehicleID)
	if err := wait(b.cli.Publish(topic, b.cfg.QoS, false, payload), b.cfg.Timeout); err != nil {
		return fmt.Errorf("publish dispatch to %s: %w", topic, err)
	}
	return nil
}

// SubscribeLocations feeds location reports to u until ctx is done.
// Malformed or rejected reports are logged and dropped.
func (b *MQTTBus) SubscribeLocations(ctx context.Context, u LocationUpdater) error {
	handler := func(_ paho.Client, m paho.Message) {
		vehicleID, nodeID, err := parseLocation(m.Topic(), m.Payload())
		if err != nil {
			b.log.Warn().Err(err).Str("topic", m.Topic()).Msg("invalid location report")
			return
		}
		if err := u.UpdateVehicleLocation(ctx, vehicleID, nodeID); err != nil {
			b.log.Warn().Err(err).Int("vehicle_id", vehicleID).Int("node_id", nodeID).Msg("location update rejected")
			return
		}
		b.log.Debug().Int("vehicle_id", vehicleID).Int("node_id", nodeID).Msg("location updated")
	}

	topic := b.cfg.LocationTopic
	if err := wait(b.cli.Subscribe(topic, b.cfg.QoS, handler), b.cfg.Timeout); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}

	go func() {
		<-ctx.Done()
		if err := wait(b.cli.Unsubscribe(topic), b.cfg.Timeout); err != nil {
			b.log.Warn().Err(err).Str("topic", topic).Msg("mqtt unsubscribe")
		}
	}()

	return nil
}

// parseLocation reads a location report. The topic's vehicle segment is used when the
// payload does not name the vehicle.
func parseLocation(topic string, payload []byte) (vehicleID, nodeID int, err error) {
	var msg LocationMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return 0, 0, fmt.Errorf("decode location: %w", err)
	}

	if msg.VehicleID == 0 {
		parts := strings.Split(topic, "/")
		if len(parts) >= 2 {
			msg.VehicleID, _ = strconv.Atoi(parts[len(parts)-2])
		}
	}
	if msg.VehicleID <= 0 || msg.NodeID <= 0 {
		return 0, 0, fmt.Errorf("location report needs vehicle_id and node_id: %w", domain.ErrInvalidInput)
	}
	return msg.VehicleID, msg.NodeID, nil
}

func (b *MQTTBus) Close() {
	if b.cli.IsConnected() {
		b.cli.Disconnect(250)
	}
}

// NopPublisher drops dispatch events. Used when MQTT is disabled.
type NopPublisher struct{}

func (NopPublisher) PublishDispatch(context.Context, domain.DispatchEvent) error { return nil }
