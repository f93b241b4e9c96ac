package mqttctrl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"github.com/Agrid-Dev/airtank/internal/ports"
)

type Config struct {
	// Identity
	DeviceID string

	// MQTT connection
	BrokerURL string
	ClientID  string

	// Topics
	BaseTopic string

	// Behavior
	QoS             byte
	RetainSnapshot  bool
	PublishInterval time.Duration

	Username string
	Password string
}

type Controller struct {
	svc ports.TankService
	cfg Config

	client mqtt.Client
	logger *log.Entry
}

func New(svc ports.TankService, cfg Config) (*Controller, error) {
	// ---- defaults ----

	if cfg.BrokerURL == "" {
		cfg.BrokerURL = "tcp://localhost:1883"
	}

	if cfg.DeviceID == "" {
		return nil, errors.New("mqtt: DeviceID is required")
	}
	if cfg.BaseTopic == "" {
		cfg.BaseTopic = "airtank/" + cfg.DeviceID
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "airtank-" + cfg.DeviceID
	}
	if cfg.PublishInterval <= 0 {
		cfg.PublishInterval = 1 * time.Second
	}
	if cfg.QoS > 1 {
		return nil, errors.New("mqtt: QoS must be 0 or 1")
	}
	return &Controller{
		svc: svc,
		cfg: cfg,
		logger: log.WithFields(log.Fields{
			"controller": "mqtt",
			"device_id":  cfg.DeviceID,
		}),
	}, nil
}

func (c *Controller) Run(ctx context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(c.cfg.BrokerURL).
		SetClientID(c.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(2 * time.Second)

	if c.cfg.Username != "" {
		opts.SetUsername(c.cfg.Username)
		opts.SetPassword(c.cfg.Password)
	}

	// Subscribe when connected/reconnected.
	opts.OnConnect = func(cl mqtt.Client) {
		topic := c.topic("set/+")
		token := cl.Subscribe(topic, c.cfg.QoS, c.onMessage)
		token.Wait()
		if err := token.Error(); err != nil {
			c.logger.WithError(err).WithField("topic", topic).Error("subscribe failed")
		}
	}

	c.client = mqtt.NewClient(opts)
	tok := c.client.Connect()
	tok.Wait()
	if err := tok.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	c.logger.WithField("broker", c.cfg.BrokerURL).Info("connected")

	// Publish loop: publish snapshot on interval, and only when changed.
	ticker := time.NewTicker(c.cfg.PublishInterval)
	defer ticker.Stop()

	last := c.svc.Get()
	c.publishSnapshot()

	for {
		select {
		case <-ctx.Done():
			c.client.Disconnect(250)
			return ctx.Err()

		case <-ticker.C:
			cur := c.svc.Get()
			if cur != last {
				c.publishSnapshot()
				last = cur
			}
		}
	}
}

func (c *Controller) publishSnapshot() {
	s := c.svc.Get()
	dto := snapshotDTO{
		Phase:           s.Phase().String(),
		ValveOpen:       s.ValveOpen,
		AmbientPressure: s.AmbientPressure,
		Pressure:        s.Pressure,
		Density:         s.Density,
		Temperature:     s.Temperature,
		ExitVelocity:    s.ExitVelocity,
		Thrust:          s.Thrust,
		AirMass:         s.AirMass,
		ElapsedSeconds:  s.Elapsed.Seconds(),
	}
	b, _ := json.Marshal(dto)
	c.client.Publish(c.topic("snapshot"), c.cfg.QoS, c.cfg.RetainSnapshot, b)
}

type snapshotDTO struct {
	Phase           string  `json:"phase"`
	ValveOpen       bool    `json:"valve_open"`
	AmbientPressure float64 `json:"ambient_pressure"`
	Pressure        float64 `json:"pressure"`
	Density         float64 `json:"density"`
	Temperature     float64 `json:"temperature"`
	ExitVelocity    float64 `json:"exit_velocity"`
	Thrust          float64 `json:"thrust"`
	AirMass         float64 `json:"air_mass"`
	ElapsedSeconds  float64 `json:"elapsed_seconds"`
}

// Command payload format: {"value": ...}
type valueReq[T any] struct {
	Value *T `json:"value"`
}

func (c *Controller) onMessage(_ mqtt.Client, msg mqtt.Message) {
	// topic format: <base>/set/<field>
	t := msg.Topic()
	prefix := strings.TrimRight(c.cfg.BaseTopic, "/") + "/set/"
	if !strings.HasPrefix(t, prefix) {
		return
	}
	field := strings.TrimPrefix(t, prefix)
	logger := c.logger.WithField("field", field)

	payload := msg.Payload()

	switch field {
	case "valve_open":
		v, err := decodeValueStrict[bool](payload)
		if err != nil {
			logger.WithError(err).Warn("rejected command")
			return
		}
		c.svc.SetValveOpen(v)

	case "ambient_pressure":
		v, err := decodeValueStrict[float64](payload)
		if err != nil {
			logger.WithError(err).Warn("rejected command")
			return
		}
		if err := c.svc.SetAmbientPressure(v); err != nil {
			logger.WithError(err).Warn("command failed")
		}

	case "refill":
		v, err := decodeValueStrict[float64](payload)
		if err != nil {
			logger.WithError(err).Warn("rejected command")
			return
		}
		if err := c.svc.Refill(v); err != nil {
			logger.WithError(err).Warn("command failed")
		}

	default:
		logger.Debug("unknown field")
	}
}

func (c *Controller) topic(suffix string) string {
	return strings.TrimRight(c.cfg.BaseTopic, "/") + "/" + suffix
}

func decodeValueStrict[T any](b []byte) (T, error) {
	var zero T
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	var req valueReq[T]
	if err := dec.Decode(&req); err != nil {
		return zero, err
	}
	if req.Value == nil {
		return zero, errors.New("missing field 'value'")
	}
	return *req.Value, nil
}
