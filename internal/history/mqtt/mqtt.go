package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/loykin/nodectl/internal/history"
)

const (
	// DefaultTopic receives events when the DSN has no path.
	DefaultTopic = "nodectl/history"

	defaultConnectTimeout = 10 * time.Second
	defaultPublishTimeout = 5 * time.Second
	disconnectQuiesceMS   = 250
	maxQoS                = 2
)

// Options is a parsed MQTT DSN.
type Options struct {
	Broker   string // tcp://host:port or ssl://host:port
	Topic    string
	QoS      byte
	Retained bool
	ClientID string
	Username string
	Password string
}

// ParseDSN reads "mqtt://[user:pass@]host[:port]/topic/path?qos=1&retain=false&client_id=x".
// "mqtts://" selects TLS. The default port is 1883 (8883 with TLS).
func ParseDSN(dsn string) (Options, error) {
	u, err := url.Parse(strings.TrimSpace(dsn))
	if err != nil {
		return Options{}, err
	}
	scheme, port := "tcp", "1883"
	switch strings.ToLower(u.Scheme) {
	case "mqtt":
	case "mqtts":
		scheme, port = "ssl", "8883"
	default:
		return Options{}, fmt.Errorf("unsupported MQTT scheme %q", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return Options{}, errors.New("MQTT DSN requires a host")
	}
	if p := u.Port(); p != "" {
		port = p
	}

	o := Options{
		Broker:   scheme + "://" + host + ":" + port,
		Topic:    strings.Trim(u.Path, "/"),
		QoS:      1,
		ClientID: "nodectl-" + strconv.Itoa(int(time.Now().UnixNano()%1e9)),
	}
	if o.Topic == "" {
		o.Topic = DefaultTopic
	}
	if u.User != nil {
		o.Username = u.User.Username()
		o.Password, _ = u.User.Password()
	}
	q := u.Query()
	if v := q.Get("qos"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > maxQoS {
			return Options{}, fmt.Errorf("invalid MQTT qos %q", v)
		}
		o.QoS = byte(n)
	}
	if v := q.Get("retain"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Options{}, fmt.Errorf("invalid MQTT retain %q", v)
		}
		o.Retained = b
	}
	if v := q.Get("client_id"); v != "" {
		o.ClientID = v
	}
	return o, nil
}

// Sink publishes each event as a JSON message.
type Sink struct {
	client pahomqtt.Client
	opts   Options
}

// New parses dsn and connects to the broker.
func New(dsn string) (*Sink, error) {
	o, err := ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	co := pahomqtt.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetCleanSession(true).
		SetConnectTimeout(defaultConnectTimeout).
		SetAutoReconnect(false)
	if o.Username != "" {
		co.SetUsername(o.Username)
		co.SetPassword(o.Password)
	}

	client := pahomqtt.NewClient(co)
	token := client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("connect to MQTT broker %s: timeout after %v", o.Broker, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to MQTT broker %s: %w", o.Broker, err)
	}
	return &Sink{client: client, opts: o}, nil
}

// Payload is the JSON body published for e.
func Payload(e history.Event) ([]byte, error) {
	return json.Marshal(e)
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	payload, err := Payload(e)
	if err != nil {
		return err
	}
	token := s.client.Publish(s.opts.Topic, s.opts.QoS, s.opts.Retained, payload)

	timeout := defaultPublishTimeout
	if dl, ok := ctx.Deadline(); ok {
		timeout = time.Until(dl)
	}
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(timeout):
		return fmt.Errorf("publish to %s: timeout after %v", s.opts.Topic, timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", s.opts.Topic, err)
	}
	return nil
}

func (s *Sink) Close() error {
	if s.client != nil && s.client.IsConnected() {
		s.client.Disconnect(disconnectQuiesceMS)
	}
	return nil
}
