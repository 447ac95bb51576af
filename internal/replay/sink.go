package replay

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"

	"github.com/knei-knurow/fusion"
)

// Estimate is the filter output for one log row.
type Estimate struct {
	Time               float64            `json:"time"`
	Quaternion         [4]float64         `json:"quaternion"` // w,x,y,z
	Euler              fusion.EulerAngles `json:"euler"`
	LinearAcceleration [3]float64         `json:"linear_acceleration"` // g
	EarthAcceleration  [3]float64         `json:"earth_acceleration"`  // g
	Flags              fusion.Flags       `json:"flags"`
}

// A Sink receives estimates in log order.
type Sink interface {
	Write(e Estimate) error
	Close() error
}

var csvHeader = []string{
	"time", "qw", "qx", "qy", "qz", "yaw", "pitch", "roll",
	"linear_x", "linear_y", "linear_z", "earth_x", "earth_y", "earth_z",
}

// CSVSink writes one CSV row per estimate. Angles are written in radians.
type CSVSink struct {
	w             *csv.Writer
	headerWritten bool
}

// NewCSVSink returns a sink writing to w. Closing the sink flushes it but does not close w.
func NewCSVSink(w io.Writer) *CSVSink {
	return &CSVSink{w: csv.NewWriter(w)}
}

func (s *CSVSink) Write(e Estimate) error {
	if !s.headerWritten {
		if err := s.w.Write(csvHeader); err != nil {
			return errors.Wrap(err, "cannot write csv header")
		}
		s.headerWritten = true
	}

	row := make([]string, 0, len(csvHeader))
	row = append(row, formatFloat(e.Time))
	for _, v := range e.Quaternion {
		row = append(row, formatFloat(v))
	}
	row = append(row, formatFloat(e.Euler.Yaw), formatFloat(e.Euler.Pitch), formatFloat(e.Euler.Roll))
	for _, v := range e.LinearAcceleration {
		row = append(row, formatFloat(v))
	}
	for _, v := range e.EarthAcceleration {
		row = append(row, formatFloat(v))
	}
	return errors.Wrap(s.w.Write(row), "cannot write csv row")
}

// Close flushes buffered rows.
func (s *CSVSink) Close() error {
	s.w.Flush()
	return errors.Wrap(s.w.Error(), "cannot flush csv")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Publisher is the part of mqtt.Client used by MQTTSink.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTSink publishes every estimate as a JSON document on one topic.
type MQTTSink struct {
	client  Publisher
	topic   string
	qos     byte
	timeout time.Duration
}

// NewMQTTSink returns a sink publishing on topic through client. Closing the
// sink disconnects the client.
func NewMQTTSink(client Publisher, topic string, qos byte) *MQTTSink {
	return &MQTTSink{client: client, topic: topic, qos: qos, timeout: 5 * time.Second}
}

func (s *MQTTSink) Write(e Estimate) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "cannot encode estimate")
	}
	token := s.client.Publish(s.topic, s.qos, false, payload)
	if !token.WaitTimeout(s.timeout) {
		return errors.Errorf("publish to %s timed out", s.topic)
	}
	return errors.Wrapf(token.Error(), "cannot publish to %s", s.topic)
}

// Close disconnects the client, giving in-flight messages 250ms to complete.
func (s *MQTTSink) Close() error {
	s.client.Disconnect(250)
	return nil
}

// DialMQTT connects to an MQTT broker (e.g. "tcp://localhost:1883").
func DialMQTT(broker, clientID string, timeout time.Duration) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectTimeout(timeout)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		return nil, errors.Errorf("mqtt connect to %s timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, errors.Wrapf(err, "mqtt connect to %s", broker)
	}
	return client, nil
}
