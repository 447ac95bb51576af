package replay

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/knei-knurow/fusion"
)

var testEstimate = Estimate{
	Time:               1.5,
	Quaternion:         [4]float64{1, 0, 0, 0},
	Euler:              fusion.EulerAngles{Yaw: 0.25, Pitch: -0.5, Roll: 0.125},
	LinearAcceleration: [3]float64{0, 0, 0.2},
	EarthAcceleration:  [3]float64{0.1, 0, 0.2},
	Flags:              fusion.Flags{Initializing: true},
}

func TestCSVSink(t *testing.T) {
	var buf bytes.Buffer
	s := NewCSVSink(&buf)
	test.That(t, s.Write(testEstimate), test.ShouldBeNil)
	test.That(t, s.Write(testEstimate), test.ShouldBeNil)
	test.That(t, buf.Len(), test.ShouldEqual, 0)
	test.That(t, s.Close(), test.ShouldBeNil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	test.That(t, lines, test.ShouldHaveLength, 3)
	test.That(t, lines[0], test.ShouldEqual, "time,qw,qx,qy,qz,yaw,pitch,roll,linear_x,linear_y,linear_z,earth_x,earth_y,earth_z")
	test.That(t, lines[1], test.ShouldEqual, "1.5,1,0,0,0,0.25,-0.5,0.125,0,0,0.2,0.1,0,0.2")
	test.That(t, lines[2], test.ShouldEqual, lines[1])
}

// fakeToken is an mqtt.Token that never blocks.
type fakeToken struct {
	err      error
	complete bool
}

func (t *fakeToken) Wait() bool { return t.complete }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return t.complete }
func (t *fakeToken) Error() error { return t.err }

func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	if t.complete {
		close(ch)
	}
	return ch
}

type published struct {
	topic   string
	qos     byte
	payload []byte
}

type fakePublisher struct {
	messages     []published
	token        *fakeToken
	disconnected bool
}

func (p *fakePublisher) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	p.messages = append(p.messages, published{topic: topic, qos: qos, payload: payload.([]byte)})
	return p.token
}

func (p *fakePublisher) Disconnect(quiesce uint) {
	p.disconnected = true
}

func TestMQTTSink(t *testing.T) {
	pub := &fakePublisher{token: &fakeToken{complete: true}}
	s := NewMQTTSink(pub, "imu/estimate", 1)

	test.That(t, s.Write(testEstimate), test.ShouldBeNil)
	test.That(t, pub.messages, test.ShouldHaveLength, 1)
	test.That(t, pub.messages[0].topic, test.ShouldEqual, "imu/estimate")
	test.That(t, pub.messages[0].qos, test.ShouldEqual, byte(1))

	var got Estimate
	test.That(t, json.Unmarshal(pub.messages[0].payload, &got), test.ShouldBeNil)
	test.That(t, got, test.ShouldResemble, testEstimate)

	var fields map[string]interface{}
	test.That(t, json.Unmarshal(pub.messages[0].payload, &fields), test.ShouldBeNil)
	test.That(t, fields, test.ShouldContainKey, "linear_acceleration")
	test.That(t, fields["flags"], test.ShouldContainKey, "initializing")

	test.That(t, s.Close(), test.ShouldBeNil)
	test.That(t, pub.disconnected, test.ShouldBeTrue)

	t.Run("publish errors", func(t *testing.T) {
		pub.token = &fakeToken{complete: true, err: errors.New("not connected")}
		err := s.Write(testEstimate)
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, "not connected")

		pub.token = &fakeToken{}
		s.timeout = time.Millisecond
		err = s.Write(testEstimate)
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, "timed out")
	})
}
