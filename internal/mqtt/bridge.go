package mqtt

import (
	"context"
	"fmt"
	"strconv"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/orelio/shutterctl/internal/shutter"
	"github.com/orelio/shutterctl/internal/shutter/engine"
)

// Bridge exposes one shutter over MQTT: it publishes state and estimated
// position, and forwards command payloads into the engine. It is a plain
// producer into Operate; all sequencing stays in the engine.
type Bridge struct {
	mqtt   mqtt.Client
	engine *engine.Engine
	name   string

	StateTopic    string
	PositionTopic string

	CommandTopic        string
	PositionChangeTopic string
}

func NewBridge(client mqtt.Client, e *engine.Engine, name string) *Bridge {
	bridge := &Bridge{mqtt: client, engine: e, name: name}
	bridge.StateTopic = fmt.Sprintf("shutterctl/%s/state", name)
	bridge.PositionTopic = fmt.Sprintf("shutterctl/%s/position", name)
	bridge.CommandTopic = fmt.Sprintf("shutterctl/%s/set", name)
	bridge.PositionChangeTopic = fmt.Sprintf("shutterctl/%s/position/set", name)

	e.OnUpdate(bridge.onEngineUpdate)

	return bridge
}

func (b *Bridge) Subscribe(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		if token := b.mqtt.Unsubscribe(b.PositionChangeTopic, b.CommandTopic); token.Wait() && token.Error() != nil {
			logrus.Errorf("%s: MQTT topics unsubscribe failed: %s", b.name, token.Error())
		}
	}()

	if token := b.mqtt.Subscribe(b.CommandTopic, 0, b.onCommand); token.Wait() && token.Error() != nil {
		return errors.Wrapf(token.Error(), "%s: MQTT command topic subscription failed", b.name)
	}
	logrus.Infof("%s: MQTT command topic subscribed", b.name)
	if token := b.mqtt.Subscribe(b.PositionChangeTopic, 0, b.onPositionChange); token.Wait() && token.Error() != nil {
		return errors.Wrapf(token.Error(), "%s: MQTT position change topic subscription failed", b.name)
	}
	logrus.Infof("%s: MQTT position change topic subscribed", b.name)

	return nil
}

func (b *Bridge) onEngineUpdate(name string, state shutter.State, percent int) {
	if name != b.name {
		return
	}

	if token := b.mqtt.Publish(b.StateTopic, 0, true, string(state)); token.Wait() && token.Error() != nil {
		logrus.Errorf("%s: MQTT state publish failed: %s", b.name, token.Error())
	}
	if percent == shutter.PercentUnknown {
		return
	}
	if token := b.mqtt.Publish(b.PositionTopic, 0, true, strconv.Itoa(percent)); token.Wait() && token.Error() != nil {
		logrus.Errorf("%s: MQTT position publish failed: %s", b.name, token.Error())
	}
}

func (b *Bridge) onCommand(_ mqtt.Client, msg mqtt.Message) {
	state, err := shutter.ParseState(string(msg.Payload()))
	if err != nil {
		logrus.Errorf("%s: MQTT unsupported command received: %s", b.name, err)
		return
	}

	if err := b.engine.Operate(b.name, state); err != nil {
		logrus.Errorf("%s: %s", b.name, err)
	}
}

func (b *Bridge) onPositionChange(_ mqtt.Client, msg mqtt.Message) {
	pos, err := strconv.Atoi(string(msg.Payload()))
	if err != nil {
		logrus.Errorf("%s: MQTT position payload: %s", b.name, err)
		return
	}

	if err := b.engine.Operate(b.name, shutter.StateHalf, engine.WithTargetPercent(pos)); err != nil {
		logrus.Errorf("%s: %s", b.name, err)
	}
}
