package mqtt

import (
	"encoding/json"
	"fmt"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/orelio/shutterctl/internal/shutter"
)

type haDevice struct {
	Identifiers  []string `json:"ids,omitempty"`
	Manufacturer string   `json:"mf,omitempty"`
	Model        string   `json:"mdl,omitempty"`
	Name         string   `json:"name,omitempty"`
	SWVersion    string   `json:"sw,omitempty"`
}

type haEntity struct {
	AvailabilityTopic string `json:"avty_t,omitempty"`
	UniqueID          string `json:"uniq_id,omitempty"`
	Name              string `json:"name,omitempty"`
	DeviceClass       string `json:"device_class,omitempty"`

	Device haDevice `json:"device,omitempty"`
}

type haCover struct {
	haEntity
	StateTopic       string `json:"stat_t"`
	CommandTopic     string `json:"cmd_t"`
	PositionTopic    string `json:"pos_t"`
	SetPositionTopic string `json:"set_pos_t"`
	PositionOpen     int    `json:"pos_open"`
	PositionClosed   int    `json:"pos_clsd"`
	PayloadOpen      string `json:"pl_open"`
	PayloadStop      string `json:"pl_stop"`
	PayloadClose     string `json:"pl_cls"`
}

func NewHACoverFromBridge(bridge *Bridge) haCover {
	return haCover{
		haEntity: haEntity{
			UniqueID:    bridge.name,
			Name:        bridge.name,
			DeviceClass: "shutter",

			Device: haDevice{
				Identifiers:  []string{"shutterctl"},
				Manufacturer: "Yokis",
				Model:        "MVR500",
				Name:         bridge.name,
				SWVersion:    "shutterctl",
			},
		},
		StateTopic:       bridge.StateTopic,
		CommandTopic:     bridge.CommandTopic,
		PositionTopic:    bridge.PositionTopic,
		SetPositionTopic: bridge.PositionChangeTopic,
		PositionOpen:     shutter.FullOpenPercent,
		PositionClosed:   shutter.FullClosedPercent,
		PayloadOpen:      string(shutter.StateOpen),
		PayloadStop:      string(shutter.StateStop),
		PayloadClose:     string(shutter.StateClose),
	}
}

func PublishHAAutoDiscovery(client paho.Client, topicPrefix string, cover haCover) error {
	topic := fmt.Sprintf("%s/cover/shutterctl/%s/config", topicPrefix, cover.Name)

	payload, err := json.Marshal(cover)
	if err != nil {
		return err
	}

	if token := client.Publish(topic, 0, true, payload); token.Wait() && token.Error() != nil {
		return token.Error()
	}

	return nil
}
