package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/orelio/shutterctl/internal/config"
	"github.com/orelio/shutterctl/internal/mqtt"
	"github.com/orelio/shutterctl/internal/shutter/engine"
)

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{
		DisableColors: false,
		FullTimestamp: true,
	})

	configPath := flag.String("config", "shutterctl.yaml", "config file path")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatal(err)
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logrus.Fatal(err)
	}
	logrus.SetLevel(level)

	ch, err := cfg.BuildChannel()
	if err != nil {
		logrus.Fatal(err)
	}

	defs, err := cfg.Definitions()
	if err != nil {
		logrus.Fatal(err)
	}

	e, err := engine.New(ch, defs, cfg.EngineOptions())
	if err != nil {
		logrus.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	if cfg.MQTT.Enabled {
		connectMQTT(ctx, cfg, e)
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		s := <-c
		logrus.Infof("received %s, shutting down", s)
		cancel()
	}()

	<-ctx.Done()
	e.Shutdown()

	cleanupTime := time.Second
	logrus.Infof("cleanups for %s...", cleanupTime)
	time.Sleep(cleanupTime)
}

func connectMQTT(ctx context.Context, cfg *config.Config, e *engine.Engine) {
	var bridges []*mqtt.Bridge

	opts := paho.NewClientOptions().
		SetClientID(cfg.MQTT.ClientID).
		AddBroker(cfg.MQTT.Broker).
		SetUsername(cfg.MQTT.Username).
		SetPassword(cfg.MQTT.Password).
		SetConnectTimeout(time.Second).
		SetPingTimeout(time.Second).
		SetWriteTimeout(time.Second).
		SetAutoReconnect(true)

	opts.OnConnect = func(client paho.Client) {
		logrus.Info("MQTT broker connected")
		subscribe(ctx, cfg, client, bridges)
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		logrus.Errorf("MQTT broker connection lost: %s", err)
	}

	client := paho.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		logrus.Fatal(token.Error())
	}

	for _, name := range e.Names() {
		bridges = append(bridges, mqtt.NewBridge(client, e, name))
	}

	subscribe(ctx, cfg, client, bridges)
}

func subscribe(ctx context.Context, cfg *config.Config, client paho.Client, bridges []*mqtt.Bridge) {
	for _, bridge := range bridges {
		if cfg.HASS.Enabled {
			cover := mqtt.NewHACoverFromBridge(bridge)
			if err := mqtt.PublishHAAutoDiscovery(client, cfg.HASS.TopicPrefix, cover); err != nil {
				logrus.Fatal(err)
			}
		}

		if err := bridge.Subscribe(ctx); err != nil {
			logrus.Error(err)
		}
	}
}
