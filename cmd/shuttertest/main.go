// Command shuttertest drives one shutter through scripted sequences to fine
// tune its calibration delays. Measure rough values with a stopwatch first,
// put them in the config, then run the tests in order: close, offset, open,
// half. Adjust the config between runs until the shutter lands where the
// estimate says it should.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/orelio/shutterctl/internal/config"
	"github.com/orelio/shutterctl/internal/shutter"
	"github.com/orelio/shutterctl/internal/shutter/engine"
)

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{
		DisableColors: false,
		FullTimestamp: true,
	})

	configPath := flag.String("config", "shutterctl.yaml", "config file path")
	flag.Parse()

	if flag.NArg() != 2 {
		fmt.Printf("%s [-config file] <shutter> <test>\n", os.Args[0])
		fmt.Println("shutter: shutter name from the config file")
		fmt.Println("test: close|offset|open|half (run them in that order)")
		os.Exit(2)
	}

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
	defer e.Shutdown()

	name := strings.ToLower(flag.Arg(0))
	test := strings.ToLower(flag.Arg(1))

	cal, ok := e.Calibration(name)
	if !ok {
		logrus.Fatalf("%s: not a fine-tunable shutter (or not found)", name)
	}

	run(e, name, cal, test)
}

func run(e *engine.Engine, name string, cal shutter.Calibration, test string) {
	switch test {
	case "close":
		logrus.Info("Opening shutter to test the close delay")
		moveTo(e, name, shutter.StateOpen, nil)
		logrus.Info("Moving to closed with blades open")
		logrus.Info("=> If shutter stops too high, increase the close delay")
		logrus.Info("=> If shutter stops too low, decrease the close delay")
		moveTo(e, name, shutter.StateHalf, intPtr(99))

	case "offset":
		logrus.Info("Closing shutter to test the offset delay")
		moveTo(e, name, shutter.StateClose, nil)
		logrus.Info("Moving to closed with blades open")
		logrus.Info("=> If shutter stops too high, decrease the offset delay")
		logrus.Info("=> If shutter stops without opening all blades, increase the offset delay")
		moveTo(e, name, shutter.StateHalf, intPtr(99))

	case "open":
		logrus.Info("Closing shutter to test the open delay")
		moveTo(e, name, shutter.StateClose, nil)
		logrus.Info("Moving to fully open, then immediately to 10%")
		logrus.Info("=> If shutter does not reach fully open, increase the open delay")
		logrus.Info("=> If shutter has a noticeable delay before going down, decrease the open delay")
		moveTo(e, name, shutter.StateHalf, intPtr(0))
		moveTo(e, name, shutter.StateHalf, intPtr(10))

	case "half":
		logrus.Info("Opening shutter to test OPEN->HALF")
		moveTo(e, name, shutter.StateOpen, nil)
		logrus.Infof("=> Testing HALF state from OPEN state (halfway=%d%%)", cal.Halfway)
		moveTo(e, name, shutter.StateHalf, nil)
		logrus.Info("Closing shutter to test CLOSE->HALF")
		moveTo(e, name, shutter.StateClose, nil)
		logrus.Infof("=> Testing HALF state from CLOSE state (halfway=%d%%)", cal.Halfway)
		moveTo(e, name, shutter.StateHalf, nil)

	default:
		logrus.Fatalf("Unknown test %q", test)
	}

	logrus.Info("End of test")
}

// moveTo operates the shutter and blocks until the motion task finished,
// then reports the estimate it settled on.
func moveTo(e *engine.Engine, name string, state shutter.State, override *int) {
	var opts []engine.OperateOption
	if override != nil {
		opts = append(opts, engine.WithTargetPercent(*override))
	}

	if err := e.Operate(name, state, opts...); err != nil {
		logrus.Fatal(err)
	}

	if err := e.Wait(context.Background(), name); err != nil {
		logrus.Fatal(err)
	}

	if percent, known := e.CurrentPercent(name); known {
		logrus.Infof("%s: settled at %d%%", name, percent)
	}
}

func intPtr(i int) *int { return &i }
