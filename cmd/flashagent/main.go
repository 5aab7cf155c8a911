// flashagent performs one firmware flash against a flashguard server: it
// mints a session bound to this hardware, streams the firmware through
// memory and drives the native flashing tool.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/flashguard/flashguard/config"
	l "github.com/flashguard/flashguard/logger"
	"github.com/flashguard/flashguard/pkg/agent"
	"github.com/flashguard/flashguard/pkg/agent/flashapi"
	"github.com/flashguard/flashguard/pkg/agent/hwid"
	"github.com/flashguard/flashguard/pkg/agent/keystore"
	"github.com/flashguard/flashguard/pkg/agent/toolrunner"

	log "github.com/sirupsen/logrus"
)

func main() {
	deviceType := flag.String("device", "", "device type to flash")
	flag.Parse()

	config.Init()
	l.InitLogger()

	if *deviceType == "" {
		fmt.Fprintln(os.Stderr, "usage: flashagent -device <type>")
		os.Exit(2)
	}

	cfg := config.Get()
	rootLog := log.NewEntry(log.StandardLogger())

	keyPath, err := config.ClientKeyPath()
	if err != nil {
		log.WithField("error", err.Error()).Fatal("cannot resolve client key location")
	}

	prober := hwid.NewProber(rootLog)
	custodian := keystore.NewCustodian(keyPath, cfg.Client.KeyBits, rootLog)
	runner := toolrunner.NewRunner(
		cfg.Client.ToolsPath,
		cfg.Client.IntegrityCheck,
		cfg.Client.TrustedToolHashes,
		cfg.Client.OverwritePasses,
		rootLog,
	)
	newClient := func(ctx context.Context, logEntry *log.Entry) flashapi.ClientInterface {
		return flashapi.InitClient(ctx, logEntry)
	}

	flashAgent := agent.New(prober, custodian, newClient, runner, rootLog)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	sink := toolrunner.ProgressFunc(func(line string) {
		fmt.Println(line)
	})

	if err := flashAgent.Flash(ctx, *deviceType, sink); err != nil {
		log.WithField("error", err.Error()).Error("flash failed")
		os.Exit(1)
	}
	log.Info("flash completed")
}
