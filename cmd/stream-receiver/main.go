// ABOUTME: Entry point for the UDP audio stream receiver
// ABOUTME: Decodes datagrams, tracks stats, and optionally plays audio
package main

import (
	"flag"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/mix2go/stream-go/internal/receiver"
	"github.com/mix2go/stream-go/internal/ui"
	"github.com/mix2go/stream-go/internal/version"
	"github.com/mix2go/stream-go/pkg/packet"
)

var configPath = flag.String("config", "", "Config file path (default: ./stream-receiver.yaml)")

func main() {
	flag.Parse()
	loadConfig()

	useTUI := viper.GetBool("tui")
	setupLogging(useTUI)

	logrus.WithField("version", version.Version).Info("stream-receiver starting")

	playback := viper.GetBool("playback.enabled")
	player := receiver.NewPlayer()
	player.SetVolume(viper.GetInt("playback.volume"))

	var senderMu sync.Mutex
	var senderAddr string

	r := receiver.New(func(p *packet.Packet, from net.Addr) {
		senderMu.Lock()
		senderAddr = from.String()
		senderMu.Unlock()
		if playback {
			if err := player.Enqueue(p); err != nil {
				logrus.WithError(err).Warn("playback failed, continuing without audio")
				playback = false
			}
		}
	})

	port := viper.GetInt("port")
	if err := r.Start(port); err != nil {
		logrus.WithError(err).Fatal("failed to start receiver")
	}
	defer r.Stop()
	defer player.Close()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	currentSender := func() string {
		senderMu.Lock()
		defer senderMu.Unlock()
		return senderAddr
	}

	if useTUI {
		runTUI(r, player, port, currentSender, sigChan)
		return
	}

	logrus.WithField("port", port).Info("receiving, press Ctrl-C to stop")
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s := r.Stats()
			if s.PacketsReceived == 0 {
				continue
			}
			logrus.WithFields(logrus.Fields{
				"packets": s.PacketsReceived,
				"lost":    s.PacketsLost,
				"bytes":   s.BytesReceived,
				"peak_db": s.PeakDB(),
				"sender":  currentSender(),
			}).Info("stats")
		case <-sigChan:
			logSummary(r.Stats())
			return
		}
	}
}

// runTUI drives the dashboard until the user quits or a signal arrives.
func runTUI(r *receiver.Receiver, player *receiver.Player, port int, currentSender func() string, sigChan chan os.Signal) {
	tui := ui.New()

	controls := ui.Controls{
		OnVolumeChange: func(delta int) {
			player.SetVolume(player.Volume() + delta)
		},
		OnMuteToggle: func() {
			player.SetMuted(!player.Muted())
		},
	}

	tuiDone := make(chan struct{})
	go func() {
		defer close(tuiDone)
		if err := tui.Start(port, controls); err != nil {
			logrus.WithError(err).Error("TUI failed")
		}
	}()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s := r.Stats()
			tui.Update(ui.Status{
				ListenPort:      port,
				Sender:          currentSender(),
				PacketsReceived: s.PacketsReceived,
				PacketsLost:     s.PacketsLost,
				BytesReceived:   s.BytesReceived,
				Malformed:       s.Malformed,
				SampleRate:      s.SampleRate,
				Channels:        s.Channels,
				PeakDB:          s.PeakDB(),
				Volume:          player.Volume(),
				Muted:           player.Muted(),
				Underruns:       player.Underruns(),
			})
		case <-tui.QuitChan():
			logSummary(r.Stats())
			tui.Stop()
			<-tuiDone
			return
		case <-sigChan:
			logSummary(r.Stats())
			tui.Stop()
			<-tuiDone
			return
		}
	}
}

func logSummary(s receiver.Stats) {
	logrus.WithFields(logrus.Fields{
		"packets":   s.PacketsReceived,
		"lost":      s.PacketsLost,
		"bytes":     s.BytesReceived,
		"malformed": s.Malformed,
	}).Info("session summary")
}

func loadConfig() {
	viper.SetDefault("port", 12345)
	viper.SetDefault("tui", true)
	viper.SetDefault("playback.enabled", true)
	viper.SetDefault("playback.volume", 100)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.file", "stream-receiver.log")

	if *configPath != "" {
		viper.SetConfigFile(*configPath)
		if err := viper.ReadInConfig(); err != nil {
			logrus.WithError(err).Fatal("failed to read config")
		}
	} else {
		viper.SetConfigName("stream-receiver")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.config/stream-go")
		if err := viper.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				logrus.WithError(err).Fatal("failed to read config")
			}
		}
	}

	viper.SetEnvPrefix("STREAM")
	viper.AutomaticEnv()
}

// setupLogging routes logs to a file in TUI mode so the display stays
// clean, and to stderr otherwise.
func setupLogging(useTUI bool) {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	level, err := logrus.ParseLevel(viper.GetString("log.level"))
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	path := viper.GetString("log.file")
	if useTUI && path == "" {
		path = "stream-receiver.log"
	}
	if path != "" {
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
		if err == nil {
			logrus.SetOutput(f)
		}
	}
}
