// ABOUTME: Entry point for the UDP audio stream sender
// ABOUTME: Decodes a local file or test tone and streams it as datagrams
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/mix2go/stream-go/internal/monitor"
	"github.com/mix2go/stream-go/internal/source"
	"github.com/mix2go/stream-go/internal/version"
	"github.com/mix2go/stream-go/pkg/stream"
)

var configPath = flag.String("config", "", "Config file path (default: ./stream-sender.yaml)")

func main() {
	flag.Parse()
	loadConfig()
	setupLogging()

	logrus.WithField("version", version.Version).Info("stream-sender starting")

	src, err := source.New(viper.GetString("audio"))
	if err != nil {
		logrus.WithError(err).Fatal("failed to open audio source")
	}
	defer src.Close()

	blockSize := viper.GetInt("block_size")
	sampleRate := src.SampleRate()
	channels := src.Channels()
	title, _, _ := src.Metadata()

	mgr := stream.NewManager(nil)
	mgr.Prepare(float64(sampleRate), blockSize, channels)
	mgr.SetTarget(viper.GetString("target.host"), viper.GetInt("target.port"))
	mgr.SetSendInterval(viper.GetDuration("send_interval"))

	var mon *monitor.Monitor
	if viper.GetBool("monitor.enabled") {
		mon = monitor.New(func() (string, monitor.StatsPayload) {
			return mgr.StateString(), monitor.StatsPayload{
				PacketsSent:   mgr.PacketsSent(),
				BytesSent:     mgr.BytesSent(),
				FIFOLevel:     mgr.FIFOLevel(),
				FIFOOverruns:  mgr.FIFOOverruns(),
				FIFOUnderruns: mgr.FIFOUnderruns(),
			}
		})
		if err := mon.Start(viper.GetInt("monitor.port")); err != nil {
			logrus.WithError(err).Fatal("failed to start monitor")
		}
		defer mon.Stop()
		mgr.AddListener(mon)
	}

	if !mgr.Start() {
		logrus.WithField("error", mgr.LastError()).Fatal("failed to start stream")
	}

	host, port := mgr.Target()
	logrus.WithFields(logrus.Fields{
		"audio":       title,
		"sample_rate": sampleRate,
		"channels":    channels,
		"target":      host,
		"port":        port,
	}).Info("streaming")

	stopFeed := make(chan struct{})
	feedDone := make(chan struct{})
	go feedLoop(mgr, src, blockSize, channels, sampleRate, stopFeed, feedDone)

	statsTicker := time.NewTicker(time.Second)
	defer statsTicker.Stop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-statsTicker.C:
			mgr.BroadcastStats()
			logrus.WithFields(logrus.Fields{
				"packets":  mgr.PacketsSent(),
				"bytes":    mgr.BytesSent(),
				"fifo":     mgr.FIFOLevel(),
				"overruns": mgr.FIFOOverruns(),
			}).Debug("stats")
		case sig := <-sigChan:
			logrus.WithField("signal", sig.String()).Info("shutting down")
			close(stopFeed)
			<-feedDone
			mgr.Stop()
			return
		}
	}
}

// feedLoop reads blocks from the source and pushes them into the
// pipeline at real-time pace.
func feedLoop(mgr *stream.Manager, src source.Source, blockSize, channels, sampleRate int, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	block := make([][]float32, channels)
	for ch := range block {
		block[ch] = make([]float32, blockSize)
	}

	blockDur := time.Duration(float64(blockSize) / float64(sampleRate) * float64(time.Second))
	ticker := time.NewTicker(blockDur)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			n, err := src.Read(block)
			if err != nil {
				logrus.WithError(err).Error("source read failed")
				return
			}
			if n == 0 {
				continue
			}
			if n < blockSize {
				for ch := range block {
					for i := n; i < blockSize; i++ {
						block[ch][i] = 0
					}
				}
			}
			mgr.PushAudio(block)
		}
	}
}

func loadConfig() {
	viper.SetDefault("audio", "")
	viper.SetDefault("block_size", 480)
	viper.SetDefault("send_interval", 10*time.Millisecond)
	viper.SetDefault("target.host", "127.0.0.1")
	viper.SetDefault("target.port", 12345)
	viper.SetDefault("monitor.enabled", true)
	viper.SetDefault("monitor.port", 8928)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.file", "")

	if *configPath != "" {
		viper.SetConfigFile(*configPath)
		if err := viper.ReadInConfig(); err != nil {
			logrus.WithError(err).Fatal("failed to read config")
		}
	} else {
		viper.SetConfigName("stream-sender")
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

func setupLogging() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	level, err := logrus.ParseLevel(viper.GetString("log.level"))
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if path := viper.GetString("log.file"); path != "" {
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
		if err != nil {
			logrus.WithError(err).Fatal("failed to open log file")
		}
		logrus.SetOutput(f)
	}
}
