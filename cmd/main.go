package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	nested "github.com/antonfisher/nested-logrus-formatter"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.io/kevin-rd/k8s-tools/http2socks/internal/bridge"
	"github.io/kevin-rd/k8s-tools/http2socks/internal/config"
	"github.io/kevin-rd/k8s-tools/http2socks/internal/metrics"
	"github.io/kevin-rd/k8s-tools/http2socks/internal/socks"
)

func init() {
	log.SetFormatter(&nested.Formatter{
		NoColors: false,
	})
	log.SetReportCaller(true)
	log.SetLevel(log.InfoLevel)
}

func main() {
	configPath := flag.String("c", "", "config file path")
	listen := flag.String("l", "", "local listen address (default 127.0.0.1:0)")
	proxyType := flag.String("t", "", "upstream type: socks4, socks5 or http")
	host := flag.String("s", "", "upstream proxy host or host:port")
	username := flag.String("u", "", "upstream username")
	password := flag.String("p", "", "upstream password")
	flag.Parse()

	cfg := config.DefaultConfig()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
		cfg = loaded
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *proxyType != "" {
		cfg.Upstream.Type = *proxyType
	}
	if *host != "" {
		cfg.Upstream.Host = *host
	}
	if *username != "" {
		cfg.Upstream.Username = *username
	}
	if *password != "" {
		cfg.Upstream.Password = *password
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	version, _ := socks.ParseVersion(cfg.Upstream.Type)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		count := 0
		for sig := range stopCh {
			count++
			log.Debugf("Receive signal: %v, count: %d", sig, count)

			if count == 1 {
				log.Info("First signal received, initiating graceful shutdown...")
				cancel()
			} else {
				log.Warn("Receive signal again, force exit.")
				os.Exit(1)
			}
		}
	}()

	adapter, err := bridge.New(ctx, bridge.Options{
		Host:     cfg.Upstream.Host,
		Port:     cfg.Upstream.Port,
		Username: cfg.Upstream.Username,
		Password: cfg.Upstream.Password,
		Type:     version,
		Timeout:  time.Duration(cfg.Upstream.TimeoutMs) * time.Millisecond,
		Listen:   cfg.Listen,
		MaxConns: cfg.MaxConns,
	})
	if err != nil {
		log.Fatalf("start bridge: %v", err)
	}
	log.Info("HTTP proxy endpoint: ", adapter.Endpoint())

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Metrics.Enabled {
		g.Go(func() error {
			log.Info("Starting metrics server...")
			err := metrics.StartServer(gctx, cfg.Metrics.Listen, cfg.Metrics.Path)
			if errors.Is(err, http.ErrServerClosed) {
				log.Info("Metrics server has gracefully shutdown.")
				return nil
			}
			return err
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return adapter.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Errorf("shutdown: %v", err)
	}
	log.Info("Shutdown done.")
}
