package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/flexcan-go/flexcan/pkg/virtual"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

var DEFAULT_LISTEN_ADDR = "localhost:18000"
var DEFAULT_METRICS_ADDR = "localhost:18001"

// virtualcan is the broker for the virtual CAN bus : emulated controllers
// and test clients connect over TCP and every frame is fanned out to the
// other peers.
func main() {
	listenAddr := flag.String("l", DEFAULT_LISTEN_ADDR, "broker listen address")
	metricsAddr := flag.String("m", DEFAULT_METRICS_ADDR, "prometheus metrics address, empty to disable")
	mdnsEnable := flag.Bool("mdns", false, "announce the broker via mDNS")
	mdnsName := flag.String("name", "", "mDNS instance name")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	if *verbose {
		log.SetLevel(log.DebugLevel)
	}

	server, err := virtual.NewServer(*listenAddr)
	if err != nil {
		log.Fatalf("broker start failed : %v", err)
	}

	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			log.Infof("metrics on http://%s/metrics", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				log.Errorf("metrics server : %v", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stopMDNS, err := startMDNS(ctx, *mdnsEnable, *mdnsName, *listenAddr)
	if err != nil {
		log.Errorf("mdns : %v", err)
	}
	defer stopMDNS()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")
	_ = server.Close()
}
