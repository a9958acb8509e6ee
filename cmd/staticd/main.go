//go:build linux

package main

import (
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/indigo-web/staticd/config"
	"github.com/indigo-web/staticd/internal/server"
)

var (
	addr       = flag.String("addr", "localhost:9090", "address to listen on")
	root       = flag.String("root", "", "document root, overrides the config file")
	configFile = flag.String("config", "", "JSON config file, defaults are used if omitted")
)

func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if len(*configFile) > 0 {
		var err error
		if cfg, err = config.Load(*configFile); err != nil {
			return nil, err
		}
	}

	if len(*root) > 0 {
		cfg.Root = *root
	}

	return cfg, cfg.Validate()
}

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		log.Fatal(err)
	}

	if info, err := os.Stat(cfg.Root); err != nil || !info.IsDir() {
		log.Fatal(errors.Join(errors.New("staticd: document root is not a directory"), err))
	}

	logger := log.New(os.Stderr, "", log.LstdFlags)
	s, err := server.New(cfg, logger)
	if err != nil {
		log.Fatal(err)
	}

	if err = s.Listen(*addr); err != nil {
		log.Fatal(err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Serve()
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sig:
		log.Println("staticd: shutting down")
		s.Stop()
		err = <-errCh
	case err = <-errCh:
	}

	if err != nil {
		log.Fatal(err)
	}
}
