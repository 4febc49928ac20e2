// Command devserver runs an in-memory CampusLink backend: the REST API,
// the realtime hub, and a seeded roster of students for local development.
package main

import (
	"flag"
	"net/http"

	"go.uber.org/zap"

	"github.com/campuslink/campuslink/internal/config"
	"github.com/campuslink/campuslink/internal/devserver"
	"github.com/campuslink/campuslink/internal/logging"
)

var addr = flag.String("addr", ":3000", "listen address")

func main() {
	flag.Parse()
	cfg := config.Load()
	log := logging.New(cfg.LogLevel)
	defer log.Sync()

	s := devserver.New(log)
	if err := s.Seed(); err != nil {
		log.Fatal("seed roster", zap.Error(err))
	}

	log.Info("listening", zap.String("addr", *addr))
	if err := http.ListenAndServe(*addr, s.Router()); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}
