package api

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"fieldroute/internal/cities"
	"fieldroute/internal/config"
	"fieldroute/internal/connectivity"
	"fieldroute/internal/directions"
	"fieldroute/internal/localstore"
	"fieldroute/internal/model"
	"fieldroute/internal/plan"
	"fieldroute/internal/prospects"
	"fieldroute/internal/queue"
	"fieldroute/internal/session"
)

// Server wires the planning and tracking engine behind HTTP handlers.
type Server struct {
	Cfg       *config.Config
	Log       zerolog.Logger
	Prospects prospects.Repository
	Filter    *plan.Filter
	Planner   *plan.Planner
	Sessions  *session.Manager
	Queue     *queue.Queue
	Monitor   *connectivity.Monitor
	Broker    *Broker

	watcher connectivity.ChanWatcher
	store   localstore.Store
}

// NewServer composes the engine from configuration. With no
// DATABASE_URL it runs against an in-memory prospect set, and with no
// data directory it keeps session state in memory only.
func NewServer(cfg *config.Config, log zerolog.Logger) (*Server, error) {
	var repo prospects.Repository
	if cfg.DatabaseURL != "" {
		pg, err := prospects.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("api: connect prospects db: %w", err)
		}
		repo = pg
	} else {
		log.Warn().Msg("DATABASE_URL unset, using in-memory prospect store")
		repo = prospects.NewMemory(nil)
	}

	var store localstore.Store
	if cfg.DataDir != "" {
		b, err := localstore.OpenBadger(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("api: open local store: %w", err)
		}
		store = b
	} else {
		store = localstore.NewMemory()
	}

	var lookup cities.Lookup
	if cfg.Cities.BaseURL != "" {
		lookup = cities.NewHTTPLookup(cfg.Cities.BaseURL)
		if cfg.RedisURL != "" {
			cached, err := cities.NewRedisCache(cfg.RedisURL, lookup, log)
			if err != nil {
				log.Warn().Err(err).Msg("redis unavailable, cities lookup uncached")
			} else {
				lookup = cached
			}
		}
	}

	var remote plan.Optimizer
	if cfg.Directions.BaseURL != "" {
		remote = directions.NewClient(cfg.Directions.BaseURL, cfg.Directions.APIKey,
			time.Duration(cfg.Directions.TimeoutSec)*time.Second)
	}

	broker := NewBroker()
	publish := func(eventType string, data map[string]any) {
		broker.Publish(Event{Type: eventType, Data: data})
	}

	q := queue.Load(store, repo, log)
	sessions := session.NewManager(store, repo, q, log, session.WithEvents(publish))
	watcher := make(connectivity.ChanWatcher, 8)
	monitor := connectivity.New(q, watcher, log, connectivity.WithEvents(publish))

	return &Server{
		Cfg:       cfg,
		Log:       log,
		Prospects: repo,
		Filter:    &plan.Filter{Cities: lookup, Log: log},
		Planner:   &plan.Planner{Remote: remote, Log: log},
		Sessions:  sessions,
		Queue:     q,
		Monitor:   monitor,
		Broker:    broker,
		watcher:   watcher,
		store:     store,
	}, nil
}

// ReportConnectivity feeds a platform network-state signal into the
// monitor without blocking the caller.
func (s *Server) ReportConnectivity(online bool) {
	select {
	case s.watcher <- online:
	default:
	}
}

// NewDrainWorker builds the periodic replay safety net.
func (s *Server) NewDrainWorker() *queue.Worker {
	return queue.NewWorker(s.Queue, s.Monitor.Online, s.Log)
}

// Close releases the engine's local resources.
func (s *Server) Close() error {
	return s.store.Close()
}

// defaultStart returns the configured anchor location used when the
// caller supplies no usable start.
func (s *Server) defaultStart() (string, *model.GeoPoint) {
	addr := s.Cfg.DefaultStart.Address
	if s.Cfg.DefaultStart.Lat == 0 && s.Cfg.DefaultStart.Lng == 0 {
		return addr, nil
	}
	return addr, &model.GeoPoint{Lat: s.Cfg.DefaultStart.Lat, Lng: s.Cfg.DefaultStart.Lng}
}
