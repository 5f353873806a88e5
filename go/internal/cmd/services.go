package main

import (
	"context"
	"database/sql"
	"errors"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/altarpro/altarpro/go/clients/biblia"
	"github.com/altarpro/altarpro/go/internal/config"
	"github.com/altarpro/altarpro/go/internal/dbconfig"
	"github.com/altarpro/altarpro/go/internal/presentation/broadcast"
	"github.com/altarpro/altarpro/go/internal/presentation/gateway"
	"github.com/altarpro/altarpro/go/internal/presentation/media"
	"github.com/altarpro/altarpro/go/internal/presentation/metrics"
	"github.com/altarpro/altarpro/go/internal/presentation/session"
	"github.com/altarpro/altarpro/go/internal/presentation/state"
	"github.com/altarpro/altarpro/go/internal/presentation/storage"
	"github.com/altarpro/altarpro/go/internal/songs"
)

type Services struct {
	Registry   *prometheus.Registry
	Controller *session.Controller
	Gateway    *gateway.Service

	closers []func() error
}

// Close releases everything setupServices opened, newest first.
func (s *Services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			log.Warn().Err(err).Msg("error during shutdown")
		}
	}
}

func (s *Services) onClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

// setupServices wires storage, transports and collaborators into the
// operator controller and the gateway.
func setupServices(ctx context.Context, cfg config.Config) (*Services, error) {
	services := &Services{Registry: prometheus.NewRegistry()}
	services.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewPrometheus(services.Registry)

	needsDB := cfg.Storage.Backend == storage.BackendPostgres || cfg.Broadcast.Backend == broadcast.BackendPostgres
	needsNATS := cfg.Storage.Backend == storage.BackendNATS || cfg.Broadcast.Backend == broadcast.BackendNATS

	dbCfg := dbconfig.NewConfigFromEnv()
	var db *sql.DB
	if needsDB {
		var err error
		if db, err = setupDatabase(dbCfg); err != nil {
			return nil, err
		}
		services.onClose(db.Close)
	}

	var nc *nats.Conn
	if needsNATS {
		var err error
		nc, err = broadcast.ConnectNATS(broadcast.NATSConfig{
			URL:           cfg.NATS.URL,
			Name:          "altarpro-server",
			MaxReconnects: cfg.NATS.MaxReconnects,
			ReconnectWait: cfg.NATS.ReconnectWait,
		})
		if err != nil {
			services.Close()
			return nil, err
		}
		services.onClose(func() error { nc.Close(); return nil })
	}

	kv, err := storage.Open(ctx, storage.Options{
		Backend:  cfg.Storage.Backend,
		Path:     cfg.Storage.Path,
		DB:       db,
		NATSConn: nc,
		Bucket:   cfg.NATS.KVBucket,
	})
	if err != nil {
		services.Close()
		return nil, err
	}
	store := state.NewStore(kv,
		state.WithNamespace(cfg.Storage.Namespace),
		state.WithFallbackHook(func(slice state.Slice) {
			collector.RecordStorageFallback(string(slice))
		}),
	)

	// The hub greets new presenters from the controller built below.
	var controller *session.Controller
	hubConfig := gateway.DefaultConnectionConfig()
	hubConfig.DefaultChannel = cfg.Broadcast.Channel
	hubConfig.Greeting = func(channel string) [][]byte {
		if controller == nil || channel != cfg.Broadcast.Channel {
			return nil
		}
		return snapshotFrames(controller.Snapshot())
	}
	hub := gateway.NewHub(hubConfig, collector)

	transports := []broadcast.Transport{hub}
	switch cfg.Broadcast.Backend {
	case broadcast.BackendNATS, broadcast.BackendPostgres:
		transports = append(transports, broadcast.Open(broadcast.Options{
			Backend:  cfg.Broadcast.Backend,
			NATSConn: nc,
			DB:       db,
			PGNotify: broadcast.PGNotifyConfig{
				DatabaseURL:  dbCfg.DSN(),
				PingInterval: cfg.Broadcast.PingInterval,
			},
		}))
	case broadcast.BackendWebSocket:
		log.Warn().Msg("websocket broadcast is for presenters; the server publishes through its own hub")
	}
	transport := broadcast.NewInstrumented(broadcast.NewFanout(transports...), collector)

	controller, err = session.New(session.RoleOperator, store, transport,
		session.WithChannel(cfg.Broadcast.Channel),
		session.WithMetrics(collector),
	)
	if err != nil {
		services.Close()
		return nil, err
	}
	services.onClose(controller.Close)
	if err := controller.Start(ctx); err != nil {
		services.Close()
		return nil, err
	}
	services.Controller = controller

	bible := biblia.NewBibliaClient(cfg.Bible.BaseURL)
	bible.SetTimeout(cfg.Bible.Timeout)

	var catalog gateway.SongCatalog
	if cfg.Catalog.Enabled {
		pool, err := songs.Connect(ctx, dbCfg.DSN())
		if err != nil {
			log.Warn().Err(err).Msg("song catalog unavailable")
		} else {
			services.onClose(func() error { pool.Close(); return nil })
			catalog = songs.NewApp(songs.NewRepository(pool))
		}
	}

	resolver := setupResolver(ctx, cfg.Media)

	operator := gateway.NewOperatorService(controller, bible, catalog, resolver)
	services.Gateway = gateway.NewService(hub, controller, resolver, operator)
	if db != nil {
		services.Gateway.Health().SetDatabase(db)
	}
	if nc != nil {
		services.Gateway.Health().SetNATS(nc)
	}
	return services, nil
}

func setupResolver(ctx context.Context, cfg config.MediaConfig) *media.Resolver {
	if cfg.S3Region == "" && cfg.AWSProfile == "" {
		return media.NewResolver(nil, cfg.PresignTTL)
	}
	resolver, err := media.NewS3Resolver(ctx, media.Config{
		Region:     cfg.S3Region,
		Profile:    cfg.AWSProfile,
		PresignTTL: cfg.PresignTTL,
	})
	if err != nil {
		log.Warn().Err(err).Msg("s3 backgrounds unavailable")
		return media.NewResolver(nil, cfg.PresignTTL)
	}
	return resolver
}

// snapshotFrames encodes snap as the three messages a presenter needs to
// catch up.
func snapshotFrames(snap state.Snapshot) [][]byte {
	settings, errS := broadcast.EncodeSettings(snap.Settings)
	deck, errD := broadcast.EncodeDeck(snap.Deck)
	index, errI := broadcast.EncodeIndex(snap.RawIndex)
	if err := errors.Join(errS, errD, errI); err != nil {
		log.Error().Err(err).Msg("failed to encode greeting")
		return nil
	}
	return [][]byte{settings, deck, index}
}
