// Command presenter runs a headless presenter window: it follows the
// operator's broadcasts and logs every slide it would show.
package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/altarpro/altarpro/go/internal/config"
	"github.com/altarpro/altarpro/go/internal/dbconfig"
	"github.com/altarpro/altarpro/go/internal/presentation/broadcast"
	"github.com/altarpro/altarpro/go/internal/presentation/session"
	"github.com/altarpro/altarpro/go/internal/presentation/state"
	"github.com/altarpro/altarpro/go/internal/presentation/storage"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	zerolog.SetGlobalLevel(cfg.Log.ZerologLevel())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbCfg := dbconfig.NewConfigFromEnv()
	var db *sql.DB
	if cfg.Storage.Backend == storage.BackendPostgres || cfg.Broadcast.Backend == broadcast.BackendPostgres {
		db, err = sql.Open("postgres", dbCfg.DSN())
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()
	}

	var nc *nats.Conn
	if cfg.Storage.Backend == storage.BackendNATS || cfg.Broadcast.Backend == broadcast.BackendNATS {
		nc, err = broadcast.ConnectNATS(broadcast.NATSConfig{
			URL:           cfg.NATS.URL,
			Name:          "altarpro-presenter",
			MaxReconnects: cfg.NATS.MaxReconnects,
			ReconnectWait: cfg.NATS.ReconnectWait,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to NATS")
		}
		defer nc.Close()
	}

	kv, err := storage.Open(ctx, storage.Options{
		Backend:  cfg.Storage.Backend,
		Path:     cfg.Storage.Path,
		DB:       db,
		NATSConn: nc,
		Bucket:   cfg.NATS.KVBucket,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open storage")
	}
	store := state.NewStore(kv, state.WithNamespace(cfg.Storage.Namespace))

	if cfg.Broadcast.Backend == broadcast.BackendMemory {
		log.Warn().Msg("memory broadcast only reaches this process; use websocket, nats or postgres")
	}

	// Messages missed while a transport was disconnected are recovered
	// from storage.
	var current atomic.Pointer[session.Controller]
	reload := func() {
		if c := current.Load(); c != nil {
			c.Reload(ctx)
		}
	}

	wsCfg := broadcast.DefaultWebSocketConfig()
	wsCfg.URL = cfg.Broadcast.GatewayURL
	wsCfg.Channel = cfg.Broadcast.Channel
	wsCfg.OnReconnect = reload

	transport := broadcast.Open(broadcast.Options{
		Backend:  cfg.Broadcast.Backend,
		NATSConn: nc,
		DB:       db,
		PGNotify: broadcast.PGNotifyConfig{
			DatabaseURL:  dbCfg.DSN(),
			PingInterval: cfg.Broadcast.PingInterval,
			OnReconnect:  reload,
		},
		WebSocket: wsCfg,
	})

	controller, err := session.New(session.RolePresenter, store, transport, session.WithChannel(cfg.Broadcast.Channel))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create presenter")
	}
	defer controller.Close()
	current.Store(controller)

	cancelWatch := controller.Watch(logSlide)
	defer cancelWatch()

	if err := controller.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start presenter")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Str("window_id", controller.ID()).Msg("presenter shutting down")
}

func logSlide(snap state.Snapshot) {
	slide, ok := snap.CurrentSlide()
	if !ok {
		log.Info().Str("phase", string(snap.Phase())).Msg("nothing on screen")
		return
	}

	event := log.Info().
		Str("kind", string(slide.Kind)).
		Str("label", slide.Label).
		Int("slide", slide.Position+1).
		Int("total", slide.Total)

	switch slide.Kind {
	case state.KindBible:
		texts := make([]string, 0, len(slide.Verses))
		for _, v := range slide.Verses {
			texts = append(texts, v.N+" "+v.T)
		}
		event = event.Str("text", strings.Join(texts, " "))
	case state.KindSongLyrics:
		event = event.Str("text", strings.Join(slide.Lines, " / "))
	case state.KindSongVideo:
		event = event.Str("video", slide.VideoURL)
	}
	event.Msg("showing slide")
}
