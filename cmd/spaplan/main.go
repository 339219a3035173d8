package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"spaplan/internal/api"
	"spaplan/internal/catalog"
	"spaplan/internal/store"
)

func main() {
	var (
		addr        = flag.String("addr", ":8080", "HTTP bind address")
		dbPath      = flag.String("db", "spaplan.db", "SQLite DB path (use :memory: for an ephemeral registry)")
		catalogPath = flag.String("catalog", "", "YAML catalog file (built-in spa catalog if empty)")
		dayStart    = flag.String("day-start", "09:00", "day start anchor, HH:MM")
		slotMin     = flag.Int("slot", 15, "slot granularity in minutes")
		sweepExpr   = flag.String("sweep", "@every 10m", "cron schedule for the idle-board sweeper")
		boardTTL    = flag.Duration("board-ttl", 0, "drop boards idle for longer than this (0 disables sweeping)")
		debug       = flag.Bool("debug", false, "enable pprof debug routes")
	)
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})

	startHour, startMin, err := parseDayStart(*dayStart)
	if err != nil {
		log.Fatal().Err(err).Msg("parse day-start")
	}

	cat := catalog.Default()
	if *catalogPath != "" {
		cat, err = catalog.LoadFile(*catalogPath)
		if err != nil {
			log.Fatal().Err(err).Msg("load catalog")
		}
		log.Info().Str("path", *catalogPath).Int("workers", len(cat.Workers)).Int("services", len(cat.Services)).Msg("catalog loaded")
	}

	dsn := fmt.Sprintf("file:%s?cache=shared&mode=rwc&_pragma=journal_mode(WAL)", *dbPath)
	if *dbPath == ":memory:" {
		dsn = "file::memory:?cache=shared"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("open db")
	}
	defer db.Close()
	db.SetMaxOpenConns(1) // SQLite single writer

	if err := store.EnsureSchema(db); err != nil {
		log.Fatal().Err(err).Msg("ensure schema")
	}

	registry := store.NewRegistry(db, cat)
	if n, err := registry.Load(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("load boards")
	} else if n > 0 {
		log.Info().Int("boards", n).Msg("loaded persisted boards")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *boardTTL > 0 {
		sweeper := store.NewSweeper(registry, *boardTTL)
		if err := sweeper.Start(ctx, *sweepExpr); err != nil {
			log.Fatal().Err(err).Msg("start sweeper")
		}
		defer sweeper.Stop()
	}

	handler := api.NewServer(registry, cat, api.Config{
		DayStartHour:   startHour,
		DayStartMinute: startMin,
		SlotMin:        *slotMin,
		EnableDebug:    *debug,
	})
	srv := &http.Server{Addr: *addr, Handler: handler}
	go func() {
		log.Info().Str("addr", *addr).Msg("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	log.Info().Msg("shutting down")
	cancel()
	ctxTimeout, cancelTimeout := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelTimeout()
	_ = srv.Shutdown(ctxTimeout)
}

func parseDayStart(s string) (hour, minute int, err error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("want HH:MM, got %q", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("bad hour in %q", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("bad minute in %q", s)
	}
	return hour, minute, nil
}
