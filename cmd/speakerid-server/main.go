// Command speakerid-server is the composition root: it loads configuration,
// wires every domain service, and serves the HTTP+SSE API until a shutdown
// signal arrives.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"speakerid/internal/api"
	"speakerid/internal/audio"
	"speakerid/internal/clip"
	"speakerid/internal/confirm"
	"speakerid/internal/config"
	"speakerid/internal/identify"
	"speakerid/internal/logging"
	"speakerid/internal/meeting"
	"speakerid/internal/providers"
	"speakerid/internal/summary"
	"speakerid/internal/vectorstore"
	"speakerid/internal/voiceprint"
	"speakerid/internal/workerpool"
)

const shutdownTimeout = 30 * time.Second
const sessionSweepInterval = 5 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Logging isn't configured yet; a plain stderr line here is the only
		// honest option before config.LogLevel is known.
		os.Stderr.WriteString("failed to load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	logging.Setup(cfg.LogLevel)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatal().Err(err).Msg("failed to create data directory")
	}

	store, err := vectorstore.NewQdrantStore(cfg.QdrantURL, cfg.QdrantCollection)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to qdrant")
	}

	mirror, err := voiceprint.NewMirror(cfg.VoiceprintMirrorPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load voiceprint mirror")
	}

	toolkit := audio.NewToolkit(cfg.FFmpegBinary)

	vad, err := audio.NewVAD(audio.DefaultVADConfig(cfg.VADModelPath))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load VAD model")
	}
	defer vad.Close()

	extractor, err := audio.NewExtractor(audio.DefaultEmbeddingConfig(cfg.EmbeddingModelPath), vad)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load embedding model")
	}
	defer extractor.Close()

	registry := voiceprint.New(store, mirror, toolkit, vad, extractor)
	if count, err := registry.SyncFromStore(context.Background()); err != nil {
		log.Warn().Err(err).Msg("failed initial voiceprint mirror sync, continuing with the on-disk mirror")
	} else {
		log.Info().Int("count", count).Msg("voiceprint mirror synced from vector store at startup")
	}

	sessions := meeting.NewStore(time.Duration(cfg.SessionTTLSeconds) * time.Second)
	stopSweeper := make(chan struct{})
	sessions.RunSweeper(sessionSweepInterval, stopSweeper)
	defer close(stopSweeper)

	pool := workerpool.New(cfg.WorkerPoolSize)
	defer pool.Close()

	diarizer := providers.NewHTTPDiarizer(cfg.DiarizationProviderURL, cfg.DiarizationProviderKey)
	summarizer := providers.NewHTTPSummarizer(cfg.SummaryProviderURL, cfg.SummaryProviderKey)

	uploadDir := cfg.DataDir + "/tmp"
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		log.Fatal().Err(err).Msg("failed to create pipeline work directory")
	}

	pipeline := &identify.Pipeline{
		Diarizer:  diarizer,
		Toolkit:   toolkit,
		VAD:       vad,
		Extractor: extractor,
		Store:     store,
		Sessions:  sessions,
		Pool:      pool,
		WorkDir:   uploadDir,
	}

	confirmSvc := confirm.New(sessions, registry)
	clipSvc := clip.New(sessions, toolkit, vad, uploadDir)
	clipSvc.MaxDurationMs = cfg.ClipMaxDurationMS
	summarySvc := summary.New(sessions, summarizer)

	server := api.NewServer(pipeline, registry, sessions, confirmSvc, clipSvc, summarySvc, cfg.DataDir)

	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: server.Handler(),
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Msg("speakerid server listening")
		serveErr <- httpServer.ListenAndServe()
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	case <-sig:
		log.Info().Msg("shutdown signal received, draining in-flight requests")
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("shutdown timeout exceeded, forcing exit")
		}
	}
}
