package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/emrgen/manuscript/internal/cache"
	"github.com/emrgen/manuscript/internal/compress"
	"github.com/emrgen/manuscript/internal/config"
	"github.com/emrgen/manuscript/internal/job"
	"github.com/emrgen/manuscript/internal/jobs"
	"github.com/emrgen/manuscript/internal/queue"
	"github.com/emrgen/manuscript/internal/registry"
	"github.com/emrgen/manuscript/internal/service"
	"github.com/emrgen/manuscript/internal/store"
	"github.com/emrgen/manuscript/internal/transport"
)

// Server represents the server
type Server struct {
	httpPort string
}

// NewServer creates a new server
func NewServer(httpPort string) *Server {
	return &Server{httpPort: httpPort}
}

// Start starts the server
func (s *Server) Start() {
	if err := Start(s.httpPort); err != nil {
		logrus.Fatalf("error starting server: %v", err)
	}
}

// Start wires the stores, services and routes and serves until interrupted.
func Start(httpPort string) error {
	httpPort = ":" + httpPort

	cnf := config.LoadConfig()
	rdb := config.GetDb(cnf)

	rl, err := net.Listen("tcp", httpPort)
	if err != nil {
		return err
	}

	docStore := store.NewGormStore(rdb)
	if err := docStore.Migrate(); err != nil {
		return err
	}

	var contentCache cache.ContentCache = cache.NewNop()
	if cnf.RedisAddr != "" {
		contentCache, err = cache.NewRedis(cnf.RedisAddr)
		if err != nil {
			return err
		}
	}

	var docQueue queue.DocumentQueue = queue.NewNop()
	if cnf.KafkaBrokers != "" {
		docQueue, err = queue.NewKafkaQueue(cnf.KafkaBrokers, "manuscript-server")
		if err != nil {
			return err
		}
	}
	defer docQueue.Close()

	compressor, err := compress.FromName(cnf.Compression)
	if err != nil {
		return err
	}

	liveDocs := registry.New()
	documents := service.NewDocumentService(compressor, docStore, contentCache, docQueue, liveDocs)
	snapshots := service.NewSnapshotService(compressor, docStore, liveDocs)
	restore := service.NewRestoreService(documents, snapshots, liveDocs)
	hub := transport.NewHub(liveDocs, documents)

	// snapshot retention and the live-document flush backstop run
	// in-process on the cron runner
	runner := jobs.NewTaskExecutor(
		job.NewSnapshotCleaner(docStore),
		jobs.NewFlushTask("@every 30s", liveDocs, documents),
	)
	runner.Run()
	defer runner.Stop()

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"}, // All origins are allowed
		AllowedMethods:   []string{"GET", "POST", "DELETE", "PUT"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-User-ID"},
		AllowCredentials: true,
	})

	restServer := &http.Server{
		Addr:    httpPort,
		Handler: c.Handler(NewRouter(documents, snapshots, restore, hub, cnf.SyncToken)),
	}

	// make sure to wait for the server to stop before exiting
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		logrus.Info("starting rest server on: ", httpPort)
		if err := restServer.Serve(rl); err != nil {
			if !errors.Is(err, http.ErrServerClosed) {
				logrus.Errorf("error starting rest server: %v", err)
			}
		}
		logrus.Infof("rest server stopped")
	}()

	time.Sleep(1 * time.Second)
	logrus.Infof("Press Ctrl+C to stop the server")

	// listen for interrupt signal to gracefully shut down the server
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, unix.SIGTERM, unix.SIGINT, unix.SIGTSTP)
	<-sigs
	// clean Ctrl+C output
	fmt.Println()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := restServer.Shutdown(ctx); err != nil {
		logrus.Errorf("error stopping rest server: %v", err)
	}

	wg.Wait()

	return nil
}
