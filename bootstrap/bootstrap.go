package bootstrap

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/fulldump/box"
	"github.com/rs/zerolog"

	"github.com/fulldump/rowmodel/api"
	"github.com/fulldump/rowmodel/configuration"
	"github.com/fulldump/rowmodel/database"
	"github.com/fulldump/rowmodel/service"
)

var VERSION = "dev"

// Bootstrap wires the database and the HTTP API. start blocks until stop is
// called or the process is signaled.
func Bootstrap(c *configuration.Configuration, log zerolog.Logger) (start, stop func(), err error) {

	db := database.NewDatabase(&database.Config{
		Dir:    c.Dir,
		Logger: log,
	})

	b := api.Build(service.NewService(db), VERSION)
	if c.EnableCompression {
		b.WithInterceptors(api.Compression)
	}
	b.WithInterceptors(
		api.AccessLog(log.With().Str("component", "access").Logger()),
		api.InterceptorUnavailable(db),
		api.RecoverFromPanic,
		api.PrettyErrorInterceptor,
	)

	s := &http.Server{
		Addr:    c.HttpAddr,
		Handler: box.Box2Http(b),
	}

	ln, err := net.Listen("tcp", c.HttpAddr)
	if err != nil {
		return nil, nil, err
	}
	log.Info().Str("addr", ln.Addr().String()).Msg("listening")

	once := &sync.Once{}
	stop = func() {
		once.Do(func() {
			db.Stop()
			s.Shutdown(context.Background())
		})
	}

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-signalChan
		log.Info().Str("signal", sig.String()).Msg("signal received")
		stop()
	}()

	start = func() {

		wg := &sync.WaitGroup{}

		wg.Add(1)
		go func() {
			defer wg.Done()
			err := db.Start()
			if err != nil {
				log.Error().Err(err).Msg("database")
			}
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Serve(ln)
			if err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("http server")
			}
		}()

		wg.Wait()
	}

	return
}
