package server

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"SignalGrid/internal/domain/repository"
	"SignalGrid/internal/service/fanout"
	"SignalGrid/internal/service/ratelimit"
	"SignalGrid/internal/usecase"
	"SignalGrid/pkg/config"
	xhttp "SignalGrid/pkg/http"
	pkgkafka "SignalGrid/pkg/kafka"
	applogger "SignalGrid/pkg/logger"
)

// Deps are the components the App starts and stops. Consumer, Journal and
// Limiter are optional.
type Deps struct {
	Config    *config.Config
	Logger    *applogger.Logger
	Store     repository.GridStore
	Persist   *usecase.WriteBehind
	Engine    *usecase.GridEngine
	Hub       *fanout.Hub
	Scheduler *usecase.SessionScheduler
	Consumer  *pkgkafka.Consumer
	Journal   repository.Journal
	Limiter   *ratelimit.Limiter
	HTTP      *xhttp.Server
}

// App encapsulates the entire application lifecycle.
type App struct {
	Deps
	log *applogger.Logger
	wg  sync.WaitGroup
}

// New creates a new App instance with all dependencies.
func New(d Deps) *App {
	l := d.Logger
	if l == nil {
		l = applogger.Nop()
	}
	return &App{Deps: d, log: l}
}

// Run starts the application and blocks until interrupted or the listener fails.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext is Run with a caller-owned context.
func (a *App) RunContext(ctx context.Context) error {
	loopCtx, cancelLoops := context.WithCancel(ctx)
	defer cancelLoops()

	// Grid must be loaded before the first viewer or signal arrives.
	a.Persist.Start()
	n := a.Engine.LoadFromStore(ctx)
	a.log.Info("grid ready", applogger.Int("records", n), applogger.String("store", a.Config.Store.Type))

	a.goLoop(func() { a.Hub.Run(loopCtx) })
	if a.Config.News.Enabled {
		if a.Config.News.APIKey == "" {
			a.log.Warn("news enabled without api key; fetches will fail")
		}
		a.goLoop(func() { a.Scheduler.Run(loopCtx) })
	}
	if a.Limiter != nil {
		a.goLoop(func() { a.pruneLimiter(loopCtx) })
	}

	if a.Consumer != nil {
		if err := a.Consumer.Start(); err != nil {
			a.log.Error("kafka consumer start", applogger.Error(err))
		} else {
			a.log.Info("kafka consumer started",
				applogger.Strings("brokers", a.Config.Kafka.Brokers),
				applogger.String("topic", a.Config.Kafka.SignalsTopic),
			)
		}
	}

	errc := a.HTTP.Start()

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
	case err, ok := <-errc:
		if ok && err != nil {
			a.log.Error("http server failed", applogger.Error(err))
			runErr = err
		}
	}

	cancelLoops()
	if err := a.shutdown(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func (a *App) goLoop(fn func()) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		fn()
	}()
}

func (a *App) pruneLimiter(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.Limiter.Prune(10 * time.Minute)
		}
	}
}

// shutdown stops intake first, then background loops, then drains pending
// writes before closing infrastructure clients.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.HTTP.Stop(ctx); err != nil {
		a.log.Error("http shutdown", applogger.Error(err))
		errs = append(errs, err)
	}
	if a.Consumer != nil {
		if err := a.Consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop", applogger.Error(err))
		}
	}

	a.wg.Wait()

	if err := a.Engine.Close(ctx); err != nil {
		a.log.Warn("pending grid writes not flushed", applogger.Error(err))
		errs = append(errs, err)
	}
	// The collector ships through the journal's producer.
	a.log.RemoveCollector()
	if a.Journal != nil {
		if err := a.Journal.Close(); err != nil {
			a.log.Warn("journal close", applogger.Error(err))
		}
	}
	if err := a.Store.Close(); err != nil {
		a.log.Warn("store close", applogger.Error(err))
	}

	a.log.Info("shutdown complete")
	return errors.Join(errs...)
}
