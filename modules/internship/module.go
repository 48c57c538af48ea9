package internship

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/fit-portal/placement/modules/internship/handlers"
	"github.com/fit-portal/placement/modules/internship/infrastructure/cache"
	"github.com/fit-portal/placement/modules/internship/infrastructure/memory"
	"github.com/fit-portal/placement/modules/internship/infrastructure/persistence"
	"github.com/fit-portal/placement/modules/internship/presentation/controllers"
	"github.com/fit-portal/placement/modules/internship/services"
	"github.com/fit-portal/placement/pkg/application"
	"github.com/fit-portal/placement/pkg/configuration"
	"github.com/fit-portal/placement/pkg/outbox"
)

type ModuleOptions struct {
	StoreBackend   string
	DatabaseDSN    string
	StudentRecords configuration.StudentRecordsOptions
	QueueCache     configuration.QueueCacheOptions
	Outbox         configuration.OutboxOptions
	MaxRanks       int
	ActorIDHeader  string
	Logger         *logrus.Logger
	// Clock overrides the service clock; nil means UTC wall time.
	Clock services.Clock
}

func OptionsFrom(conf *configuration.Configuration) ModuleOptions {
	return ModuleOptions{
		StoreBackend:   conf.StoreBackend,
		DatabaseDSN:    conf.Database.Opts,
		StudentRecords: conf.StudentRecords,
		QueueCache:     conf.QueueCache,
		Outbox:         conf.Outbox,
		MaxRanks:       conf.PreferenceMaxRanks,
		ActorIDHeader:  conf.ActorIDHeader,
		Logger:         conf.Logger(),
	}
}

func NewModule(opts ModuleOptions) *Module {
	return &Module{opts: opts}
}

type Module struct {
	opts     ModuleOptions
	memory   *memory.Store
	postgres *persistence.Store
	closers  []io.Closer
}

func (m *Module) Name() string {
	return "internship"
}

// Memory returns the in-process store when the module runs on the memory
// backend, nil otherwise.
func (m *Module) Memory() *memory.Store {
	return m.memory
}

func (m *Module) Register(app application.Application) error {
	logger := m.opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	log := logger.WithField("module", m.Name())
	bus := app.EventPublisher()

	var repos services.Repositories
	switch m.opts.StoreBackend {
	case "memory":
		m.memory = memory.New(bus)
		repos = m.memory.Repositories()
	case "", "postgres":
		var err error
		if repos, err = m.openPostgres(app, log); err != nil {
			return err
		}
	default:
		return fmt.Errorf("internship: unknown store backend %q", m.opts.StoreBackend)
	}

	queueCache, err := m.queueCache(log)
	if err != nil {
		return err
	}

	clock := m.opts.Clock
	periods := services.NewPeriodService(repos, clock)
	capacity := services.NewCapacityService(repos, clock)
	assignments := services.NewAssignmentService(repos, periods, capacity, clock)
	preferences := services.NewPreferenceService(repos, periods, m.opts.MaxRanks, clock)
	decisions := services.NewDecisionService(repos, periods, capacity, clock)
	queue := services.NewReviewQueueService(repos, queueCache)

	app.RegisterServices(periods, capacity, assignments, preferences, decisions, queue)
	handlers.RegisterPlacementEventHandler(bus, queue, log)
	if m.postgres != nil {
		// The relay hands each row to one instance only; local commits
		// invalidate here without waiting for it.
		m.postgres.OnCommit(handlers.InvalidateOnCommit(queue))
	}

	app.RegisterControllers(
		controllers.NewPlacementAPIController(app, m.opts.ActorIDHeader),
		controllers.NewHealthController(app),
	)
	return nil
}

func (m *Module) openPostgres(app application.Application, log *logrus.Entry) (services.Repositories, error) {
	pool := app.DB()
	if pool == nil {
		return services.Repositories{}, errors.New("internship: postgres backend requires a pool")
	}
	table, err := outbox.ParseIdentifier(m.opts.Outbox.RelayTable)
	if err != nil {
		return services.Repositories{}, fmt.Errorf("internship: outbox table: %w", err)
	}

	dsn := m.opts.StudentRecords.DSN
	if dsn == "" {
		dsn = m.opts.DatabaseDSN
	}
	students, err := persistence.OpenStudentDirectory(dsn, m.opts.StudentRecords.Table)
	if err != nil {
		return services.Repositories{}, err
	}
	m.closers = append(m.closers, students)
	store := persistence.NewStore(pool, table, students)
	m.postgres = store

	if m.opts.Outbox.RelayEnabled {
		relay, err := outbox.NewRelay(pool, table, handlers.NewDispatcher(app.EventPublisher()), outbox.RelayOptions{
			PollInterval:    m.opts.Outbox.RelayPollInterval,
			BatchSize:       m.opts.Outbox.RelayBatchSize,
			LockTTL:         m.opts.Outbox.RelayLockTTL,
			MaxAttempts:     m.opts.Outbox.RelayMaxAttempts,
			LastErrorMaxLen: m.opts.Outbox.LastErrorMaxBytes,
			DispatchTimeout: m.opts.Outbox.RelayDispatchTimeout,
			Logger:          log.WithField("component", "outbox").WithField("table", outbox.TableLabel(table)),
		})
		if err != nil {
			return services.Repositories{}, err
		}
		app.RegisterWorkers(&relayWorker{relay: relay, table: outbox.TableLabel(table)})
	} else {
		log.Info("internship: outbox relay disabled")
	}
	return store.Repositories(), nil
}

func (m *Module) queueCache(log *logrus.Entry) (services.QueueCache, error) {
	switch m.opts.QueueCache.Backend {
	case "none":
		return services.NewNoopQueueCache(), nil
	case "redis":
		c, err := cache.OpenRedisQueueCache(m.opts.QueueCache.RedisURL, m.opts.QueueCache.TTL, log)
		if err != nil {
			return nil, err
		}
		m.closers = append(m.closers, c)
		return c, nil
	default:
		return services.NewMemoryQueueCache(m.opts.QueueCache.TTL), nil
	}
}

// Close releases the connections opened by Register.
func (m *Module) Close() error {
	var errs []error
	for i := len(m.closers) - 1; i >= 0; i-- {
		errs = append(errs, m.closers[i].Close())
	}
	m.closers = nil
	return errors.Join(errs...)
}

type relayWorker struct {
	relay *outbox.Relay
	table string
}

func (w *relayWorker) Name() string {
	return "outbox-relay:" + w.table
}

func (w *relayWorker) Run(ctx context.Context) error {
	return w.relay.Run(ctx)
}
