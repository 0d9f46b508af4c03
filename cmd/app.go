package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/nibzard/ordo/internal/config"
	"github.com/nibzard/ordo/internal/logging"
	"github.com/nibzard/ordo/internal/orderindex"
	"github.com/nibzard/ordo/internal/store/dynamostore"
	"github.com/nibzard/ordo/internal/store/filestore"
	"github.com/nibzard/ordo/internal/store/memstore"
	"github.com/nibzard/ordo/internal/tasks"
	"github.com/nibzard/ordo/internal/todo"
)

// app carries the resolved configuration and builds the task service on
// first use.
type app struct {
	cfg     *config.Config
	sources *config.ConfigWithSources
	out     io.Writer
	logger  *log.Logger

	svc     *tasks.Service
	closers []func() error
}

func newApp(cws *config.ConfigWithSources, out io.Writer) *app {
	cfg := cws.Config
	return &app{
		cfg:     cfg,
		sources: cws,
		out:     out,
		logger:  logging.FromConfig(os.Stderr, cfg.LogLevel, cfg.LogFormat, cfg.LogTimestamps, cfg.LogCaller),
	}
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close", "err", err)
		}
	}
	a.closers = nil
}

// storeLocation names the backing store, for messages and log namespaces.
func (a *app) storeLocation() string {
	switch a.cfg.Store {
	case config.StoreMemory:
		return "memory"
	case config.StoreDynamoDB:
		return "dynamodb:" + a.cfg.DynamoDB.Table
	default:
		return a.cfg.TodoFile
	}
}

func (a *app) remote() filestore.Remote {
	r := a.cfg.Remote
	return filestore.Remote{
		Endpoint:  r.Endpoint,
		AccessKey: r.AccessKey,
		SecretKey: r.SecretKey,
		Region:    r.Region,
		Secure:    r.Secure,
	}
}

// openStore builds the repository selected by the store setting.
func (a *app) openStore(ctx context.Context) (tasks.Repository, error) {
	switch a.cfg.Store {
	case config.StoreMemory:
		return a.openMemory()
	case config.StoreDynamoDB:
		ddb := a.cfg.DynamoDB
		return dynamostore.Open(ctx, dynamostore.Config{
			Table:    ddb.Table,
			Region:   ddb.Region,
			Endpoint: ddb.Endpoint,
		}, dynamostore.WithWriteRate(ddb.WriteRate), dynamostore.WithLogger(a.logger))
	default:
		backend, err := filestore.Open(a.cfg.TodoFile, a.remote())
		if err != nil {
			return nil, err
		}
		return filestore.New(backend,
			filestore.WithLogger(a.logger),
			filestore.WithValidation(todo.ValidationOptions{SchemaPath: a.cfg.SchemaFile}),
		), nil
	}
}

// openMemory returns an in-memory store seeded from the local task file when
// one exists. Changes are not written back.
func (a *app) openMemory() (tasks.Repository, error) {
	path := a.cfg.TodoFile
	if path == "" || strings.HasPrefix(path, filestore.ObjectScheme) {
		return memstore.New(), nil
	}
	f, err := todo.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return memstore.New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("seed memory store: %w", err)
	}
	a.logger.Debug("memory store seeded", "path", path, "tasks", len(f.Tasks))
	return memstore.Load(f.Tasks)
}

// service returns the task service, building it on first call. Extra
// options reach the order index service.
func (a *app) service(ctx context.Context, opts ...orderindex.Option) (*tasks.Service, error) {
	if a.svc != nil {
		return a.svc, nil
	}
	if err := a.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	repo, err := a.openStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", a.cfg.Store, err)
	}
	opts = append([]orderindex.Option{orderindex.WithLogger(a.logger)}, opts...)
	order, err := orderindex.New(repo, a.cfg.Space(), opts...)
	if err != nil {
		return nil, err
	}
	a.svc = tasks.NewService(repo, order, tasks.WithLogger(a.logger))
	return a.svc, nil
}
