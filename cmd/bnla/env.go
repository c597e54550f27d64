package main

import (
	"context"
	"path/filepath"

	"bnla/adapters/db"
	"bnla/adapters/excel"
	"bnla/adapters/export"
	"bnla/app"
	"bnla/domain/model"
	"bnla/internal/config"
	"bnla/internal/logging"
	"bnla/ports"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

type globalFlags struct {
	envFile         string
	dataFile        string
	experimentsFile string
	save            bool
	saveDraws       bool
}

// env is the per-command wiring: configuration, logger and lazily opened store
type env struct {
	flags  *globalFlags
	cfg    *config.Config
	logger *zap.Logger
	store  *sqlx.DB
}

func (g *globalFlags) setup() (*env, error) {
	cfg, err := config.Load(g.envFile)
	if err != nil {
		return nil, err
	}
	if g.dataFile != "" {
		cfg.Data.File = g.dataFile
	}
	if g.experimentsFile != "" {
		cfg.Data.ExperimentsFile = g.experimentsFile
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}
	return &env{flags: g, cfg: cfg, logger: logger}, nil
}

func (e *env) close() {
	if e.store != nil {
		e.store.Close()
	}
	_ = e.logger.Sync()
}

// repository opens and migrates the configured database once
func (e *env) repository(ctx context.Context) (ports.ExperimentRepository, error) {
	if e.store == nil {
		store, err := db.OpenMigrated(ctx, e.cfg.Database, e.logger)
		if err != nil {
			return nil, err
		}
		e.store = store
	}
	return db.NewExperimentRepository(e.store), nil
}

// service loads the survey and builds an experiment service with the
// repository and draws writer requested by the global flags
func (e *env) service(ctx context.Context) (*app.ExperimentService, error) {
	ds, err := excel.NewDataReader(e.logger).Read(ctx, e.cfg.Data.File)
	if err != nil {
		return nil, err
	}
	opts := []app.Option{app.WithLogger(e.logger)}
	if e.flags.save {
		repo, err := e.repository(ctx)
		if err != nil {
			return nil, err
		}
		opts = append(opts, app.WithRepository(repo))
	}
	if e.flags.saveDraws {
		w, err := export.NewDrawsWriter(filepath.Join(e.cfg.Output.Dir, "draws"), e.cfg.Output.DrawsCodec)
		if err != nil {
			return nil, err
		}
		opts = append(opts, app.WithDrawsWriter(w))
	}
	return app.NewExperimentService(ds, e.cfg.Sampler, opts...), nil
}

func (e *env) specs(names []string) ([]model.Spec, error) {
	all, err := config.LoadExperiments(e.cfg.Data.ExperimentsFile)
	if err != nil {
		return nil, err
	}
	return config.SelectExperiments(all, names)
}

func (e *env) spec(name string) (model.Spec, error) {
	specs, err := e.specs([]string{name})
	if err != nil {
		return model.Spec{}, err
	}
	return specs[0], nil
}
