package TreeDB

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/nickyhof/TreeDB/config"
	"github.com/nickyhof/TreeDB/core"
	"github.com/nickyhof/TreeDB/db"
	"github.com/nickyhof/TreeDB/ps"
)

type Instance struct {
	Persistence *ps.Persistence
	Config      config.Config
}

// Open wraps an open repository handle with the default config.
func Open(persistence *ps.Persistence) *Instance {
	return &Instance{
		Persistence: persistence,
		Config:      config.Default(),
	}
}

// Init creates a repository in dir and writes cfg as its config file.
func Init(ctx context.Context, dir string, cfg config.Config, log logrus.FieldLogger) (*Instance, error) {
	cfg.Normalize()
	opts, err := options(cfg, log)
	if err != nil {
		return nil, err
	}
	persistence, err := ps.Init(ctx, dir, opts)
	if err != nil {
		return nil, err
	}
	if err := cfg.Save(config.Path(persistence.Dir())); err != nil {
		persistence.Close()
		return nil, err
	}
	return &Instance{Persistence: persistence, Config: cfg}, nil
}

// OpenDir opens the repository in dir with its config file.
func OpenDir(ctx context.Context, dir string, log logrus.FieldLogger) (*Instance, error) {
	cfg, err := config.Load(config.Path(dir))
	if err != nil {
		return nil, err
	}
	opts, err := options(cfg, log)
	if err != nil {
		return nil, err
	}
	persistence, err := ps.Open(ctx, dir, opts)
	if err != nil {
		return nil, err
	}
	return &Instance{Persistence: persistence, Config: cfg}, nil
}

func options(cfg config.Config, log logrus.FieldLogger) (ps.Options, error) {
	storage, err := cfg.StorageOptions()
	if err != nil {
		return ps.Options{}, err
	}
	return ps.Options{Logger: log, Identity: cfg.User, Storage: storage}, nil
}

// Engine returns an engine on its own session of the repository, so engines
// can check out branches independently.
func (instance *Instance) Engine(identity core.Identity) *db.Engine {
	engine := db.NewEngine(instance.Persistence.Session(), identity)
	if s3 := instance.Config.Storage.S3; s3.AccessKey != "" || s3.Region != "" || s3.Endpoint != "" {
		engine.Remote = &db.S3Config{
			AccessKey: s3.AccessKey,
			SecretKey: s3.SecretKey,
			Region:    s3.Region,
			Endpoint:  s3.Endpoint,
		}
	}
	return engine
}

func (instance *Instance) Close() error {
	return instance.Persistence.Close()
}
