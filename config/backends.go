package config

import (
	"github.com/rushteam/dedupekit/core"
	"github.com/rushteam/dedupekit/feast"
	"github.com/rushteam/dedupekit/store"
)

// HashStore 按 store 配置创建存储后端
func (c *Config) HashStore() (core.HashStore, error) {
	switch c.Store.Type {
	case StoreRedis:
		return store.NewRedisStore(c.Store.Redis)
	case StoreMemory, "":
		return store.NewMemoryStore(), nil
	default:
		return nil, invalid("unsupported store %q", c.Store.Type)
	}
}

// DatasetStore 在配置的存储后端上创建 DatasetStore
func (c *Config) DatasetStore() (*store.DatasetStore, error) {
	kv, err := c.HashStore()
	if err != nil {
		return nil, err
	}
	return store.NewDatasetStore(kv, c.Store.Prefix), nil
}

// RecordLoader 按 feast 配置创建在线特征记录来源
func (c *Config) RecordLoader() (*feast.RecordLoader, error) {
	f := c.Feast
	if f.Endpoint == "" {
		return nil, invalid("feast.endpoint is required")
	}
	var opts []feast.ClientOption
	if f.Token != "" {
		opts = append(opts, feast.WithAuth(&feast.AuthConfig{Type: "static", Token: f.Token}))
	}
	client, err := feast.NewClient(f.Endpoint, f.Project, opts...)
	if err != nil {
		return nil, err
	}
	return &feast.RecordLoader{
		Client:    client,
		Project:   f.Project,
		EntityKey: f.EntityKey,
		Features:  f.Features,
		Fields:    f.Fields,
	}, nil
}
