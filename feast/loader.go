// Package feast 从 Feast 在线存储读取实体特征，构造实体解析使用的 core.Dataset。
package feast

import (
	"context"
	"fmt"
	"strings"

	"github.com/rushteam/dedupekit/core"
	"github.com/rushteam/dedupekit/pkg/logger"
)

// DefaultLoadBatchSize 是每次 GetOnlineFeatures 请求的实体数
const DefaultLoadBatchSize = 200

// RecordLoader 按实体 ID 读取在线特征，每个实体一条记录。
//
// 字段名为特征名去掉 "feature_view:" 前缀后的部分，
// 若 Fields 中配置了映射则使用映射后的名称。
type RecordLoader struct {
	Client    Client
	Project   string
	EntityKey string
	Features  []string
	// Fields 特征名 -> 记录字段名（可选）
	Fields    map[string]string
	BatchSize int
}

// Load 读取 ids 对应的记录。所有特征均缺失的实体视为不存在，不出现在结果中。
func (l *RecordLoader) Load(ctx context.Context, ids []core.RecordID) (core.Dataset, error) {
	if l.EntityKey == "" {
		return nil, core.NewDomainError(core.ModuleStore, core.ErrorCodeInvalidInput, "feast: entity key is required")
	}
	if len(l.Features) == 0 {
		return nil, core.NewDomainError(core.ModuleStore, core.ErrorCodeInvalidInput, "feast: features are required")
	}
	size := l.BatchSize
	if size <= 0 {
		size = DefaultLoadBatchSize
	}

	data := make(core.Dataset, len(ids))
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		batch := ids[start:end]
		rows := make([]map[string]any, len(batch))
		for i, id := range batch {
			rows[i] = map[string]any{l.EntityKey: id}
		}
		resp, err := l.Client.GetOnlineFeatures(ctx, &GetOnlineFeaturesRequest{
			Features:   l.Features,
			EntityRows: rows,
			Project:    l.Project,
		})
		if err != nil {
			return nil, core.WrapDomainError(core.ModuleStore, core.ErrorCodeUnavailable, err, "feast: load %d entities", len(batch))
		}
		if len(resp.FeatureVectors) != len(batch) {
			return nil, fmt.Errorf("feast: expected %d feature vectors, got %d", len(batch), len(resp.FeatureVectors))
		}
		for i, fv := range resp.FeatureVectors {
			if rec := l.record(fv); rec != nil {
				data[batch[i]] = rec
			}
		}
	}
	logger.Debug("feast records loaded", "requested", len(ids), "found", len(data))
	return data, nil
}

func (l *RecordLoader) record(fv FeatureVector) core.Record {
	rec := make(core.Record, len(l.Features))
	present := false
	for _, name := range l.Features {
		v := fv.Values[name]
		if v != nil {
			present = true
		}
		rec[l.fieldName(name)] = v
	}
	if !present {
		return nil
	}
	return rec
}

func (l *RecordLoader) fieldName(feature string) string {
	if f, ok := l.Fields[feature]; ok {
		return f
	}
	if i := strings.LastIndexByte(feature, ':'); i >= 0 {
		return feature[i+1:]
	}
	return feature
}
