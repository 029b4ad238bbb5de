// Package dedupekit 是一个实体解析工具包：在一个数据集内去重、在两个数据集之间链接记录、
// 以及把待匹配记录检索到已索引的规范数据集（gazetteer）。
//
// 设计要点：
// - Pipeline-first: 一次匹配由 分块 -> 打分 -> 聚类 三个阶段串联
// - 主动学习: 通过人工标注不确定的候选对，同时学习分类器与分块规则
// - 可扩展: 变量类型、谓词、分类器均通过注册表插拔
package dedupekit

import (
	"github.com/rushteam/dedupekit/core"
	"github.com/rushteam/dedupekit/feature"
	"github.com/rushteam/dedupekit/matcher"
	"github.com/rushteam/dedupekit/pipeline"
)

// 轻量 facade：便于用户直接 import "dedupekit" 使用核心抽象。
type (
	Record        = core.Record
	RecordID      = core.RecordID
	Dataset       = core.Dataset
	Cluster       = core.Cluster
	Link          = core.Link
	SearchResult  = core.SearchResult
	TrainingPairs = core.TrainingPairs
	Variable      = feature.Variable
	Trainable     = pipeline.Trainable
	Kind          = pipeline.Kind
)

const (
	KindBlock   = pipeline.KindBlock
	KindScore   = pipeline.KindScore
	KindCluster = pipeline.KindCluster
	KindTrain   = pipeline.KindTrain
)

const (
	OneToOne   = matcher.ConstraintOneToOne
	ManyToOne  = matcher.ConstraintManyToOne
	ManyToMany = matcher.ConstraintManyToMany
)

var (
	NewDedupe           = matcher.NewDedupe
	NewRecordLink       = matcher.NewRecordLink
	NewGazetteer        = matcher.NewGazetteer
	NewStaticDedupe     = matcher.NewStaticDedupe
	NewStaticRecordLink = matcher.NewStaticRecordLink
	NewStaticGazetteer  = matcher.NewStaticGazetteer
)
