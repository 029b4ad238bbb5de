package matcher

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/rushteam/dedupekit/blocking"
	"github.com/rushteam/dedupekit/cluster"
	"github.com/rushteam/dedupekit/core"
	"github.com/rushteam/dedupekit/feature"
	"github.com/rushteam/dedupekit/pkg/logger"
	"github.com/rushteam/dedupekit/score"
)

// gazetteerOps 是 gazetteer 能力：持久化的规范数据集索引，反复用待匹配记录查询。
type gazetteerOps struct {
	*base

	mu    sync.Mutex
	index *blocking.Index
}

func newGazetteerOps(b *base) *gazetteerOps {
	g := &gazetteerOps{base: b}
	b.onRules = g.rebuild
	return g
}

// rebuild 在规则变化后用新规则重建索引，保留已索引的记录。
func (g *gazetteerOps) rebuild(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.index == nil {
		return nil
	}
	records := g.index.Records()
	if err := g.index.Close(); err != nil {
		return err
	}
	g.index = nil
	if len(records) == 0 {
		return nil
	}
	ix, err := blocking.NewIndex(g.blocker, g.opts.TempDir)
	if err != nil {
		return err
	}
	if err := ix.Index(ctx, records); err != nil {
		_ = ix.Close()
		return err
	}
	g.index = ix
	logger.Info("gazetteer index rebuilt", "records", len(records))
	return nil
}

func (g *gazetteerOps) ensureIndex() (*blocking.Index, error) {
	if err := g.requireBlocker(); err != nil {
		return nil, err
	}
	if g.index == nil {
		ix, err := blocking.NewIndex(g.blocker, g.opts.TempDir)
		if err != nil {
			return nil, err
		}
		g.index = ix
	}
	return g.index, nil
}

// Index 把规范记录加入索引；已索引的 ID 被替换。
func (g *gazetteerOps) Index(ctx context.Context, data core.RecordStore) error {
	if err := feature.CheckStore(g.dm, data); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	ix, err := g.ensureIndex()
	if err != nil {
		return err
	}
	return ix.Index(ctx, data)
}

// Unindex 从索引中移除记录，未索引的 ID 被忽略。
func (g *gazetteerOps) Unindex(ctx context.Context, data core.RecordStore) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.index == nil {
		return nil
	}
	return g.index.Unindex(ctx, data)
}

// Indexed 返回已索引的规范记录数
func (g *gazetteerOps) Indexed() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.index == nil {
		return 0
	}
	return g.index.Len()
}

// Blocks 为每条有候选的待匹配记录返回一个分块，按查询 ID 升序。调用方必须 Close 游标。
func (g *gazetteerOps) Blocks(ctx context.Context, messy core.RecordStore) (core.BlockIterator, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ix, err := g.ensureIndex()
	if err != nil {
		return nil, err
	}
	return ix.Blocks(ctx, messy)
}

// ScoreBlocks 为分块打分并关闭 blocks；输出分块与输入一一对应，分块内保持候选顺序。
func (g *gazetteerOps) ScoreBlocks(ctx context.Context, blocks core.BlockIterator, messy core.RecordStore, threshold float64) ([]score.Block, error) {
	defer blocks.Close()
	g.mu.Lock()
	var canonical core.RecordStore = core.Dataset{}
	if g.index != nil {
		canonical = g.index
	}
	g.mu.Unlock()
	s := &score.BlockScorer{
		DataModel:  g.dm,
		Classifier: g.clf,
		Left:       messy,
		Right:      canonical,
		Threshold:  threshold,
		Workers:    g.opts.NumCores,
	}
	return s.ScoreBlocks(ctx, blocks)
}

// ManyToN 为每个分块取 >= threshold 的前 nMatches 个匹配，nMatches <= 0 表示不限。
func (g *gazetteerOps) ManyToN(scored []score.Block, threshold float64, nMatches int) []core.SearchResult {
	return cluster.ManyToN(scored, threshold, nMatches)
}

// Search 为每条待匹配记录返回恰好一个结果（没有候选时 Matches 为空），按查询 ID 升序。
func (g *gazetteerOps) Search(ctx context.Context, messy core.RecordStore, threshold float64, nMatches int) ([]core.SearchResult, error) {
	if err := feature.CheckStore(g.dm, messy); err != nil {
		return nil, err
	}
	run := newRunID()
	start := time.Now()
	blocks, err := g.Blocks(ctx, messy)
	if err != nil {
		return nil, err
	}
	scored, err := g.ScoreBlocks(ctx, blocks, messy, threshold)
	if err != nil {
		return nil, err
	}
	found := make(map[core.RecordID]core.SearchResult, len(scored))
	for _, r := range g.ManyToN(scored, threshold, nMatches) {
		found[r.QueryID] = r
	}
	ids := messy.IDs()
	results := make([]core.SearchResult, len(ids))
	matched := 0
	for i, id := range ids {
		r, ok := found[id]
		if !ok || r.Matches == nil {
			r = core.SearchResult{QueryID: id, Matches: []core.Match{}}
		}
		if len(r.Matches) > 0 {
			matched++
		}
		results[i] = r
	}
	logger.Info("search done", "run", run, "queries", len(ids), "blocks", len(scored), "matched", matched,
		"took", time.Since(start))
	return results, nil
}

// Close 删除索引存储
func (g *gazetteerOps) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.index == nil {
		return nil
	}
	err := g.index.Close()
	g.index = nil
	return err
}

// StaticGazetteer 是从 settings 加载的 gazetteer。
type StaticGazetteer struct {
	*gazetteerOps
}

// NewStaticGazetteer 从 settings 构造；settings 不兼容时返回 IncompatibleSettingsError。
func NewStaticGazetteer(r io.Reader, opts ...Option) (*StaticGazetteer, error) {
	b, err := newStaticBase(r, opts)
	if err != nil {
		return nil, err
	}
	return &StaticGazetteer{gazetteerOps: newGazetteerOps(b)}, nil
}

// Gazetteer 是可主动学习的 gazetteer。
type Gazetteer struct {
	*gazetteerOps
	*trainer
}

// NewGazetteer 按变量定义构造未训练的 gazetteer
func NewGazetteer(vars []feature.Variable, opts ...Option) (*Gazetteer, error) {
	b, err := newBase(vars, opts)
	if err != nil {
		return nil, err
	}
	return &Gazetteer{gazetteerOps: newGazetteerOps(b), trainer: &trainer{b: b}}, nil
}

// PrepareTraining 从待匹配数据（左）与规范数据（右）抽取候选样本池。
func (g *Gazetteer) PrepareTraining(ctx context.Context, messy, canonical core.RecordStore, opts TrainingOptions) error {
	return prepareLink(g.trainer, messy, canonical, opts)
}
