package matcher

import (
	"bytes"
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/dedupekit/core"
	"github.com/rushteam/dedupekit/feature"
	"github.com/rushteam/dedupekit/model"
	"github.com/rushteam/dedupekit/pipeline"
	"github.com/rushteam/dedupekit/predicate"
	"github.com/rushteam/dedupekit/score"
	"github.com/rushteam/dedupekit/serializer"
)

var nameVars = []feature.Variable{{Field: "name", Type: feature.TypeString}}

// exactNameSettings 是按姓名整字段分块、距离 0 时匹配概率 sigmoid(5) 的 settings
func exactNameSettings(t *testing.T) []byte {
	t.Helper()
	dm, err := feature.NewDataModel(nameVars)
	require.NoError(t, err)
	clf := model.NewLRModel(model.DefaultLRConfig())
	clf.Bias = 5
	clf.Weights = []float64{-10}
	var buf bytes.Buffer
	require.NoError(t, serializer.WriteSettings(&buf, serializer.Settings{
		DataModel:  dm,
		Classifier: clf,
		Rules:      []predicate.Rule{{predicate.MustField(predicate.TypeWholeField, "name", 0)}},
	}))
	return buf.Bytes()
}

func names(kv ...string) core.Dataset {
	data := make(core.Dataset, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		data[kv[i]] = core.Record{"name": kv[i+1]}
	}
	return data
}

func sigmoid(z float64) float64 { return 1 / (1 + math.Exp(-z)) }

func TestStaticDedupe_TrivialPartition(t *testing.T) {
	ctx := context.Background()
	d, err := NewStaticDedupe(bytes.NewReader(exactNameSettings(t)), WithTempDir(t.TempDir()))
	require.NoError(t, err)
	data := names("1", "Pat", "2", "Pat", "3", "Sam")

	it, err := d.Pairs(ctx, data)
	require.NoError(t, err)
	pairs, err := pipeline.Drain(it)
	require.NoError(t, err)
	assert.Equal(t, []core.Pair{{A: "1", B: "2"}}, pairs)

	clusters, err := d.Partition(ctx, data, 0.5)
	require.NoError(t, err)
	require.Len(t, clusters, 2)
	assert.Equal(t, []core.RecordID{"1", "2"}, clusters[0].IDs)
	assert.InDeltaSlice(t, []float64{sigmoid(5), sigmoid(5)}, clusters[0].Scores, 1e-9)
	assert.Equal(t, core.Cluster{IDs: []core.RecordID{"3"}, Scores: []float64{1.0}}, clusters[1])
}

func TestStaticDedupe_ScoreAndCluster(t *testing.T) {
	ctx := context.Background()
	d, err := NewStaticDedupe(bytes.NewReader(exactNameSettings(t)), WithTempDir(t.TempDir()), WithNumCores(2))
	require.NoError(t, err)
	data := names("1", "Pat", "2", "Pat", "3", "Pat", "4", "Sam")

	it, err := d.Pairs(ctx, data)
	require.NoError(t, err)
	scores, err := d.Score(ctx, data, it, 0.5)
	require.NoError(t, err)
	defer scores.Close()
	assert.Equal(t, 3, scores.Len())

	clusters, err := d.Cluster(ctx, scores, 0.5)
	require.NoError(t, err)
	require.Len(t, clusters, 1)
	assert.Equal(t, []core.RecordID{"1", "2", "3"}, clusters[0].IDs)
}

func TestPartition_EveryRecordOnce(t *testing.T) {
	d, err := NewStaticDedupe(bytes.NewReader(exactNameSettings(t)), WithTempDir(t.TempDir()))
	require.NoError(t, err)
	data := names("a", "Pat", "b", "Sam", "c", "Pat", "d", "Kim", "e", "Sam", "f", "Lee")

	clusters, err := d.Partition(context.Background(), data, 0.99)
	require.NoError(t, err)
	seen := map[core.RecordID]int{}
	for _, c := range clusters {
		assert.Len(t, c.Scores, len(c.IDs))
		for _, id := range c.IDs {
			seen[id]++
		}
	}
	for _, id := range data.IDs() {
		assert.Equal(t, 1, seen[id], id)
	}
}

func TestPartition_Validation(t *testing.T) {
	ctx := context.Background()
	d, err := NewStaticDedupe(bytes.NewReader(exactNameSettings(t)), WithTempDir(t.TempDir()))
	require.NoError(t, err)

	_, err = d.Partition(ctx, core.Dataset{}, 0.5)
	assert.True(t, core.IsEmptyInput(err))

	_, err = d.Partition(ctx, core.Dataset{"1": {"title": "x"}}, 0.5)
	assert.True(t, core.IsSchemaError(err))
}

func TestNewStatic_IncompatibleSettings(t *testing.T) {
	_, err := NewStaticDedupe(bytes.NewReader([]byte("not settings")))
	assert.True(t, core.IsIncompatibleSettings(err))
	_, err = NewStaticRecordLink(bytes.NewReader(nil))
	assert.True(t, core.IsIncompatibleSettings(err))
	_, err = NewStaticGazetteer(bytes.NewReader([]byte("DKST")))
	assert.True(t, core.IsIncompatibleSettings(err))
}

func TestStaticRecordLink_Join(t *testing.T) {
	ctx := context.Background()
	l, err := NewStaticRecordLink(bytes.NewReader(exactNameSettings(t)), WithTempDir(t.TempDir()))
	require.NoError(t, err)
	left := names("a1", "Pat", "a2", "Sam")
	right := names("b1", "Pat", "b2", "Sam", "b3", "Pat")

	links, err := l.Join(ctx, left, right, 0.5, ConstraintOneToOne)
	require.NoError(t, err)
	got := make([]core.Pair, len(links))
	for i, lk := range links {
		got[i] = lk.Pair
	}
	assert.ElementsMatch(t, []core.Pair{{A: "a1", B: "b1"}, {A: "a2", B: "b2"}}, got)

	links, err = l.Join(ctx, left, right, 0.5, ConstraintManyToMany)
	require.NoError(t, err)
	assert.Len(t, links, 3)

	links, err = l.Join(ctx, left, right, 0.5, ConstraintManyToOne)
	require.NoError(t, err)
	assert.Len(t, links, 2)

	_, err = l.Join(ctx, left, right, 0.5, "one-to-many")
	assert.True(t, core.IsInvalidConstraint(err))
}

func TestStaticRecordLink_OneToOneSharedIDs(t *testing.T) {
	scores := []core.ScoredPair{
		{Pair: core.Pair{A: "1", B: "2"}, Score: 0.9},
		{Pair: core.Pair{A: "1", B: "3"}, Score: 0.8},
		{Pair: core.Pair{A: "2", B: "4"}, Score: 0.7},
	}
	l, err := NewStaticRecordLink(bytes.NewReader(exactNameSettings(t)), WithTempDir(t.TempDir()), WithSharedIDs(true))
	require.NoError(t, err)
	links, err := l.OneToOne(context.Background(), score.NewBufferFrom(scores), 0)
	require.NoError(t, err)
	assert.Equal(t, []core.Link{scores[0]}, links)

	// 默认按侧消耗：左 2 与右 2 是不同记录
	perSide, err := NewStaticRecordLink(bytes.NewReader(exactNameSettings(t)), WithTempDir(t.TempDir()))
	require.NoError(t, err)
	links, err = perSide.OneToOne(context.Background(), score.NewBufferFrom(scores), 0)
	require.NoError(t, err)
	assert.Equal(t, []core.Link{scores[0], scores[2]}, links)
}

func TestStaticGazetteer_Search(t *testing.T) {
	ctx := context.Background()
	g, err := NewStaticGazetteer(bytes.NewReader(exactNameSettings(t)), WithTempDir(t.TempDir()))
	require.NoError(t, err)
	defer g.Close()

	require.NoError(t, g.Index(ctx, names("c1", "Pat", "c2", "Sam")))
	assert.Equal(t, 2, g.Indexed())

	messy := names("m1", "Pat", "m2", "Alex", "m3", "Sam")
	results, err := g.Search(ctx, messy, 0.5, 1)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "m1", results[0].QueryID)
	require.Len(t, results[0].Matches, 1)
	assert.Equal(t, "c1", results[0].Matches[0].ID)
	assert.Equal(t, core.SearchResult{QueryID: "m2", Matches: []core.Match{}}, results[1])
	assert.Equal(t, "c2", results[2].Matches[0].ID)

	// 重新索引 c1 替换其旧的分块键
	require.NoError(t, g.Index(ctx, names("c1", "Alex")))
	results, err = g.Search(ctx, messy, 0.5, 0)
	require.NoError(t, err)
	assert.Empty(t, results[0].Matches)
	assert.Equal(t, "c1", results[1].Matches[0].ID)

	require.NoError(t, g.Unindex(ctx, names("c2", "")))
	results, err = g.Search(ctx, messy, 0.5, 0)
	require.NoError(t, err)
	assert.Empty(t, results[2].Matches)
	assert.Equal(t, 1, g.Indexed())
}

func TestStaticGazetteer_BlocksAndScore(t *testing.T) {
	ctx := context.Background()
	g, err := NewStaticGazetteer(bytes.NewReader(exactNameSettings(t)), WithTempDir(t.TempDir()))
	require.NoError(t, err)
	defer g.Close()
	require.NoError(t, g.Index(ctx, names("c1", "Pat", "c2", "Pat", "c3", "Sam")))

	messy := names("m1", "Pat", "m2", "Kim")
	blocks, err := g.Blocks(ctx, messy)
	require.NoError(t, err)
	scored, err := g.ScoreBlocks(ctx, blocks, messy, 0.5)
	require.NoError(t, err)
	require.Len(t, scored, 1)
	assert.Equal(t, "m1", scored[0].QueryID)
	assert.Len(t, scored[0].Pairs, 2)

	results := g.ManyToN(scored, 0.5, 1)
	require.Len(t, results, 1)
	assert.Equal(t, "c1", results[0].Matches[0].ID)
}

var trainingData = names(
	"1", "Pat Smith", "2", "Pat Smith", "3", "Sam Jones",
	"4", "Sam Jones", "5", "Alex Brown", "6", "Kim Lee",
)

func example(a, b core.RecordID) core.Example {
	return core.Example{A: trainingData[a], B: trainingData[b]}
}

func labelled() core.TrainingPairs {
	return core.TrainingPairs{
		Match:    []core.Example{example("1", "2"), example("3", "4")},
		Distinct: []core.Example{example("1", "3"), example("5", "6")},
	}
}

func TestDedupe_ActiveLearning(t *testing.T) {
	ctx := context.Background()
	d, err := NewDedupe(nameVars, WithTempDir(t.TempDir()))
	require.NoError(t, err)

	_, err = d.UncertainPairs()
	assert.True(t, core.IsNotInitialized(err))
	assert.True(t, core.IsEmptyTraining(d.Train(0.95, false)))
	_, err = d.Pairs(ctx, trainingData)
	assert.True(t, core.IsNotInitialized(err))

	require.NoError(t, d.PrepareTraining(ctx, trainingData, TrainingOptions{SampleSize: 10, Seed: 1, MaxCoverShare: 1}))
	pair, err := d.UncertainPairs()
	require.NoError(t, err)
	assert.Len(t, pair, 1)

	require.NoError(t, d.MarkPairs(labelled()))
	require.NoError(t, d.Train(1, false))
	assert.NotEmpty(t, d.Rules())

	clusters, err := d.Partition(ctx, trainingData, 0.5)
	require.NoError(t, err)

	var settings bytes.Buffer
	require.NoError(t, d.WriteSettings(&settings))
	static, err := NewStaticDedupe(&settings, WithTempDir(t.TempDir()))
	require.NoError(t, err)
	again, err := static.Partition(ctx, trainingData, 0.5)
	require.NoError(t, err)
	require.Len(t, again, len(clusters))
	for i := range clusters {
		assert.Equal(t, clusters[i].IDs, again[i].IDs)
		assert.InDeltaSlice(t, clusters[i].Scores, again[i].Scores, 1e-9)
	}

	var training bytes.Buffer
	require.NoError(t, d.WriteTraining(&training))
	fresh, err := NewDedupe(nameVars)
	require.NoError(t, err)
	require.NoError(t, fresh.ReadTraining(&training))
	assert.Equal(t, d.Training(), fresh.Training())

	d.CleanupTraining()
	_, err = d.UncertainPairs()
	assert.True(t, core.IsNotInitialized(err))
	assert.Zero(t, d.Training().Len())
}

func TestDedupe_PrepareTrainingReadsExisting(t *testing.T) {
	var training bytes.Buffer
	require.NoError(t, serializer.WriteTraining(&training, labelled()))

	d, err := NewDedupe(nameVars, WithTempDir(t.TempDir()))
	require.NoError(t, err)
	require.NoError(t, d.PrepareTraining(context.Background(), trainingData,
		TrainingOptions{SampleSize: 10, Seed: 2, MaxCoverShare: 1, Training: &training}))
	assert.Equal(t, 4, d.Training().Len())
	require.NoError(t, d.Train(1, false))
}

func TestTrainer_MarkPairsSchemaError(t *testing.T) {
	d, err := NewDedupe(nameVars)
	require.NoError(t, err)
	err = d.MarkPairs(core.TrainingPairs{Match: []core.Example{{A: core.Record{"title": "x"}, B: core.Record{"name": "x"}}}})
	assert.True(t, core.IsSchemaError(err))
	assert.Zero(t, d.Training().Len())
}

func TestRecordLink_Training(t *testing.T) {
	ctx := context.Background()
	l, err := NewRecordLink(nameVars, WithTempDir(t.TempDir()))
	require.NoError(t, err)
	left := names("a1", "Pat Smith", "a2", "Sam Jones", "a3", "Kim Lee")
	right := names("b1", "Pat Smith", "b2", "Sam Jones", "b3", "Alex Brown")

	require.NoError(t, l.PrepareTraining(ctx, left, right, TrainingOptions{SampleSize: 6, Seed: 3, MaxCoverShare: 1}))
	require.NoError(t, l.MarkPairs(core.TrainingPairs{
		Match: []core.Example{
			{A: left["a1"], B: right["b1"]},
			{A: left["a2"], B: right["b2"]},
		},
		Distinct: []core.Example{{A: left["a3"], B: right["b3"]}},
	}))
	require.NoError(t, l.Train(1, false))

	links, err := l.Join(ctx, left, right, 0.5, ConstraintOneToOne)
	require.NoError(t, err)
	seenLeft, seenRight := map[string]bool{}, map[string]bool{}
	for _, lk := range links {
		assert.False(t, seenLeft[lk.A])
		assert.False(t, seenRight[lk.B])
		seenLeft[lk.A], seenRight[lk.B] = true, true
	}
}

func TestGazetteer_TrainRebuildsIndex(t *testing.T) {
	ctx := context.Background()
	g, err := NewGazetteer(nameVars, WithTempDir(t.TempDir()))
	require.NoError(t, err)
	defer g.Close()

	messy := names("m1", "Pat Smith", "m2", "Sam Jones")
	canonical := names("c1", "Pat Smith", "c2", "Sam Jones", "c3", "Kim Lee")
	require.NoError(t, g.PrepareTraining(ctx, messy, canonical, TrainingOptions{SampleSize: 6, Seed: 4, MaxCoverShare: 1}))
	require.NoError(t, g.MarkPairs(core.TrainingPairs{
		Match:    []core.Example{{A: messy["m1"], B: canonical["c1"]}, {A: messy["m2"], B: canonical["c2"]}},
		Distinct: []core.Example{{A: messy["m1"], B: canonical["c3"]}},
	}))
	require.NoError(t, g.Train(1, false))
	require.NoError(t, g.Index(ctx, canonical))

	// 重新训练后已索引的记录保留
	require.NoError(t, g.Train(1, false))
	assert.Equal(t, 3, g.Indexed())

	results, err := g.Search(ctx, messy, 0, 0)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

// bandClassifier 按第一维距离给出固定概率：小于 cut 为 near，否则为 far
type bandClassifier struct {
	cut, near, far float64
}

func (c *bandClassifier) Name() string                     { return "band" }
func (c *bandClassifier) Fit(X [][]float64, y []int) error { return nil }
func (c *bandClassifier) Clone() core.Classifier           { return c }
func (c *bandClassifier) PredictProba(X [][]float64) ([]float64, error) {
	out := make([]float64, len(X))
	for i, row := range X {
		out[i] = c.far
		if row[0] < c.cut {
			out[i] = c.near
		}
	}
	return out, nil
}

// triangle: a-b 与 a-c 的价格距离为 1（0.9），b-c 为 2（0.45，低于阈值）
func triangleDedupe(t *testing.T) (*Dedupe, core.Dataset) {
	t.Helper()
	d, err := NewDedupe(
		[]feature.Variable{{Field: "price", Type: feature.TypePrice}},
		WithTempDir(t.TempDir()),
		WithClassifier(&bandClassifier{cut: 1.5, near: 0.9, far: 0.45}),
		WithRules(predicate.Rule{predicate.MustField(predicate.TypeWholeField, "group", 0)}),
	)
	require.NoError(t, err)
	data := core.Dataset{
		"a": {"price": 10.0, "group": "x"},
		"b": {"price": 100.0, "group": "x"},
		"c": {"price": 1.0, "group": "x"},
	}
	return d, data
}

func TestPartition_KeepsSubThresholdEdges(t *testing.T) {
	ctx := context.Background()
	d, data := triangleDedupe(t)

	clusters, err := d.Partition(ctx, data, 0.5)
	require.NoError(t, err)
	require.Len(t, clusters, 1)
	assert.Equal(t, []core.RecordID{"a", "b", "c"}, clusters[0].IDs)

	// 与 Pairs -> Score(0) -> Cluster 的组合结果一致
	it, err := d.Pairs(ctx, data)
	require.NoError(t, err)
	scores, err := d.Score(ctx, data, it, 0)
	require.NoError(t, err)
	defer scores.Close()
	assert.Equal(t, 3, scores.Len())
	want, err := d.Cluster(ctx, scores, 0.5)
	require.NoError(t, err)
	require.Len(t, want, 1)
	assert.Equal(t, want[0].IDs, clusters[0].IDs)
	assert.InDeltaSlice(t, want[0].Scores, clusters[0].Scores, 1e-9)
	assert.Less(t, clusters[0].Scores[2], 0.9)
}

func TestTrainingOptions_BlockedProportion(t *testing.T) {
	o := TrainingOptions{}.withDefaults(&core.DefaultDedupeConfig{})
	require.NotNil(t, o.BlockedProportion)
	assert.Equal(t, 0.9, *o.BlockedProportion)

	o = TrainingOptions{BlockedProportion: Proportion(0)}.withDefaults(&core.DefaultDedupeConfig{})
	assert.Equal(t, 0.0, *o.BlockedProportion)
	assert.Equal(t, 0.0, learnerOptions(o).BlockedProportion)

	d, err := NewDedupe(nameVars, WithTempDir(t.TempDir()))
	require.NoError(t, err)
	require.NoError(t, d.PrepareTraining(context.Background(), trainingData,
		TrainingOptions{SampleSize: 10, Seed: 1, BlockedProportion: Proportion(0)}))
	pairs, err := d.UncertainPairs()
	require.NoError(t, err)
	assert.Len(t, pairs, 1)
}
