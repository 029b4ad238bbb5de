package serializer

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/klauspost/compress/s2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/dedupekit/core"
	"github.com/rushteam/dedupekit/feature"
	"github.com/rushteam/dedupekit/model"
	"github.com/rushteam/dedupekit/predicate"
)

func testSettings(t *testing.T) Settings {
	t.Helper()
	dm, err := feature.NewDataModel([]feature.Variable{
		{Field: "name", Type: "String"},
		{Field: "city", Type: "Exact", HasMissing: true},
	})
	require.NoError(t, err)

	clf := model.NewLRModel(model.DefaultLRConfig())
	require.NoError(t, clf.Fit(
		[][]float64{{0, 0, 0}, {0.1, 0, 0}, {0.9, 1, 0}, {1, 1, 1}},
		[]int{1, 1, 0, 0},
	))

	tfidf, err := predicate.NewTfidfSearch("name", 0.6, 3)
	require.NoError(t, err)
	expr, err := predicate.NewExpression("city", `record.city`, "")
	require.NoError(t, err)
	rules := []predicate.Rule{
		{predicate.MustField(predicate.TypePrefix, "name", 3), predicate.MustField(predicate.TypeWholeField, "city", 0)},
		{tfidf},
		{expr},
	}
	return Settings{DataModel: dm, Classifier: clf, Rules: rules}
}

func TestSettings_RoundTrip(t *testing.T) {
	in := testSettings(t)
	var buf bytes.Buffer
	require.NoError(t, WriteSettings(&buf, in))
	assert.Equal(t, []byte("DKST"), buf.Bytes()[:4])

	out, err := ReadSettings(&buf)
	require.NoError(t, err)

	assert.Equal(t, in.DataModel.Variables(), out.DataModel.Variables())
	require.Len(t, out.Rules, len(in.Rules))
	for i := range in.Rules {
		assert.Equal(t, in.Rules[i].Name(), out.Rules[i].Name())
	}

	X := [][]float64{{0.05, 0, 0}, {0.5, 1, 0}, {0.95, 1, 1}}
	want, err := in.Classifier.PredictProba(X)
	require.NoError(t, err)
	got, err := out.Classifier.PredictProba(X)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSettings_WriteRequiresModel(t *testing.T) {
	err := WriteSettings(&bytes.Buffer{}, Settings{})
	assert.True(t, core.IsInvalidInput(err))
}

// rawSettings 按 settings 的帧格式写出任意段
func rawSettings(version uint16, sections ...string) []byte {
	var buf bytes.Buffer
	buf.WriteString("DKST")
	_ = binary.Write(&buf, binary.BigEndian, version)
	zw := s2.NewWriter(&buf)
	for _, s := range sections {
		var l [binary.MaxVarintLen64]byte
		n := binary.PutUvarint(l[:], uint64(len(s)))
		_, _ = zw.Write(l[:n])
		_, _ = zw.Write([]byte(s))
	}
	_ = zw.Close()
	return buf.Bytes()
}

func TestSettings_Incompatible(t *testing.T) {
	vars := `[{"field":"name","type":"String"}]`
	clf := `{"type":"lr","params":{"bias":0,"weights":[1],"alpha":0.001,"learning_rate":0.5,"epochs":10}}`
	rules := `[[{"type":"whole_field","field":"name"}]]`

	valid := rawSettings(1, vars, clf, rules)
	_, err := ReadSettings(bytes.NewReader(valid))
	require.NoError(t, err)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"bad magic", append([]byte("XXXX"), valid[4:]...)},
		{"future version", rawSettings(2, vars, clf, rules)},
		{"missing section", rawSettings(1, vars, clf)},
		{"extra section", rawSettings(1, vars, clf, rules, `[]`)},
		{"unknown field", rawSettings(1, `[{"field":"name","type":"String","weight":2}]`, clf, rules)},
		{"unknown classifier", rawSettings(1, vars, `{"type":"svm","params":{}}`, rules)},
		{"unknown predicate", rawSettings(1, vars, clf, `[[{"type":"soundex","field":"name"}]]`)},
		{"bad variable type", rawSettings(1, `[{"field":"name","type":"Geo"}]`, clf, rules)},
		{"truncated", valid[:len(valid)-3]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadSettings(bytes.NewReader(tt.data))
			require.Error(t, err)
			assert.True(t, core.IsIncompatibleSettings(err), err.Error())
		})
	}
}

func TestTraining_RoundTrip(t *testing.T) {
	in := core.TrainingPairs{
		Match: []core.Example{{A: core.Record{"name": "Pat"}, B: core.Record{"name": "pat"}}},
		Distinct: []core.Example{
			{A: core.Record{"name": "Pat", "age": 3.0}, B: core.Record{"name": "Sam", "tags": []any{"a", "b"}}},
		},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteTraining(&buf, in))
	assert.Contains(t, buf.String(), `"match":[[{"name":"Pat"},{"name":"pat"}]]`)

	out, err := ReadTraining(&buf)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestTraining_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTraining(&buf, core.TrainingPairs{}))
	assert.JSONEq(t, `{"match":[],"distinct":[]}`, buf.String())

	_, err := ReadTraining(bytes.NewReader([]byte(`{"match":[[{"a":1}]]}`)))
	assert.True(t, core.IsInvalidInput(err))
}
