package predicate

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"

	"github.com/rushteam/dedupekit/core"
	"github.com/rushteam/dedupekit/pkg/conv"
	"github.com/rushteam/dedupekit/pkg/textutil"
)

// 索引谓词类型
const (
	TypeTfidfTextSearch  = "tfidf_text_search"
	TypeTfidfNGramSearch = "tfidf_ngram_search"
)

func init() {
	Register(TypeTfidfTextSearch, func(field string, params map[string]any) (core.Predicate, error) {
		return NewTfidfSearch(field, conv.ParamFloat(params, "threshold", 0.6), 0)
	})
	Register(TypeTfidfNGramSearch, func(field string, params map[string]any) (core.Predicate, error) {
		return NewTfidfSearch(field, conv.ParamFloat(params, "threshold", 0.6), 3)
	})
}

// TfidfSearch 是 TF-IDF 检索谓词。
//
// Index 把字段值加入倒排索引（每个不同的规范化值是一个文档）；
// Keys 返回与记录字段值余弦相似度 >= Threshold 的已索引文档 ID。
// 两条记录只要与同一个已索引文档足够相似就会落入同一分块。
//
// NGram 为 0 时按词切分，否则按字符 n-gram 切分。
type TfidfSearch struct {
	field     string
	threshold float64
	ngram     int

	mu       sync.RWMutex
	indexed  bool
	nextID   int
	docs     map[string]*tfidfDoc       // 规范化值 -> 文档
	postings map[string]map[int]*tfidfDoc // token -> 文档集合
}

type tfidfDoc struct {
	id     int
	refs   int
	counts map[string]int
}

var (
	_ core.IndexPredicate = (*TfidfSearch)(nil)
	_ Describer           = (*TfidfSearch)(nil)
)

// NewTfidfSearch 创建 TF-IDF 检索谓词，threshold 必须在 (0, 1]。
func NewTfidfSearch(field string, threshold float64, ngram int) (*TfidfSearch, error) {
	if field == "" {
		return nil, fmt.Errorf("tfidf predicate requires a field")
	}
	if threshold <= 0 || threshold > 1 {
		return nil, fmt.Errorf("tfidf predicate threshold must be in (0, 1], got %v", threshold)
	}
	p := &TfidfSearch{field: field, threshold: threshold, ngram: ngram}
	p.Reset()
	return p, nil
}

func (p *TfidfSearch) kind() string {
	if p.ngram > 0 {
		return TypeTfidfNGramSearch
	}
	return TypeTfidfTextSearch
}

func (p *TfidfSearch) Name() string {
	return fmt.Sprintf("%s%.1f(%s)", p.kind(), p.threshold, p.field)
}

func (p *TfidfSearch) Field() string { return p.field }

func (p *TfidfSearch) Spec() Spec {
	return Spec{Type: p.kind(), Field: p.field, Params: map[string]any{"threshold": p.threshold}}
}

func (p *TfidfSearch) tokens(s string) []string {
	if p.ngram > 0 {
		return textutil.NGrams(s, p.ngram)
	}
	return textutil.Tokens(s)
}

func (p *TfidfSearch) Indexed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.indexed
}

func (p *TfidfSearch) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.indexed = false
	p.docs = make(map[string]*tfidfDoc)
	p.postings = make(map[string]map[int]*tfidfDoc)
}

func (p *TfidfSearch) Index(values []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.indexed = true
	for _, v := range values {
		key := textutil.Normalize(v)
		if key == "" {
			continue
		}
		if doc, ok := p.docs[key]; ok {
			doc.refs++
			continue
		}
		doc := &tfidfDoc{id: p.nextID, refs: 1, counts: make(map[string]int)}
		p.nextID++
		for _, tok := range p.tokens(key) {
			doc.counts[tok]++
		}
		p.docs[key] = doc
		for tok := range doc.counts {
			if p.postings[tok] == nil {
				p.postings[tok] = make(map[int]*tfidfDoc)
			}
			p.postings[tok][doc.id] = doc
		}
	}
}

func (p *TfidfSearch) Unindex(values []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, v := range values {
		key := textutil.Normalize(v)
		doc, ok := p.docs[key]
		if !ok {
			continue
		}
		doc.refs--
		if doc.refs > 0 {
			continue
		}
		delete(p.docs, key)
		for tok := range doc.counts {
			delete(p.postings[tok], doc.id)
			if len(p.postings[tok]) == 0 {
				delete(p.postings, tok)
			}
		}
	}
}

// idf 使用平滑公式 log((N+1)/(df+1)) + 1，调用方需持有读锁
func (p *TfidfSearch) idf(tok string) float64 {
	n := float64(len(p.docs))
	df := float64(len(p.postings[tok]))
	return math.Log((n+1)/(df+1)) + 1
}

func (p *TfidfSearch) vector(counts map[string]int) (map[string]float64, float64) {
	vec := make(map[string]float64, len(counts))
	var norm float64
	for tok, c := range counts {
		w := float64(c) * p.idf(tok)
		vec[tok] = w
		norm += w * w
	}
	return vec, math.Sqrt(norm)
}

func (p *TfidfSearch) Keys(rec core.Record) ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.indexed {
		return nil, core.NewPredicateNotIndexedError(p.Name())
	}
	s, ok := textutil.ToString(rec[p.field])
	if !ok {
		return nil, nil
	}
	counts := make(map[string]int)
	for _, tok := range p.tokens(s) {
		counts[tok]++
	}
	if len(counts) == 0 {
		return nil, nil
	}
	qvec, qnorm := p.vector(counts)
	if qnorm == 0 {
		return nil, nil
	}

	candidates := make(map[int]*tfidfDoc)
	for tok := range counts {
		for id, doc := range p.postings[tok] {
			candidates[id] = doc
		}
	}

	var ids []int
	for id, doc := range candidates {
		dvec, dnorm := p.vector(doc.counts)
		if dnorm == 0 {
			continue
		}
		var dot float64
		for tok, w := range qvec {
			dot += w * dvec[tok]
		}
		// 浮点误差下自身相似度可能略小于 1
		if dot/(qnorm*dnorm) >= p.threshold-1e-9 {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = strconv.Itoa(id)
	}
	return keys, nil
}
