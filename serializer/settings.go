// Package serializer 读写 matcher 的两类产物：
//
//   - settings：数据模型、训练好的分类器与分块规则，用于构造 Static* matcher
//   - training：人工标注的 match / distinct 记录对（JSON）
package serializer

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/s2"

	"github.com/rushteam/dedupekit/core"
	"github.com/rushteam/dedupekit/feature"
	"github.com/rushteam/dedupekit/model"
	"github.com/rushteam/dedupekit/predicate"
)

// settings 文件头
var magic = [4]byte{'D', 'K', 'S', 'T'}

// SettingsVersion 是当前写出的 settings 版本
const SettingsVersion uint16 = 1

// 单个段的最大长度
const maxSectionSize = 256 << 20

// Settings 是训练产物。
type Settings struct {
	DataModel  *feature.DataModel
	Classifier core.Classifier
	Rules      []predicate.Rule
}

type classifierSection struct {
	Type   string          `json:"type"`
	Params json.RawMessage `json:"params"`
}

// WriteSettings 写出 settings：magic + 版本号，随后是 s2 压缩流中的三个长度前缀 JSON 段
// （变量定义、分类器、规则）。
func WriteSettings(w io.Writer, s Settings) error {
	if s.DataModel == nil || s.Classifier == nil {
		return core.NewDomainError(core.ModuleSerializer, core.ErrorCodeInvalidInput,
			"serializer: settings require a data model and a classifier")
	}
	params, err := json.Marshal(s.Classifier)
	if err != nil {
		return fmt.Errorf("serializer: encode classifier: %w", err)
	}
	specs, err := predicate.RuleSpecs(s.Rules)
	if err != nil {
		return fmt.Errorf("serializer: encode rules: %w", err)
	}
	sections := []any{
		s.DataModel.Variables(),
		classifierSection{Type: s.Classifier.Name(), Params: params},
		specs,
	}

	var header [6]byte
	copy(header[:4], magic[:])
	binary.BigEndian.PutUint16(header[4:], SettingsVersion)
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	zw := s2.NewWriter(w)
	var lenBuf [binary.MaxVarintLen64]byte
	for _, sec := range sections {
		data, err := json.Marshal(sec)
		if err != nil {
			_ = zw.Close()
			return fmt.Errorf("serializer: encode settings: %w", err)
		}
		n := binary.PutUvarint(lenBuf[:], uint64(len(data)))
		if _, err := zw.Write(lenBuf[:n]); err != nil {
			_ = zw.Close()
			return err
		}
		if _, err := zw.Write(data); err != nil {
			_ = zw.Close()
			return err
		}
	}
	return zw.Close()
}

func incompatible(err error, format string, args ...any) error {
	return core.NewIncompatibleSettingsError(err, format, args...)
}

func readSection(r *bufio.Reader, name string, v any) error {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return incompatible(err, "settings: missing %s section", name)
	}
	if n > maxSectionSize {
		return incompatible(nil, "settings: %s section too large (%d bytes)", name, n)
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return incompatible(err, "settings: truncated %s section", name)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return incompatible(err, "settings: malformed %s section", name)
	}
	return nil
}

// ReadSettings 读取 settings。magic、版本、段数量或段结构不符时返回 IncompatibleSettingsError。
func ReadSettings(r io.Reader) (*Settings, error) {
	var header [6]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, incompatible(err, "settings: missing header")
	}
	if !bytes.Equal(header[:4], magic[:]) {
		return nil, incompatible(nil, "settings: not a settings file")
	}
	if v := binary.BigEndian.Uint16(header[4:]); v != SettingsVersion {
		return nil, incompatible(nil, "settings: version %d is not supported (want %d)", v, SettingsVersion)
	}

	br := bufio.NewReader(s2.NewReader(r))
	var (
		vars  []feature.Variable
		clf   classifierSection
		specs [][]predicate.Spec
	)
	if err := readSection(br, "variables", &vars); err != nil {
		return nil, err
	}
	if err := readSection(br, "classifier", &clf); err != nil {
		return nil, err
	}
	if err := readSection(br, "rules", &specs); err != nil {
		return nil, err
	}
	if _, err := br.ReadByte(); !errors.Is(err, io.EOF) {
		return nil, incompatible(err, "settings: unexpected data after rules section")
	}

	dm, err := feature.NewDataModel(vars)
	if err != nil {
		return nil, incompatible(err, "settings: invalid data model")
	}
	classifier, err := model.New(clf.Type, nil)
	if err != nil {
		return nil, incompatible(err, "settings: unknown classifier")
	}
	if err := json.Unmarshal(clf.Params, classifier); err != nil {
		return nil, incompatible(err, "settings: invalid %s classifier", clf.Type)
	}
	rules, err := predicate.BuildRules(specs)
	if err != nil {
		return nil, incompatible(err, "settings: invalid rules")
	}
	return &Settings{DataModel: dm, Classifier: classifier, Rules: rules}, nil
}
