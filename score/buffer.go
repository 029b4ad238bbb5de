package score

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/rushteam/dedupekit/core"
)

// DefaultSpillAt 是内存中最多保留的条目数，超过后写入临时文件
const DefaultSpillAt = 100_000

// Buffer 是可增长的打分结果缓冲：小结果留在内存，大结果追加到临时文件。
// 单写者，不可并发 Append。
type Buffer struct {
	dir     string
	spillAt int

	mem     []core.ScoredPair
	file    *os.File
	w       *bufio.Writer
	spilled int
	scratch []byte
	closed  bool
}

var _ core.ScoredPairs = (*Buffer)(nil)

// NewBuffer 创建缓冲；dir 为空时使用系统临时目录，spillAt <= 0 时使用 DefaultSpillAt。
func NewBuffer(dir string, spillAt int) *Buffer {
	if spillAt <= 0 {
		spillAt = DefaultSpillAt
	}
	return &Buffer{dir: dir, spillAt: spillAt}
}

// NewBufferFrom 用内存中的结果构建缓冲（测试与小数据集）。
func NewBufferFrom(pairs []core.ScoredPair) *Buffer {
	b := NewBuffer("", len(pairs)+1)
	b.mem = append(b.mem, pairs...)
	return b
}

func (b *Buffer) Len() int { return len(b.mem) + b.spilled }

// Spilled 报告是否已写入磁盘
func (b *Buffer) Spilled() bool { return b.file != nil }

func (b *Buffer) Append(sp core.ScoredPair) error {
	if b.closed {
		return errors.New("score: append to closed buffer")
	}
	if b.file == nil {
		if len(b.mem) < b.spillAt {
			b.mem = append(b.mem, sp)
			return nil
		}
		if err := b.spill(); err != nil {
			return err
		}
	}
	return b.write(sp)
}

func (b *Buffer) spill() error {
	f, err := os.CreateTemp(b.dir, "dedupekit-scores-*.bin")
	if err != nil {
		return fmt.Errorf("score: create spill file: %w", err)
	}
	b.file = f
	b.w = bufio.NewWriterSize(f, 1<<16)
	for _, sp := range b.mem {
		if err := b.write(sp); err != nil {
			return err
		}
	}
	b.mem = nil
	return nil
}

func (b *Buffer) write(sp core.ScoredPair) error {
	buf := b.scratch[:0]
	buf = binary.AppendUvarint(buf, uint64(len(sp.A)))
	buf = append(buf, sp.A...)
	buf = binary.AppendUvarint(buf, uint64(len(sp.B)))
	buf = append(buf, sp.B...)
	buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(sp.Score))
	b.scratch = buf
	if _, err := b.w.Write(buf); err != nil {
		return fmt.Errorf("score: write spill file: %w", err)
	}
	b.spilled++
	return nil
}

func (b *Buffer) Iterate(fn func(core.ScoredPair) error) error {
	if b.closed {
		return errors.New("score: iterate closed buffer")
	}
	if b.file != nil {
		if err := b.w.Flush(); err != nil {
			return fmt.Errorf("score: flush spill file: %w", err)
		}
		if err := b.replay(fn); err != nil {
			return err
		}
	}
	for _, sp := range b.mem {
		if err := fn(sp); err != nil {
			return err
		}
	}
	return nil
}

func (b *Buffer) replay(fn func(core.ScoredPair) error) error {
	f, err := os.Open(b.file.Name())
	if err != nil {
		return fmt.Errorf("score: open spill file: %w", err)
	}
	defer f.Close()
	r := bufio.NewReaderSize(f, 1<<16)
	for i := 0; i < b.spilled; i++ {
		a, err := readString(r)
		if err != nil {
			return err
		}
		bID, err := readString(r)
		if err != nil {
			return err
		}
		var raw [8]byte
		if _, err := io.ReadFull(r, raw[:]); err != nil {
			return fmt.Errorf("score: read spill file: %w", err)
		}
		sp := core.ScoredPair{
			Pair:  core.Pair{A: a, B: bID},
			Score: math.Float64frombits(binary.LittleEndian.Uint64(raw[:])),
		}
		if err := fn(sp); err != nil {
			return err
		}
	}
	return nil
}

func readString(r *bufio.Reader) (string, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return "", fmt.Errorf("score: read spill file: %w", err)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("score: read spill file: %w", err)
	}
	return string(buf), nil
}

// All 把全部条目读入内存。
func (b *Buffer) All() ([]core.ScoredPair, error) {
	out := make([]core.ScoredPair, 0, b.Len())
	err := b.Iterate(func(sp core.ScoredPair) error {
		out = append(out, sp)
		return nil
	})
	return out, err
}

// Close 释放内存并删除临时文件，重复调用安全。
func (b *Buffer) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	b.mem = nil
	if b.file == nil {
		return nil
	}
	name := b.file.Name()
	err := b.file.Close()
	if rmErr := os.Remove(name); rmErr != nil && err == nil {
		err = rmErr
	}
	return err
}
