package spill

import (
	"encoding/binary"
	"fmt"
)

// AppendString 以 uvarint 长度前缀追加字符串，保证任意字节内容都能无歧义拼接成 key。
func AppendString(dst []byte, s string) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(s)))
	return append(dst, s...)
}

// ReadString 读取 AppendString 写入的字符串，返回剩余字节。
func ReadString(b []byte) (string, []byte, error) {
	n, w := binary.Uvarint(b)
	if w <= 0 {
		return "", nil, fmt.Errorf("spill: bad length prefix")
	}
	b = b[w:]
	if uint64(len(b)) < n {
		return "", nil, fmt.Errorf("spill: truncated key")
	}
	return string(b[:n]), b[n:], nil
}
