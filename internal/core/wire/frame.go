package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// FrameHeaderSize 长度前缀字节数
const FrameHeaderSize = 4

// WriteFrame 写入一帧
//
// 长度前缀与帧体合并为一次写入。
func WriteFrame(w io.Writer, body []byte) error {
	buf := make([]byte, FrameHeaderSize+len(body))
	binary.BigEndian.PutUint32(buf, uint32(len(body)))
	copy(buf[FrameHeaderSize:], body)
	_, err := w.Write(buf)
	return err
}

// ReadFrame 读取一帧，超过 max 字节返回 ErrFrameTooLarge
func ReadFrame(r io.Reader, max int) ([]byte, error) {
	var hdr [FrameHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if max > 0 && uint64(n) > uint64(max) {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, n, max)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return body, nil
}
