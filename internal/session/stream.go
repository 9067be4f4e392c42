package session

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/omnish-dev/omnish/internal/model"
)

// appendStreamEntry writes one stream.bin record:
//
//	u64_be(timestamp_ms) || u8(direction) || u32_be(len(data)) || data
func appendStreamEntry(f *os.File, tsMs int64, dir model.Direction, data []byte) error {
	header := make([]byte, 13)
	binary.BigEndian.PutUint64(header[0:8], uint64(tsMs))
	header[8] = byte(dir)
	binary.BigEndian.PutUint32(header[9:13], uint32(len(data)))

	if _, err := f.Write(header); err != nil {
		return err
	}
	_, err := f.Write(data)
	return err
}

// readStreamEntry reads one stream.bin record from r, returning the decoded
// entry and the total number of bytes it occupied on disk (header + data).
func readStreamEntry(r io.Reader) (model.StreamEntry, int, error) {
	header := make([]byte, 13)
	if _, err := io.ReadFull(r, header); err != nil {
		return model.StreamEntry{}, 0, err
	}
	tsMs := int64(binary.BigEndian.Uint64(header[0:8]))
	dir := model.Direction(header[8])
	dataLen := binary.BigEndian.Uint32(header[9:13])

	data := make([]byte, dataLen)
	if _, err := io.ReadFull(r, data); err != nil {
		return model.StreamEntry{}, 0, fmt.Errorf("session: read stream entry body: %w", err)
	}

	return model.StreamEntry{TimestampMs: tsMs, Direction: dir, Data: data}, 13 + int(dataLen), nil
}
