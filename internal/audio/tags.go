package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// writeInfoChunk appends a RIFF LIST/INFO chunk carrying the metadata tags
// to an already-encoded WAV file and patches the RIFF size header. The file
// must be positioned anywhere; it is extended at the end.
func writeInfoChunk(f *os.File, tags *Tags) error {
	payload := buildInfoChunk(tags)
	if len(payload) == 0 {
		return nil
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("seek end: %w", err)
	}
	if _, err := f.Write(payload); err != nil {
		return fmt.Errorf("append info chunk: %w", err)
	}

	stat, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat: %w", err)
	}
	var size [4]byte
	binary.LittleEndian.PutUint32(size[:], uint32(stat.Size()-8))
	if _, err := f.WriteAt(size[:], 4); err != nil {
		return fmt.Errorf("patch riff size: %w", err)
	}
	return nil
}

func buildInfoChunk(tags *Tags) []byte {
	fields := []struct {
		id    string
		value string
	}{
		{"INAM", tags.Title},
		{"IART", tags.Artist},
		{"IPRD", tags.Album},
	}

	var body []byte
	for _, field := range fields {
		if field.value == "" {
			continue
		}
		data := append([]byte(field.value), 0)
		if len(data)%2 != 0 {
			data = append(data, 0)
		}
		sub := make([]byte, 8, 8+len(data))
		copy(sub, field.id)
		binary.LittleEndian.PutUint32(sub[4:], uint32(len(data)))
		body = append(body, append(sub, data...)...)
	}
	if len(body) == 0 {
		return nil
	}

	chunk := make([]byte, 12, 12+len(body))
	copy(chunk, "LIST")
	binary.LittleEndian.PutUint32(chunk[4:], uint32(4+len(body)))
	copy(chunk[8:], "INFO")
	return append(chunk, body...)
}
