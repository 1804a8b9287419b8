package archive

import (
	"bytes"
	"compress/zlib"
	"encoding/json"
	"io"

	"github.com/statecraftio/statecraft/pkg/statecraft"
)

// compressionThresholdDefault mirrors archival.threshold's documented
// default: payloads shorter than this are stored uncompressed.
const compressionThresholdDefault = 1000

// compress encodes events as JSON and, when the payload meets the
// configured threshold, zlib-compresses it (the enabled flag is checked by
// ArchiveMachine, not here). The
// zlib format itself — standard library compress/zlib — is one of the few
// places this module reaches for the standard library instead of a
// third-party one; see DESIGN.md: the wire format is pinned to zlib's own
// header/Adler-32 trailer, so a third-party general-purpose compressor
// (e.g. klauspost/compress, already an indirect dependency via the NATS
// stack) would not produce a byte-compatible stream.
func compress(events []statecraft.MachineEvent, level int, threshold int) (data []byte, originalSize int, compressedSize int, err error) {
	raw, err := json.Marshal(events)
	if err != nil {
		return nil, 0, 0, err
	}
	originalSize = len(raw)
	if threshold <= 0 {
		threshold = compressionThresholdDefault
	}
	if originalSize < threshold {
		return raw, originalSize, originalSize, nil
	}

	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, 0, 0, err
	}
	if _, err := w.Write(raw); err != nil {
		w.Close()
		return nil, 0, 0, err
	}
	if err := w.Close(); err != nil {
		return nil, 0, 0, err
	}
	return buf.Bytes(), originalSize, buf.Len(), nil
}

// decompress reverses compress, detecting the zlib header
// and falling back to treating the blob as raw JSON when it is absent, for
// backwards-compatible reads of pre-compression archives.
func decompress(data []byte) ([]statecraft.MachineEvent, error) {
	var raw []byte
	if looksLikeZlib(data) {
		r, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		raw, err = io.ReadAll(r)
		if err != nil {
			return nil, err
		}
	} else {
		raw = data
	}
	var events []statecraft.MachineEvent
	if err := json.Unmarshal(raw, &events); err != nil {
		return nil, err
	}
	return events, nil
}

func looksLikeZlib(data []byte) bool {
	if len(data) < 2 {
		return false
	}
	cmf, flg := data[0], data[1]
	header := uint16(cmf)<<8 | uint16(flg)
	if header%31 != 0 {
		return false
	}
	if cmf&0x0f != 8 {
		return false
	}
	if cmf&0x80 != 0 {
		return false
	}
	return true
}
