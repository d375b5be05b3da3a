package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"
)

var ErrNotWAV = errors.New("not a RIFF/WAVE stream")

const wavHeaderSize = 44

// WriteWAVHeader writes a canonical 44 byte header for dataSize bytes of raw
// audio in the given encoding.
func WriteWAVHeader(w io.Writer, info EncodingInfo, dataSize int) error {
	if info.IsZero() || info.Format.ByteSize() <= 0 {
		return fmt.Errorf("unsupported encoding %q", info.Format.Name())
	}

	channels := uint16(info.channels())
	bitsPerSample := uint16(info.Format.ByteSize() * 8)
	blockAlign := channels * bitsPerSample / 8

	header := make([]byte, wavHeaderSize)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+dataSize))
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], info.Format.wavFormatTag())
	binary.LittleEndian.PutUint16(header[22:24], channels)
	binary.LittleEndian.PutUint32(header[24:28], uint32(info.SampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(info.BytesPerSecond()))
	binary.LittleEndian.PutUint16(header[32:34], blockAlign)
	binary.LittleEndian.PutUint16(header[34:36], bitsPerSample)
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(dataSize))

	_, err := w.Write(header)
	return err
}

// WAVDuration reads chunk headers from r until the data chunk and derives
// the playback duration from the declared byte rate.
func WAVDuration(r io.Reader) (time.Duration, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, ErrNotWAV
		}
		return 0, fmt.Errorf("failed to read RIFF header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return 0, ErrNotWAV
	}

	var byteRate uint32
	for {
		var chunk [8]byte
		if _, err := io.ReadFull(r, chunk[:]); err != nil {
			return 0, fmt.Errorf("failed to read chunk header: %w", err)
		}
		id := string(chunk[0:4])
		size := binary.LittleEndian.Uint32(chunk[4:8])

		switch id {
		case "fmt ":
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return 0, fmt.Errorf("failed to read fmt chunk: %w", err)
			}
			if len(body) < 12 {
				return 0, fmt.Errorf("fmt chunk too short: %d bytes", len(body))
			}
			byteRate = binary.LittleEndian.Uint32(body[8:12])
		case "data":
			if byteRate == 0 {
				return 0, fmt.Errorf("data chunk before fmt chunk")
			}
			return time.Duration(float64(size) / float64(byteRate) * float64(time.Second)), nil
		default:
			if _, err := io.CopyN(io.Discard, r, int64(size+size%2)); err != nil {
				return 0, fmt.Errorf("failed to skip %q chunk: %w", id, err)
			}
		}
	}
}
