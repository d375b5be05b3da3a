package audio

import "time"

const (
	DefaultSampleRate = 24000
	DefaultFormat     = "linear16"
	DefaultChannels   = 1
)

func GetDefaultEncodingInfo() EncodingInfo {
	return EncodingInfo{SampleRate: DefaultSampleRate, Format: encodingFormat(DefaultFormat), Channels: DefaultChannels}
}

type EncodingInfo struct {
	SampleRate int
	Format     encodingFormat
	Channels   int
}

func (e EncodingInfo) IsZero() bool {
	return e.SampleRate == 0 || e.Format.Name() == ""
}

func (e EncodingInfo) channels() int {
	if e.Channels <= 0 {
		return 1
	}
	return e.Channels
}

// BytesPerSecond is the raw data rate of the encoding, zero when unknown.
func (e EncodingInfo) BytesPerSecond() int {
	if e.IsZero() || e.Format.ByteSize() <= 0 {
		return 0
	}
	return e.SampleRate * e.Format.ByteSize() * e.channels()
}

// DurationOf returns how long size bytes of raw audio play for.
func (e EncodingInfo) DurationOf(size int) time.Duration {
	rate := e.BytesPerSecond()
	if rate == 0 {
		return 0
	}
	return time.Duration(float64(size) / float64(rate) * float64(time.Second))
}

type encodingFormat string

func (e encodingFormat) Name() string {
	return string(e)
}

func (e encodingFormat) ByteSize() int {
	switch e {
	case encodingFormat("mulaw"), encodingFormat("alaw"):
		return 1
	case encodingFormat("linear16"):
		return 2
	}
	return -1
}

// wavFormatTag is the WAVE format code written into the fmt chunk.
func (e encodingFormat) wavFormatTag() uint16 {
	switch e {
	case encodingFormat("alaw"):
		return 6
	case encodingFormat("mulaw"):
		return 7
	}
	return 1
}

const (
	EncodingMulaw    encodingFormat = "mulaw"
	EncodingALaw     encodingFormat = "alaw"
	EncodingLinear16 encodingFormat = "linear16"
)
