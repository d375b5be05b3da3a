package app

import (
	"github.com/koscakluka/ema-duet/core/transcript"
	"github.com/koscakluka/ema-duet/internal/config"
)

// newTranscriptSink writes JSONL to cfg.Path and mirrors records to Kafka when
// brokers are configured. With neither set records are dropped.
func newTranscriptSink(cfg config.TranscriptConfig) (transcript.Sink, error) {
	var sinks []transcript.Sink
	if cfg.Path != "" {
		file, err := transcript.NewFileSink(cfg.Path)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, file)
	}
	if len(cfg.Kafka.Brokers) > 0 {
		sinks = append(sinks, transcript.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic))
	}
	return transcript.Multi(sinks...), nil
}
