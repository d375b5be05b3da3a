package texttospeech

import (
	"errors"
	"io"

	"github.com/koscakluka/ema-duet/internal/utils"
)

// WriteFileAtomic stores finished audio so the stage never picks up a
// partially written file.
func WriteFileAtomic(path string, r io.Reader) (int64, error) {
	written, err := utils.WriteFileAtomic(path, r)
	if errors.Is(err, utils.ErrEmptyFile) {
		return 0, ErrEmptyAudio
	}
	return written, err
}
