package audio

import (
	"os"

	"github.com/go-audio/wav"
)

// wavDecoder pairs a wav.Decoder with the underlying file so callers can
// close both together.
type wavDecoder struct {
	*wav.Decoder
	file *os.File
}

func (d *wavDecoder) Close() error {
	return d.file.Close()
}

func wavDecoderForFile(path string) (*wavDecoder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &wavDecoder{Decoder: wav.NewDecoder(f), file: f}, nil
}

func createFile(path string) (*os.File, error) {
	return os.Create(path)
}
