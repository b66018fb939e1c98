package audio

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Toolkit provides the three audio primitives the pipeline needs:
// transcoding to a canonical WAV, exclusive-end slicing, and concatenation.
type Toolkit struct {
	ffmpegBinary string
}

// NewToolkit returns a Toolkit that shells out to ffmpegBinary.
func NewToolkit(ffmpegBinary string) *Toolkit {
	if ffmpegBinary == "" {
		ffmpegBinary = "ffmpeg"
	}
	return &Toolkit{ffmpegBinary: ffmpegBinary}
}

// ToWav16kMono converts an arbitrary supported container at srcPath into a
// 16kHz mono PCM16 WAV at destPath.
func (t *Toolkit) ToWav16kMono(ctx context.Context, srcPath, destPath string) error {
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", srcPath,
		"-map", "0:a:0",
		"-vn", "-sn", "-dn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		destPath,
	}
	cmd := exec.CommandContext(ctx, t.ffmpegBinary, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg transcode: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

// ProbeDurationMs shells out to ffprobe to read a source file's duration
// without transcoding it, used for the enrollment raw-duration gate.
func (t *Toolkit) ProbeDurationMs(ctx context.Context, path string) (int, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}
	cmd := exec.CommandContext(ctx, "ffprobe", args...)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration: %w", err)
	}
	seconds, err := strconv.ParseFloat(strings.TrimSpace(string(output)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse ffprobe duration: %w", err)
	}
	return int(seconds * 1000), nil
}

// ReadWav decodes a 16kHz mono PCM WAV file into float32 samples in [-1,1].
func ReadWav(path string) ([]float32, int, error) {
	decoder, err := wavDecoderForFile(path)
	if err != nil {
		return nil, 0, err
	}
	defer decoder.Close()

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("decode wav: %w", err)
	}

	scale := float32(1)
	if decoder.BitDepth > 0 {
		scale = 1 / float32(int64(1)<<(decoder.BitDepth-1))
	}
	samples := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = float32(v) * scale
	}
	return samples, int(decoder.SampleRate), nil
}

// WriteWav encodes float32 samples in [-1,1] as a 16kHz mono PCM16 WAV file.
func WriteWav(path string, samples []float32) error {
	out, err := createFile(path)
	if err != nil {
		return err
	}
	defer out.Close()

	encoder := wav.NewEncoder(out, 16000, 16, 1, 1)

	ints := make([]int, len(samples))
	for i, s := range samples {
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		ints[i] = int(s * 32767)
	}

	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: 16000},
		Data:           ints,
		SourceBitDepth: 16,
	}

	if err := encoder.Write(buf); err != nil {
		return fmt.Errorf("encode wav: %w", err)
	}
	return encoder.Close()
}

// Extract slices [t0Ms, t1Ms) (exclusive end) out of the 16kHz mono WAV at
// srcPath and writes it to destPath.
func (t *Toolkit) Extract(srcPath string, t0Ms, t1Ms int, destPath string) error {
	samples, sampleRate, err := ReadWav(srcPath)
	if err != nil {
		return err
	}

	start := msToSample(t0Ms, sampleRate)
	end := msToSample(t1Ms, sampleRate)
	if start < 0 {
		start = 0
	}
	if end > len(samples) {
		end = len(samples)
	}
	if start >= end {
		return WriteWav(destPath, nil)
	}

	return WriteWav(destPath, samples[start:end])
}

// Stitch concatenates the [t0,t1) slices of srcPath, in the given order,
// with no gap, into a single WAV at destPath.
func (t *Toolkit) Stitch(srcPath string, ranges [][2]int, destPath string) error {
	samples, sampleRate, err := ReadWav(srcPath)
	if err != nil {
		return err
	}

	var out []float32
	for _, r := range ranges {
		start := msToSample(r[0], sampleRate)
		end := msToSample(r[1], sampleRate)
		if start < 0 {
			start = 0
		}
		if end > len(samples) {
			end = len(samples)
		}
		if start >= end {
			continue
		}
		out = append(out, samples[start:end]...)
	}

	return WriteWav(destPath, out)
}

func msToSample(ms, sampleRate int) int {
	return ms * sampleRate / 1000
}
