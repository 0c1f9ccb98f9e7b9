package utils

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
)

// FFmpeg wraps the ffmpeg and ffprobe binaries
type FFmpeg struct {
	exec        Executor
	ffmpegPath  string
	ffprobePath string
}

// NewFFmpeg creates an FFmpeg wrapper. Empty paths fall back to the binaries on PATH.
func NewFFmpeg(exec Executor, ffmpegPath, ffprobePath string) *FFmpeg {
	if strings.TrimSpace(ffmpegPath) == "" {
		ffmpegPath = "ffmpeg"
	}
	if strings.TrimSpace(ffprobePath) == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpeg{exec: exec, ffmpegPath: ffmpegPath, ffprobePath: ffprobePath}
}

// ProbeResult is the parsed ffprobe JSON output
type ProbeResult struct {
	Streams []ProbeStream `json:"streams"`
	Format  ProbeFormat   `json:"format"`
}

// ProbeStream describes a single stream in the container
type ProbeStream struct {
	Index     int    `json:"index"`
	CodecName string `json:"codec_name"`
	CodecType string `json:"codec_type"`
	Duration  string `json:"duration"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// ProbeFormat captures container-level metadata
type ProbeFormat struct {
	Filename   string `json:"filename"`
	NBStreams  int    `json:"nb_streams"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	FormatName string `json:"format_name"`
}

// VideoStream returns the first video stream
func (r ProbeResult) VideoStream() (ProbeStream, bool) {
	for _, s := range r.Streams {
		if strings.EqualFold(s.CodecType, "video") {
			return s, true
		}
	}
	return ProbeStream{}, false
}

// StreamCount returns the number of streams of the given type
func (r ProbeResult) StreamCount(codecType string) int {
	count := 0
	for _, s := range r.Streams {
		if strings.EqualFold(s.CodecType, codecType) {
			count++
		}
	}
	return count
}

// DurationSeconds returns the container duration, falling back to the longest stream.
// Returns 0 when unavailable.
func (r ProbeResult) DurationSeconds() float64 {
	if d := parseSeconds(r.Format.Duration); d > 0 {
		return d
	}
	longest := 0.0
	for _, s := range r.Streams {
		if d := parseSeconds(s.Duration); d > longest {
			longest = d
		}
	}
	return longest
}

func parseSeconds(value string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

// Probe runs ffprobe against path and decodes the JSON response
func (f *FFmpeg) Probe(ctx context.Context, path string) (ProbeResult, error) {
	if strings.TrimSpace(path) == "" {
		return ProbeResult{}, errors.New("ffprobe: empty path")
	}
	out, err := f.exec.Execute(ctx, f.ffprobePath,
		"-v", "error",
		"-hide_banner",
		"-show_format",
		"-show_streams",
		"-of", "json",
		"--", path,
	)
	if err != nil {
		return ProbeResult{}, fmt.Errorf("ffprobe error: %w", err)
	}

	var result ProbeResult
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		return ProbeResult{}, fmt.Errorf("ffprobe parse: %w", err)
	}
	return result, nil
}

// GetDuration returns the duration of a media file in seconds
func (f *FFmpeg) GetDuration(ctx context.Context, path string) (float64, error) {
	result, err := f.Probe(ctx, path)
	if err != nil {
		return 0, err
	}
	d := result.DurationSeconds()
	if d <= 0 {
		return 0, fmt.Errorf("no duration reported for %s", filepath.Base(path))
	}
	return d, nil
}

// Run executes ffmpeg in dir (empty for the current directory)
func (f *FFmpeg) Run(ctx context.Context, dir string, args []string) error {
	full := append([]string{"-hide_banner", "-nostdin", "-loglevel", "error"}, args...)
	if _, err := f.exec.ExecuteInDir(ctx, dir, f.ffmpegPath, full...); err != nil {
		return fmt.Errorf("ffmpeg error: %w", err)
	}
	return nil
}

// AudioInput is one input of ConcatAudio. InputArgs describe raw formats (e.g. "-f s16le").
type AudioInput struct {
	Path      string
	InputArgs []string
}

// ConcatAudio joins audio inputs in order into a single mp3, resampled to sampleRate
func (f *FFmpeg) ConcatAudio(ctx context.Context, inputs []AudioInput, outputFile string, sampleRate int, bitrate string) error {
	if len(inputs) == 0 {
		return fmt.Errorf("no input files provided")
	}

	args := []string{}
	for i, in := range inputs {
		if in.Path == "" {
			return fmt.Errorf("empty input file path at index %d", i)
		}
		absPath, err := filepath.Abs(in.Path)
		if err != nil {
			return fmt.Errorf("failed to get absolute path for %s: %w", in.Path, err)
		}
		args = append(args, in.InputArgs...)
		args = append(args, "-i", absPath)
	}

	// Normalize every input before concat so sample formats line up
	filterParts := []string{}
	concatInputs := ""
	for i := range inputs {
		filterParts = append(filterParts,
			fmt.Sprintf("[%d:a]aformat=sample_rates=%d:channel_layouts=mono[a%d]", i, sampleRate, i))
		concatInputs += fmt.Sprintf("[a%d]", i)
	}
	filterParts = append(filterParts, fmt.Sprintf("%sconcat=n=%d:v=0:a=1[aout]", concatInputs, len(inputs)))

	args = append(args,
		"-filter_complex", strings.Join(filterParts, ";"),
		"-map", "[aout]",
		"-c:a", "libmp3lame",
		"-ar", strconv.Itoa(sampleRate),
		"-b:a", bitrate,
		"-y", outputFile,
	)

	return f.Run(ctx, "", args)
}
