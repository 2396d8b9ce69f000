package show

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/wav"
)

var audioExts = []string{".mp3", ".wav"}

// AudioPath finds the audio file for song under dataDir/songs.
func AudioPath(dataDir, song string) (string, error) {
	dir := filepath.Join(dataDir, "songs")
	candidates := []string{filepath.Join(dir, filepath.Base(song))}
	for _, ext := range audioExts {
		candidates = append(candidates, filepath.Join(dir, SongName(song)+ext))
	}
	for _, path := range candidates {
		if st, err := os.Stat(path); err == nil && !st.IsDir() {
			return path, nil
		}
	}
	return "", fmt.Errorf("show: no audio for %q in %s: %w", song, dir, os.ErrNotExist)
}

func decodeAudio(r io.ReadCloser, ext string) (beep.StreamSeekCloser, beep.Format, error) {
	switch strings.ToLower(ext) {
	case ".mp3":
		return mp3.Decode(r)
	case ".wav":
		return wav.Decode(r)
	}
	return nil, beep.Format{}, fmt.Errorf("unsupported audio format %q", ext)
}

// AudioLength decodes the header of an mp3 or wav file and returns its
// duration in seconds.
func AudioLength(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("show: %w", err)
	}
	stream, format, err := decodeAudio(f, filepath.Ext(path))
	if err != nil {
		f.Close()
		return 0, fmt.Errorf("show: decode %s: %w", path, err)
	}
	defer stream.Close()
	return format.SampleRate.D(stream.Len()).Seconds(), nil
}

// Length sources, reported alongside the resolved song length.
const (
	LengthFromMetadata = "metadata"
	LengthFromAudio    = "audio"
	LengthFromCues     = "cues"
	LengthUnknown      = "unknown"
)

// ResolveLength picks a song length from, in order: the analyzer's metadata,
// the audio file, and the end of the last cue.
func ResolveLength(dataDir, song string, meta *Metadata, cuesEnd float64) (float64, string) {
	if meta != nil && meta.Length > 0 {
		return meta.Length, LengthFromMetadata
	}
	if path, err := AudioPath(dataDir, song); err == nil {
		if n, err := AudioLength(path); err == nil && n > 0 {
			return n, LengthFromAudio
		}
	}
	if cuesEnd > 0 {
		return cuesEnd, LengthFromCues
	}
	return 0, LengthUnknown
}
