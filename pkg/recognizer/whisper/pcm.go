package whisper

import (
	"encoding/binary"
	"math"
)

// rms returns the root-mean-square energy of 16-bit little-endian PCM audio.
func rms(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2])))
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

// durationMs returns the play duration of a PCM byte count in milliseconds.
func durationMs(bytes, sampleRate, channels int) int {
	if sampleRate <= 0 || channels <= 0 {
		return 0
	}
	return bytes * 1000 / (sampleRate * channels * 2)
}

// pcmToMonoFloat32 converts 16-bit little-endian PCM to mono float32 samples
// in [-1, 1], averaging channels per frame when the input is multi-channel.
// A trailing odd byte is ignored.
func pcmToMonoFloat32(pcm []byte, channels int) []float32 {
	if channels <= 0 {
		channels = 1
	}
	frames := len(pcm) / (2 * channels)
	mono := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			off := (i*channels + ch) * 2
			sum += float32(int16(binary.LittleEndian.Uint16(pcm[off:off+2]))) / 32768.0
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}
