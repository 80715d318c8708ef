package audio

import "math"

// RMS computes the root-mean-square level of little-endian int16 PCM data.
// It returns 0 for empty input. The gateway's voice-activity detector
// compares this against its voice and silence thresholds; the client uses it
// for local barge-in detection during playback.
func RMS(pcm []byte) int {
	count := len(pcm) / 2
	if count == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < count; i++ {
		s := float64(int16(pcm[i*2]) | int16(pcm[i*2+1])<<8)
		sum += s * s
	}
	return int(math.Sqrt(sum / float64(count)))
}
