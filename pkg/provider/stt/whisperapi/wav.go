package whisperapi

import "encoding/binary"

// wrapWAV wraps raw 16-bit little-endian PCM in a minimal RIFF/WAVE
// container with padMs milliseconds of silence before and after the payload.
func wrapWAV(pcm []byte, sampleRate, channels, padMs int) []byte {
	pad := sampleRate * channels * 2 * padMs / 1000
	dataLen := len(pcm) + 2*pad

	buf := make([]byte, 44+dataLen)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataLen))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*channels*2))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(channels*2))
	binary.LittleEndian.PutUint16(buf[34:36], 16)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataLen))
	copy(buf[44+pad:], pcm)
	return buf
}
