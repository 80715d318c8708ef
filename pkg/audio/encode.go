package audio

// EncodeBlock quantises a block of float32 samples in [-1.0, 1.0] to signed
// 16-bit integers. Each sample is multiplied by gain, scaled to the int16
// range, and clamped to [-32768, 32767] so that hot input (or a gain above
// 1.0) saturates instead of wrapping around.
//
// This runs once per capture callback on the capture goroutine: it performs
// no I/O and exactly one allocation (the output slice). A nil or empty input
// returns nil — an absent capture buffer is not an error, the pipeline just
// waits for the next callback.
func EncodeBlock(samples []float32, gain float32) []int16 {
	if len(samples) == 0 {
		return nil
	}
	out := make([]int16, len(samples))
	for i, s := range samples {
		v := int32(s * gain * 32767)
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		out[i] = int16(v)
	}
	return out
}

// EncodeBlockBytes is EncodeBlock with the result serialised as little-endian
// PCM bytes, ready to hand to the transport as one outbound frame.
func EncodeBlockBytes(samples []float32, gain float32) []byte {
	if len(samples) == 0 {
		return nil
	}
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := int32(s * gain * 32767)
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}
