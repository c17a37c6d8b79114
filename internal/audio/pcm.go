package audio

import "encoding/binary"

// SamplesToBytes converts int16 samples to little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// FloatToInt16 converts a sample in [-1, 1] to int16, clipping out-of-range
// values.
func FloatToInt16(f float32) int16 {
	if f > 1 {
		f = 1
	} else if f < -1 {
		f = -1
	}
	return int16(f * 32767)
}

// Interleave duplicates mono samples into an interleaved stereo int16 frame.
func Interleave(mono []float32, dst []int16) []int16 {
	dst = dst[:0]
	for _, s := range mono {
		v := FloatToInt16(s)
		dst = append(dst, v, v)
	}
	return dst
}
