package audio

// BytesToInt16 converts little-endian 16-bit PCM bytes to samples. A trailing
// odd byte is ignored.
func BytesToInt16(buf []byte) []int16 {
	samples := make([]int16, 0, len(buf)/2)
	for i := 0; i+1 < len(buf); i += 2 {
		samples = append(samples, int16(uint16(buf[i])|uint16(buf[i+1])<<8))
	}
	return samples
}

// Int16ToBytes converts samples to little-endian 16-bit PCM bytes.
func Int16ToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, sample := range samples {
		buf[i*2] = byte(sample)
		buf[i*2+1] = byte(sample >> 8)
	}
	return buf
}
