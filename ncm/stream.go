package ncm

// Keystream derives the 256 byte block that is repeated over the whole
// payload. Unlike RC4 the state never advances, so the stream has a
// period of 256.
func (s *Permutation) Keystream() [RC4SBoxSize]byte {
	var stream [RC4SBoxSize]byte
	for i := range stream {
		j := (int(s[i]) + int(s[(i+int(s[i]))&0xFF])) & 0xFF
		stream[i] = s[j]
	}
	return stream
}

// Decrypt XORs payload with the keystream. Byte i uses stream[(i+1)%256].
func (s *Permutation) Decrypt(payload []byte) []byte {
	stream := s.Keystream()
	out := make([]byte, len(payload))
	for i, b := range payload {
		out[i] = b ^ stream[(i+1)&0xFF]
	}
	return out
}
