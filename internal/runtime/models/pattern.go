package models

// SourcePattern returns n bytes where byte i equals i mod 256.
func SourcePattern(n int) []byte {
	if n <= 0 {
		return []byte{}
	}
	p := make([]byte, n)
	for i := range p {
		p[i] = byte(i)
	}
	return p
}
