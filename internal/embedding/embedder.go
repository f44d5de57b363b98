// Package embedding holds the text embedders used to build knowledge indexes.
package embedding

// IsZero reports whether every component of v is zero, which is what the
// local embedder returns for text made only of unknown words.
func IsZero(v []float64) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
