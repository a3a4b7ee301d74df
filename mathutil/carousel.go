package mathutil

// OptimalCarouselSize splits total media items into evenly sized carousels of
// at most max items each and returns the per-carousel size.
func OptimalCarouselSize(total, max int) int {
	numCarousels := total / max
	if total%max != 0 {
		numCarousels++
	}
	if total%numCarousels == 0 {
		return total / numCarousels
	}
	return total/numCarousels + 1
}
