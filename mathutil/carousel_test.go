package mathutil_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xeptore/crateclip/mathutil"
)

func TestOptimalCarouselSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		total int
		max   int
		size  int
	}{
		{2, 10, 2},
		{10, 10, 10},
		{11, 10, 6},
		{12, 10, 6},
		{21, 10, 7},
		{6, 4, 3},
	}
	for _, test := range tests {
		assert.Equal(t, test.size, mathutil.OptimalCarouselSize(test.total, test.max), "total=%d max=%d", test.total, test.max)
	}
}
