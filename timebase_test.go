package mixer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTimeBaseAnchor(t *testing.T) {
	tb := newTimeBase(44100, 1e9)
	assert.False(t, tb.Anchored())

	// first conversion anchors position zero
	assert.Equal(t, int64(0), tb.PositionFor(1e9))
	assert.True(t, tb.Anchored())

	assert.Equal(t, int64(44100), tb.PositionFor(2e9))
	assert.Equal(t, int64(-44100), tb.PositionFor(0))
}

func TestTimeBaseHostTimeAt(t *testing.T) {
	tb := newTimeBase(100, 100)
	_, ok := tb.HostTimeAt(0)
	assert.False(t, ok)

	tb.PositionFor(50)
	host, ok := tb.HostTimeAt(0)
	assert.True(t, ok)
	assert.Equal(t, HostTime(50), host)

	host, ok = tb.HostTimeAt(25)
	assert.True(t, ok)
	assert.Equal(t, HostTime(75), host)
}

func TestSourcePositionAnchor(t *testing.T) {
	tb := newTimeBase(100, 100)
	a := &source{}
	b := &source{}

	assert.Equal(t, int64(0), a.positionFor(50, tb))
	// later chunks extrapolate from the source's own anchor
	assert.Equal(t, int64(100), a.positionFor(150, tb))

	// a second source anchors against the shared time base
	assert.Equal(t, int64(30), b.positionFor(80, tb))
	assert.Equal(t, int64(40), b.positionFor(90, tb))
}
