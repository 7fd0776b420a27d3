package models

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errspkg "github.com/drblury/framepub/internal/runtime/errors"
)

func TestCounterTickIncrementsByOne(t *testing.T) {
	var c CounterMessage
	for i := int32(0); i < 5; i++ {
		assert.Equal(t, i, c.Value)
		c.Tick()
	}
}

func TestCounterTickWraps(t *testing.T) {
	c := CounterMessage{Value: math.MaxInt32}
	c.Tick()
	assert.Equal(t, int32(math.MinInt32), c.Value)
}

func TestCounterRoundTrip(t *testing.T) {
	for _, v := range []int32{0, 1, -7, math.MaxInt32, math.MinInt32} {
		c := CounterMessage{Value: v}
		payload, err := c.Marshal()
		require.NoError(t, err)

		got, err := DecodeCounter(payload)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestCounterMarshalZeroIsExplicit(t *testing.T) {
	payload, err := (&CounterMessage{}).Marshal()
	require.NoError(t, err)
	assert.Equal(t, "0", strings.TrimSpace(string(payload)))
}

func TestDecodeCounterRejectsGarbage(t *testing.T) {
	_, err := DecodeCounter([]byte(`{"nope":`))
	assert.Error(t, err)
}

func TestNewFramedBinaryMessage(t *testing.T) {
	m, err := NewFramedBinaryMessage(DefaultFrameID, DefaultFormat, DefaultPayloadCapacity)
	require.NoError(t, err)

	assert.Equal(t, "my_image_topic", m.FrameID())
	assert.Equal(t, len("my_image_topic"), m.frameID.Capacity())
	assert.Equal(t, "jpeg", m.Format())
	assert.Equal(t, len("jpeg"), m.format.Capacity())
	assert.Equal(t, 32, m.Data.Capacity())
	assert.Equal(t, 0, m.Data.Size())
	assert.Equal(t, FrameSchema, m.SchemaName())
}

func TestNewFramedBinaryMessagePropagatesAllocationError(t *testing.T) {
	_, err := NewFramedBinaryMessage("id", "jpeg", -1)
	assert.ErrorIs(t, err, errspkg.ErrAllocation)
}

func TestRefillPayload(t *testing.T) {
	m, err := NewFramedBinaryMessage(DefaultFrameID, DefaultFormat, 4)
	require.NoError(t, err)

	require.NoError(t, m.RefillPayload([]byte{1, 2, 3}))
	assert.Equal(t, 3, m.Data.Size())

	err = m.RefillPayload([]byte{1, 2, 3, 4, 5})
	require.ErrorIs(t, err, errspkg.ErrCapacityExceeded)
	assert.Equal(t, []byte{1, 2, 3}, m.Data.Bytes())
}

func TestFrameRoundTrip(t *testing.T) {
	m, err := NewFramedBinaryMessage(DefaultFrameID, DefaultFormat, DefaultPayloadCapacity)
	require.NoError(t, err)
	require.NoError(t, m.RefillPayload(SourcePattern(DefaultPayloadCapacity)))

	payload, err := m.Marshal()
	require.NoError(t, err)

	frame, err := DecodeFrame(payload)
	require.NoError(t, err)
	assert.Equal(t, "my_image_topic", frame.Header.FrameID)
	assert.Equal(t, "jpeg", frame.Format)
	assert.Equal(t, SourcePattern(32), frame.Data)
}

func TestFrameRelease(t *testing.T) {
	m, err := NewFramedBinaryMessage(DefaultFrameID, DefaultFormat, DefaultPayloadCapacity)
	require.NoError(t, err)

	m.Release()
	assert.True(t, m.frameID.Released())
	assert.True(t, m.format.Released())
	assert.Empty(t, m.FrameID())
	assert.ErrorIs(t, m.RefillPayload([]byte{1}), errspkg.ErrReleased)
}

func TestFrameLabelsSurvivePayloadRefills(t *testing.T) {
	m, err := NewFramedBinaryMessage("camera", "png", 8)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, m.RefillPayload(SourcePattern(8)))
	}
	assert.Equal(t, "camera", m.FrameID())
	assert.Equal(t, "png", m.Format())
}

func TestSourcePattern(t *testing.T) {
	p := SourcePattern(300)
	require.Len(t, p, 300)
	for i, b := range p {
		assert.Equal(t, byte(i%256), b, "index %d", i)
	}
	assert.Empty(t, SourcePattern(0))
	assert.Empty(t, SourcePattern(-3))
}
