package staging

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testLimitBytes = 10 * 1024 * 1024

func png(name string, size int) Candidate {
	return Candidate{Name: name, MIME: "image/png", Data: make([]byte, size)}
}

func TestStageRejectsWrongType(t *testing.T) {
	m := NewManager(5, testLimitBytes, nil)

	err := m.Stage(Candidate{Name: "notes.pdf", MIME: "application/pdf", Data: []byte("x")})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, ReasonWrongType, verr.Reason)
	assert.Equal(t, "notes.pdf", verr.Name)
	assert.Zero(t, m.Count())
	assert.False(t, m.PreviewVisible())
}

func TestStageRejectsOversize(t *testing.T) {
	m := NewManager(5, testLimitBytes, nil)

	err := m.Stage(png("huge.png", testLimitBytes+1))

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, ReasonTooLarge, verr.Reason)
	assert.Zero(t, m.Count())
}

func TestStagedCountNeverExceedsLimit(t *testing.T) {
	m := NewManager(5, testLimitBytes, nil)

	var rejections int
	for i := 0; i < 12; i++ {
		if err := m.Stage(png(fmt.Sprintf("img-%d.png", i), 64)); err != nil {
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, ReasonLimitReached, verr.Reason)
			rejections++
		}
		m.Wait()
		assert.LessOrEqual(t, m.Count(), 5)
	}
	m.Wait()

	assert.Equal(t, 5, m.Count())
	assert.Equal(t, 7, rejections)
}

func TestStageEncodesDataURL(t *testing.T) {
	m := NewManager(5, testLimitBytes, nil)

	require.NoError(t, m.Stage(Candidate{Name: "dot.png", MIME: "image/png", Data: []byte{1, 2, 3}}))
	m.Wait()

	imgs := m.Images()
	require.Len(t, imgs, 1)
	assert.Equal(t, "dot.png", imgs[0].Name)
	assert.Equal(t, int64(3), imgs[0].Size)
	assert.Equal(t, "data:image/png;base64,AQID", imgs[0].DataURL)
	assert.NotEmpty(t, imgs[0].ID)
	assert.True(t, m.PreviewVisible())
}

func TestStageAllContinuesPastFailures(t *testing.T) {
	m := NewManager(5, testLimitBytes, nil)

	rejected := m.StageAll([]Candidate{
		png("ok-1.png", 10),
		{Name: "song.mp3", MIME: "audio/mpeg", Data: []byte("x")},
		png("ok-2.png", 10),
		png("huge.png", testLimitBytes+1),
		png("ok-3.png", 10),
	})
	m.Wait()

	assert.Len(t, rejected, 2)
	assert.Equal(t, 3, m.Count())

	names := map[string]Reason{}
	for _, err := range rejected {
		var verr *ValidationError
		require.True(t, errors.As(err, &verr))
		names[verr.Name] = verr.Reason
	}
	assert.Equal(t, ReasonWrongType, names["song.mp3"])
	assert.Equal(t, ReasonTooLarge, names["huge.png"])
}

func TestConcurrentBatchRespectsCap(t *testing.T) {
	m := NewManager(5, testLimitBytes, nil)

	var cands []Candidate
	for i := 0; i < 9; i++ {
		cands = append(cands, png(fmt.Sprintf("c-%d.png", i), 32))
	}
	rejected := m.StageAll(cands)
	m.Wait()

	assert.Equal(t, 5, m.Count())
	assert.Len(t, rejected, 4)
}

func TestRemoveAndPreviewVisibility(t *testing.T) {
	m := NewManager(5, testLimitBytes, nil)
	require.NoError(t, m.Stage(png("a.png", 8)))
	require.NoError(t, m.Stage(png("b.png", 8)))
	m.Wait()

	require.NoError(t, m.Remove(0))
	assert.Equal(t, 1, m.Count())
	assert.True(t, m.PreviewVisible())

	require.NoError(t, m.Remove(0))
	assert.Zero(t, m.Count())
	assert.False(t, m.PreviewVisible(), "preview clears when the set empties")

	assert.Error(t, m.Remove(0))
}

func TestClear(t *testing.T) {
	m := NewManager(5, testLimitBytes, nil)
	require.NoError(t, m.Stage(png("a.png", 8)))
	m.Wait()

	m.Clear()
	assert.Zero(t, m.Count())
	assert.False(t, m.PreviewVisible())
}

func TestTakeAllEmptiesSet(t *testing.T) {
	var updates int
	m := NewManager(5, testLimitBytes, func() { updates++ })
	require.NoError(t, m.Stage(png("a.png", 8)))
	m.Wait()

	taken := m.TakeAll()
	assert.Len(t, taken, 1)
	assert.Zero(t, m.Count())
	assert.False(t, m.PreviewVisible())
	assert.GreaterOrEqual(t, updates, 2)
}
