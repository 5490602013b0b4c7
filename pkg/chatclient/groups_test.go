package chatclient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intern-chat/internal/chat"
)

func entryAt(sender string, at time.Time) Entry {
	return Entry{Msg: &chat.Message{Sender: sender, Kind: chat.KindText, CreatedAt: at}}
}

func TestRenderEmptyAndSingle(t *testing.T) {
	assert.Empty(t, Render(nil))

	one := Render([]Entry{entryAt("SV001", time.Now())})
	require.Len(t, one, 1)
	assert.True(t, one[0].ShowHeader)
	assert.True(t, one[0].ShowIndicator)
}

func TestRenderMergesSameSenderWithinGap(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	entries := []Entry{
		entryAt("SV001", base),
		entryAt("SV001", base.Add(5*time.Minute)),
		entryAt("SV001", base.Add(10*time.Minute)),
	}

	out := Render(entries)
	require.Len(t, out, 3)

	assert.True(t, out[0].ShowHeader, "first of the sequence carries the timestamp")
	assert.False(t, out[1].ShowHeader)
	assert.False(t, out[2].ShowHeader)

	assert.False(t, out[0].ShowIndicator)
	assert.False(t, out[1].ShowIndicator)
	assert.True(t, out[2].ShowIndicator, "last of the sequence carries the indicator")
}

func TestRenderBreaksOnSenderChange(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	entries := []Entry{
		entryAt("SV001", base),
		entryAt("SV002", base.Add(time.Minute)),
		entryAt("SV001", base.Add(2*time.Minute)),
	}

	out := Render(entries)
	for i := range out {
		assert.True(t, out[i].ShowHeader, "every sender change opens a sequence")
		assert.True(t, out[i].ShowIndicator, "every sender change closes the previous one")
	}
}

func TestRenderBreaksOnHourGap(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	entries := []Entry{
		entryAt("SV001", base),
		entryAt("SV001", base.Add(59*time.Minute)),
		entryAt("SV001", base.Add(59*time.Minute).Add(SequenceGap)),
	}

	out := Render(entries)
	assert.False(t, out[1].ShowHeader, "59 minutes is still the same sequence")
	assert.True(t, out[1].ShowIndicator)
	assert.True(t, out[2].ShowHeader, "a full hour of silence starts a new one")
}

func TestRenderIsDeterministic(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	entries := []Entry{
		entryAt("SV001", base),
		entryAt("SV001", base.Add(time.Minute)),
		entryAt("GV010", base.Add(2*time.Minute)),
		entryAt("GV010", base.Add(3*time.Hour)),
	}

	first := Render(entries)
	second := Render(entries)
	assert.Equal(t, first, second)
}
