package chatclient

import "time"

// SequenceGap is the silence that breaks two messages from the same
// sender into separate visual sequences.
const SequenceGap = time.Hour

// Rendered is an Entry plus its presentation flags: the first message
// of a sequence carries the timestamp header, the last carries the
// sent/read indicator.
type Rendered struct {
	Entry
	ShowHeader    bool
	ShowIndicator bool
}

// Render computes the sequence grouping for an ordered message list.
// Pure function of its input: same list in, same flags out.
func Render(entries []Entry) []Rendered {
	out := make([]Rendered, len(entries))
	for i, e := range entries {
		out[i] = Rendered{Entry: e}

		startsSequence := i == 0 ||
			entries[i-1].Msg.Sender != e.Msg.Sender ||
			e.Msg.CreatedAt.Sub(entries[i-1].Msg.CreatedAt) >= SequenceGap
		out[i].ShowHeader = startsSequence

		endsSequence := i == len(entries)-1 ||
			entries[i+1].Msg.Sender != e.Msg.Sender ||
			entries[i+1].Msg.CreatedAt.Sub(e.Msg.CreatedAt) >= SequenceGap
		out[i].ShowIndicator = endsSequence
	}
	return out
}
