// Package topicindex keeps the derived message → topic-name membership view
// used for badge rendering. The index is rebuilt wholesale from server topic
// snapshots on reload and patched only with mutations the backend confirmed.
package topicindex

import (
	"slices"

	"curator/internal/feed"
)

// Membership is one topic's entry in a reload snapshot.
type Membership struct {
	Topic     string
	IDs       []int64
	Snapshots []feed.Snapshot
}

// FromRecords converts GET /api/topics records into memberships, keeping
// server order.
func FromRecords(records []feed.TopicRecord) []Membership {
	out := make([]Membership, 0, len(records))
	for _, rec := range records {
		out = append(out, Membership{Topic: rec.Name, IDs: rec.MessageIDs, Snapshots: rec.Items})
	}
	return out
}

// Index maps message ids to insertion-ordered topic names. It is not safe for
// concurrent use.
type Index struct {
	byMessage map[int64][]string
}

// New returns an empty index.
func New() *Index {
	return &Index{byMessage: make(map[int64][]string)}
}

// Rebuild replaces the whole index with memberships. Ids listed directly and
// ids embedded in snapshots are merged; duplicates collapse.
func (x *Index) Rebuild(memberships []Membership) {
	next := make(map[int64][]string)
	add := func(id int64, topic string) {
		if id == 0 || topic == "" {
			return
		}
		if slices.Contains(next[id], topic) {
			return
		}
		next[id] = append(next[id], topic)
	}
	for _, m := range memberships {
		for _, id := range m.IDs {
			add(id, m.Topic)
		}
		for _, snap := range m.Snapshots {
			add(snap.MessageID, m.Topic)
		}
	}
	x.byMessage = next
}

// Lookup returns the topics of messageID in insertion order. Unknown ids
// yield an empty, non-nil slice.
func (x *Index) Lookup(messageID int64) []string {
	topics := x.byMessage[messageID]
	return append(make([]string, 0, len(topics)), topics...)
}

// AddEntry appends topic to messageID unless already present.
func (x *Index) AddEntry(messageID int64, topic string) {
	if topic == "" {
		return
	}
	if slices.Contains(x.byMessage[messageID], topic) {
		return
	}
	x.byMessage[messageID] = append(x.byMessage[messageID], topic)
}

// RemoveEntry removes topic from messageID, dropping the key when no topics
// remain.
func (x *Index) RemoveEntry(messageID int64, topic string) {
	topics, ok := x.byMessage[messageID]
	if !ok {
		return
	}
	i := slices.Index(topics, topic)
	if i < 0 {
		return
	}
	topics = slices.Delete(topics, i, i+1)
	if len(topics) == 0 {
		delete(x.byMessage, messageID)
		return
	}
	x.byMessage[messageID] = topics
}

// RemoveTopicEverywhere removes topic from every message and returns the
// affected message ids in ascending order.
func (x *Index) RemoveTopicEverywhere(topic string) []int64 {
	var affected []int64
	for id, topics := range x.byMessage {
		if slices.Contains(topics, topic) {
			affected = append(affected, id)
		}
	}
	for _, id := range affected {
		x.RemoveEntry(id, topic)
	}
	slices.Sort(affected)
	return affected
}

// Has reports whether messageID is tagged with topic.
func (x *Index) Has(messageID int64, topic string) bool {
	return slices.Contains(x.byMessage[messageID], topic)
}

// Topics returns the distinct topic names present in the index, sorted.
func (x *Index) Topics() []string {
	var names []string
	for _, topics := range x.byMessage {
		for _, name := range topics {
			if !slices.Contains(names, name) {
				names = append(names, name)
			}
		}
	}
	slices.Sort(names)
	return names
}

// Len returns the number of tagged messages.
func (x *Index) Len() int {
	return len(x.byMessage)
}

// Messages returns the tagged message ids in ascending order.
func (x *Index) Messages() []int64 {
	ids := make([]int64, 0, len(x.byMessage))
	for id := range x.byMessage {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Reset empties the index.
func (x *Index) Reset() {
	x.byMessage = make(map[int64][]string)
}
