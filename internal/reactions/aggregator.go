package reactions

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Truncation length for comment text on the display feed.
const commentDisplayLimit = 80

// Aggregator classifies inbound broadcast messages, rejects cross-tenant
// noise, and maintains the running counters and the bounded activity feed.
// Counters only ever increment; both are cleared explicitly via Reset.
type Aggregator struct {
	limit  int
	logger *slog.Logger
	hooks  Hooks

	// newID generates feed entry ids; overridable in tests.
	newID func() string

	stats *Signal[Stats]
	feed  *Signal[[]FeedEntry]
}

// NewAggregator creates an Aggregator with the given feed bound.
func NewAggregator(feedLimit int, logger *slog.Logger, hooks Hooks) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	if feedLimit < 1 {
		feedLimit = 1
	}
	return &Aggregator{
		limit:  feedLimit,
		logger: logger,
		hooks:  hooks,
		newID:  func() string { return uuid.NewString() },
		stats:  NewSignal(emptyStats()),
		feed:   NewSignal([]FeedEntry{}),
	}
}

// Handle unwraps one envelope and applies it to the counters and feed.
// Messages for a different tenant and unrecognized kinds are discarded
// silently. Mutation happens only here and in Reset, never concurrently:
// the provider delivers envelopes from a single goroutine.
func (a *Aggregator) Handle(env Envelope, expectedTenant string) {
	var wire broadcastWire
	if err := json.Unmarshal(env.Payload, &wire); err != nil {
		a.logger.Debug("dropping malformed broadcast payload", "event", env.Event, "error", err)
		a.discard("malformed")
		return
	}

	if wire.TenantID != expectedTenant {
		// Cross-tenant leakage on shared infrastructure; never counted.
		a.discard("foreign_tenant")
		return
	}

	switch wire.Type {
	case "reaction":
		a.handleReaction(wire.Data)
	case "comment":
		a.handleComment(wire.Data)
	default:
		// Forward compatibility: future message shapes are not an error.
		a.logger.Debug("ignoring unrecognized broadcast kind", "kind", wire.Type)
		a.discard("unknown_kind")
	}
}

// Stats returns a snapshot of the current counters. The returned map is a
// copy; callers may not mutate aggregate state except through Reset.
func (a *Aggregator) Stats() Stats {
	st := a.stats.Get()
	return Stats{Reactions: copyCounts(st.Reactions), TotalComments: st.TotalComments}
}

// Feed returns the current activity feed, newest first.
func (a *Aggregator) Feed() []FeedEntry {
	return a.feed.Get()
}

// StatsSignal exposes the counters as a reactive value.
func (a *Aggregator) StatsSignal() *Signal[Stats] {
	return a.stats
}

// FeedSignal exposes the activity feed as a reactive value.
func (a *Aggregator) FeedSignal() *Signal[[]FeedEntry] {
	return a.feed
}

// Reset zeroes all counters and clears the feed. Never called automatically.
func (a *Aggregator) Reset() {
	a.stats.Set(emptyStats())
	a.feed.Set([]FeedEntry{})
}

func (a *Aggregator) handleReaction(data json.RawMessage) {
	var r reactionWire
	if err := json.Unmarshal(data, &r); err != nil || r.Type == "" {
		a.logger.Debug("dropping malformed reaction", "error", err)
		a.discard("malformed")
		return
	}

	st := a.stats.Get()
	counts := copyCounts(st.Reactions)
	counts[r.Type]++
	a.stats.Set(Stats{Reactions: counts, TotalComments: st.TotalComments})

	a.prepend(FeedEntry{
		ID:        a.newID(),
		Kind:      "reaction",
		Emoji:     EmojiFor(r.Type),
		Reaction:  r.Type,
		UserName:  displayName(r.UserName),
		Timestamp: time.UnixMilli(r.Timestamp),
	})

	if a.hooks.MessageHandled != nil {
		a.hooks.MessageHandled("reaction")
	}
}

func (a *Aggregator) handleComment(data json.RawMessage) {
	var c commentWire
	if err := json.Unmarshal(data, &c); err != nil {
		a.logger.Debug("dropping malformed comment", "error", err)
		a.discard("malformed")
		return
	}

	st := a.stats.Get()
	a.stats.Set(Stats{Reactions: copyCounts(st.Reactions), TotalComments: st.TotalComments + 1})

	a.prepend(FeedEntry{
		ID:        a.newID(),
		Kind:      "comment",
		Text:      truncateComment(c.Text),
		UserName:  displayName(c.UserName),
		Timestamp: time.UnixMilli(c.Timestamp),
	})

	if a.hooks.MessageHandled != nil {
		a.hooks.MessageHandled("comment")
	}
}

// prepend inserts at the front and evicts from the back once the bound is
// reached, so the feed length never exceeds the limit.
func (a *Aggregator) prepend(entry FeedEntry) {
	cur := a.feed.Get()
	next := make([]FeedEntry, 0, min(len(cur)+1, a.limit))
	next = append(next, entry)
	for _, e := range cur {
		if len(next) >= a.limit {
			break
		}
		next = append(next, e)
	}
	a.feed.Set(next)
}

func (a *Aggregator) discard(reason string) {
	if a.hooks.MessageDiscarded != nil {
		a.hooks.MessageDiscarded(reason)
	}
}

func emptyStats() Stats {
	return Stats{Reactions: make(map[string]int)}
}

func copyCounts(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func displayName(name string) string {
	if name == "" {
		return "Anonymous"
	}
	return name
}

// truncateComment bounds comment text for the display feed, appending an
// ellipsis when cut. Operates on runes so multi-byte text stays intact.
func truncateComment(text string) string {
	runes := []rune(text)
	if len(runes) <= commentDisplayLimit {
		return text
	}
	return string(runes[:commentDisplayLimit]) + "…"
}
