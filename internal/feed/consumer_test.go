package feed

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixtureSource struct {
	mu       sync.Mutex
	queue    []*Envelope
	polled   int
}

func (f *fixtureSource) Poll(ctx context.Context, ttwSeconds int) (*Envelope, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polled++
	if len(f.queue) == 0 {
		return &Envelope{}, nil
	}
	next := f.queue[0]
	f.queue = f.queue[1:]
	return next, nil
}

type fixtureSink struct {
	mu       sync.Mutex
	accepted []*Package
}

func (f *fixtureSink) Accept(ctx context.Context, pkg *Package) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accepted = append(f.accepted, pkg)
	return nil
}

func (f *fixtureSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.accepted)
}

func TestConsumer_DispatchesNonNullPackagesToSink(t *testing.T) {
	source := &fixtureSource{queue: []*Envelope{
		{Package: &Package{KillID: 1}},
		{},
		{Package: &Package{KillID: 2}},
	}}
	sink := &fixtureSink{}
	consumer := NewConsumer(source, sink, 1, 10, 5)

	require.NoError(t, consumer.Start(context.Background()))
	assert.Eventually(t, func() bool { return sink.count() == 2 }, time.Second, time.Millisecond)
	require.NoError(t, consumer.Stop())

	snapshot := consumer.Snapshot()
	assert.Equal(t, int64(2), snapshot.KillmailsFound)
	assert.GreaterOrEqual(t, snapshot.NullResponses, int64(1))
}

func TestConsumer_StartTwiceFails(t *testing.T) {
	source := &fixtureSource{}
	sink := &fixtureSink{}
	consumer := NewConsumer(source, sink, 1, 10, 5)

	require.NoError(t, consumer.Start(context.Background()))
	assert.Error(t, consumer.Start(context.Background()))
	require.NoError(t, consumer.Stop())
}

func TestPackage_ToStoreEvent(t *testing.T) {
	victimAlliance := int64(10)
	killmail := Killmail{
		KillmailID:    42,
		KillmailTime:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		SolarSystemID: 30000142,
		Victim:        Victim{AllianceID: &victimAlliance},
		Attackers:     []Attacker{{FinalBlow: true}},
	}
	body, err := json.Marshal(killmail)
	require.NoError(t, err)

	pkg := &Package{KillID: 42, Killmail: body, ZKB: Metadata{TotalValue: 1234.9, Href: "https://zkillboard.com/kill/42/"}}

	event, err := pkg.ToStoreEvent(time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(42), event.KillmailID)
	assert.Equal(t, int64(30000142), event.SystemID)
	assert.Equal(t, "1235", event.IskValueStr)
	assert.Equal(t, &victimAlliance, event.VictimAllianceID)
	assert.Len(t, event.AttackerCharacterIDs, 1)
}
