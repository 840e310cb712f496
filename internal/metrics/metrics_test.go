package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"arenanet/internal/session"
)

func scrape(t *testing.T, c *Collector) string {
	t.Helper()
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Result().Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(body)
}

func TestCollector(t *testing.T) {
	c := New()
	c.TickDuration(2 * time.Millisecond)
	c.Input(session.InputBuffered, 3)
	c.Input(session.InputHoldLast, 1)
	c.Input(session.InputDropped, 0)
	c.SnapshotSent(4)
	c.MalformedPacket()
	c.Peers([]session.PeerStats{
		{Peer: 1, Host: true, MissingStreak: 0},
		{Peer: 2, RTTMs: 40, JitterMs: 4, DelayTicks: 2, MissingStreak: 3},
		{Peer: 3, RTTMs: 80, JitterMs: 8, DelayTicks: 4},
	})

	body := scrape(t, c)
	for _, want := range []string{
		`arenanet_inputs_total{source="buffered"} 3`,
		`arenanet_inputs_total{source="hold_last"} 1`,
		`arenanet_snapshots_sent_total 1`,
		`arenanet_snapshot_entries 4`,
		`arenanet_malformed_packets_total 1`,
		`arenanet_peers 3`,
		`arenanet_peer_rtt_milliseconds{stat="max"} 80`,
		`arenanet_peer_rtt_milliseconds{stat="avg"} 60`,
		`arenanet_peer_input_delay_ticks{stat="avg"} 3`,
		`arenanet_peer_missing_streak_max 3`,
		`arenanet_tick_duration_seconds_count 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("missing %q", want)
		}
	}
	if strings.Contains(body, `source="dropped"`) {
		t.Error("zero increment created a series")
	}
}

func TestCollectorNoRemotes(t *testing.T) {
	c := New()
	c.Peers([]session.PeerStats{{Peer: 1, Host: true}})
	if body := scrape(t, c); !strings.Contains(body, `arenanet_peer_rtt_milliseconds{stat="avg"} 0`) {
		t.Error("avg not reset with no remote peers")
	}
}
