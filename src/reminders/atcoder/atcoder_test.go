package atcoder

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oooz/oooz-bot/src/config"
	"github.com/oooz/oooz-bot/src/scheduler"
)

const contestsPage = `<!DOCTYPE html><html><head><title>Contest - AtCoder</title></head><body>
<div id="contest-table-upcoming"><h3>Upcoming Contests</h3>
<table class="table"><thead><tr><th>Start Time</th><th>Contest Name</th><th>Duration</th></tr></thead>
<tbody>
<tr>
	<td class="text-center"><a href="http://www.timeanddate.com/x" target="blank"><time class='fixtime fixtime-full'>2024-04-06 21:00:00+0900</time></a></td>
	<td><span aria-hidden='true' data-toggle='tooltip' title="Algorithm">Ⓐ</span> <span class="user-blue">◉</span>
	<a href="/contests/abc348">AtCoder Beginner Contest 348</a></td>
	<td class="text-center">01:40</td>
</tr>
<tr>
	<td class="text-center"><time>2024-04-07 12:00:00+0900</time></td>
	<td><a href="/contests/toyota2024">TOYOTA Programming Contest 2024</a></td>
	<td class="text-center">02:00</td>
</tr>
</tbody></table></div>
<div id="contest-table-recent"><table><tbody>
<tr><td><time>2024-03-30 21:00:00+0900</time></td><td><a href="/contests/abc347">AtCoder Beginner Contest 347</a></td></tr>
</tbody></table></div>
</body></html>`

func TestParseUpcoming(t *testing.T) {
	contests, err := ParseUpcoming([]byte(contestsPage))
	require.NoError(t, err)
	require.Len(t, contests, 2)
	assert.Equal(t, "abc348", contests[0].ID)
	assert.Equal(t, "AtCoder Beginner Contest 348", contests[0].Title)
	assert.True(t, contests[0].Start.Equal(time.Date(2024, 4, 6, 12, 0, 0, 0, time.UTC)))
	assert.False(t, contests[0].Niche())
	assert.True(t, contests[1].Niche())
	assert.Equal(t, "https://atcoder.jp/contests/toyota2024", contests[1].Link())

	_, err = ParseUpcoming([]byte(`<html><body>maintenance</body></html>`))
	assert.Error(t, err)
}

func TestClientUpcoming(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/contests/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(contestsPage))
	}))
	defer srv.Close()

	contests, err := NewClient(srv.URL+"/", time.Second).Upcoming(context.Background())
	require.NoError(t, err)
	assert.Len(t, contests, 2)
}

type fakeSchedule struct{ contests []Contest }

func (f *fakeSchedule) Upcoming(context.Context) ([]Contest, error) { return f.contests, nil }

type fakePoster struct {
	mu   sync.Mutex
	sent []string
}

func (p *fakePoster) Send(_ context.Context, _, content string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, content)
	return nil
}

func TestPollReplacesReminders(t *testing.T) {
	now := time.Date(2024, 4, 6, 0, 0, 0, 0, time.UTC)
	sched := scheduler.New(scheduler.Options{Now: func() time.Time { return now }})
	defer sched.Stop()
	schedule := &fakeSchedule{contests: []Contest{
		{ID: "abc348", Title: "AtCoder Beginner Contest 348", Start: now.Add(12 * time.Hour)},
		{ID: "soon", Title: "Starts too soon", Start: now.Add(5 * time.Minute)},
	}}
	cfg := config.Default().AtCoder
	cfg.Channel = "900"
	r := New(Deps{
		Schedule:  schedule,
		Scheduler: sched,
		Poster:    &fakePoster{},
		Config:    func() config.AtCoder { return cfg },
		Now:       func() time.Time { return now },
	})
	ctx := context.Background()

	require.NoError(t, r.Poll(ctx))
	assert.Equal(t, []string{"atcoder:contest:abc348"}, sched.Keys())

	schedule.contests = []Contest{{ID: "arc175", Title: "AtCoder Regular Contest 175", Start: now.Add(36 * time.Hour)}}
	require.NoError(t, r.Poll(ctx))
	assert.Equal(t, []string{"atcoder:contest:arc175"}, sched.Keys())

	r.Stop()
	assert.Empty(t, sched.Keys())
}

func TestRemindPostsAnnouncement(t *testing.T) {
	cfg := config.Default().AtCoder
	poster := &fakePoster{}
	r := New(Deps{Poster: poster, Config: func() config.AtCoder { return cfg }})
	c := Contest{ID: "abc348", Title: "AtCoder Beginner Contest 348", Start: time.Unix(1712404800, 0)}

	r.remind(context.Background(), c)
	assert.Empty(t, poster.sent)

	cfg.Channel, cfg.Role = "900", "77"
	r.remind(context.Background(), c)
	require.Len(t, poster.sent, 1)
	assert.Equal(t, "<@&77> [AtCoder Beginner Contest 348](https://atcoder.jp/contests/abc348) zaczyna się <t:1712404800:R>! 🔔", poster.sent[0])

	niche := Contest{ID: "toyota2024", Title: "TOYOTA Programming Contest 2024", Start: time.Unix(1712458800, 0)}
	assert.Equal(t, "[TOYOTA Programming Contest 2024](https://atcoder.jp/contests/toyota2024) zaczyna się <t:1712458800:R>! 🔔", Reminder(niche, "77"))
}
