package links

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oooz/oooz-bot/src/reminders/codeforces"
)

type fakeCodeforces map[int]*codeforces.Standings

func (f fakeCodeforces) Standings(_ context.Context, contest int) (*codeforces.Standings, error) {
	if s, ok := f[contest]; ok {
		return s, nil
	}
	return nil, errors.New("contest not found")
}

var pages = map[string]string{
	"https://atcoder.jp/contests/abc348/tasks/abc348_a": `<html><head><title>A - Penalty Kick</title></head><body></body></html>`,
	"https://atcoder.jp/contests/abc348": `<html><body><h1><a class="contest-title" href="/contests/abc348">Toyota Programming Contest 2024#4（AtCoder Beginner Contest 348）</a></h1></body></html>`,
	"https://szkopul.edu.pl/problemset/problem/abc123/site": `<html><body><div class="problem-title text-center content-row"><h1>Kolej (VI OI, etap I)</h1></div></body></html>`,
	"https://oj.uz/problem/view/BOI17_ball": `<html><body>
<div class="problem-title text-center"><h1>Ball Machine<br><small>BOI 2017</small></h1></div>
<ul><li><a href="/problem/statement/BOI17_ball">Statement</a></li><li><a href="/problem/submit/BOI17_ball">Submit</a></li></ul>
</body></html>`,
}

func newResolver() *Resolver {
	return &Resolver{
		cf: fakeCodeforces{
			1900: {
				Contest:  codeforces.Contest{ID: 1900, Name: "Codeforces Round 912 (Div. 2)"},
				Problems: []codeforces.Problem{{Index: "A", Name: "Halloumi Boxes"}, {Index: "B", Name: "StORage room"}},
			},
			104114: {Contest: codeforces.Contest{ID: 104114, Name: "2022 ICPC Gran Premio de Mexico"}},
		},
		fetch: func(_ context.Context, url string) ([]byte, error) {
			if p, ok := pages[url]; ok {
				return []byte(p), nil
			}
			return nil, errors.New("404 " + url)
		},
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		raw   string
		want  Problem
		found bool
	}{
		{"https://codeforces.com/contest/1900/problem/b", Problem{"https://codeforces.com/contest/1900/problem/B", "StORage room"}, true},
		{"https://codeforces.com/problemset/problem/1900/A", Problem{"https://codeforces.com/contest/1900/problem/A", "Halloumi Boxes"}, true},
		{"https://codeforces.com//contest/1900/standings", Problem{"https://codeforces.com/contest/1900", "Codeforces Round 912 (Div. 2)"}, true},
		{"https://codeforces.com/gym/104114", Problem{"https://codeforces.com/gym/104114", "2022 ICPC Gran Premio de Mexico"}, true},
		{"https://atcoder.jp/contests/ABC348/tasks/ABC348_A?lang=en", Problem{"https://atcoder.jp/contests/abc348/tasks/abc348_a", "Penalty Kick"}, true},
		{"https://atcoder.jp/contests/abc348/standings", Problem{"https://atcoder.jp/contests/abc348", "Toyota Programming Contest 2024#4（AtCoder Beginner Contest 348）"}, true},
		{"https://szkopul.edu.pl/problemset/problem/abc123/site/?key=statement", Problem{"https://szkopul.edu.pl/problemset/problem/abc123/site", "Kolej"}, true},
		{"https://oj.uz/problem/submit/BOI17_ball", Problem{"https://oj.uz/problem/statement/BOI17_ball", "Ball Machine"}, true},
		{"https://example.com/problem/1", Problem{}, false},
		{"https://codeforces.com/blog/entry/1", Problem{}, false},
	}
	r := newResolver()
	for _, tt := range tests {
		got, found, err := r.Resolve(context.Background(), tt.raw)
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.found, found, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}
}

func TestResolveFailures(t *testing.T) {
	r := newResolver()
	for _, raw := range []string{
		"https://codeforces.com/contest/1900/problem/Z",
		"https://codeforces.com/contest/5/problem/A",
		"https://atcoder.jp/contests/arc001",
	} {
		_, found, err := r.Resolve(context.Background(), raw)
		assert.True(t, found, raw)
		assert.Error(t, err, raw)
	}
}
