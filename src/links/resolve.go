package links

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/oooz/oooz-bot/src/reminders/codeforces"
	"github.com/oooz/oooz-bot/src/webclient"
)

const pageLimit = 4 << 20

// Problem is the canonical address and title of a linked task or contest.
type Problem struct {
	URL   string
	Title string
}

// Codeforces is the part of the Codeforces client the resolver needs.
type Codeforces interface {
	Standings(ctx context.Context, contest int) (*codeforces.Standings, error)
}

// Resolver recognises links to judges and looks up their titles.
type Resolver struct {
	cf    Codeforces
	fetch func(ctx context.Context, url string) ([]byte, error)
}

func NewResolver(cf Codeforces, timeout time.Duration) *Resolver {
	client := webclient.NewDefault(timeout)
	return &Resolver{
		cf: cf,
		fetch: func(ctx context.Context, url string) ([]byte, error) {
			body, _, err := webclient.GetBytes(ctx, client, url, 2, pageLimit)
			return body, err
		},
	}
}

var (
	cfProblem    = regexp.MustCompile(`^/(?:contest|gym)/([0-9]+)/problem/([A-Za-z0-9]+)$`)
	cfProblemset = regexp.MustCompile(`^/problemset/problem/([0-9]+)/([A-Za-z0-9]+)$`)
	cfContest    = regexp.MustCompile(`^/(?:contest|gym)/([0-9]+)`)
	acTask       = regexp.MustCompile(`^/contests/([^/]+)/tasks/([^/]+)`)
	acContest    = regexp.MustCompile(`^/contests/([^/]+)`)
	szkopul      = regexp.MustCompile(`^/problemset/problem/([^/]+)/site`)
	ojuz         = regexp.MustCompile(`^/problem/[a-z]+/([^/]+)`)
)

// Resolve returns the canonical link and title of raw. ok is false for
// links it does not know.
func (r *Resolver) Resolve(ctx context.Context, raw string) (p Problem, ok bool, err error) {
	unescaped, err := url.PathUnescape(raw)
	if err != nil {
		unescaped = raw
	}
	u, err := url.Parse(unescaped)
	if err != nil {
		return Problem{}, false, nil
	}
	clean := path.Clean("/" + strings.ReplaceAll(u.Path, "//", "/"))

	switch u.Hostname() {
	case "codeforces.com", "www.codeforces.com":
		if m := cfProblem.FindStringSubmatch(clean); m != nil {
			return r.codeforcesProblem(ctx, m[1], m[2])
		}
		if m := cfProblemset.FindStringSubmatch(clean); m != nil {
			return r.codeforcesProblem(ctx, m[1], m[2])
		}
		if m := cfContest.FindStringSubmatch(clean); m != nil {
			id, _ := strconv.Atoi(m[1])
			st, err := r.cf.Standings(ctx, id)
			if err != nil {
				return Problem{}, true, err
			}
			return Problem{URL: codeforcesLink(id), Title: st.Contest.Name}, true, nil
		}
	case "atcoder.jp":
		if m := acTask.FindStringSubmatch(clean); m != nil {
			link := fmt.Sprintf("https://atcoder.jp/contests/%s/tasks/%s", strings.ToLower(m[1]), strings.ToLower(m[2]))
			return r.scrape(ctx, link, func(doc *page) string {
				_, title, _ := strings.Cut(doc.text(webclient.Tag("title")), " - ")
				return title
			})
		}
		if m := acContest.FindStringSubmatch(clean); m != nil {
			link := "https://atcoder.jp/contests/" + strings.ToLower(m[1])
			return r.scrape(ctx, link, func(doc *page) string {
				return doc.text(webclient.Class("contest-title"))
			})
		}
	case "szkopul.edu.pl":
		if m := szkopul.FindStringSubmatch(clean); m != nil {
			link := fmt.Sprintf("https://szkopul.edu.pl/problemset/problem/%s/site", m[1])
			return r.scrape(ctx, link, func(doc *page) string {
				h1 := webclient.Find(webclient.Find(doc.root, webclient.Class("problem-title")), webclient.Tag("h1"))
				title := strings.TrimSpace(webclient.Text(h1))
				if i := strings.LastIndex(title, " ("); i >= 0 {
					title = title[:i]
				}
				return title
			})
		}
	case "oj.uz":
		if m := ojuz.FindStringSubmatch(clean); m != nil {
			return r.ojuz(ctx, "https://oj.uz/problem/view/"+m[1])
		}
	}
	return Problem{}, false, nil
}

func codeforcesLink(contest int) string {
	kind := "contest"
	if contest > 100000 {
		kind = "gym"
	}
	return fmt.Sprintf("https://codeforces.com/%s/%d", kind, contest)
}

func (r *Resolver) codeforcesProblem(ctx context.Context, contestID, letter string) (Problem, bool, error) {
	id, err := strconv.Atoi(contestID)
	if err != nil {
		return Problem{}, false, nil
	}
	letter = strings.ToUpper(letter)
	st, err := r.cf.Standings(ctx, id)
	if err != nil {
		return Problem{}, true, err
	}
	for _, p := range st.Problems {
		if p.Index == letter {
			return Problem{URL: codeforcesLink(id) + "/problem/" + letter, Title: p.Name}, true, nil
		}
	}
	return Problem{}, true, fmt.Errorf("links: codeforces contest %d has no problem %s", id, letter)
}

func (r *Resolver) ojuz(ctx context.Context, link string) (Problem, bool, error) {
	doc, err := r.load(ctx, link)
	if err != nil {
		return Problem{}, true, err
	}
	statement := webclient.Find(doc.root, func(n *html.Node) bool {
		return webclient.Tag("a")(n) && strings.TrimSpace(webclient.Text(n)) == "Statement"
	})
	title := webclient.FirstText(webclient.Find(webclient.Find(doc.root, webclient.Class("problem-title")), webclient.Tag("h1")))
	if statement == nil || title == "" {
		return Problem{}, true, fmt.Errorf("links: %s: unexpected page layout", link)
	}
	return Problem{URL: "https://oj.uz" + webclient.Attr(statement, "href"), Title: title}, true, nil
}

type page struct{ root *html.Node }

func (p *page) text(match func(*html.Node) bool) string {
	return strings.TrimSpace(webclient.Text(webclient.Find(p.root, match)))
}

func (r *Resolver) load(ctx context.Context, link string) (*page, error) {
	body, err := r.fetch(ctx, link)
	if err != nil {
		return nil, err
	}
	root, err := webclient.ParseHTML(body)
	if err != nil {
		return nil, fmt.Errorf("links: %s: %w", link, err)
	}
	return &page{root: root}, nil
}

func (r *Resolver) scrape(ctx context.Context, link string, title func(*page) string) (Problem, bool, error) {
	doc, err := r.load(ctx, link)
	if err != nil {
		return Problem{}, true, err
	}
	t := title(doc)
	if t == "" {
		return Problem{}, true, fmt.Errorf("links: %s: title not found", link)
	}
	return Problem{URL: link, Title: t}, true, nil
}

var _ Codeforces = (*codeforces.Client)(nil)
