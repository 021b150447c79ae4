// Package codeforces announces upcoming Codeforces contests and posts the
// national standings once a watched contest is rated.
package codeforces

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/oooz/oooz-bot/src/webclient"
)

// ErrUnavailable is returned for contests that are never rated.
var ErrUnavailable = errors.New("codeforces: rating changes are unavailable for this contest")

const unavailableComment = "contestId: Rating changes are unavailable for this contest"

// Contest is one entry of contest.list.
type Contest struct {
	ID               int    `json:"id"`
	Name             string `json:"name"`
	Phase            string `json:"phase"`
	StartTimeSeconds int64  `json:"startTimeSeconds"`
	DurationSeconds  int64  `json:"durationSeconds"`
}

func (c Contest) Start() time.Time { return time.Unix(c.StartTimeSeconds, 0).UTC() }

func (c Contest) Link() string { return fmt.Sprintf("https://codeforces.com/contest/%d", c.ID) }

// Niche reports whether the contest is outside the main rated series.
func (c Contest) Niche() bool {
	for _, s := range []string{"Div. 1", "Div. 2", "Div. 3", "Div. 4", "Hello", "Good Bye", "Global"} {
		if strings.Contains(c.Name, s) {
			return false
		}
	}
	return true
}

// RatingChange is one entry of contest.ratingChanges.
type RatingChange struct {
	Handle    string `json:"handle"`
	Rank      int    `json:"rank"`
	OldRating int    `json:"oldRating"`
	NewRating int    `json:"newRating"`
}

// Problem is one problem of a contest.
type Problem struct {
	Index string `json:"index"`
	Name  string `json:"name"`
}

// Standings is the head of contest.standings: the contest and its problems.
type Standings struct {
	Contest  Contest   `json:"contest"`
	Problems []Problem `json:"problems"`
}

// User is one entry of user.info.
type User struct {
	Handle  string `json:"handle"`
	Country string `json:"country"`
}

type envelope struct {
	Status  string          `json:"status"`
	Comment string          `json:"comment"`
	Result  json.RawMessage `json:"result"`
}

// Client talks to the Codeforces API.
type Client struct {
	http     *http.Client
	endpoint string
	attempts int
}

func NewClient(endpoint string, timeout time.Duration) *Client {
	return &Client{
		http:     webclient.NewDefault(timeout),
		endpoint: strings.TrimRight(endpoint, "/"),
		attempts: 3,
	}
}

func (c *Client) call(ctx context.Context, method string, query url.Values, out any) error {
	u := c.endpoint + "/" + method
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var env envelope
	if err := webclient.GetJSON(ctx, c.http, u, c.attempts, &env); err != nil {
		var se *webclient.StatusError
		// failed calls still carry the envelope
		if !errors.As(err, &se) || json.Unmarshal([]byte(se.Body), &env) != nil || env.Status == "" {
			return fmt.Errorf("codeforces %s: %w", method, err)
		}
	}
	if env.Status != "OK" {
		if env.Comment == unavailableComment {
			return ErrUnavailable
		}
		return fmt.Errorf("codeforces %s: %s", method, env.Comment)
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("codeforces %s: decode result: %w", method, err)
	}
	return nil
}

// Contests lists all contests.
func (c *Client) Contests(ctx context.Context) ([]Contest, error) {
	var out []Contest
	if err := c.call(ctx, "contest.list", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// RatingChanges lists the rating changes of a finished contest.
func (c *Client) RatingChanges(ctx context.Context, contest int) ([]RatingChange, error) {
	var out []RatingChange
	if err := c.call(ctx, "contest.ratingChanges", url.Values{"contestId": {strconv.Itoa(contest)}}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Standings fetches a contest with its problem list and no rows.
func (c *Client) Standings(ctx context.Context, contest int) (*Standings, error) {
	var out Standings
	q := url.Values{"contestId": {strconv.Itoa(contest)}, "count": {"1"}}
	if err := c.call(ctx, "contest.standings", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Users resolves handles in the order given.
func (c *Client) Users(ctx context.Context, handles []string) ([]User, error) {
	var out []User
	if err := c.call(ctx, "user.info", url.Values{"handles": {strings.Join(handles, ";")}}, &out); err != nil {
		return nil, err
	}
	return out, nil
}
