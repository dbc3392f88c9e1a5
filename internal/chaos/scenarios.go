package chaos

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/rs/xid"
)

var scenarios = []scenario{
	{name: "Flood creation", run: floodCreation},
	{name: "Duplicate upvote prevention", run: duplicateUpvote},
	{name: "Upvote unknown or invalid id", run: upvoteUnknown},
	{name: "Invalid payloads", run: invalidPayloads},
	{name: "Upvote counter race", run: counterRace},
	{name: "Extreme pagination values", run: extremePagination},
	{name: "Malformed bodies", run: malformedBodies},
	{name: "Unusual email addresses", run: unusualEmails},
	{name: "Concurrent listing", run: stressListing},
	{name: "Cache consistency", run: cacheConsistency},
}

func (r *Runner) email(prefix string, i int) string {
	return fmt.Sprintf("%s%d-%s@chaos.test", prefix, i, r.tag)
}

func (r *Runner) text(what string) string {
	return fmt.Sprintf("Chaos %s proposal %s", what, r.tag)
}

// floodCreation creates many proposals at once; at least 90% must land.
func floodCreation(ctx context.Context, r *Runner) Result {
	n := r.opts.FloodCount
	var ok atomic.Int64

	r.fanOut(ctx, n, func(ctx context.Context, i int) {
		text := fmt.Sprintf("Flood test feature proposal number %d (%s)", i, r.tag)
		if f, _ := r.client.CreateFeature(ctx, text, r.email("flood", i)); f != nil {
			ok.Add(1)
		}
	})

	created := int(ok.Load())
	return Result{
		Passed:  created*10 >= n*9,
		OK:      created,
		Failed:  n - created,
		Details: fmt.Sprintf("%d/%d created", created, n),
	}
}

// duplicateUpvote sends the same vote many times in parallel. Exactly one
// may succeed; the rest must be 409.
func duplicateUpvote(ctx context.Context, r *Runner) Result {
	f, resp := r.client.CreateFeature(ctx, r.text("duplicate upvote"), r.email("dup-author", 0))
	if f == nil {
		return setupFailed(resp)
	}

	n := r.opts.DuplicateVoters
	var created, conflicts atomic.Int64
	voter := r.email("same-voter", 0)

	r.fanOut(ctx, n, func(ctx context.Context, _ int) {
		switch r.client.Upvote(ctx, f.ID, voter).Status {
		case http.StatusCreated:
			created.Add(1)
		case http.StatusConflict:
			conflicts.Add(1)
		}
	})

	c, x := int(created.Load()), int(conflicts.Load())
	return Result{
		Passed:  c == 1 && x == n-1,
		OK:      c,
		Failed:  n - c - x,
		Details: fmt.Sprintf("201s: %d, 409s: %d (expected 1/%d)", c, x, n-1),
	}
}

// upvoteUnknown expects 404 for a well-formed id nobody created and 400 for
// a malformed one.
func upvoteUnknown(ctx context.Context, r *Runner) Result {
	voter := r.email("ghost-voter", 0)
	missing := r.client.Upvote(ctx, xid.New().String(), voter).Status
	invalid := r.client.Upvote(ctx, "not-an-id", voter).Status

	ok := 0
	if missing == http.StatusNotFound {
		ok++
	}
	if invalid == http.StatusBadRequest {
		ok++
	}
	return Result{
		Passed:  ok == 2,
		OK:      ok,
		Failed:  2 - ok,
		Details: fmt.Sprintf("unknown id -> %d (expect 404), invalid id -> %d (expect 400)", missing, invalid),
	}
}

// invalidPayloads checks create-validation. Hostile-looking but valid text
// is plain data: it may be stored (201) or rejected (400), never a 5xx.
func invalidPayloads(ctx context.Context, r *Runner) Result {
	email := r.email("payload", 0)
	cases := []struct {
		label    string
		payload  map[string]string
		mustFail bool
	}{
		{label: "empty body", payload: map[string]string{}, mustFail: true},
		{label: "text too short", payload: map[string]string{"text": "short", "authorEmail": email}, mustFail: true},
		{label: "text too long", payload: map[string]string{"text": strings.Repeat("a", 501), "authorEmail": email}, mustFail: true},
		{label: "huge body", payload: map[string]string{"text": strings.Repeat("a", 100_001), "authorEmail": email}, mustFail: true},
		{label: "invalid email", payload: map[string]string{"text": "Valid feature proposal text here", "authorEmail": "invalid"}, mustFail: true},
		{label: "missing email", payload: map[string]string{"text": "Valid feature proposal text here"}, mustFail: true},
		{label: "missing text", payload: map[string]string{"authorEmail": email}, mustFail: true},
		{label: "script tag", payload: map[string]string{"text": "<script>alert('xss')</script>padding", "authorEmail": email}},
		{label: "sql injection", payload: map[string]string{"text": "'; DROP TABLE authors; --pad", "authorEmail": email}},
	}

	var failures []string
	for _, tc := range cases {
		status := r.client.postJSON(ctx, "/features", tc.payload).Status
		switch {
		case tc.mustFail && status == http.StatusBadRequest:
		case !tc.mustFail && (status == http.StatusCreated || status == http.StatusBadRequest):
		default:
			failures = append(failures, fmt.Sprintf("%s -> %d", tc.label, status))
		}
	}

	return checksResult(len(cases), failures)
}

// counterRace votes with many distinct emails at once; the stored count must
// equal the number of 201s.
func counterRace(ctx context.Context, r *Runner) Result {
	f, resp := r.client.CreateFeature(ctx, r.text("counter race"), r.email("race-author", 0))
	if f == nil {
		return setupFailed(resp)
	}

	n := r.opts.RaceVoters
	var ok atomic.Int64
	r.fanOut(ctx, n, func(ctx context.Context, i int) {
		if r.client.Upvote(ctx, f.ID, r.email("racer", i)).Status == http.StatusCreated {
			ok.Add(1)
		}
	})

	final, found := r.findCount(ctx, f.ID)
	accepted := int(ok.Load())
	return Result{
		Passed:  found && final == accepted && accepted == n,
		OK:      accepted,
		Failed:  n - accepted,
		Details: fmt.Sprintf("accepted upvotes: %d, stored count: %d", accepted, final),
	}
}

// extremePagination sends out-of-range pages and limits.
func extremePagination(ctx context.Context, r *Runner) Result {
	cases := []struct {
		page, limit string
		want        int
	}{
		{page: "0", limit: "10", want: http.StatusBadRequest},
		{page: "-1", limit: "10", want: http.StatusBadRequest},
		{page: "999999", limit: "10", want: http.StatusOK},
		{page: "1", limit: "0", want: http.StatusBadRequest},
		{page: "1", limit: "-1", want: http.StatusBadRequest},
		{page: "1", limit: "99999", want: http.StatusBadRequest},
		{page: "abc", limit: "10", want: http.StatusBadRequest},
		{page: "1", limit: "50", want: http.StatusOK},
	}

	var failures []string
	for _, tc := range cases {
		status := r.client.ListRaw(ctx, url.Values{"page": {tc.page}, "limit": {tc.limit}}).Status
		if status != tc.want {
			failures = append(failures, fmt.Sprintf("page=%s limit=%s -> %d (expected %d)", tc.page, tc.limit, status, tc.want))
		}
	}
	return checksResult(len(cases), failures)
}

// malformedBodies sends bodies that are not JSON objects.
func malformedBodies(ctx context.Context, r *Runner) Result {
	cases := []struct {
		label, contentType, body string
	}{
		{label: "plain text", contentType: "text/plain", body: "not json"},
		{label: "broken json", contentType: "application/json", body: "{invalid json"},
		{label: "json array", contentType: "application/json", body: `["text","email"]`},
		{label: "json string", contentType: "application/json", body: `"hello"`},
	}

	var failures []string
	for _, tc := range cases {
		status := r.client.Do(ctx, http.MethodPost, "/features", tc.contentType, []byte(tc.body)).Status
		if status != http.StatusBadRequest && status != http.StatusUnsupportedMediaType {
			failures = append(failures, fmt.Sprintf("%s -> %d", tc.label, status))
		}
	}
	return checksResult(len(cases), failures)
}

// unusualEmails submits legal but uncommon addresses. Most should be
// accepted, and none may cause a server error.
func unusualEmails(ctx context.Context, r *Runner) Result {
	emails := []string{
		"user+tag-" + r.tag + "@example.com",
		"very.long.email.address.with.many.dots." + r.tag + "@subdomain.example.co.uk",
		"a" + r.tag + "@b.cc",
		"UPPER." + r.tag + "@Example.COM",
	}

	accepted, serverErrors := 0, 0
	for _, email := range emails {
		f, resp := r.client.CreateFeature(ctx, "Unusual email test for "+email, email)
		switch {
		case f != nil:
			accepted++
		case resp.Status >= 500:
			serverErrors++
		}
	}

	return Result{
		Passed:  accepted >= len(emails)/2 && serverErrors == 0,
		OK:      accepted,
		Failed:  len(emails) - accepted,
		Details: fmt.Sprintf("%d/%d accepted, %d server errors", accepted, len(emails), serverErrors),
	}
}

// stressListing seeds proposals, then reads many pages concurrently.
func stressListing(ctx context.Context, r *Runner) Result {
	r.fanOut(ctx, r.opts.StressFeatures, func(ctx context.Context, i int) {
		r.client.CreateFeature(ctx, fmt.Sprintf("Stress test feature number %d (%s)", i, r.tag), r.email("stress", i))
	})

	total := r.opts.StressPages * r.opts.StressRepeats
	var ok atomic.Int64
	r.fanOut(ctx, total, func(ctx context.Context, i int) {
		page := i%r.opts.StressPages + 1
		if l, _ := r.client.List(ctx, page, 10); l != nil {
			ok.Add(1)
		}
	})

	got := int(ok.Load())
	return Result{
		Passed:  got*10 >= total*9,
		OK:      got,
		Failed:  total - got,
		Details: fmt.Sprintf("%d/%d listing requests succeeded", got, total),
	}
}

// cacheConsistency lists (warming any cache), upvotes, and lists again: the
// second listing must show the vote.
func cacheConsistency(ctx context.Context, r *Runner) Result {
	f, resp := r.client.CreateFeature(ctx, r.text("cache consistency"), r.email("cache-author", 0))
	if f == nil {
		return setupFailed(resp)
	}

	_, foundBefore := r.findCount(ctx, f.ID)
	voted := r.client.Upvote(ctx, f.ID, r.email("cache-voter", 0)).Status == http.StatusCreated
	count, foundAfter := r.findCount(ctx, f.ID)
	reflected := foundAfter && count >= 1

	ok := 0
	for _, b := range []bool{foundBefore, voted, reflected} {
		if b {
			ok++
		}
	}
	return Result{
		Passed:  ok == 3,
		OK:      ok,
		Failed:  3 - ok,
		Details: fmt.Sprintf("listed after create: %t, upvoted: %t, upvote reflected: %t", foundBefore, voted, reflected),
	}
}

// findCount looks for id on the first page of the newest-first listing.
func (r *Runner) findCount(ctx context.Context, id string) (int, bool) {
	l, _ := r.client.List(ctx, 1, 50)
	if l == nil {
		return 0, false
	}
	for _, f := range l.Data {
		if f.ID == id {
			return f.UpvoteCount, true
		}
	}
	return 0, false
}

func setupFailed(resp Response) Result {
	details := "could not create test feature: status " + strconv.Itoa(resp.Status)
	if resp.Err != nil {
		details += ": " + resp.Err.Error()
	}
	return Result{Details: details, Failed: 1}
}

func checksResult(checks int, failures []string) Result {
	passed := checks - len(failures)
	details := fmt.Sprintf("%d/%d returned expected status", passed, checks)
	if len(failures) > 0 {
		details += "; " + strings.Join(failures, "; ")
	}
	return Result{
		Passed:  len(failures) == 0,
		OK:      passed,
		Failed:  len(failures),
		Details: details,
	}
}
