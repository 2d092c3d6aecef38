package dispatch

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"fetch404/internal/components/assert"
	"fetch404/internal/components/chrono"
	"fetch404/internal/components/telemetry"
	"fetch404/internal/job"
	"fetch404/internal/nitter"
	"fetch404/internal/publish"
	"fetch404/internal/rotation"
	"fetch404/internal/session"

	"github.com/mazen160/go-random"
)

const (
	report_dispatcher_run_id = "dispatcher.run-id"
	report_dispatcher_handle = "dispatcher.handle"
)

var (
	postHeaders = []string{"ID", "AUTHOR", "DATE", "CONTENT"}
	userHeaders = []string{"USERNAME", "NAME", "URL", "BIO"}
)

// Summarizer is an item that can be printed as a table row.
type Summarizer interface {
	Summary() []string
}

// Report describes what happened to a request.
type Report struct {
	RunID    string
	Envelope publish.Envelope
	Attempts int
	Items    int
	Headers  []string
	Rows     [][]string
}

type Options struct {
	Mirrors  []rotation.Endpoint
	Sessions session.Factory
	Budgets  job.Budgets
	// MaxSourceAttempts and MaxPaginationRounds of 0 use the job defaults.
	MaxSourceAttempts   int
	MaxPaginationRounds int
	// Publishers returns where the envelope of a request goes.
	Publishers func(req Request) publish.Publisher
}

// Dispatcher routes requests to the executor of their job kind and publishes
// exactly one envelope per request.
type Dispatcher struct {
	opts Options
	time chrono.API
	tel  telemetry.API
}

func New(opts Options, clock chrono.API, tel telemetry.API) Dispatcher {
	assert.NotNil(opts.Sessions)
	assert.NotNil(opts.Publishers)
	assert.NotNil(clock)
	assert.NotNil(tel)
	if len(opts.Mirrors) == 0 {
		panic("dispatcher needs at least one mirror")
	}
	return Dispatcher{opts: opts, time: clock, tel: tel}
}

// CallbackPublishers posts to the request's callback url when it has one and
// then to every extra publisher. Every request shares one callback client.
func CallbackPublishers(client *http.Client, timeout time.Duration, tel telemetry.API, extra ...publish.Publisher) func(Request) publish.Publisher {
	callbacks := publish.NewCallbackClient(client, timeout, tel)
	return func(req Request) publish.Publisher {
		var out publish.Multi
		if req.CallbackURL != "" {
			out = append(out, callbacks.To(req.CallbackURL))
		}
		out = append(out, extra...)
		if len(out) == 0 {
			return publish.Discard{}
		}
		return out
	}
}

func (d Dispatcher) runID() string {
	id, err := random.String(8)
	if err != nil {
		d.tel.ReportBroken(report_dispatcher_run_id, err)
		return fmt.Sprint(d.time.Now().UnixNano())
	}
	return id
}

// Handle runs the request to completion. The returned error is the job's
// failure, its envelope has already been published. Publishing ignores the
// cancellation of ctx so an interrupted job still reports its failure.
func (d Dispatcher) Handle(ctx context.Context, req Request) (Report, error) {
	runID := d.runID()
	pub := d.opts.Publishers(req)

	fail := func(err error) (Report, error) {
		d.tel.ReportWarning(report_dispatcher_handle, err, req.Type, runID)
		envelope := publish.Failure(req.Type, req.Indicator, runID, req.Params, err)
		pub.Publish(context.WithoutCancel(ctx), envelope)
		return Report{RunID: runID, Envelope: envelope}, err
	}

	params, err := req.params()
	if err != nil {
		return fail(err)
	}
	kind := job.Kind(req.Type)
	target := params.Query
	if kind == job.KindUserTweets {
		target = params.Username
	}
	j, err := job.New(kind, target, job.Options{
		Limit:               params.Limit,
		MaxSourceAttempts:   d.opts.MaxSourceAttempts,
		MaxPaginationRounds: d.opts.MaxPaginationRounds,
		RunID:               runID,
	})
	if err != nil {
		return fail(err)
	}

	// every job gets its own rotation so concurrent jobs do not move each
	// other's cursor
	rot, err := rotation.New(d.opts.Mirrors)
	if err != nil {
		return fail(err)
	}

	switch kind {
	case job.KindUserTweets:
		return run(ctx, d, job.UserTweets(), j, rot, req, pub, postHeaders)
	case job.KindSearchTweets:
		return run(ctx, d, job.SearchTweets(), j, rot, req, pub, postHeaders)
	default:
		return run(ctx, d, job.SearchUsers(), j, rot, req, pub, userHeaders)
	}
}

func run[T Summarizer](
	ctx context.Context,
	d Dispatcher,
	pipeline job.Pipeline[T],
	j job.Job,
	rot *rotation.State,
	req Request,
	pub publish.Publisher,
	headers []string,
) (Report, error) {
	exec := job.NewExecutor(pipeline, d.opts.Sessions, d.opts.Budgets, d.time, d.tel)
	out := exec.Execute(ctx, j, rot)

	report := Report{RunID: j.RunID, Attempts: out.Attempts, Headers: headers}
	if !out.Success() {
		d.tel.ReportWarning(report_dispatcher_handle, out.Err, req.Type, j.RunID)
		report.Envelope = publish.Failure(req.Type, req.Indicator, j.RunID, req.Params, out.Err)
		pub.Publish(context.WithoutCancel(ctx), report.Envelope)
		return report, out.Err
	}

	result := publish.Result{Metadata: out.Metadata}
	if out.Profile != nil {
		result.Profile = out.Profile
	}
	if j.Kind == job.KindSearchUsers {
		result.Users = out.Items
	} else {
		result.Tweets = out.Items
	}
	for _, item := range out.Items {
		report.Rows = append(report.Rows, item.Summary())
	}
	report.Items = len(out.Items)
	report.Envelope = publish.Success(req.Type, req.Indicator, j.RunID, req.Params, result)
	pub.Publish(context.WithoutCancel(ctx), report.Envelope)
	return report, nil
}

var (
	_ Summarizer = nitter.Post{}
	_ Summarizer = nitter.UserCard{}
)
