package publish

import (
	"context"
	"net/http"
	"time"

	"fetch404/internal/components/assert"
	"fetch404/internal/components/telemetry"
	"fetch404/internal/fault"

	"github.com/doyensec/safeurl"
	"github.com/go-resty/resty/v2"
)

const report_callback_publish = "callback.publish"

// Publisher delivers envelopes. Delivery failures are reported and never
// returned, a job's outcome does not depend on them.
type Publisher interface {
	Publish(ctx context.Context, envelope Envelope)
}

type Discard struct{}

func (Discard) Publish(context.Context, Envelope) {}

// Multi publishes to each publisher in order.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, envelope Envelope) {
	for _, p := range m {
		p.Publish(ctx, envelope)
	}
}

// Callback posts envelopes as JSON to a collector.
type Callback struct {
	url    string
	client *resty.Client
	tel    telemetry.API
}

// SafeClient returns an http client that refuses to connect to private,
// loopback and link-local addresses.
func SafeClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("http", "https").
		SetAllowedPorts(80, 443).
		Build()
	return safeurl.Client(config).Client
}

// CallbackClient holds the resty client shared by every callback. It is
// configured once, after that only requests are made with it so it can be
// used from concurrent jobs.
type CallbackClient struct {
	client *resty.Client
	tel    telemetry.API
}

// NewCallbackClient wraps a copy of httpClient, a nil httpClient uses resty's
// default client.
func NewCallbackClient(httpClient *http.Client, timeout time.Duration, tel telemetry.API) CallbackClient {
	assert.NotNil(tel)

	tel = telemetry.NewScopedAPI("publish", tel)

	client := resty.New()
	if httpClient != nil {
		// SetTimeout writes to the wrapped client, the caller's one stays untouched
		owned := *httpClient
		client = resty.NewWithClient(&owned)
	}
	client.SetTimeout(timeout)
	client.SetHeader("content-type", "application/json")
	telemetry.InstrumentResty(client, tel)

	return CallbackClient{client: client, tel: tel}
}

// To returns a publisher that posts to url.
func (c CallbackClient) To(url string) Callback {
	assert.NotEmptyStr(url)
	return Callback{url: url, client: c.client, tel: c.tel}
}

// NewCallback creates a callback publisher with a client of its own.
func NewCallback(url string, httpClient *http.Client, timeout time.Duration, tel telemetry.API) Callback {
	return NewCallbackClient(httpClient, timeout, tel).To(url)
}

func (c Callback) Publish(ctx context.Context, envelope Envelope) {
	res, err := c.client.R().
		SetContext(ctx).
		SetBody(envelope).
		Post(c.url)
	if err != nil {
		c.tel.ReportWarning(report_callback_publish, fault.Wrap(fault.DeliveryError, err), c.url)
		return
	}
	if res.IsError() {
		c.tel.ReportWarning(
			report_callback_publish,
			fault.New(fault.DeliveryError, "collector responded %s", res.Status()),
			c.url,
		)
	}
}
