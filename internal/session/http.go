package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"fetch404/internal/components/assert"
	"fetch404/internal/components/chrono"
	"fetch404/internal/components/telemetry"
	"fetch404/internal/fault"
	"fetch404/internal/rotation"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const (
	report_http_navigate     = "http.navigate"
	report_http_wait_for     = "http.wait-for"
	report_http_load_more    = "http.load-more"
	report_http_release      = "http.release"
	report_http_merged_items = "http.merged-items"
)

const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

type HTTPOptions struct {
	Layout    Layout
	UserAgent string
	// RequestsPerSecond of 0 disables rate limiting.
	RequestsPerSecond float64
	// PollInterval is the wait between re-renders in WaitForAnyOf.
	PollInterval time.Duration
	// Cookies are set for the mirror's host before the first request.
	Cookies map[string]string
}

// HTTPFactory creates sessions that render pages by fetching them over HTTP.
type HTTPFactory struct {
	opts HTTPOptions
	time chrono.API
	tel  telemetry.API
}

func NewHTTPFactory(opts HTTPOptions, clock chrono.API, tel telemetry.API) HTTPFactory {
	assert.NotNil(clock)
	assert.NotNil(tel)
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	return HTTPFactory{
		opts: opts,
		time: clock,
		tel:  telemetry.NewScopedAPI("session", tel),
	}
}

func (f HTTPFactory) Acquire(ctx context.Context, endpoint rotation.Endpoint) (Session, error) {
	base, err := url.Parse(endpoint.String())
	if err != nil {
		return nil, fault.Wrap(fault.SourceError, err)
	}

	client := resty.New()
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	cookies := make([]*http.Cookie, 0, len(f.opts.Cookies))
	for name, value := range f.opts.Cookies {
		cookies = append(cookies, &http.Cookie{Name: name, Value: value, Path: "/"})
	}
	jar.SetCookies(base, cookies)
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	client.SetHeader("user-agent", f.opts.UserAgent)
	client.SetHeader("accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	client.SetHeader("accept-language", "en-US,en;q=0.9")
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(base.Hostname()))
	client.SetTimeout(time.Second * 30)

	if f.opts.RequestsPerSecond > 0 {
		burst := int(f.opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter := rate.NewLimiter(rate.Limit(f.opts.RequestsPerSecond), burst)
		client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return limiter.Wait(req.Context())
		})
	}
	telemetry.InstrumentResty(client, f.tel)

	return &HTTP{
		client: client,
		layout: f.opts.Layout,
		poll:   f.opts.PollInterval,
		time:   f.time,
		tel:    f.tel,
	}, nil
}

// HTTP is a Session whose rendered state is the parsed document of the last
// navigation, with the items of every followed load more page appended to it.
type HTTP struct {
	client *resty.Client
	layout Layout
	poll   time.Duration
	time   chrono.API
	tel    telemetry.API

	doc      *goquery.Document
	address  string
	keys     map[string]struct{}
	released bool
}

func (s *HTTP) render(ctx context.Context, address string) (*goquery.Document, error) {
	res, err := s.client.R().SetContext(ctx).Get(address)
	if err != nil {
		if fault.KindOf(err) == fault.NavigationTimeout {
			return nil, fault.Wrap(fault.NavigationTimeout, fmt.Errorf("get %s: %w", address, err))
		}
		return nil, fault.Wrap(fault.SourceError, fmt.Errorf("get %s: %w", address, err))
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		return nil, fault.Wrap(fault.SourceError, fmt.Errorf("parse %s: %w", address, err))
	}
	if res.IsError() && doc.Find("body").Children().Length() == 0 {
		return nil, fault.New(fault.SourceError, "get %s: %s", address, res.Status())
	}
	return doc, nil
}

func (s *HTTP) Navigate(ctx context.Context, address string, budget time.Duration) error {
	if s.released {
		return fault.New(fault.SourceError, "session already released")
	}
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	doc, err := s.render(ctx, address)
	if err != nil {
		s.tel.ReportDebug(report_http_navigate, address, err)
		return err
	}
	s.doc = doc
	s.address = address
	s.keys = make(map[string]struct{})
	s.doc.Find(s.layout.Item).Each(func(_ int, item *goquery.Selection) {
		s.keys[s.itemKey(item)] = struct{}{}
	})
	return nil
}

func (s *HTTP) WaitForAnyOf(ctx context.Context, markers []string, budget time.Duration) (int, error) {
	if s.doc == nil {
		return -1, fault.New(fault.SourceError, "nothing rendered yet")
	}
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	for {
		for i, marker := range markers {
			if s.doc.Find(marker).Length() > 0 {
				return i, nil
			}
		}
		if err := s.time.Sleep(ctx, s.poll); err != nil {
			return -1, fault.New(fault.SelectorTimeout, "none of %v appeared within %s", markers, budget)
		}
		doc, err := s.render(ctx, s.address)
		if err != nil {
			if ctx.Err() != nil {
				return -1, fault.New(fault.SelectorTimeout, "none of %v appeared within %s", markers, budget)
			}
			s.tel.ReportDebug(report_http_wait_for, s.address, err)
			continue
		}
		s.doc = doc
	}
}

func (s *HTTP) Evaluate(ctx context.Context, fn func(root *goquery.Selection) error) error {
	if s.doc == nil {
		return fault.New(fault.SourceError, "nothing rendered yet")
	}
	return Guard(s.doc.Selection, fn)
}

func (s *HTTP) ItemCount() int {
	if s.doc == nil {
		return 0
	}
	return s.doc.Find(s.layout.Item).Length()
}

func (s *HTTP) TriggerLoadMore(ctx context.Context) (bool, error) {
	if s.doc == nil {
		return false, fault.New(fault.SourceError, "nothing rendered yet")
	}
	before := s.ItemCount()

	err := s.follow(ctx)
	if err != nil {
		s.tel.ReportWarning(report_http_load_more, err, s.address)
	}
	if s.ItemCount() != before {
		return true, nil
	}

	// no affordance or it added nothing, re-render the latest page instead
	doc, scrollErr := s.render(ctx, s.address)
	if scrollErr != nil {
		return false, errors.Join(err, scrollErr)
	}
	s.merge(doc)
	return s.ItemCount() != before, nil
}

// follow loads the page behind the first affordance found and appends its
// items, replacing the affordance with the one of the loaded page.
func (s *HTTP) follow(ctx context.Context) error {
	for _, variant := range s.layout.LoadMore {
		affordance := s.doc.Find(variant).First()
		if affordance.Length() == 0 {
			continue
		}
		href := affordanceHref(affordance)
		if href == "" {
			continue
		}
		next, err := resolve(s.address, href)
		if err != nil {
			return fault.Wrap(fault.SourceError, err)
		}

		doc, err := s.render(ctx, next)
		if err != nil {
			return err
		}
		var replacement *goquery.Selection
		for _, v := range s.layout.LoadMore {
			if found := doc.Find(v).First(); found.Length() > 0 {
				replacement = found
				break
			}
		}

		affordance.Remove()
		s.merge(doc)
		if replacement != nil {
			s.container().AppendSelection(replacement)
		}
		s.address = next
		return nil
	}
	return nil
}

func affordanceHref(affordance *goquery.Selection) string {
	if href, ok := affordance.Attr("href"); ok {
		return href
	}
	href, _ := affordance.Find("a[href]").Last().Attr("href")
	return href
}

func resolve(base, href string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", err
	}
	return baseURL.ResolveReference(ref).String(), nil
}

func (s *HTTP) container() *goquery.Selection {
	if s.layout.Timeline != "" {
		if found := s.doc.Find(s.layout.Timeline).First(); found.Length() > 0 {
			return found
		}
	}
	if last := s.doc.Find(s.layout.Item).Last(); last.Length() > 0 {
		return last.Parent()
	}
	return s.doc.Find("body").First()
}

func (s *HTTP) itemKey(item *goquery.Selection) string {
	if s.layout.ItemKey != "" {
		if href, ok := item.Find(s.layout.ItemKey).First().Attr("href"); ok && href != "" {
			return href
		}
	}
	markup, _ := goquery.OuterHtml(item)
	return markup
}

// merge appends the items of doc that are not rendered yet.
func (s *HTTP) merge(doc *goquery.Document) {
	container := s.container()
	added := 0
	doc.Find(s.layout.Item).Each(func(_ int, item *goquery.Selection) {
		key := s.itemKey(item)
		if _, ok := s.keys[key]; ok {
			return
		}
		s.keys[key] = struct{}{}
		container.AppendSelection(item)
		added++
	})
	s.tel.ReportDebug(report_http_merged_items, s.address, added)
}

func (s *HTTP) Address() string {
	return s.address
}

func (s *HTTP) Release() error {
	if s.released {
		return nil
	}
	s.released = true
	s.doc = nil
	s.keys = nil
	s.client.GetClient().CloseIdleConnections()
	s.tel.ReportDebug(report_http_release, s.address)
	return nil
}
