package nitter

import (
	"strings"

	"fetch404/internal/extract"

	"github.com/PuerkitoBio/goquery"
)

type Date struct {
	Text *string `json:"text"`
	Full *string `json:"full"`
}

type Stats struct {
	Comments string `json:"comments"`
	Retweets string `json:"retweets"`
	Quotes   string `json:"quotes"`
	Likes    string `json:"likes"`
}

type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
)

type Media struct {
	Type MediaType `json:"type"`
	URL  *string   `json:"url"`
}

// QuotedPost is a shallow copy of the post quoted by another one.
type QuotedPost struct {
	ID       *string `json:"id"`
	URL      *string `json:"url"`
	Username *string `json:"username"`
	Fullname *string `json:"fullname"`
	Content  *string `json:"content"`
}

type Post struct {
	ID          string      `json:"id"`
	URL         string      `json:"url"`
	Username    *string     `json:"username"`
	Fullname    *string     `json:"fullname"`
	Verified    bool        `json:"verified"`
	IsRetweet   bool        `json:"isRetweet"`
	RetweetedBy *string     `json:"retweetedBy"`
	Content     *string     `json:"content"`
	Date        Date        `json:"date"`
	Stats       Stats       `json:"stats"`
	Media       []Media     `json:"media"`
	QuotedPost  *QuotedPost `json:"quotedTweet"`
}

// Summary is the row printed for the post by the CLI.
func (p Post) Summary() []string {
	author := ""
	if p.Username != nil {
		author = *p.Username
	}
	date := ""
	if p.Date.Text != nil {
		date = *p.Date.Text
	}
	content := ""
	if p.Content != nil {
		content = *p.Content
	}
	return []string{p.ID, author, date, content}
}

// statusID returns the id in a "/<user>/status/<id>#m" link.
func statusID(href string) string {
	_, after, found := strings.Cut(href, "/status/")
	if !found {
		return ""
	}
	id, _, _ := strings.Cut(after, "#")
	id, _, _ = strings.Cut(id, "?")
	return strings.Trim(id, "/")
}

// canonicalURL rewrites a mirror relative link onto the canonical host.
func canonicalURL(href string) string {
	path, _, _ := strings.Cut(href, "#")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return CanonicalHost + path
}

// PostAdapter reads posts out of a timeline or a tweet search.
type PostAdapter struct{}

func (PostAdapter) Items(root *goquery.Selection) ([]Post, []error) {
	return extract.Each(root.Find(TimelineItem), extractPost)
}

func (PostAdapter) ID(p Post) string {
	return p.ID
}

func extractPost(item *goquery.Selection) (Post, bool) {
	if item.HasClass("show-more") || item.Find(ShowMore).Length() > 0 {
		return Post{}, false
	}

	href := extract.Attr(item, TweetLink, "href")
	if href == nil || *href == "" {
		return Post{}, false
	}
	id := statusID(*href)
	if id == "" {
		return Post{}, false
	}

	fullname := item.Find(Fullname).First()
	username := item.Find(Username).First()
	if fullname.Length() == 0 || username.Length() == 0 {
		return Post{}, false
	}

	post := Post{
		ID:       id,
		URL:      canonicalURL(*href),
		Fullname: extract.Text(item, Fullname),
		Username: extract.Text(item, Username),
		Verified: fullname.Find(VerifiedIcon).Length() > 0,
		Content:  extract.Text(item, TweetContent),
	}

	if header := item.Find(RetweetHeader).First(); header.Length() > 0 {
		post.IsRetweet = true
		by := strings.TrimSpace(strings.Replace(extract.Clean(header), "retweeted", "", 1))
		post.RetweetedBy = &by
	}

	post.Date = Date{
		Text: extract.Text(item, TweetDate),
		Full: extract.Attr(item, TweetDate, "title"),
	}
	post.Stats = Stats{
		Comments: extract.TextOr(item, TweetStat+":nth-child(1)", "0"),
		Retweets: extract.TextOr(item, TweetStat+":nth-child(2)", "0"),
		Quotes:   extract.TextOr(item, TweetStat+":nth-child(3)", "0"),
		Likes:    extract.TextOr(item, TweetStat+":nth-child(4)", "0"),
	}

	item.Find(Attachment).Each(func(_ int, attachment *goquery.Selection) {
		kind := MediaImage
		if attachment.HasClass(VideoClass) {
			kind = MediaVideo
		}
		post.Media = append(post.Media, Media{
			Type: kind,
			URL:  extract.Attr(attachment, "img", "src"),
		})
	})

	if quote := item.Find(Quote).First(); quote.Length() > 0 {
		quoted := &QuotedPost{
			Username: extract.Text(quote, Username),
			Fullname: extract.Text(quote, Fullname),
			Content:  extract.Text(quote, QuoteText),
		}
		if link := extract.Attr(quote, QuoteLink, "href"); link != nil && *link != "" {
			url := canonicalURL(*link)
			quoted.URL = &url
			if id := statusID(*link); id != "" {
				quoted.ID = &id
			}
		}
		post.QuotedPost = quoted
	}

	return post, true
}
