package job

import (
	"net/url"

	"fetch404/internal/nitter"
	"fetch404/internal/pagination"
	"fetch404/internal/rotation"

	"github.com/PuerkitoBio/goquery"
)

// Pipeline describes how a kind of job is scraped from a mirror.
type Pipeline[T any] struct {
	Kind Kind
	// Address is the page the job starts on.
	Address func(endpoint rotation.Endpoint, target string) string
	// Content and Error are the landing markers, whichever appears first
	// decides whether the page is usable.
	Content string
	Error   string
	// Profile is nil for kinds without a profile header.
	Profile func(root *goquery.Selection) nitter.Profile
	// Timeline is waited for after the profile, empty skips the wait.
	Timeline string
	Items    pagination.Adapter[T]
}

func UserTweets() Pipeline[nitter.Post] {
	return Pipeline[nitter.Post]{
		Kind: KindUserTweets,
		Address: func(endpoint rotation.Endpoint, username string) string {
			return endpoint.Page("/"+url.PathEscape(username), nil)
		},
		Content:  nitter.ProfileLoaded,
		Error:    nitter.ErrorPanel,
		Profile:  nitter.ExtractProfile,
		Timeline: nitter.TimelineLoaded,
		Items:    nitter.PostAdapter{},
	}
}

func searchAddress(filter string) func(rotation.Endpoint, string) string {
	return func(endpoint rotation.Endpoint, query string) string {
		return endpoint.Page("/search", url.Values{"f": {filter}, "q": {query}})
	}
}

func SearchTweets() Pipeline[nitter.Post] {
	return Pipeline[nitter.Post]{
		Kind:    KindSearchTweets,
		Address: searchAddress("tweets"),
		Content: nitter.SearchLoaded,
		Error:   nitter.ErrorPanel,
		Items:   nitter.PostAdapter{},
	}
}

func SearchUsers() Pipeline[nitter.UserCard] {
	return Pipeline[nitter.UserCard]{
		Kind:    KindSearchUsers,
		Address: searchAddress("users"),
		Content: nitter.SearchLoaded,
		Error:   nitter.ErrorPanel,
		Items:   nitter.UserCardAdapter{},
	}
}
