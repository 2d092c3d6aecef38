package nitter

import (
	"strings"

	"fetch404/internal/extract"

	"github.com/PuerkitoBio/goquery"
)

// UserCard is one result of a user search.
type UserCard struct {
	Username string  `json:"username"`
	URL      string  `json:"url"`
	Fullname *string `json:"fullname"`
	Verified bool    `json:"verified"`
	Bio      *string `json:"bio"`
	Avatar   *string `json:"avatar"`
}

func (u UserCard) Summary() []string {
	fullname := ""
	if u.Fullname != nil {
		fullname = *u.Fullname
	}
	bio := ""
	if u.Bio != nil {
		bio = *u.Bio
	}
	return []string{u.Username, fullname, u.URL, bio}
}

// UserCardAdapter reads the results of a user search.
type UserCardAdapter struct{}

func (UserCardAdapter) Items(root *goquery.Selection) ([]UserCard, []error) {
	return extract.Each(root.Find(TimelineItem), extractUserCard)
}

func (UserCardAdapter) ID(u UserCard) string {
	return strings.ToLower(u.Username)
}

func extractUserCard(item *goquery.Selection) (UserCard, bool) {
	if item.HasClass("show-more") || item.Find(ShowMore).Length() > 0 {
		return UserCard{}, false
	}

	username := extract.Text(item, Username)
	if username == nil {
		return UserCard{}, false
	}
	handle := strings.TrimPrefix(*username, "@")
	if handle == "" {
		return UserCard{}, false
	}

	href := extract.Attr(item, TweetLink, "href")
	if href == nil || *href == "" {
		href = extract.Attr(item, Fullname, "href")
	}
	if href == nil || *href == "" {
		return UserCard{}, false
	}

	return UserCard{
		Username: handle,
		URL:      canonicalURL(*href),
		Fullname: extract.Text(item, Fullname),
		Verified: item.Find(Fullname).First().Find(VerifiedIcon).Length() > 0,
		Bio:      extract.Text(item, TweetContent),
		Avatar:   extract.Attr(item, Avatar, "src"),
	}, true
}
