package nitter

import (
	"fmt"
	"regexp"
	"strings"

	"fetch404/internal/extract"

	"github.com/PuerkitoBio/goquery"
)

type VerifiedType string

const (
	VerifiedGovernment VerifiedType = "government"
	VerifiedBusiness   VerifiedType = "business"
	VerifiedStandard   VerifiedType = "standard"
)

// Profile is the header of a user's page. Counters are kept as displayed by
// the mirror ("1,234", "5.6M").
type Profile struct {
	Avatar       *string       `json:"avatar,omitempty"`
	Name         *string       `json:"name,omitempty"`
	Username     *string       `json:"username,omitempty"`
	Verified     bool          `json:"verified"`
	VerifiedType *VerifiedType `json:"verifiedType,omitempty"`
	Bio          *string       `json:"bio,omitempty"`
	Location     *string       `json:"location,omitempty"`
	Website      *string       `json:"website,omitempty"`
	JoinDate     *string       `json:"joinDate,omitempty"`
	Following    string        `json:"following,omitempty"`
	Followers    string        `json:"followers,omitempty"`
	Tweets       string        `json:"tweets,omitempty"`
	Likes        string        `json:"likes,omitempty"`
	Banner       *string       `json:"banner,omitempty"`
	MediaCount   string        `json:"mediaCount,omitempty"`

	Partial bool   `json:"partial,omitempty"`
	Error   string `json:"error,omitempty"`
}

var mediaCountRegex = regexp.MustCompile(`\d+,?\d*`)

// ExtractProfile reads the profile card of a user page. A fault while reading
// it yields a partial profile carrying only the error.
func ExtractProfile(root *goquery.Selection) (profile Profile) {
	defer func() {
		if r := recover(); r != nil {
			profile = Profile{Partial: true, Error: fmt.Sprint(r)}
		}
	}()

	profile.Avatar = extract.Attr(root, ProfileAvatar+" img", "src")
	if profile.Avatar == nil {
		profile.Avatar = extract.Attr(root, ProfileAvatar, "src")
	}
	profile.Name = extract.Text(root, ProfileFullname)
	if username := extract.Text(root, ProfileUsername); username != nil {
		trimmed := strings.Replace(*username, "@", "", 1)
		profile.Username = &trimmed
	}

	icon := root.Find(ProfileFullname).First().Find(VerifiedIcon).First()
	if icon.Length() > 0 {
		profile.Verified = true
		kind := VerifiedStandard
		switch {
		case icon.HasClass("government"):
			kind = VerifiedGovernment
		case icon.HasClass("business"):
			kind = VerifiedBusiness
		}
		profile.VerifiedType = &kind
	}

	profile.Bio = extract.Text(root, ProfileBio)
	profile.Location = extract.Text(root, ProfileLocation)
	profile.Website = extract.Attr(root, ProfileWebsite, "href")
	if joined := extract.Text(root, ProfileJoinDate); joined != nil {
		trimmed := strings.TrimSpace(strings.Replace(*joined, "Joined", "", 1))
		profile.JoinDate = &trimmed
	}

	profile.Following = extract.TextOr(root, ProfileFollowing, "0")
	profile.Followers = extract.TextOr(root, ProfileFollowers, "0")
	profile.Tweets = extract.TextOr(root, ProfilePosts, "0")
	profile.Likes = extract.TextOr(root, ProfileLikes, "0")
	profile.Banner = extract.Attr(root, ProfileBanner, "src")

	profile.MediaCount = "0"
	if header := extract.Text(root, PhotoRailHeader); header != nil {
		if match := mediaCountRegex.FindString(*header); match != "" {
			profile.MediaCount = match
		}
	}

	return profile
}
