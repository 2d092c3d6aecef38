package nitter

import "fetch404/internal/session"

// Nitter DOM selectors, mirrors run different versions of the front-end so
// these are kept in one place.
const (
	ProfileCard = `.profile-card`
	ErrorPanel  = `.error-panel`

	Timeline     = `.timeline`
	TimelineItem = `.timeline-item`
	RawItem      = `.timeline-item:not(.show-more)`
	ShowMore     = `.show-more`
	TimelineNone = `.timeline-none`
	TimelineEnd  = `.timeline-end`

	// post
	TweetLink     = `.tweet-link`
	Fullname      = `.fullname`
	Username      = `.username`
	VerifiedIcon  = `.verified-icon`
	RetweetHeader = `.retweet-header`
	TweetContent  = `.tweet-content`
	TweetDate     = `.tweet-date a`
	TweetStat     = `.tweet-stat`
	Attachment    = `.attachments .attachment`
	VideoClass    = `video-container`
	Quote         = `.quote-big`
	QuoteLink     = `.quote-link`
	QuoteText     = `.quote-text`
	Avatar        = `img.avatar`

	// profile
	ProfileAvatar    = `.profile-card-avatar`
	ProfileFullname  = `.profile-card-fullname`
	ProfileUsername  = `.profile-card-username`
	ProfileBio       = `.profile-bio`
	ProfileLocation  = `.profile-location`
	ProfileWebsite   = `.profile-website a`
	ProfileJoinDate  = `.profile-joindate`
	ProfileFollowing = `.profile-statlist .following .profile-stat-num`
	ProfileFollowers = `.profile-statlist .followers .profile-stat-num`
	ProfilePosts     = `.profile-statlist .posts .profile-stat-num`
	ProfileLikes     = `.profile-statlist .likes .profile-stat-num`
	ProfileBanner    = `.profile-banner img`
	PhotoRailHeader  = `.photo-rail-header`
)

// Landing markers.
const (
	ProfileLoaded  = ProfileCard
	TimelineLoaded = `.timeline-item, .timeline-header, .error-panel`
	SearchLoaded   = `.timeline-item, .timeline-none, .timeline-end`
)

// LoadMore lists the "load more" affordances in the order they are tried.
var LoadMore = []string{
	`.show-more:not(.timeline-item)`,
	`.timeline > .show-more`,
	`.more-results`,
}

// Preferences is the value of the nitter_prefs cookie that makes mirrors
// render full items with a cursor based "load more".
const Preferences = "minimal=0&infinite=1"

// Cookies are sent to every mirror.
func Cookies() map[string]string {
	return map[string]string{"nitter_prefs": Preferences}
}

func Layout() session.Layout {
	return session.Layout{
		Item:     RawItem,
		ItemKey:  TweetLink,
		Timeline: Timeline,
		LoadMore: LoadMore,
	}
}

// CanonicalHost is the host that item links are rewritten to.
const CanonicalHost = "https://x.com"
