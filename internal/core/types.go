package core

import (
	"encoding/json"
	"time"
)

// Visibility controls who can see a status.
type Visibility string

const (
	VisibilityPublic   Visibility = "public"
	VisibilityUnlisted Visibility = "unlisted"
	VisibilityPrivate  Visibility = "private"
	VisibilityDirect   Visibility = "direct"
)

// Account is a remote user profile.
type Account struct {
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	Acct           string    `json:"acct"`
	DisplayName    string    `json:"display_name"`
	Note           string    `json:"note,omitempty"`
	URL            string    `json:"url,omitempty"`
	Avatar         string    `json:"avatar,omitempty"`
	Locked         bool      `json:"locked"`
	Bot            bool      `json:"bot"`
	FollowersCount int       `json:"followers_count"`
	FollowingCount int       `json:"following_count"`
	StatusesCount  int       `json:"statuses_count"`
	CreatedAt      time.Time `json:"created_at"`
}

// MediaAttachment is an uploaded media file.
type MediaAttachment struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	URL         string `json:"url,omitempty"`
	PreviewURL  string `json:"preview_url,omitempty"`
	Description string `json:"description,omitempty"`
}

// Tag is a hashtag reference.
type Tag struct {
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

// Status is a post.
//
// Servers disagree on how viewer interaction flags are named; UnmarshalJSON
// folds `liked`, `shared` and the nested `viewerState` variants into
// Favourited, Reblogged and Bookmarked.
type Status struct {
	ID               string            `json:"id"`
	URI              string            `json:"uri,omitempty"`
	URL              string            `json:"url,omitempty"`
	Content          string            `json:"content"`
	SpoilerText      string            `json:"spoiler_text,omitempty"`
	Visibility       Visibility        `json:"visibility,omitempty"`
	Sensitive        bool              `json:"sensitive"`
	Language         string            `json:"language,omitempty"`
	InReplyToID      string            `json:"in_reply_to_id,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	Account          Account           `json:"account"`
	Reblog           *Status           `json:"reblog,omitempty"`
	MediaAttachments []MediaAttachment `json:"media_attachments,omitempty"`
	Tags             []Tag             `json:"tags,omitempty"`
	RepliesCount     int               `json:"replies_count"`
	ReblogsCount     int               `json:"reblogs_count"`
	FavouritesCount  int               `json:"favourites_count"`
	Favourited       bool              `json:"favourited"`
	Reblogged        bool              `json:"reblogged"`
	Bookmarked       bool              `json:"bookmarked"`
}

type viewerState struct {
	Liked      *bool `json:"liked"`
	Shared     *bool `json:"shared"`
	Reblogged  *bool `json:"reblogged"`
	Bookmarked *bool `json:"bookmarked"`
}

// UnmarshalJSON decodes a status and normalizes interaction flags.
func (s *Status) UnmarshalJSON(data []byte) error {
	type plain Status
	var aux struct {
		plain
		Liked       *bool        `json:"liked"`
		Shared      *bool        `json:"shared"`
		ViewerState *viewerState `json:"viewerState"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	*s = Status(aux.plain)
	s.Favourited = s.Favourited || isTrue(aux.Liked)
	s.Reblogged = s.Reblogged || isTrue(aux.Shared)
	if vs := aux.ViewerState; vs != nil {
		s.Favourited = s.Favourited || isTrue(vs.Liked)
		s.Reblogged = s.Reblogged || isTrue(vs.Shared) || isTrue(vs.Reblogged)
		s.Bookmarked = s.Bookmarked || isTrue(vs.Bookmarked)
	}
	return nil
}

func isTrue(v *bool) bool {
	return v != nil && *v
}

// StatusContext holds the thread around a status.
type StatusContext struct {
	Ancestors   []Status `json:"ancestors"`
	Descendants []Status `json:"descendants"`
}

// PollParams describes a poll attached to a new status.
type PollParams struct {
	Options   []string `json:"options"`
	ExpiresIn int      `json:"expires_in"`
	Multiple  bool     `json:"multiple,omitempty"`
}

// CreateStatusParams is the body of a status creation request.
type CreateStatusParams struct {
	Status      string      `json:"status"`
	Visibility  Visibility  `json:"visibility,omitempty"`
	InReplyToID string      `json:"in_reply_to_id,omitempty"`
	SpoilerText string      `json:"spoiler_text,omitempty"`
	Sensitive   bool        `json:"sensitive,omitempty"`
	Language    string      `json:"language,omitempty"`
	MediaIDs    []string    `json:"media_ids,omitempty"`
	Poll        *PollParams `json:"poll,omitempty"`
	ScheduledAt *time.Time  `json:"scheduled_at,omitempty"`
}

// Notification is an event addressed to the authenticated account.
type Notification struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
	Account   Account   `json:"account"`
	Status    *Status   `json:"status,omitempty"`
}

// Relationship describes the viewer's relation to another account.
type Relationship struct {
	ID         string `json:"id"`
	Following  bool   `json:"following"`
	FollowedBy bool   `json:"followed_by"`
	Blocking   bool   `json:"blocking"`
	Muting     bool   `json:"muting"`
	Requested  bool   `json:"requested"`
}

// SearchResults groups v2 search hits.
type SearchResults struct {
	Accounts []Account `json:"accounts"`
	Statuses []Status  `json:"statuses"`
	Hashtags []Tag     `json:"hashtags"`
}

// List is a user-curated timeline.
type List struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Marker records a read position in a timeline.
type Marker struct {
	LastReadID string    `json:"last_read_id"`
	Version    int       `json:"version"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Instance describes the remote server. Both v1 and v2 instance payloads
// decode into it.
type Instance struct {
	URI           string                `json:"uri,omitempty"`
	Domain        string                `json:"domain,omitempty"`
	Title         string                `json:"title"`
	Description   string                `json:"description,omitempty"`
	Version       string                `json:"version"`
	URLs          InstanceURLs          `json:"urls"`
	Configuration InstanceConfiguration `json:"configuration"`
}

// InstanceURLs is the v1 `urls` block.
type InstanceURLs struct {
	StreamingAPI string `json:"streaming_api,omitempty"`
}

// InstanceConfiguration is the subset of server configuration the client reads.
type InstanceConfiguration struct {
	URLs struct {
		Streaming string `json:"streaming,omitempty"`
	} `json:"urls"`
	Statuses struct {
		MaxCharacters int `json:"max_characters,omitempty"`
	} `json:"statuses"`
}

// Host returns the instance hostname.
func (i *Instance) Host() string {
	if i == nil {
		return ""
	}
	if i.Domain != "" {
		return i.Domain
	}
	return i.URI
}

// StreamingURL returns the declared real-time endpoint, if any.
func (i *Instance) StreamingURL() string {
	if i == nil {
		return ""
	}
	if i.Configuration.URLs.Streaming != "" {
		return i.Configuration.URLs.Streaming
	}
	return i.URLs.StreamingAPI
}

// Token is an OAuth access token bound to an instance.
type Token struct {
	Instance    string    `json:"instance"`
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type,omitempty"`
	Scope       string    `json:"scope,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// OfflinePost is a status creation queued while offline.
type OfflinePost struct {
	ID        string             `json:"id"`
	Data      CreateStatusParams `json:"data"`
	Timestamp time.Time          `json:"timestamp"`
	Retries   int                `json:"retries"`
	Error     string             `json:"error,omitempty"`

	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// ReplayKey is the idempotency key sent when the post is delivered.
func (p OfflinePost) ReplayKey() string {
	if p.IdempotencyKey != "" {
		return p.IdempotencyKey
	}
	return p.ID
}

// StreamEvent is a server-pushed event. Payload is the raw JSON string.
type StreamEvent struct {
	Event   string   `json:"event"`
	Payload string   `json:"payload"`
	Stream  []string `json:"stream,omitempty"`
}

// Stream event types.
const (
	EventUpdate         = "update"
	EventDelete         = "delete"
	EventNotification   = "notification"
	EventStatusUpdate   = "status.update"
	EventFiltersChanged = "filters_changed"
)
