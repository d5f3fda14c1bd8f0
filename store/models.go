package store

import "time"

type User struct {
	WalletAddress string     `db:"wallet_address" json:"walletAddress"`
	Username      *string    `db:"username" json:"username"`
	DisplayName   string     `db:"display_name" json:"displayName"`
	Bio           string     `db:"bio" json:"bio"`
	AvatarURL     string     `db:"avatar_url" json:"avatarUrl"`
	BannerURL     string     `db:"banner_url" json:"bannerUrl"`
	ENSName       string     `db:"ens_name" json:"ensName,omitempty"`
	ENSCheckedAt  *time.Time `db:"ens_checked_at" json:"-"`
	CreatedAt     time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updatedAt"`
}

// ProfilePatch holds optional profile fields; nil means unchanged.
type ProfilePatch struct {
	Username    *string
	DisplayName *string
	Bio         *string
	AvatarURL   *string
	BannerURL   *string
}

type Category struct {
	ID          int64     `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Slug        string    `db:"slug" json:"slug"`
	Description string    `db:"description" json:"description"`
	ImageURL    string    `db:"image_url" json:"imageUrl"`
	LiveCount   int       `db:"live_count" json:"liveCount"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

// Mint lifecycle values for Stream.MintStatus.
const (
	MintNone   = ""
	MintPinned = "pinned"
	MintMinted = "minted"
	MintFailed = "failed"
)

type Stream struct {
	ID               string     `db:"id" json:"id"`
	CreatorAddress   string     `db:"creator_address" json:"creatorAddress"`
	Title            string     `db:"title" json:"title"`
	Description      string     `db:"description" json:"description"`
	CategoryID       *int64     `db:"category_id" json:"categoryId"`
	VendorStreamID   *string    `db:"vendor_stream_id" json:"vendorStreamId,omitempty"`
	StreamKey        string     `db:"stream_key" json:"-"`
	StreamKeyVersion int        `db:"stream_key_version" json:"-"`
	PlaybackID       string     `db:"playback_id" json:"playbackId"`
	AssetID          string     `db:"asset_id" json:"assetId,omitempty"`
	AssetPlaybackID  string     `db:"asset_playback_id" json:"assetPlaybackId,omitempty"`
	ThumbnailURL     string     `db:"thumbnail_url" json:"thumbnailUrl"`
	IsLive           bool       `db:"is_live" json:"isLive"`
	ViewerCount      int        `db:"viewer_count" json:"viewerCount"`
	ViewCount        int64      `db:"view_count" json:"viewCount"`
	LikeCount        int        `db:"like_count" json:"likeCount"`
	ScheduledAt      *time.Time `db:"scheduled_at" json:"scheduledAt"`
	StartedAt        *time.Time `db:"started_at" json:"startedAt"`
	EndedAt          *time.Time `db:"ended_at" json:"endedAt"`
	MintEnabled      bool       `db:"mint_enabled" json:"mintEnabled"`
	MintStatus       string     `db:"mint_status" json:"mintStatus"`
	TokenURI         string     `db:"token_uri" json:"tokenUri,omitempty"`
	ContractAddress  string     `db:"contract_address" json:"contractAddress,omitempty"`
	TokenID          string     `db:"token_id" json:"tokenId,omitempty"`
	MintTxHash       string     `db:"mint_tx_hash" json:"mintTxHash,omitempty"`
	MintedAt         *time.Time `db:"minted_at" json:"mintedAt,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updatedAt"`
}

// Started reports whether the stream has ever gone live.
func (s *Stream) Started() bool { return s.StartedAt != nil }

// Ended reports whether the stream has finished broadcasting.
func (s *Stream) Ended() bool { return s.EndedAt != nil }

// VendorID returns the video platform stream id, or "".
func (s *Stream) VendorID() string {
	if s.VendorStreamID == nil {
		return ""
	}
	return *s.VendorStreamID
}

// NewStream is the input to CreateStream.
type NewStream struct {
	CreatorAddress string
	Title          string
	Description    string
	CategoryID     *int64
	VendorStreamID string
	StreamKey      string
	PlaybackID     string
	ScheduledAt    *time.Time
	MintEnabled    bool
}

// StreamPatch holds optional stream fields; nil means unchanged.
type StreamPatch struct {
	Title         *string
	Description   *string
	CategoryID    *int64
	ClearCategory bool
	ScheduledAt   *time.Time
	MintEnabled   *bool
	ThumbnailURL  *string
	EndedAt       *time.Time
}

// StreamFilter narrows ListStreams.
type StreamFilter struct {
	Live         *bool
	CategorySlug string
	Creator      string
	Page
}

type ChatMessage struct {
	ID             int64     `db:"id" json:"id"`
	StreamID       string    `db:"stream_id" json:"streamId"`
	SenderAddress  string    `db:"sender_address" json:"senderAddress"`
	SenderUsername *string   `db:"sender_username" json:"senderUsername"`
	Message        string    `db:"message" json:"message"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
}

// ChatQuery selects a window of messages by id. With neither bound set the newest Limit are returned.
type ChatQuery struct {
	BeforeID int64
	AfterID  int64
	Limit    int
}

// FollowEdge is one side of a follow relationship joined with the profile.
type FollowEdge struct {
	Address     string    `db:"address" json:"address"`
	Username    *string   `db:"username" json:"username"`
	DisplayName *string   `db:"display_name" json:"displayName"`
	AvatarURL   *string   `db:"avatar_url" json:"avatarUrl"`
	CreatedAt   time.Time `db:"created_at" json:"followedAt"`
}

type Review struct {
	ID              int64     `db:"id" json:"id"`
	ReviewerAddress string    `db:"reviewer_address" json:"reviewerAddress"`
	RevieweeAddress string    `db:"reviewee_address" json:"revieweeAddress"`
	StreamID        *string   `db:"stream_id" json:"streamId"`
	Rating          int       `db:"rating" json:"rating"`
	Comment         string    `db:"comment" json:"comment"`
	CreatedAt       time.Time `db:"created_at" json:"createdAt"`
}

type ReviewSummary struct {
	Count   int     `db:"count" json:"count"`
	Average float64 `db:"average" json:"average"`
}
