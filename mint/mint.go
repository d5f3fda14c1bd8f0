// Package mint prepares ERC-721 metadata for finished streams and records the creator's
// on-chain mint. The transaction itself is sent from the creator's wallet; this service only
// pins the metadata and stores the result the client reports back.
package mint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/onnwee/livecast/backend/apperr"
	"github.com/onnwee/livecast/backend/pinning"
	"github.com/onnwee/livecast/backend/playback"
	"github.com/onnwee/livecast/backend/store"
	"github.com/onnwee/livecast/backend/telemetry"
	"github.com/onnwee/livecast/backend/wallet"
)

// Pinner pins JSON documents to IPFS.
type Pinner interface {
	PinJSON(ctx context.Context, name string, v any) (string, error)
	GatewayURL(cid string) string
}

// Media locates the playable recording and preview image of a stream.
type Media interface {
	Recording(ctx context.Context, st *store.Stream) (*playback.Recording, error)
	Thumbnail(ctx context.Context, st *store.Stream) (string, error)
}

// Store persists mint state.
type Store interface {
	SetMintPinned(ctx context.Context, id, tokenURI string) error
	SetMintConfirmed(ctx context.Context, id, txHash, contract, tokenID string, at time.Time) error
	SetMintFailed(ctx context.Context, id string) error
}

// Attribute is an OpenSea-style metadata trait.
type Attribute struct {
	TraitType   string `json:"trait_type"`
	Value       any    `json:"value"`
	DisplayType string `json:"display_type,omitempty"`
}

// Metadata is the ERC-721 token metadata document.
type Metadata struct {
	Name         string      `json:"name"`
	Description  string      `json:"description"`
	Image        string      `json:"image,omitempty"`
	AnimationURL string      `json:"animation_url,omitempty"`
	ExternalURL  string      `json:"external_url,omitempty"`
	Attributes   []Attribute `json:"attributes"`
}

// Status is the mint view returned to clients.
type Status struct {
	Enabled     bool       `json:"enabled"`
	Status      string     `json:"status"`
	TokenURI    string     `json:"tokenUri,omitempty"`
	MetadataURL string     `json:"metadataUrl,omitempty"`
	Contract    string     `json:"contractAddress,omitempty"`
	TokenID     string     `json:"tokenId,omitempty"`
	TxHash      string     `json:"txHash,omitempty"`
	MintedAt    *time.Time `json:"mintedAt,omitempty"`
	Metadata    *Metadata  `json:"metadata,omitempty"`
}

var tokenIDPattern = regexp.MustCompile(`^[0-9]{1,78}$`)

// Service runs the mint workflow.
type Service struct {
	store  Store
	pinner Pinner
	media  Media
	// SiteURL, when set, becomes the metadata external_url prefix.
	SiteURL string
	now     func() time.Time
}

// NewService builds a Service. pinner may be nil when pinning is not configured; Prepare then
// reports the feature unavailable.
func NewService(s Store, p Pinner, m Media) *Service {
	return &Service{store: s, pinner: p, media: m, now: time.Now}
}

// StatusOf describes the mint state of st.
func (s *Service) StatusOf(st *store.Stream) *Status {
	out := &Status{
		Enabled:  st.MintEnabled,
		Status:   st.MintStatus,
		TokenURI: st.TokenURI,
		Contract: st.ContractAddress,
		TokenID:  st.TokenID,
		TxHash:   st.MintTxHash,
		MintedAt: st.MintedAt,
	}
	if out.Status == store.MintNone {
		out.Status = "none"
	}
	if cid, ok := strings.CutPrefix(st.TokenURI, "ipfs://"); ok && s.pinner != nil {
		out.MetadataURL = s.pinner.GatewayURL(cid)
	}
	return out
}

// Prepare pins token metadata for an ended stream owned by caller. Calling it again after a
// successful pin returns the existing token URI.
func (s *Service) Prepare(ctx context.Context, st *store.Stream, caller string) (*Status, error) {
	if err := s.checkOwner(st, caller); err != nil {
		return nil, err
	}
	switch {
	case !st.MintEnabled:
		return nil, apperr.Validation("minting is not enabled for this stream")
	case st.MintStatus == store.MintMinted:
		return nil, apperr.Conflict("stream has already been minted")
	case st.MintStatus == store.MintPinned && st.TokenURI != "":
		return s.StatusOf(st), nil
	case !st.Ended():
		return nil, apperr.Validation("stream has not ended")
	}
	if s.pinner == nil {
		return nil, apperr.Unavailable("metadata pinning")
	}

	rec, err := s.media.Recording(ctx, st)
	if errors.Is(err, playback.ErrNoRecording) {
		return nil, apperr.Validation("stream recording is not available yet")
	}
	if err != nil {
		return nil, apperr.External("livepeer", err)
	}
	// pinned metadata is permanent; wait for the transcoded asset
	if rec.Status != playback.RecordingReady {
		return nil, apperr.Validation("stream recording is not available yet")
	}
	thumb, err := s.media.Thumbnail(ctx, st)
	if err != nil && !errors.Is(err, playback.ErrNoThumbnail) {
		slog.Warn("mint thumbnail lookup failed", slog.String("component", "mint"),
			slog.String("stream_id", st.ID), slog.Any("err", err))
	}

	md := s.BuildMetadata(st, rec, thumb)
	cid, err := s.pinner.PinJSON(ctx, fmt.Sprintf("livecast-stream-%s.json", st.ID), md)
	if err != nil {
		telemetry.IncMint("pin", "error")
		if ferr := s.store.SetMintFailed(ctx, st.ID); ferr != nil {
			slog.Warn("record mint failure", slog.String("component", "mint"), slog.Any("err", ferr))
		}
		st.MintStatus = store.MintFailed
		return nil, apperr.External("pinata", err)
	}
	uri := pinning.URI(cid)
	if err := s.store.SetMintPinned(ctx, st.ID, uri); err != nil {
		return nil, apperr.Internal("save mint metadata", err)
	}
	telemetry.IncMint("pin", "ok")
	st.MintStatus, st.TokenURI = store.MintPinned, uri

	out := s.StatusOf(st)
	out.Metadata = md
	return out, nil
}

// Confirm records the mint transaction the creator submitted.
func (s *Service) Confirm(ctx context.Context, st *store.Stream, caller, txHash, contract, tokenID string) (*Status, error) {
	if err := s.checkOwner(st, caller); err != nil {
		return nil, err
	}
	switch st.MintStatus {
	case store.MintMinted:
		return nil, apperr.Conflict("stream has already been minted")
	case store.MintPinned:
	default:
		return nil, apperr.Validation("metadata has not been pinned")
	}

	txHash = strings.ToLower(strings.TrimSpace(txHash))
	if !wallet.IsTxHash(txHash) {
		return nil, apperr.Validation("invalid transaction hash")
	}
	addr, err := wallet.Normalize(contract)
	if err != nil {
		return nil, apperr.Validation("invalid contract address")
	}
	tokenID = strings.TrimSpace(tokenID)
	if !tokenIDPattern.MatchString(tokenID) {
		return nil, apperr.Validation("token id must be a decimal integer")
	}

	at := s.now().UTC()
	if err := s.store.SetMintConfirmed(ctx, st.ID, txHash, addr, tokenID, at); err != nil {
		return nil, apperr.Internal("save mint confirmation", err)
	}
	telemetry.IncMint("confirm", "ok")
	st.MintStatus, st.MintTxHash, st.ContractAddress, st.TokenID, st.MintedAt = store.MintMinted, txHash, addr, tokenID, &at
	return s.StatusOf(st), nil
}

func (s *Service) checkOwner(st *store.Stream, caller string) error {
	if caller == "" {
		return apperr.Unauthorized("authentication required")
	}
	if !wallet.Equal(st.CreatorAddress, caller) {
		return apperr.Forbidden("only the stream creator can mint")
	}
	return nil
}

// BuildMetadata renders the token metadata for st.
func (s *Service) BuildMetadata(st *store.Stream, rec *playback.Recording, thumbnail string) *Metadata {
	md := &Metadata{
		Name:        st.Title,
		Description: st.Description,
		Image:       thumbnail,
		Attributes: []Attribute{
			{TraitType: "Creator", Value: st.CreatorAddress},
		},
	}
	if md.Description == "" {
		md.Description = "Livestream recording: " + st.Title
	}
	if rec != nil {
		md.AnimationURL = rec.MP4URL
		if md.AnimationURL == "" {
			md.AnimationURL = rec.HLSURL
		}
		md.Attributes = append(md.Attributes, Attribute{TraitType: "Playback ID", Value: rec.PlaybackID})
	}
	if st.StartedAt != nil {
		md.Attributes = append(md.Attributes, Attribute{TraitType: "Streamed", Value: st.StartedAt.Unix(), DisplayType: "date"})
		if st.EndedAt != nil && st.EndedAt.After(*st.StartedAt) {
			md.Attributes = append(md.Attributes, Attribute{
				TraitType:   "Duration (minutes)",
				Value:       int(st.EndedAt.Sub(*st.StartedAt).Minutes()),
				DisplayType: "number",
			})
		}
	}
	if s.SiteURL != "" {
		md.ExternalURL = strings.TrimRight(s.SiteURL, "/") + "/streams/" + st.ID
	}
	return md
}
