package service

import (
	"context"
	"strings"
	"time"

	"vidstream/internal/domain"
	"vidstream/internal/repository"
)

// ChannelService exposes the social-graph reads and writes: channel profile
// aggregation, watch history and subscription toggling.
type ChannelService interface {
	GetChannelProfile(ctx context.Context, handle, viewerID string) (*domain.ChannelProfile, error)
	GetWatchHistory(ctx context.Context, userID string) ([]domain.HistoryItem, error)
	RecordWatch(ctx context.Context, userID, videoID string) error
	ToggleSubscription(ctx context.Context, subscriberID, channelID string) (bool, error)
}

type channelService struct {
	users  repository.UserRepository
	subs   repository.SubscriptionRepository
	videos repository.VideoRepository
}

func NewChannelService(users repository.UserRepository, subs repository.SubscriptionRepository, videos repository.VideoRepository) ChannelService {
	return &channelService{
		users:  users,
		subs:   subs,
		videos: videos,
	}
}

// GetChannelProfile aggregates subscriber/subscription counts and the
// viewer's subscription status for the channel behind a handle.
func (s *channelService) GetChannelProfile(ctx context.Context, handle, viewerID string) (*domain.ChannelProfile, error) {
	handle = strings.ToLower(strings.TrimSpace(handle))
	if handle == "" {
		return nil, domain.NewError(domain.KindValidation, "user name is missing")
	}

	profile, err := s.users.ChannelProfile(ctx, handle, viewerID)
	if err != nil {
		if domain.KindOf(err) == domain.KindNotFound {
			return nil, err
		}
		return nil, domain.WrapError(domain.KindInternal, "failed to load channel profile", err)
	}
	return profile, nil
}

// GetWatchHistory resolves a user's history, most recent first. An unknown
// user is a not-found failure, not an empty history.
func (s *channelService) GetWatchHistory(ctx context.Context, userID string) ([]domain.HistoryItem, error) {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		if domain.KindOf(err) == domain.KindNotFound {
			return nil, err
		}
		return nil, domain.WrapError(domain.KindInternal, "failed to load user", err)
	}

	items, err := s.videos.WatchHistory(ctx, userID)
	if err != nil {
		return nil, domain.WrapError(domain.KindInternal, "failed to load watch history", err)
	}
	return items, nil
}

// RecordWatch appends a history entry for an existing video.
func (s *channelService) RecordWatch(ctx context.Context, userID, videoID string) error {
	if _, err := s.videos.GetByID(ctx, videoID); err != nil {
		if domain.KindOf(err) == domain.KindNotFound {
			return err
		}
		return domain.WrapError(domain.KindInternal, "failed to load video", err)
	}
	if err := s.videos.AddWatchEvent(ctx, userID, videoID, time.Now().UTC()); err != nil {
		return domain.WrapError(domain.KindInternal, "failed to record watch event", err)
	}
	return nil
}

// ToggleSubscription flips the subscriber→channel edge and reports the
// resulting state.
func (s *channelService) ToggleSubscription(ctx context.Context, subscriberID, channelID string) (bool, error) {
	if subscriberID == channelID {
		return false, domain.NewError(domain.KindValidation, "cannot subscribe to your own channel")
	}

	if _, err := s.users.GetByID(ctx, channelID); err != nil {
		if domain.KindOf(err) == domain.KindNotFound {
			return false, domain.NewError(domain.KindNotFound, "channel does not exist")
		}
		return false, domain.WrapError(domain.KindInternal, "failed to load channel", err)
	}

	exists, err := s.subs.Exists(ctx, subscriberID, channelID)
	if err != nil {
		return false, domain.WrapError(domain.KindInternal, "failed to check subscription", err)
	}

	if exists {
		if err := s.subs.Delete(ctx, subscriberID, channelID); err != nil {
			return false, domain.WrapError(domain.KindInternal, "failed to unsubscribe", err)
		}
		return false, nil
	}
	if err := s.subs.Create(ctx, subscriberID, channelID); err != nil {
		return false, domain.WrapError(domain.KindInternal, "failed to subscribe", err)
	}
	return true, nil
}
