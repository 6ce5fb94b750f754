package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"consultation-booking/config"
	"consultation-booking/internal/domain/entity"
	"consultation-booking/internal/domain/gateway"
	"consultation-booking/pkg/retry"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

var (
	ErrMeetingNotConfigured = errors.New("meeting provider is not configured")
	ErrInvalidMeetingTime   = errors.New("invalid meeting date or time")
	ErrMeetingAuth          = errors.New("meeting provider rejected credentials")
	ErrMeetingRejected      = errors.New("meeting provider rejected request")
	ErrMeetingUnavailable   = errors.New("meeting provider unavailable")
)

const (
	zoomStartTimeLayout = "2006-01-02T15:04:05"
	zoomScheduledType   = 2
	zoomRequestTimeout  = 15 * time.Second
)

// DefaultMeetingRetry retries transient provider failures after 2s and 4s.
var DefaultMeetingRetry = retry.Policy{MaxAttempts: 3, Delay: retry.Linear(2 * time.Second)}

type zoomMeetingSettings struct {
	HostVideo        bool   `json:"host_video"`
	ParticipantVideo bool   `json:"participant_video"`
	JoinBeforeHost   bool   `json:"join_before_host"`
	MuteUponEntry    bool   `json:"mute_upon_entry"`
	WaitingRoom      bool   `json:"waiting_room"`
	Audio            string `json:"audio"`
	AutoRecording    string `json:"auto_recording"`
}

type zoomCreateMeetingRequest struct {
	Topic     string              `json:"topic"`
	Type      int                 `json:"type"`
	StartTime string              `json:"start_time"`
	Duration  int                 `json:"duration"`
	Timezone  string              `json:"timezone"`
	Agenda    string              `json:"agenda,omitempty"`
	Settings  zoomMeetingSettings `json:"settings"`
}

type zoomMeetingResponse struct {
	ID       json.Number `json:"id"`
	Password string      `json:"password"`
	JoinURL  string      `json:"join_url"`
	StartURL string      `json:"start_url"`
}

// ZoomMeetingService schedules meetings through the Zoom REST API using
// server-to-server OAuth.
type ZoomMeetingService struct {
	cfg    config.ZoomConfig
	client *http.Client
	policy retry.Policy
	log    *logrus.Logger
}

func NewZoomMeetingService(cfg config.ZoomConfig, log *logrus.Logger) *ZoomMeetingService {
	base := &http.Client{Timeout: zoomRequestTimeout}

	svc := &ZoomMeetingService{
		cfg:    cfg,
		client: base,
		policy: DefaultMeetingRetry,
		log:    log,
	}

	if svc.configured() {
		cc := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			EndpointParams: url.Values{
				"grant_type": {"account_credentials"},
				"account_id": {cfg.AccountID},
			},
			AuthStyle: oauth2.AuthStyleInHeader,
		}
		tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
		svc.client = oauth2.NewClient(tokenCtx, cc.TokenSource(tokenCtx))
		svc.client.Timeout = zoomRequestTimeout
	}

	return svc
}

func (s *ZoomMeetingService) configured() bool {
	return s.cfg.ClientID != "" && s.cfg.ClientSecret != "" && s.cfg.AccountID != ""
}

func (s *ZoomMeetingService) CreateMeeting(ctx context.Context, req gateway.MeetingRequest) (*entity.MeetingDetails, error) {
	if !s.configured() {
		return nil, ErrMeetingNotConfigured
	}

	timezone := req.Timezone
	if timezone == "" {
		timezone = entity.DefaultTimezone
	}
	start, err := entity.SlotStart(req.Date, req.Time, timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMeetingTime, err)
	}

	duration := req.Duration
	if duration <= 0 {
		duration = entity.DefaultDuration
	}

	body, err := json.Marshal(zoomCreateMeetingRequest{
		Topic:     fmt.Sprintf("%s - %s", req.ServiceName, req.CustomerName),
		Type:      zoomScheduledType,
		StartTime: start.Format(zoomStartTimeLayout),
		Duration:  duration,
		Timezone:  timezone,
		Agenda:    req.Agenda,
		Settings: zoomMeetingSettings{
			HostVideo:        true,
			ParticipantVideo: true,
			JoinBeforeHost:   false,
			MuteUponEntry:    true,
			WaitingRoom:      true,
			Audio:            "both",
			AutoRecording:    "none",
		},
	})
	if err != nil {
		return nil, err
	}

	log := s.log.WithField("booking_id", req.BookingID)

	var meeting *entity.MeetingDetails
	err = s.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		m, err := s.post(ctx, body)
		if err != nil {
			if errors.Is(err, ErrMeetingAuth) || errors.Is(err, ErrMeetingRejected) {
				return retry.Permanent(err)
			}
			return err
		}
		meeting = m
		return nil
	}, func(err error, wait time.Duration) {
		log.Warnf("Meeting creation failed, retrying in %s: %+v", wait, err)
	})
	if err != nil {
		return nil, err
	}

	log.Infof("Meeting %s scheduled for %s %s", meeting.ID, req.Date, req.Time)
	return meeting, nil
}

func (s *ZoomMeetingService) post(ctx context.Context, body []byte) (*entity.MeetingDetails, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.APIBaseURL+"/users/me/meetings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil &&
			retrieveErr.Response.StatusCode >= 400 && retrieveErr.Response.StatusCode < 500 {
			return nil, fmt.Errorf("%w: token endpoint returned %d", ErrMeetingAuth, retrieveErr.Response.StatusCode)
		}
		return nil, fmt.Errorf("%w: %v", ErrMeetingUnavailable, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrMeetingUnavailable, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: status %d: %s", ErrMeetingAuth, resp.StatusCode, payload)
	case resp.StatusCode == http.StatusBadRequest, resp.StatusCode == http.StatusNotFound,
		resp.StatusCode == http.StatusConflict, resp.StatusCode == http.StatusUnprocessableEntity:
		return nil, fmt.Errorf("%w: status %d: %s", ErrMeetingRejected, resp.StatusCode, payload)
	default:
		return nil, fmt.Errorf("%w: status %d", ErrMeetingUnavailable, resp.StatusCode)
	}

	var out zoomMeetingResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrMeetingRejected, err)
	}

	meeting := &entity.MeetingDetails{
		ID:       out.ID.String(),
		JoinURL:  out.JoinURL,
		StartURL: out.StartURL,
		Password: out.Password,
	}
	if !meeting.Valid() {
		return nil, fmt.Errorf("%w: response without id or join url", ErrMeetingRejected)
	}
	return meeting, nil
}
