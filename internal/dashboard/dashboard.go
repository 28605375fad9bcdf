// Package dashboard ties one poll cycle to the derived views: trip stats,
// the map surface and the resolved address of the vehicle.
package dashboard

import (
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"gpstrack/internal/domain"
	"gpstrack/internal/hub"
	"gpstrack/internal/stats"
)

const MsgStats = "stats"

type Controller interface {
	State() domain.PollState
	SetInterval(d time.Duration) error
	SetEndpoint(endpoint string)
	RefetchNow()
	DismissError()
}

type MapSyncer interface {
	Sync(snap *domain.Snapshot)
	Ready() bool
}

type AddressResolver interface {
	Update(pos *domain.LatLon)
	Address() string
	Loading() bool
}

type Publisher interface {
	Publish(topic, msgType string, payload any)
}

// ConfigUpdate is a partial runtime reconfiguration. Nil fields are left
// untouched; an empty endpoint restores the default upstream.
type ConfigUpdate struct {
	Endpoint   *string `json:"endpoint" validate:"omitnil,url_or_empty"`
	IntervalMs *int    `json:"intervalMs" validate:"omitnil,gte=500,lte=30000"`
	StreamURL  *string `json:"streamUrl" validate:"omitnil,url_or_empty"`
}

type PollView struct {
	LastUpdate    *time.Time `json:"lastUpdate"`
	Error         string     `json:"error,omitempty"`
	UsingMockData bool       `json:"usingMockData"`
	Fetching      bool       `json:"fetching"`
}

type ConfigView struct {
	Endpoint   string `json:"endpoint"`
	IntervalMs int64  `json:"intervalMs"`
	StreamURL  string `json:"streamUrl"`
}

// State is the complete dashboard view served over HTTP and pushed to browsers
type State struct {
	Stats          domain.DerivedStats `json:"stats"`
	DistanceText   string              `json:"distanceText"`
	SpeedText      string              `json:"speedText"`
	SyntheticSpeed bool                `json:"syntheticSpeed"`
	Address        string              `json:"address"`
	AddressLoading bool                `json:"addressLoading"`
	Poll           PollView            `json:"poll"`
	Config         ConfigView          `json:"config"`
	MapReady       bool                `json:"mapReady"`
}

type Dashboard struct {
	control   Controller
	stats     *stats.Engine
	mapSync   MapSyncer
	resolver  AddressResolver
	publisher Publisher
	validate  *validator.Validate
	logger    *slog.Logger

	mu        sync.Mutex
	revisit   domain.RevisitState
	derived   domain.DerivedStats
	streamURL string
}

func New(
	control Controller,
	engine *stats.Engine,
	mapSync MapSyncer,
	resolver AddressResolver,
	publisher Publisher,
	streamURL string,
	logger *slog.Logger,
) *Dashboard {
	return &Dashboard{
		control:   control,
		stats:     engine,
		mapSync:   mapSync,
		resolver:  resolver,
		publisher: publisher,
		validate:  newValidator(),
		logger:    logger.With("component", "dashboard"),
		derived:   domain.DerivedStats{Speed: domain.SpeedNone, Status: domain.StatusNoGPSData},
		streamURL: streamURL,
	}
}

// newValidator accepts an empty string wherever url_or_empty is used, so a
// field can be cleared through the same update that sets it.
func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("url_or_empty", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if s == "" {
			return true
		}
		u, err := url.Parse(s)
		return err == nil && u.Scheme != "" && u.Host != ""
	})
	return v
}

// OnSnapshot recomputes stats and redraws the map from the same snapshot
func (d *Dashboard) OnSnapshot(snap *domain.Snapshot) {
	d.mu.Lock()
	derived, revisit := d.stats.Compute(snap, d.revisit)
	d.derived = derived
	d.revisit = revisit
	d.mapSync.Sync(snap)
	d.mu.Unlock()

	d.resolver.Update(derived.CurrentLocation)
	d.PublishState()
}

func (d *Dashboard) OnPollError(err error) {
	d.logger.Warn("showing poll error", "error", err)
	d.PublishState()
}

// OnAddress is the resolver's change callback
func (d *Dashboard) OnAddress(address string) {
	d.logger.Debug("address changed", "address", address)
	d.PublishState()
}

func (d *Dashboard) PublishState() {
	d.publisher.Publish(hub.TopicStats, MsgStats, d.State())
}

func (d *Dashboard) State() State {
	d.mu.Lock()
	derived := d.derived
	streamURL := d.streamURL
	d.mu.Unlock()

	ps := d.control.State()
	poll := PollView{
		UsingMockData: ps.UsingMockData,
		Fetching:      ps.Fetching,
	}
	if !ps.LastUpdate.IsZero() {
		t := ps.LastUpdate
		poll.LastUpdate = &t
	}
	if err := ps.VisibleError(); err != nil {
		poll.Error = err.Error()
	}

	return State{
		Stats:          derived,
		DistanceText:   derived.DistanceText(),
		SpeedText:      derived.SpeedText(),
		SyntheticSpeed: derived.Speed == domain.SpeedSynthetic,
		Address:        d.resolver.Address(),
		AddressLoading: d.resolver.Loading(),
		Poll:           poll,
		Config: ConfigView{
			Endpoint:   ps.Endpoint,
			IntervalMs: ps.Interval.Milliseconds(),
			StreamURL:  streamURL,
		},
		MapReady: d.mapSync.Ready(),
	}
}

// Configure validates and applies u. Nothing is applied when validation fails.
func (d *Dashboard) Configure(u ConfigUpdate) error {
	if err := d.validate.Struct(u); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if u.IntervalMs != nil {
		if err := d.control.SetInterval(time.Duration(*u.IntervalMs) * time.Millisecond); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
	}
	if u.Endpoint != nil {
		d.control.SetEndpoint(*u.Endpoint)
		d.control.RefetchNow()
	}
	if u.StreamURL != nil {
		d.mu.Lock()
		d.streamURL = *u.StreamURL
		d.mu.Unlock()
	}

	d.logger.Info("configuration updated", "endpoint", u.Endpoint != nil, "interval", u.IntervalMs != nil, "stream", u.StreamURL != nil)
	d.PublishState()
	return nil
}

func (d *Dashboard) Refetch() {
	d.control.RefetchNow()
}

func (d *Dashboard) DismissError() {
	d.control.DismissError()
	d.PublishState()
}
