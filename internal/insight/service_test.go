package insight

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vzahanych/area-insight/internal/aggregator"
	"github.com/vzahanych/area-insight/internal/config"
	"github.com/vzahanych/area-insight/internal/forecastcache"
	"github.com/vzahanych/area-insight/internal/incident"
	"github.com/vzahanych/area-insight/internal/model"
	"github.com/vzahanych/area-insight/internal/notify"
	"github.com/vzahanych/area-insight/internal/service"
	"github.com/vzahanych/area-insight/internal/store"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

const sevenTimerWeek = `{"product":"civillight","dataseries":[
	{"date":20240615,"weather":"lightrain","temp2m":{"max":18,"min":11}},
	{"date":20240616,"weather":"clear","temp2m":{"max":21,"min":12}},
	{"date":20240617,"weather":"pcloudy","temp2m":{"max":20,"min":12}},
	{"date":20240618,"weather":"cloudy","temp2m":{"max":19,"min":11}},
	{"date":20240619,"weather":"clear","temp2m":{"max":22,"min":13}},
	{"date":20240620,"weather":"ishower","temp2m":{"max":17,"min":10}},
	{"date":20240621,"weather":"clear","temp2m":{"max":23,"min":14}}
]}`

// upstreams stands in for every provider and counts the calls each receives.
type upstreams struct {
	postcode, weather, fallback, police, osrm *httptest.Server

	postcodeHits, weatherHits, fallbackHits, policeHits atomic.Int32

	mu            sync.Mutex
	postcodeCalls []string
}

func newUpstreams(t *testing.T) *upstreams {
	u := &upstreams{}

	u.postcode = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.postcodeHits.Add(1)
		code := strings.TrimPrefix(r.URL.Path, "/")
		u.mu.Lock()
		u.postcodeCalls = append(u.postcodeCalls, code)
		u.mu.Unlock()

		switch code {
		case "SW1A1AA":
			fmt.Fprint(w, `{"status":"match","data":{"latitude":"51.501009","longitude":"-0.141588"}}`)
		case "EC1A1BB":
			fmt.Fprint(w, `{"status":"match","data":{"latitude":"51.520180","longitude":"-0.097926"}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"status":"no_match"}`)
		}
	}))
	u.weather = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.weatherHits.Add(1)
		fmt.Fprint(w, sevenTimerWeek)
	}))
	u.fallback = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.fallbackHits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	u.police = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.policeHits.Add(1)
		fmt.Fprint(w, `[
			{"category":"burglary","month":"2024-05","location":{"latitude":"51.5013","longitude":"-0.1416"}},
			{"category":"burglary","month":"2024-05","location":{"latitude":"51.6000","longitude":"-0.1416"}}
		]`)
	}))
	u.osrm = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":"Ok","routes":[{"distance":3400,"duration":2500,"weight":2500,"weight_name":"duration"}],
			"waypoints":[{"name":"The Mall","distance":3.1,"location":[-0.1416,51.501]},{"name":"","distance":0.4,"location":[-0.0979,51.5202]}]}`)
	}))

	t.Cleanup(func() {
		u.postcode.Close()
		u.weather.Close()
		u.fallback.Close()
		u.police.Close()
		u.osrm.Close()
	})
	return u
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []notify.ForecastRefreshed
}

func (r *recordingPublisher) PublishForecastRefreshed(ctx context.Context, e notify.ForecastRefreshed) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingPublisher) Close() error { return nil }

type fixture struct {
	svc       *Service
	up        *upstreams
	store     *store.MemoryStore
	publisher *recordingPublisher
}

func upstream(t *testing.T, name string) *service.Upstream {
	return service.NewUpstream(name, config.ProviderConfig{Timeout: 2}, zaptest.NewLogger(t), nil)
}

func newFixture(t *testing.T, today time.Time) *fixture {
	logger := zaptest.NewLogger(t)
	up := newUpstreams(t)

	resolver := service.NewPostcodeResolverWithUpstream(up.postcode.URL, upstream(t, "postcode"), logger, nil)
	primary := service.NewSevenTimerServiceWithUpstream(up.weather.URL, upstream(t, "7timer"), logger, nil)
	fallback := service.NewOpenMeteoServiceWithUpstream(up.fallback.URL, upstream(t, "open-meteo"), nil, logger, nil)
	agg := aggregator.NewAggregator([]service.ForecastProvider{primary, fallback}, logger, nil)
	police := service.NewPoliceServiceWithUpstream(up.police.URL, upstream(t, "police"), logger, nil)
	routes := service.NewRouteServiceWithUpstream(up.osrm.URL, upstream(t, "osrm"), logger, nil)

	mem := store.NewMemoryStore()
	pub := &recordingPublisher{}

	svc := NewService(Deps{
		Resolver:  resolver,
		Weather:   agg,
		Incidents: incident.NewFetcher(police, 0.5, logger, nil),
		Routes:    routes,
		Cache:     forecastcache.NewPolicy(agg, logger, nil),
		Store:     mem,
		Publisher: pub,
	}, Options{
		CallTimeout: 5 * time.Second,
		Location:    time.UTC,
		Now:         func() time.Time { return today },
	}, logger, nil)

	return &fixture{svc: svc, up: up, store: mem, publisher: pub}
}

var june15 = time.Date(2024, 6, 15, 9, 30, 0, 0, time.UTC)

func TestGetWeather(t *testing.T) {
	f := newFixture(t, june15)

	days, err := f.svc.GetWeather(context.Background(), "SW1A1AA")
	require.NoError(t, err)

	require.Len(t, days, 7)
	assert.Equal(t, model.DailyForecast{Date: "2024-06-15", Condition: "rain (slight)", TemperatureMin: 11, TemperatureMax: 18}, days[0])
	assert.Equal(t, int32(0), f.up.fallbackHits.Load())
}

func TestGetWeather_UnresolvablePostcodeSkipsWeather(t *testing.T) {
	f := newFixture(t, june15)

	_, err := f.svc.GetWeather(context.Background(), "ZZ99ZZZ")
	require.Error(t, err)

	assert.ErrorIs(t, err, model.ErrLocationUnresolvable)
	assert.Equal(t, model.ErrorPayload{
		Error: "Invalid postcode or unable to retrieve coordinates",
		Code:  "LOCATION_UNRESOLVABLE",
	}, model.PayloadOf(err))
	assert.Equal(t, int32(0), f.up.weatherHits.Load())
	assert.Equal(t, int32(0), f.up.fallbackHits.Load())
}

func TestGetIncidents(t *testing.T) {
	f := newFixture(t, june15)

	got, err := f.svc.GetIncidents(context.Background(), "", "SW1A1AA", "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "burglary", got[0].Category)
}

func TestGetRoute(t *testing.T) {
	f := newFixture(t, june15)

	summary, err := f.svc.GetRoute(context.Background(), "foot", "SW1A1AA", "EC1A1BB")
	require.NoError(t, err)
	assert.Equal(t, "Ok", summary.StatusCode)
	assert.Len(t, summary.Waypoints, 2)
	assert.ElementsMatch(t, []string{"SW1A1AA", "EC1A1BB"}, f.up.postcodeCalls)
}

func TestGetRoute_EitherPostcodeInvalid(t *testing.T) {
	f := newFixture(t, june15)

	for _, pair := range [][2]string{{"SW1A1AA", "BAD"}, {"BAD", "EC1A1BB"}, {"BAD", "WORSE"}} {
		_, err := f.svc.GetRoute(context.Background(), "driving", pair[0], pair[1])
		require.Error(t, err)
		assert.ErrorIs(t, err, model.ErrLocationUnresolvable)
		assert.Equal(t, "Invalid postcode(s) or unable to retrieve coordinates", model.PayloadOf(err).Error)
	}
}

func TestCombined_EmptyCacheFetchesAndPersists(t *testing.T) {
	f := newFixture(t, june15)
	ctx := context.Background()
	require.NoError(t, f.store.UpsertLocation(ctx, model.LocationRecord{ID: "room-1", Name: "Studio", Postcode: "SW1A 1AA"}))

	info, err := f.svc.GetCombinedLocationInfoByID(ctx, "room-1", CombinedOptions{})
	require.NoError(t, err)

	assert.Equal(t, model.DailyForecast{Date: "2024-06-15", Condition: "rain (slight)", TemperatureMin: 11, TemperatureMax: 18}, info.CurrentWeather)
	assert.Equal(t, "SW1A 1AA", info.Postcode)
	assert.Equal(t, []string{"SW1A1AA"}, f.up.postcodeCalls, "whitespace is stripped before lookup")

	weekly, err := f.store.ReadCachedWeekly(ctx, "room-1")
	require.NoError(t, err)
	assert.Len(t, weekly, 7)

	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, "room-1", f.publisher.events[0].LocationID)
}

func TestCombined_CacheHitMakesNoUpstreamCalls(t *testing.T) {
	f := newFixture(t, june15)
	ctx := context.Background()
	require.NoError(t, f.store.UpsertLocation(ctx, model.LocationRecord{
		ID:       "room-1",
		Postcode: "SW1A 1AA",
		WeeklyWeather: []model.DailyForecast{
			{Date: "2024-06-14", Condition: "fog"},
			{Date: "2024-06-15", Condition: "clear sky", TemperatureMin: 9, TemperatureMax: 17},
		},
	}))

	info, err := f.svc.GetCombinedLocationInfoByID(ctx, "room-1", CombinedOptions{})
	require.NoError(t, err)

	assert.Equal(t, "clear sky", info.CurrentWeather.Condition)
	assert.Equal(t, int32(0), f.up.postcodeHits.Load())
	assert.Equal(t, int32(0), f.up.weatherHits.Load())
	assert.Equal(t, int32(0), f.up.fallbackHits.Load())
	assert.Empty(t, f.publisher.events)
}

func TestCombined_WithIncidentsResolvesOnce(t *testing.T) {
	f := newFixture(t, june15)
	ctx := context.Background()
	rec := model.LocationRecord{ID: "room-1", Postcode: "SW1A 1AA"}
	require.NoError(t, f.store.UpsertLocation(ctx, rec))

	info, err := f.svc.GetCombinedLocationInfo(ctx, rec, CombinedOptions{IncludeIncidents: true, Category: "burglary"})
	require.NoError(t, err)

	assert.Equal(t, int32(1), f.up.postcodeHits.Load())
	assert.Equal(t, int32(1), f.up.policeHits.Load())
	require.Len(t, info.Incidents, 1)
	assert.Empty(t, info.IncidentsError)
	assert.Equal(t, "2024-06-15", info.CurrentWeather.Date)
}

func TestCombined_NoForecastForTodayFailsWholeCall(t *testing.T) {
	f := newFixture(t, time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()
	require.NoError(t, f.store.UpsertLocation(ctx, model.LocationRecord{ID: "room-1", Postcode: "SW1A 1AA"}))

	_, err := f.svc.GetCombinedLocationInfoByID(ctx, "room-1", CombinedOptions{})
	assert.ErrorIs(t, err, model.ErrNoForecastForToday)

	weekly, _ := f.store.ReadCachedWeekly(ctx, "room-1")
	assert.Nil(t, weekly, "nothing is persisted when today is missing")
}

func TestCombined_UnknownLocation(t *testing.T) {
	f := newFixture(t, june15)

	_, err := f.svc.GetCombinedLocationInfoByID(context.Background(), "ghost", CombinedOptions{})
	assert.ErrorIs(t, err, model.ErrLocationNotFound)
}

func TestCombined_IncidentFailureIsReportedSeparately(t *testing.T) {
	f := newFixture(t, june15)
	f.up.police.Close()
	ctx := context.Background()
	rec := model.LocationRecord{ID: "room-1", Postcode: "SW1A1AA"}
	require.NoError(t, f.store.UpsertLocation(ctx, rec))

	info, err := f.svc.GetCombinedLocationInfo(ctx, rec, CombinedOptions{IncludeIncidents: true})
	require.NoError(t, err)
	assert.Nil(t, info.Incidents)
	assert.Equal(t, "Error retrieving crime data", info.IncidentsError)
	assert.Equal(t, "2024-06-15", info.CurrentWeather.Date)
}

func TestRefreshLocation(t *testing.T) {
	f := newFixture(t, june15)
	ctx := context.Background()
	rec := model.LocationRecord{ID: "room-1", Postcode: "SW1A 1AA"}
	require.NoError(t, f.store.UpsertLocation(ctx, rec))

	refreshed, err := f.svc.RefreshLocation(ctx, rec)
	require.NoError(t, err)
	assert.True(t, refreshed)

	refreshed, err = f.svc.RefreshLocation(ctx, rec)
	require.NoError(t, err)
	assert.False(t, refreshed, "second refresh on the same day is a cache hit")
	assert.Equal(t, int32(1), f.up.weatherHits.Load())
}

type failingStore struct {
	*store.MemoryStore
}

func (failingStore) WriteCachedWeekly(context.Context, string, []model.DailyForecast) error {
	return errors.New("disk full")
}

func TestCombined_PersistFailureStillAnswers(t *testing.T) {
	f := newFixture(t, june15)
	ctx := context.Background()
	rec := model.LocationRecord{ID: "room-1", Postcode: "SW1A1AA"}
	require.NoError(t, f.store.UpsertLocation(ctx, rec))
	f.svc.deps.Store = failingStore{f.store}

	info, err := f.svc.GetCombinedLocationInfo(ctx, rec, CombinedOptions{})
	require.NoError(t, err)
	assert.Equal(t, "2024-06-15", info.CurrentWeather.Date)
	assert.Empty(t, f.publisher.events)
}

func TestRefreshLocation_PersistFailureIsNotCounted(t *testing.T) {
	f := newFixture(t, june15)
	ctx := context.Background()
	rec := model.LocationRecord{ID: "room-1", Postcode: "SW1A1AA"}
	require.NoError(t, f.store.UpsertLocation(ctx, rec))
	f.svc.deps.Store = failingStore{f.store}

	refreshed, err := f.svc.RefreshLocation(ctx, rec)
	require.NoError(t, err)
	assert.False(t, refreshed)
	assert.Equal(t, int32(1), f.up.weatherHits.Load())
}

type slowStore struct {
	*store.MemoryStore
}

func (slowStore) GetLocation(ctx context.Context, id string) (model.LocationRecord, error) {
	<-ctx.Done()
	return model.LocationRecord{}, ctx.Err()
}

func TestCombinedByID_TimeoutCoversStoreRead(t *testing.T) {
	f := newFixture(t, june15)
	f.svc.opts.CallTimeout = 20 * time.Millisecond
	f.svc.deps.Store = slowStore{f.store}

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.GetCombinedLocationInfoByID(context.Background(), "room-1", CombinedOptions{})
		done <- err
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("store read was not bounded by the call timeout")
	}
}

func TestToday_UsesConfiguredLocation(t *testing.T) {
	tokyo, err := ParseLocation("Asia/Tokyo")
	require.NoError(t, err)

	late := time.Date(2024, 6, 15, 20, 0, 0, 0, time.UTC)
	svc := NewService(Deps{}, Options{Location: tokyo, Now: func() time.Time { return late }}, zap.NewNop(), nil)
	assert.Equal(t, "2024-06-16", svc.Today())

	_, err = ParseLocation("Mars/Olympus")
	assert.Error(t, err)
}

func TestCompactPostcode(t *testing.T) {
	assert.Equal(t, "SW1A1AA", CompactPostcode(" SW1A 1AA "))
	assert.Equal(t, "EC1A1BB", CompactPostcode("EC1A\t1BB"))
	assert.Equal(t, "", CompactPostcode("   "))
}
