package floors

import (
	"container/heap"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alitto/pond"
	validator "github.com/asaskevich/govalidator"
	"github.com/golang/glog"
	"github.com/patrickmn/go-cache"

	"github.com/prebid/price-floors-engine/config"
	"github.com/prebid/price-floors-engine/metrics"
	"github.com/prebid/price-floors-engine/openrtb_ext"
	"github.com/prebid/price-floors-engine/util/timeutil"
)

// defaultRefetchCheckInterval is the wakeup period of the refetch queue
// scanner, in seconds, when refetch_check_interval_sec is left unset.
const defaultRefetchCheckInterval = 300

type fetchInfo struct {
	config.AccountFloorFetch
	fetchTime      int64
	refetchRequest bool
	retryCount     int
}

// FloorFetcher serves fetched floor rule sets for accounts with dynamic
// fetching enabled.
type FloorFetcher interface {
	// Fetch returns the cached rule set for the account's fetch URL together
	// with a fetch status. A cache miss schedules a background fetch and
	// reports the in-progress status; Fetch never blocks on the network.
	Fetch(configs config.AccountPriceFloors) (*openrtb_ext.PriceFloorRules, string)
	Stop()
}

type fetchedRecord struct {
	floors      *openrtb_ext.PriceFloorRules
	fetchStatus string
}

type PriceFloorFetcher struct {
	pool                 *pond.WorkerPool // Goroutines worker pool
	fetchQueue           FetchQueue       // Priority queue of pending refetches ordered by fetch time
	fetchInprogress      map[string]bool  // Map of URL with fetch in progress
	configReceiver       chan fetchInfo   // Channel which receives URLs to be fetched
	done                 chan struct{}    // Channel to close the running instance
	cache                *cache.Cache     // cache instance of fetched rule sets keyed by URL
	httpClient           *http.Client     // http client to fetch data from url
	time                 timeutil.Time    // time interface to record request timestamps
	metricEngine         metrics.MetricsEngine
	maxRetries           int
	refetchCheckInterval int // Refetch queue scan period in seconds
}

// FetchQueue is a min-heap of pending fetch jobs ordered by fetch time.
type FetchQueue []*fetchInfo

func (fq FetchQueue) Len() int {
	return len(fq)
}

func (fq FetchQueue) Less(i, j int) bool {
	return fq[i].fetchTime < fq[j].fetchTime
}

func (fq FetchQueue) Swap(i, j int) {
	fq[i], fq[j] = fq[j], fq[i]
}

func (fq *FetchQueue) Push(element interface{}) {
	fetchRateInfo := element.(*fetchInfo)
	*fq = append(*fq, fetchRateInfo)
}

func (fq *FetchQueue) Pop() interface{} {
	old := *fq
	n := len(old)
	fetchRateInfo := old[n-1]
	old[n-1] = nil
	*fq = old[0 : n-1]
	return fetchRateInfo
}

func (fq *FetchQueue) Top() *fetchInfo {
	old := *fq
	if len(old) == 0 {
		return nil
	}
	return old[0]
}

func workerPanicHandler(p interface{}) {
	glog.Errorf("floor fetcher worker panicked: %v", p)
}

func NewPriceFloorFetcher(conf config.PriceFloors, httpClient *http.Client, metricEngine metrics.MetricsEngine) *PriceFloorFetcher {
	refetchCheckInterval := conf.Fetcher.RefetchCheckInterval
	if refetchCheckInterval <= 0 {
		refetchCheckInterval = defaultRefetchCheckInterval
	}

	floorFetcher := PriceFloorFetcher{
		pool:                 pond.New(conf.Fetcher.Worker, conf.Fetcher.Capacity, pond.PanicHandler(workerPanicHandler)),
		fetchQueue:           make(FetchQueue, 0, 100),
		fetchInprogress:      make(map[string]bool),
		configReceiver:       make(chan fetchInfo, conf.Fetcher.Capacity),
		done:                 make(chan struct{}),
		cache:                cache.New(time.Duration(conf.Fetcher.CacheExpirySec)*time.Second, time.Duration(conf.Fetcher.CacheCleanupSec)*time.Second),
		httpClient:           httpClient,
		time:                 &timeutil.RealTime{},
		metricEngine:         metricEngine,
		maxRetries:           conf.Fetcher.MaxRetries,
		refetchCheckInterval: refetchCheckInterval,
	}

	go floorFetcher.Fetcher()

	return &floorFetcher
}

func (f *PriceFloorFetcher) SetWithExpiry(key string, value fetchedRecord, cacheExpiry int) {
	f.cache.Set(key, value, time.Duration(cacheExpiry)*time.Second)
}

func (f *PriceFloorFetcher) Get(key string) (fetchedRecord, bool) {
	value, found := f.cache.Get(key)
	if !found {
		return fetchedRecord{}, false
	}
	return value.(fetchedRecord), true
}

// Fetch serves the rule set for the account's fetch URL from cache. On a
// miss it enqueues a background fetch and reports inprogress; repeated calls
// for the same URL never trigger concurrent fetches. Accounts with fetching
// disabled get none without any I/O.
func (f *PriceFloorFetcher) Fetch(configs config.AccountPriceFloors) (*openrtb_ext.PriceFloorRules, string) {
	if f == nil || !configs.UseDynamicData || !configs.Fetcher.Enabled || configs.Fetcher.Timeout <= 0 ||
		len(configs.Fetcher.URL) == 0 || !validator.IsURL(configs.Fetcher.URL) {
		return nil, openrtb_ext.FetchNone
	}

	if record, found := f.Get(configs.Fetcher.URL); found {
		return record.floors.DeepCopy(), record.fetchStatus
	}

	// push to channel to fetch the price floor rules
	select {
	case f.configReceiver <- fetchInfo{AccountFloorFetch: configs.Fetcher}:
	default:
		glog.Warningf("floor fetcher queue is full, dropping fetch for url %s", configs.Fetcher.URL)
	}

	return nil, openrtb_ext.FetchInprogress
}

// worker performs one fetch-validate-cache cycle and schedules the refetch.
func (f *PriceFloorFetcher) worker(fetchConfig fetchInfo) {
	floorData, fetchedMaxAge, status := f.fetchAndValidate(fetchConfig.AccountFloorFetch)
	if status == openrtb_ext.FetchSuccess {
		// Update cache with new floor rules
		cacheExpiry := fetchConfig.AccountFloorFetch.MaxAge
		f.SetWithExpiry(fetchConfig.AccountFloorFetch.URL, fetchedRecord{floors: floorData, fetchStatus: status}, cacheExpiry)
		fetchConfig.retryCount = 0
	} else {
		// Cache the failed status so callers observe it until the next cycle
		f.SetWithExpiry(fetchConfig.AccountFloorFetch.URL, fetchedRecord{fetchStatus: status}, fetchConfig.AccountFloorFetch.Period)
		fetchConfig.retryCount++
	}

	// Send to refetch channel
	f.configReceiver <- fetchInfo{
		AccountFloorFetch: fetchConfig.AccountFloorFetch,
		fetchTime:         f.time.Now().Unix() + refetchPeriod(fetchConfig.AccountFloorFetch, fetchedMaxAge),
		refetchRequest:    true,
		retryCount:        fetchConfig.retryCount,
	}
}

// refetchPeriod honors the provider's Cache-Control max-age when it lands
// between the configured period and maxInt32, otherwise the configured period
// applies.
func refetchPeriod(fetchConfig config.AccountFloorFetch, fetchedMaxAge int) int64 {
	if fetchedMaxAge > fetchConfig.Period && fetchedMaxAge < math.MaxInt32 {
		return int64(fetchedMaxAge)
	}
	return int64(fetchConfig.Period)
}

// Stop terminates the fetcher lifecycle
func (f *PriceFloorFetcher) Stop() {
	if f == nil {
		return
	}
	close(f.done)
}

func (f *PriceFloorFetcher) submit(fetchConfig *fetchInfo) {
	status := f.pool.TrySubmit(func() {
		f.worker(*fetchConfig)
	})
	if !status {
		heap.Push(&f.fetchQueue, fetchConfig)
	}
}

// Fetcher is the single goroutine that owns the fetch queue and the
// in-progress set. All fetch scheduling flows through configReceiver, so no
// locking is needed anywhere in the fetcher.
func (f *PriceFloorFetcher) Fetcher() {
	//Create Ticker for the refetch queue scan
	ticker := time.NewTicker(time.Duration(f.refetchCheckInterval) * time.Second)

	for {
		select {
		case fetchData := <-f.configReceiver:
			if fetchData.refetchRequest {
				if f.maxRetries > 0 && fetchData.retryCount > f.maxRetries {
					delete(f.fetchInprogress, fetchData.AccountFloorFetch.URL)
					glog.Errorf("floor fetch for url %s abandoned after %d failed attempts", fetchData.AccountFloorFetch.URL, fetchData.retryCount)
					continue
				}
				heap.Push(&f.fetchQueue, &fetchData)
			} else {
				if _, ok := f.fetchInprogress[fetchData.AccountFloorFetch.URL]; !ok {
					fetchData.fetchTime = f.time.Now().Unix()
					f.fetchInprogress[fetchData.AccountFloorFetch.URL] = true
					f.submit(&fetchData)
				}
			}
		case <-ticker.C:
			currentTime := f.time.Now().Unix()
			for top := f.fetchQueue.Top(); top != nil && top.fetchTime <= currentTime; top = f.fetchQueue.Top() {
				nextFetch := heap.Pop(&f.fetchQueue)
				f.submit(nextFetch.(*fetchInfo))
			}
		case <-f.done:
			f.pool.Stop()
			ticker.Stop()
			glog.Info("Price floor fetcher terminated")
			return
		}
	}
}

// fetchAndValidate downloads one rule set and runs the full structural
// validation, returning the parsed rules, the response max-age and a fetch
// status. Every failure mode is counted under its own metric reason code.
func (f *PriceFloorFetcher) fetchAndValidate(fetchConfig config.AccountFloorFetch) (*openrtb_ext.PriceFloorRules, int, string) {
	floorResp, maxAge, err := f.fetchFloorRulesFromURL(fetchConfig)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			f.metricEngine.RecordDynamicFetchFailure(fetchConfig.AccountID, metrics.FetchFailureTimeout)
			glog.Errorf("Timeout while fetching floor data from url %s: %v", fetchConfig.URL, err)
			return nil, 0, openrtb_ext.FetchTimeout
		}
		f.metricEngine.RecordDynamicFetchFailure(fetchConfig.AccountID, metrics.FetchFailureTransport)
		glog.Errorf("Error while fetching floor data from url %s: %v", fetchConfig.URL, err)
		return nil, 0, openrtb_ext.FetchError
	}

	if fetchConfig.MaxFileSizeKB > 0 && len(floorResp) > fetchConfig.MaxFileSizeKB*1024 {
		f.metricEngine.RecordDynamicFetchFailure(fetchConfig.AccountID, metrics.FetchFailureOversized)
		glog.Errorf("Recieved invalid floor data from url: %s, reason: response size %d exceeds limit %d KB", fetchConfig.URL, len(floorResp), fetchConfig.MaxFileSizeKB)
		return nil, 0, openrtb_ext.FetchError
	}

	var priceFloors openrtb_ext.PriceFloorRules
	if err = json.Unmarshal(floorResp, &priceFloors); err != nil {
		f.metricEngine.RecordDynamicFetchFailure(fetchConfig.AccountID, metrics.FetchFailureUnmarshal)
		glog.Errorf("Recieved invalid price floor json from url: %s", fetchConfig.URL)
		return nil, 0, openrtb_ext.FetchError
	}

	if err := validateRules(fetchConfig, &priceFloors); err != nil {
		f.metricEngine.RecordDynamicFetchFailure(fetchConfig.AccountID, metrics.FetchFailureValidation)
		glog.Errorf("Validation failed for price floor rules from url: %s, reason: %v", fetchConfig.URL, err)
		return nil, 0, openrtb_ext.FetchError
	}

	return &priceFloors, maxAge, openrtb_ext.FetchSuccess
}

// fetchFloorRulesFromURL returns the response body and the Cache-Control
// max-age of a single fetch.
func (f *PriceFloorFetcher) fetchFloorRulesFromURL(fetchConfig config.AccountFloorFetch) ([]byte, int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(fetchConfig.Timeout)*time.Millisecond)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchConfig.URL, nil)
	if err != nil {
		return nil, 0, errors.New("error while forming http fetch request : " + err.Error())
	}

	httpResp, err := f.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || (httpReq.Context().Err() == context.DeadlineExceeded) {
			return nil, 0, context.DeadlineExceeded
		}
		return nil, 0, errors.New("error while getting response from url : " + err.Error())
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, 0, errors.New("no response from server")
	}

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, 0, errors.New("unable to read response")
	}

	maxAge := parseMaxAge(httpResp.Header.Get("Cache-Control"))

	return respBody, maxAge, nil
}

// parseMaxAge extracts the max-age directive from a Cache-Control header
// value, returning 0 when absent or malformed.
func parseMaxAge(cacheControl string) int {
	for _, directive := range strings.Split(cacheControl, ",") {
		directive = strings.TrimSpace(directive)
		if value, ok := strings.CutPrefix(strings.ToLower(directive), "max-age="); ok {
			maxAge, err := strconv.Atoi(value)
			if err != nil {
				return 0
			}
			return maxAge
		}
	}
	return 0
}
