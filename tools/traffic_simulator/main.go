package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/patrickwarner/rtbengine/internal/config"
	"github.com/patrickwarner/rtbengine/internal/db"
	"github.com/patrickwarner/rtbengine/internal/models"
	"github.com/patrickwarner/rtbengine/internal/observability"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	server          string
	zoneCSV         string
	pageCSV         string
	totalReq        int
	conc            int
	duration        time.Duration
	rate            float64
	winRate         float64
	floor           float64
	stats           bool
	flush           bool
	redisAddr       string
	debug           bool
	label           string
	surgeInterval   time.Duration
	surgeDuration   time.Duration
	surgeMultiplier float64
	jitter          float64
)

var logger *zap.Logger

// HTTP client with proper resource limits
var httpClient *http.Client

var (
	zoneIDs    = []string{"zone-1", "zone-2"}
	pages      = []string{"/home", "/news", "/sports"}
	userAgents = []string{
		// Mobile
		"Mozilla/5.0 (iPhone; CPU iPhone OS 16_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.0 Mobile/15E148 Safari/604.1",
		"Mozilla/5.0 (Linux; Android 12; Pixel 6 Pro) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/114.0.5735.196 Mobile Safari/537.36",
		"Mozilla/5.0 (iPad; CPU OS 15_2 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/15.2 Mobile/15E148 Safari/604.1",

		// Desktop
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 13_3_1) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.1 Safari/605.1.15",
		"Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:111.0) Gecko/20100101 Firefox/111.0",
	}
	userIPs = []string{
		"192.0.2.1",
		"198.51.100.1",
		"203.0.113.1",
	}
)

const statsInterval = 5 * time.Second

var (
	countSent    uint64
	countBids    uint64
	countNoBid   uint64
	countErrors  uint64
	countWins    uint64
	countRefused uint64
	// settled spend in hundredths of a cent
	settledUnits uint64
)

// simRequest carries the randomised parts of one bid request so goroutines
// never share the generator.
type simRequest struct {
	id     string
	zoneID string
	page   string
	ua     string
	ip     string
	win    bool
}

func main() {
	flag.StringVar(&server, "server", "http://localhost:8787", "auction server base URL")
	flag.StringVar(&zoneCSV, "zones", "zone-1,zone-2", "comma-separated zone IDs")
	flag.StringVar(&pageCSV, "pages", "/home,/news,/sports", "comma-separated page paths")
	flag.IntVar(&totalReq, "requests", 1000, "total requests to send")
	flag.IntVar(&conc, "concurrency", 20, "concurrent requests")
	flag.DurationVar(&duration, "duration", 0, "how long to run traffic (0 to disable)")
	flag.Float64Var(&rate, "rate", 0, "requests per second (0 for unlimited)")
	flag.Float64Var(&winRate, "win-rate", 0.8, "probability a winning bid is confirmed via its win notice")
	flag.Float64Var(&floor, "floor", 0, "floor price sent with every request")
	flag.BoolVar(&stats, "stats", false, "print aggregated stats periodically")
	flag.BoolVar(&flush, "flush", false, "clear win notice claims in redis before sending traffic")
	flag.StringVar(&redisAddr, "redis", "", "redis address (defaults to REDIS_ADDR)")
	flag.BoolVar(&debug, "debug", false, "enable verbose debug logs")
	flag.StringVar(&label, "label", "", "label to identify this run")
	flag.DurationVar(&surgeInterval, "surge-interval", 0, "interval between traffic surges (0 to disable)")
	flag.DurationVar(&surgeDuration, "surge-duration", 0, "duration of each surge window")
	flag.Float64Var(&surgeMultiplier, "surge-multiplier", 2.0, "requests multiplier during surge period")
	flag.Float64Var(&jitter, "jitter", 0.0, "random jitter factor for request spacing")
	flag.Parse()

	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}
	var err error
	logger, err = observability.InitLoggerWithLevel(level, "traffic-simulator")
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	httpClient = &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			MaxConnsPerHost:       50,
			IdleConnTimeout:       90 * time.Second,
		},
	}

	if label == "" {
		label = time.Now().Format(time.RFC3339)
	}

	if flush {
		flushWinClaims()
	}

	zoneIDs = splitCSV(zoneCSV)
	pages = splitCSV(pageCSV)

	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	var wg sync.WaitGroup
	sem := make(chan struct{}, conc)
	done := make(chan struct{})

	var baseInterval time.Duration
	if rate > 0 {
		baseInterval = time.Duration(float64(time.Second) / rate)
	} else if duration > 0 && totalReq > 0 {
		baseInterval = duration / time.Duration(totalReq)
	}

	start := time.Now()
	next := start

	if stats {
		go func() {
			ticker := time.NewTicker(statsInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					printStats()
				case <-done:
					printStats()
					return
				}
			}
		}()
	}
	for i := 0; ; i++ {
		if totalReq > 0 && i >= totalReq {
			break
		}
		if duration > 0 && time.Since(start) >= duration {
			break
		}
		if baseInterval > 0 {
			effective := baseInterval
			if surgeInterval > 0 && surgeDuration > 0 && surgeMultiplier > 0 {
				elapsed := time.Since(start)
				if elapsed%surgeInterval < surgeDuration {
					effective = time.Duration(float64(effective) / surgeMultiplier)
				}
			}
			if jitter > 0 {
				jf := 1 + (r.Float64()*2-1)*jitter
				if jf < 0.1 {
					jf = 0.1
				}
				effective = time.Duration(float64(effective) * jf)
			}
			now := time.Now()
			if now.Before(next) {
				time.Sleep(next.Sub(now))
			}
			next = next.Add(effective)
		}

		sr := simRequest{
			id:     fmt.Sprintf("req_%s", strconv.FormatUint(r.Uint64(), 36)),
			zoneID: zoneIDs[r.Intn(len(zoneIDs))],
			page:   pages[r.Intn(len(pages))],
			ua:     userAgents[r.Intn(len(userAgents))],
			ip:     userIPs[r.Intn(len(userIPs))],
			win:    r.Float64() < winRate,
		}
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			send(sr)
		}()
	}
	wg.Wait()
	close(done)
	if !stats {
		printStats()
	}
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func flushWinClaims() {
	cfg := config.Load()
	addr := redisAddr
	if addr == "" {
		addr = cfg.RedisAddr
	}
	store, err := db.InitRedis(addr)
	if err != nil {
		logger.Fatal("redis connect", zap.Error(err))
	}
	defer store.Close()

	keys, err := store.Client.Keys(store.Ctx, "win:auction:*").Result()
	if err != nil {
		logger.Fatal("list win claims", zap.Error(err))
	}
	if len(keys) > 0 {
		if err := store.Client.Del(store.Ctx, keys...).Err(); err != nil {
			logger.Fatal("delete win claims", zap.Error(err))
		}
	}
	logger.Info("redis win claims flushed", zap.String("addr", addr), zap.Int("keys_deleted", len(keys)))
}

func send(sr simRequest) {
	atomic.AddUint64(&countSent, 1)

	body := models.BidRequest{
		ID:     sr.id,
		ZoneID: sr.zoneID,
		Site:   models.Site{Domain: "sim.example.com", Page: sr.page},
		Device: models.Device{UserAgent: sr.ua, IP: sr.ip},
	}
	if floor > 0 {
		f := floor
		body.Floor = &f
	}
	blob, err := json.Marshal(body)
	if err != nil {
		atomic.AddUint64(&countErrors, 1)
		logger.Error("marshal error", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, "POST", server+"/bid", bytes.NewReader(blob))
	if err != nil {
		atomic.AddUint64(&countErrors, 1)
		logger.Error("request build error", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", sr.ip)

	resp, err := httpClient.Do(req)
	if err != nil {
		atomic.AddUint64(&countErrors, 1)
		logger.Error("bid request error", zap.Error(err))
		return
	}
	bodyBytes, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		atomic.AddUint64(&countErrors, 1)
		logger.Error("read body error", zap.Error(err))
		return
	}
	if resp.StatusCode != http.StatusOK {
		atomic.AddUint64(&countErrors, 1)
		logger.Error("unexpected status", zap.Int("status", resp.StatusCode), zap.String("body", strings.TrimSpace(string(bodyBytes))))
		return
	}

	var bidResp models.BidResponse
	if err := json.Unmarshal(bodyBytes, &bidResp); err != nil {
		atomic.AddUint64(&countErrors, 1)
		logger.Error("decode error", zap.Error(err), zap.String("body", strings.TrimSpace(string(bodyBytes))))
		return
	}
	if !bidResp.HasBid() {
		atomic.AddUint64(&countNoBid, 1)
		logger.Debug("no bid", zap.String("request_id", sr.id), zap.String("zone_id", sr.zoneID))
		return
	}
	atomic.AddUint64(&countBids, 1)
	bid := bidResp.SeatBid[0].Bid[0]
	logger.Debug("bid",
		zap.String("request_id", sr.id),
		zap.String("zone_id", sr.zoneID),
		zap.String("campaign_id", bid.CampaignID),
		zap.Float64("price", bid.Price))

	if !sr.win || bid.NURL == "" {
		return
	}
	confirmWin(ctx, bid)
}

func confirmWin(ctx context.Context, bid models.SeatBidEntry) {
	req, err := http.NewRequestWithContext(ctx, "POST", bid.NURL, nil)
	if err != nil {
		atomic.AddUint64(&countErrors, 1)
		logger.Error("win request build error", zap.Error(err))
		return
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		atomic.AddUint64(&countErrors, 1)
		logger.Error("win notice error", zap.Error(err))
		return
	}
	_ = resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent:
		atomic.AddUint64(&countWins, 1)
		atomic.AddUint64(&settledUnits, uint64(bid.Price*10000+0.5))
	case http.StatusConflict, http.StatusNotFound:
		atomic.AddUint64(&countRefused, 1)
	default:
		atomic.AddUint64(&countErrors, 1)
		logger.Error("unexpected win status", zap.Int("status", resp.StatusCode), zap.String("campaign_id", bid.CampaignID))
	}
}

func printStats() {
	sent := atomic.LoadUint64(&countSent)
	bids := atomic.LoadUint64(&countBids)
	nb := atomic.LoadUint64(&countNoBid)
	errs := atomic.LoadUint64(&countErrors)
	wins := atomic.LoadUint64(&countWins)
	refused := atomic.LoadUint64(&countRefused)
	spend := float64(atomic.LoadUint64(&settledUnits)) / 10000
	var fill float64
	if sent > 0 {
		fill = float64(bids) / float64(sent)
	}
	logger.Info("stats",
		zap.String("run", label),
		zap.Uint64("sent", sent),
		zap.Uint64("bids", bids),
		zap.Uint64("no_bid", nb),
		zap.Uint64("errors", errs),
		zap.Uint64("wins", wins),
		zap.Uint64("wins_refused", refused),
		zap.Float64("spend", spend),
		zap.Float64("fill_rate", fill))
}
