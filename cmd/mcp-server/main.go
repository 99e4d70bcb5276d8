package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/patrickwarner/rtbengine/internal/auction"
	"github.com/patrickwarner/rtbengine/internal/db"
	"github.com/patrickwarner/rtbengine/internal/logic"
	"github.com/patrickwarner/rtbengine/internal/macros"
	"github.com/patrickwarner/rtbengine/internal/models"
	"go.uber.org/zap"
)

// ConductAuctionInput is a flattened bid request, easier for agents to fill in.
type ConductAuctionInput struct {
	RequestID  string   `json:"request_id,omitempty"`
	ZoneID     string   `json:"zone_id"`
	DeviceType string   `json:"device_type,omitempty"`
	UserAgent  string   `json:"user_agent,omitempty"`
	Country    string   `json:"country,omitempty"`
	Domain     string   `json:"domain,omitempty"`
	Page       string   `json:"page,omitempty"`
	Floor      *float64 `json:"floor,omitempty"`
}

type ConductAuctionOutput struct {
	AuctionID   string              `json:"auction_id"`
	Winner      *models.Bid         `json:"winner,omitempty"`
	SecondPrice float64             `json:"second_price"`
	Bids        []models.Bid        `json:"bids"`
	Markup      string              `json:"markup,omitempty"`
	Trace       *logic.AuctionTrace `json:"trace,omitempty"`
}

type ListCampaignsInput struct {
	ZoneID string `json:"zone_id,omitempty"`
}

type CampaignSummary struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Status          string  `json:"status"`
	BidAmount       float64 `json:"bid_amount"`
	Budget          float64 `json:"budget"`
	TotalSpent      float64 `json:"total_spent"`
	RemainingBudget float64 `json:"remaining_budget"`
	ActiveAds       int     `json:"active_ads"`
}

type ListCampaignsOutput struct {
	Campaigns []CampaignSummary `json:"campaigns"`
}

// AuctionServer runs dry-run auctions against a loaded snapshot. Nothing it
// does touches spend.
type AuctionServer struct {
	store  *models.CampaignStore
	engine *auction.Engine
	logger *zap.Logger
}

func newAuctionServer(store *models.CampaignStore, expander *macros.MacroExpander, logger *zap.Logger) *AuctionServer {
	engine := auction.NewEngine(store,
		auction.WithLogger(logger),
		auction.WithMacroExpander(expander),
	)
	return &AuctionServer{store: store, engine: engine, logger: logger}
}

func (in ConductAuctionInput) bidRequest() *models.BidRequest {
	req := &models.BidRequest{
		ID:     in.RequestID,
		ZoneID: in.ZoneID,
		Site:   models.Site{Domain: in.Domain, Page: in.Page},
		Device: models.Device{Type: in.DeviceType, UserAgent: in.UserAgent},
		Floor:  in.Floor,
	}
	if req.ID == "" {
		req.ID = fmt.Sprintf("mcp-%d", time.Now().UnixNano())
	}
	if in.Country != "" {
		req.Device.Geo = &models.Geo{Country: in.Country}
	}
	return req
}

// ConductAuction runs one auction and reports every stage of it.
func (s *AuctionServer) ConductAuction(ctx context.Context, _ *mcp.CallToolRequest, input ConductAuctionInput) (*mcp.CallToolResult, ConductAuctionOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req := input.bidRequest()
	if err := models.ValidateBidRequest(req); err != nil {
		return nil, ConductAuctionOutput{}, err
	}
	logic.EnrichRequest(nil, req)

	out, err := s.engine.Process(ctx, req, true)
	if err != nil {
		return nil, ConductAuctionOutput{}, fmt.Errorf("conduct auction: %w", err)
	}

	res := ConductAuctionOutput{
		AuctionID:   out.Result.AuctionID,
		Winner:      out.Result.Winner,
		SecondPrice: out.Result.SecondPrice,
		Bids:        out.Result.AllBids,
		Trace:       out.Trace,
	}
	if out.Response.HasBid() {
		res.Markup = out.Response.SeatBid[0].Bid[0].Adm
	}

	s.logger.Info("dry-run auction",
		zap.String("zone_id", req.ZoneID),
		zap.String("auction_id", res.AuctionID),
		zap.Int("bids", len(res.Bids)),
		zap.Bool("won", res.Winner != nil))
	return nil, res, nil
}

// ListCampaigns summarises the snapshot, optionally scoped to one zone.
func (s *AuctionServer) ListCampaigns(ctx context.Context, _ *mcp.CallToolRequest, input ListCampaignsInput) (*mcp.CallToolResult, ListCampaignsOutput, error) {
	var campaigns []models.Campaign
	if input.ZoneID != "" {
		var err error
		campaigns, err = s.store.CampaignsForZone(ctx, input.ZoneID)
		if err != nil {
			return nil, ListCampaignsOutput{}, err
		}
	} else {
		campaigns = s.store.GetAllCampaigns()
	}

	out := ListCampaignsOutput{Campaigns: make([]CampaignSummary, 0, len(campaigns))}
	for i := range campaigns {
		c := &campaigns[i]
		out.Campaigns = append(out.Campaigns, CampaignSummary{
			ID:              c.ID,
			Name:            c.Name,
			Status:          c.Status,
			BidAmount:       c.BidAmount,
			Budget:          c.Budget,
			TotalSpent:      c.TotalSpent,
			RemainingBudget: c.RemainingBudget(),
			ActiveAds:       len(c.ActiveAds()),
		})
	}
	sort.Slice(out.Campaigns, func(i, j int) bool { return out.Campaigns[i].ID < out.Campaigns[j].ID })
	return nil, out, nil
}

// loadCampaignsFile reads a JSON array of campaigns.
func loadCampaignsFile(path string) ([]models.Campaign, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var campaigns []models.Campaign
	if err := json.Unmarshal(data, &campaigns); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return campaigns, nil
}

func loadCampaigns(ctx context.Context, logger *zap.Logger) ([]models.Campaign, error) {
	if path := os.Getenv("CAMPAIGNS_FILE"); path != "" {
		logger.Info("Loading campaigns from file", zap.String("path", path))
		return loadCampaignsFile(path)
	}

	postgresURL := os.Getenv("POSTGRES_DSN")
	if postgresURL == "" {
		return nil, fmt.Errorf("POSTGRES_DSN or CAMPAIGNS_FILE is required")
	}
	pg, err := db.InitPostgres(postgresURL, 5, 2, 30*time.Minute, time.Minute)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	defer pg.Close()
	logger.Info("Loading campaigns from Postgres")
	return pg.LoadCampaigns(ctx)
}

// buildStore checks ad markup against checker and loads campaigns into a
// fresh snapshot.
func buildStore(campaigns []models.Campaign, checker models.MarkupChecker) (*models.CampaignStore, error) {
	for i := range campaigns {
		if err := models.ValidateAdMarkup(&campaigns[i], checker); err != nil {
			return nil, err
		}
	}
	store := models.NewCampaignStore()
	if err := store.ReloadAll(campaigns); err != nil {
		return nil, err
	}
	return store, nil
}

func registerTools(server *mcp.Server, s *AuctionServer) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "conduct_auction",
		Description: "Run a dry-run second-price auction for a zone against the loaded campaign snapshot. Spend is never charged.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"request_id": map[string]interface{}{
					"type":        "string",
					"description": "Request identifier (optional, generated when empty)",
				},
				"zone_id": map[string]interface{}{
					"type":        "string",
					"description": "Ad placement zone to auction",
				},
				"device_type": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"desktop", "mobile", "tablet", "other"},
					"description": "Viewer device type (optional, derived from user_agent when empty)",
				},
				"user_agent": map[string]interface{}{
					"type":        "string",
					"description": "Viewer User-Agent (optional)",
				},
				"country": map[string]interface{}{
					"type":        "string",
					"description": "ISO country code of the viewer (optional)",
				},
				"domain": map[string]interface{}{
					"type":        "string",
					"description": "Requesting site domain (optional)",
				},
				"page": map[string]interface{}{
					"type":        "string",
					"description": "Requesting page (optional)",
				},
				"floor": map[string]interface{}{
					"type":        "number",
					"minimum":     0,
					"description": "Minimum acceptable price (optional, defaults to 0)",
				},
			},
			"required": []string{"zone_id"},
		},
	}, s.ConductAuction)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_campaigns",
		Description: "List campaigns in the loaded snapshot with their bid, budget and spend",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"zone_id": map[string]interface{}{
					"type":        "string",
					"description": "Only list campaigns booked on this zone (optional)",
				},
			},
		},
	}, s.ListCampaigns)
}

func main() {
	// Initialize logger for MCP server - use stderr to avoid stdio conflicts
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.NameKey = "logger"
	cfg.EncoderConfig.CallerKey = "caller"
	cfg.EncoderConfig.MessageKey = "msg"
	cfg.EncoderConfig.StacktraceKey = "stacktrace"

	logger, err := cfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger = logger.Named("rtbengine-mcp").With(zap.String("service", "rtbengine-mcp"))

	ctx := context.Background()
	campaigns, err := loadCampaigns(ctx, logger)
	if err != nil {
		logger.Fatal("Failed to load campaigns", zap.Error(err))
	}

	expander := macros.NewMacroExpander(logger)
	store, err := buildStore(campaigns, expander)
	if err != nil {
		logger.Fatal("Failed to populate campaign store", zap.Error(err))
	}
	logger.Info("Campaign snapshot loaded", zap.Int("campaigns", store.Len()))

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "rtbengine",
		Version: "1.0.0",
	}, nil)
	registerTools(server, newAuctionServer(store, expander, logger))

	var logBuffer bytes.Buffer
	loggingTransport := &mcp.LoggingTransport{
		Transport: &mcp.StdioTransport{},
		Writer:    &logBuffer,
	}

	logger.Info("MCP Server running via stdio")
	if err := server.Run(ctx, loggingTransport); err != nil {
		logger.Fatal("Server error", zap.Error(err), zap.String("mcp_logs", logBuffer.String()))
	}
}
