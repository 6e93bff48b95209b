// Package mcpadapter exposes the SERP and volume lookups as MCP tools.
package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/keyword-intel/internal/core/ports"
	"github.com/kirillkom/keyword-intel/internal/core/usecase"
)

type Config struct {
	Name    string
	Version string
}

type Server struct {
	mcpServer *server.MCPServer
	serp      ports.SerpService
	volume    ports.VolumeService
	logger    *slog.Logger
}

func NewServer(cfg Config, serp ports.SerpService, volume ports.VolumeService, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	mcpServer := server.NewMCPServer(
		cfg.Name,
		cfg.Version,
		server.WithToolCapabilities(true),
	)

	s := &Server{
		mcpServer: mcpServer,
		serp:      serp,
		volume:    volume,
		logger:    logger,
	}

	serpTool := mcp.NewTool("get_serp_analysis",
		mcp.WithDescription("Organic search results and domain statistics per keyword. Served from cache when fresh."),
		mcp.WithArray("keywords",
			mcp.Required(),
			mcp.Description("Keywords to look up (at most 10 are fetched per call)"),
			mcp.WithStringItems(),
		),
		mcp.WithString("region", mcp.Required(), mcp.Description("Region code, e.g. TW")),
		mcp.WithString("language", mcp.Required(), mcp.Description("Language code, e.g. zh-TW")),
		mcp.WithNumber("maxResults", mcp.Description("Organic results per keyword (default: 100)")),
	)
	mcpServer.AddTool(serpTool, s.serpHandler)

	volumeTool := mcp.NewTool("get_search_volume",
		mcp.WithDescription("Monthly search volume, competition and CPC per keyword, sorted by volume."),
		mcp.WithArray("keywords",
			mcp.Required(),
			mcp.Description("Keywords to look up"),
			mcp.WithStringItems(),
		),
		mcp.WithString("region", mcp.Required(), mcp.Description("Region code, e.g. TW")),
		mcp.WithString("language", mcp.Required(), mcp.Description("Language code, e.g. zh-TW")),
	)
	mcpServer.AddTool(volumeTool, s.volumeHandler)

	return s
}

func (s *Server) serpHandler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	keywords := req.GetStringSlice("keywords", nil)
	region := req.GetString("region", "")
	language := req.GetString("language", "")
	if err := usecase.ValidateSerpRequest(keywords, region, language); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	resp := s.serp.GetSerpAnalysis(ctx, keywords, region, language, req.GetInt("maxResults", 0))
	if resp.Error != "" && len(resp.Results) == 0 {
		s.logger.Warn("mcp_serp_failed", "keywords", len(keywords), "error", resp.Error)
		return mcp.NewToolResultError(fmt.Sprintf("serp analysis failed: %s", resp.Error)), nil
	}
	return jsonResult(resp)
}

func (s *Server) volumeHandler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	keywords := req.GetStringSlice("keywords", nil)
	resp, err := s.volume.GetSearchVolume(ctx, keywords, req.GetString("region", ""), req.GetString("language", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if resp.Error != "" && len(resp.Results) == 0 {
		s.logger.Warn("mcp_volume_failed", "keywords", len(keywords), "error", resp.Error)
		return mcp.NewToolResultError(fmt.Sprintf("search volume failed: %s", resp.Error)), nil
	}
	return jsonResult(resp)
}

func jsonResult(payload any) (*mcp.CallToolResult, error) {
	result, err := json.Marshal(payload)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(result)), nil
}

// ServeStdio blocks serving MCP over stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}
