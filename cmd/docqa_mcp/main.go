package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"docqa/internal/bootstrap"
	"docqa/internal/config"
	"docqa/internal/mcp"
	"docqa/pkg/logger"

	"github.com/mark3labs/mcp-go/server"
)

const ServiceName = "docqa_mcp"

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML configuration")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	level, _ := logger.ParseLevel(cfg.Logger.Level)
	// stdout carries the MCP protocol, logs go to stderr
	appLogger := logger.New(ServiceName, level, os.Stderr)

	app, err := bootstrap.Build(context.Background(), cfg, appLogger)
	if err != nil {
		appLogger.Fatal(fmt.Sprintf("Failed to build pipeline: %v", err))
	}
	defer app.Close()

	s := mcp.NewServer(mcp.NewHandler(app.Service, app.Fetcher, app.Extractor), cfg.App.Version)

	appLogger.Info("Starting docqa MCP server on stdio")
	if err := server.ServeStdio(s); err != nil {
		appLogger.Fatal(fmt.Sprintf("MCP server error: %v", err))
	}
}
