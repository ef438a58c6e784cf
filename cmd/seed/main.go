package main

import (
	"context"
	"flag"
	"log"

	"initiative-mcp/internal/config"
	"initiative-mcp/internal/logging"
	"initiative-mcp/internal/repository"
	"initiative-mcp/internal/services"
	"initiative-mcp/internal/workflow"
	"initiative-mcp/pkg/models"
)

func main() {
	ctx := context.Background()
	logger := logging.NewLogger()

	configPath := flag.String("config", "", "Path to config file")
	project := flag.String("project", "", "Project directory, relative to project.root")
	flag.Parse()

	// Load config
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	def, err := workflow.LoadFile(cfg.Workflow.File)
	if err != nil {
		log.Fatalf("Failed to load workflow: %v", err)
	}

	opener, closeStore, err := repository.OpenConfigured(ctx, cfg, def.Validate, logger)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer closeStore()

	manager := services.NewLifecycleManager(def, services.WithLogger(logger))
	sess, err := services.NewSessionFactory(opener, cfg.Project.Root).Open(ctx, *project, "seed-script")
	if err != nil {
		log.Fatalf("Failed to open project: %v", err)
	}

	// 1. Ensure governance exists
	configured, err := sess.Governance.IsConfigured(ctx)
	if err != nil {
		log.Fatalf("Failed to read governance: %v", err)
	}
	if configured {
		logger.Info("Found existing governance", "project", sess.Project)
	} else {
		groups := make(map[models.Group][]string)
		for _, g := range def.Groups() {
			groups[g] = []string{string(g) + "-lead@localhost"}
		}
		result, err := manager.ConfigureGovernance(ctx, sess, groups)
		if err != nil {
			log.Fatalf("Failed to configure governance: %v", err)
		}
		logger.Info("Seeded governance", "project", sess.Project, "groups", len(result.Groups))
	}

	// 2. Create sample initiatives, skipping the ones already present
	initiatives := []struct {
		Key   string
		Title string
	}{
		{"INIT-1", "Self-service onboarding"},
		{"INIT-2", "Billing consolidation"},
	}

	created := make(map[string]bool)
	for _, in := range initiatives {
		result, err := manager.Create(ctx, sess, in.Key, in.Title)
		if err != nil {
			log.Printf("Failed to create initiative %s: %v", in.Key, err)
			continue
		}
		switch result.Outcome {
		case services.OutcomeCreated:
			created[in.Key] = true
			logger.Info("Seeded initiative", "key", in.Key, "stage", result.Initiative.CurrentStage)
		case services.OutcomeAlreadyExists:
			logger.Info("Skipping existing initiative", "key", in.Key)
		default:
			logger.Warn("Initiative not seeded", "key", in.Key, "outcome", result.Outcome, "message", result.Message)
		}
	}

	// 3. Walk a fresh first sample through its first stage so status has history to show
	if key := initiatives[0].Key; created[key] {
		result, err := manager.Advance(ctx, sess, key)
		if err != nil {
			log.Fatalf("Failed to advance %s: %v", key, err)
		}
		logger.Info("Advanced sample initiative", "key", key, "outcome", result.Outcome, "next", result.NextStage)
	}
	logger.Info("Seeding complete!")
}
